package model

import "time"

// Link precedence values of a contact. Exactly one primary exists per
// consolidated group; every secondary points at that primary via LinkedId.
const (
	LinkPrecedencePrimary   = "primary"
	LinkPrecedenceSecondary = "secondary"
)

// Contact is one recorded sighting of a customer's email/phone combination.
// Email and PhoneNumber are optional. LinkedId is set if and only if the
// contact is a secondary, and then always references the group's primary
// directly (the link graph never grows deeper than one hop).
type Contact struct {
	Id             int64      `json:"id"                    db:"id"`
	Email          *string    `json:"email,omitempty"       db:"email"`
	PhoneNumber    *string    `json:"phoneNumber,omitempty" db:"phone_number"`
	LinkedId       *int64     `json:"linkedId,omitempty"    db:"linked_id"`
	LinkPrecedence string     `json:"linkPrecedence"        db:"link_precedence"`
	CreatedAt      time.Time  `json:"createdAt"             db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt"             db:"updated_at"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"   db:"deleted_at"`
}

// IsPrimary returns true if the contact is the canonical record of its group.
func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// PrimaryId returns the id of the primary of the group this contact belongs
// to: its own id for a primary, the linked id for a secondary.
func (c Contact) PrimaryId() int64 {
	if c.LinkedId != nil {
		return *c.LinkedId
	}
	return c.Id
}

// IdentifyRequest is the body of a POST /identify call. At least one of the
// two attributes must be present for the request to be well-formed.
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// ConsolidatedContact is the externally visible projection of one identity
// group: the primary's id, the distinct emails and phone numbers of the group
// with the primary's own values first, and the ids of all secondaries.
type ConsolidatedContact struct {
	PrimaryContactId    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIds []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse is the body of a successful POST /identify response.
type IdentifyResponse struct {
	Contact ConsolidatedContact `json:"contact"`
}
