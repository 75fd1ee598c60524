package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/novneetsingh/Identity-Reconciliation/internal/model"
	"github.com/novneetsingh/Identity-Reconciliation/internal/store"
)

// defaultStoreTimeout bounds one reconciliation's storage work when the
// caller did not configure a tighter limit.
const defaultStoreTimeout = 5 * time.Second

// Engine links contact sightings that share an email or phone number into
// consolidated identity groups. One Identify call runs the whole pipeline --
// match, resolve the canonical primary (merging bridged groups), fill
// attribute gaps, project the consolidated view -- inside a single atomic
// unit of work against the contact store.
type Engine struct {
	store   store.ContactStore
	timeout time.Duration
}

// NewEngine builds an engine on the given store. A non-positive timeout
// falls back to the default.
func NewEngine(s store.ContactStore, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Engine{store: s, timeout: timeout}
}

// Identify reconciles one (email, phone) sighting and returns the
// consolidated view of the group it ended up in. Empty-string attributes
// count as absent; a request with neither attribute fails validation before
// any storage access.
func (e *Engine) Identify(ctx context.Context, req model.IdentifyRequest) (*model.IdentifyResponse, error) {
	email := normalize(req.Email)
	phone := normalize(req.PhoneNumber)
	if email == nil && phone == nil {
		return nil, &Error{Kind: KindValidation, Msg: "at least one of email and phoneNumber is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var primary model.Contact
	var members []model.Contact
	err := e.store.Atomically(ctx, func(uow store.UnitOfWork) error {
		matched, err := uow.FindByAttributes(ctx, email, phone)
		if err != nil {
			return err
		}

		// No record shares either attribute: the sighting is a brand-new
		// identity and becomes its own primary.
		if len(matched) == 0 {
			created, err := uow.CreateContact(ctx, email, phone, nil, model.LinkPrecedencePrimary)
			if err != nil {
				return err
			}
			primary = created
			members = []model.Contact{created}
			return nil
		}

		canonical, err := resolveCanonical(ctx, uow, candidatePrimaryIds(matched))
		if err != nil {
			return err
		}

		group, err := uow.FindGroupMembers(ctx, canonical.Id)
		if err != nil {
			return err
		}
		if fillsGap(group, email, phone) {
			created, err := uow.CreateContact(ctx, email, phone, &canonical.Id, model.LinkPrecedenceSecondary)
			if err != nil {
				return err
			}
			group = append(group, created)
		}
		if err := verifyFlatLinks(canonical, group); err != nil {
			return err
		}
		primary = canonical
		members = group
		return nil
	})
	if err != nil {
		return nil, asEngineError(err)
	}

	resp := buildResponse(primary, members)
	return &resp, nil
}

// Lookup returns the consolidated view of the group containing the contact
// with the given id. The error wraps store.ErrNotFound when no live contact
// has that id.
func (e *Engine) Lookup(ctx context.Context, id int64) (*model.IdentifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var primary model.Contact
	var members []model.Contact
	err := e.store.Atomically(ctx, func(uow store.UnitOfWork) error {
		found, err := uow.FindByIds(ctx, []int64{id})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("contact %d: %w", id, store.ErrNotFound)
		}
		primaries, err := uow.FindByIds(ctx, []int64{found[0].PrimaryId()})
		if err != nil {
			return err
		}
		if len(primaries) == 0 || !primaries[0].IsPrimary() {
			return &Error{Kind: KindIntegrity, Msg: fmt.Sprintf("contact %d is not linked to a live primary", id)}
		}
		primary = primaries[0]
		members, err = uow.FindGroupMembers(ctx, primary.Id)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, asEngineError(err)
	}

	resp := buildResponse(primary, members)
	return &resp, nil
}

// candidatePrimaryIds derives the set of primaries reachable from the matched
// contacts: a matched primary contributes its own id, a matched secondary the
// id of its primary. Order is first-seen over the creation-ordered matches.
func candidatePrimaryIds(matched []model.Contact) []int64 {
	seen := make(map[int64]bool, len(matched))
	var ids []int64
	for _, c := range matched {
		id := c.PrimaryId()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// resolveCanonical elects the oldest candidate as the canonical primary and,
// if the incoming pair bridged several groups, merges the rest into it:
// losing primaries are demoted to secondaries of the canonical one and their
// former secondaries re-parented so no link chain ever exceeds one hop.
func resolveCanonical(ctx context.Context, uow store.UnitOfWork, candidateIds []int64) (model.Contact, error) {
	primaries, err := uow.FindByIds(ctx, candidateIds)
	if err != nil {
		return model.Contact{}, err
	}
	if len(primaries) == 0 {
		return model.Contact{}, &Error{Kind: KindIntegrity, Msg: "matched contacts reference no live primary"}
	}
	for _, p := range primaries {
		if !p.IsPrimary() {
			return model.Contact{}, &Error{
				Kind: KindIntegrity,
				Msg:  fmt.Sprintf("contact %d is referenced as a primary but has precedence %q", p.Id, p.LinkPrecedence),
			}
		}
	}
	sortByAge(primaries)

	canonical := primaries[0]
	losers := primaries[1:]
	if len(losers) == 0 {
		return canonical, nil
	}

	loserIds := make([]int64, 0, len(losers))
	for _, l := range losers {
		loserIds = append(loserIds, l.Id)
	}
	if err := uow.DemoteToSecondary(ctx, loserIds, canonical.Id); err != nil {
		return model.Contact{}, err
	}
	if err := uow.ReparentSecondaries(ctx, loserIds, canonical.Id); err != nil {
		return model.Contact{}, err
	}
	return canonical, nil
}

// fillsGap decides whether the query pair contributes an email or phone the
// group does not hold yet. Even then, no record is created when some member
// already carries exactly this (email, phone) combination.
func fillsGap(group []model.Contact, email, phone *string) bool {
	hasNewEmail := email != nil
	hasNewPhone := phone != nil
	combinationExists := false
	for _, c := range group {
		if email != nil && c.Email != nil && *c.Email == *email {
			hasNewEmail = false
		}
		if phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone {
			hasNewPhone = false
		}
		if equalAttribute(c.Email, email) && equalAttribute(c.PhoneNumber, phone) {
			combinationExists = true
		}
	}
	return (hasNewEmail || hasNewPhone) && !combinationExists
}

// verifyFlatLinks checks the post-merge invariant: the canonical record is a
// primary and every other group member is a secondary pointing directly at
// it.
func verifyFlatLinks(canonical model.Contact, group []model.Contact) error {
	if !canonical.IsPrimary() {
		return &Error{Kind: KindIntegrity, Msg: fmt.Sprintf("canonical contact %d is not a primary", canonical.Id)}
	}
	for _, c := range group {
		if c.Id == canonical.Id {
			continue
		}
		if c.IsPrimary() || c.LinkedId == nil || *c.LinkedId != canonical.Id {
			return &Error{
				Kind: KindIntegrity,
				Msg:  fmt.Sprintf("contact %d does not link directly to primary %d", c.Id, canonical.Id),
			}
		}
	}
	return nil
}

// buildResponse projects the group into the consolidated identity view. The
// primary's own attributes come first; the remaining distinct values follow
// in creation order, so identical group state always renders identically.
func buildResponse(primary model.Contact, members []model.Contact) model.IdentifyResponse {
	sortByAge(members)

	emails := []string{}
	phones := []string{}
	secondaryIds := []int64{}
	seenEmails := make(map[string]bool)
	seenPhones := make(map[string]bool)

	if primary.Email != nil {
		emails = append(emails, *primary.Email)
		seenEmails[*primary.Email] = true
	}
	if primary.PhoneNumber != nil {
		phones = append(phones, *primary.PhoneNumber)
		seenPhones[*primary.PhoneNumber] = true
	}
	for _, c := range members {
		if c.Id == primary.Id {
			continue
		}
		secondaryIds = append(secondaryIds, c.Id)
		if c.Email != nil && !seenEmails[*c.Email] {
			seenEmails[*c.Email] = true
			emails = append(emails, *c.Email)
		}
		if c.PhoneNumber != nil && !seenPhones[*c.PhoneNumber] {
			seenPhones[*c.PhoneNumber] = true
			phones = append(phones, *c.PhoneNumber)
		}
	}

	return model.IdentifyResponse{
		Contact: model.ConsolidatedContact{
			PrimaryContactId:    primary.Id,
			Emails:              emails,
			PhoneNumbers:        phones,
			SecondaryContactIds: secondaryIds,
		},
	}
}

// asEngineError folds store failures into the error taxonomy. Engine errors
// pass through untouched.
func asEngineError(err error) error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr
	}
	if errors.Is(err, store.ErrConflict) {
		return &Error{Kind: KindConflict, Msg: "reconciliation lost against a concurrent update", Err: err}
	}
	return &Error{Kind: KindUnavailable, Msg: "contact store failed", Err: err}
}

// normalize treats empty strings as absent attributes.
func normalize(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

// equalAttribute compares two optional attributes; two absent values are
// equal.
func equalAttribute(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// sortByAge orders contacts ascending by (createdAt, id); this creation order
// is the sole tie-break for primary election.
func sortByAge(contacts []model.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].Id < contacts[j].Id
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}
