package store

import (
	"context"
	"errors"

	"github.com/novneetsingh/Identity-Reconciliation/internal/model"
)

var (
	// ErrNotFound is returned when a lookup by id matches no live contact.
	ErrNotFound = errors.New("contact not found")

	// ErrConflict marks a unit of work that lost against a concurrent one.
	// Rerunning the whole reconciliation with the same input is safe.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrUnavailable marks the store as unreachable or timed out.
	ErrUnavailable = errors.New("contact store unavailable")
)

// UnitOfWork exposes the contact operations available inside one atomic
// reconciliation. Reads observe the unit's own writes; nothing becomes
// visible to other units before the enclosing Atomically call returns.
type UnitOfWork interface {
	// FindByAttributes returns all live contacts whose email or phone number
	// equals one of the supplied values. A nil attribute is left out of the
	// match condition entirely; it never matches stored NULLs. Results are
	// ordered by (created_at, id) ascending.
	FindByAttributes(ctx context.Context, email, phone *string) ([]model.Contact, error)

	// FindByIds returns the live contacts with the given ids, ordered by
	// (created_at, id) ascending. Ids without a live contact are skipped.
	FindByIds(ctx context.Context, ids []int64) ([]model.Contact, error)

	// FindGroupMembers returns the live contact with the given id plus every
	// live secondary linked to it, ordered by (created_at, id) ascending.
	FindGroupMembers(ctx context.Context, primaryId int64) ([]model.Contact, error)

	// CreateContact inserts a new contact; the store assigns id and
	// timestamps. For a secondary, linkedId must reference the group primary.
	CreateContact(ctx context.Context, email, phone *string, linkedId *int64, precedence string) (model.Contact, error)

	// DemoteToSecondary rewrites the given primaries to secondaries linked
	// to newPrimaryId.
	DemoteToSecondary(ctx context.Context, ids []int64, newPrimaryId int64) error

	// ReparentSecondaries repoints every secondary linked to one of
	// oldPrimaryIds at newPrimaryId.
	ReparentSecondaries(ctx context.Context, oldPrimaryIds []int64, newPrimaryId int64) error
}

// ContactStore runs reconciliation units of work. Implementations guarantee
// that fn either commits as a whole or leaves no trace, and that concurrent
// units are serializable. The store is interface-driven so the engine can be
// exercised against an in-memory implementation in tests and swapped between
// SQL backends without touching business code.
type ContactStore interface {
	Atomically(ctx context.Context, fn func(uow UnitOfWork) error) error
}
