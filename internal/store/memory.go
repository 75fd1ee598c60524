package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/novneetsingh/Identity-Reconciliation/internal/model"
)

// MemoryStore keeps all contacts in a mutex-guarded map. It favors clarity
// over performance and serves unit tests and local development. A single
// mutex held for the whole unit of work makes every unit trivially
// serializable, which is exactly the atomicity the reconciliation needs.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[int64]model.Contact
	nextId   int64
	now      func() time.Time
}

// NewMemoryStore returns an empty in-memory contact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts: make(map[int64]model.Contact),
		nextId:   1,
		now:      time.Now,
	}
}

// Atomically runs fn under the store mutex. If fn fails, every change it made
// is rolled back by restoring the state captured on entry.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(uow UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[int64]model.Contact, len(s.contacts))
	for id, c := range s.contacts {
		snapshot[id] = c
	}
	snapshotNextId := s.nextId

	if err := fn(&memoryUnit{store: s}); err != nil {
		s.contacts = snapshot
		s.nextId = snapshotNextId
		return err
	}
	return nil
}

// Contacts returns a copy of every stored contact, deleted ones included,
// ordered by (created_at, id). Intended for tests and tooling.
func (s *MemoryStore) Contacts() []model.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		all = append(all, c)
	}
	sortByAge(all)
	return all
}

// memoryUnit implements UnitOfWork directly against the store maps. The
// enclosing Atomically call holds the mutex for the unit's whole lifetime.
type memoryUnit struct {
	store *MemoryStore
}

func (u *memoryUnit) FindByAttributes(ctx context.Context, email, phone *string) ([]model.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var matched []model.Contact
	for _, c := range u.store.contacts {
		if c.DeletedAt != nil {
			continue
		}
		byEmail := email != nil && c.Email != nil && *c.Email == *email
		byPhone := phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone
		if byEmail || byPhone {
			matched = append(matched, c)
		}
	}
	sortByAge(matched)
	return matched, nil
}

func (u *memoryUnit) FindByIds(ctx context.Context, ids []int64) ([]model.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var found []model.Contact
	for _, id := range ids {
		if c, ok := u.store.contacts[id]; ok && c.DeletedAt == nil {
			found = append(found, c)
		}
	}
	sortByAge(found)
	return found, nil
}

func (u *memoryUnit) FindGroupMembers(ctx context.Context, primaryId int64) ([]model.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var members []model.Contact
	for _, c := range u.store.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if c.Id == primaryId || (c.LinkedId != nil && *c.LinkedId == primaryId) {
			members = append(members, c)
		}
	}
	sortByAge(members)
	return members, nil
}

func (u *memoryUnit) CreateContact(ctx context.Context, email, phone *string, linkedId *int64, precedence string) (model.Contact, error) {
	if err := ctx.Err(); err != nil {
		return model.Contact{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	now := u.store.now()
	contact := model.Contact{
		Id:             u.store.nextId,
		Email:          email,
		PhoneNumber:    phone,
		LinkedId:       linkedId,
		LinkPrecedence: precedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	u.store.nextId++
	u.store.contacts[contact.Id] = contact
	return contact, nil
}

func (u *memoryUnit) DemoteToSecondary(ctx context.Context, ids []int64, newPrimaryId int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	now := u.store.now()
	for _, id := range ids {
		c, ok := u.store.contacts[id]
		if !ok || c.DeletedAt != nil {
			continue
		}
		linked := newPrimaryId
		c.LinkPrecedence = model.LinkPrecedenceSecondary
		c.LinkedId = &linked
		c.UpdatedAt = now
		u.store.contacts[id] = c
	}
	return nil
}

func (u *memoryUnit) ReparentSecondaries(ctx context.Context, oldPrimaryIds []int64, newPrimaryId int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	old := make(map[int64]bool, len(oldPrimaryIds))
	for _, id := range oldPrimaryIds {
		old[id] = true
	}
	now := u.store.now()
	for id, c := range u.store.contacts {
		if c.DeletedAt != nil || c.LinkedId == nil || !old[*c.LinkedId] {
			continue
		}
		linked := newPrimaryId
		c.LinkedId = &linked
		c.UpdatedAt = now
		u.store.contacts[id] = c
	}
	return nil
}

// sortByAge orders contacts ascending by (created_at, id), the creation order
// every group listing and the primary election rely on.
func sortByAge(contacts []model.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].Id < contacts[j].Id
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}
