package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novneetsingh/Identity-Reconciliation/internal/model"
)

func ptr(s string) *string {
	return &s
}

// seed inserts a contact through a unit of work and returns it.
func seed(t *testing.T, s *MemoryStore, email, phone *string, linkedId *int64, precedence string) model.Contact {
	t.Helper()
	var created model.Contact
	err := s.Atomically(context.Background(), func(uow UnitOfWork) error {
		var err error
		created, err = uow.CreateContact(context.Background(), email, phone, linkedId, precedence)
		return err
	})
	require.NoError(t, err)
	return created
}

func TestMemoryFindByAttributesMatchesEitherValue(t *testing.T) {
	s := NewMemoryStore()
	byEmail := seed(t, s, ptr("alice@example.com"), ptr("111"), nil, model.LinkPrecedencePrimary)
	byPhone := seed(t, s, ptr("bob@example.com"), ptr("222"), nil, model.LinkPrecedencePrimary)
	seed(t, s, ptr("carol@example.com"), ptr("333"), nil, model.LinkPrecedencePrimary)

	err := s.Atomically(context.Background(), func(uow UnitOfWork) error {
		matched, err := uow.FindByAttributes(context.Background(), ptr("alice@example.com"), ptr("222"))
		require.NoError(t, err)
		require.Len(t, matched, 2)
		assert.Equal(t, byEmail.Id, matched[0].Id)
		assert.Equal(t, byPhone.Id, matched[1].Id)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryFindByAttributesIgnoresAbsentValues(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, nil, ptr("111"), nil, model.LinkPrecedencePrimary)

	err := s.Atomically(context.Background(), func(uow UnitOfWork) error {
		// An email-only query must not treat the stored NULL email as a match.
		matched, err := uow.FindByAttributes(context.Background(), ptr("alice@example.com"), nil)
		require.NoError(t, err)
		assert.Empty(t, matched)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryExcludesSoftDeletedContacts(t *testing.T) {
	s := NewMemoryStore()
	buried := seed(t, s, ptr("alice@example.com"), ptr("111"), nil, model.LinkPrecedencePrimary)

	now := time.Now()
	s.mu.Lock()
	c := s.contacts[buried.Id]
	c.DeletedAt = &now
	s.contacts[buried.Id] = c
	s.mu.Unlock()

	err := s.Atomically(context.Background(), func(uow UnitOfWork) error {
		matched, err := uow.FindByAttributes(context.Background(), ptr("alice@example.com"), nil)
		require.NoError(t, err)
		assert.Empty(t, matched)

		found, err := uow.FindByIds(context.Background(), []int64{buried.Id})
		require.NoError(t, err)
		assert.Empty(t, found)

		members, err := uow.FindGroupMembers(context.Background(), buried.Id)
		require.NoError(t, err)
		assert.Empty(t, members)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryAtomicallyRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	kept := seed(t, s, ptr("alice@example.com"), ptr("111"), nil, model.LinkPrecedencePrimary)

	boom := errors.New("boom")
	err := s.Atomically(context.Background(), func(uow UnitOfWork) error {
		_, err := uow.CreateContact(context.Background(), ptr("bob@example.com"), ptr("222"), nil, model.LinkPrecedencePrimary)
		require.NoError(t, err)
		require.NoError(t, uow.DemoteToSecondary(context.Background(), []int64{kept.Id}, 99))
		return boom
	})
	require.ErrorIs(t, err, boom)

	all := s.Contacts()
	require.Len(t, all, 1)
	assert.Equal(t, kept.Id, all[0].Id)
	assert.Equal(t, model.LinkPrecedencePrimary, all[0].LinkPrecedence)
	assert.Nil(t, all[0].LinkedId)
}

func TestMemoryDemoteAndReparent(t *testing.T) {
	s := NewMemoryStore()
	winner := seed(t, s, ptr("alice@example.com"), ptr("111"), nil, model.LinkPrecedencePrimary)
	loser := seed(t, s, ptr("bob@example.com"), ptr("222"), nil, model.LinkPrecedencePrimary)
	child := seed(t, s, ptr("bob@example.com"), ptr("333"), &loser.Id, model.LinkPrecedenceSecondary)

	err := s.Atomically(context.Background(), func(uow UnitOfWork) error {
		if err := uow.DemoteToSecondary(context.Background(), []int64{loser.Id}, winner.Id); err != nil {
			return err
		}
		return uow.ReparentSecondaries(context.Background(), []int64{loser.Id}, winner.Id)
	})
	require.NoError(t, err)

	all := s.Contacts()
	require.Len(t, all, 3)
	byId := make(map[int64]model.Contact, len(all))
	for _, c := range all {
		byId[c.Id] = c
	}
	demoted := byId[loser.Id]
	assert.Equal(t, model.LinkPrecedenceSecondary, demoted.LinkPrecedence)
	require.NotNil(t, demoted.LinkedId)
	assert.Equal(t, winner.Id, *demoted.LinkedId)

	moved := byId[child.Id]
	require.NotNil(t, moved.LinkedId)
	assert.Equal(t, winner.Id, *moved.LinkedId)
}
