package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransactRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Transact(ctx, func(tx Tx) error {
		return tx.CreateUser(User{ID: "u1", ReferralCode: "AAAA", MainBalance: Money("100")})
	}))

	boom := errors.New("boom")
	err := s.Transact(ctx, func(tx Tx) error {
		u, err := tx.User("u1")
		if err != nil {
			return err
		}
		if err := u.Debit(Money("40")); err != nil {
			return err
		}
		if err := tx.SaveUser(u); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.Transact(ctx, func(tx Tx) error {
		u, err := tx.User("u1")
		require.NoError(t, err)
		assert.True(t, u.MainBalance.Equal(Money("100")))
		return nil
	}))
}

func TestMemoryTransactSeesStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	err := s.Transact(ctx, func(tx Tx) error {
		require.NoError(t, tx.CreateUser(User{ID: "u1", ReferralCode: "CODE"}))
		u, err := tx.UserByReferralCode("CODE")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryUserReadOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Transact(ctx, func(tx Tx) error {
		return tx.CreateUser(User{ID: "u1", ReferralCode: "AAAA", MainBalance: Money("100")})
	}))

	u, err := s.User(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.MainBalance.Equal(Money("100")))

	_, err = s.User(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Transact(ctx, func(tx Tx) error {
		if err := tx.CreateUser(User{ID: "u1", ReferralCode: "SAME"}); err != nil {
			return err
		}
		return tx.CreateReferral(NewReferral("r1", "u1", "u2", epoch))
	}))

	err := s.Transact(ctx, func(tx Tx) error {
		return tx.CreateUser(User{ID: "u2", ReferralCode: "SAME"})
	})
	assert.ErrorIs(t, err, ErrInvalidState)

	err = s.Transact(ctx, func(tx Tx) error {
		return tx.CreateReferral(NewReferral("r2", "u1", "u2", epoch))
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMemoryMissingRecords(t *testing.T) {
	s := NewMemoryStore()
	err := s.Transact(context.Background(), func(tx Tx) error {
		_, err := tx.Investment("nope")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Asset(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryHistoryIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	inv := NewInvestment("i1", "u1", "a1", Money("10"), 1, epoch)
	require.NoError(t, s.Transact(ctx, func(tx Tx) error { return tx.CreateInvestment(inv) }))

	inv.History.Push(AccrualEntry{Amount: Money("1")})

	require.NoError(t, s.Transact(ctx, func(tx Tx) error {
		stored, err := tx.Investment("i1")
		require.NoError(t, err)
		assert.Equal(t, 0, stored.History.Len())
		return nil
	}))
}

func TestMemoryListActiveInvestmentIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := NewInvestment("b", "u1", "a1", Money("10"), 1, epoch)
	b := NewInvestment("a", "u1", "a1", Money("10"), 1, epoch)
	c := NewInvestment("c", "u1", "a1", Money("10"), 1, epoch.Add(-1))
	done := NewInvestment("d", "u1", "a1", Money("10"), 1, epoch)
	require.NoError(t, done.Mature(epoch))
	require.NoError(t, s.Transact(ctx, func(tx Tx) error {
		for _, inv := range []Investment{a, b, c, done} {
			if err := tx.CreateInvestment(inv); err != nil {
				return err
			}
		}
		return nil
	}))

	ids, err := s.ListActiveInvestmentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestMemoryCatalogCounters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutAsset(Asset{ID: "a1", Name: "Gold", IsActive: true})
	s.PutAsset(Asset{ID: "a2", Name: "Oil"})

	require.NoError(t, s.RecordInvestment(ctx, "a1", Money("100")))
	require.NoError(t, s.RecordInvestment(ctx, "a1", Money("50")))
	require.NoError(t, s.AppendReturn(ctx, "a1", AssetReturnEntry{Percentage: Money("1"), ActiveInvestments: 2}))

	a, err := s.Asset(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, a.TotalInvestors)
	assert.True(t, a.TotalInvestmentAmount.Equal(Money("150")))
	assert.Equal(t, 1, a.ReturnHistory.Len())

	active, err := s.ActiveAssets(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)
}

func TestMemoryFailHook(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetFailHook(func(op, id string) error {
		if op == "create_user" {
			return ErrTransient
		}
		return nil
	})
	err := s.Transact(ctx, func(tx Tx) error { return tx.CreateUser(User{ID: "u1"}) })
	assert.True(t, IsTransient(err))
}
