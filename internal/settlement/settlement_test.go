package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
)

var epoch = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, inv ledger.Investment) *ledger.MemoryStore {
	t.Helper()
	store := ledger.NewMemoryStore()
	require.NoError(t, store.Transact(context.Background(), func(tx ledger.Tx) error {
		if err := tx.CreateUser(ledger.User{ID: "u1", ReferralCode: "U1", MainBalance: ledger.Money("5")}); err != nil {
			return err
		}
		if err := tx.CreateUser(ledger.User{ID: "u2", ReferralCode: "U2"}); err != nil {
			return err
		}
		return tx.CreateInvestment(inv)
	}))
	return store
}

func grown(t *testing.T, days int, value string) ledger.Investment {
	inv := ledger.NewInvestment("i1", "u1", "gold", ledger.Money("1000"), days, epoch)
	extra := ledger.Money(value).Sub(inv.InvestedAmount)
	require.NoError(t, inv.Accrue(extra, ledger.Money("1"), epoch))
	return inv
}

func at(ts time.Time) Option { return WithClock(func() time.Time { return ts }) }

func TestEarlyCashOutAppliesPenalty(t *testing.T) {
	store := seed(t, grown(t, 30, "1100"))
	e := New(store, logging.Nop(), at(epoch.Add(time.Hour)))

	res, err := e.CashOut(context.Background(), "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, KindEarly, res.Kind)
	assert.True(t, res.Penalty.Equal(ledger.Money("418")))
	assert.True(t, res.Payout.Equal(ledger.Money("682")))
	assert.True(t, res.Balance.Equal(ledger.Money("687")))

	inv := res.Investment
	assert.Equal(t, ledger.InvestmentCashedOut, inv.Status)
	assert.True(t, inv.PenaltyAmount.Equal(ledger.Money("418")))
	assert.True(t, inv.FinalAmount.Equal(inv.CurrentValue.Mul(ledger.Money("0.62"))))
	require.NotNil(t, inv.CashOutDate)
	assert.Equal(t, epoch.Add(time.Hour), *inv.CashOutDate)
}

func TestCashOutAtMaturityPaysFullValue(t *testing.T) {
	store := seed(t, grown(t, 1, "1100"))
	e := New(store, logging.Nop(), at(epoch.Add(48*time.Hour)))

	res, err := e.CashOut(context.Background(), "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, KindMatured, res.Kind)
	assert.True(t, res.Penalty.IsZero())
	assert.True(t, res.Investment.FinalAmount.Equal(ledger.Money("1100")))
	assert.Equal(t, ledger.InvestmentMatured, res.Investment.Status)
	assert.True(t, res.Balance.Equal(ledger.Money("1105")))

	_, err = e.CashOut(context.Background(), "u1", "i1")
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestClaimEngineMaturedInvestment(t *testing.T) {
	inv := grown(t, 1, "1050")
	require.NoError(t, inv.Mature(epoch.Add(24*time.Hour)))
	store := seed(t, inv)
	e := New(store, logging.Nop(), at(epoch.Add(25*time.Hour)))

	res, err := e.CashOut(context.Background(), "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, KindClaim, res.Kind)
	assert.True(t, res.Penalty.IsZero())
	assert.True(t, res.Payout.Equal(ledger.Money("1050")))
	assert.Equal(t, ledger.InvestmentCashedOut, res.Investment.Status)

	_, err = e.CashOut(context.Background(), "u1", "i1")
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestCashOutRejectsTerminalAndForeignInvestments(t *testing.T) {
	store := seed(t, grown(t, 30, "1000"))
	e := New(store, logging.Nop(), at(epoch))

	_, err := e.CashOut(context.Background(), "u2", "i1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = e.CashOut(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = e.CashOut(context.Background(), "u1", "i1")
	require.NoError(t, err)
	_, err = e.CashOut(context.Background(), "u1", "i1")
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestFailedPayoutLeavesInvestmentActive(t *testing.T) {
	store := seed(t, grown(t, 30, "1000"))
	store.SetFailHook(func(op, id string) error {
		if op == "save_user" {
			return ledger.ErrTransient
		}
		return nil
	})
	e := New(store, logging.Nop(), at(epoch), WithRetry(2, time.Millisecond))

	_, err := e.CashOut(context.Background(), "u1", "i1")
	assert.True(t, ledger.IsTransient(err))

	require.NoError(t, store.Transact(context.Background(), func(tx ledger.Tx) error {
		inv, err := tx.Investment("i1")
		require.NoError(t, err)
		assert.Equal(t, ledger.InvestmentActive, inv.Status)
		return nil
	}))
}

func TestCustomPenaltyRate(t *testing.T) {
	store := seed(t, grown(t, 30, "1000"))
	e := New(store, logging.Nop(), at(epoch), WithPenaltyRate(ledger.Money("0.1")))
	res, err := e.CashOut(context.Background(), "u1", "i1")
	require.NoError(t, err)
	assert.True(t, res.Payout.Equal(ledger.Money("900")))

	bad := New(store, logging.Nop(), WithPenaltyRate(ledger.Money("1.5")))
	_, err = bad.CashOut(context.Background(), "u1", "i1")
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}
