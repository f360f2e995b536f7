package referral

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
)

// Event describes one accrual that may earn the investor's referrer a reward.
type Event struct {
	InvestorID   string
	InvestmentID string
	AssetName    string
	ReturnAmount decimal.Decimal
	At           time.Time
}

// Attributor credits referrers with their tier's share of a referred
// user's accrual. Only active referrals earn.
type Attributor struct {
	store ledger.Store
	log   logging.Logger
	opts  options
}

func NewAttributor(store ledger.Store, log logging.Logger, opts ...Option) *Attributor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Attributor{store: store, log: log, opts: o}
}

// Attribute runs the whole lookup-and-credit sequence in one transaction.
// Missing links and non-active referrals are not errors. Failures are
// returned unlogged; the caller knows what was kept.
func (a *Attributor) Attribute(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = a.opts.now()
	}
	var credited bool
	err := ledger.Retry(ctx, a.opts.attempts, a.opts.delay, func() error {
		credited = false
		return a.store.Transact(ctx, func(tx ledger.Tx) error {
			ok, err := attribute(tx, ev)
			credited = ok
			return err
		})
	})
	switch {
	case err != nil:
		a.opts.metrics.Attribution("failed")
	case credited:
		a.opts.metrics.Attribution("credited")
		a.log.Debug("investment %s: referrer of %s credited", ev.InvestmentID, ev.InvestorID)
	default:
		a.opts.metrics.Attribution("skipped")
	}
	return err
}

func attribute(tx ledger.Tx, ev Event) (bool, error) {
	investor, err := tx.User(ev.InvestorID)
	if err != nil {
		return false, err
	}
	if investor.ReferredBy == nil {
		return false, nil
	}
	referrer, err := tx.User(*investor.ReferredBy)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ref, err := tx.Referral(referrer.ID, investor.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ref.Status != ledger.ReferralActive {
		return false, nil
	}

	pct := ledger.TierFor(referrer.ReferralCount).Percentage()
	reward := ledger.Percent(ev.ReturnAmount, pct)
	if !reward.IsPositive() {
		return false, nil
	}
	if err := referrer.CreditReward(reward); err != nil {
		return false, err
	}
	ref.Earn(ledger.EarningEntry{
		Kind:           ledger.EarningAccrual,
		Amount:         reward,
		InvestmentID:   ev.InvestmentID,
		AssetName:      ev.AssetName,
		ReturnAmount:   ev.ReturnAmount,
		TierPercentage: pct,
		At:             ev.At,
	})
	if err := tx.SaveUser(referrer); err != nil {
		return false, err
	}
	if err := tx.SaveReferral(ref); err != nil {
		return false, err
	}
	return true, nil
}
