package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
	"rewardengine/internal/metrics"
)

// DefaultPenaltyRate is the share of the current value kept on early exit.
var DefaultPenaltyRate = decimal.RequireFromString("0.38")

// Kind tells how an investment was settled.
type Kind string

const (
	KindMatured Kind = "matured" // Cashed out at or after maturity
	KindEarly   Kind = "early"   // Exited before maturity, penalty applied
	KindClaim   Kind = "claim"   // Payout of a position the engine already matured
)

type Result struct {
	Kind       Kind              `json:"kind"`
	Penalty    decimal.Decimal   `json:"penalty"`
	Payout     decimal.Decimal   `json:"payout"`
	Investment ledger.Investment `json:"investment"`
	Balance    decimal.Decimal   `json:"main_balance"`
}

type Engine struct {
	store       ledger.Store
	log         logging.Logger
	penaltyRate decimal.Decimal
	now         func() time.Time
	attempts    int
	delay       time.Duration
	metrics     *metrics.Collector
}

type Option func(*Engine)

func WithPenaltyRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.penaltyRate = rate }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(e *Engine) {
		e.attempts = attempts
		e.delay = delay
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

func New(store ledger.Store, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		log:         log,
		penaltyRate: DefaultPenaltyRate,
		now:         time.Now,
		attempts:    3,
		delay:       50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CashOut pays an investment out to its owner's main balance.
// The status check and transition happen in the same transaction as the
// payout, so a concurrent accrual tick cannot interleave.
func (e *Engine) CashOut(ctx context.Context, userID, investmentID string) (Result, error) {
	if e.penaltyRate.IsNegative() || e.penaltyRate.GreaterThan(decimal.NewFromInt(1)) {
		return Result{}, fmt.Errorf("penalty rate %s: %w", e.penaltyRate, ledger.ErrInvalidState)
	}
	var res Result
	err := ledger.Retry(ctx, e.attempts, e.delay, func() error {
		return e.store.Transact(ctx, func(tx ledger.Tx) error {
			r, err := e.settle(tx, userID, investmentID)
			res = r
			return err
		})
	})
	if err != nil {
		return Result{}, err
	}
	e.metrics.Settlement(string(res.Kind))
	e.log.Info("investment %s settled (%s): payout %s, penalty %s", investmentID, res.Kind, res.Payout, res.Penalty)
	return res, nil
}

func (e *Engine) settle(tx ledger.Tx, userID, investmentID string) (Result, error) {
	inv, err := tx.Investment(investmentID)
	if err != nil {
		return Result{}, err
	}
	if inv.UserID != userID {
		return Result{}, fmt.Errorf("investment %s of user %s: %w", investmentID, userID, ledger.ErrNotFound)
	}
	user, err := tx.User(userID)
	if err != nil {
		return Result{}, err
	}

	now := e.now()
	res := Result{Penalty: decimal.Zero, Payout: inv.CurrentValue}
	switch {
	case inv.Status == ledger.InvestmentActive && inv.DaysLeft(now) <= 0:
		res.Kind = KindMatured
		inv.Status = ledger.InvestmentMatured
	case inv.Status == ledger.InvestmentActive:
		res.Kind = KindEarly
		res.Penalty = inv.CurrentValue.Mul(e.penaltyRate).Round(ledger.MoneyScale)
		res.Payout = inv.CurrentValue.Sub(res.Penalty)
		inv.Status = ledger.InvestmentCashedOut
	case inv.Claimable():
		res.Kind = KindClaim
		inv.Status = ledger.InvestmentCashedOut
	default:
		return Result{}, fmt.Errorf("cash out investment %s in status %s: %w", investmentID, inv.Status, ledger.ErrInvalidState)
	}
	inv.SettledAt = &now
	inv.CashOutDate = &now
	inv.PenaltyAmount = res.Penalty
	inv.FinalAmount = res.Payout
	inv.LastUpdated = now

	if err := user.Credit(res.Payout); err != nil {
		return Result{}, err
	}
	user.UpdatedAt = now
	if err := tx.SaveInvestment(inv); err != nil {
		return Result{}, err
	}
	if err := tx.SaveUser(user); err != nil {
		return Result{}, err
	}
	res.Investment = inv
	res.Balance = user.MainBalance
	return res, nil
}
