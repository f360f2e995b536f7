package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
)

// Activator is told about every new investment so a pending referral
// can turn active.
type Activator interface {
	ActivateOnFirstInvestment(ctx context.Context, userID string) error
}

// Service opens investments.
type Service struct {
	store     ledger.Store
	catalog   ledger.Catalog
	activator Activator
	log       logging.Logger
	now       func() time.Time
	attempts  int
	delay     time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		s.attempts = attempts
		s.delay = delay
	}
}

func New(store ledger.Store, catalog ledger.Catalog, activator Activator, log logging.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		catalog:   catalog,
		activator: activator,
		log:       log,
		now:       time.Now,
		attempts:  3,
		delay:     50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invest debits amount from the user's main balance and opens an active
// investment on assetID. Catalog counters and referral activation follow
// the commit; their failures are logged, never returned.
func (s *Service) Invest(ctx context.Context, userID, assetID string, amount decimal.Decimal) (ledger.Investment, error) {
	asset, err := s.catalog.Asset(ctx, assetID)
	if err != nil {
		return ledger.Investment{}, err
	}
	if !asset.IsActive {
		return ledger.Investment{}, fmt.Errorf("asset %s is not open for investment: %w", assetID, ledger.ErrInvalidState)
	}
	if !amount.IsPositive() || amount.LessThan(asset.MinInvestment) {
		return ledger.Investment{}, fmt.Errorf("amount %s, minimum %s: %w", amount, asset.MinInvestment, ledger.ErrInvalidAmount)
	}

	var inv ledger.Investment
	err = ledger.Retry(ctx, s.attempts, s.delay, func() error {
		return s.store.Transact(ctx, func(tx ledger.Tx) error {
			user, err := tx.User(userID)
			if err != nil {
				return err
			}
			if err := user.Debit(amount); err != nil {
				return err
			}
			now := s.now()
			user.UpdatedAt = now
			inv = ledger.NewInvestment(ledger.NewID(), userID, assetID, amount, asset.MaturityDays, now)
			if err := tx.SaveUser(user); err != nil {
				return err
			}
			return tx.CreateInvestment(inv)
		})
	})
	if err != nil {
		return ledger.Investment{}, err
	}
	s.log.Info("user %s invested %s in %s (%s)", userID, amount, asset.Name, inv.ID)

	if err := s.catalog.RecordInvestment(ctx, assetID, amount); err != nil {
		s.log.Error("asset %s: counters not updated for investment %s: %v", assetID, inv.ID, err)
	}
	if s.activator != nil {
		if err := s.activator.ActivateOnFirstInvestment(ctx, userID); err != nil {
			s.log.Error("user %s: referral activation failed: %v", userID, err)
		}
	}
	return inv, nil
}
