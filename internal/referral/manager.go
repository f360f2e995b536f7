package referral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/shopspring/decimal"

	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
)

const (
	codeLength   = 8
	codeAttempts = 5
)

var codeChars = []byte("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")

// Settings are the amounts the lifecycle manager credits.
type Settings struct {
	StartingBalance    decimal.Decimal `json:"startingBalance"`
	SignupBonus        decimal.Decimal `json:"signupBonus"`
	SignupBonusEnabled bool            `json:"signupBonusEnabled"`
	ActivationBonus    decimal.Decimal `json:"activationBonus"`
}

func DefaultSettings() Settings {
	return Settings{
		StartingBalance:    decimal.NewFromInt(1000),
		SignupBonus:        decimal.NewFromInt(10),
		SignupBonusEnabled: true,
		ActivationBonus:    decimal.Zero,
	}
}

// Manager owns the referral relationship: creating it when a code is
// applied, activating it on the first investment, and the periodic
// monthly rollover.
type Manager struct {
	store    ledger.Store
	log      logging.Logger
	opts     options
	mu       sync.RWMutex
	settings Settings
}

func NewManager(store ledger.Store, settings Settings, log logging.Logger, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{store: store, settings: settings, log: log, opts: o}
}

// Settings returns the amounts currently in effect.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings swaps the amounts used by later operations. Operations
// already running keep the values they started with.
func (m *Manager) UpdateSettings(s Settings) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

func (m *Manager) transact(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return ledger.Retry(ctx, m.opts.attempts, m.opts.delay, func() error {
		return m.store.Transact(ctx, fn)
	})
}

// Signup creates a user with the starting balance and a fresh referral
// code. A non-empty code links the user to its referrer in the same
// transaction; an unknown code creates nothing.
func (m *Manager) Signup(ctx context.Context, email, code string) (ledger.User, error) {
	var user ledger.User
	err := m.transact(ctx, func(tx ledger.Tx) error {
		now := m.opts.now()
		own, err := freeCode(tx)
		if err != nil {
			return err
		}
		user = ledger.User{
			ID:           ledger.NewID(),
			CreatedAt:    now,
			UpdatedAt:    now,
			Email:        email,
			ReferralCode: own,
			MainBalance:  m.Settings().StartingBalance,
			ReferralTier: ledger.TierBronze,
		}
		var (
			referrer ledger.User
			ref      ledger.Referral
		)
		if code != "" {
			if referrer, ref, err = m.link(tx, &user, code, now); err != nil {
				return err
			}
		}
		if err := tx.CreateUser(user); err != nil {
			return err
		}
		if code == "" {
			return nil
		}
		if err := tx.SaveUser(referrer); err != nil {
			return err
		}
		return tx.CreateReferral(ref)
	})
	if err != nil {
		return ledger.User{}, err
	}
	if code != "" {
		m.opts.metrics.Referral("applied")
	}
	m.log.Info("user %s signed up with code %s", user.ID, user.ReferralCode)
	return user, nil
}

// ApplyReferralCode links an existing user to the owner of code and
// creates a pending referral.
func (m *Manager) ApplyReferralCode(ctx context.Context, newUserID, code string) error {
	err := m.transact(ctx, func(tx ledger.Tx) error {
		user, err := tx.User(newUserID)
		if err != nil {
			return err
		}
		referrer, ref, err := m.link(tx, &user, code, m.opts.now())
		if err != nil {
			return err
		}
		if err := tx.SaveUser(user); err != nil {
			return err
		}
		if err := tx.SaveUser(referrer); err != nil {
			return err
		}
		return tx.CreateReferral(ref)
	})
	if err != nil {
		return err
	}
	m.opts.metrics.Referral("applied")
	m.log.Info("user %s applied referral code %s", newUserID, code)
	return nil
}

// link mutates user and returns the updated referrer and the new referral.
// Nothing is written.
func (m *Manager) link(tx ledger.Tx, user *ledger.User, code string, now time.Time) (ledger.User, ledger.Referral, error) {
	referrer, err := tx.UserByReferralCode(code)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.User{}, ledger.Referral{}, fmt.Errorf("code %q: %w", code, ledger.ErrInvalidCode)
	}
	if err != nil {
		return ledger.User{}, ledger.Referral{}, err
	}
	if err := user.SetReferrer(referrer.ID); err != nil {
		return ledger.User{}, ledger.Referral{}, err
	}
	referrer.AddReferral()
	referrer.UpdatedAt = now
	user.UpdatedAt = now

	ref := ledger.NewReferral(ledger.NewID(), referrer.ID, user.ID, now)
	settings := m.Settings()
	if settings.SignupBonusEnabled && settings.SignupBonus.IsPositive() {
		if err := user.Credit(settings.SignupBonus); err != nil {
			return ledger.User{}, ledger.Referral{}, err
		}
		ref.Note(ledger.EarningEntry{
			Kind:           ledger.EarningSignup,
			Amount:         settings.SignupBonus,
			ReturnAmount:   decimal.Zero,
			TierPercentage: decimal.Zero,
			At:             now,
		})
	}
	return referrer, ref, nil
}

// ActivateOnFirstInvestment moves the user's referral from pending to
// active. Calling it again is a no-op, so is calling it for a user
// without a referral.
func (m *Manager) ActivateOnFirstInvestment(ctx context.Context, userID string) error {
	var activated bool
	err := m.transact(ctx, func(tx ledger.Tx) error {
		activated = false
		user, err := tx.User(userID)
		if err != nil {
			return err
		}
		if user.ReferredBy == nil {
			return nil
		}
		ref, err := tx.Referral(*user.ReferredBy, user.ID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := m.opts.now()
		if !ref.Activate(now) {
			return nil
		}
		if bonus := m.Settings().ActivationBonus; bonus.IsPositive() {
			referrer, err := tx.User(ref.ReferrerID)
			switch {
			case errors.Is(err, ledger.ErrNotFound):
				m.log.Warn("referrer %s of user %s is gone, no activation bonus", ref.ReferrerID, userID)
			case err != nil:
				return err
			default:
				if err := referrer.CreditReward(bonus); err != nil {
					return err
				}
				referrer.UpdatedAt = now
				ref.Earn(ledger.EarningEntry{
					Kind:           ledger.EarningActivation,
					Amount:         bonus,
					ReturnAmount:   decimal.Zero,
					TierPercentage: decimal.Zero,
					At:             now,
				})
				if err := tx.SaveUser(referrer); err != nil {
					return err
				}
			}
		}
		activated = true
		return tx.SaveReferral(ref)
	})
	if err != nil {
		return err
	}
	if activated {
		m.opts.metrics.Referral("activated")
		m.log.Info("referral of user %s activated", userID)
	}
	return nil
}

// WithdrawReferralBalance moves amount of earned rewards into the
// spendable balance.
func (m *Manager) WithdrawReferralBalance(ctx context.Context, userID string, amount decimal.Decimal) (ledger.User, error) {
	var user ledger.User
	err := m.transact(ctx, func(tx ledger.Tx) error {
		u, err := tx.User(userID)
		if err != nil {
			return err
		}
		if err := u.WithdrawRewards(amount); err != nil {
			return err
		}
		u.UpdatedAt = m.opts.now()
		user = u
		return tx.SaveUser(u)
	})
	if err != nil {
		return ledger.User{}, err
	}
	return user, nil
}

// RollMonthlyEarnings closes period (YYYY-MM) on every referral. Each
// referral rolls in its own transaction; failures are logged and skipped.
// It returns how many referrals were rolled.
func (m *Manager) RollMonthlyEarnings(ctx context.Context, period string) (int, error) {
	if _, err := time.Parse(periodLayout, period); err != nil {
		return 0, fmt.Errorf("period %q: %w", period, err)
	}
	ids, err := m.store.ListReferralIDs(ctx)
	if err != nil {
		return 0, err
	}
	rolled := 0
	for _, id := range ids {
		var ok bool
		err := m.transact(ctx, func(tx ledger.Tx) error {
			ref, err := tx.ReferralByID(id)
			if err != nil {
				return err
			}
			if ok = ref.Roll(period); !ok {
				return nil
			}
			return tx.SaveReferral(ref)
		})
		if err != nil {
			m.log.Error("rollover of referral %s for %s failed: %v", id, period, err)
			continue
		}
		if ok {
			rolled++
			m.opts.metrics.Referral("rolled")
		}
	}
	m.log.Info("monthly rollover %s: %d of %d referrals", period, rolled, len(ids))
	return rolled, nil
}

const periodLayout = "2006-01"

// ClosingPeriod is the month that ended just before now.
func ClosingPeriod(now time.Time) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, -1, 0).Format(periodLayout)
}

func freeCode(tx ledger.Tx) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := uniuri.NewLenChars(codeLength, codeChars)
		_, err := tx.UserByReferralCode(code)
		if errors.Is(err, ledger.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free referral code after %d attempts: %w", codeAttempts, ledger.ErrInvalidState)
}
