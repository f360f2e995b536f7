package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// User holds identity, balances and the referral position of an account.
type User struct {
	ID              string          `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Email           string          `json:"email" gorm:"index"`
	ReferralCode    string          `json:"ref_code" gorm:"uniqueIndex;size:16;not null"`
	MainBalance     decimal.Decimal `json:"main_balance" gorm:"type:numeric(36,18);not null;default:0"`
	ReferralBalance decimal.Decimal `json:"referral_balance" gorm:"type:numeric(36,18);not null;default:0"`
	ReferralCount   int             `json:"referral_count" gorm:"not null;default:0"`
	ReferralTier    Tier            `json:"referral_tier" gorm:"type:varchar(16);not null;default:'bronze'"`
	ReferredBy      *string         `json:"referred_by,omitempty" gorm:"type:uuid;index"` // Upstream referrer, set once
}

// Credit adds a non-negative amount to the spendable balance.
func (u *User) Credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit %s: %w", amount, ErrInvalidAmount)
	}
	u.MainBalance = u.MainBalance.Add(amount)
	return nil
}

// Debit removes amount from the spendable balance, never below zero.
func (u *User) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit %s: %w", amount, ErrInvalidAmount)
	}
	if u.MainBalance.LessThan(amount) {
		return fmt.Errorf("debit %s of %s: %w", amount, u.MainBalance, ErrInsufficientBalance)
	}
	u.MainBalance = u.MainBalance.Sub(amount)
	return nil
}

// CreditReward adds a referral reward to the reward balance.
func (u *User) CreditReward(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("reward %s: %w", amount, ErrInvalidAmount)
	}
	u.ReferralBalance = u.ReferralBalance.Add(amount)
	return nil
}

// WithdrawRewards moves amount from the reward balance into the spendable balance.
func (u *User) WithdrawRewards(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw %s: %w", amount, ErrInvalidAmount)
	}
	if u.ReferralBalance.LessThan(amount) {
		return fmt.Errorf("withdraw %s of %s: %w", amount, u.ReferralBalance, ErrInsufficientBalance)
	}
	u.ReferralBalance = u.ReferralBalance.Sub(amount)
	u.MainBalance = u.MainBalance.Add(amount)
	return nil
}

// SetReferrer links the user to its upstream referrer. It can happen once.
func (u *User) SetReferrer(referrerID string) error {
	if u.ReferredBy != nil {
		return fmt.Errorf("user %s already referred by %s: %w", u.ID, *u.ReferredBy, ErrInvalidState)
	}
	if referrerID == u.ID {
		return fmt.Errorf("user %s cannot refer itself: %w", u.ID, ErrInvalidCode)
	}
	u.ReferredBy = &referrerID
	return nil
}

// AddReferral bumps the referral count and refreshes the tier.
func (u *User) AddReferral() {
	u.ReferralCount++
	u.ReferralTier = TierFor(u.ReferralCount)
}

// AccrualEntry records one tick of value growth on an investment.
type AccrualEntry struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"` // Per-tick percentage applied
	Value      decimal.Decimal `json:"value"`      // Current value after the tick
	At         time.Time       `json:"at"`
}

// Investment is a time-bounded position on a catalog asset.
type Investment struct {
	ID             string               `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt      time.Time            `json:"created_at"`
	UserID         string               `json:"user_id" gorm:"type:uuid;index;not null"`
	AssetID        string               `json:"asset_id" gorm:"type:uuid;index;not null"`
	InvestedAmount decimal.Decimal      `json:"invested_amount" gorm:"type:numeric(36,18);not null"`
	CurrentValue   decimal.Decimal      `json:"current_value" gorm:"type:numeric(36,18);not null"`
	TotalReturns   decimal.Decimal      `json:"total_returns" gorm:"type:numeric(36,18);not null;default:0"`
	Status         InvestmentStatus     `json:"status" gorm:"type:varchar(16);index;not null;default:'active'"`
	MaturityDate   time.Time            `json:"maturity_date" gorm:"not null"`
	LastUpdated    time.Time            `json:"last_updated"`
	History        Capped[AccrualEntry] `json:"history" gorm:"type:jsonb"`
	CashOutDate    *time.Time           `json:"cash_out_date,omitempty"`
	PenaltyAmount  decimal.Decimal      `json:"penalty_amount" gorm:"type:numeric(36,18);not null;default:0"`
	FinalAmount    decimal.Decimal      `json:"final_amount" gorm:"type:numeric(36,18);not null;default:0"`
	SettledAt      *time.Time           `json:"settled_at,omitempty"` // Set once the payout reached the user
}

// NewInvestment opens an active position maturing maturityDays after now.
func NewInvestment(id, userID, assetID string, amount decimal.Decimal, maturityDays int, now time.Time) Investment {
	return Investment{
		ID:             id,
		CreatedAt:      now,
		UserID:         userID,
		AssetID:        assetID,
		InvestedAmount: amount,
		CurrentValue:   amount,
		TotalReturns:   decimal.Zero,
		Status:         InvestmentActive,
		MaturityDate:   now.Add(time.Duration(maturityDays) * day),
		LastUpdated:    now,
		History:        NewCapped[AccrualEntry](HistoryCap),
	}
}

// DaysLeft is ceil((maturity - now) / 1 day), floored at zero.
func (i Investment) DaysLeft(now time.Time) int {
	left := i.MaturityDate.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(day)))
}

// Accrue grows the current value by amount. Only active investments accrue.
func (i *Investment) Accrue(amount, tickPct decimal.Decimal, now time.Time) error {
	if i.Status != InvestmentActive {
		return fmt.Errorf("accrue investment %s in status %s: %w", i.ID, i.Status, ErrInvalidState)
	}
	if amount.IsNegative() {
		return fmt.Errorf("accrue %s on investment %s: %w", amount, i.ID, ErrInvalidAmount)
	}
	i.CurrentValue = i.CurrentValue.Add(amount)
	i.TotalReturns = i.CurrentValue.Sub(i.InvestedAmount)
	i.LastUpdated = now
	i.History.Push(AccrualEntry{Amount: amount, Percentage: tickPct, Value: i.CurrentValue, At: now})
	return nil
}

// Mature moves an active investment to matured without paying it out.
func (i *Investment) Mature(now time.Time) error {
	if i.Status != InvestmentActive {
		return fmt.Errorf("mature investment %s in status %s: %w", i.ID, i.Status, ErrInvalidState)
	}
	i.Status = InvestmentMatured
	i.LastUpdated = now
	return nil
}

// Claimable reports whether a payout can still be taken from this investment.
func (i Investment) Claimable() bool {
	switch i.Status {
	case InvestmentActive:
		return true
	case InvestmentMatured:
		return i.SettledAt == nil
	}
	return false
}

// EarningEntry is one credit recorded on a referral relationship.
type EarningEntry struct {
	Kind           EarningKind     `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	InvestmentID   string          `json:"investment_id,omitempty"`
	AssetName      string          `json:"asset_name,omitempty"`
	ReturnAmount   decimal.Decimal `json:"return_amount"`   // Per-tick return that produced the reward
	TierPercentage decimal.Decimal `json:"tier_percentage"` // Zero for bonuses
	At             time.Time       `json:"at"`
}

// MonthlyEarning is the closed total of one calendar month.
type MonthlyEarning struct {
	Period string          `json:"period"` // YYYY-MM
	Amount decimal.Decimal `json:"amount"`
}

// Referral links a referrer to a user who signed up with its code.
type Referral struct {
	ID                  string                 `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt           time.Time              `json:"created_at"`
	ReferrerID          string                 `json:"referrer_id" gorm:"type:uuid;uniqueIndex:idx_referral_pair;not null"`
	ReferredID          string                 `json:"referred_id" gorm:"type:uuid;uniqueIndex:idx_referral_pair;not null"`
	Status              ReferralStatus         `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	TotalEarnings       decimal.Decimal        `json:"total_earnings" gorm:"type:numeric(36,18);not null;default:0"`
	MonthlyEarnings     decimal.Decimal        `json:"monthly_earnings" gorm:"type:numeric(36,18);not null;default:0"`
	MonthlyHistory      Capped[MonthlyEarning] `json:"monthly_history" gorm:"type:jsonb"`
	Earnings            Capped[EarningEntry]   `json:"earnings" gorm:"type:jsonb"`
	FirstInvestmentDate *time.Time             `json:"first_investment_date,omitempty"`
	LastActiveDate      *time.Time             `json:"last_active_date,omitempty"`
	LastRolledPeriod    string                 `json:"last_rolled_period,omitempty"`
}

func NewReferral(id, referrerID, referredID string, now time.Time) Referral {
	return Referral{
		ID:             id,
		CreatedAt:      now,
		ReferrerID:     referrerID,
		ReferredID:     referredID,
		Status:         ReferralPending,
		MonthlyHistory: NewCapped[MonthlyEarning](HistoryCap),
		Earnings:       NewCapped[EarningEntry](HistoryCap),
	}
}

// Activate performs the only forward transition, pending -> active.
// It reports false when the referral was not pending.
func (r *Referral) Activate(now time.Time) bool {
	if r.Status != ReferralPending {
		return false
	}
	r.Status = ReferralActive
	r.FirstInvestmentDate = &now
	r.LastActiveDate = &now
	return true
}

// Earn records a reward credited to the referrer.
func (r *Referral) Earn(e EarningEntry) {
	r.Earnings.Push(e)
	r.TotalEarnings = r.TotalEarnings.Add(e.Amount)
	r.MonthlyEarnings = r.MonthlyEarnings.Add(e.Amount)
	at := e.At
	r.LastActiveDate = &at
}

// Note records an entry without touching the referrer's totals.
func (r *Referral) Note(e EarningEntry) {
	r.Earnings.Push(e)
}

// Roll closes the monthly total into history. It reports false when period
// was already rolled.
func (r *Referral) Roll(period string) bool {
	if r.LastRolledPeriod == period {
		return false
	}
	r.MonthlyHistory.Push(MonthlyEarning{Period: period, Amount: r.MonthlyEarnings})
	r.MonthlyEarnings = decimal.Zero
	r.LastRolledPeriod = period
	return true
}

// AssetReturnEntry records one tick of an asset's return stream.
type AssetReturnEntry struct {
	Percentage        decimal.Decimal `json:"percentage"`
	ActiveInvestments int             `json:"active_investments"`
	At                time.Time       `json:"at"`
}

// Asset is a catalog entry. The engine reads its terms and maintains the
// counters and return history.
type Asset struct {
	ID                     string                   `json:"id" gorm:"primaryKey;type:uuid"`
	Name                   string                   `json:"name" gorm:"not null"`
	HourlyReturnPercentage decimal.Decimal          `json:"hourly_return_percentage" gorm:"type:numeric(18,8);not null"`
	MinInvestment          decimal.Decimal          `json:"min_investment" gorm:"type:numeric(36,18);not null;default:0"`
	MaturityDays           int                      `json:"maturity_days" gorm:"not null"`
	IsActive               bool                     `json:"is_active" gorm:"index;not null;default:true"`
	TotalInvestors         int64                    `json:"total_investors" gorm:"not null;default:0"`
	TotalInvestmentAmount  decimal.Decimal          `json:"total_investment_amount" gorm:"type:numeric(36,18);not null;default:0"`
	ReturnHistory          Capped[AssetReturnEntry] `json:"return_history" gorm:"type:jsonb"`
}
