package ledger

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier classifies a referrer by how many users they brought in.
type Tier string

const (
	TierBronze  Tier = "bronze"
	TierSilver  Tier = "silver"
	TierGold    Tier = "gold"
	TierDiamond Tier = "diamond"
)

// Referral count thresholds, inclusive.
const (
	silverFrom  = 5
	goldFrom    = 12
	diamondFrom = 25
)

// TierFor maps a referral count to its tier. Pure; negative counts are bronze.
func TierFor(count int) Tier {
	switch {
	case count >= diamondFrom:
		return TierDiamond
	case count >= goldFrom:
		return TierGold
	case count >= silverFrom:
		return TierSilver
	}
	return TierBronze
}

// Percentage is the share of a referred user's accrual paid to the referrer.
func (t Tier) Percentage() decimal.Decimal {
	switch t {
	case TierSilver:
		return decimal.NewFromInt(50)
	case TierGold:
		return decimal.NewFromInt(70)
	case TierDiamond:
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(30)
}

func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierDiamond:
		return true
	}
	return false
}

func (t Tier) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("tier %q: %w", string(t), ErrInvalidState)
	}
	return string(t), nil
}

func (t *Tier) Scan(src interface{}) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	tier := Tier(v)
	if !tier.Valid() {
		return fmt.Errorf("tier %q: %w", v, ErrInvalidState)
	}
	*t = tier
	return nil
}
