package ledger

import (
	"database/sql/driver"
	"fmt"
)

// InvestmentStatus is the lifecycle state of an Investment.
// matured and cashed_out are terminal.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentMatured   InvestmentStatus = "matured"
	InvestmentCashedOut InvestmentStatus = "cashed_out"
)

func (s InvestmentStatus) Valid() bool {
	switch s {
	case InvestmentActive, InvestmentMatured, InvestmentCashedOut:
		return true
	}
	return false
}

func (s InvestmentStatus) Terminal() bool {
	return s == InvestmentMatured || s == InvestmentCashedOut
}

func (s InvestmentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("investment status %q: %w", string(s), ErrInvalidState)
	}
	return string(s), nil
}

func (s *InvestmentStatus) Scan(src interface{}) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	st := InvestmentStatus(v)
	if !st.Valid() {
		return fmt.Errorf("investment status %q: %w", v, ErrInvalidState)
	}
	*s = st
	return nil
}

// ReferralStatus is the lifecycle state of a Referral.
// The engine only performs pending -> active; inactive is set by administrators.
type ReferralStatus string

const (
	ReferralPending  ReferralStatus = "pending"
	ReferralActive   ReferralStatus = "active"
	ReferralInactive ReferralStatus = "inactive"
)

func (s ReferralStatus) Valid() bool {
	switch s {
	case ReferralPending, ReferralActive, ReferralInactive:
		return true
	}
	return false
}

func (s ReferralStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("referral status %q: %w", string(s), ErrInvalidState)
	}
	return string(s), nil
}

func (s *ReferralStatus) Scan(src interface{}) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	st := ReferralStatus(v)
	if !st.Valid() {
		return fmt.Errorf("referral status %q: %w", v, ErrInvalidState)
	}
	*s = st
	return nil
}

// EarningKind tells ongoing accrual rewards apart from one-off bonuses.
type EarningKind string

const (
	EarningAccrual    EarningKind = "accrual"
	EarningSignup     EarningKind = "signup_bonus"
	EarningActivation EarningKind = "activation_bonus"
)

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("unsupported scan type %T", src)
}
