package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tx is a unit of work against the ledger. Records read through a Tx stay
// locked until the Tx commits or rolls back, so concurrent read-modify-write
// cycles on the same record are serialized.
type Tx interface {
	User(id string) (User, error)
	UserByReferralCode(code string) (User, error)
	CreateUser(u User) error
	SaveUser(u User) error

	Investment(id string) (Investment, error)
	CreateInvestment(inv Investment) error
	SaveInvestment(inv Investment) error

	Referral(referrerID, referredID string) (Referral, error)
	ReferralByID(id string) (Referral, error)
	CreateReferral(r Referral) error
	SaveReferral(r Referral) error
}

// Store persists users, investments and referrals. Transact runs fn
// atomically: either every write in fn is applied or none is.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
	// User reads a user without locking it. Use it for display only.
	User(ctx context.Context, id string) (User, error)
	ListActiveInvestmentIDs(ctx context.Context) ([]string, error)
	ListReferralIDs(ctx context.Context) ([]string, error)
	ListReferralsByReferrer(ctx context.Context, referrerID string) ([]Referral, error)
}

// Catalog is the asset catalog contract. Counters only ever grow.
type Catalog interface {
	Asset(ctx context.Context, id string) (Asset, error)
	ActiveAssets(ctx context.Context) ([]Asset, error)
	RecordInvestment(ctx context.Context, assetID string, amount decimal.Decimal) error
	AppendReturn(ctx context.Context, assetID string, entry AssetReturnEntry) error
}

// NewID returns an opaque record identifier.
func NewID() string {
	return uuid.NewString()
}
