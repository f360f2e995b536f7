package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed Store and Catalog. Reads inside a
// transaction take row locks (SELECT ... FOR UPDATE).
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)
var _ Catalog = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the ledger tables.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&User{}, &Investment{}, &Referral{}, &Asset{})
}

func (s *GormStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
	return classify(err)
}

func (s *GormStore) User(ctx context.Context, id string) (User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, classify(err))
	}
	return u, nil
}

func (s *GormStore) ListActiveInvestmentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	res := s.db.WithContext(ctx).
		Model(&Investment{}).
		Where("status = ?", InvestmentActive).
		Order("created_at, id").
		Pluck("id", &ids)
	return ids, classify(res.Error)
}

func (s *GormStore) ListReferralIDs(ctx context.Context) ([]string, error) {
	var ids []string
	res := s.db.WithContext(ctx).Model(&Referral{}).Order("id").Pluck("id", &ids)
	return ids, classify(res.Error)
}

func (s *GormStore) ListReferralsByReferrer(ctx context.Context, referrerID string) ([]Referral, error) {
	var refs []Referral
	res := s.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&refs)
	return refs, classify(res.Error)
}

func (s *GormStore) Asset(ctx context.Context, id string) (Asset, error) {
	var a Asset
	res := s.db.WithContext(ctx).Where("id = ?", id).First(&a)
	if res.Error != nil {
		return Asset{}, fmt.Errorf("asset %s: %w", id, classify(res.Error))
	}
	return a, nil
}

func (s *GormStore) ActiveAssets(ctx context.Context) ([]Asset, error) {
	var assets []Asset
	res := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&assets)
	return assets, classify(res.Error)
}

func (s *GormStore) RecordInvestment(ctx context.Context, assetID string, amount decimal.Decimal) error {
	res := s.db.WithContext(ctx).
		Model(&Asset{}).
		Where("id = ?", assetID).
		Updates(map[string]interface{}{
			"total_investors":         gorm.Expr("total_investors + 1"),
			"total_investment_amount": gorm.Expr("total_investment_amount + ?", amount),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) AppendReturn(ctx context.Context, assetID string, entry AssetReturnEntry) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a Asset
		res := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", assetID).
			First(&a)
		if res.Error != nil {
			return res.Error
		}
		a.ReturnHistory.Push(entry)
		return tx.Model(&a).Update("return_history", a.ReturnHistory).Error
	})
	return classify(err)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) locked() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) User(id string) (User, error) {
	var u User
	if err := t.locked().Where("id = ?", id).First(&u).Error; err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, classify(err))
	}
	return u, nil
}

func (t *gormTx) UserByReferralCode(code string) (User, error) {
	var u User
	if err := t.locked().Where("referral_code = ?", code).First(&u).Error; err != nil {
		return User{}, fmt.Errorf("referral code %q: %w", code, classify(err))
	}
	return u, nil
}

func (t *gormTx) CreateUser(u User) error {
	return classify(t.db.Create(&u).Error)
}

func (t *gormTx) SaveUser(u User) error {
	return classify(t.db.Save(&u).Error)
}

func (t *gormTx) Investment(id string) (Investment, error) {
	var inv Investment
	if err := t.locked().Where("id = ?", id).First(&inv).Error; err != nil {
		return Investment{}, fmt.Errorf("investment %s: %w", id, classify(err))
	}
	return inv, nil
}

func (t *gormTx) CreateInvestment(inv Investment) error {
	return classify(t.db.Create(&inv).Error)
}

func (t *gormTx) SaveInvestment(inv Investment) error {
	return classify(t.db.Save(&inv).Error)
}

func (t *gormTx) Referral(referrerID, referredID string) (Referral, error) {
	var r Referral
	err := t.locked().
		Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).
		First(&r).Error
	if err != nil {
		return Referral{}, fmt.Errorf("referral %s->%s: %w", referrerID, referredID, classify(err))
	}
	return r, nil
}

func (t *gormTx) ReferralByID(id string) (Referral, error) {
	var r Referral
	if err := t.locked().Where("id = ?", id).First(&r).Error; err != nil {
		return Referral{}, fmt.Errorf("referral %s: %w", id, classify(err))
	}
	return r, nil
}

func (t *gormTx) CreateReferral(r Referral) error {
	return classify(t.db.Create(&r).Error)
}

func (t *gormTx) SaveReferral(r Referral) error {
	return classify(t.db.Save(&r).Error)
}

// Postgres SQLSTATE codes the ledger cares about.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgConnectionClass      = "08"
)

// classify maps driver errors onto the ledger sentinels, keeping the
// original error in the chain. Errors already carrying a sentinel pass
// through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrNotFound, ErrInvalidState, ErrInvalidCode, ErrInsufficientBalance, ErrInvalidAmount, ErrTransient} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == pgConnectionClass:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
	}
	return err
}
