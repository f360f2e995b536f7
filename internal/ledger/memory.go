package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store and Catalog. Transactions are applied
// under a single lock, which serializes them completely. Intended for tests
// and local development.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]User
	investments map[string]Investment
	referrals   map[string]Referral
	assets      map[string]Asset
	failHook    func(op, id string) error
}

var _ Store = (*MemoryStore)(nil)
var _ Catalog = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]User),
		investments: make(map[string]Investment),
		referrals:   make(map[string]Referral),
		assets:      make(map[string]Asset),
	}
}

// SetFailHook installs a function consulted before every write; a non-nil
// result fails that write. Used to simulate store outages.
func (s *MemoryStore) SetFailHook(fn func(op, id string) error) {
	s.mu.Lock()
	s.failHook = fn
	s.mu.Unlock()
}

// PutAsset inserts or replaces a catalog entry.
func (s *MemoryStore) PutAsset(a Asset) {
	s.mu.Lock()
	s.assets[a.ID] = cloneAsset(a)
	s.mu.Unlock()
}

func (s *MemoryStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:           s,
		users:       make(map[string]User),
		investments: make(map[string]Investment),
		referrals:   make(map[string]Referral),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, u := range tx.users {
		s.users[id] = u
	}
	for id, inv := range tx.investments {
		s.investments[id] = inv
	}
	for id, r := range tx.referrals {
		s.referrals[id] = r
	}
	return nil
}

func (s *MemoryStore) User(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) ListActiveInvestmentIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := make([]Investment, 0, len(s.investments))
	for _, inv := range s.investments {
		if inv.Status == InvestmentActive {
			active = append(active, inv)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	ids := make([]string, len(active))
	for i, inv := range active {
		ids[i] = inv.ID
	}
	return ids, nil
}

func (s *MemoryStore) ListReferralIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.referrals))
	for id := range s.referrals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListReferralsByReferrer(_ context.Context, referrerID string) ([]Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Referral
	for _, r := range s.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, cloneReferral(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Catalog implementation ------------------------------------------------------

func (s *MemoryStore) Asset(_ context.Context, id string) (Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return cloneAsset(a), nil
}

func (s *MemoryStore) ActiveAssets(_ context.Context) ([]Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Asset
	for _, a := range s.assets {
		if a.IsActive {
			out = append(out, cloneAsset(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) RecordInvestment(_ context.Context, assetID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("record_investment", assetID); err != nil {
		return err
	}
	a, ok := s.assets[assetID]
	if !ok {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	a.TotalInvestors++
	a.TotalInvestmentAmount = a.TotalInvestmentAmount.Add(amount)
	s.assets[assetID] = a
	return nil
}

func (s *MemoryStore) AppendReturn(_ context.Context, assetID string, entry AssetReturnEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("append_return", assetID); err != nil {
		return err
	}
	a, ok := s.assets[assetID]
	if !ok {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	a.ReturnHistory = a.ReturnHistory.Clone()
	a.ReturnHistory.Push(entry)
	s.assets[assetID] = a
	return nil
}

func (s *MemoryStore) fail(op, id string) error {
	if s.failHook == nil {
		return nil
	}
	return s.failHook(op, id)
}

// memTx stages writes until the surrounding Transact commits.
type memTx struct {
	s           *MemoryStore
	users       map[string]User
	investments map[string]Investment
	referrals   map[string]Referral
}

func (t *memTx) User(id string) (User, error) {
	if u, ok := t.users[id]; ok {
		return u, nil
	}
	if u, ok := t.s.users[id]; ok {
		return u, nil
	}
	return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
}

func (t *memTx) UserByReferralCode(code string) (User, error) {
	for _, u := range t.users {
		if u.ReferralCode == code {
			return u, nil
		}
	}
	for id, u := range t.s.users {
		if _, staged := t.users[id]; staged {
			continue
		}
		if u.ReferralCode == code {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("referral code %q: %w", code, ErrNotFound)
}

func (t *memTx) CreateUser(u User) error {
	if err := t.s.fail("create_user", u.ID); err != nil {
		return err
	}
	if _, err := t.User(u.ID); err == nil {
		return fmt.Errorf("user %s exists: %w", u.ID, ErrInvalidState)
	}
	if other, err := t.UserByReferralCode(u.ReferralCode); err == nil && other.ID != u.ID {
		return fmt.Errorf("referral code %q taken: %w", u.ReferralCode, ErrInvalidState)
	}
	t.users[u.ID] = u
	return nil
}

func (t *memTx) SaveUser(u User) error {
	if err := t.s.fail("save_user", u.ID); err != nil {
		return err
	}
	if _, err := t.User(u.ID); err != nil {
		return err
	}
	t.users[u.ID] = u
	return nil
}

func (t *memTx) Investment(id string) (Investment, error) {
	if inv, ok := t.investments[id]; ok {
		return cloneInvestment(inv), nil
	}
	if inv, ok := t.s.investments[id]; ok {
		return cloneInvestment(inv), nil
	}
	return Investment{}, fmt.Errorf("investment %s: %w", id, ErrNotFound)
}

func (t *memTx) CreateInvestment(inv Investment) error {
	if err := t.s.fail("create_investment", inv.ID); err != nil {
		return err
	}
	if _, err := t.Investment(inv.ID); err == nil {
		return fmt.Errorf("investment %s exists: %w", inv.ID, ErrInvalidState)
	}
	t.investments[inv.ID] = cloneInvestment(inv)
	return nil
}

func (t *memTx) SaveInvestment(inv Investment) error {
	if err := t.s.fail("save_investment", inv.ID); err != nil {
		return err
	}
	if _, err := t.Investment(inv.ID); err != nil {
		return err
	}
	t.investments[inv.ID] = cloneInvestment(inv)
	return nil
}

func (t *memTx) Referral(referrerID, referredID string) (Referral, error) {
	for _, r := range t.referrals {
		if r.ReferrerID == referrerID && r.ReferredID == referredID {
			return cloneReferral(r), nil
		}
	}
	for id, r := range t.s.referrals {
		if _, staged := t.referrals[id]; staged {
			continue
		}
		if r.ReferrerID == referrerID && r.ReferredID == referredID {
			return cloneReferral(r), nil
		}
	}
	return Referral{}, fmt.Errorf("referral %s->%s: %w", referrerID, referredID, ErrNotFound)
}

func (t *memTx) ReferralByID(id string) (Referral, error) {
	if r, ok := t.referrals[id]; ok {
		return cloneReferral(r), nil
	}
	if r, ok := t.s.referrals[id]; ok {
		return cloneReferral(r), nil
	}
	return Referral{}, fmt.Errorf("referral %s: %w", id, ErrNotFound)
}

func (t *memTx) CreateReferral(r Referral) error {
	if err := t.s.fail("create_referral", r.ID); err != nil {
		return err
	}
	if _, err := t.Referral(r.ReferrerID, r.ReferredID); err == nil {
		return fmt.Errorf("referral %s->%s exists: %w", r.ReferrerID, r.ReferredID, ErrInvalidState)
	}
	t.referrals[r.ID] = cloneReferral(r)
	return nil
}

func (t *memTx) SaveReferral(r Referral) error {
	if err := t.s.fail("save_referral", r.ID); err != nil {
		return err
	}
	if _, err := t.ReferralByID(r.ID); err != nil {
		return err
	}
	t.referrals[r.ID] = cloneReferral(r)
	return nil
}

func cloneInvestment(inv Investment) Investment {
	inv.History = inv.History.Clone()
	return inv
}

func cloneReferral(r Referral) Referral {
	r.Earnings = r.Earnings.Clone()
	r.MonthlyHistory = r.MonthlyHistory.Clone()
	return r
}

func cloneAsset(a Asset) Asset {
	a.ReturnHistory = a.ReturnHistory.Clone()
	return a
}
