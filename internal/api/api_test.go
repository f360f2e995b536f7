package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardengine/internal/api/jwt"
	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
	"rewardengine/internal/portfolio"
	"rewardengine/internal/referral"
	"rewardengine/internal/settlement"
)

type harness struct {
	router *gin.Engine
	store  *ledger.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	store.PutAsset(ledger.Asset{ID: "gold", Name: "Gold", HourlyReturnPercentage: ledger.Money("1"), MinInvestment: ledger.Money("10"), MaturityDays: 30, IsActive: true})
	log := logging.Nop()
	refs := referral.NewManager(store, referral.DefaultSettings(), log)
	app := &App{
		Store:      store,
		Catalog:    store,
		Referrals:  refs,
		Portfolio:  portfolio.New(store, store, refs, log),
		Settlement: settlement.New(store, log),
		Log:        log,
	}
	router := gin.New()
	Register(router, app, nil)
	return &harness{router: router, store: store}
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) signup(t *testing.T, email, code string) signupResponse {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": email, "ref_code": code})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp signupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSignupAndMe(t *testing.T) {
	h := newHarness(t)
	resp := h.signup(t, "a@example.com", "")
	require.NotEmpty(t, resp.Token)

	rec := h.do(t, http.MethodGet, "/users/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me ledger.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, resp.User.ID, me.ID)
	assert.True(t, me.MainBalance.Equal(ledger.Money("1000")))
}

// lockedStore refuses every transaction, as if all rows were held by a tick.
type lockedStore struct {
	*ledger.MemoryStore
}

func (lockedStore) Transact(context.Context, func(tx ledger.Tx) error) error {
	return ledger.ErrTransient
}

func TestMeReadsWithoutTransaction(t *testing.T) {
	h := newHarness(t)
	resp := h.signup(t, "a@example.com", "")

	router := gin.New()
	Register(router, &App{Store: lockedStore{h.store}, Catalog: h.store, Log: logging.Nop()}, nil)
	token, err := jwt.GenerateJWT(resp.User.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSignupRejectsUnknownCode(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": "a@example.com", "ref_code": "NOPE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvestAndCashOut(t *testing.T) {
	h := newHarness(t)
	resp := h.signup(t, "a@example.com", "")

	rec := h.do(t, http.MethodPost, "/investments/", resp.Token, gin.H{"asset_id": "gold", "amount": "100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv ledger.Investment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))

	rec = h.do(t, http.MethodPost, "/investments/"+inv.ID+"/cashout", resp.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res settlement.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, settlement.KindEarly, res.Kind)
	assert.True(t, res.Payout.Equal(ledger.Money("62")))

	rec = h.do(t, http.MethodPost, "/investments/"+inv.ID+"/cashout", resp.Token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvestErrors(t *testing.T) {
	h := newHarness(t)
	resp := h.signup(t, "a@example.com", "")

	rec := h.do(t, http.MethodPost, "/investments/", resp.Token, gin.H{"asset_id": "gold", "amount": "5000"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	rec = h.do(t, http.MethodPost, "/investments/", resp.Token, gin.H{"asset_id": "gold", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/investments/", resp.Token, gin.H{"asset_id": "silver", "amount": "100"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodPost, "/investments/", "", gin.H{"asset_id": "gold", "amount": "100"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReferralsFlow(t *testing.T) {
	h := newHarness(t)
	referrer := h.signup(t, "ref@example.com", "")
	h.signup(t, "b@example.com", referrer.User.ReferralCode)
	late := h.signup(t, "c@example.com", "")

	rec := h.do(t, http.MethodPost, "/users/ref/apply", late.Token, gin.H{"code": referrer.User.ReferralCode})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/users/ref?size=1", referrer.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page PaginatedRef
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "/users/ref/?page=2&size=1", page.Next)

	rec = h.do(t, http.MethodPost, "/users/ref/withdraw", referrer.Token, gin.H{"amount": "1"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestAssets(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/assets/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var assets []ledger.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	require.Len(t, assets, 1)

	rec = h.do(t, http.MethodGet, "/assets/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	cases := map[error]int{
		ledger.ErrNotFound:            http.StatusNotFound,
		ledger.ErrInvalidState:        http.StatusConflict,
		ledger.ErrInvalidCode:         http.StatusBadRequest,
		ledger.ErrInvalidAmount:       http.StatusBadRequest,
		ledger.ErrInsufficientBalance: http.StatusPaymentRequired,
		ledger.ErrTransient:           http.StatusServiceUnavailable,
		errors.New("boom"):            http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, errorStatus(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestPaginateRef(t *testing.T) {
	refs := make([]ledger.Referral, 5)
	for i := range refs {
		refs[i] = ledger.NewReferral(fmt.Sprint(i), "a", fmt.Sprint(i), time.Unix(int64(i), 0))
	}

	p := paginateRef(refs, 2, 2)
	assert.Equal(t, 5, p.Count)
	require.Len(t, p.Results, 2)
	assert.Equal(t, "2", p.Results[0].ID)
	assert.Equal(t, "/users/ref/?page=3&size=2", p.Next)
	assert.Equal(t, "/users/ref/?page=1&size=2", p.Previous)

	p = paginateRef(refs, 3, 2)
	require.Len(t, p.Results, 1)
	assert.Empty(t, p.Next)

	p = paginateRef(refs, 4, 2)
	assert.Empty(t, p.Results)
}
