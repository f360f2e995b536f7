package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"rewardengine/internal/app"
	"rewardengine/internal/ledger"
)

// Client talks to a remote asset catalog over HTTP.
//
//	GET  /assets?active=true
//	GET  /assets/{id}
//	POST /assets/{id}/investments  {"amount": "..."}
//	POST /assets/{id}/returns      AssetReturnEntry
type Client struct {
	http *resty.Client
}

var _ ledger.Catalog = (*Client)(nil)

func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(app.RemoveTrailingSlash(baseURL)).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// SetToken authenticates every request with a bearer token.
func (c *Client) SetToken(token string) *Client {
	c.http.SetAuthToken(token)
	return c
}

func (c *Client) Asset(ctx context.Context, id string) (ledger.Asset, error) {
	var a ledger.Asset
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&a).
		Get("/assets/{id}")
	if err := check(resp, err, "asset "+id); err != nil {
		return ledger.Asset{}, err
	}
	return a, nil
}

func (c *Client) ActiveAssets(ctx context.Context) ([]ledger.Asset, error) {
	var assets []ledger.Asset
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("active", "true").
		SetResult(&assets).
		Get("/assets")
	if err := check(resp, err, "active assets"); err != nil {
		return nil, err
	}
	return assets, nil
}

type investmentBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *Client) RecordInvestment(ctx context.Context, assetID string, amount decimal.Decimal) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", assetID).
		SetBody(investmentBody{Amount: amount}).
		Post("/assets/{id}/investments")
	return check(resp, err, "record investment on "+assetID)
}

func (c *Client) AppendReturn(ctx context.Context, assetID string, entry ledger.AssetReturnEntry) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", assetID).
		SetBody(entry).
		Post("/assets/{id}/returns")
	return check(resp, err, "append return on "+assetID)
}

// check maps transport failures and HTTP statuses onto ledger errors.
func check(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", what, ledger.ErrTransient, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", what, ledger.ErrNotFound)
	case code == http.StatusConflict:
		return fmt.Errorf("%s: %w", what, ledger.ErrInvalidState)
	case code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%s: status %d: %w", what, code, ledger.ErrTransient)
	case code >= 400:
		return fmt.Errorf("%s: status %d: %s", what, code, resp.String())
	}
	return nil
}
