// Package synapse provides a Go SDK for the synapse-server HTTP API.
package synapse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a synapse-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server. Code is the stable wire
// code, for example "POSITION_NOT_FOUND".
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("synapse: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// InitializeParams configures the market. Accepted once per deployment.
type InitializeParams struct {
	Admin                string `json:"admin"`
	Treasury             string `json:"treasury"`
	MinCollateral        int64  `json:"min_collateral"`
	MaxLeverage          uint32 `json:"max_leverage"`
	MaintenanceMarginBPS int64  `json:"maintenance_margin_bps"`
	FundingInterval      int64  `json:"funding_interval"`
	StalenessWindow      int64  `json:"staleness_window,omitempty"`
	PriceDecimals        int    `json:"price_decimals,omitempty"`
	OracleRef            string `json:"oracle_ref,omitempty"`
}

// MarketConfig is the market configuration as served by the API.
type MarketConfig struct {
	Admin                string `json:"admin"`
	Treasury             string `json:"treasury"`
	MinCollateral        int64  `json:"min_collateral"`
	MaxLeverage          uint32 `json:"max_leverage"`
	MaintenanceMarginBPS int64  `json:"maintenance_margin_bps"`
	FundingInterval      int64  `json:"funding_interval"`
	StalenessWindow      int64  `json:"staleness_window"`
	PriceDecimals        int    `json:"price_decimals"`
	OracleRef            string `json:"oracle_ref"`
	Active               bool   `json:"active"`
}

// Position is a ledger entry. Size is signed: positive for long, negative
// for short.
type Position struct {
	ID         uint64 `json:"id"`
	Account    string `json:"account"`
	Asset      string `json:"asset"`
	Size       int64  `json:"size"`
	Collateral int64  `json:"collateral"`
	EntryPrice int64  `json:"entry_price"`
	Leverage   uint32 `json:"leverage"`
	OpenedAt   int64  `json:"opened_at"`
	IsOpen     bool   `json:"is_open"`
}

// OpenParams opens a leveraged position.
type OpenParams struct {
	Account    string `json:"account"`
	Asset      string `json:"asset"`
	Size       int64  `json:"size"`
	Leverage   uint32 `json:"leverage"`
	Collateral int64  `json:"collateral"`
}

// CloseResult is the realised outcome of a close.
type CloseResult struct {
	PositionID uint64 `json:"position_id"`
	Account    string `json:"account"`
	PnL        int64  `json:"pnl"`
	Settlement int64  `json:"settlement"`
	ClosePrice int64  `json:"close_price"`
}

// LiquidationResult is a completed liquidation.
type LiquidationResult struct {
	PositionID uint64 `json:"position_id"`
	Account    string `json:"account"`
	Forfeited  int64  `json:"forfeited"`
	Treasury   string `json:"treasury"`
	MarkPrice  int64  `json:"mark_price"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Initialize configures the market. Fails with ALREADY_INITIALIZED after the
// first successful call.
func (c *Client) Initialize(ctx context.Context, p InitializeParams) (*MarketConfig, error) {
	var cfg MarketConfig
	if err := c.do(ctx, http.MethodPost, "/api/market/initialize", p, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Config returns the market configuration.
func (c *Client) Config(ctx context.Context) (*MarketConfig, error) {
	var cfg MarketConfig
	if err := c.do(ctx, http.MethodGet, "/api/market/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetOracle updates the oracle reference. The caller must be the admin
// account from initialization.
func (c *Client) SetOracle(ctx context.Context, caller, oracleRef string) (*MarketConfig, error) {
	body := map[string]string{"caller": caller, "oracle_ref": oracleRef}
	var cfg MarketConfig
	if err := c.do(ctx, http.MethodPut, "/api/market/oracle", body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// OpenPosition opens a position and returns its ID.
func (c *Client) OpenPosition(ctx context.Context, p OpenParams) (uint64, error) {
	var resp struct {
		PositionID uint64 `json:"position_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/positions", p, &resp); err != nil {
		return 0, err
	}
	return resp.PositionID, nil
}

// ClosePosition closes an open position at the current oracle price.
func (c *Client) ClosePosition(ctx context.Context, id uint64) (*CloseResult, error) {
	var res CloseResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/positions/%d/close", id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LiquidatePosition liquidates an underwater position. Any caller may
// trigger a liquidation.
func (c *Client) LiquidatePosition(ctx context.Context, id uint64) (*LiquidationResult, error) {
	var res LiquidationResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/positions/%d/liquidate", id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Position returns a position by ID, open or closed.
func (c *Client) Position(ctx context.Context, id uint64) (*Position, error) {
	var pos Position
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/positions/%d", id), nil, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// AccountPositions returns every position ID the account has opened.
func (c *Client) AccountPositions(ctx context.Context, account string) ([]uint64, error) {
	var resp struct {
		PositionIDs []uint64 `json:"position_ids"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/accounts/"+account+"/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.PositionIDs, nil
}

// OpenCount returns the number of currently open positions.
func (c *Client) OpenCount(ctx context.Context) (uint64, error) {
	var resp struct {
		Open uint64 `json:"open"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/positions/open-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Open, nil
}

// do issues one request and decodes the JSON response into out. Non-2xx
// responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.Unmarshal(data, &e); err != nil || e.Code == "" {
			e.Code = "INTERNAL"
			e.Error = string(data)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: e.Code, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
