// Package xrcclient is an HTTP adapter for the exchange-rate collaborator
// spec.md §6 calls "Exchange rate: get_exchange_rate({base:"BTC",
// quote:"USD", timestamp:...})". Transport to the real rate provider is an
// explicit Non-goal; this client is the thin JSON seam oracle.Driver dials
// through, grounded on native/swap's CoinGeckoOracle/NowPaymentsOracle
// adapters — a plain http.Client plus a narrow response struct, no
// generated stubs.
package xrcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"talvault/numeric"
)

// HTTPDoer is satisfied by *http.Client; narrowed so tests can inject a
// fake round-tripper.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client dials the exchange-rate collaborator's get_exchange_rate
// endpoint over HTTP.
type Client struct {
	http     HTTPDoer
	endpoint string
}

// New constructs a Client against endpoint. A nil http.Client defaults to
// a 10s-timeout client, matching swapd's adapter registry default.
func New(httpClient HTTPDoer, endpoint string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient, endpoint: strings.TrimSuffix(strings.TrimSpace(endpoint), "/")}
}

type exchangeRateResponse struct {
	RateE8S   string `json:"rate_e8s"`
	Decimals  uint32 `json:"decimals"`
	Timestamp int64  `json:"timestamp"`
}

// GetExchangeRate fetches the BTC/USD quote as of asOf, matching
// oracle.Client's interface. Mirrors management.rs's
// get_exchange_rate({base:"BTC", quote:"USD", timestamp:Some(asOf)}).
func (c *Client) GetExchangeRate(ctx context.Context, asOf time.Time) (numeric.UsdBtc, uint32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/get_exchange_rate", nil)
	if err != nil {
		return numeric.UsdBtc{}, 0, fmt.Errorf("xrcclient: build request: %w", err)
	}
	values := url.Values{}
	values.Set("base", "BTC")
	values.Set("quote", "USD")
	values.Set("timestamp", strconv.FormatInt(asOf.Unix(), 10))
	req.URL.RawQuery = values.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return numeric.UsdBtc{}, 0, fmt.Errorf("xrcclient: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return numeric.UsdBtc{}, 0, fmt.Errorf("xrcclient: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload exchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return numeric.UsdBtc{}, 0, fmt.Errorf("xrcclient: decode: %w", err)
	}

	rateE8S := strings.TrimSpace(payload.RateE8S)
	d, err := decimal.NewFromString(rateE8S)
	if err != nil {
		return numeric.UsdBtc{}, 0, fmt.Errorf("xrcclient: invalid rate %q: %w", payload.RateE8S, err)
	}
	scale := decimal.New(1, int32(payload.Decimals))
	rate := numeric.NewUsdBtc(d.Div(scale))
	return rate, payload.Decimals, nil
}
