// Package ledgerclient is an HTTP adapter for the two ICRC-1/ICRC-2 token
// ledger collaborators (spec.md §6: "Token ledger: transfer(...);
// transfer_from(...)"). Transport to the real ledger canisters is an
// explicit Non-goal; this client is the thin JSON seam transfer.Executor
// dials through for both the TAL ledger and the ckBTC ledger, grounded on
// native/swap's HTTP oracle adapters for the request/response shape and on
// services/payments-gateway/node_client.go for the status-code-to-typed-
// error mapping idiom.
package ledgerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"talvault/numeric"
	"talvault/principal"
	"talvault/transfer"
)

// HTTPDoer is satisfied by *http.Client; narrowed so tests can inject a
// fake round-tripper.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client dials one ledger collaborator's transfer/transfer_from endpoints
// over HTTP. Both the TAL ledger and the ckBTC ledger are wired through
// their own Client instance, since they're distinct collaborators at
// distinct endpoints even though they share this wire shape.
type Client struct {
	http     HTTPDoer
	endpoint string
}

var _ transfer.TokenLedgerClient = (*Client)(nil)

// New constructs a Client against endpoint.
func New(httpClient HTTPDoer, endpoint string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient, endpoint: strings.TrimSuffix(strings.TrimSpace(endpoint), "/")}
}

type transferRequest struct {
	To     string `json:"to,omitempty"`
	From   string `json:"from,omitempty"`
	Amount uint64 `json:"amount"`
	Fee    uint64 `json:"fee"`
}

type transferResponse struct {
	BlockIndex uint64 `json:"block_index"`
	Error      string `json:"error,omitempty"`
	Expected   uint64 `json:"expected,omitempty"`
}

// Transfer moves amount out of the protocol's own account to "to", minus
// fee.
func (c *Client) Transfer(ctx context.Context, to principal.Principal, amount uint64, fee uint64) (uint64, error) {
	return c.call(ctx, "/transfer", transferRequest{To: to.String(), Amount: amount, Fee: fee})
}

// TransferFrom pulls amount out of from's account, via a pre-existing
// ICRC-2 approval, into the protocol's own account.
func (c *Client) TransferFrom(ctx context.Context, from principal.Principal, amount uint64, fee uint64) (uint64, error) {
	return c.call(ctx, "/transfer_from", transferRequest{From: from.String(), Amount: amount, Fee: fee})
}

func (c *Client) call(ctx context.Context, path string, body transferRequest) (uint64, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("ledgerclient: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, strings.NewReader(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("ledgerclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ledgerclient: call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var payload transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("ledgerclient: decode %s response (status %d): %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	switch payload.Error {
	case "":
		return payload.BlockIndex, nil
	case "bad_fee":
		return 0, transfer.BadFee{Expected: numeric.CKBTC(payload.Expected)}
	case "insufficient_funds":
		return 0, transfer.ErrInsufficientFunds
	default:
		return 0, transfer.GenericTransferError{Reason: payload.Error}
	}
}
