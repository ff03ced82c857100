package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"talvault/event"
	"talvault/guard"
	"talvault/internal/obsmetrics"
	"talvault/liquiditypool"
	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
	"talvault/rpcservice"
	"talvault/transfer"
	"talvault/vault"
)

type memAppender struct {
	entries []event.RawEntry
}

func (m *memAppender) Append(kind event.Kind, payload interface{}) (uint64, error) {
	raw, err := event.Encode(kind, payload)
	if err != nil {
		return 0, err
	}
	k, inner, err := event.DecodeEnvelope(raw)
	if err != nil {
		return 0, err
	}
	m.entries = append(m.entries, event.RawEntry{Kind: k, Payload: inner})
	return uint64(len(m.entries) - 1), nil
}

func (m *memAppender) ReadRange(start, length uint64) ([]event.RawEntry, error) {
	if start >= uint64(len(m.entries)) {
		return nil, nil
	}
	end := uint64(len(m.entries))
	if length > 0 && start+length < end {
		end = start + length
	}
	return m.entries[start:end], nil
}

func (m *memAppender) Len() uint64 { return uint64(len(m.entries)) }

type fakeLedger struct{ nextBlock uint64 }

func (f *fakeLedger) Transfer(context.Context, principal.Principal, uint64, uint64) (uint64, error) {
	f.nextBlock++
	return f.nextBlock, nil
}

func (f *fakeLedger) TransferFrom(ctx context.Context, to principal.Principal, amount uint64, fee uint64) (uint64, error) {
	return f.Transfer(ctx, to, amount, fee)
}

func testRouter(t *testing.T) (http.Handler, principal.Principal) {
	t.Helper()
	dev := testPrincipal(t, 255)
	state := protocolstate.NewFromInit(protocolstate.InitArgs{DeveloperPrincipal: dev})
	rate := numeric.NewUsdBtc(decimal.NewFromInt(20000))
	state.LastBtcRate = &rate
	ts := uint64(1_000_000_000)
	state.LastBtcTimestamp = &ts

	store := protocolstate.NewStore(state)
	events := &memAppender{}
	exec := transfer.NewExecutor(&fakeLedger{}, &fakeLedger{}, numeric.CKBTC(10))
	guards := guard.NewPrincipalGuards(100)
	vaults := vault.NewService(store, exec, events, guards, func() uint64 { return ts }, nil)
	pool := liquiditypool.NewService(store, exec, events, guards, nil)
	svc := rpcservice.NewService(store, events, vaults, pool, func() uint64 { return ts }, nil)

	return New(Config{Service: svc, Metrics: obsmetrics.New()}), dev
}

func testPrincipal(t *testing.T, b byte) principal.Principal {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	p, err := principal.FromBytes(raw)
	require.NoError(t, err)
	return p
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOpenVaultEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	owner := testPrincipal(t, 1)

	rec := postJSON(t, router, "/rpc/open_vault", map[string]interface{}{
		"caller":       owner.String(),
		"ckbtc_margin": 100_000_000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		VaultID uint64 `json:"VaultID"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, uint64(0), res.VaultID)
}

func TestOpenVaultEndpointRejectsAnonymous(t *testing.T) {
	router, _ := testRouter(t)

	rec := postJSON(t, router, "/rpc/open_vault", map[string]interface{}{
		"caller":       principal.Anonymous.String(),
		"ckbtc_margin": 100_000_000,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetProtocolStatusEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	rec := postJSON(t, router, "/rpc/get_protocol_status", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	var status rpcservice.ProtocolStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, protocolstate.ModeGeneralAvailability, status.Mode)
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "talvault_vault_count")
}

func TestDashboardEndpointServesHTML(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "talvault")
}

func TestLogsEndpointEmptyWithoutFile(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}
