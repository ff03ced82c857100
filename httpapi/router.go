// Package httpapi exposes the protocol over HTTP: the JSON-RPC-style
// mutating and query endpoints, plus the read-only
// operational surface (/metrics, /logs, /dashboard). Grounded on
// gateway/routes/router.go's chi.NewRouter wiring, replacing that file's
// reverse-proxy-to-another-service routes with direct calls into
// rpcservice.Service since this protocol has no downstream microservice to
// proxy to.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"talvault/internal/obsmetrics"
	"talvault/rpcservice"
)

// Config binds the collaborators the router dispatches into.
type Config struct {
	Service       *rpcservice.Service
	Metrics       *obsmetrics.Registry
	LogFilePath   string
	DashboardHTML string
}

// New builds the chi router serving every RPC and operational endpoint.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	h := &handlers{cfg: cfg}

	if cfg.Metrics != nil {
		r.Get("/metrics", promhttp.HandlerFor(cfg.Metrics.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP)
	}
	r.Get("/logs", h.logs)
	r.Get("/dashboard", h.dashboard)

	r.Route("/rpc", func(rr chi.Router) {
		rr.Post("/open_vault", h.observe("open_vault", h.openVault))
		rr.Post("/borrow_from_vault", h.observe("borrow_from_vault", h.borrowFromVault))
		rr.Post("/repay_to_vault", h.observe("repay_to_vault", h.repayToVault))
		rr.Post("/add_margin_to_vault", h.observe("add_margin_to_vault", h.addMarginToVault))
		rr.Post("/close_vault", h.observe("close_vault", h.closeVault))
		rr.Post("/redeem_ckbtc", h.observe("redeem_ckbtc", h.redeemCkbtc))
		rr.Post("/provide_liquidity", h.observe("provide_liquidity", h.provideLiquidity))
		rr.Post("/withdraw_liquidity", h.observe("withdraw_liquidity", h.withdrawLiquidity))
		rr.Post("/claim_liquidity_returns", h.observe("claim_liquidity_returns", h.claimLiquidityReturns))

		rr.Post("/get_protocol_status", h.observe("get_protocol_status", h.getProtocolStatus))
		rr.Post("/get_fees", h.observe("get_fees", h.getFees))
		rr.Post("/get_vaults", h.observe("get_vaults", h.getVaults))
		rr.Post("/get_vault_history", h.observe("get_vault_history", h.getVaultHistory))
		rr.Post("/get_events", h.observe("get_events", h.getEvents))
		rr.Post("/get_liquidity_status", h.observe("get_liquidity_status", h.getLiquidityStatus))
	})

	return r
}

type handlers struct {
	cfg Config
}

// statusCapturingWriter records the status code a handler wrote, so
// observe can label the RPCRequests counter by outcome without every
// handler threading that decision back up itself.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// observe wraps an RPC handler with the request-count/latency metrics
// obsmetrics.Registry exposes, grounded on gateway/routes/router.go's
// otelhttp-middleware-per-route wiring, adapted from tracing spans to
// Prometheus counters/histograms since this surface's instrumentation is
// metrics-only.
func (h *handlers) observe(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.Metrics == nil {
			next(w, r)
			return
		}
		start := time.Now()
		sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		outcome := "ok"
		if sw.status >= http.StatusBadRequest {
			outcome = "error"
		}
		h.cfg.Metrics.ObserveRPC(method, outcome, time.Since(start).Seconds())
	}
}
