// Package obsmetrics exposes the protocol's Prometheus instrumentation:
// the gauges served at /metrics, a request counter/latency
// pair per RPC endpoint, and a histogram of redemption fees actually
// charged. Grounded on observability/metrics.go's sync.Once-guarded
// singleton-getter pattern, replacing that file's chain-specific gauge set
// (module requests, swap/payout/oracle-attester/consensus metrics) with
// the gauges this protocol actually reports.
package obsmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every gauge, counter and histogram this process exports.
type Registry struct {
	reg *prometheus.Registry

	VaultCount               prometheus.Gauge
	OwnerCount               prometheus.Gauge
	ProvidedLiquidity        prometheus.Gauge
	ProvidersCount           prometheus.Gauge
	PendingMarginTransfers   prometheus.Gauge
	PendingRedemptionXfers   prometheus.Gauge
	BtcRateUSD               prometheus.Gauge
	TotalCkbtcMargin         prometheus.Gauge
	TotalValueLockedUSD      prometheus.Gauge
	TotalBorrowedTAL         prometheus.Gauge
	TotalCollateralRatio     prometheus.Gauge
	Mode                     prometheus.Gauge

	RPCRequests *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec

	RedemptionFee prometheus.Histogram
	OracleFetches *prometheus.CounterVec
}

var (
	once     sync.Once
	instance *Registry
)

// Get returns the process-wide metrics registry, constructing it on first
// use and registering every collector against its own prometheus.Registry
// (kept separate from the default global registry so tests can construct
// a fresh one without cross-test collector-already-registered panics).
func Get() *Registry {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New builds an unregistered-with-the-default-registry Registry; used by
// Get() for the process-wide singleton and directly by tests that want an
// isolated instance.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		VaultCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "vault_count", Help: "Number of open vaults.",
		}),
		OwnerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "owner_count", Help: "Number of distinct vault owners.",
		}),
		ProvidedLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "provided_liquidity_tal", Help: "Total TAL provided to the liquidity pool.",
		}),
		ProvidersCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "liquidity_providers_count", Help: "Number of distinct liquidity providers.",
		}),
		PendingMarginTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "pending_margin_transfers", Help: "Number of pending vault-close margin payouts.",
		}),
		PendingRedemptionXfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "pending_redemption_transfers", Help: "Number of pending redemption ckBTC payouts.",
		}),
		BtcRateUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "btc_rate_usd", Help: "Last known BTC/USD rate.",
		}),
		TotalCkbtcMargin: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "total_ckbtc_margin", Help: "Sum of collateral across every vault.",
		}),
		TotalValueLockedUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "tvl_usd", Help: "Total collateral value in USD (margin * rate).",
		}),
		TotalBorrowedTAL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "total_borrowed_tal", Help: "Sum of debt across every vault.",
		}),
		TotalCollateralRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "total_collateral_ratio", Help: "Protocol-wide total collateral ratio.",
		}),
		Mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "talvault", Name: "mode", Help: "Protocol mode (0=ReadOnly, 1=GeneralAvailability, 2=Recovery).",
		}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talvault", Name: "rpc_requests_total", Help: "RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "talvault", Name: "rpc_duration_seconds", Help: "RPC latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		RedemptionFee: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "talvault", Name: "redemption_fee_ratio", Help: "Redemption fee ratio actually charged.",
			Buckets: []float64{0.005, 0.01, 0.02, 0.03, 0.04, 0.05},
		}),
		OracleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talvault", Name: "oracle_fetch_total", Help: "Oracle fetch attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.VaultCount, r.OwnerCount, r.ProvidedLiquidity, r.ProvidersCount,
		r.PendingMarginTransfers, r.PendingRedemptionXfers, r.BtcRateUSD,
		r.TotalCkbtcMargin, r.TotalValueLockedUSD, r.TotalBorrowedTAL,
		r.TotalCollateralRatio, r.Mode, r.RPCRequests, r.RPCLatency,
		r.RedemptionFee, r.OracleFetches,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveRPC records one RPC call's outcome and latency in seconds.
func (r *Registry) ObserveRPC(method, outcome string, seconds float64) {
	r.RPCRequests.WithLabelValues(method, outcome).Inc()
	r.RPCLatency.WithLabelValues(method).Observe(seconds)
}
