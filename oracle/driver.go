// Package oracle implements the protocol's periodic BTC/USD price feed
// a fixed-interval fetch, a sanity floor, a
// monotonic-timestamp write guard, mode re-evaluation, and a liquidation
// sweep trigger. Grounded on original_source/protocol/xrc.rs for the fetch
// cadence and the sanity/monotonicity rules, and on native/lending's
// guarded-background-task shape for how the Go goroutine is structured.
package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"talvault/guard"
	"talvault/liquidation"
	"talvault/numeric"
	"talvault/protocolstate"
)

// FetchInterval is the fixed period between quotes.
const FetchInterval = 60 * time.Second

// FetchLagTolerance is subtracted from "now" when requesting a quote, to
// tolerate the upstream rate provider's own latency.
const FetchLagTolerance = 60 * time.Second

// SanityFloorUSD is the minimum plausible BTC/USD rate; anything below it
// is treated as a bad quote and forces ReadOnly mode rather than being
// applied.
var SanityFloorUSD = numeric.NewUsdBtc(decimal.NewFromInt(1000))

// Client fetches a BTC/USD quote as of a given time. Implementations wrap
// the actual exchange-rate canister/RPC collaborator; this package only
// depends on this narrow interface.
type Client interface {
	GetExchangeRate(ctx context.Context, asOf time.Time) (rate numeric.UsdBtc, decimals uint32, err error)
}

var tracer = otel.Tracer("talvault/oracle")

// Driver runs the periodic fetch loop against the shared protocol state.
type Driver struct {
	Store       *protocolstate.Store
	Client      Client
	Liquidation *liquidation.Engine
	Logger      *slog.Logger

	Interval time.Duration
	Guard    *guard.Singleton

	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
	// OnFetch, if set, is called after every fetch attempt (success or
	// failure) with the observed result; used to drive metrics without
	// this package importing the metrics registry directly.
	OnFetch func(result string)
}

// NewDriver constructs a Driver with the protocol's default settings.
func NewDriver(store *protocolstate.Store, client Client, eng *liquidation.Engine, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		Store:       store,
		Client:      client,
		Liquidation: eng,
		Logger:      logger,
		Interval:    FetchInterval,
		Guard:       guard.NewSingleton("FetchXrcGuard"),
		Now:         time.Now,
	}
}

// Run blocks, fetching a quote every Interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	d.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Driver) report(result string) {
	if d.OnFetch != nil {
		d.OnFetch(result)
	}
}

// tick performs exactly one fetch-and-apply cycle. Kept as a separate
// method so this package's tests can drive it deterministically without
// waiting on the ticker.
func (d *Driver) tick(ctx context.Context) {
	release, ok := d.Guard.TryAcquire()
	if !ok {
		d.Logger.Debug("oracle: fetch already in flight, skipping tick")
		return
	}
	defer release()

	ctx, span := tracer.Start(ctx, "oracle.fetch")
	defer span.End()

	now := d.Now()
	asOf := now.Add(-FetchLagTolerance)

	rate, decimals, err := d.Client.GetExchangeRate(ctx, asOf)
	if err != nil {
		d.Logger.Warn("oracle: fetch failed", "error", err)
		span.SetAttributes(attribute.String("oracle.result", "error"))
		d.report("error")
		return
	}
	span.SetAttributes(
		attribute.String("oracle.rate", rate.String()),
		attribute.Int("oracle.decimals", int(decimals)),
	)

	nowNanos := uint64(now.UnixNano())

	if rate.Decimal().LessThan(SanityFloorUSD.Decimal()) {
		d.Logger.Warn("oracle: rate failed sanity check, forcing read-only", "rate", rate.String())
		d.Store.Mutate(func(s *protocolstate.State) {
			s.Mode = protocolstate.ModeReadOnly
		})
		span.SetAttributes(attribute.String("oracle.result", "sanity_reject"))
		d.report("sanity_reject")
		return
	}

	applied := false
	d.Store.Mutate(func(s *protocolstate.State) {
		if s.LastBtcTimestamp != nil && nowNanos <= *s.LastBtcTimestamp {
			return
		}
		s.LastBtcRate = &rate
		s.LastBtcTimestamp = &nowNanos
		s.UpdateTotalCollateralRatioAndMode(rate)
		applied = true
	})

	if !applied {
		d.Logger.Debug("oracle: stale quote ignored", "rate", rate.String())
		span.SetAttributes(attribute.String("oracle.result", "stale"))
		d.report("stale")
		return
	}

	var mode protocolstate.Mode
	d.Store.Read(func(s *protocolstate.State) { mode = s.Mode })
	span.SetAttributes(
		attribute.String("oracle.result", "ok"),
		attribute.String("oracle.mode", mode.String()),
	)
	d.Logger.Info("oracle: rate applied", "rate", rate.String(), "mode", mode.String())
	d.report("ok")

	if mode == protocolstate.ModeReadOnly {
		return
	}

	if d.Liquidation != nil {
		if err := d.Liquidation.CheckVaults(ctx); err != nil {
			d.Logger.Error("oracle: liquidation sweep failed", "error", err)
		}
	}
}
