// Package liquidation implements the protocol's vault-health sweep:
// partition every open vault into healthy/unhealthy against the current
// mode's minimum ratio, then work the unhealthy list liquidating into the
// liquidity pool where there's enough TAL to cover the debt, redistributing
// across the remaining healthy vaults otherwise, and falling back to
// ReadOnly mode only when neither option exists and the protocol as a
// whole is undercollateralized. Grounded line-for-line on
// original_source/protocol/lib.rs's check_vaults().
package liquidation

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"talvault/event"
	"talvault/numeric"
	"talvault/protocolstate"
)

// Engine runs the liquidation sweep against the shared protocol state.
type Engine struct {
	Store  *protocolstate.Store
	Events event.Appender
	Logger *slog.Logger
}

// NewEngine constructs a liquidation.Engine.
func NewEngine(store *protocolstate.Store, events event.Appender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Store: store, Events: events, Logger: logger}
}

// CheckVaults runs one liquidation sweep. It is meant to be called after
// every oracle price update and is not itself guarded
// against concurrent invocation — callers run it from the single-threaded
// oracle-fetch path, which already serializes via guard.Singleton.
//
// The partition into healthy/unhealthy vaults is taken once at the start
// of the sweep and not refreshed as earlier vaults in the same sweep are
// processed — preserved exactly from check_vaults(), see DESIGN.md Open
// Question 1. The "total provided liquidity" figure used to decide whether
// a given unhealthy vault can be liquidated into the pool is read afresh
// for each unhealthy vault, so it reflects earlier liquidations in the
// same sweep.
func (e *Engine) CheckVaults(ctx context.Context) error {
	var (
		btcRate    numeric.UsdBtc
		unhealthy  []protocolstate.Vault
		healthy    []protocolstate.Vault
		haveQuote  bool
	)
	e.Store.Read(func(s *protocolstate.State) {
		if s.LastBtcRate == nil {
			return
		}
		haveQuote = true
		btcRate = *s.LastBtcRate
		minRatio := s.Mode.MinimumLiquidationCollateralRatio()
		for _, v := range s.VaultIDToVault {
			if v.CollateralRatio(btcRate).LessThan(minRatio) {
				unhealthy = append(unhealthy, v)
			} else {
				healthy = append(healthy, v)
			}
		}
	})
	if !haveQuote {
		e.Logger.Warn("check_vaults: no btc rate known yet, skipping sweep")
		return nil
	}

	for _, v := range unhealthy {
		e.processUnhealthyVault(v, btcRate, len(healthy) > 0)
	}
	return nil
}

func (e *Engine) processUnhealthyVault(v protocolstate.Vault, btcRate numeric.UsdBtc, haveHealthyVaults bool) {
	var providedLiquidity numeric.TAL
	e.Store.Read(func(s *protocolstate.State) {
		providedLiquidity = s.TotalProvidedLiquidity()
	})

	switch {
	case v.BorrowedTAL <= providedLiquidity:
		e.Logger.Info("check_vaults: liquidating vault to liquidity pool",
			"vault_id", v.VaultID, "provided_liquidity", providedLiquidity.String())
		e.liquidateToPool(v, btcRate)

	case haveHealthyVaults:
		e.Logger.Info("check_vaults: redistributing vault across remaining vaults",
			"vault_id", v.VaultID)
		e.redistribute(v)

	default:
		var stillSolvent bool
		e.Store.Read(func(s *protocolstate.State) {
			one := numeric.NewRatio(decimal.NewFromInt(1))
			stillSolvent = s.TotalCollateralRatio.GreaterThan(one)
		})
		if stillSolvent {
			e.Logger.Info("check_vaults: cannot liquidate vault, protocol still solvent, retrying next sweep",
				"vault_id", v.VaultID)
			return
		}
		e.Logger.Warn("check_vaults: cannot liquidate vault, switching to read-only",
			"vault_id", v.VaultID)
		e.Store.Mutate(func(s *protocolstate.State) {
			s.Mode = protocolstate.ModeReadOnly
		})
	}
}

func (e *Engine) liquidateToPool(v protocolstate.Vault, btcRate numeric.UsdBtc) {
	e.Store.Mutate(func(s *protocolstate.State) {
		mode := s.Mode
		if _, err := e.Events.Append(event.KindLiquidateVault, event.LiquidateVaultPayload{
			VaultID: v.VaultID,
			Mode:    uint8(mode),
			BtcRate: btcRate,
		}); err != nil {
			e.Logger.Error("check_vaults: failed to persist liquidate_vault event", "vault_id", v.VaultID, "error", err)
			return
		}
		s.LiquidateVault(v.VaultID, mode, btcRate)
	})
}

func (e *Engine) redistribute(v protocolstate.Vault) {
	e.Store.Mutate(func(s *protocolstate.State) {
		if _, err := e.Events.Append(event.KindRedistributeVault, event.RedistributeVaultPayload{
			VaultID: v.VaultID,
		}); err != nil {
			e.Logger.Error("check_vaults: failed to persist redistribute_vault event", "vault_id", v.VaultID, "error", err)
			return
		}
		s.RedistributeVault(v.VaultID)
	})
}
