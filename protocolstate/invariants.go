package protocolstate

import "fmt"

// CheckInvariants asserts structural consistency between the vault map and
// its owner index. A violation here is always a programming bug in one of
// this package's mutation methods, never bad input, so it panics rather
// than returning an error — an invariant violation here means a bug
// upstream, not a call worth recovering from.
func (s *State) CheckInvariants() {
	indexed := 0
	for _, ids := range s.PrincipalToVaultIDs {
		indexed += len(ids)
	}
	if len(s.VaultIDToVault) > indexed {
		panic("protocolstate: BUG: vault count exceeds owner index size")
	}
	for _, ids := range s.PrincipalToVaultIDs {
		for id := range ids {
			if _, ok := s.VaultIDToVault[id]; !ok {
				panic("protocolstate: BUG: not all vault ids are in the id -> vault map")
			}
		}
	}
}

// CheckSemanticallyEqual compares two States on the vault map, the owner
// index, the pending margin and redemption transfers, the liquidity pool
// and returns balances, and the three collaborator principals. No other
// field is compared: mode, fees, base rate, last redemption time, oracle
// rate and timestamp, vault-id counter, TCR, guards and timer flags are
// all ignored. Returns a diagnostic error instead of panicking so the
// caller decides whether to abort.
func (s *State) CheckSemanticallyEqual(other *State) error {
	if len(s.VaultIDToVault) != len(other.VaultIDToVault) {
		return fmt.Errorf("protocolstate: vault count mismatch: %d vs %d", len(s.VaultIDToVault), len(other.VaultIDToVault))
	}
	for id, v := range s.VaultIDToVault {
		ov, ok := other.VaultIDToVault[id]
		if !ok || ov != v {
			return fmt.Errorf("protocolstate: vault %d mismatch: %+v vs %+v", id, v, ov)
		}
	}

	if len(s.PendingMarginTransfers) != len(other.PendingMarginTransfers) {
		return fmt.Errorf("protocolstate: pending margin transfer count mismatch: %d vs %d", len(s.PendingMarginTransfers), len(other.PendingMarginTransfers))
	}
	for id, pt := range s.PendingMarginTransfers {
		opt, ok := other.PendingMarginTransfers[id]
		if !ok || opt != pt {
			return fmt.Errorf("protocolstate: pending margin transfer %d mismatch", id)
		}
	}

	if len(s.PrincipalToVaultIDs) != len(other.PrincipalToVaultIDs) {
		return fmt.Errorf("protocolstate: owner index size mismatch: %d vs %d", len(s.PrincipalToVaultIDs), len(other.PrincipalToVaultIDs))
	}
	for p, ids := range s.PrincipalToVaultIDs {
		oids, ok := other.PrincipalToVaultIDs[p]
		if !ok || len(oids) != len(ids) {
			return fmt.Errorf("protocolstate: owner index for %s mismatch", p)
		}
		for id := range ids {
			if _, ok := oids[id]; !ok {
				return fmt.Errorf("protocolstate: owner index for %s missing vault %d", p, id)
			}
		}
	}

	if len(s.LiquidityPool) != len(other.LiquidityPool) {
		return fmt.Errorf("protocolstate: liquidity pool size mismatch: %d vs %d", len(s.LiquidityPool), len(other.LiquidityPool))
	}
	for p, amount := range s.LiquidityPool {
		if other.LiquidityPool[p] != amount {
			return fmt.Errorf("protocolstate: liquidity pool balance for %s mismatch", p)
		}
	}

	if len(s.LiquidityReturns) != len(other.LiquidityReturns) {
		return fmt.Errorf("protocolstate: liquidity returns size mismatch: %d vs %d", len(s.LiquidityReturns), len(other.LiquidityReturns))
	}
	for p, amount := range s.LiquidityReturns {
		if other.LiquidityReturns[p] != amount {
			return fmt.Errorf("protocolstate: liquidity returns balance for %s mismatch", p)
		}
	}

	if s.XrcPrincipal != other.XrcPrincipal {
		return fmt.Errorf("protocolstate: xrc principal mismatch")
	}
	if s.TalerLedgerPrincipal != other.TalerLedgerPrincipal {
		return fmt.Errorf("protocolstate: taler ledger principal mismatch")
	}
	if s.CkbtcLedgerPrincipal != other.CkbtcLedgerPrincipal {
		return fmt.Errorf("protocolstate: ckbtc ledger principal mismatch")
	}

	if len(s.PendingRedemptionTransfer) != len(other.PendingRedemptionTransfer) {
		return fmt.Errorf("protocolstate: pending redemption transfer count mismatch: %d vs %d", len(s.PendingRedemptionTransfer), len(other.PendingRedemptionTransfer))
	}
	for id, pt := range s.PendingRedemptionTransfer {
		opt, ok := other.PendingRedemptionTransfer[id]
		if !ok || opt != pt {
			return fmt.Errorf("protocolstate: pending redemption transfer %d mismatch", id)
		}
	}

	return nil
}
