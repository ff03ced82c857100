package protocolstate

import (
	"fmt"

	"talvault/numeric"
	"talvault/principal"
)

// OpenVault inserts a freshly created vault and indexes it under its owner.
func (s *State) OpenVault(v Vault) {
	s.VaultIDToVault[v.VaultID] = v
	ids, ok := s.PrincipalToVaultIDs[v.Owner]
	if !ok {
		ids = make(map[VaultID]struct{})
		s.PrincipalToVaultIDs[v.Owner] = ids
	}
	ids[v.VaultID] = struct{}{}
}

// CloseVault removes a vault and enqueues its remaining margin as a
// pending payout. Closing an unknown vault, or one with no owner index
// entry, is a programming bug.
func (s *State) CloseVault(vaultID VaultID) {
	v, ok := s.VaultIDToVault[vaultID]
	if !ok {
		panic("protocolstate: BUG: tried to close unknown vault")
	}
	delete(s.VaultIDToVault, vaultID)
	s.PendingMarginTransfers[vaultID] = PendingTransfer{Owner: v.Owner, Margin: v.CkbtcMargin}

	ids, ok := s.PrincipalToVaultIDs[v.Owner]
	if !ok {
		panic("protocolstate: BUG: tried to close vault with no owner")
	}
	delete(ids, vaultID)
}

// BorrowFromVault increases a vault's debt. Borrowing against an unknown
// vault is a programming bug: the caller must have validated ownership
// first.
func (s *State) BorrowFromVault(vaultID VaultID, amount numeric.TAL) {
	v, ok := s.VaultIDToVault[vaultID]
	if !ok {
		panic("protocolstate: borrowing from unknown vault")
	}
	v.BorrowedTAL = v.BorrowedTAL.Add(amount)
	s.VaultIDToVault[vaultID] = v
}

// AddMarginToVault increases a vault's collateral.
func (s *State) AddMarginToVault(vaultID VaultID, amount numeric.CKBTC) {
	v, ok := s.VaultIDToVault[vaultID]
	if !ok {
		panic("protocolstate: adding margin to unknown vault")
	}
	v.CkbtcMargin = v.CkbtcMargin.Add(amount)
	s.VaultIDToVault[vaultID] = v
}

// RepayToVault decreases a vault's debt.
func (s *State) RepayToVault(vaultID VaultID, amount numeric.TAL) {
	v, ok := s.VaultIDToVault[vaultID]
	if !ok {
		panic("protocolstate: repaying to unknown vault")
	}
	if amount > v.BorrowedTAL {
		panic("protocolstate: repay amount exceeds borrowed amount")
	}
	v.BorrowedTAL = v.BorrowedTAL.Sub(amount)
	s.VaultIDToVault[vaultID] = v
}

// ProvideLiquidity credits a provider's pool balance. Zero amounts are a
// no-op.
func (s *State) ProvideLiquidity(amount numeric.TAL, caller principal.Principal) {
	if amount == 0 {
		return
	}
	s.LiquidityPool[caller] = s.LiquidityPool[caller].Add(amount)
}

// WithdrawLiquidity debits a provider's pool balance, removing the entry
// once it reaches zero. Withdrawing from an unknown principal, or more
// than is on deposit, is a programming bug.
func (s *State) WithdrawLiquidity(amount numeric.TAL, caller principal.Principal) {
	balance, ok := s.LiquidityPool[caller]
	if !ok {
		panic("protocolstate: cannot remove liquidity from unknown principal")
	}
	if amount > balance {
		panic("protocolstate: withdraw amount exceeds provided liquidity")
	}
	remaining := balance.Sub(amount)
	if remaining == 0 {
		delete(s.LiquidityPool, caller)
	} else {
		s.LiquidityPool[caller] = remaining
	}
}

// ClaimLiquidityReturns debits a provider's pending reward balance,
// removing the entry once it reaches zero.
func (s *State) ClaimLiquidityReturns(amount numeric.CKBTC, caller principal.Principal) {
	balance, ok := s.LiquidityReturns[caller]
	if !ok {
		panic("protocolstate: cannot claim returns from unknown principal")
	}
	if amount > balance {
		panic("protocolstate: claim amount exceeds available returns")
	}
	remaining := balance.Sub(amount)
	if remaining == 0 {
		delete(s.LiquidityReturns, caller)
	} else {
		s.LiquidityReturns[caller] = remaining
	}
}

// LiquidateVault liquidates a vault via the liquidity pool, either fully
// (debt and margin flow entirely to providers) or — in Recovery, while the
// vault's own ratio is still above MCR — partially, capping the margin
// taken at exactly what 110% collateralization requires and leaving the
// vault open with its remaining margin.
func (s *State) LiquidateVault(vaultID VaultID, mode Mode, btcRate numeric.UsdBtc) {
	v, ok := s.VaultIDToVault[vaultID]
	if !ok {
		panic("protocolstate: bug: vault not found")
	}
	if s.TotalProvidedLiquidity() < v.BorrowedTAL {
		panic("protocolstate: bug: liquidity pool smaller than vault debt")
	}

	vaultRatio := v.CollateralRatio(btcRate)

	var entries []DistributeEntry
	if mode == ModeRecovery && vaultRatio.GreaterThan(MinimumCollateralRatio()) {
		partialMargin := v.BorrowedTAL.MulRatio(MinimumCollateralRatio()).DivUsdBtc(btcRate)
		if partialMargin > v.CkbtcMargin {
			panic(fmt.Sprintf("protocolstate: partial margin %s exceeds vault margin %s", partialMargin, v.CkbtcMargin))
		}
		debt := v.BorrowedTAL
		v.BorrowedTAL = 0
		v.CkbtcMargin = v.CkbtcMargin.Sub(partialMargin)
		s.VaultIDToVault[vaultID] = v
		entries = DistributeAcrossLPs(s.LiquidityPool, debt, partialMargin)
	} else {
		delete(s.VaultIDToVault, vaultID)
		if ids, ok := s.PrincipalToVaultIDs[v.Owner]; ok {
			delete(ids, vaultID)
		}
		entries = DistributeAcrossLPs(s.LiquidityPool, v.BorrowedTAL, v.CkbtcMargin)
	}

	if len(entries) == 0 {
		panic("protocolstate: bug: liquidation produced no distribution entries")
	}
	for _, entry := range entries {
		balance, ok := s.LiquidityPool[entry.Owner]
		if !ok || entry.TalToDebit > balance {
			panic("protocolstate: bug: principal not found in liquidity_pool")
		}
		remaining := balance.Sub(entry.TalToDebit)
		if remaining == 0 {
			delete(s.LiquidityPool, entry.Owner)
		} else {
			s.LiquidityPool[entry.Owner] = remaining
		}
		s.LiquidityReturns[entry.Owner] = s.LiquidityReturns[entry.Owner].Add(entry.CkbtcReward)
	}
}

// RedistributeVault closes a vault by spreading its debt and margin
// pro-rata across every remaining vault, weighted by remaining margin.
func (s *State) RedistributeVault(vaultID VaultID) {
	v, ok := s.VaultIDToVault[vaultID]
	if !ok {
		panic("protocolstate: bug: vault not found")
	}
	entries := DistributeAcrossVaults(s.VaultIDToVault, v)
	for _, entry := range entries {
		target, ok := s.VaultIDToVault[entry.VaultID]
		if !ok {
			panic("protocolstate: bug: vault not found")
		}
		target.CkbtcMargin = target.CkbtcMargin.Add(entry.CkbtcShareAmount)
		target.BorrowedTAL = target.BorrowedTAL.Add(entry.TalShareAmount)
		s.VaultIDToVault[entry.VaultID] = target
	}
	delete(s.VaultIDToVault, vaultID)
	if ids, ok := s.PrincipalToVaultIDs[v.Owner]; ok {
		delete(ids, vaultID)
	}
}

// DeductAmountFromVault removes debt and collateral from a single vault,
// used by the redemption walk.
func (s *State) DeductAmountFromVault(ckbtcAmount numeric.CKBTC, talAmount numeric.TAL, vaultID VaultID) {
	v, ok := s.VaultIDToVault[vaultID]
	if !ok {
		panic("protocolstate: cannot deduct from unknown vault")
	}
	v.BorrowedTAL = v.BorrowedTAL.Sub(talAmount)
	v.CkbtcMargin = v.CkbtcMargin.Sub(ckbtcAmount)
	s.VaultIDToVault[vaultID] = v
}

// RedeemOnVaults walks vaults by ascending (CR, vault_id) order, draining
// debt and collateral until talAmount is fully converted or the walked
// vaults are exhausted. A positive maxVaults limits the walk to that many
// vaults (Open Question 3, DESIGN.md); zero or a negative value walks every
// vault, which is what replay passes. It returns the amount actually
// converted and whether the walk stopped short of talAmount because of
// the maxVaults limit.
func (s *State) RedeemOnVaults(talAmount numeric.TAL, btcRate numeric.UsdBtc, maxVaults int) (converted numeric.TAL, limitReached bool) {
	order := s.orderedVaultIDsByRatio(btcRate)
	if maxVaults > 0 && len(order) > maxVaults {
		order = order[:maxVaults]
		limitReached = true
	}

	remaining := talAmount
	for _, vaultID := range order {
		if remaining == 0 {
			break
		}
		v := s.VaultIDToVault[vaultID]
		if v.BorrowedTAL >= remaining {
			ckbtc := remaining.DivUsdBtc(btcRate)
			s.DeductAmountFromVault(ckbtc, remaining, vaultID)
			converted = converted.Add(remaining)
			remaining = 0
			break
		}
		redeemableTal := v.BorrowedTAL
		ckbtc := redeemableTal.DivUsdBtc(btcRate)
		s.DeductAmountFromVault(ckbtc, redeemableTal, vaultID)
		converted = converted.Add(redeemableTal)
		remaining = remaining.Sub(redeemableTal)
	}
	return converted, limitReached && remaining > 0
}

// orderedVaultIDsByRatio returns vault ids sorted by ascending
// (collateral ratio, vault id) — a stable tie-break on id keeps the walk
// order deterministic across replays.
func (s *State) orderedVaultIDsByRatio(btcRate numeric.UsdBtc) []VaultID {
	type keyed struct {
		ratio numeric.Ratio
		id    VaultID
	}
	keys := make([]keyed, 0, len(s.VaultIDToVault))
	for id, v := range s.VaultIDToVault {
		keys = append(keys, keyed{ratio: v.CollateralRatio(btcRate), id: id})
	}
	// Simple insertion sort: vault counts are small enough in practice
	// that this avoids pulling in a comparator-sort dependency just for
	// a pair key.
	for i := 1; i < len(keys); i++ {
		j := i
		for j > 0 && less(keys[j], keys[j-1]) {
			keys[j], keys[j-1] = keys[j-1], keys[j]
			j--
		}
	}
	ids := make([]VaultID, len(keys))
	for i, k := range keys {
		ids[i] = k.id
	}
	return ids
}

func less(a, b struct {
	ratio numeric.Ratio
	id    VaultID
}) bool {
	if a.ratio.Equal(b.ratio) {
		return a.id < b.id
	}
	return a.ratio.LessThan(b.ratio)
}
