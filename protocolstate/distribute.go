package protocolstate

import (
	"sort"

	"talvault/numeric"
	"talvault/principal"
)

// DistributeEntry is one liquidity provider's share of a liquidation payout.
type DistributeEntry struct {
	Owner       principal.Principal
	CkbtcReward numeric.CKBTC
	TalToDebit  numeric.TAL
}

// DistributeAcrossLPs splits a liquidated vault's debt and margin pro-rata
// across every liquidity provider, weighted by provided TAL. Truncation
// during the per-provider division always rounds down, so the sum of
// shares undershoots the true total by a small remainder; that remainder
// is folded entirely into the first entry. Providers are visited in
// ascending Principal order — the same order a BTreeMap<PrincipalId>
// iteration gives the original — so which provider absorbs the residual
// is deterministic across a live run and a replay, not an artifact of Go's
// randomized map iteration.
func DistributeAcrossLPs(providedLiquidity map[principal.Principal]numeric.TAL, borrowedTAL numeric.TAL, ckbtcMargin numeric.CKBTC) []DistributeEntry {
	totalProvided := numeric.TAL(0)
	for _, amount := range providedLiquidity {
		totalProvided = totalProvided.Add(amount)
	}
	if totalProvided < borrowedTAL {
		panic("protocolstate: bug: liquidity pool smaller than debt to distribute")
	}
	if totalProvided == 0 {
		return nil
	}

	owners := make([]principal.Principal, 0, len(providedLiquidity))
	for owner := range providedLiquidity {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Less(owners[j]) })

	entries := make([]DistributeEntry, 0, len(owners))
	var debitedTal numeric.TAL
	var rewardedCkbtc numeric.CKBTC
	for _, owner := range owners {
		provided := providedLiquidity[owner]
		share := provided.DivTAL(totalProvided)
		ckbtcReward := ckbtcMargin.MulRatio(share)
		talToDebit := borrowedTAL.MulRatio(share)
		if talToDebit > provided {
			panic("protocolstate: bug: computed debit exceeds provided liquidity")
		}
		entries = append(entries, DistributeEntry{Owner: owner, CkbtcReward: ckbtcReward, TalToDebit: talToDebit})
		debitedTal = debitedTal.Add(talToDebit)
		rewardedCkbtc = rewardedCkbtc.Add(ckbtcReward)
	}

	entries[0].TalToDebit = entries[0].TalToDebit.Add(borrowedTAL.Sub(debitedTal))
	entries[0].CkbtcReward = entries[0].CkbtcReward.Add(ckbtcMargin.Sub(rewardedCkbtc))

	var sum numeric.CKBTC
	for _, e := range entries {
		sum = sum.Add(e.CkbtcReward)
	}
	if sum != ckbtcMargin {
		panic("protocolstate: bug: distributed ckbtc does not sum to margin")
	}
	return entries
}

// DistributeToVaultEntry is one surviving vault's share of a redistributed
// vault's debt and margin.
type DistributeToVaultEntry struct {
	VaultID          VaultID
	CkbtcShareAmount numeric.CKBTC
	TalShareAmount   numeric.TAL
}

// DistributeAcrossVaults splits target's debt and margin pro-rata across
// every other vault, weighted by remaining margin. Unlike
// DistributeAcrossLPs, the per-vault division here is not guaranteed to
// round down (target and the accumulated shares are computed independently
// and can drift either way), so the residual folded into the first entry
// uses an absolute-difference correction rather than a direct subtraction.
// Vaults are visited in ascending VaultID order — the same order a
// BTreeMap<u64> iteration gives the original — so the residual always
// lands on the same surviving vault in a live run and in replay.
func DistributeAcrossVaults(vaults map[VaultID]Vault, target Vault) []DistributeToVaultEntry {
	if len(vaults) == 0 {
		panic("protocolstate: bug: no vaults to redistribute across")
	}
	ids := make([]VaultID, 0, len(vaults))
	for id := range vaults {
		if id != target.VaultID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var totalOtherMargin numeric.CKBTC
	for _, id := range ids {
		totalOtherMargin = totalOtherMargin.Add(vaults[id].CkbtcMargin)
	}
	if totalOtherMargin == 0 {
		panic("protocolstate: bug: no margin left to redistribute across")
	}

	entries := make([]DistributeToVaultEntry, 0, len(ids))
	var distributedCkbtc numeric.CKBTC
	var distributedTal numeric.TAL
	for _, id := range ids {
		v := vaults[id]
		share := v.CkbtcMargin.DivCKBTC(totalOtherMargin)
		ckbtcShare := target.CkbtcMargin.MulRatio(share)
		talShare := target.BorrowedTAL.MulRatio(share)
		entries = append(entries, DistributeToVaultEntry{VaultID: id, CkbtcShareAmount: ckbtcShare, TalShareAmount: talShare})
		distributedCkbtc = distributedCkbtc.Add(ckbtcShare)
		distributedTal = distributedTal.Add(talShare)
	}

	entries[0].TalShareAmount = entries[0].TalShareAmount.Add(absTALDiff(target.BorrowedTAL, distributedTal))
	entries[0].CkbtcShareAmount = entries[0].CkbtcShareAmount.Add(absCKBTCDiff(target.CkbtcMargin, distributedCkbtc))
	return entries
}

func absTALDiff(a, b numeric.TAL) numeric.TAL {
	left := a.SaturatingSub(b)
	right := b.SaturatingSub(a)
	if left > right {
		return left
	}
	return right
}

func absCKBTCDiff(a, b numeric.CKBTC) numeric.CKBTC {
	left := a.SaturatingSub(b)
	right := b.SaturatingSub(a)
	if left > right {
		return left
	}
	return right
}
