package obsmetrics

import (
	"talvault/protocolstate"
)

// RefreshFromState recomputes every gauge from a read-only snapshot of the
// protocol state. The process entrypoint calls it once per second from a
// refresh loop rather than on every mutation, so a scrape can see gauges
// up to a second old.
func (r *Registry) RefreshFromState(s *protocolstate.State) {
	r.VaultCount.Set(float64(len(s.VaultIDToVault)))
	r.OwnerCount.Set(float64(len(s.PrincipalToVaultIDs)))
	r.ProvidedLiquidity.Set(tokenToFloat(uint64(s.TotalProvidedLiquidity())))
	r.ProvidersCount.Set(float64(len(s.LiquidityPool)))
	r.PendingMarginTransfers.Set(float64(len(s.PendingMarginTransfers)))
	r.PendingRedemptionXfers.Set(float64(len(s.PendingRedemptionTransfer)))
	r.TotalCkbtcMargin.Set(tokenToFloat(uint64(s.TotalCkbtcMargin())))
	r.TotalBorrowedTAL.Set(tokenToFloat(uint64(s.TotalBorrowedTAL())))
	r.Mode.Set(float64(s.Mode))

	if s.LastBtcRate != nil {
		rateFloat, _ := s.LastBtcRate.Decimal().Float64()
		r.BtcRateUSD.Set(rateFloat)

		marginFloat := tokenToFloat(uint64(s.TotalCkbtcMargin()))
		r.TotalValueLockedUSD.Set(marginFloat * rateFloat)
	}

	tcrFloat, _ := s.TotalCollateralRatio.Decimal().Float64()
	r.TotalCollateralRatio.Set(tcrFloat)
}

func tokenToFloat(e8s uint64) float64 {
	return float64(e8s) / 100_000_000
}
