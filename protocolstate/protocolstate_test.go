package protocolstate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"talvault/numeric"
	"talvault/principal"
)

func testPrincipal(t *testing.T, b byte) principal.Principal {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	p, err := principal.FromBytes(raw)
	require.NoError(t, err)
	return p
}

func TestModeTransitions(t *testing.T) {
	// 1 ckBTC margin at $20,000/BTC is worth 20,000 TAL of collateral value;
	// varying debt against that fixed value walks TCR through all three bands.
	price := numeric.NewUsdBtc(decimal.NewFromInt(20000))
	s := NewFromInit(InitArgs{FeeE8S: 500_000})

	owner := testPrincipal(t, 1)
	s.OpenVault(Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(10_000_00000000), CkbtcMargin: numeric.CKBTC(1_00000000)})

	s.UpdateTotalCollateralRatioAndMode(price) // TCR = 20000/10000 = 2.0
	require.Equal(t, ModeGeneralAvailability, s.Mode)

	s.VaultIDToVault[0] = Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(15_000_00000000), CkbtcMargin: numeric.CKBTC(1_00000000)}
	s.UpdateTotalCollateralRatioAndMode(price) // TCR = 20000/15000 = 1.33
	require.Equal(t, ModeRecovery, s.Mode)

	s.VaultIDToVault[0] = Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(25_000_00000000), CkbtcMargin: numeric.CKBTC(1_00000000)}
	s.UpdateTotalCollateralRatioAndMode(price) // TCR = 20000/25000 = 0.8
	require.Equal(t, ModeReadOnly, s.Mode)
}

func TestOpenCloseVault(t *testing.T) {
	s := NewFromInit(InitArgs{})
	owner := testPrincipal(t, 1)
	s.OpenVault(Vault{VaultID: 0, Owner: owner, BorrowedTAL: 0, CkbtcMargin: numeric.CKBTC(100)})
	require.Len(t, s.VaultIDToVault, 1)
	require.Contains(t, s.PrincipalToVaultIDs[owner], VaultID(0))

	s.CloseVault(0)
	require.Empty(t, s.VaultIDToVault)
	require.Empty(t, s.PrincipalToVaultIDs[owner])
	pt, ok := s.PendingMarginTransfers[0]
	require.True(t, ok)
	require.Equal(t, owner, pt.Owner)
	require.Equal(t, numeric.CKBTC(100), pt.Margin)
}

func TestCloseVaultUnknownPanics(t *testing.T) {
	s := NewFromInit(InitArgs{})
	require.Panics(t, func() { s.CloseVault(99) })
}

func TestBorrowAddMarginRepay(t *testing.T) {
	s := NewFromInit(InitArgs{})
	owner := testPrincipal(t, 1)
	s.OpenVault(Vault{VaultID: 0, Owner: owner})

	s.BorrowFromVault(0, numeric.TAL(1000))
	require.Equal(t, numeric.TAL(1000), s.VaultIDToVault[0].BorrowedTAL)

	s.AddMarginToVault(0, numeric.CKBTC(500))
	require.Equal(t, numeric.CKBTC(500), s.VaultIDToVault[0].CkbtcMargin)

	s.RepayToVault(0, numeric.TAL(400))
	require.Equal(t, numeric.TAL(600), s.VaultIDToVault[0].BorrowedTAL)

	require.Panics(t, func() { s.RepayToVault(0, numeric.TAL(1000)) })
}

func TestProvideWithdrawClaimLiquidity(t *testing.T) {
	s := NewFromInit(InitArgs{})
	p := testPrincipal(t, 1)

	s.ProvideLiquidity(numeric.TAL(0), p)
	require.Empty(t, s.LiquidityPool)

	s.ProvideLiquidity(numeric.TAL(1000), p)
	require.Equal(t, numeric.TAL(1000), s.GetProvidedLiquidity(p))

	s.WithdrawLiquidity(numeric.TAL(1000), p)
	require.Empty(t, s.LiquidityPool)
	require.Panics(t, func() { s.WithdrawLiquidity(numeric.TAL(1), p) })

	s.LiquidityReturns[p] = numeric.CKBTC(50)
	s.ClaimLiquidityReturns(numeric.CKBTC(50), p)
	require.Empty(t, s.LiquidityReturns)
}

func TestDistributeAcrossLPsSingleProviderExact(t *testing.T) {
	lp := testPrincipal(t, 1)
	pool := map[principal.Principal]numeric.TAL{lp: numeric.TAL(500_000)}

	entries := DistributeAcrossLPs(pool, numeric.TAL(500_000), numeric.CKBTC(1_000_000))
	require.Len(t, entries, 1)
	require.Equal(t, numeric.TAL(500_000), entries[0].TalToDebit)
	require.Equal(t, numeric.CKBTC(1_000_000), entries[0].CkbtcReward)
}

func TestDistributeAcrossLPsConservesSumWithResidual(t *testing.T) {
	lp1 := testPrincipal(t, 1)
	lp2 := testPrincipal(t, 2)
	lp3 := testPrincipal(t, 3)
	pool := map[principal.Principal]numeric.TAL{
		lp1: numeric.TAL(333_333),
		lp2: numeric.TAL(333_333),
		lp3: numeric.TAL(333_334),
	}

	entries := DistributeAcrossLPs(pool, numeric.TAL(1_000_000), numeric.CKBTC(1_000_000))
	var talSum numeric.TAL
	var ckbtcSum numeric.CKBTC
	for _, e := range entries {
		talSum = talSum.Add(e.TalToDebit)
		ckbtcSum = ckbtcSum.Add(e.CkbtcReward)
	}
	require.Equal(t, numeric.TAL(1_000_000), talSum)
	require.Equal(t, numeric.CKBTC(1_000_000), ckbtcSum)
}

func TestDistributeAcrossLPsPanicsWhenPoolTooSmall(t *testing.T) {
	lp := testPrincipal(t, 1)
	pool := map[principal.Principal]numeric.TAL{lp: numeric.TAL(10)}
	require.Panics(t, func() { DistributeAcrossLPs(pool, numeric.TAL(100), numeric.CKBTC(1)) })
}

func TestDistributeAcrossVaultsConservesSum(t *testing.T) {
	owner1 := testPrincipal(t, 1)
	owner2 := testPrincipal(t, 2)
	owner3 := testPrincipal(t, 3)
	vaults := map[VaultID]Vault{
		0: {VaultID: 0, Owner: owner1, BorrowedTAL: numeric.TAL(900), CkbtcMargin: numeric.CKBTC(1_000)},
		1: {VaultID: 1, Owner: owner2, BorrowedTAL: numeric.TAL(200), CkbtcMargin: numeric.CKBTC(300)},
		2: {VaultID: 2, Owner: owner3, BorrowedTAL: numeric.TAL(100), CkbtcMargin: numeric.CKBTC(700)},
	}
	target := vaults[0]

	entries := DistributeAcrossVaults(vaults, target)
	require.Len(t, entries, 2)
	var talSum numeric.TAL
	var ckbtcSum numeric.CKBTC
	for _, e := range entries {
		talSum = talSum.Add(e.TalShareAmount)
		ckbtcSum = ckbtcSum.Add(e.CkbtcShareAmount)
	}
	require.Equal(t, target.BorrowedTAL, talSum)
	require.Equal(t, target.CkbtcMargin, ckbtcSum)
}

func TestLiquidateVaultFull(t *testing.T) {
	s := NewFromInit(InitArgs{})
	owner := testPrincipal(t, 1)
	lp := testPrincipal(t, 2)
	s.OpenVault(Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(1000), CkbtcMargin: numeric.CKBTC(2000)})
	s.LiquidityPool[lp] = numeric.TAL(1000)

	price := numeric.NewUsdBtc(decimal.NewFromInt(1))
	s.LiquidateVault(0, ModeGeneralAvailability, price)

	require.Empty(t, s.VaultIDToVault)
	require.Empty(t, s.LiquidityPool)
	require.Equal(t, numeric.CKBTC(2000), s.LiquidityReturns[lp])
}

func TestLiquidateVaultRecoveryPartial(t *testing.T) {
	s := NewFromInit(InitArgs{})
	owner := testPrincipal(t, 1)
	lp := testPrincipal(t, 2)
	// borrowed=1000, price=1 => partial_margin = 1000*1.10/1 = 1100; vault must
	// have margin comfortably above that and a ratio above MCR for the
	// partial-liquidation branch to trigger (margin*price/borrowed > 1.10).
	s.OpenVault(Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(1000), CkbtcMargin: numeric.CKBTC(2000)})
	s.LiquidityPool[lp] = numeric.TAL(1000)

	price := numeric.NewUsdBtc(decimal.NewFromInt(1))
	s.LiquidateVault(0, ModeRecovery, price)

	v, ok := s.VaultIDToVault[0]
	require.True(t, ok, "vault should survive partial liquidation")
	require.Equal(t, numeric.TAL(0), v.BorrowedTAL)
	require.Equal(t, numeric.CKBTC(900), v.CkbtcMargin)
	require.Empty(t, s.LiquidityPool)
	require.Equal(t, numeric.CKBTC(1100), s.LiquidityReturns[lp])
}

func TestRedeemOnVaultsOrdersByRatioThenID(t *testing.T) {
	s := NewFromInit(InitArgs{})
	price := numeric.NewUsdBtc(decimal.NewFromInt(1))
	owner1 := testPrincipal(t, 1)
	owner2 := testPrincipal(t, 2)
	// vault 0: CR=2 (lower, redeemed first). vault 1: CR=4.
	s.OpenVault(Vault{VaultID: 0, Owner: owner1, BorrowedTAL: numeric.TAL(500), CkbtcMargin: numeric.CKBTC(1000)})
	s.OpenVault(Vault{VaultID: 1, Owner: owner2, BorrowedTAL: numeric.TAL(500), CkbtcMargin: numeric.CKBTC(2000)})

	converted, limitReached := s.RedeemOnVaults(numeric.TAL(500), price, 0)
	require.Equal(t, numeric.TAL(500), converted)
	require.False(t, limitReached)
	require.Equal(t, numeric.TAL(0), s.VaultIDToVault[0].BorrowedTAL)
	require.Equal(t, numeric.CKBTC(500), s.VaultIDToVault[0].CkbtcMargin)
	require.Equal(t, numeric.TAL(500), s.VaultIDToVault[1].BorrowedTAL, "second vault untouched")
}

func TestCheckInvariantsPanicsOnOrphanedIndex(t *testing.T) {
	s := NewFromInit(InitArgs{})
	owner := testPrincipal(t, 1)
	s.PrincipalToVaultIDs[owner] = map[VaultID]struct{}{5: {}}
	require.Panics(t, func() { s.CheckInvariants() })
}

func TestCheckSemanticallyEqual(t *testing.T) {
	owner := testPrincipal(t, 1)
	a := NewFromInit(InitArgs{})
	a.OpenVault(Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(10), CkbtcMargin: numeric.CKBTC(20)})

	b := NewFromInit(InitArgs{})
	b.OpenVault(Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(10), CkbtcMargin: numeric.CKBTC(20)})

	require.NoError(t, a.CheckSemanticallyEqual(b))

	b.VaultIDToVault[0] = Vault{VaultID: 0, Owner: owner, BorrowedTAL: numeric.TAL(11), CkbtcMargin: numeric.CKBTC(20)}
	require.Error(t, a.CheckSemanticallyEqual(b))
}

func TestComputeRedemptionFeeZeroWhenNothingBorrowed(t *testing.T) {
	fee := ComputeRedemptionFee(0, numeric.TAL(0), numeric.TAL(0), numeric.NewRatio(decimal.NewFromFloat(0.01)))
	require.True(t, fee.IsZero())
}

func TestComputeRedemptionFeeClampsToMax(t *testing.T) {
	fee := ComputeRedemptionFee(0, numeric.TAL(1000), numeric.TAL(1000), numeric.NewRatio(decimal.NewFromFloat(0.05)))
	require.True(t, fee.Equal(numeric.NewRatio(decimal.NewFromFloat(0.05))))
}

func TestComputeRedemptionFeeClampsToMin(t *testing.T) {
	fee := ComputeRedemptionFee(1000, numeric.TAL(0), numeric.TAL(1_000_000), numeric.NewRatio(decimal.Zero))
	require.True(t, fee.Equal(numeric.NewRatio(decimal.NewFromFloat(0.005))))
}

func TestComputeRedemptionFeeMidRange(t *testing.T) {
	fee := ComputeRedemptionFee(1, numeric.TAL(10), numeric.TAL(1000), numeric.NewRatio(decimal.NewFromFloat(0.01)))
	require.True(t, fee.Equal(numeric.NewRatio(decimal.NewFromFloat(0.0144))), "got %s", fee)
}
