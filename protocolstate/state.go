// Package protocolstate holds the single in-memory aggregate this protocol
// folds its event log into, and the mutation methods that keep it
// consistent. State-changing operations elsewhere in the repository
// (vault, liquiditypool, liquidation, oracle, event replay, the
// pending-transfer worker) go mostly through the methods defined here;
// some of them also assign fields such as Mode, LastBtcRate,
// CurrentBaseRate and the pending-transfer maps directly.
package protocolstate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"talvault/numeric"
	"talvault/principal"
)

// CkbtcTransferFee is the ledger's advertised transfer fee, used as the
// initial guess for the adaptive ckbtcLedgerFee before any BadFee response
// corrects it.
const CkbtcTransferFee = numeric.CKBTC(10)

// DefaultBorrowFee returns a 0.5% borrow fee ratio. NewFromInit does not
// use it: fee_e8s is converted as given, so a zero fee_e8s means a zero
// borrow fee.
func DefaultBorrowFee() numeric.Ratio {
	return numeric.NewRatio(decimal.NewFromFloat(0.005))
}

// PendingTransfer records an outbound ckBTC payout still owed after a vault
// close or a redemption, keyed by vault id or TAL burn block index
// respectively.
type PendingTransfer struct {
	Owner  principal.Principal
	Margin numeric.CKBTC
}

// InitArgs mirrors the protocol's init payload.
type InitArgs struct {
	XrcPrincipal         principal.Principal
	TalerLedgerPrincipal principal.Principal
	CkbtcLedgerPrincipal principal.Principal
	FeeE8S               uint64
	DeveloperPrincipal   principal.Principal
}

// UpgradeArgs mirrors the protocol's upgrade payload.
type UpgradeArgs struct {
	Mode *Mode
}

// State is the single process-wide aggregate. Once handed to NewStore it
// is reached through Store's Read/Mutate pair — see store.go; start-up
// code (replay, NewFromInit) and tests build and hold a *State directly.
type State struct {
	VaultIDToVault      map[VaultID]Vault
	PrincipalToVaultIDs map[principal.Principal]map[VaultID]struct{}

	LiquidityPool    map[principal.Principal]numeric.TAL
	LiquidityReturns map[principal.Principal]numeric.CKBTC

	PendingMarginTransfers     map[VaultID]PendingTransfer
	PendingRedemptionTransfer  map[uint64]PendingTransfer
	LastRedemptionTime         uint64
	CurrentBaseRate            numeric.Ratio

	Mode Mode
	Fee  numeric.Ratio

	DeveloperPrincipal principal.Principal
	NextAvailableVaultID VaultID
	TotalCollateralRatio numeric.Ratio

	XrcPrincipal         principal.Principal
	TalerLedgerPrincipal principal.Principal
	CkbtcLedgerPrincipal principal.Principal
	CkbtcLedgerFee       numeric.CKBTC

	LastBtcRate      *numeric.UsdBtc
	LastBtcTimestamp *uint64

	PrincipalGuards map[principal.Principal]struct{}
	IsTimerRunning  bool
	IsFetchingRate  bool
}

// NewFromInit builds the initial State from an Init payload.
func NewFromInit(args InitArgs) *State {
	fee := decimal.NewFromInt(int64(args.FeeE8S)).Div(decimal.NewFromInt(int64(numeric.E8S)))
	return &State{
		VaultIDToVault:            make(map[VaultID]Vault),
		PrincipalToVaultIDs:       make(map[principal.Principal]map[VaultID]struct{}),
		LiquidityPool:             make(map[principal.Principal]numeric.TAL),
		LiquidityReturns:          make(map[principal.Principal]numeric.CKBTC),
		PendingMarginTransfers:    make(map[VaultID]PendingTransfer),
		PendingRedemptionTransfer: make(map[uint64]PendingTransfer),
		LastRedemptionTime:        0,
		CurrentBaseRate:           numeric.NewRatio(decimal.Zero),
		Mode:                      ModeGeneralAvailability,
		Fee:                       numeric.NewRatio(fee),
		DeveloperPrincipal:        args.DeveloperPrincipal,
		NextAvailableVaultID:      0,
		TotalCollateralRatio:      numeric.MaxRatio(),
		XrcPrincipal:              args.XrcPrincipal,
		TalerLedgerPrincipal:      args.TalerLedgerPrincipal,
		CkbtcLedgerPrincipal:      args.CkbtcLedgerPrincipal,
		CkbtcLedgerFee:            CkbtcTransferFee,
		LastBtcRate:               nil,
		LastBtcTimestamp:          nil,
		PrincipalGuards:           make(map[principal.Principal]struct{}),
		IsTimerRunning:            false,
		IsFetchingRate:            false,
	}
}

// Upgrade applies an operator-provided upgrade payload.
func (s *State) Upgrade(args UpgradeArgs) {
	if args.Mode != nil {
		s.Mode = *args.Mode
	}
}

// IncrementVaultID allocates and returns the next vault id.
func (s *State) IncrementVaultID() VaultID {
	id := s.NextAvailableVaultID
	s.NextAvailableVaultID++
	return id
}

// TotalBorrowedTAL sums debt across every vault.
func (s *State) TotalBorrowedTAL() numeric.TAL {
	var total numeric.TAL
	for _, v := range s.VaultIDToVault {
		total = total.Add(v.BorrowedTAL)
	}
	return total
}

// TotalCkbtcMargin sums collateral across every vault.
func (s *State) TotalCkbtcMargin() numeric.CKBTC {
	var total numeric.CKBTC
	for _, v := range s.VaultIDToVault {
		total = total.Add(v.CkbtcMargin)
	}
	return total
}

// ComputeTotalCollateralRatio returns MaxRatio when nothing is borrowed.
func (s *State) ComputeTotalCollateralRatio(price numeric.UsdBtc) numeric.Ratio {
	totalBorrowed := s.TotalBorrowedTAL()
	if totalBorrowed == 0 {
		return numeric.MaxRatio()
	}
	return s.TotalCkbtcMargin().Mul(price).DivTAL(totalBorrowed)
}

// GetBorrowingFee is zero in Recovery, else the configured fee.
func (s *State) GetBorrowingFee() numeric.Ratio {
	if s.Mode == ModeRecovery {
		return numeric.NewRatio(decimal.Zero)
	}
	return s.Fee
}

// UpdateTotalCollateralRatioAndMode recomputes TCR and applies the mode
// transition rules.
func (s *State) UpdateTotalCollateralRatioAndMode(price numeric.UsdBtc) {
	tcr := s.ComputeTotalCollateralRatio(price)
	s.TotalCollateralRatio = tcr

	one := numeric.NewRatio(decimal.NewFromInt(1))
	switch {
	case tcr.LessThan(one):
		s.Mode = ModeReadOnly
	case tcr.LessThan(RecoveryCollateralRatio()):
		s.Mode = ModeRecovery
	default:
		s.Mode = ModeGeneralAvailability
	}
}

// GetProvidedLiquidity returns a principal's pool balance, or zero.
func (s *State) GetProvidedLiquidity(p principal.Principal) numeric.TAL {
	return s.LiquidityPool[p]
}

// GetLiquidityReturnsOf returns a principal's pending reward balance, or zero.
func (s *State) GetLiquidityReturnsOf(p principal.Principal) numeric.CKBTC {
	return s.LiquidityReturns[p]
}

// TotalProvidedLiquidity sums every provider's pool balance.
func (s *State) TotalProvidedLiquidity() numeric.TAL {
	var total numeric.TAL
	for _, v := range s.LiquidityPool {
		total = total.Add(v)
	}
	return total
}

// TotalAvailableReturns sums every provider's pending reward balance.
func (s *State) TotalAvailableReturns() numeric.CKBTC {
	var total numeric.CKBTC
	for _, v := range s.LiquidityReturns {
		total = total.Add(v)
	}
	return total
}

func (s *State) String() string {
	return fmt.Sprintf("State{vaults=%d mode=%s tcr=%s}", len(s.VaultIDToVault), s.Mode, s.TotalCollateralRatio)
}
