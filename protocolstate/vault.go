package protocolstate

import (
	"talvault/numeric"
	"talvault/principal"
)

// VaultID identifies a vault within the protocol.
type VaultID = uint64

// Vault is a per-user box holding ckBTC collateral against minted TAL debt.
type Vault struct {
	VaultID      VaultID
	Owner        principal.Principal
	BorrowedTAL  numeric.TAL
	CkbtcMargin  numeric.CKBTC
}

// Clone returns a value copy; Vault has no reference fields, so this is
// just here to make call sites that expect an explicit copy self-documenting.
func (v Vault) Clone() Vault { return v }

// CollateralRatio computes CR(v, price) = (margin * price) / borrowed,
// returning MaxRatio when the vault carries no debt.
func (v Vault) CollateralRatio(price numeric.UsdBtc) numeric.Ratio {
	if v.BorrowedTAL == 0 {
		return numeric.MaxRatio()
	}
	marginValue := v.CkbtcMargin.Mul(price)
	return marginValue.DivTAL(v.BorrowedTAL)
}
