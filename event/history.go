package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// DecodePayload decodes a RawEntry's still-encoded payload into the
// concrete struct its Kind carries, returning it as interface{} for
// display by get_vault_history / get_events. Separate from Decode, which
// expects the full Envelope-wrapped wire bytes rather than an already
// unwrapped RawEntry.Payload.
func DecodePayload(kind Kind, payload []byte) (interface{}, error) {
	switch kind {
	case KindInit:
		var p InitPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindUpgrade:
		var p UpgradePayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindOpenVault:
		var p OpenVaultPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindCloseVault:
		var p CloseVaultPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindBorrowFromVault:
		var p BorrowFromVaultPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindRepayToVault:
		var p RepayToVaultPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindAddMarginToVault:
		var p AddMarginToVaultPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindMarginTransfer:
		var p MarginTransferPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindLiquidateVault:
		var p LiquidateVaultPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindRedistributeVault:
		var p RedistributeVaultPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindRedemptionOnVaults:
		var p RedemptionOnVaultsPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindRedemptionTransfered:
		var p RedemptionTransferedPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindProvideLiquidity:
		var p ProvideLiquidityPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindWithdrawLiquidity:
		var p WithdrawLiquidityPayload
		return p, rlp.DecodeBytes(payload, &p)
	case KindClaimLiquidityReturns:
		var p ClaimLiquidityReturnsPayload
		return p, rlp.DecodeBytes(payload, &p)
	default:
		return nil, fmt.Errorf("event: unknown kind %d in DecodePayload", kind)
	}
}

// VaultIDOf reports which vault_id a decoded payload concerns, for
// get_vault_history. Kinds that don't carry a single vault_id
// (Init, Upgrade, RedemptionOnVaults, the liquidity-pool events) return
// ok=false — RedemptionOnVaults in particular affects however many vaults
// its walk touches without naming them individually in the event itself.
func VaultIDOf(decoded interface{}) (vaultID uint64, ok bool) {
	switch p := decoded.(type) {
	case OpenVaultPayload:
		return p.VaultID, true
	case CloseVaultPayload:
		return p.VaultID, true
	case BorrowFromVaultPayload:
		return p.VaultID, true
	case RepayToVaultPayload:
		return p.VaultID, true
	case AddMarginToVaultPayload:
		return p.VaultID, true
	case MarginTransferPayload:
		return p.VaultID, true
	case LiquidateVaultPayload:
		return p.VaultID, true
	case RedistributeVaultPayload:
		return p.VaultID, true
	default:
		return 0, false
	}
}

