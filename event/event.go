// Package event defines the protocol's append-only event log: a tagged
// union of domain events, each carrying exactly the fields needed to
// deterministically recompute the state transition it witnesses, and the
// Replay function that folds a full log into a protocolstate.State. Replay
// dispatches on Kind with a switch whose default arm panics: a new Kind
// without a matching case still compiles, but replaying a log that
// contains it panics rather than silently skipping the entry.
package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
)

// Kind tags which variant an Envelope carries.
type Kind uint8

const (
	KindInit Kind = iota
	KindUpgrade
	KindOpenVault
	KindCloseVault
	KindBorrowFromVault
	KindRepayToVault
	KindAddMarginToVault
	KindMarginTransfer
	KindLiquidateVault
	KindRedistributeVault
	KindRedemptionOnVaults
	KindRedemptionTransfered
	KindProvideLiquidity
	KindWithdrawLiquidity
	KindClaimLiquidityReturns
)

// Envelope is the on-disk shape of one log entry: a kind tag plus the
// RLP-encoded payload for that kind. goleveldb keys entries by a monotonic
// sequence number; the envelope itself carries no sequence information.
type Envelope struct {
	Kind    Kind
	Payload []byte
}

// --- Payloads -------------------------------------------------------------

type InitPayload struct {
	XrcPrincipal         principal.Principal
	TalerLedgerPrincipal principal.Principal
	CkbtcLedgerPrincipal principal.Principal
	FeeE8S               uint64
	DeveloperPrincipal   principal.Principal
}

type UpgradePayload struct {
	HasMode bool
	Mode    uint8
}

type OpenVaultPayload struct {
	VaultID     uint64
	Owner       principal.Principal
	BorrowedTAL numeric.TAL
	CkbtcMargin numeric.CKBTC
	BlockIndex  uint64
}

type CloseVaultPayload struct {
	VaultID       uint64
	HasBlockIndex bool
	BlockIndex    uint64
}

type BorrowFromVaultPayload struct {
	VaultID    uint64
	Amount     numeric.TAL
	Fee        numeric.TAL
	BlockIndex uint64
}

type RepayToVaultPayload struct {
	VaultID    uint64
	Amount     numeric.TAL
	BlockIndex uint64
}

type AddMarginToVaultPayload struct {
	VaultID    uint64
	Amount     numeric.CKBTC
	BlockIndex uint64
}

type MarginTransferPayload struct {
	VaultID    uint64
	BlockIndex uint64
}

type LiquidateVaultPayload struct {
	VaultID uint64
	Mode    uint8
	BtcRate numeric.UsdBtc
}

type RedistributeVaultPayload struct {
	VaultID uint64
}

// RedemptionOnVaultsPayload mirrors original_source/protocol/event.rs's
// RedemptionOnVaults: TalAmount is the amount actually converted against
// vaults — the caller's requested amount minus Fee, further capped by
// whatever the live redemption walk's max-vaults bound let it drain —
// never the raw requested amount, so replay reproduces exactly what the
// live walk did instead of draining further vaults to make up a
// difference the live path never converted. It additionally carries the
// fee Ratio that becomes the new current_base_rate (FeeRatio) and the
// wall-clock timestamp needed to replay last_redemption_time exactly —
// without one a replayed state can't reproduce the redemption-fee decay
// term, so it's carried here.
type RedemptionOnVaultsPayload struct {
	Owner          principal.Principal
	BtcRate        numeric.UsdBtc
	TalAmount      numeric.TAL
	Fee            numeric.TAL
	FeeRatio       numeric.Ratio
	TimestampNanos uint64
	TalBlockIndex  uint64
}

type RedemptionTransferedPayload struct {
	TalBlockIndex   uint64
	CkbtcBlockIndex uint64
}

type ProvideLiquidityPayload struct {
	Amount  numeric.TAL
	Block   uint64
	Caller  principal.Principal
}

type WithdrawLiquidityPayload struct {
	Amount numeric.TAL
	Block  uint64
	Caller principal.Principal
}

type ClaimLiquidityReturnsPayload struct {
	Amount numeric.CKBTC
	Block  uint64
	Caller principal.Principal
}

// --- Encode / decode --------------------------------------------------------

// Encode serializes a (kind, payload) pair into an Envelope's wire bytes.
func Encode(kind Kind, payload interface{}) ([]byte, error) {
	inner, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("event: encode payload kind %d: %w", kind, err)
	}
	return rlp.EncodeToBytes(Envelope{Kind: kind, Payload: inner})
}

// Decode parses an Envelope's wire bytes and decodes its payload into dst.
func Decode(raw []byte, dst interface{}) (Kind, error) {
	var env Envelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return 0, fmt.Errorf("event: decode envelope: %w", err)
	}
	if dst != nil {
		if err := rlp.DecodeBytes(env.Payload, dst); err != nil {
			return env.Kind, fmt.Errorf("event: decode payload kind %d: %w", env.Kind, err)
		}
	}
	return env.Kind, nil
}

// DecodeEnvelope unwraps an Envelope's wire bytes into its kind tag and
// still-encoded inner payload, without decoding the payload into a
// concrete struct. eventstore uses this to build a RawEntry for Replay,
// which decodes each payload lazily per its own kind switch.
func DecodeEnvelope(raw []byte) (Kind, []byte, error) {
	var env Envelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return 0, nil, fmt.Errorf("event: decode envelope: %w", err)
	}
	return env.Kind, env.Payload, nil
}

// ModeToByte and ByteToMode convert protocolstate.Mode to and from the
// uint8 RLP can encode directly (go-ethereum's rlp package only supports
// unsigned integer kinds, not protocolstate.Mode's underlying signed int).
func ModeToByte(m protocolstate.Mode) uint8 { return uint8(m) }
func ByteToMode(b uint8) protocolstate.Mode { return protocolstate.Mode(b) }

func byteToMode(b uint8) protocolstate.Mode { return ByteToMode(b) }
