// Package transfer is the protocol's external-effect executor: every
// outbound movement of TAL or ckBTC is issued through the interface here
// rather than a concrete transport.
// Transport itself (the wire protocol to the two ledger canisters and the
// exchange-rate service) is deliberately out of scope; callers inject a
// TokenLedgerClient implementation of their choosing (the oracle-side
// counterpart, oracle.Client, lives in the oracle package).
// Grounded on nhbchain's payoutd.Attestor/TxClient collaborator-interface
// idiom (services/payoutd/attest.go) and on original_source/protocol's
// management.rs, whose mint_tal/transfer_ckbtc/transfer_ckbtc_from
// functions this package's methods mirror; the price fetch is not here.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"talvault/numeric"
	"talvault/principal"
)

// BadFee is returned by a ledger when the caller's fee argument doesn't
// match the ledger's current fee. The caller must update its cached fee
// and retry; it is not a terminal failure.
type BadFee struct {
	Expected numeric.CKBTC
}

func (e BadFee) Error() string {
	return fmt.Sprintf("transfer: bad fee, ledger expects %s", e.Expected)
}

// ErrInsufficientFunds is returned when the source account's balance (or
// its ICRC-2 allowance, for TransferFrom) is too small to cover the
// requested amount plus fee.
var ErrInsufficientFunds = errors.New("transfer: insufficient funds")

// GenericTransferError wraps any ledger failure that isn't BadFee or
// insufficient funds (network failure, canister trap, rejected call).
type GenericTransferError struct {
	Reason string
}

func (e GenericTransferError) Error() string { return "transfer: " + e.Reason }

// TokenLedgerClient is satisfied by an ICRC-1/ICRC-2 style ledger client.
// Amount is a generic uint64 count of the ledger's own base units; callers
// pass numeric.TAL or numeric.CKBTC values converted via their Uint64-ish
// accessor, since the two ledgers are distinct types in the caller's
// domain but share this wire shape.
type TokenLedgerClient interface {
	// Transfer moves amount from the protocol's own account to to, minus
	// fee, returning the ledger's block index on success.
	Transfer(ctx context.Context, to principal.Principal, amount uint64, fee uint64) (blockIndex uint64, err error)

	// TransferFrom pulls amount from from's account (via a pre-existing
	// ICRC-2 approval) into the protocol's account.
	TransferFrom(ctx context.Context, from principal.Principal, amount uint64, fee uint64) (blockIndex uint64, err error)
}

// classifyError maps a raw ledger error into the typed taxonomy this
// package exposes, so callers never need to inspect transport-specific
// error values directly.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var bf BadFee
	if errors.As(err, &bf) {
		return bf
	}
	if errors.Is(err, ErrInsufficientFunds) {
		return ErrInsufficientFunds
	}
	return GenericTransferError{Reason: err.Error()}
}
