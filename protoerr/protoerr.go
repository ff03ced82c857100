// Package protoerr defines the protocol's RPC-facing error taxonomy
// shared by vault/, liquiditypool/, liquidation/ and
// rpcservice/ so every mutating endpoint surfaces the same typed errors
// regardless of which package's precondition rejected the call. Grounded
// on original_source/protocol/lib.rs's ProtocolError enum, translated from
// a single closed sum type into Go's open error-value idiom: each variant
// is its own type implementing error, and callers use errors.As to
// recover the structured fields an RPC response needs.
package protoerr

import "fmt"

// ErrAnonymousCallerNotAllowed rejects a mutating call from the anonymous
// principal.
var ErrAnonymousCallerNotAllowed = fmt.Errorf("protoerr: anonymous caller not allowed")

// ErrAlreadyProcessing is surfaced when guard.ErrAlreadyProcessing bubbles
// up from the per-principal reentrancy guard.
var ErrAlreadyProcessing = fmt.Errorf("protoerr: caller already has a request in flight")

// TemporarilyUnavailable covers both guard.ErrTooManyConcurrentRequests
// and mode-gated rejections (ReadOnly mode, stale oracle).
type TemporarilyUnavailable struct {
	Reason string
}

func (e TemporarilyUnavailable) Error() string {
	return "protoerr: temporarily unavailable: " + e.Reason
}

// ErrCallerNotOwner rejects a vault operation from a non-owning caller.
var ErrCallerNotOwner = fmt.Errorf("protoerr: caller does not own this vault")

// AmountTooLow rejects an amount below the operation's minimum.
type AmountTooLow struct {
	Minimum uint64
}

func (e AmountTooLow) Error() string {
	return fmt.Sprintf("protoerr: amount too low, minimum is %d", e.Minimum)
}

// TransferFromError wraps a failed inbound (transfer_from) ledger call.
type TransferFromError struct {
	Kind   error
	Amount uint64
}

func (e TransferFromError) Error() string {
	return fmt.Sprintf("protoerr: transfer_from failed for amount %d: %v", e.Amount, e.Kind)
}

func (e TransferFromError) Unwrap() error { return e.Kind }

// TransferError wraps a failed outbound (transfer/mint) ledger call.
type TransferError struct {
	Kind error
}

func (e TransferError) Error() string {
	return fmt.Sprintf("protoerr: transfer failed: %v", e.Kind)
}

func (e TransferError) Unwrap() error { return e.Kind }

// Generic covers business-rule violations with no dedicated type (e.g.
// borrowing beyond the vault's maximum).
type Generic struct {
	Msg string
}

func (e Generic) Error() string { return "protoerr: " + e.Msg }
