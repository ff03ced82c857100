package transfer

import (
	"context"

	"github.com/google/uuid"
)

// idempotencyKeyType is an unexported context-key type so this package's
// idempotency key can never collide with another package's context value.
type idempotencyKeyType struct{}

// withIdempotencyKey attaches a freshly generated key to ctx before an
// outbound ledger call. A TokenLedgerClient transport that retries a failed
// request (a dropped response whose effect may or may not have landed) can
// read this key via IdempotencyKey to deduplicate against the ledger's own
// retry-safe endpoint, the same role nhbchain's payoutd request IDs play
// for its outbound payout batches.
func withIdempotencyKey(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotencyKeyType{}, uuid.NewString())
}

// IdempotencyKey returns the key attached by the Executor for the
// in-flight outbound call, if any.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKeyType{}).(string)
	return key, ok
}
