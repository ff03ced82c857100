package transfer

import (
	"context"
	"sync/atomic"

	"talvault/numeric"
	"talvault/principal"
)

// Executor binds the two ledger collaborators (TAL and ckBTC) and applies
// the protocol's one piece of adaptive state: ckbtc_ledger_fee, updated in
// place whenever the ckBTC ledger reports BadFee. Grounded on
// management.rs's read_state(|s| s.ckbtc_ledger_fee) pattern, translated
// into an atomic field here since Go's transfer executor is a long-lived
// object rather than a per-call state snapshot.
type Executor struct {
	TalLedger   TokenLedgerClient
	CkbtcLedger TokenLedgerClient

	ckbtcFee atomic.Uint64
}

// NewExecutor builds an Executor with the given initial ckBTC ledger fee
// (from the Init payload's fee_e8s field is NOT this value — that's the
// borrow fee; this is the ledger's own per-transfer fee, independently
// discovered on first BadFee).
func NewExecutor(talLedger, ckbtcLedger TokenLedgerClient, initialCkbtcFee numeric.CKBTC) *Executor {
	e := &Executor{TalLedger: talLedger, CkbtcLedger: ckbtcLedger}
	e.ckbtcFee.Store(uint64(initialCkbtcFee))
	return e
}

// CkbtcLedgerFee returns the currently known ckBTC ledger transfer fee.
func (e *Executor) CkbtcLedgerFee() numeric.CKBTC {
	return numeric.CKBTC(e.ckbtcFee.Load())
}

func (e *Executor) updateCkbtcFeeFrom(err error) error {
	classified := classifyError(err)
	if bf, ok := classified.(BadFee); ok {
		e.ckbtcFee.Store(uint64(bf.Expected))
	}
	return classified
}

// MintTAL credits amount TAL to to (e.g. a successful borrow).
func (e *Executor) MintTAL(ctx context.Context, to principal.Principal, amount numeric.TAL) (uint64, error) {
	block, err := e.TalLedger.Transfer(withIdempotencyKey(ctx), to, uint64(amount), 0)
	if err != nil {
		return 0, classifyError(err)
	}
	return block, nil
}

// BurnTAL pulls amount TAL from caller's account via ICRC-2 transfer_from
// (a repay, redeem, or vault-close debt payoff).
func (e *Executor) BurnTAL(ctx context.Context, caller principal.Principal, amount numeric.TAL) (uint64, error) {
	block, err := e.TalLedger.TransferFrom(withIdempotencyKey(ctx), caller, uint64(amount), 0)
	if err != nil {
		return 0, classifyError(err)
	}
	return block, nil
}

// TransferCkbtcIn pulls amount ckBTC from caller into the protocol's
// account (open_vault, add_margin_to_vault).
func (e *Executor) TransferCkbtcIn(ctx context.Context, caller principal.Principal, amount numeric.CKBTC) (uint64, error) {
	fee := e.CkbtcLedgerFee()
	block, err := e.CkbtcLedger.TransferFrom(withIdempotencyKey(ctx), caller, uint64(amount), uint64(fee))
	if err != nil {
		return 0, e.updateCkbtcFeeFrom(err)
	}
	return block, nil
}

// TransferCkbtcOut pays amount ckBTC out of the protocol's account to to
// (vault-close margin payout, redemption payout, liquidity-return claim).
// amount is the gross amount requested; the ledger's fee is deducted by
// the ledger itself, matching management.rs::transfer_ckbtc.
func (e *Executor) TransferCkbtcOut(ctx context.Context, to principal.Principal, amount numeric.CKBTC) (uint64, error) {
	fee := e.CkbtcLedgerFee()
	block, err := e.CkbtcLedger.Transfer(withIdempotencyKey(ctx), to, uint64(amount), uint64(fee))
	if err != nil {
		return 0, e.updateCkbtcFeeFrom(err)
	}
	return block, nil
}
