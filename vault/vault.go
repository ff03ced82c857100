// Package vault implements the protocol's per-vault RPC operations:
// open, borrow, repay, add margin, close, and the ckBTC redemption
// endpoint. Each operation follows the same shape a lending engine uses
// for a state transition — validate preconditions against the
// injected state, perform the one external effect through the transfer
// executor, then append the witnessing event and mutate state — grounded
// on original_source/protocol/vault.rs, whose open_vault/borrow_from_vault/
// repay_to_vault/add_margin_to_vault/close_vault/redeem_ckbtc functions
// this package's methods mirror one-for-one, translated from async
// canister calls into explicit context.Context-carrying Go methods.
package vault

import (
	"log/slog"

	"talvault/event"
	"talvault/guard"
	"talvault/protocolstate"
	"talvault/protoerr"
	"talvault/transfer"
)

// Minimum amounts, grounded on lib.rs's MIN_CKBTC_AMOUNT / MIN_TAL_AMOUNT.
const (
	MinCkbtcAmount = 100_000
	MinTalAmount   = 1_000_000_000
)

// DefaultMaxVaultsPerRedemption bounds how many vaults a single
// redeem_ckbtc call will drain — new protective behavior added per
// DESIGN.md's Open Question 3 decision; the original had no such cap.
const DefaultMaxVaultsPerRedemption = 500

// Clock abstracts wall-clock time so tests can supply a deterministic
// value instead of calling time.Now(); the live entrypoint wires this to
// a nanosecond Unix-time function.
type Clock func() uint64

// Service binds vault operations to the protocol's shared collaborators.
type Service struct {
	Store    *protocolstate.Store
	Executor *transfer.Executor
	Events   event.Appender
	Guards   *guard.PrincipalGuards
	Clock    Clock
	Logger   *slog.Logger

	MaxVaultsPerRedemption int
}

// NewService constructs a vault.Service with the redemption cap defaulted
// to DefaultMaxVaultsPerRedemption.
func NewService(store *protocolstate.Store, exec *transfer.Executor, events event.Appender, guards *guard.PrincipalGuards, clock Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:                  store,
		Executor:               exec,
		Events:                 events,
		Guards:                 guards,
		Clock:                  clock,
		Logger:                 logger,
		MaxVaultsPerRedemption: DefaultMaxVaultsPerRedemption,
	}
}

func guardErr(err error) error {
	switch err {
	case guard.ErrAlreadyProcessing:
		return protoerr.ErrAlreadyProcessing
	case guard.ErrTooManyConcurrentRequests:
		return protoerr.TemporarilyUnavailable{Reason: "too many concurrent requests"}
	default:
		return err
	}
}

// checkOracleFresh surfaces the oracle staleness guard as the typed
// error mutating endpoints must return.
func checkOracleFresh(s *protocolstate.State, now uint64) error {
	if !s.IsOracleFresh(now) {
		return protoerr.TemporarilyUnavailable{Reason: "last known BTC price too old"}
	}
	return nil
}
