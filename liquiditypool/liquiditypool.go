// Package liquiditypool implements the three liquidity-provider RPC
// operations: provide, withdraw, and claim accrued ckBTC rewards.
// Grounded on original_source/protocol/liquidity_pool.rs's
// provide_liquidity/withdraw_liquidity/claim_liquidity_returns, which this
// package's methods mirror one-for-one including the adaptive
// ckbtc_ledger_fee update on a BadFee response during a claim.
package liquiditypool

import (
	"context"
	"log/slog"

	"talvault/event"
	"talvault/guard"
	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
	"talvault/protoerr"
	"talvault/transfer"
)

// MinLiquidityAmount is lib.rs's MIN_LIQUIDITY_AMOUNT.
const MinLiquidityAmount = 1_000_000_000

// Service binds liquidity-pool operations to the protocol's shared
// collaborators.
type Service struct {
	Store    *protocolstate.Store
	Executor *transfer.Executor
	Events   event.Appender
	Guards   *guard.PrincipalGuards
	Logger   *slog.Logger
}

// NewService constructs a liquiditypool.Service.
func NewService(store *protocolstate.Store, exec *transfer.Executor, events event.Appender, guards *guard.PrincipalGuards, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Executor: exec, Events: events, Guards: guards, Logger: logger}
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

// ProvideLiquidity burns amount TAL from caller and credits their
// liquidity-pool balance. Rejected in ReadOnly mode.
func (s *Service) ProvideLiquidity(ctx context.Context, caller principal.Principal, amount numeric.TAL) (uint64, error) {
	if caller.IsAnonymous() {
		return 0, protoerr.ErrAnonymousCallerNotAllowed
	}
	if amount < MinLiquidityAmount {
		return 0, protoerr.AmountTooLow{Minimum: MinLiquidityAmount}
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return 0, guardErr(err)
	}
	defer release()

	var modeErr error
	s.Store.Read(func(state *protocolstate.State) {
		if !state.Mode.IsAvailable() {
			modeErr = protoerr.TemporarilyUnavailable{Reason: "protocol is read-only"}
		}
	})
	if modeErr != nil {
		return 0, modeErr
	}

	blockIndex, err := s.Executor.BurnTAL(ctx, caller, amount)
	if err != nil {
		return 0, protoerr.TransferFromError{Kind: err, Amount: uint64(amount)}
	}

	var appendErr error
	s.Store.Mutate(func(state *protocolstate.State) {
		_, appendErr = s.Events.Append(event.KindProvideLiquidity, event.ProvideLiquidityPayload{
			Amount: amount,
			Block:  blockIndex,
			Caller: caller,
		})
		if appendErr != nil {
			return
		}
		state.ProvideLiquidity(amount, caller)
	})
	if appendErr != nil {
		return 0, protoerr.Generic{Msg: "failed to persist provide_liquidity event: " + appendErr.Error()}
	}

	s.Logger.Info("provide_liquidity: provided", "caller", caller.String(), "amount", amount.String())
	return blockIndex, nil
}

// WithdrawLiquidity mints amount TAL back to caller and decrements their
// liquidity-pool balance. Rejected in ReadOnly mode.
func (s *Service) WithdrawLiquidity(ctx context.Context, caller principal.Principal, amount numeric.TAL) (uint64, error) {
	if caller.IsAnonymous() {
		return 0, protoerr.ErrAnonymousCallerNotAllowed
	}
	if amount < MinLiquidityAmount {
		return 0, protoerr.AmountTooLow{Minimum: MinLiquidityAmount}
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return 0, guardErr(err)
	}
	defer release()

	var precondErr error
	s.Store.Read(func(state *protocolstate.State) {
		if !state.Mode.IsAvailable() {
			precondErr = protoerr.TemporarilyUnavailable{Reason: "protocol is read-only"}
			return
		}
		provided := state.GetProvidedLiquidity(caller)
		if amount > provided {
			precondErr = protoerr.Generic{Msg: "cannot withdraw more than provided"}
		}
	})
	if precondErr != nil {
		return 0, precondErr
	}

	blockIndex, err := s.Executor.MintTAL(ctx, caller, amount)
	if err != nil {
		return 0, protoerr.TransferError{Kind: err}
	}

	var appendErr error
	s.Store.Mutate(func(state *protocolstate.State) {
		_, appendErr = s.Events.Append(event.KindWithdrawLiquidity, event.WithdrawLiquidityPayload{
			Amount: amount,
			Block:  blockIndex,
			Caller: caller,
		})
		if appendErr != nil {
			return
		}
		state.WithdrawLiquidity(amount, caller)
	})
	if appendErr != nil {
		return 0, protoerr.Generic{Msg: "failed to persist withdraw_liquidity event: " + appendErr.Error()}
	}

	s.Logger.Info("withdraw_liquidity: withdrew", "caller", caller.String(), "amount", amount.String())
	return blockIndex, nil
}

// ClaimLiquidityReturns pays out a provider's full accrued ckBTC reward.
// Allowed even in ReadOnly mode.
func (s *Service) ClaimLiquidityReturns(ctx context.Context, caller principal.Principal) (uint64, error) {
	if caller.IsAnonymous() {
		return 0, protoerr.ErrAnonymousCallerNotAllowed
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return 0, guardErr(err)
	}
	defer release()

	var returnAmount numeric.CKBTC
	s.Store.Read(func(state *protocolstate.State) {
		returnAmount = state.GetLiquidityReturnsOf(caller)
	})
	if returnAmount == 0 {
		return 0, protoerr.Generic{Msg: "no reward to claim"}
	}

	blockIndex, err := s.Executor.TransferCkbtcOut(ctx, caller, returnAmount)
	if err != nil {
		return 0, protoerr.TransferError{Kind: err}
	}

	var appendErr error
	s.Store.Mutate(func(state *protocolstate.State) {
		_, appendErr = s.Events.Append(event.KindClaimLiquidityReturns, event.ClaimLiquidityReturnsPayload{
			Amount: returnAmount,
			Block:  blockIndex,
			Caller: caller,
		})
		if appendErr != nil {
			return
		}
		state.ClaimLiquidityReturns(returnAmount, caller)
	})
	if appendErr != nil {
		return 0, protoerr.Generic{Msg: "failed to persist claim_liquidity_returns event: " + appendErr.Error()}
	}

	s.Logger.Info("claim_liquidity_returns: claimed", "caller", caller.String(), "amount", returnAmount.String())
	return blockIndex, nil
}
