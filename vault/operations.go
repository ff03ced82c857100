package vault

import (
	"context"

	"talvault/event"
	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
	"talvault/protoerr"
)

// OpenVaultResult mirrors original_source/protocol/vault.rs's
// OpenVaultSuccess.
type OpenVaultResult struct {
	VaultID    protocolstate.VaultID
	BlockIndex uint64
}

// OpenVault transfers ckbtcMargin from caller into the protocol account
// and creates a new zero-debt vault for them.
func (s *Service) OpenVault(ctx context.Context, caller principal.Principal, ckbtcMargin numeric.CKBTC) (OpenVaultResult, error) {
	if caller.IsAnonymous() {
		return OpenVaultResult{}, protoerr.ErrAnonymousCallerNotAllowed
	}
	if ckbtcMargin < MinCkbtcAmount {
		return OpenVaultResult{}, protoerr.AmountTooLow{Minimum: MinCkbtcAmount}
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return OpenVaultResult{}, guardErr(err)
	}
	defer release()

	now := s.Clock()
	var modeErr error
	s.Store.Read(func(state *protocolstate.State) {
		// Open Question 5 (DESIGN.md): OpenVault is rejected in ReadOnly,
		// departing from the literal original source in favor of the explicit
		// documented behavior.
		if state.Mode == protocolstate.ModeReadOnly {
			modeErr = protoerr.TemporarilyUnavailable{Reason: "protocol is read-only"}
			return
		}
		modeErr = checkOracleFresh(state, now)
	})
	if modeErr != nil {
		return OpenVaultResult{}, modeErr
	}

	blockIndex, err := s.Executor.TransferCkbtcIn(ctx, caller, ckbtcMargin)
	if err != nil {
		return OpenVaultResult{}, protoerr.TransferFromError{Kind: err, Amount: uint64(ckbtcMargin)}
	}

	var (
		vaultID   protocolstate.VaultID
		appendErr error
	)
	s.Store.Mutate(func(state *protocolstate.State) {
		vaultID = state.IncrementVaultID()
		_, appendErr = s.Events.Append(event.KindOpenVault, event.OpenVaultPayload{
			VaultID:     vaultID,
			Owner:       caller,
			BorrowedTAL: 0,
			CkbtcMargin: ckbtcMargin,
			BlockIndex:  blockIndex,
		})
		if appendErr != nil {
			return
		}
		state.OpenVault(protocolstate.Vault{
			VaultID:     vaultID,
			Owner:       caller,
			BorrowedTAL: 0,
			CkbtcMargin: ckbtcMargin,
		})
	})
	if appendErr != nil {
		return OpenVaultResult{}, protoerr.Generic{Msg: "failed to persist open_vault event: " + appendErr.Error()}
	}

	s.Logger.Info("open_vault: opened", "vault_id", vaultID, "owner", caller.String())
	return OpenVaultResult{VaultID: vaultID, BlockIndex: blockIndex}, nil
}

// SuccessWithFee mirrors original_source/protocol::SuccessWithFee.
type SuccessWithFee struct {
	BlockIndex    uint64
	FeeAmountPaid numeric.TAL
}

// BorrowFromVault mints additional TAL debt against an existing vault's
// margin, charging the current borrowing fee (zero in Recovery).
func (s *Service) BorrowFromVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID, amount numeric.TAL) (SuccessWithFee, error) {
	if caller.IsAnonymous() {
		return SuccessWithFee{}, protoerr.ErrAnonymousCallerNotAllowed
	}
	if amount < MinTalAmount {
		return SuccessWithFee{}, protoerr.AmountTooLow{Minimum: MinTalAmount}
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return SuccessWithFee{}, guardErr(err)
	}
	defer release()

	now := s.Clock()
	var (
		vault      protocolstate.Vault
		btcRate    numeric.UsdBtc
		fee        numeric.TAL
		precondErr error
	)
	s.Store.Read(func(state *protocolstate.State) {
		if !state.Mode.IsAvailable() {
			precondErr = protoerr.TemporarilyUnavailable{Reason: "protocol is read-only"}
			return
		}
		if precondErr = checkOracleFresh(state, now); precondErr != nil {
			return
		}
		v, ok := state.VaultIDToVault[vaultID]
		if !ok {
			precondErr = protoerr.Generic{Msg: "vault not found"}
			return
		}
		if v.Owner != caller {
			precondErr = protoerr.ErrCallerNotOwner
			return
		}
		vault = v
		btcRate = *state.LastBtcRate

		maxBorrowable := vault.CkbtcMargin.Mul(btcRate).DivRatio(state.Mode.MinimumLiquidationCollateralRatio())
		if vault.BorrowedTAL.Add(amount) > maxBorrowable {
			precondErr = protoerr.Generic{Msg: "borrowing this amount would exceed the vault's maximum"}
			return
		}
		fee = amount.MulRatio(state.GetBorrowingFee())
	})
	if precondErr != nil {
		return SuccessWithFee{}, precondErr
	}

	blockIndex, err := s.Executor.MintTAL(ctx, caller, amount.Sub(fee))
	if err != nil {
		return SuccessWithFee{}, protoerr.TransferError{Kind: err}
	}

	var appendErr error
	s.Store.Mutate(func(state *protocolstate.State) {
		_, appendErr = s.Events.Append(event.KindBorrowFromVault, event.BorrowFromVaultPayload{
			VaultID:    vaultID,
			Amount:     amount,
			Fee:        fee,
			BlockIndex: blockIndex,
		})
		if appendErr != nil {
			return
		}
		// Live path credits the developer's liquidity-pool fee AFTER
		// mutating the vault's debt — the deliberate ordering asymmetry
		// with replay (Open Question 2, DESIGN.md), grounded on
		// event.rs::record_borrow_from_vault.
		state.BorrowFromVault(vaultID, amount)
		if fee > 0 {
			state.ProvideLiquidity(fee, state.DeveloperPrincipal)
		}
	})
	if appendErr != nil {
		return SuccessWithFee{}, protoerr.Generic{Msg: "failed to persist borrow_from_vault event: " + appendErr.Error()}
	}

	s.Logger.Debug("borrow_from_vault: borrowed", "vault_id", vaultID, "amount", amount.String(), "fee", fee.String())
	return SuccessWithFee{BlockIndex: blockIndex, FeeAmountPaid: fee}, nil
}

// RepayToVault burns amount TAL from the caller's balance against a
// vault's debt. Allowed even in ReadOnly mode.
func (s *Service) RepayToVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID, amount numeric.TAL) (uint64, error) {
	if caller.IsAnonymous() {
		return 0, protoerr.ErrAnonymousCallerNotAllowed
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return 0, guardErr(err)
	}
	defer release()

	var precondErr error
	s.Store.Read(func(state *protocolstate.State) {
		v, ok := state.VaultIDToVault[vaultID]
		if !ok {
			precondErr = protoerr.Generic{Msg: "vault not found"}
			return
		}
		if v.Owner != caller {
			precondErr = protoerr.ErrCallerNotOwner
			return
		}
		if amount < MinTalAmount {
			precondErr = protoerr.AmountTooLow{Minimum: MinTalAmount}
			return
		}
		if v.BorrowedTAL < amount {
			precondErr = protoerr.Generic{Msg: "cannot repay more than borrowed"}
			return
		}
	})
	if precondErr != nil {
		return 0, precondErr
	}

	blockIndex, err := s.Executor.BurnTAL(ctx, caller, amount)
	if err != nil {
		return 0, protoerr.TransferFromError{Kind: err, Amount: uint64(amount)}
	}

	var appendErr error
	s.Store.Mutate(func(state *protocolstate.State) {
		_, appendErr = s.Events.Append(event.KindRepayToVault, event.RepayToVaultPayload{
			VaultID:    vaultID,
			Amount:     amount,
			BlockIndex: blockIndex,
		})
		if appendErr != nil {
			return
		}
		state.RepayToVault(vaultID, amount)
	})
	if appendErr != nil {
		return 0, protoerr.Generic{Msg: "failed to persist repay_to_vault event: " + appendErr.Error()}
	}

	s.Logger.Debug("repay_to_vault: repaid", "vault_id", vaultID, "amount", amount.String())
	return blockIndex, nil
}

// AddMarginToVault transfers amount ckBTC from caller into an existing
// vault's margin. Allowed even in ReadOnly mode.
func (s *Service) AddMarginToVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID, amount numeric.CKBTC) (uint64, error) {
	if caller.IsAnonymous() {
		return 0, protoerr.ErrAnonymousCallerNotAllowed
	}
	if amount < MinCkbtcAmount {
		return 0, protoerr.AmountTooLow{Minimum: MinCkbtcAmount}
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return 0, guardErr(err)
	}
	defer release()

	var precondErr error
	s.Store.Read(func(state *protocolstate.State) {
		v, ok := state.VaultIDToVault[vaultID]
		if !ok {
			precondErr = protoerr.Generic{Msg: "vault not found"}
			return
		}
		if v.Owner != caller {
			precondErr = protoerr.ErrCallerNotOwner
		}
	})
	if precondErr != nil {
		return 0, precondErr
	}

	blockIndex, err := s.Executor.TransferCkbtcIn(ctx, caller, amount)
	if err != nil {
		return 0, protoerr.TransferFromError{Kind: err, Amount: uint64(amount)}
	}

	var appendErr error
	s.Store.Mutate(func(state *protocolstate.State) {
		_, appendErr = s.Events.Append(event.KindAddMarginToVault, event.AddMarginToVaultPayload{
			VaultID:    vaultID,
			Amount:     amount,
			BlockIndex: blockIndex,
		})
		if appendErr != nil {
			return
		}
		state.AddMarginToVault(vaultID, amount)
	})
	if appendErr != nil {
		return 0, protoerr.Generic{Msg: "failed to persist add_margin_to_vault event: " + appendErr.Error()}
	}

	s.Logger.Debug("add_margin_to_vault: added", "vault_id", vaultID, "amount", amount.String())
	return blockIndex, nil
}

// CloseVault burns the vault's remaining debt (if any) and enqueues the
// full margin as a pending payout. A zero-debt close is allowed even in
// ReadOnly mode; a close with outstanding debt is not.
func (s *Service) CloseVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID) (*uint64, error) {
	if caller.IsAnonymous() {
		return nil, protoerr.ErrAnonymousCallerNotAllowed
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return nil, guardErr(err)
	}
	defer release()

	var (
		borrowed   numeric.TAL
		precondErr error
	)
	s.Store.Read(func(state *protocolstate.State) {
		v, ok := state.VaultIDToVault[vaultID]
		if !ok {
			precondErr = protoerr.Generic{Msg: "vault not found"}
			return
		}
		if v.Owner != caller {
			precondErr = protoerr.ErrCallerNotOwner
			return
		}
		if v.BorrowedTAL > 0 && state.Mode == protocolstate.ModeReadOnly {
			precondErr = protoerr.TemporarilyUnavailable{Reason: "protocol is read-only"}
			return
		}
		borrowed = v.BorrowedTAL
	})
	if precondErr != nil {
		return nil, precondErr
	}

	if borrowed == 0 {
		var appendErr error
		s.Store.Mutate(func(state *protocolstate.State) {
			_, appendErr = s.Events.Append(event.KindCloseVault, event.CloseVaultPayload{VaultID: vaultID})
			if appendErr != nil {
				return
			}
			state.CloseVault(vaultID)
		})
		if appendErr != nil {
			return nil, protoerr.Generic{Msg: "failed to persist close_vault event: " + appendErr.Error()}
		}
		s.Logger.Debug("close_vault: closed zero-debt vault", "vault_id", vaultID)
		return nil, nil
	}

	blockIndex, err := s.Executor.BurnTAL(ctx, caller, borrowed)
	if err != nil {
		return nil, protoerr.TransferFromError{Kind: err, Amount: uint64(borrowed)}
	}

	var appendErr error
	s.Store.Mutate(func(state *protocolstate.State) {
		_, appendErr = s.Events.Append(event.KindCloseVault, event.CloseVaultPayload{
			VaultID:       vaultID,
			HasBlockIndex: true,
			BlockIndex:    blockIndex,
		})
		if appendErr != nil {
			return
		}
		state.CloseVault(vaultID)
	})
	if appendErr != nil {
		return nil, protoerr.Generic{Msg: "failed to persist close_vault event: " + appendErr.Error()}
	}

	s.Logger.Debug("close_vault: closed", "vault_id", vaultID, "block_index", blockIndex)
	return &blockIndex, nil
}

// RedeemCkbtc burns tal_amount TAL from anyone holding it, computes the
// dynamic redemption fee, drains the net amount across vaults by
// ascending collateral ratio, and enqueues the resulting ckBTC as a
// pending payout. Rejected in ReadOnly mode.
func (s *Service) RedeemCkbtc(ctx context.Context, caller principal.Principal, talAmount numeric.TAL) (SuccessWithFee, error) {
	if caller.IsAnonymous() {
		return SuccessWithFee{}, protoerr.ErrAnonymousCallerNotAllowed
	}
	if talAmount < MinTalAmount {
		return SuccessWithFee{}, protoerr.AmountTooLow{Minimum: MinTalAmount}
	}

	release, err := s.Guards.Acquire(caller)
	if err != nil {
		return SuccessWithFee{}, guardErr(err)
	}
	defer release()

	now := s.Clock()
	var (
		btcRate    numeric.UsdBtc
		precondErr error
	)
	s.Store.Read(func(state *protocolstate.State) {
		if state.Mode == protocolstate.ModeReadOnly {
			precondErr = protoerr.TemporarilyUnavailable{Reason: "protocol is read-only"}
			return
		}
		if precondErr = checkOracleFresh(state, now); precondErr != nil {
			return
		}
		btcRate = *state.LastBtcRate
	})
	if precondErr != nil {
		return SuccessWithFee{}, precondErr
	}

	blockIndex, err := s.Executor.BurnTAL(ctx, caller, talAmount)
	if err != nil {
		return SuccessWithFee{}, protoerr.TransferFromError{Kind: err, Amount: uint64(talAmount)}
	}

	var (
		feeAmount numeric.TAL
		appendErr error
	)
	s.Store.Mutate(func(state *protocolstate.State) {
		feeRatio := state.GetRedemptionFee(now, talAmount)
		state.CurrentBaseRate = feeRatio
		state.LastRedemptionTime = now
		feeAmount = talAmount.MulRatio(feeRatio)
		netAmount := talAmount.Sub(feeAmount)

		// Both live and replay credit the fee to the developer's
		// liquidity-pool balance before the redemption walk (DESIGN.md,
		// Open Question 2: no asymmetry here, unlike BorrowFromVault).
		if feeAmount > 0 {
			state.ProvideLiquidity(feeAmount, state.DeveloperPrincipal)
		}

		// The walk runs before the event is built, not after: the event
		// must carry the amount actually converted, not the amount
		// requested. s.MaxVaultsPerRedemption can stop the walk short of
		// netAmount (DESIGN.md Open Question 3); persisting the requested
		// netAmount instead of the converted amount would enqueue a
		// payout for collateral no vault actually gave up, and replay
		// would walk a further, unbounded set of vaults to make up the
		// difference — a conservation break and a live/replay
		// divergence. Persisting the converted amount keeps both in
		// agreement: replay drains exactly that amount over the same
		// ascending-ratio order, never needing the cap itself.
		converted, limitReached := state.RedeemOnVaults(netAmount, btcRate, s.MaxVaultsPerRedemption)
		if limitReached {
			s.Logger.Warn("redeem_ckbtc: hit max-vaults-per-redemption cap, converting less than requested",
				"caller", caller.String(), "requested", netAmount.String(), "converted", converted.String())
		}

		_, appendErr = s.Events.Append(event.KindRedemptionOnVaults, event.RedemptionOnVaultsPayload{
			Owner:          caller,
			BtcRate:        btcRate,
			TalAmount:      converted,
			Fee:            feeAmount,
			FeeRatio:       feeRatio,
			TimestampNanos: now,
			TalBlockIndex:  blockIndex,
		})
		if appendErr != nil {
			return
		}

		margin := converted.DivUsdBtc(btcRate)
		state.PendingRedemptionTransfer[blockIndex] = protocolstate.PendingTransfer{
			Owner:  caller,
			Margin: margin,
		}
	})
	if appendErr != nil {
		return SuccessWithFee{}, protoerr.Generic{Msg: "failed to persist redemption_on_vaults event: " + appendErr.Error()}
	}

	s.Logger.Info("redeem_ckbtc: redeemed", "caller", caller.String(), "tal_amount", talAmount.String(), "fee", feeAmount.String())
	return SuccessWithFee{BlockIndex: blockIndex, FeeAmountPaid: feeAmount}, nil
}
