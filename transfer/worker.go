package transfer

import (
	"context"
	"log/slog"
	"time"

	"talvault/event"
	"talvault/guard"
	"talvault/protocolstate"
)

// RetryInterval is the pending-transfer worker's re-schedule period: it
// fires again after 1s while any pending entry remains.
const RetryInterval = time.Second

// Worker drains pending_margin_transfers and pending_redemption_transfer
// on a 1s cadence, guarded by its own TimerLogicGuard singleton so
// overlapping runs of the same Worker can't double-process an entry. Grounded on
// original_source/protocol/lib.rs::process_pending_transfer(): the two
// pending maps are snapshotted, each entry is retried independently, and
// a failure is logged and left in place for the next tick rather than
// surfaced as an error — there is no caller waiting on a background
// retry.
type Worker struct {
	Store    *protocolstate.Store
	Executor *Executor
	Events   event.Appender
	Logger   *slog.Logger
	Guard    *guard.Singleton
}

// NewWorker constructs a pending-transfer worker with a fresh
// guard.Singleton named TimerLogicGuard.
func NewWorker(store *protocolstate.Store, exec *Executor, events event.Appender, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		Store:    store,
		Executor: exec,
		Events:   events,
		Logger:   logger,
		Guard:    guard.NewSingleton("TimerLogicGuard"),
	}
}

// Run processes pending transfers once, then reschedules itself after
// RetryInterval while any pending entry remains. It blocks until ctx is
// cancelled or there is nothing left to retry.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		anyPending := w.tick(ctx)
		if !anyPending {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(RetryInterval):
		}
	}
}

// tick runs one pass over both pending maps and reports whether any entry
// remains (processed or not) afterward.
func (w *Worker) tick(ctx context.Context) bool {
	release, ok := w.Guard.TryAcquire()
	if !ok {
		w.Logger.Info("process_pending_transfer: double entry")
		return true
	}
	defer release()

	type marginEntry struct {
		vaultID uint64
		pending protocolstate.PendingTransfer
	}
	var margins []marginEntry
	w.Store.Read(func(s *protocolstate.State) {
		for id, pt := range s.PendingMarginTransfers {
			margins = append(margins, marginEntry{vaultID: id, pending: pt})
		}
	})

	for _, m := range margins {
		w.retryMargin(ctx, m.vaultID, m.pending)
	}

	type redemptionEntry struct {
		talBlockIndex uint64
		pending       protocolstate.PendingTransfer
	}
	var redemptions []redemptionEntry
	w.Store.Read(func(s *protocolstate.State) {
		for idx, pt := range s.PendingRedemptionTransfer {
			redemptions = append(redemptions, redemptionEntry{talBlockIndex: idx, pending: pt})
		}
	})

	for _, r := range redemptions {
		w.retryRedemption(ctx, r.talBlockIndex, r.pending)
	}

	remaining := false
	w.Store.Read(func(s *protocolstate.State) {
		remaining = len(s.PendingMarginTransfers) > 0 || len(s.PendingRedemptionTransfer) > 0
	})
	return remaining
}

func (w *Worker) retryMargin(ctx context.Context, vaultID uint64, pending protocolstate.PendingTransfer) {
	fee := w.Executor.CkbtcLedgerFee()
	net := pending.Margin.SaturatingSub(fee)

	blockIndex, err := w.Executor.TransferCkbtcOut(ctx, pending.Owner, net)
	if err != nil {
		w.Logger.Debug("transfering_margins: failed", "vault_id", vaultID, "amount", net.String(), "error", err)
		return
	}
	w.Logger.Info("transfering_margins: succeeded", "vault_id", vaultID, "amount", net.String(), "owner", pending.Owner.String())

	if _, err := w.Events.Append(event.KindMarginTransfer, event.MarginTransferPayload{
		VaultID:    vaultID,
		BlockIndex: blockIndex,
	}); err != nil {
		w.Logger.Error("transfering_margins: event append failed", "vault_id", vaultID, "error", err)
		return
	}
	w.Store.Mutate(func(s *protocolstate.State) {
		delete(s.PendingMarginTransfers, vaultID)
	})
}

func (w *Worker) retryRedemption(ctx context.Context, talBlockIndex uint64, pending protocolstate.PendingTransfer) {
	fee := w.Executor.CkbtcLedgerFee()
	net := pending.Margin.SaturatingSub(fee)

	ckbtcBlockIndex, err := w.Executor.TransferCkbtcOut(ctx, pending.Owner, net)
	if err != nil {
		w.Logger.Debug("transfering_redemptions: failed", "tal_block_index", talBlockIndex, "amount", net.String(), "error", err)
		return
	}
	w.Logger.Info("transfering_redemptions: succeeded", "tal_block_index", talBlockIndex, "amount", net.String(), "owner", pending.Owner.String())

	if _, err := w.Events.Append(event.KindRedemptionTransfered, event.RedemptionTransferedPayload{
		TalBlockIndex:   talBlockIndex,
		CkbtcBlockIndex: ckbtcBlockIndex,
	}); err != nil {
		w.Logger.Error("transfering_redemptions: event append failed", "tal_block_index", talBlockIndex, "error", err)
		return
	}
	w.Store.Mutate(func(s *protocolstate.State) {
		delete(s.PendingRedemptionTransfer, talBlockIndex)
	})
}
