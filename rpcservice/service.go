// Package rpcservice binds the protocol's guard acquisition, state
// read/mutate, transfer execution, and event append into the single
// request-handling shape every RPC endpoint follows. It exposes the full
// endpoint set: the nine mutating calls delegate straight to vault.Service
// and liquiditypool.Service, which already implement that shape; the six
// queries read protocolstate.Store directly, grounded on
// original_source/protocol/lib.rs's query-call handlers, which likewise
// never take a guard or append an event.
package rpcservice

import (
	"context"
	"log/slog"
	"sort"

	"talvault/event"
	"talvault/eventstore"
	"talvault/liquiditypool"
	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
	"talvault/protoerr"
	"talvault/vault"
)

// EventReader is the slice of eventstore.Store the service needs for
// get_vault_history and get_events — narrowed to the read-only surface so
// tests can supply an in-memory fake instead of a real goleveldb handle.
type EventReader interface {
	ReadRange(start, length uint64) ([]event.RawEntry, error)
	Len() uint64
}

var _ EventReader = (*eventstore.Store)(nil)

// MaxEventsPerQuery caps how many entries a single get_events call returns.
const MaxEventsPerQuery = 2000

// Clock abstracts wall-clock time for get_fees's elapsed-hours term.
type Clock func() uint64

// Service is the single entrypoint every transport (the JSON-RPC surface
// in httpapi, or a future direct binding) calls through.
type Service struct {
	Store         *protocolstate.Store
	Events        EventReader
	Vaults        *vault.Service
	LiquidityPool *liquiditypool.Service
	Clock         Clock
	Logger        *slog.Logger
}

// NewService wires a Service from its collaborators.
func NewService(store *protocolstate.Store, events EventReader, vaults *vault.Service, pool *liquiditypool.Service, clock Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Events: events, Vaults: vaults, LiquidityPool: pool, Clock: clock, Logger: logger}
}

// --- Mutations: thin pass-throughs --------------------------------------

func (s *Service) OpenVault(ctx context.Context, caller principal.Principal, ckbtcMargin numeric.CKBTC) (vault.OpenVaultResult, error) {
	return s.Vaults.OpenVault(ctx, caller, ckbtcMargin)
}

func (s *Service) BorrowFromVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID, amount numeric.TAL) (vault.SuccessWithFee, error) {
	return s.Vaults.BorrowFromVault(ctx, caller, vaultID, amount)
}

func (s *Service) RepayToVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID, amount numeric.TAL) (uint64, error) {
	return s.Vaults.RepayToVault(ctx, caller, vaultID, amount)
}

func (s *Service) AddMarginToVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID, amount numeric.CKBTC) (uint64, error) {
	return s.Vaults.AddMarginToVault(ctx, caller, vaultID, amount)
}

func (s *Service) CloseVault(ctx context.Context, caller principal.Principal, vaultID protocolstate.VaultID) (*uint64, error) {
	return s.Vaults.CloseVault(ctx, caller, vaultID)
}

func (s *Service) RedeemCkbtc(ctx context.Context, caller principal.Principal, talAmount numeric.TAL) (vault.SuccessWithFee, error) {
	return s.Vaults.RedeemCkbtc(ctx, caller, talAmount)
}

func (s *Service) ProvideLiquidity(ctx context.Context, caller principal.Principal, amount numeric.TAL) (uint64, error) {
	return s.LiquidityPool.ProvideLiquidity(ctx, caller, amount)
}

func (s *Service) WithdrawLiquidity(ctx context.Context, caller principal.Principal, amount numeric.TAL) (uint64, error) {
	return s.LiquidityPool.WithdrawLiquidity(ctx, caller, amount)
}

func (s *Service) ClaimLiquidityReturns(ctx context.Context, caller principal.Principal) (uint64, error) {
	return s.LiquidityPool.ClaimLiquidityReturns(ctx, caller)
}

// --- Queries -------------------------------------------------------------

// ProtocolStatus answers get_protocol_status().
type ProtocolStatus struct {
	Mode                 protocolstate.Mode
	TotalCollateralRatio numeric.Ratio
	VaultCount           int
	OwnerCount           int
	TotalBorrowedTAL     numeric.TAL
	TotalCkbtcMargin     numeric.CKBTC
	ProvidedLiquidity    numeric.TAL
	BtcRate              *numeric.UsdBtc
	BtcTimestampNanos    *uint64
}

// GetProtocolStatus reports the protocol-wide aggregate figures dashboards
// and /metrics both ultimately derive from.
func (s *Service) GetProtocolStatus() ProtocolStatus {
	var out ProtocolStatus
	s.Store.Read(func(state *protocolstate.State) {
		out = ProtocolStatus{
			Mode:                 state.Mode,
			TotalCollateralRatio: state.TotalCollateralRatio,
			VaultCount:           len(state.VaultIDToVault),
			OwnerCount:           len(state.PrincipalToVaultIDs),
			TotalBorrowedTAL:     state.TotalBorrowedTAL(),
			TotalCkbtcMargin:     state.TotalCkbtcMargin(),
			ProvidedLiquidity:    state.TotalProvidedLiquidity(),
			BtcRate:              state.LastBtcRate,
			BtcTimestampNanos:    state.LastBtcTimestamp,
		}
	})
	return out
}

// GetFees answers get_fees(redeemed_amount): the redemption fee ratio that
// would currently apply to a redemption of that size, without mutating
// current_base_rate or last_redemption_time the way an actual redeem_ckbtc
// call does.
func (s *Service) GetFees(redeemedAmount numeric.TAL) numeric.Ratio {
	now := s.Clock()
	var fee numeric.Ratio
	s.Store.Read(func(state *protocolstate.State) {
		fee = state.GetRedemptionFee(now, redeemedAmount)
	})
	return fee
}

// VaultView is a single vault as reported by get_vaults.
type VaultView struct {
	VaultID         protocolstate.VaultID
	Owner           principal.Principal
	BorrowedTAL     numeric.TAL
	CkbtcMargin     numeric.CKBTC
	CollateralRatio numeric.Ratio
}

// GetVaults answers get_vaults(owner?): every vault if owner is nil,
// else only the vaults belonging to that owner. Results are sorted by
// vault_id for a stable, deterministic response.
func (s *Service) GetVaults(owner *principal.Principal) []VaultView {
	var out []VaultView
	s.Store.Read(func(state *protocolstate.State) {
		var price numeric.UsdBtc
		if state.LastBtcRate != nil {
			price = *state.LastBtcRate
		}

		ids := state.VaultIDToVault
		if owner != nil {
			ownerIDs := state.PrincipalToVaultIDs[*owner]
			ids = make(map[protocolstate.VaultID]protocolstate.Vault, len(ownerIDs))
			for id := range ownerIDs {
				ids[id] = state.VaultIDToVault[id]
			}
		}

		out = make([]VaultView, 0, len(ids))
		for id, v := range ids {
			out = append(out, VaultView{
				VaultID:         id,
				Owner:           v.Owner,
				BorrowedTAL:     v.BorrowedTAL,
				CkbtcMargin:     v.CkbtcMargin,
				CollateralRatio: v.CollateralRatio(price),
			})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].VaultID < out[j].VaultID })
	return out
}

// HistoryEntry is one event in a vault's or the protocol's history, with
// its log position and decoded payload attached.
type HistoryEntry struct {
	Seq     uint64
	Kind    event.Kind
	Payload interface{}
}

// GetVaultHistory answers get_vault_history(vault_id): every logged event
// that names this vault_id, in log order. Scans the full log — acceptable
// given the log's append-only design, since a single vault's lifetime
// of events is a small fraction of the total.
func (s *Service) GetVaultHistory(vaultID protocolstate.VaultID) ([]HistoryEntry, error) {
	entries, err := s.Events.ReadRange(0, 0)
	if err != nil {
		return nil, err
	}

	var out []HistoryEntry
	for seq, e := range entries {
		decoded, err := event.DecodePayload(e.Kind, e.Payload)
		if err != nil {
			continue
		}
		if id, ok := event.VaultIDOf(decoded); ok && id == vaultID {
			out = append(out, HistoryEntry{Seq: uint64(seq), Kind: e.Kind, Payload: decoded})
		}
	}
	return out, nil
}

// GetEvents answers get_events(start, length): a raw range of the log,
// decoded for display, capped at MaxEventsPerQuery regardless of the
// length requested.
func (s *Service) GetEvents(start, length uint64) ([]HistoryEntry, error) {
	if length == 0 || length > MaxEventsPerQuery {
		length = MaxEventsPerQuery
	}
	entries, err := s.Events.ReadRange(start, length)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, len(entries))
	for i, e := range entries {
		decoded, err := event.DecodePayload(e.Kind, e.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, HistoryEntry{Seq: start + uint64(i), Kind: e.Kind, Payload: decoded})
	}
	return out, nil
}

// LiquidityStatus answers get_liquidity_status(owner).
type LiquidityStatus struct {
	Provided numeric.TAL
	Returns  numeric.CKBTC
}

// GetLiquidityStatus reports one provider's pool balance and pending
// reward. Returns the zero value, not an error, for a caller who has
// never provided liquidity — mirroring get_vaults's owner-filter
// behavior rather than treating "no position" as a fault.
func (s *Service) GetLiquidityStatus(owner principal.Principal) LiquidityStatus {
	var out LiquidityStatus
	s.Store.Read(func(state *protocolstate.State) {
		out = LiquidityStatus{
			Provided: state.GetProvidedLiquidity(owner),
			Returns:  state.GetLiquidityReturnsOf(owner),
		}
	})
	return out
}

// ErrVaultNotFound is a protoerr.Generic "vault not found" value for query
// callers. GetVaultHistory does not return it: an id never assigned
// yields an empty history.
var ErrVaultNotFound = protoerr.Generic{Msg: "vault not found"}
