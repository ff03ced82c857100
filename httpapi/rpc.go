package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
	"talvault/protoerr"
)

const maxRequestBody = 1 << 16 // 64 KiB; every request here is a handful of scalar fields.

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps the protocol's typed error taxonomy onto HTTP
// status codes the way a JSON-RPC-over-HTTP surface conventionally would.
func statusFor(err error) int {
	var amountTooLow protoerr.AmountTooLow
	var tempUnavailable protoerr.TemporarilyUnavailable
	var transferFrom protoerr.TransferFromError
	var transfer protoerr.TransferError
	var generic protoerr.Generic

	switch {
	case errors.Is(err, protoerr.ErrAnonymousCallerNotAllowed):
		return http.StatusUnauthorized
	case errors.Is(err, protoerr.ErrAlreadyProcessing):
		return http.StatusConflict
	case errors.Is(err, protoerr.ErrCallerNotOwner):
		return http.StatusForbidden
	case errors.As(err, &amountTooLow):
		return http.StatusBadRequest
	case errors.As(err, &tempUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &transferFrom), errors.As(err, &transfer):
		return http.StatusBadGateway
	case errors.As(err, &generic):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parsePrincipal(w http.ResponseWriter, s string) (principal.Principal, bool) {
	p, err := principal.Parse(s)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid principal: " + err.Error()})
		return principal.Principal{}, false
	}
	return p, true
}

// --- Mutations -------------------------------------------------------------

type openVaultRequest struct {
	Caller      string `json:"caller"`
	CkbtcMargin uint64 `json:"ckbtc_margin"`
}

func (h *handlers) openVault(w http.ResponseWriter, r *http.Request) {
	var req openVaultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	res, err := h.cfg.Service.OpenVault(r.Context(), caller, numeric.CKBTC(req.CkbtcMargin))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type vaultAmountRequest struct {
	Caller  string `json:"caller"`
	VaultID uint64 `json:"vault_id"`
	Amount  uint64 `json:"amount"`
}

func (h *handlers) borrowFromVault(w http.ResponseWriter, r *http.Request) {
	var req vaultAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	res, err := h.cfg.Service.BorrowFromVault(r.Context(), caller, protocolstate.VaultID(req.VaultID), numeric.TAL(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) repayToVault(w http.ResponseWriter, r *http.Request) {
	var req vaultAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	blockIndex, err := h.cfg.Service.RepayToVault(r.Context(), caller, protocolstate.VaultID(req.VaultID), numeric.TAL(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block_index": blockIndex})
}

func (h *handlers) addMarginToVault(w http.ResponseWriter, r *http.Request) {
	var req vaultAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	blockIndex, err := h.cfg.Service.AddMarginToVault(r.Context(), caller, protocolstate.VaultID(req.VaultID), numeric.CKBTC(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block_index": blockIndex})
}

type vaultRequest struct {
	Caller  string `json:"caller"`
	VaultID uint64 `json:"vault_id"`
}

func (h *handlers) closeVault(w http.ResponseWriter, r *http.Request) {
	var req vaultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	blockIndex, err := h.cfg.Service.CloseVault(r.Context(), caller, protocolstate.VaultID(req.VaultID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*uint64{"block_index": blockIndex})
}

type redeemRequest struct {
	Caller    string `json:"caller"`
	TalAmount uint64 `json:"tal_amount"`
}

func (h *handlers) redeemCkbtc(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	res, err := h.cfg.Service.RedeemCkbtc(r.Context(), caller, numeric.TAL(req.TalAmount))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type liquidityRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

func (h *handlers) provideLiquidity(w http.ResponseWriter, r *http.Request) {
	var req liquidityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	blockIndex, err := h.cfg.Service.ProvideLiquidity(r.Context(), caller, numeric.TAL(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block_index": blockIndex})
}

func (h *handlers) withdrawLiquidity(w http.ResponseWriter, r *http.Request) {
	var req liquidityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	blockIndex, err := h.cfg.Service.WithdrawLiquidity(r.Context(), caller, numeric.TAL(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block_index": blockIndex})
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (h *handlers) claimLiquidityReturns(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	blockIndex, err := h.cfg.Service.ClaimLiquidityReturns(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block_index": blockIndex})
}

// --- Queries -------------------------------------------------------------

func (h *handlers) getProtocolStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Service.GetProtocolStatus())
}

type feesRequest struct {
	RedeemedAmount uint64 `json:"redeemed_amount"`
}

func (h *handlers) getFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	fee := h.cfg.Service.GetFees(numeric.TAL(req.RedeemedAmount))
	writeJSON(w, http.StatusOK, map[string]string{"fee_ratio": fee.String()})
}

type vaultsRequest struct {
	Owner *string `json:"owner,omitempty"`
}

func (h *handlers) getVaults(w http.ResponseWriter, r *http.Request) {
	var req vaultsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var owner *principal.Principal
	if req.Owner != nil {
		p, ok := parsePrincipal(w, *req.Owner)
		if !ok {
			return
		}
		owner = &p
	}
	writeJSON(w, http.StatusOK, h.cfg.Service.GetVaults(owner))
}

type vaultHistoryRequest struct {
	VaultID uint64 `json:"vault_id"`
}

func (h *handlers) getVaultHistory(w http.ResponseWriter, r *http.Request) {
	var req vaultHistoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	history, err := h.cfg.Service.GetVaultHistory(protocolstate.VaultID(req.VaultID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type eventsRequest struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

func (h *handlers) getEvents(w http.ResponseWriter, r *http.Request) {
	var req eventsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	events, err := h.cfg.Service.GetEvents(req.Start, req.Length)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handlers) getLiquidityStatus(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := parsePrincipal(w, req.Caller)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Service.GetLiquidityStatus(caller))
}
