package httptransport

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"capcall/internal/capitalcall"
	ccservice "capcall/internal/capitalcall/service"
	"capcall/internal/registry"
	id "capcall/pkg/domain"
	dErrors "capcall/pkg/domain-errors"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	registries *registry.Service
	calls      *ccservice.Service
	logger     *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(registries *registry.Service, calls *ccservice.Service, logger *slog.Logger) *Handler {
	return &Handler{registries: registries, calls: calls, logger: logger}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody parses the JSON request body into out, writing the error
// response itself on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if h.logger != nil {
			h.logger.WarnContext(r.Context(), "malformed request body", "path", r.URL.Path, "error", err)
		}
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid JSON body"))
		return false
	}
	return true
}

type initializeRequest struct {
	ID            string `json:"id,omitempty"`
	FundsMint     string `json:"funds_mint"`
	LiquidityPool string `json:"liquidity_pool"`
	LPMint        string `json:"lp_mint"`
	AuthoritySalt string `json:"authority_salt"` // hex
}

type registryResponse struct {
	ID            string `json:"id"`
	Operator      string `json:"operator"`
	FundsMint     string `json:"funds_mint"`
	LiquidityPool string `json:"liquidity_pool"`
	LPMint        string `json:"lp_mint"`
	MintAuthority string `json:"mint_authority"`
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	params := registry.InitializeParams{}
	var err error
	if req.ID != "" {
		if params.ID, err = id.ParseRegistryID(req.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	if params.FundsMint, err = id.ParseMintID(req.FundsMint); err != nil {
		writeError(w, err)
		return
	}
	if params.LiquidityPool, err = id.ParseAccountID(req.LiquidityPool); err != nil {
		writeError(w, err)
		return
	}
	if params.LPMint, err = id.ParseMintID(req.LPMint); err != nil {
		writeError(w, err)
		return
	}
	if params.AuthoritySalt, err = hex.DecodeString(req.AuthoritySalt); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "authority_salt must be hex"))
		return
	}

	record, err := h.registries.Initialize(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRegistryResponse(record))
}

func (h *Handler) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	registryID, err := id.ParseRegistryID(chi.URLParam(r, "registryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := h.registries.Get(r.Context(), registryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRegistryResponse(record))
}

func toRegistryResponse(record *registry.Registry) registryResponse {
	return registryResponse{
		ID:            record.ID.String(),
		Operator:      record.Operator.String(),
		FundsMint:     record.FundsMint.String(),
		LiquidityPool: record.LiquidityPool.String(),
		LPMint:        record.LPMint.String(),
		MintAuthority: record.MintAuthority.String(),
	}
}

type createCallRequest struct {
	Registry          string    `json:"registry"`
	StartTime         time.Time `json:"start_time"`
	DurationSeconds   int64     `json:"duration_seconds"`
	Capacity          uint64    `json:"capacity"`
	CreditOutstanding uint64    `json:"credit_outstanding"`
}

type callResponse struct {
	ID                string    `json:"id"`
	Registry          string    `json:"registry"`
	State             string    `json:"state,omitempty"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Capacity          uint64    `json:"capacity"`
	Allocated         uint64    `json:"allocated"`
	Redeemed          uint64    `json:"redeemed"`
	TokenLiquidity    uint64    `json:"token_liquidity"`
	LPSupply          uint64    `json:"lp_supply"`
	CreditOutstanding uint64    `json:"credit_outstanding"`
	Converted         bool      `json:"converted"`
}

func toCallResponse(call *capitalcall.CapitalCall, state capitalcall.State) callResponse {
	return callResponse{
		ID:                call.ID.String(),
		Registry:          call.Registry.String(),
		State:             string(state),
		StartTime:         call.StartTime,
		EndTime:           call.EndTime,
		Capacity:          call.Capacity,
		Allocated:         call.Allocated,
		Redeemed:          call.Redeemed,
		TokenLiquidity:    call.TokenLiquidity,
		LPSupply:          call.LPSupply,
		CreditOutstanding: call.CreditOutstanding,
		Converted:         call.Converted,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	registryID, err := id.ParseRegistryID(req.Registry)
	if err != nil {
		writeError(w, err)
		return
	}
	call, err := h.calls.Create(r.Context(), ccservice.CreateParams{
		Registry:          registryID,
		StartTime:         req.StartTime,
		Duration:          time.Duration(req.DurationSeconds) * time.Second,
		Capacity:          req.Capacity,
		CreditOutstanding: req.CreditOutstanding,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCallResponse(call, ""))
}

func (h *Handler) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.calls.GetCall(r.Context(), callID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallResponse(view.Call, view.State))
}

type voucherResponse struct {
	ID        string `json:"id"`
	Call      string `json:"capital_call"`
	Depositor string `json:"depositor"`
	Amount    uint64 `json:"amount"`
}

func (h *Handler) handleGetVoucher(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	voucher, err := h.calls.GetVoucher(r.Context(), callID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voucherResponse{
		ID:        voucher.ID.String(),
		Call:      voucher.Call.String(),
		Depositor: voucher.Depositor.String(),
		Amount:    voucher.Amount,
	})
}

// handleListVouchers is the operator's view of every open voucher on a call.
func (h *Handler) handleListVouchers(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	vouchers, err := h.calls.ListVouchers(r.Context(), callID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]voucherResponse, 0, len(vouchers))
	for _, voucher := range vouchers {
		out = append(out, voucherResponse{
			ID:        voucher.ID.String(),
			Call:      voucher.Call.String(),
			Depositor: voucher.Depositor.String(),
			Amount:    voucher.Amount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
	Source string `json:"source"`
}

type depositResponse struct {
	Accepted    uint64 `json:"accepted"`
	Voucher     string `json:"voucher"`
	Total       uint64 `json:"voucher_amount"`
	FullyRaised bool   `json:"fully_raised"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req depositRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	source, err := id.ParseAccountID(req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.calls.Deposit(r.Context(), callID, req.Amount, source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{
		Accepted:    result.Accepted,
		Voucher:     result.Voucher.ID.String(),
		Total:       result.Voucher.Amount,
		FullyRaised: result.FullyRaised,
	})
}

type settleRequest struct {
	Destination string `json:"destination"`
}

func (h *Handler) settleDestination(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	var req settleRequest
	if !h.decodeBody(w, r, &req) {
		return id.AccountID{}, false
	}
	destination, err := id.ParseAccountID(req.Destination)
	if err != nil {
		writeError(w, err)
		return id.AccountID{}, false
	}
	return destination, true
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	destination, ok := h.settleDestination(w, r)
	if !ok {
		return
	}
	amount, err := h.calls.Refund(r.Context(), callID, destination)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.calls.Convert(r.Context(), callID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"performed": result.Performed,
		"minted":    result.Minted,
	})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	destination, ok := h.settleDestination(w, r)
	if !ok {
		return
	}
	result, err := h.calls.Claim(r.Context(), callID, destination)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"amount":    result.Amount,
		"lp_amount": result.LPAmount,
	})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, err)
		return
	}
	destination, ok := h.settleDestination(w, r)
	if !ok {
		return
	}
	if err := h.calls.Close(r.Context(), callID, destination); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
