// Package httptransport is the thin HTTP layer over the engine services. It
// delegates to domain services without embedding business logic so transport
// concerns stay isolated.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"capcall/internal/platform/middleware"
	dErrors "capcall/pkg/domain-errors"
)

// NewRouter wires all endpoints. Everything under /registry and
// /capital-calls requires an authenticated caller; health and metrics do not.
func NewRouter(h *Handler, validator *middleware.Validator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestTime)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))

		r.Post("/registry", h.handleInitialize)
		r.Get("/registry/{registryID}", h.handleGetRegistry)

		r.Route("/capital-calls", func(r chi.Router) {
			r.Post("/", h.handleCreate)
			r.Get("/{callID}", h.handleGetCall)
			r.Get("/{callID}/voucher", h.handleGetVoucher)
			r.Get("/{callID}/vouchers", h.handleListVouchers)
			r.Post("/{callID}/deposit", h.handleDeposit)
			r.Post("/{callID}/refund", h.handleRefund)
			r.Post("/{callID}/convert", h.handleConvert)
			r.Post("/{callID}/claim", h.handleClaim)
			r.Post("/{callID}/close", h.handleClose)
		})
	})
	return r
}

// toHTTPStatus maps domain error codes onto HTTP statuses. Precondition
// violations are 409: the request was well-formed but the record is not in a
// state that permits it yet (or anymore).
func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeInvalidWindow, dErrors.CodeInvalidDuration,
		dErrors.CodeInvalidCapacity, dErrors.CodeZeroAmount:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeNotStarted, dErrors.CodeWindowClosed, dErrors.CodeWindowStillOpen,
		dErrors.CodeAlreadyFull, dErrors.CodeStillFundraising,
		dErrors.CodeNotYetConverted, dErrors.CodeAlreadyConverted,
		dErrors.CodeMustRefundFirst, dErrors.CodeMustDistributeFirst,
		dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeZeroSupply, dErrors.CodeInvalidMintAuthority, dErrors.CodeCalculationOverflow:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError centralizes domain error translation so every handler returns
// the same JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(toHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(code)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
