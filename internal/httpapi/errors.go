package httpapi

import (
	"errors"
	"net/http"

	"github.com/R3E-Network/lottery_engine/internal/httputil"
	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

// StatusFor maps an engine error onto an HTTP status code.
func StatusFor(err error) int {
	switch settlement.KindOf(err) {
	case settlement.KindAuthorization:
		return http.StatusForbidden
	case settlement.KindState:
		return http.StatusConflict
	case settlement.KindValidation:
		return http.StatusBadRequest
	case settlement.KindNotFound:
		return http.StatusNotFound
	case settlement.KindArithmetic:
		return http.StatusUnprocessableEntity
	case settlement.KindOracle:
		return http.StatusBadGateway
	case settlement.KindTransfer:
		if errors.Is(err, settlement.ErrInsufficientFunds) {
			return http.StatusPaymentRequired
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	kind := string(settlement.KindOf(err))
	code := settlement.CodeOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		if kind == "" {
			kind, code, message = "internal", "Internal", "internal error"
		}
	}
	httputil.WriteError(w, r, status, kind, code, message)
}
