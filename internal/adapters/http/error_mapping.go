package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var netErr *domain.NetworkError
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrInvoiceNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrIllegalTransition):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.As(err, &netErr):
		if netErr.Cause == domain.CauseTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   string              `json:"error"`
	Failure *domain.FailureInfo `json:"failure,omitempty"`
	Back    string              `json:"back,omitempty"`
}

// writeError maps err to a status and body. Remote failures carry a
// user-facing FailureInfo; internal errors are logged and hidden.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	body := errorResponse{Error: err.Error()}
	if domain.IsKind(err, domain.ErrNetwork) || domain.IsKind(err, domain.ErrTemporary) {
		body.Failure = domain.FailureInfoFor(err)
	}
	if status == http.StatusInternalServerError {
		rt.logger.Error("request failed",
			slog.String("request_id", requestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
