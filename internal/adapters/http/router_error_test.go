package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad")), http.StatusBadRequest},
		{"unauthorized", domain.WrapError(domain.ErrUnauthorized, "op", errors.New("no")), http.StatusUnauthorized},
		{"not found", domain.WrapError(domain.ErrInvoiceNotFound, "op", errors.New("id=x")), http.StatusNotFound},
		{"illegal", domain.WrapError(domain.ErrIllegalTransition, "op", errors.New("paid")), http.StatusConflict},
		{"temporary", domain.WrapError(domain.ErrTemporary, "op", errors.New("circuit open")), http.StatusServiceUnavailable},
		{"timeout", &domain.NetworkError{Service: "webhook", Cause: domain.CauseTimeout, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"bad gateway", fmt.Errorf("wrap: %w", &domain.NetworkError{Service: "webhook", Cause: domain.CauseServer, Err: errors.New("500")}), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestGetInvoiceReturns404ForNotFound(t *testing.T) {
	tr := newTestRouter(config.Config{})

	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/invoices/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	tr := newTestRouter(config.Config{})
	tr.invoices.listErr = errors.New("pq: password authentication failed")

	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "internal error" {
		t.Fatalf("expected internal details to be hidden, got %q", body.Error)
	}
}

func TestNetworkErrorsCarryFailureInfo(t *testing.T) {
	tr := newTestRouter(config.Config{})
	tr.invoices.listErr = &domain.NetworkError{Service: "postgres", Cause: domain.CauseConnection, Err: errors.New("refused")}

	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Failure == nil || body.Failure.Title != "Connection Failed" {
		t.Fatalf("expected connection failure info, got %+v", body.Failure)
	}
}

func TestOpenAPIValidationRejectsBadParameters(t *testing.T) {
	tr := newTestRouter(config.Config{})

	for _, target := range []string{
		"/v1/invoices?status=archived",
		"/v1/invoices?page=0",
		"/v1/invoices?sortBy=password",
		"/v1/invoices?pageSize=1000",
		"/v1/invoices/recent?limit=abc",
	} {
		res := httptest.NewRecorder()
		tr.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, target, nil))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, res.Code)
		}
	}
	if tr.invoices.lastFilter.Page != 0 {
		t.Fatalf("rejected requests must not reach the service")
	}
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	if res.Code != http.StatusOK || res.Body.Len() == 0 {
		t.Fatalf("expected openapi document, got %d", res.Code)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json body, got %q", ct)
	}
}
