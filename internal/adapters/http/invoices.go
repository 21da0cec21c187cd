package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/liststate"
)

const (
	maxBulkIDs    = domain.MaxPageSize
	maxQueryLimit = 100
	xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (rt *Router) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	page, err := rt.invoices.List(r.Context(), filter)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) recentInvoices(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query(), domain.RecentLimit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	items, err := rt.invoices.Recent(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rt *Router) processingQueue(w http.ResponseWriter, r *http.Request) {
	items, err := rt.invoices.ProcessingQueue(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rt *Router) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.invoices.Stats(r.Context(), rt.now())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) vendorSpend(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query(), domain.VendorSpendTop)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	items, err := rt.invoices.VendorSpend(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rt *Router) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := rt.invoices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (rt *Router) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirmed {
		writeJSON(w, http.StatusPreconditionRequired, errorResponse{
			Error: "deleting an invoice cannot be undone; repeat the request with confirm=true",
		})
		return
	}
	if err := rt.invoices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusChangeResponse struct {
	ID               string               `json:"id"`
	Status           domain.InvoiceStatus `json:"status"`
	AvailableActions []domain.Action      `json:"available_actions"`
}

func newStatusChangeResponse(id string, status domain.InvoiceStatus) statusChangeResponse {
	return statusChangeResponse{ID: id, Status: status, AvailableActions: domain.AvailableActions(status)}
}

// updateStatus overwrites the status without checking the workflow. The
// action endpoints are the validated path.
func (rt *Router) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := rt.invoices.UpdateStatus(r.Context(), id, status); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusChangeResponse(id, status))
}

func (rt *Router) applyAction(w http.ResponseWriter, r *http.Request) {
	action, err := domain.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	status, err := rt.invoices.Transition(r.Context(), id, action)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusChangeResponse(id, status))
}

type bulkResponse struct {
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []domain.BulkResult `json:"results"`
}

func (rt *Router) bulkAction(w http.ResponseWriter, r *http.Request) {
	action, err := domain.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	selection := liststate.NewSelection(req.IDs...)
	if selection.Len() == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "select at least one invoice"})
		return
	}
	if selection.Len() > maxBulkIDs {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("select at most %d invoices", maxBulkIDs)})
		return
	}
	results := rt.invoices.BulkTransition(r.Context(), selection.IDs(), action)
	selection.Clear()

	resp := bulkResponse{Results: results}
	for _, res := range results {
		if res.Error == "" {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) reprocessInvoice(w http.ResponseWriter, r *http.Request) {
	if rt.processor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "reprocessing is not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	out, err := rt.processor.RequestReprocess(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if out.Queued || out.Invoice == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
		return
	}
	writeJSON(w, http.StatusOK, newStatusChangeResponse(out.Invoice.ID, out.Invoice.Status))
}

func (rt *Router) exportInvoices(w http.ResponseWriter, r *http.Request) {
	if rt.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "export is not configured"})
		return
	}
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	// Buffer the workbook so a failed export still gets a JSON error.
	var buf bytes.Buffer
	if err := rt.exporter.Export(r.Context(), filter, &buf); err != nil {
		rt.writeError(w, r, err)
		return
	}
	filename := fmt.Sprintf("invoices-%s.xlsx", rt.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// parseListFilter reads the list query strictly: unlike the browser list
// view, malformed values are rejected instead of falling back.
func parseListFilter(q url.Values) (domain.ListFilter, error) {
	st := liststate.Parse(q)
	filter := st.ListFilter(domain.DefaultPageSize)

	invalid := func(format string, args ...any) (domain.ListFilter, error) {
		return domain.ListFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse list filter", fmt.Errorf(format, args...))
	}

	if raw := strings.TrimSpace(q.Get(liststate.KeyPage)); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return invalid("page must be a positive integer")
		}
	}
	if raw := strings.TrimSpace(q.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > domain.MaxPageSize {
			return invalid("pageSize must be between 1 and %d", domain.MaxPageSize)
		}
		filter.PageSize = size
	}
	if raw := strings.TrimSpace(q.Get(liststate.KeyStatus)); raw != "" && !strings.EqualFold(raw, "all") {
		if _, err := domain.ParseStatus(raw); err != nil {
			return domain.ListFilter{}, err
		}
	}
	if raw := strings.TrimSpace(q.Get(liststate.KeySortBy)); raw != "" && !domain.ValidSortColumn(raw) {
		return invalid("cannot sort by %q", raw)
	}
	if raw := strings.TrimSpace(q.Get(liststate.KeySortOrder)); raw != "" {
		if _, ok := domain.ParseSortDirection(raw); !ok {
			return invalid("unknown sort order %q", raw)
		}
	}

	var err error
	if filter.DateFrom, err = parseDateParam(q, "dateFrom"); err != nil {
		return domain.ListFilter{}, err
	}
	if filter.DateTo, err = parseDateParam(q, "dateTo"); err != nil {
		return domain.ListFilter{}, err
	}
	return filter.Normalize()
}

func parseDateParam(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse list filter", fmt.Errorf("%s must be a YYYY-MM-DD date", key))
	}
	return &t, nil
}

func parseLimit(q url.Values, fallback int) (int, error) {
	raw := strings.TrimSpace(q.Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxQueryLimit {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse limit",
			errors.New("limit must be between 1 and "+strconv.Itoa(maxQueryLimit)))
	}
	return limit, nil
}
