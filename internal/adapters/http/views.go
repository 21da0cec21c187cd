package httpadapter

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/liststate"
	"github.com/kirillkom/invoice-dashboard/internal/format"
)

// Client routes answer with view models: every value the page shows, already
// formatted, plus the links and actions it offers.

const (
	pageWindowSize  = 5
	totalsTolerance = 0.01
)

type sectionError struct {
	Message string              `json:"message"`
	Failure *domain.FailureInfo `json:"failure,omitempty"`
}

func newSectionError(err error) *sectionError {
	if err == nil {
		return nil
	}
	out := &sectionError{Message: err.Error()}
	if domain.IsKind(err, domain.ErrNetwork) || domain.IsKind(err, domain.ErrTemporary) {
		out.Failure = domain.FailureInfoFor(err)
	}
	return out
}

// section is one independently loaded part of a page. A failed section
// carries its error and does not fail the page.
type section[T any] struct {
	Data  T             `json:"data"`
	Error *sectionError `json:"error,omitempty"`
}

type statsCard struct {
	ThisMonthCount int    `json:"this_month_count"`
	LastMonthCount int    `json:"last_month_count"`
	TrendPercent   *int   `json:"trend_percent"`
	TotalAmount    string `json:"total_amount"`
	PendingCount   int    `json:"pending_count"`
	AvgProcessing  string `json:"avg_processing"`
}

type summaryRow struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Vendor      string               `json:"vendor"`
	Amount      string               `json:"amount"`
	Status      domain.InvoiceStatus `json:"status"`
	StatusLabel string               `json:"status_label"`
	Created     string               `json:"created"`
	Href        string               `json:"href"`
}

type vendorBar struct {
	Name    string  `json:"name"`
	Amount  float64 `json:"amount"`
	Display string  `json:"display"`
	Share   string  `json:"share"`
}

type dashboardView struct {
	Stats       section[*statsCard]   `json:"stats"`
	Recent      section[[]summaryRow] `json:"recent"`
	VendorSpend section[[]vendorBar]  `json:"vendor_spend"`
	Queue       section[[]summaryRow] `json:"queue"`
	EventsURL   string                `json:"events_url"`
}

func (rt *Router) dashboardView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := rt.now()
	var view dashboardView
	if rt.events != nil {
		view.EventsURL = eventsPath
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		stats, err := rt.invoices.Stats(ctx, now)
		if err != nil {
			view.Stats.Error = newSectionError(err)
			return
		}
		view.Stats.Data = newStatsCard(stats)
	}()
	go func() {
		defer wg.Done()
		items, err := rt.invoices.Recent(ctx, domain.RecentLimit)
		if err != nil {
			view.Recent.Error = newSectionError(err)
			return
		}
		view.Recent.Data = rt.summaryRows(items)
	}()
	go func() {
		defer wg.Done()
		items, err := rt.invoices.VendorSpend(ctx, domain.VendorSpendTop)
		if err != nil {
			view.VendorSpend.Error = newSectionError(err)
			return
		}
		view.VendorSpend.Data = vendorBars(items)
	}()
	go func() {
		defer wg.Done()
		items, err := rt.invoices.ProcessingQueue(ctx)
		if err != nil {
			view.Queue.Error = newSectionError(err)
			return
		}
		view.Queue.Data = rt.summaryRows(items)
	}()
	wg.Wait()

	writeJSON(w, http.StatusOK, view)
}

func newStatsCard(stats *domain.DashboardStats) *statsCard {
	card := &statsCard{
		ThisMonthCount: stats.ThisMonthCount,
		LastMonthCount: stats.LastMonthCount,
		TotalAmount:    format.CompactCurrency(stats.TotalAmount, domain.DefaultCurrency),
		PendingCount:   stats.PendingCount,
		AvgProcessing:  format.Duration(stats.AvgProcessingSeconds),
	}
	if trend, ok := format.TrendPercent(stats.ThisMonthCount, stats.LastMonthCount); ok {
		card.TrendPercent = &trend
	}
	return card
}

func (rt *Router) summaryRows(items []domain.InvoiceSummary) []summaryRow {
	now := rt.now()
	out := make([]summaryRow, 0, len(items))
	for _, it := range items {
		title := orPlaceholder(it.InvoiceNumber)
		if it.InvoiceNumber == nil && it.FileName != nil {
			title = *it.FileName
		}
		out = append(out, summaryRow{
			ID:          it.ID,
			Title:       title,
			Vendor:      orPlaceholder(it.VendorName),
			Amount:      format.Currency(it.TotalAmount, it.Currency),
			Status:      it.Status,
			StatusLabel: it.Status.Label(),
			Created:     format.RelativeTime(it.CreatedAt, now),
			Href:        invoiceHref(it.ID),
		})
	}
	return out
}

func vendorBars(items []domain.VendorSpend) []vendorBar {
	var total float64
	for _, it := range items {
		total += it.Amount
	}
	out := make([]vendorBar, 0, len(items))
	for _, it := range items {
		out = append(out, vendorBar{
			Name:    it.Name,
			Amount:  it.Amount,
			Display: format.CompactCurrency(it.Amount, domain.DefaultCurrency),
			Share:   format.Percent(it.Amount, total),
		})
	}
	return out
}

type actionLink struct {
	Action domain.Action `json:"action"`
	Label  string        `json:"label"`
	Method string        `json:"method"`
	Href   string        `json:"href"`
}

func actionLinks(id string, status domain.InvoiceStatus) []actionLink {
	actions := domain.AvailableActions(status)
	out := make([]actionLink, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionLink{
			Action: a,
			Label:  a.Label(),
			Method: http.MethodPost,
			Href:   "/v1/invoices/" + url.PathEscape(id) + "/actions/" + string(a),
		})
	}
	return out
}

type invoiceRow struct {
	ID              string                  `json:"id"`
	InvoiceNumber   string                  `json:"invoice_number"`
	Vendor          string                  `json:"vendor"`
	InvoiceDate     string                  `json:"invoice_date"`
	DueDate         string                  `json:"due_date"`
	Amount          string                  `json:"amount"`
	Status          domain.InvoiceStatus    `json:"status"`
	StatusLabel     string                  `json:"status_label"`
	Confidence      *int                    `json:"confidence"`
	ConfidenceLevel *format.ConfidenceLevel `json:"confidence_level,omitempty"`
	FlagCount       int                     `json:"flag_count"`
	Href            string                  `json:"href"`
	Actions         []actionLink            `json:"actions"`
}

func newInvoiceRow(inv domain.Invoice) invoiceRow {
	row := invoiceRow{
		ID:            inv.ID,
		InvoiceNumber: orPlaceholder(inv.InvoiceNumber),
		Vendor:        orPlaceholder(inv.VendorName),
		InvoiceDate:   format.Date(inv.InvoiceDate),
		DueDate:       format.Date(inv.DueDate),
		Amount:        format.Currency(inv.TotalAmount, inv.Currency),
		Status:        inv.Status,
		StatusLabel:   inv.Status.Label(),
		Confidence:    inv.Confidence,
		FlagCount:     len(inv.Flags),
		Href:          invoiceHref(inv.ID),
		Actions:       actionLinks(inv.ID, inv.Status),
	}
	if inv.Confidence != nil {
		level := format.Confidence(*inv.Confidence)
		row.ConfidenceLevel = &level
	}
	return row
}

type pageLink struct {
	Page    int    `json:"page"`
	Href    string `json:"href"`
	Current bool   `json:"current"`
}

type sortLink struct {
	Column string               `json:"column"`
	Href   string               `json:"href"`
	Active bool                 `json:"active"`
	Order  domain.SortDirection `json:"order,omitempty"`
}

type filterLink struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Href   string `json:"href"`
	Active bool   `json:"active"`
}

type invoiceListView struct {
	State         liststate.State `json:"state"`
	Query         string          `json:"query"`
	Rows          []invoiceRow    `json:"rows"`
	Count         int             `json:"count"`
	Page          int             `json:"page"`
	TotalPages    int             `json:"total_pages"`
	Pages         []pageLink      `json:"pages"`
	PrevHref      string          `json:"prev_href,omitempty"`
	NextHref      string          `json:"next_href,omitempty"`
	Sort          []sortLink      `json:"sort"`
	StatusFilters []filterLink    `json:"status_filters"`
	BulkActions   []actionLink    `json:"bulk_actions"`
	ExportHref    string          `json:"export_href"`
	SearchAction  string          `json:"search_action"`
}

// invoiceListView renders /invoices. The view is a pure function of the query
// string: malformed values fall back to defaults instead of failing.
func (rt *Router) invoiceListView(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query()
	st := liststate.Parse(current)

	page, err := rt.invoices.List(r.Context(), st.ListFilter(domain.DefaultPageSize))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	view := invoiceListView{
		State:        st,
		Query:        st.Encode(),
		Rows:         make([]invoiceRow, 0, len(page.Data)),
		Count:        page.Count,
		Page:         st.Page,
		TotalPages:   page.TotalPages,
		Pages:        []pageLink{},
		ExportHref:   "/v1/invoices/export?" + exportValues(st).Encode(),
		SearchAction: "/invoices",
	}
	for _, inv := range page.Data {
		view.Rows = append(view.Rows, newInvoiceRow(inv))
	}
	for _, p := range liststate.PageWindow(st.Page, page.TotalPages, pageWindowSize) {
		view.Pages = append(view.Pages, pageLink{
			Page:    p,
			Href:    listHref(liststate.GoToPage(current, p)),
			Current: p == st.Page,
		})
	}
	if st.Page > 1 {
		view.PrevHref = listHref(liststate.PrevPage(current))
	}
	if st.Page < page.TotalPages {
		view.NextHref = listHref(liststate.NextPage(current, page.TotalPages))
	}

	columns := make([]string, 0, len(domain.SortColumns))
	for c := range domain.SortColumns {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	for _, c := range columns {
		link := sortLink{Column: c, Href: listHref(liststate.ToggleSort(current, c)), Active: c == st.SortBy}
		if link.Active {
			link.Order = st.SortOrder
		}
		view.Sort = append(view.Sort, link)
	}

	view.StatusFilters = append(view.StatusFilters, filterLink{
		Label: "All", Value: "all", Href: listHref(liststate.FilterStatus(current, "all")), Active: st.Status == "",
	})
	for _, s := range domain.AllStatuses {
		view.StatusFilters = append(view.StatusFilters, filterLink{
			Label:  s.Label(),
			Value:  string(s),
			Href:   listHref(liststate.FilterStatus(current, string(s))),
			Active: st.Status == s,
		})
	}

	for _, a := range []domain.Action{domain.ActionApprove, domain.ActionReject, domain.ActionMarkPaid} {
		view.BulkActions = append(view.BulkActions, actionLink{
			Action: a,
			Label:  a.Label(),
			Method: http.MethodPost,
			Href:   "/v1/invoices/bulk/actions/" + string(a),
		})
	}

	writeJSON(w, http.StatusOK, view)
}

func listHref(values url.Values) string {
	encoded := liststate.Parse(values).Encode()
	if encoded == "" {
		return "/invoices"
	}
	return "/invoices?" + encoded
}

func exportValues(st liststate.State) url.Values {
	out := st.Values()
	out.Del(liststate.KeyPage)
	return out
}

type lineItemRow struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   string  `json:"unit_price"`
	Amount      string  `json:"amount"`
}

type totalsView struct {
	Subtotal      string `json:"subtotal"`
	Discount      string `json:"discount"`
	Tax           string `json:"tax"`
	TaxRate       string `json:"tax_rate"`
	Total         string `json:"total"`
	ExpectedTotal string `json:"expected_total,omitempty"`
	Consistent    bool   `json:"consistent"`
}

type fileView struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	PageCount *int   `json:"page_count,omitempty"`
}

type invoiceDetailView struct {
	Invoice         *domain.Invoice         `json:"invoice"`
	Title           string                  `json:"title"`
	Vendor          *domain.Contact         `json:"vendor,omitempty"`
	BillTo          *domain.Contact         `json:"bill_to,omitempty"`
	InvoiceDate     string                  `json:"invoice_date"`
	DueDate         string                  `json:"due_date"`
	PaymentTerms    string                  `json:"payment_terms,omitempty"`
	StatusLabel     string                  `json:"status_label"`
	ConfidenceLevel *format.ConfidenceLevel `json:"confidence_level,omitempty"`
	LineItems       []lineItemRow           `json:"line_items"`
	Totals          totalsView              `json:"totals"`
	File            *fileView               `json:"file,omitempty"`
	Actions         []actionLink            `json:"actions"`
	CanReprocess    bool                    `json:"can_reprocess"`
	ReprocessHref   string                  `json:"reprocess_href,omitempty"`
	DeleteHref      string                  `json:"delete_href"`
	Uploaded        string                  `json:"uploaded"`
	Processed       string                  `json:"processed"`
	Back            string                  `json:"back"`
}

func (rt *Router) invoiceDetailView(w http.ResponseWriter, r *http.Request) {
	inv, err := rt.invoices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if domain.IsKind(err, domain.ErrInvoiceNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "invoice not found", Back: "/invoices"})
			return
		}
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceDetailView(inv))
}

func newInvoiceDetailView(inv *domain.Invoice) invoiceDetailView {
	view := invoiceDetailView{
		Invoice:     inv,
		Title:       "Invoice " + orPlaceholder(inv.InvoiceNumber),
		InvoiceDate: format.Date(inv.InvoiceDate),
		DueDate:     format.Date(inv.DueDate),
		StatusLabel: inv.Status.Label(),
		LineItems:   make([]lineItemRow, 0, len(inv.LineItems)),
		Actions:     actionLinks(inv.ID, inv.Status),
		DeleteHref:  "/v1/invoices/" + url.PathEscape(inv.ID) + "?confirm=true",
		Uploaded:    format.DateTime(&inv.UploadedAt),
		Processed:   format.DateTime(inv.ProcessedAt),
		Back:        "/invoices",
	}
	if inv.Confidence != nil {
		level := format.Confidence(*inv.Confidence)
		view.ConfidenceLevel = &level
	}
	for _, item := range inv.LineItems {
		view.LineItems = append(view.LineItems, lineItemRow{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   format.CurrencyValue(item.UnitPrice, inv.Currency),
			Amount:      format.CurrencyValue(item.Amount, inv.Currency),
		})
	}

	view.Totals = totalsView{
		Subtotal:   format.Placeholder,
		Discount:   format.Placeholder,
		Tax:        format.Placeholder,
		TaxRate:    format.Placeholder,
		Total:      format.Currency(inv.TotalAmount, inv.Currency),
		Consistent: true,
	}
	if data := inv.ExtractedData; data != nil {
		view.Vendor = data.Vendor
		view.BillTo = data.BillTo
		view.PaymentTerms = data.PaymentTerms
		view.Totals.Subtotal = format.Currency(data.Subtotal, inv.Currency)
		view.Totals.Discount = format.Currency(data.Discount, inv.Currency)
		view.Totals.Tax = format.Currency(data.TaxAmount, inv.Currency)
		if data.TaxRate != nil {
			view.Totals.TaxRate = format.Percent(*data.TaxRate, 100)
		}
		if expected, ok := data.ExpectedTotal(); ok {
			view.Totals.ExpectedTotal = format.CurrencyValue(expected, inv.Currency)
			if inv.TotalAmount != nil {
				view.Totals.Consistent = absDiff(expected, *inv.TotalAmount) <= totalsTolerance
			}
		}
	}

	if inv.FileName != nil || inv.FileURL != nil {
		view.File = &fileView{
			Name:      orPlaceholder(inv.FileName),
			MimeType:  inv.MimeType,
			PageCount: inv.PageCount,
		}
		if inv.FileURL != nil {
			view.File.URL = *inv.FileURL
		}
	}
	if inFlight(inv.Status) && inv.StorageKey != "" {
		view.CanReprocess = true
		view.ReprocessHref = "/v1/invoices/" + url.PathEscape(inv.ID) + "/reprocess"
	}
	return view
}

type checkpointView struct {
	Checkpoint domain.Checkpoint `json:"checkpoint"`
	Percent    int               `json:"percent"`
}

type uploadView struct {
	Endpoint      string           `json:"endpoint"`
	Field         string           `json:"field"`
	AcceptedTypes []string         `json:"accepted_types"`
	Accept        string           `json:"accept"`
	MaxSize       string           `json:"max_size"`
	MaxBytes      int64            `json:"max_bytes"`
	Checkpoints   []checkpointView `json:"checkpoints"`
}

func (rt *Router) uploadView(w http.ResponseWriter, _ *http.Request) {
	types := make([]string, 0, len(domain.AcceptedMimeTypes))
	seenExt := map[string]struct{}{}
	var exts []string
	for mimeType, e := range domain.AcceptedMimeTypes {
		types = append(types, mimeType)
		for _, ext := range e {
			if _, ok := seenExt[ext]; !ok {
				seenExt[ext] = struct{}{}
				exts = append(exts, ext)
			}
		}
	}
	sort.Strings(types)
	sort.Strings(exts)

	view := uploadView{
		Endpoint:      "/v1/uploads",
		Field:         "file",
		AcceptedTypes: types,
		Accept:        strings.Join(exts, ","),
		MaxSize:       format.FileSize(rt.maxUploadBytes()),
		MaxBytes:      rt.maxUploadBytes(),
	}
	for _, cp := range []domain.Checkpoint{
		domain.CheckpointEncodingStarted,
		domain.CheckpointUploadDone,
		domain.CheckpointWebhookStarted,
		domain.CheckpointWebhookDone,
	} {
		view.Checkpoints = append(view.Checkpoints, checkpointView{Checkpoint: cp, Percent: cp.Percent()})
	}
	writeJSON(w, http.StatusOK, view)
}

type settingsView struct {
	WebhookConfigured bool    `json:"webhook_configured"`
	WebhookHost       string  `json:"webhook_host,omitempty"`
	WebhookTimeout    string  `json:"webhook_timeout"`
	PublicBaseURL     string  `json:"public_base_url"`
	MaxUploadSize     string  `json:"max_upload_size"`
	QueueEnabled      bool    `json:"queue_enabled"`
	RealtimeEnabled   bool    `json:"realtime_enabled"`
	AuthRequired      bool    `json:"auth_required"`
	CacheFreshFor     string  `json:"cache_fresh_for"`
	StatsFreshFor     string  `json:"stats_fresh_for"`
	VendorFreshFor    string  `json:"vendor_spend_fresh_for"`
	QueuePollInterval string  `json:"queue_poll_interval"`
	RateLimitRPS      float64 `json:"rate_limit_rps"`
}

// settingsView describes the running configuration without secrets: the
// webhook URL is reduced to its host and the API key to a flag.
func (rt *Router) settingsView(w http.ResponseWriter, _ *http.Request) {
	view := settingsView{
		WebhookConfigured: rt.cfg.WebhookURL != "",
		WebhookTimeout:    rt.cfg.WebhookTimeout.String(),
		PublicBaseURL:     rt.cfg.PublicBaseURL,
		MaxUploadSize:     format.FileSize(rt.maxUploadBytes()),
		QueueEnabled:      rt.cfg.NATSEnabled,
		RealtimeEnabled:   rt.events != nil,
		AuthRequired:      rt.cfg.APIKey != "",
		CacheFreshFor:     rt.cfg.CacheStaleAfter.String(),
		StatsFreshFor:     rt.cfg.CacheStatsStaleAfter.String(),
		VendorFreshFor:    rt.cfg.CacheVendorStaleAfter.String(),
		QueuePollInterval: rt.cfg.QueuePollInterval.String(),
		RateLimitRPS:      rt.cfg.APIRateLimitRPS,
	}
	if u, err := url.Parse(rt.cfg.WebhookURL); err == nil {
		view.WebhookHost = u.Host
	}
	writeJSON(w, http.StatusOK, view)
}

func invoiceHref(id string) string {
	return "/invoices/" + url.PathEscape(id)
}

func orPlaceholder(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return format.Placeholder
	}
	return *v
}

func inFlight(s domain.InvoiceStatus) bool {
	for _, f := range domain.InFlightStatuses {
		if s == f {
			return true
		}
	}
	return false
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
