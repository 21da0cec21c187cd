package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type invoiceServiceFake struct {
	mu sync.Mutex

	invoices map[string]*domain.Invoice
	page     *domain.InvoicePage
	stats    *domain.DashboardStats
	spend    []domain.VendorSpend
	recent   []domain.InvoiceSummary
	queue    []domain.InvoiceSummary

	listErr   error
	getErr    error
	statsErr  error
	queueErr  error
	mutateErr error

	lastFilter  domain.ListFilter
	lastLimit   int
	bulkIDs     []string
	deleted     []string
	statusCalls []domain.InvoiceStatus
}

func (f *invoiceServiceFake) List(_ context.Context, filter domain.ListFilter) (*domain.InvoicePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.page != nil {
		return f.page, nil
	}
	return &domain.InvoicePage{Data: []domain.Invoice{}, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *invoiceServiceFake) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice", errors.New("id="+id))
	}
	cp := *inv
	return &cp, nil
}

func (f *invoiceServiceFake) Recent(_ context.Context, limit int) ([]domain.InvoiceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	return f.recent, nil
}

func (f *invoiceServiceFake) Stats(context.Context, time.Time) (*domain.DashboardStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats == nil {
		return &domain.DashboardStats{}, nil
	}
	return f.stats, nil
}

func (f *invoiceServiceFake) VendorSpend(context.Context, int) ([]domain.VendorSpend, error) {
	return f.spend, nil
}

func (f *invoiceServiceFake) ProcessingQueue(context.Context) ([]domain.InvoiceSummary, error) {
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	return f.queue, nil
}

func (f *invoiceServiceFake) UpdateStatus(_ context.Context, id string, status domain.InvoiceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return f.mutateErr
	}
	inv, ok := f.invoices[id]
	if !ok {
		return domain.WrapError(domain.ErrInvoiceNotFound, "update status", errors.New("id="+id))
	}
	inv.Status = status
	f.statusCalls = append(f.statusCalls, status)
	return nil
}

func (f *invoiceServiceFake) Transition(_ context.Context, id string, action domain.Action) (domain.InvoiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return "", domain.WrapError(domain.ErrInvoiceNotFound, "transition", errors.New("id="+id))
	}
	next, err := inv.Status.Apply(action)
	if err != nil {
		return inv.Status, err
	}
	inv.Status = next
	return next, nil
}

func (f *invoiceServiceFake) BulkTransition(ctx context.Context, ids []string, action domain.Action) []domain.BulkResult {
	f.mu.Lock()
	f.bulkIDs = append([]string(nil), ids...)
	f.mu.Unlock()

	out := make([]domain.BulkResult, 0, len(ids))
	for _, id := range ids {
		status, err := f.Transition(ctx, id, action)
		res := domain.BulkResult{ID: id, Status: status}
		if err != nil {
			res.Error = err.Error()
		}
		out = append(out, res)
	}
	return out
}

func (f *invoiceServiceFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.invoices, id)
	return nil
}

type uploadTaskFake struct {
	progress chan domain.UploadProgress
	done     chan struct{}
	result   *domain.UploadResult
	err      error
}

// newFinishedTask returns a task that already emitted checkpoints and
// resolved to res, err.
func newFinishedTask(res *domain.UploadResult, err error, checkpoints ...domain.Checkpoint) *uploadTaskFake {
	t := &uploadTaskFake{
		progress: make(chan domain.UploadProgress, len(checkpoints)),
		done:     make(chan struct{}),
		result:   res,
		err:      err,
	}
	for _, cp := range checkpoints {
		t.progress <- domain.UploadProgress{Checkpoint: cp, Percent: cp.Percent()}
	}
	close(t.progress)
	close(t.done)
	return t
}

func (t *uploadTaskFake) Progress() <-chan domain.UploadProgress { return t.progress }
func (t *uploadTaskFake) Done() <-chan struct{}                  { return t.done }
func (t *uploadTaskFake) Wait() (*domain.UploadResult, error)    { return t.result, t.err }
func (t *uploadTaskFake) Cancel()                                {}

type uploaderFake struct {
	task     *uploadTaskFake
	startErr error
	got      domain.UploadFile
	ctx      context.Context
}

func (f *uploaderFake) Start(ctx context.Context, file domain.UploadFile) (ports.UploadTask, error) {
	f.got = file
	f.ctx = ctx
	if f.startErr != nil {
		return nil, f.startErr
	}
	if err := file.Validate(0); err != nil {
		return nil, err
	}
	return f.task, nil
}

type processorFake struct {
	err       error
	outcome   domain.ReprocessOutcome
	requested []string
}

func (f *processorFake) ProcessByID(context.Context, string) error { return f.err }

func (f *processorFake) RequestReprocess(_ context.Context, id string) (domain.ReprocessOutcome, error) {
	f.requested = append(f.requested, id)
	return f.outcome, f.err
}

type exporterFake struct {
	err    error
	filter domain.ListFilter
}

func (f *exporterFake) Export(_ context.Context, filter domain.ListFilter, w io.Writer) error {
	f.filter = filter
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "PK-xlsx")
	return err
}

type storageFake struct {
	files map[string]string
}

func (s *storageFake) Save(context.Context, string, io.Reader) error { return nil }

func (s *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := s.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvoiceNotFound, "open file", errors.New("key="+key))
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s *storageFake) PublicURL(key string) string { return "http://localhost:8080/files/" + key }

func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func sampleInvoice(id string, status domain.InvoiceStatus) *domain.Invoice {
	return &domain.Invoice{
		ID:            id,
		InvoiceNumber: strPtr("INV-" + id),
		VendorName:    strPtr("Acme Corp"),
		TotalAmount:   floatPtr(1234.5),
		Currency:      "USD",
		Status:        status,
		Flags:         []string{},
		CreatedAt:     fixedNow.Add(-time.Hour),
		UploadedAt:    fixedNow.Add(-time.Hour),
	}
}

type testRouter struct {
	invoices  *invoiceServiceFake
	uploader  *uploaderFake
	processor *processorFake
	exporter  *exporterFake
	storage   *storageFake
	handler   http.Handler
}

func newTestRouter(cfg config.Config, invoices ...*domain.Invoice) *testRouter {
	svc := &invoiceServiceFake{invoices: map[string]*domain.Invoice{}}
	for _, inv := range invoices {
		svc.invoices[inv.ID] = inv
	}
	tr := &testRouter{
		invoices:  svc,
		uploader:  &uploaderFake{},
		processor: &processorFake{},
		exporter:  &exporterFake{},
		storage:   &storageFake{files: map[string]string{}},
	}
	tr.handler = NewRouter(cfg, Deps{
		Invoices:  tr.invoices,
		Uploader:  tr.uploader,
		Processor: tr.processor,
		Exporter:  tr.exporter,
		Storage:   tr.storage,
		Now:       func() time.Time { return fixedNow },
	}).Handler()
	return tr
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestRouter(cfg).handler
}
