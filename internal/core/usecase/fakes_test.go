package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

type invoiceRepoFake struct {
	mu        sync.Mutex
	invoices  map[string]*domain.Invoice
	applied   map[string]domain.Extraction
	failures  map[string]string
	createErr error
	updateErr error
	applyErr  error
	getCalls  int
	statsArgs []time.Time
	vendors   []domain.VendorAmount
	lists     []domain.ListFilter
	pages     map[int]*domain.InvoicePage
}

func newInvoiceRepoFake(invoices ...domain.Invoice) *invoiceRepoFake {
	f := &invoiceRepoFake{
		invoices: make(map[string]*domain.Invoice),
		applied:  make(map[string]domain.Extraction),
		failures: make(map[string]string),
	}
	for i := range invoices {
		inv := invoices[i]
		f.invoices[inv.ID] = &inv
	}
	return f
}

func (f *invoiceRepoFake) Create(_ context.Context, inv *domain.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyInv := *inv
	f.invoices[inv.ID] = &copyInv
	return nil
}

func (f *invoiceRepoFake) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	inv, ok := f.invoices[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice", fmt.Errorf("id=%s", id))
	}
	copyInv := *inv
	return &copyInv, nil
}

func (f *invoiceRepoFake) List(_ context.Context, filter domain.ListFilter) (*domain.InvoicePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, filter)
	if page, ok := f.pages[filter.Page]; ok {
		return page, nil
	}
	data := []domain.Invoice{}
	if f.pages == nil {
		for _, inv := range f.invoices {
			data = append(data, *inv)
		}
		slices.SortFunc(data, func(a, b domain.Invoice) int { return strings.Compare(a.ID, b.ID) })
	}
	return &domain.InvoicePage{Data: data, Count: len(data), Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *invoiceRepoFake) Recent(context.Context, int) ([]domain.InvoiceSummary, error) {
	return []domain.InvoiceSummary{}, nil
}

func (f *invoiceRepoFake) ProcessingQueue(_ context.Context, limit int) ([]domain.InvoiceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.InvoiceSummary{}
	for _, inv := range f.invoices {
		if slices.Contains(domain.InFlightStatuses, inv.Status) && len(out) < limit {
			out = append(out, domain.InvoiceSummary{ID: inv.ID, Status: inv.Status})
		}
	}
	return out, nil
}

func (f *invoiceRepoFake) UpdateStatus(_ context.Context, id string, status domain.InvoiceStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	inv, ok := f.invoices[id]
	if !ok {
		return domain.WrapError(domain.ErrInvoiceNotFound, "update status", fmt.Errorf("id=%s", id))
	}
	inv.Status = status
	if at.After(inv.UpdatedAt) {
		inv.UpdatedAt = at
	}
	return nil
}

func (f *invoiceRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.invoices, id)
	return nil
}

func (f *invoiceRepoFake) ApplyExtraction(_ context.Context, id string, ex domain.Extraction, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	inv, ok := f.invoices[id]
	if !ok {
		return domain.WrapError(domain.ErrInvoiceNotFound, "apply extraction", fmt.Errorf("id=%s", id))
	}
	if !slices.Contains(domain.InFlightStatuses, inv.Status) {
		return domain.WrapError(domain.ErrIllegalTransition, "apply extraction", fmt.Errorf("status=%s", inv.Status))
	}
	f.applied[id] = ex
	inv.Status = domain.StatusProcessed
	inv.TotalAmount = ex.TotalAmount
	inv.InvoiceNumber = ex.InvoiceNumber
	inv.Currency = ex.Currency
	inv.Confidence = ex.Confidence
	inv.LineItems = ex.LineItems
	inv.ProcessingError = ""
	inv.ProcessedAt = &processedAt
	return nil
}

func (f *invoiceRepoFake) RecordFailure(_ context.Context, id string, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = msg
	if inv, ok := f.invoices[id]; ok {
		inv.ProcessingError = msg
	}
	return nil
}

func (f *invoiceRepoFake) Stats(_ context.Context, thisMonth, lastMonth time.Time) (*domain.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsArgs = []time.Time{thisMonth, lastMonth}
	return &domain.DashboardStats{ThisMonthCount: len(f.invoices)}, nil
}

func (f *invoiceRepoFake) VendorAmounts(context.Context) ([]domain.VendorAmount, error) {
	return f.vendors, nil
}

func (f *invoiceRepoFake) get(id string) domain.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.invoices[id]
}

func (f *invoiceRepoFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invoices)
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvoiceNotFound, "open file", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) PublicURL(key string) string {
	return "http://files.test/files/" + key
}

type extractionFake struct {
	mu       sync.Mutex
	resp     *domain.ExtractionResponse
	err      error
	requests []domain.ExtractionRequest
	// block, when set, holds the call until ctx ends.
	block bool
	// started and release, when set, hold the call between the two.
	started chan struct{}
	release chan struct{}
}

func (f *extractionFake) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.started != nil {
		close(f.started)
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *extractionFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type inspectorFake struct {
	pages int
	err   error
}

func (f inspectorFake) PageCount([]byte, string) (int, error) { return f.pages, f.err }

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishReprocessRequested(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeReprocessRequested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}
