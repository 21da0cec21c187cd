package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

// InvoiceReader is the inbound read model backing the dashboard views.
type InvoiceReader interface {
	List(ctx context.Context, filter domain.ListFilter) (*domain.InvoicePage, error)
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	Recent(ctx context.Context, limit int) ([]domain.InvoiceSummary, error)
	Stats(ctx context.Context, now time.Time) (*domain.DashboardStats, error)
	VendorSpend(ctx context.Context, limit int) ([]domain.VendorSpend, error)
	ProcessingQueue(ctx context.Context) ([]domain.InvoiceSummary, error)
}

// InvoiceMutator changes invoice workflow state.
type InvoiceMutator interface {
	UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus) error
	Transition(ctx context.Context, id string, action domain.Action) (domain.InvoiceStatus, error)
	BulkTransition(ctx context.Context, ids []string, action domain.Action) []domain.BulkResult
	Delete(ctx context.Context, id string) error
}

type InvoiceService interface {
	InvoiceReader
	InvoiceMutator
}

// UploadTask is a running upload. Progress is closed once the task finishes.
type UploadTask interface {
	Progress() <-chan domain.UploadProgress
	Done() <-chan struct{}
	Wait() (*domain.UploadResult, error)
	Cancel()
}

// InvoiceUploader starts upload-and-extract flows.
type InvoiceUploader interface {
	Start(ctx context.Context, file domain.UploadFile) (UploadTask, error)
}

// InvoiceProcessor re-runs extraction for stored invoices.
type InvoiceProcessor interface {
	ProcessByID(ctx context.Context, invoiceID string) error
	RequestReprocess(ctx context.Context, invoiceID string) (domain.ReprocessOutcome, error)
}

type InvoiceExporter interface {
	Export(ctx context.Context, filter domain.ListFilter, w io.Writer) error
}
