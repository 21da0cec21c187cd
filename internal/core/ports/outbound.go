package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

// InvoiceRepository persists invoices and line items.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	List(ctx context.Context, filter domain.ListFilter) (*domain.InvoicePage, error)
	Recent(ctx context.Context, limit int) ([]domain.InvoiceSummary, error)
	ProcessingQueue(ctx context.Context, limit int) ([]domain.InvoiceSummary, error)
	UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus, at time.Time) error
	Delete(ctx context.Context, id string) error
	ApplyExtraction(ctx context.Context, id string, extraction domain.Extraction, processedAt time.Time) error
	RecordFailure(ctx context.Context, id string, message string) error
	Stats(ctx context.Context, thisMonth, lastMonth time.Time) (*domain.DashboardStats, error)
	VendorAmounts(ctx context.Context) ([]domain.VendorAmount, error)
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	PublicURL(key string) string
}

// ExtractionClient calls the external extraction workflow.
type ExtractionClient interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResponse, error)
}

// DocumentInspector reads lightweight metadata from a source document.
type DocumentInspector interface {
	PageCount(data []byte, mimeType string) (int, error)
}

// MessageQueue carries re-extraction requests to the worker.
type MessageQueue interface {
	PublishReprocessRequested(ctx context.Context, invoiceID string) error
	SubscribeReprocessRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// SpreadsheetWriter renders invoices as a workbook.
type SpreadsheetWriter interface {
	WriteInvoices(w io.Writer, invoices []domain.Invoice) error
}
