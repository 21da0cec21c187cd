package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

// ReprocessRecorder observes re-extraction requests. metrics.HTTPServerMetrics
// satisfies it.
type ReprocessRecorder interface {
	RecordReprocessRequest(err error)
}

type ProcessOptions struct {
	Source string
	// OnProcessed runs after a stored invoice was re-extracted successfully.
	OnProcessed func()
	Recorder    ReprocessRecorder
	Logger      *slog.Logger
	Now         func() time.Time
}

// ProcessInvoiceUseCase re-runs extraction for invoices whose document is
// already stored, so a failed upload can be retried without re-uploading.
type ProcessInvoiceUseCase struct {
	repo        ports.InvoiceRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	extractor   *extractor
	onProcessed func()
	recorder    ReprocessRecorder
	logger      *slog.Logger
}

func NewProcessInvoiceUseCase(
	repo ports.InvoiceRepository,
	storage ports.ObjectStorage,
	client ports.ExtractionClient,
	queue ports.MessageQueue,
	opts ProcessOptions,
) *ProcessInvoiceUseCase {
	if opts.Source == "" {
		opts.Source = DefaultUploadSource
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ProcessInvoiceUseCase{
		repo:        repo,
		storage:     storage,
		queue:       queue,
		extractor:   &extractor{repo: repo, client: client, source: opts.Source, now: opts.Now},
		onProcessed: opts.OnProcessed,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
	}
}

func (uc *ProcessInvoiceUseCase) ProcessByID(ctx context.Context, invoiceID string) error {
	inv, err := uc.loadReprocessable(ctx, invoiceID)
	if err != nil {
		return err
	}

	data, err := uc.readDocument(ctx, inv.StorageKey)
	if err != nil {
		return err
	}

	resp, err := uc.extractor.extract(ctx, inv, encodeDocument(data))
	if err != nil {
		if failErr := uc.extractor.recordFailure(ctx, inv.ID, err); failErr != nil {
			return fmt.Errorf("%w; %v", err, failErr)
		}
		return err
	}
	if err := uc.extractor.apply(ctx, inv.ID, resp); err != nil {
		return err
	}
	if uc.onProcessed != nil {
		uc.onProcessed()
	}
	uc.logger.Info("invoice re-extracted", "invoice_id", inv.ID)
	return nil
}

// RequestReprocess checks the invoice can be re-extracted and hands it to the
// worker. Without a queue the extraction runs inline and the outcome carries
// the updated invoice.
func (uc *ProcessInvoiceUseCase) RequestReprocess(ctx context.Context, invoiceID string) (domain.ReprocessOutcome, error) {
	inv, err := uc.loadReprocessable(ctx, invoiceID)
	if err != nil {
		return domain.ReprocessOutcome{}, err
	}
	if uc.queue == nil {
		if err := uc.ProcessByID(ctx, inv.ID); err != nil {
			return domain.ReprocessOutcome{}, err
		}
		updated, err := uc.repo.GetByID(ctx, inv.ID)
		if err != nil {
			return domain.ReprocessOutcome{}, fmt.Errorf("reload re-extracted invoice: %w", err)
		}
		return domain.ReprocessOutcome{Invoice: updated}, nil
	}

	err = uc.queue.PublishReprocessRequested(ctx, inv.ID)
	if uc.recorder != nil {
		uc.recorder.RecordReprocessRequest(err)
	}
	if err != nil {
		return domain.ReprocessOutcome{}, fmt.Errorf("publish reprocess request: %w", err)
	}
	return domain.ReprocessOutcome{Queued: true}, nil
}

func (uc *ProcessInvoiceUseCase) loadReprocessable(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	id, err := requireID(invoiceID)
	if err != nil {
		return nil, err
	}
	inv, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch invoice by id: %w", err)
	}
	if !slices.Contains(domain.InFlightStatuses, inv.Status) {
		return nil, domain.WrapError(
			domain.ErrIllegalTransition,
			"reprocess invoice",
			fmt.Errorf("invoice is %s", inv.Status),
		)
	}
	if inv.StorageKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reprocess invoice", errors.New("no stored document"))
	}
	return inv, nil
}

func (uc *ProcessInvoiceUseCase) readDocument(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, domain.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read stored document", errors.New("stored document is empty"))
	}
	return data, nil
}
