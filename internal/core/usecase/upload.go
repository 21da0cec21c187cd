package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

const DefaultUploadSource = "web-upload"

// UploadRecorder observes finished uploads. metrics.HTTPServerMetrics
// satisfies it.
type UploadRecorder interface {
	RecordUpload(outcome string, duration time.Duration)
}

type UploadOptions struct {
	MaxBytes    int64
	Source      string
	// OnCreated runs once the pending invoice row exists.
	OnCreated   func()
	// OnProcessed runs once the extracted data has been applied.
	OnProcessed func()
	Recorder    UploadRecorder
	Logger      *slog.Logger
	Now         func() time.Time
}

type UploadUseCase struct {
	repo        ports.InvoiceRepository
	storage     ports.ObjectStorage
	inspector   ports.DocumentInspector
	extractor   *extractor
	maxBytes    int64
	onCreated   func()
	// onProcessed clears reads cached while the webhook was running.
	onProcessed func()
	recorder    UploadRecorder
	logger      *slog.Logger
	now         func() time.Time
}

func NewUploadUseCase(
	repo ports.InvoiceRepository,
	storage ports.ObjectStorage,
	client ports.ExtractionClient,
	inspector ports.DocumentInspector,
	opts UploadOptions,
) *UploadUseCase {
	if opts.Source == "" {
		opts.Source = DefaultUploadSource
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &UploadUseCase{
		repo:        repo,
		storage:     storage,
		inspector:   inspector,
		extractor:   &extractor{repo: repo, client: client, source: opts.Source, now: opts.Now},
		maxBytes:    opts.MaxBytes,
		onCreated:   opts.OnCreated,
		onProcessed: opts.OnProcessed,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// Start validates file and runs the upload in the background. Validation
// errors are returned before any I/O happens.
func (uc *UploadUseCase) Start(ctx context.Context, file domain.UploadFile) (ports.UploadTask, error) {
	if err := file.Validate(uc.maxBytes); err != nil {
		uc.record("rejected", 0)
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := &uploadTask{
		progress: make(chan domain.UploadProgress, 4),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go func() {
		started := time.Now()
		res, err := uc.run(taskCtx, file, task.emit)
		uc.record(outcomeOf(res, err), time.Since(started))
		task.finish(res, err)
	}()
	return task, nil
}

// Upload runs an upload to completion.
func (uc *UploadUseCase) Upload(ctx context.Context, file domain.UploadFile) (*domain.UploadResult, error) {
	task, err := uc.Start(ctx, file)
	if err != nil {
		return nil, err
	}
	return task.Wait()
}

func (uc *UploadUseCase) run(ctx context.Context, file domain.UploadFile, emit func(domain.Checkpoint, string)) (*domain.UploadResult, error) {
	emit(domain.CheckpointEncodingStarted, "")

	mimeType := strings.ToLower(strings.TrimSpace(file.MimeType))
	pageCount := uc.pageCount(file.Data, mimeType)
	encoded := encodeDocument(file.Data)

	now := uc.now()
	key := fmt.Sprintf("%d-%s", now.UnixMilli(), sanitizeFilename(file.Filename))
	var fileURL *string
	if err := uc.storage.Save(ctx, key, bytes.NewReader(file.Data)); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("store document: %w", ctx.Err())
		}
		uc.logger.Warn("store document failed, continuing without file url", "filename", file.Filename, "error", err)
		key = ""
	} else {
		u := uc.storage.PublicURL(key)
		fileURL = &u
	}

	inv := &domain.Invoice{
		ID:         uuid.NewString(),
		Currency:   domain.DefaultCurrency,
		Status:     domain.StatusPending,
		FileURL:    fileURL,
		FileName:   domain.StringPtr(file.Filename),
		MimeType:   mimeType,
		StorageKey: key,
		PageCount:  pageCount,
		Flags:      []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
		UploadedAt: now,
	}
	if err := uc.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create pending invoice: %w", err)
	}
	if uc.onCreated != nil {
		uc.onCreated()
	}
	emit(domain.CheckpointUploadDone, inv.ID)

	result := &domain.UploadResult{Invoice: inv}
	emit(domain.CheckpointWebhookStarted, inv.ID)
	resp, err := uc.extractor.extract(ctx, inv, encoded)
	result.Response = resp
	if err != nil {
		return uc.fail(ctx, result, err)
	}
	emit(domain.CheckpointWebhookDone, inv.ID)

	if err := uc.extractor.apply(ctx, inv.ID, resp); err != nil {
		return uc.fail(ctx, result, err)
	}
	if uc.onProcessed != nil {
		uc.onProcessed()
	}

	if stored, err := uc.repo.GetByID(ctx, inv.ID); err == nil {
		result.Invoice = stored
	} else {
		uc.logger.Warn("reload processed invoice failed", "invoice_id", inv.ID, "error", err)
		inv.Status = domain.StatusProcessed
	}
	uc.logger.Info("invoice uploaded", "invoice_id", inv.ID, "filename", file.Filename, "storage_key", key)
	return result, nil
}

// fail keeps the pending invoice, records why extraction did not finish and
// reports a partial failure.
func (uc *UploadUseCase) fail(ctx context.Context, result *domain.UploadResult, cause error) (*domain.UploadResult, error) {
	result.Failure = domain.FailureInfoFor(cause)
	result.Invoice.ProcessingError = failureMessage(cause)
	if err := uc.extractor.recordFailure(ctx, result.Invoice.ID, cause); err != nil {
		uc.logger.Error("record extraction failure", "invoice_id", result.Invoice.ID, "error", err)
	}
	uc.logger.Warn("invoice extraction failed", "invoice_id", result.Invoice.ID, "cause", result.Failure.Cause, "error", cause)
	return result, domain.WrapError(domain.ErrPartialFailure, "upload invoice", cause)
}

func (uc *UploadUseCase) pageCount(data []byte, mimeType string) *int {
	if uc.inspector == nil {
		return nil
	}
	n, err := uc.inspector.PageCount(data, mimeType)
	if err != nil {
		uc.logger.Warn("inspect document failed", "mime_type", mimeType, "error", err)
		return nil
	}
	return &n
}

func (uc *UploadUseCase) record(outcome string, d time.Duration) {
	if uc.recorder != nil {
		uc.recorder.RecordUpload(outcome, d)
	}
}

func outcomeOf(res *domain.UploadResult, err error) string {
	switch {
	case err == nil:
		return "processed"
	case res != nil && res.Failure != nil:
		return "extraction_failed"
	default:
		return "error"
	}
}

type uploadTask struct {
	progress chan domain.UploadProgress
	done     chan struct{}
	cancel   context.CancelFunc

	result *domain.UploadResult
	err    error
}

// emit never blocks: progress is buffered for every checkpoint.
func (t *uploadTask) emit(cp domain.Checkpoint, invoiceID string) {
	t.progress <- domain.UploadProgress{Checkpoint: cp, Percent: cp.Percent(), InvoiceID: invoiceID}
}

func (t *uploadTask) finish(res *domain.UploadResult, err error) {
	t.result = res
	t.err = err
	t.cancel()
	close(t.progress)
	close(t.done)
}

func (t *uploadTask) Progress() <-chan domain.UploadProgress { return t.progress }

func (t *uploadTask) Done() <-chan struct{} { return t.done }

func (t *uploadTask) Wait() (*domain.UploadResult, error) {
	<-t.done
	return t.result, t.err
}

func (t *uploadTask) Cancel() { t.cancel() }

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "invoice.bin"
	}
	return base
}
