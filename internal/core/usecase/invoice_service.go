package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

// TransitionRecorder observes status actions. metrics.HTTPServerMetrics
// satisfies it.
type TransitionRecorder interface {
	RecordTransition(action, result string)
}

type InvoiceService struct {
	repo     ports.InvoiceRepository
	locks    *keyedMutex
	recorder TransitionRecorder
	logger   *slog.Logger
	now      func() time.Time
}

type InvoiceServiceOption func(*InvoiceService)

func WithTransitionRecorder(r TransitionRecorder) InvoiceServiceOption {
	return func(s *InvoiceService) { s.recorder = r }
}

func WithClock(now func() time.Time) InvoiceServiceOption {
	return func(s *InvoiceService) { s.now = now }
}

func WithLogger(logger *slog.Logger) InvoiceServiceOption {
	return func(s *InvoiceService) { s.logger = logger }
}

func NewInvoiceService(repo ports.InvoiceRepository, opts ...InvoiceServiceOption) *InvoiceService {
	s := &InvoiceService{
		repo:   repo,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InvoiceService) List(ctx context.Context, filter domain.ListFilter) (*domain.InvoicePage, error) {
	normalized, err := filter.Normalize()
	if err != nil {
		return nil, err
	}
	page, err := s.repo.List(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return page, nil
}

func (s *InvoiceService) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	id, err := requireID(id)
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (s *InvoiceService) Recent(ctx context.Context, limit int) ([]domain.InvoiceSummary, error) {
	if limit <= 0 {
		limit = domain.RecentLimit
	}
	items, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent invoices: %w", err)
	}
	return items, nil
}

func (s *InvoiceService) Stats(ctx context.Context, now time.Time) (*domain.DashboardStats, error) {
	if now.IsZero() {
		now = s.now()
	}
	thisMonth, lastMonth := domain.MonthBounds(now)
	stats, err := s.repo.Stats(ctx, thisMonth, lastMonth)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

func (s *InvoiceService) VendorSpend(ctx context.Context, limit int) ([]domain.VendorSpend, error) {
	if limit <= 0 {
		limit = domain.VendorSpendTop
	}
	rows, err := s.repo.VendorAmounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("vendor spend: %w", err)
	}
	return domain.RankVendorSpend(rows, limit), nil
}

func (s *InvoiceService) ProcessingQueue(ctx context.Context) ([]domain.InvoiceSummary, error) {
	items, err := s.repo.ProcessingQueue(ctx, domain.QueueLimit)
	if err != nil {
		return nil, fmt.Errorf("processing queue: %w", err)
	}
	return items, nil
}

// UpdateStatus overwrites the status without consulting the state machine.
// Action endpoints go through Transition instead.
func (s *InvoiceService) UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus) error {
	id, err := requireID(id)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "update status", fmt.Errorf("unknown status %q", status))
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.repo.UpdateStatus(ctx, id, status, s.now()); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	s.logger.Info("invoice status updated", "invoice_id", id, "status", status)
	return nil
}

func (s *InvoiceService) Transition(ctx context.Context, id string, action domain.Action) (domain.InvoiceStatus, error) {
	next, err := s.transition(ctx, id, action)
	s.recordTransition(action, err)
	return next, err
}

func (s *InvoiceService) transition(ctx context.Context, id string, action domain.Action) (domain.InvoiceStatus, error) {
	id, err := requireID(id)
	if err != nil {
		return "", err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load invoice: %w", err)
	}
	next, err := inv.Status.Apply(action)
	if err != nil {
		return inv.Status, err
	}
	if err := s.repo.UpdateStatus(ctx, id, next, s.now()); err != nil {
		return inv.Status, fmt.Errorf("update status: %w", err)
	}
	s.logger.Info("invoice transitioned", "invoice_id", id, "action", action, "from", inv.Status, "to", next)
	return next, nil
}

// BulkTransition applies action to each id in order. A failure on one id does
// not stop the others.
func (s *InvoiceService) BulkTransition(ctx context.Context, ids []string, action domain.Action) []domain.BulkResult {
	results := make([]domain.BulkResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, domain.BulkResult{ID: id, Error: err.Error()})
			continue
		}
		status, err := s.Transition(ctx, id, action)
		res := domain.BulkResult{ID: id, Status: status}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func (s *InvoiceService) Delete(ctx context.Context, id string) error {
	id, err := requireID(id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	s.logger.Info("invoice deleted", "invoice_id", id)
	return nil
}

func (s *InvoiceService) recordTransition(action domain.Action, err error) {
	if s.recorder == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrIllegalTransition):
		result = "illegal"
	case domain.IsKind(err, domain.ErrInvoiceNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	s.recorder.RecordTransition(string(action), result)
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate id", errors.New("invoice id is required"))
	}
	return id, nil
}
