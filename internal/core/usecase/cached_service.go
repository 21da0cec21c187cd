package usecase

import (
	"context"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/changefeed"
	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
	"github.com/kirillkom/invoice-dashboard/internal/core/querycache"
)

// CachedInvoiceService serves reads through the query cache and drops the
// affected entries after every mutation.
type CachedInvoiceService struct {
	next  ports.InvoiceService
	cache *querycache.Cache
}

func NewCachedInvoiceService(next ports.InvoiceService, cache *querycache.Cache) *CachedInvoiceService {
	return &CachedInvoiceService{next: next, cache: cache}
}

func (s *CachedInvoiceService) List(ctx context.Context, filter domain.ListFilter) (*domain.InvoicePage, error) {
	normalized, err := filter.Normalize()
	if err != nil {
		return nil, err
	}
	return querycache.Fetch(ctx, s.cache, querycache.InvoiceListKey(normalized), func(ctx context.Context) (*domain.InvoicePage, error) {
		return s.next.List(ctx, normalized)
	})
}

func (s *CachedInvoiceService) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	return querycache.Fetch(ctx, s.cache, querycache.InvoiceKey(id), func(ctx context.Context) (*domain.Invoice, error) {
		return s.next.GetByID(ctx, id)
	})
}

func (s *CachedInvoiceService) Recent(ctx context.Context, limit int) ([]domain.InvoiceSummary, error) {
	if limit <= 0 {
		limit = domain.RecentLimit
	}
	return querycache.Fetch(ctx, s.cache, querycache.RecentKey(limit), func(ctx context.Context) ([]domain.InvoiceSummary, error) {
		return s.next.Recent(ctx, limit)
	})
}

func (s *CachedInvoiceService) Stats(ctx context.Context, now time.Time) (*domain.DashboardStats, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	thisMonth, _ := domain.MonthBounds(now)
	return querycache.Fetch(ctx, s.cache, querycache.StatsKey(thisMonth.Format("2006-01")), func(ctx context.Context) (*domain.DashboardStats, error) {
		return s.next.Stats(ctx, now)
	})
}

func (s *CachedInvoiceService) VendorSpend(ctx context.Context, limit int) ([]domain.VendorSpend, error) {
	if limit <= 0 {
		limit = domain.VendorSpendTop
	}
	return querycache.Fetch(ctx, s.cache, querycache.VendorSpendKey(limit), func(ctx context.Context) ([]domain.VendorSpend, error) {
		return s.next.VendorSpend(ctx, limit)
	})
}

func (s *CachedInvoiceService) ProcessingQueue(ctx context.Context) ([]domain.InvoiceSummary, error) {
	return querycache.Fetch(ctx, s.cache, querycache.QueueKey(), s.next.ProcessingQueue)
}

func (s *CachedInvoiceService) UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus) error {
	err := s.next.UpdateStatus(ctx, id, status)
	if err == nil {
		s.cache.InvalidateAfter(querycache.MutationUpdateStatus)
	}
	return err
}

func (s *CachedInvoiceService) Transition(ctx context.Context, id string, action domain.Action) (domain.InvoiceStatus, error) {
	status, err := s.next.Transition(ctx, id, action)
	if err == nil {
		s.cache.InvalidateAfter(querycache.MutationUpdateStatus)
	}
	return status, err
}

func (s *CachedInvoiceService) BulkTransition(ctx context.Context, ids []string, action domain.Action) []domain.BulkResult {
	results := s.next.BulkTransition(ctx, ids, action)
	for _, r := range results {
		if r.Error == "" {
			s.cache.InvalidateAfter(querycache.MutationUpdateStatus)
			break
		}
	}
	return results
}

func (s *CachedInvoiceService) Delete(ctx context.Context, id string) error {
	err := s.next.Delete(ctx, id)
	if err == nil {
		s.cache.InvalidateAfter(querycache.MutationDelete)
	}
	return err
}

// Uploaded drops the entries an upload makes stale.
func (s *CachedInvoiceService) Uploaded() {
	s.cache.InvalidateAfter(querycache.MutationUpload)
}

// HandleChange is the change feed hook: any row change from any writer drops
// every dependent view.
func (s *CachedInvoiceService) HandleChange(_ context.Context, _ changefeed.Event) {
	s.cache.InvalidateAfter(querycache.MutationRowChanged)
}

// PollQueue keeps the processing queue fresh when change notifications are
// unavailable.
func (s *CachedInvoiceService) PollQueue(ctx context.Context, interval time.Duration) {
	s.cache.Poll(ctx, querycache.QueueKey(), interval, func(ctx context.Context) (any, error) {
		return s.next.ProcessingQueue(ctx)
	})
}
