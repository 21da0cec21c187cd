package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/changefeed"
	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/querycache"
)

func newCachedService(repo *invoiceRepoFake) *CachedInvoiceService {
	cache := querycache.New(querycache.Options{DefaultStaleAfter: time.Hour})
	return NewCachedInvoiceService(NewInvoiceService(repo), cache)
}

func TestCachedGetByIDServesFromCacheUntilMutation(t *testing.T) {
	repo := newInvoiceRepoFake(domain.Invoice{ID: "x", Status: domain.StatusPending})
	svc := newCachedService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.GetByID(ctx, "x"); err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
	}
	if repo.getCalls != 1 {
		t.Fatalf("expected one store read, got %d", repo.getCalls)
	}

	if _, err := svc.Transition(ctx, "x", domain.ActionApprove); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	inv, err := svc.GetByID(ctx, "x")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if inv.Status != domain.StatusApproved {
		t.Fatalf("expected fresh approved invoice, got %s", inv.Status)
	}
}

func TestCachedChangeFeedConvergesStaleSession(t *testing.T) {
	repo := newInvoiceRepoFake(domain.Invoice{ID: "x", Status: domain.StatusPending})
	session := newCachedService(repo)
	ctx := context.Background()

	if _, err := session.GetByID(ctx, "x"); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	// Another process writes directly to the store.
	other := NewInvoiceService(repo)
	if err := other.UpdateStatus(ctx, "x", domain.StatusApproved); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := session.UpdateStatus(ctx, "x", domain.StatusRejected); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := other.UpdateStatus(ctx, "x", domain.StatusPaid); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	session.HandleChange(ctx, changefeed.Event{Op: changefeed.OpUpdate, InvoiceID: "x"})
	inv, err := session.GetByID(ctx, "x")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if inv.Status != domain.StatusPaid {
		t.Fatalf("expected converged status paid, got %s", inv.Status)
	}
}

func TestCachedUploadedDropsQueue(t *testing.T) {
	repo := newInvoiceRepoFake()
	svc := newCachedService(repo)
	ctx := context.Background()

	queue, err := svc.ProcessingQueue(ctx)
	if err != nil || len(queue) != 0 {
		t.Fatalf("ProcessingQueue() = %v, %v", queue, err)
	}
	_ = repo.Create(ctx, &domain.Invoice{ID: "new", Status: domain.StatusPending})

	queue, _ = svc.ProcessingQueue(ctx)
	if len(queue) != 0 {
		t.Fatalf("expected cached empty queue before invalidation")
	}
	svc.Uploaded()
	queue, _ = svc.ProcessingQueue(ctx)
	if len(queue) != 1 {
		t.Fatalf("expected refreshed queue, got %v", queue)
	}
}

func TestUploadRefreshesListReadDuringWebhook(t *testing.T) {
	repo := newInvoiceRepoFake()
	svc := newCachedService(repo)
	client := &extractionFake{
		resp:    scenarioAResponse(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	uc := NewUploadUseCase(repo, newStorageFake(), client, nil, UploadOptions{
		OnCreated:   svc.Uploaded,
		OnProcessed: svc.Uploaded,
	})
	ctx := context.Background()

	task, err := uc.Start(ctx, pdfFile(1024))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-client.started

	page, err := svc.List(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].Status != domain.StatusPending {
		t.Fatalf("expected pending invoice during webhook, got %+v", page.Data)
	}

	close(client.release)
	res, err := task.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.Invoice.Status != domain.StatusProcessed {
		t.Fatalf("expected processed upload, got %s", res.Invoice.Status)
	}

	page, err = svc.List(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].Status != domain.StatusProcessed {
		t.Fatalf("list kept the status cached during the webhook: %+v", page.Data)
	}
}
