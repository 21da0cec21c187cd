package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/core/changefeed"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
	"github.com/kirillkom/invoice-dashboard/internal/core/querycache"
	"github.com/kirillkom/invoice-dashboard/internal/core/usecase"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/extraction/webhook"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/inspect/pdfinfo"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/queue/nats"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/realtime/pgnotify"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/invoice-dashboard/internal/observability/metrics"
)

const changeFeedBuffer = 32

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	// Queue is nil when NATS is disabled; reprocessing then runs inline.
	Queue     ports.MessageQueue
	Repo      ports.InvoiceRepository
	Storage   ports.ObjectStorage
	Invoices  *usecase.CachedInvoiceService
	UploadUC  *usecase.UploadUseCase
	ProcessUC *usecase.ProcessInvoiceUseCase
	ExportUC  *usecase.ExportUseCase
	Events    *changefeed.Hub

	listener *pgnotify.Listener
	closeFn  func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewInvoiceRepository(db, cfg.DBTimeout)

	storage, err := localfs.New(cfg.StoragePath, cfg.PublicBaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("invoice-api")
	executor := resilience.NewExecutor(cfg.Resilience(),
		resilience.WithLogger(logger),
		resilience.WithRecorder(httpMetrics),
	)
	extractionClient := webhook.New(cfg.WebhookURL, webhook.Options{
		Timeout:            cfg.WebhookTimeout,
		ResilienceExecutor: executor,
	})

	var queue ports.MessageQueue
	var natsQueue *nats.Queue
	if cfg.NATSEnabled {
		natsQueue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		queue = natsQueue
	}

	cache := querycache.New(querycache.Options{
		DefaultStaleAfter: cfg.CacheStaleAfter,
		StaleAfter: map[string]time.Duration{
			querycache.ScopeDashboardStats: cfg.CacheStatsStaleAfter,
			querycache.ScopeVendorSpend:    cfg.CacheVendorStaleAfter,
		},
		FetchTimeout: cfg.DBTimeout,
		Recorder:     httpMetrics,
		Logger:       logger,
	})

	service := usecase.NewInvoiceService(repo,
		usecase.WithTransitionRecorder(httpMetrics),
		usecase.WithLogger(logger),
	)
	invoices := usecase.NewCachedInvoiceService(service, cache)

	uploadUC := usecase.NewUploadUseCase(repo, storage, extractionClient, pdfinfo.New(), usecase.UploadOptions{
		MaxBytes:    cfg.MaxUploadBytes,
		Source:      cfg.WebhookSource,
		OnCreated:   invoices.Uploaded,
		OnProcessed: invoices.Uploaded,
		Recorder:    httpMetrics,
		Logger:      logger,
	})
	processUC := usecase.NewProcessInvoiceUseCase(repo, storage, extractionClient, queue, usecase.ProcessOptions{
		Source:      cfg.WebhookSource,
		OnProcessed: invoices.Uploaded,
		Recorder:    httpMetrics,
		Logger:      logger,
	})
	exportUC := usecase.NewExportUseCase(repo, xlsx.New())

	events := changefeed.NewHub(changeFeedBuffer)
	listener := pgnotify.New(cfg.PostgresDSN, pgnotify.Options{Channel: postgres.ChangeChannel}, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: httpMetrics,

		Queue:     queue,
		Repo:      repo,
		Storage:   storage,
		Invoices:  invoices,
		UploadUC:  uploadUC,
		ProcessUC: processUC,
		ExportUC:  exportUC,
		Events:    events,

		listener: listener,

		closeFn: func() {
			events.Close()
			if natsQueue != nil {
				natsQueue.Close()
			}
			_ = db.Close()
		},
	}, nil
}

// RunBackground follows database change notifications and keeps the
// processing queue warm until ctx ends. Only the API process needs it.
func (a *App) RunBackground(ctx context.Context) {
	go a.Invoices.PollQueue(ctx, a.Config.QueuePollInterval)

	go func() {
		err := a.listener.Run(ctx, func(ctx context.Context, ev changefeed.Event) {
			a.Metrics.RecordChangeEvent(string(ev.Op))
			a.Invoices.HandleChange(ctx, ev)
			a.Events.Publish(ev)
		})
		if err != nil {
			a.Logger.Error("change listener stopped", "error", err)
		}
	}()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
