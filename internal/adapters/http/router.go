package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/core/changefeed"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

const eventsPath = "/v1/events"

// Metrics is the part of metrics.HTTPServerMetrics the router needs.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	SubscriberConnected()
	SubscriberDisconnected()
}

type Deps struct {
	Invoices  ports.InvoiceService
	Uploader  ports.InvoiceUploader
	Processor ports.InvoiceProcessor
	Exporter  ports.InvoiceExporter
	Storage   ports.ObjectStorage
	Events    *changefeed.Hub
	Metrics   Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

type Router struct {
	cfg       config.Config
	invoices  ports.InvoiceService
	uploader  ports.InvoiceUploader
	processor ports.InvoiceProcessor
	exporter  ports.InvoiceExporter
	storage   ports.ObjectStorage
	events    *changefeed.Hub
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
	validator *requestValidator
}

func NewRouter(cfg config.Config, deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	validator, err := newRequestValidator()
	if err != nil {
		// The document is embedded, so this only fires on a broken build.
		panic(err)
	}
	return &Router{
		cfg:       cfg,
		invoices:  deps.Invoices,
		uploader:  deps.Uploader,
		processor: deps.Processor,
		exporter:  deps.Exporter,
		storage:   deps.Storage,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       now,
		validator: validator,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.yaml", rt.serveOpenAPIDocument)
	r.Get("/files/{key}", rt.serveFile)

	r.Group(func(r chi.Router) {
		r.Use(apiKeyMiddleware(rt.cfg.APIKey))
		r.Use(rateLimitMiddleware(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst))

		// The stream stays open for the life of the page, so it does not
		// take a backpressure slot.
		r.Get(eventsPath, rt.streamEvents)

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return backpressureMiddleware(next, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWaitTimeout)
			})
			r.Use(rt.validator.Middleware)

			r.Get("/v1/invoices", rt.listInvoices)
			r.Get("/v1/invoices/recent", rt.recentInvoices)
			r.Get("/v1/invoices/queue", rt.processingQueue)
			r.Get("/v1/invoices/export", rt.exportInvoices)
			r.Post("/v1/invoices/bulk/actions/{action}", rt.bulkAction)
			r.Get("/v1/invoices/{id}", rt.getInvoice)
			r.Delete("/v1/invoices/{id}", rt.deleteInvoice)
			r.Put("/v1/invoices/{id}/status", rt.updateStatus)
			r.Patch("/v1/invoices/{id}/status", rt.updateStatus)
			r.Post("/v1/invoices/{id}/actions/{action}", rt.applyAction)
			r.Post("/v1/invoices/{id}/reprocess", rt.reprocessInvoice)
			r.Post("/v1/uploads", rt.createUpload)
			r.Get("/v1/stats", rt.dashboardStats)
			r.Get("/v1/vendors/spend", rt.vendorSpend)

			r.Get("/", rt.dashboardView)
			r.Get("/invoices", rt.invoiceListView)
			r.Get("/invoices/{id}", rt.invoiceDetailView)
			r.Get("/upload", rt.uploadView)
			r.Get("/settings", rt.settingsView)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Back: "/"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
