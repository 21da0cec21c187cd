package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/resilience"
)

const (
	DefaultTimeout = 5 * time.Minute
	DefaultSource  = "web-upload"
)

// Client posts documents to the extraction workflow webhook.
type Client struct {
	url        string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
}

func New(url string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		url:        strings.TrimSpace(url),
		httpClient: httpClient,
		executor:   opts.ResilienceExecutor,
	}
}

// Extract sends one document and returns the decoded reply. A reply with
// success=false is returned as a rejected NetworkError.
func (c *Client) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResponse, error) {
	if c.url == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract invoice", fmt.Errorf("webhook url is not configured"))
	}
	if req.Source == "" {
		req.Source = DefaultSource
	}

	var resp domain.ExtractionResponse
	call := func(callCtx context.Context) error {
		resp = domain.ExtractionResponse{}
		return c.postJSON(callCtx, req, &resp)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "webhook.extract", call, classifyWebhookError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("extract invoice", err)
	}

	if !resp.Success {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = strings.TrimSpace(resp.Message)
		}
		if msg == "" {
			msg = "extraction workflow reported failure"
		}
		return &resp, &domain.NetworkError{Service: serviceName, Cause: domain.CauseRejected, Err: fmt.Errorf("%s", msg)}
	}
	return &resp, nil
}
