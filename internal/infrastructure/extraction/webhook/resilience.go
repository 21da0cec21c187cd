package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "webhook status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("webhook status: %s", e.Status)
	}
	return fmt.Sprintf("webhook status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

// classifyWebhookError retries only failures where the request never reached
// the workflow. Anything after that may already have started an execution.
func classifyWebhookError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		switch netErr.Cause {
		case domain.CauseConnection:
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		case domain.CauseRejected:
			return resilience.ErrorClassification{
				Retryable:     false,
				RecordFailure: false,
			}
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation,
			&domain.NetworkError{Service: serviceName, Cause: domain.CauseConnection, Err: err})
	}
	return err
}
