package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/resilience"
)

const serviceName = "nats"

// classifyPublishError retries while the client is between servers. Any other
// publish error is a bad request that a retry cannot fix.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case isConnectionError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isConnectionError(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting)
}

// wrapPublishError marks outages as temporary network failures so the API
// answers 503 and the caller can retry the reprocess request later.
func wrapPublishError(err error) error {
	const op = "publish reprocess request"
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case resilience.IsCircuitOpen(err), isConnectionError(err):
		return domain.WrapError(domain.ErrTemporary, op,
			&domain.NetworkError{Service: serviceName, Cause: domain.CauseConnection, Err: err})
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTemporary, op,
			&domain.NetworkError{Service: serviceName, Cause: domain.CauseTimeout, Err: err})
	default:
		return err
	}
}
