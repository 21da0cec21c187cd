package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/resilience"
)

type fakePublisher struct {
	errs     []error
	subjects []string
	payloads []string
	stamps   []string
}

func (p *fakePublisher) PublishMsg(msg *nats.Msg) error {
	p.subjects = append(p.subjects, msg.Subject)
	p.payloads = append(p.payloads, string(msg.Data))
	p.stamps = append(p.stamps, msg.Header.Get(RequestedAtHeader))
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func TestPublishRetriesDisconnectedServer(t *testing.T) {
	pub := &fakePublisher{errs: []error{nats.ErrDisconnected}}
	q := &Queue{
		pub:     pub,
		subject: DefaultSubject,
		executor: resilience.NewExecutor(resilience.Config{
			RetryMaxAttempts:    2,
			RetryInitialBackoff: time.Millisecond,
			RetryMaxBackoff:     time.Millisecond,
		}),
	}

	if err := q.PublishReprocessRequested(context.Background(), "inv-1"); err != nil {
		t.Fatalf("PublishReprocessRequested() error = %v", err)
	}
	if len(pub.payloads) != 2 || pub.payloads[1] != "inv-1" || pub.subjects[0] != "invoices.extract" {
		t.Fatalf("unexpected publishes %v on %v", pub.payloads, pub.subjects)
	}
}

func TestPublishMarksRetryableFailureTemporary(t *testing.T) {
	q := &Queue{pub: &fakePublisher{errs: []error{nats.ErrNoServers}}, subject: DefaultSubject}

	err := q.PublishReprocessRequested(context.Background(), "inv-1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) || netErr.Service != "nats" || netErr.Cause != domain.CauseConnection {
		t.Fatalf("expected nats connection failure, got %v", err)
	}
}

func TestPublishKeepsPermanentFailure(t *testing.T) {
	errBad := errors.New("bad subject")
	q := &Queue{pub: &fakePublisher{errs: []error{errBad}}, subject: DefaultSubject}

	err := q.PublishReprocessRequested(context.Background(), "inv-1")
	if !errors.Is(err, errBad) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestPublishStampsRequestTime(t *testing.T) {
	pub := &fakePublisher{}
	requested := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	q := &Queue{pub: pub, subject: DefaultSubject, now: func() time.Time { return requested }}

	if err := q.PublishReprocessRequested(context.Background(), "inv-1"); err != nil {
		t.Fatalf("PublishReprocessRequested() error = %v", err)
	}
	if len(pub.stamps) != 1 || pub.stamps[0] != "2026-03-15T12:00:00Z" {
		t.Fatalf("unexpected request stamp %v", pub.stamps)
	}
}

func TestRequestedAtMissing(t *testing.T) {
	if _, ok := RequestedAt(context.Background()); ok {
		t.Fatalf("expected no request time on a bare context")
	}
}
