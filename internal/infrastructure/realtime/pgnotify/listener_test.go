package pgnotify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/invoice-dashboard/internal/core/changefeed"
)

type fakeConn struct {
	notifications chan *pgconn.Notification
	execSQL       []string
	closed        bool
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execSQL = append(c.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n, ok := <-c.notifications:
		if !ok {
			return nil, errors.New("connection lost")
		}
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(context.Context) error {
	c.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePayload(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	ev, err := ParsePayload(`{"op":"UPDATE","id":"inv-1"}`, at)
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if ev.Op != changefeed.OpUpdate || ev.InvoiceID != "inv-1" || !ev.At.Equal(at) {
		t.Fatalf("unexpected event %+v", ev)
	}

	for _, raw := range []string{`not json`, `{"op":"TRUNCATE","id":"x"}`, `{"op":"DELETE"}`} {
		if _, err := ParsePayload(raw, at); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestRunDeliversAndReconnects(t *testing.T) {
	first := &fakeConn{notifications: make(chan *pgconn.Notification, 4)}
	second := &fakeConn{notifications: make(chan *pgconn.Notification, 4)}
	conns := []*fakeConn{first, second}

	var mu sync.Mutex
	dials := 0
	dial := func(context.Context) (notifyConn, error) {
		mu.Lock()
		defer mu.Unlock()
		if dials >= len(conns) {
			return nil, errors.New("no more connections")
		}
		c := conns[dials]
		dials++
		return c, nil
	}

	l := newListener(dial, Options{Channel: "invoice_changes", MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, discardLogger())

	first.notifications <- &pgconn.Notification{Channel: "invoice_changes", Payload: `{"op":"INSERT","id":"a"}`}
	first.notifications <- &pgconn.Notification{Channel: "invoice_changes", Payload: `garbage`}
	close(first.notifications)
	second.notifications <- &pgconn.Notification{Channel: "invoice_changes", Payload: `{"op":"DELETE","id":"b"}`}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan changefeed.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, func(_ context.Context, ev changefeed.Event) { events <- ev })
	}()

	var got []changefeed.Event
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got[0].InvoiceID != "a" || got[1].InvoiceID != "b" || got[1].Op != changefeed.OpDelete {
		t.Fatalf("unexpected events %+v", got)
	}
	if len(first.execSQL) != 1 || first.execSQL[0] != `LISTEN "invoice_changes"` {
		t.Fatalf("unexpected listen statement %v", first.execSQL)
	}
	if !first.closed {
		t.Fatalf("dropped connection must be closed")
	}
}
