package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/invoice-dashboard/internal/core/changefeed"
)

type notifyConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type Handler func(ctx context.Context, ev changefeed.Event)

type Options struct {
	Channel    string
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Listener keeps one dedicated connection in LISTEN mode and reconnects with
// exponential backoff when it drops.
type Listener struct {
	dial    func(ctx context.Context) (notifyConn, error)
	channel string
	min     time.Duration
	max     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(dsn string, opts Options, logger *slog.Logger) *Listener {
	return newListener(func(ctx context.Context) (notifyConn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}, opts, logger)
}

func newListener(dial func(ctx context.Context) (notifyConn, error), opts Options, logger *slog.Logger) *Listener {
	if opts.Channel == "" {
		opts.Channel = "invoice_changes"
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		dial:    dial,
		channel: opts.Channel,
		min:     opts.MinBackoff,
		max:     opts.MaxBackoff,
		logger:  logger,
		now:     time.Now,
	}
}

// Run blocks until ctx ends, delivering every change notification to handle.
func (l *Listener) Run(ctx context.Context, handle Handler) error {
	backoff := l.min
	for {
		err := l.listenOnce(ctx, handle, func() { backoff = l.min })
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("change listener disconnected", "channel", l.channel, "error", err, "retry_in", backoff.String())

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff *= 2
		if backoff > l.max {
			backoff = l.max
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context, handle Handler, connected func()) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	connected()
	l.logger.Info("change listener connected", "channel", l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		ev, err := ParsePayload(n.Payload, l.now())
		if err != nil {
			l.logger.Warn("skip malformed change notification", "payload", n.Payload, "error", err)
			continue
		}
		handle(ctx, ev)
	}
}

type payload struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// ParsePayload decodes the JSON written by the invoices trigger.
func ParsePayload(raw string, at time.Time) (changefeed.Event, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return changefeed.Event{}, fmt.Errorf("decode payload: %w", err)
	}
	op := changefeed.Op(strings.ToUpper(strings.TrimSpace(p.Op)))
	switch op {
	case changefeed.OpInsert, changefeed.OpUpdate, changefeed.OpDelete:
	default:
		return changefeed.Event{}, fmt.Errorf("unknown op %q", p.Op)
	}
	if p.ID == "" {
		return changefeed.Event{}, errors.New("missing invoice id")
	}
	return changefeed.Event{Op: op, InvoiceID: p.ID, At: at}, nil
}
