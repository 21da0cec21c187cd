package httpadapter

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/core/changefeed"
)

type subscriberGaugeFake struct {
	connected    chan struct{}
	disconnected chan struct{}
}

func (f *subscriberGaugeFake) Middleware(next http.Handler) http.Handler { return next }
func (f *subscriberGaugeFake) Handler() http.Handler                     { return http.NotFoundHandler() }
func (f *subscriberGaugeFake) SubscriberConnected()                      { f.connected <- struct{}{} }
func (f *subscriberGaugeFake) SubscriberDisconnected()                   { f.disconnected <- struct{}{} }

func TestEventsStreamRelaysChanges(t *testing.T) {
	hub := changefeed.NewHub(4)
	gauge := &subscriberGaugeFake{connected: make(chan struct{}, 1), disconnected: make(chan struct{}, 1)}
	handler := NewRouter(config.Config{APIKey: "secret"}, Deps{
		Invoices: &invoiceServiceFake{},
		Events:   hub,
		Metrics:  gauge,
	}).Handler()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?access_token=secret", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	reader := bufio.NewReader(res.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("expected connected comment, got %q", line)
	}
	select {
	case <-gauge.connected:
	case <-time.After(time.Second):
		t.Fatalf("subscriber gauge was not incremented")
	}

	hub.Publish(changefeed.Event{Op: changefeed.OpUpdate, InvoiceID: "inv-1", At: time.Now()})

	deadline := time.After(2 * time.Second)
	lines := make(chan string)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()
	var sawEvent bool
	for !sawEvent {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before event")
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"id":"inv-1"`) && strings.Contains(line, `"op":"UPDATE"`) {
				sawEvent = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change event")
		}
	}

	cancel()
	select {
	case <-gauge.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber gauge was not decremented")
	}
	for i := 0; hub.Subscribers() != 0; i++ {
		if i > 100 {
			t.Fatalf("expected subscriber to be removed, got %d", hub.Subscribers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventsStreamUnavailableWithoutHub(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}
