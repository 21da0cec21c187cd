package httpadapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

func multipartUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func allCheckpoints() []domain.Checkpoint {
	return []domain.Checkpoint{
		domain.CheckpointEncodingStarted,
		domain.CheckpointUploadDone,
		domain.CheckpointWebhookStarted,
		domain.CheckpointWebhookDone,
	}
}

func TestUploadReturns201OnSuccess(t *testing.T) {
	tr := newTestRouter(config.Config{})
	processed := sampleInvoice("inv-1", domain.StatusProcessed)
	tr.uploader.task = newFinishedTask(&domain.UploadResult{Invoice: processed}, nil, allCheckpoints()...)

	body, contentType := multipartUpload(t, "invoice.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var resp uploadResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Invoice == nil || resp.Invoice.ID != "inv-1" || resp.Failure != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	if tr.uploader.got.Filename != "invoice.pdf" || string(tr.uploader.got.Data) != "%PDF-1.4" {
		t.Fatalf("unexpected upload %+v", tr.uploader.got)
	}
}

func TestUploadSurvivesClientDisconnect(t *testing.T) {
	tr := newTestRouter(config.Config{})
	tr.uploader.task = newFinishedTask(&domain.UploadResult{Invoice: sampleInvoice("inv-1", domain.StatusProcessed)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	body, contentType := multipartUpload(t, "invoice.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body).WithContext(ctx)
	req.Header.Set("Content-Type", contentType)
	cancel()
	tr.handler.ServeHTTP(httptest.NewRecorder(), req)

	if tr.uploader.ctx == nil {
		t.Fatalf("upload was not started")
	}
	if err := tr.uploader.ctx.Err(); err != nil {
		t.Fatalf("JSON upload must not follow the request context, got %v", err)
	}
}

func TestUploadStreamFollowsRequestContext(t *testing.T) {
	tr := newTestRouter(config.Config{})
	tr.uploader.task = newFinishedTask(&domain.UploadResult{Invoice: sampleInvoice("inv-1", domain.StatusProcessed)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	body, contentType := multipartUpload(t, "invoice.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body).WithContext(ctx)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")
	cancel()
	tr.handler.ServeHTTP(httptest.NewRecorder(), req)

	if tr.uploader.ctx == nil || tr.uploader.ctx.Err() == nil {
		t.Fatalf("event-stream upload should be cancelled with the request")
	}
}

func TestUploadFallsBackToExtensionMimeType(t *testing.T) {
	tr := newTestRouter(config.Config{})
	tr.uploader.task = newFinishedTask(&domain.UploadResult{Invoice: sampleInvoice("inv-1", domain.StatusProcessed)}, nil)

	body, contentType := multipartUpload(t, "scan.JPG", "application/octet-stream", []byte{0xff, 0xd8, 0xff})
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if tr.uploader.got.MimeType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %q", tr.uploader.got.MimeType)
	}
}

func TestUploadReturns202WhenExtractionFails(t *testing.T) {
	tr := newTestRouter(config.Config{})
	pending := sampleInvoice("inv-1", domain.StatusPending)
	cause := &domain.NetworkError{Service: "extraction webhook", Cause: domain.CauseConnection, Err: errors.New("refused")}
	tr.uploader.task = newFinishedTask(
		&domain.UploadResult{Invoice: pending, Failure: domain.FailureInfoFor(cause)},
		domain.WrapError(domain.ErrPartialFailure, "upload invoice", cause),
	)

	body, contentType := multipartUpload(t, "invoice.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var resp uploadResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Invoice == nil || resp.Invoice.Status != domain.StatusPending {
		t.Fatalf("expected pending invoice to be returned, got %+v", resp.Invoice)
	}
	if resp.Failure == nil || resp.Failure.Title != "Connection Failed" || !resp.Failure.Retryable {
		t.Fatalf("unexpected failure %+v", resp.Failure)
	}
}

func TestUploadRejectsOversizedFileBeforeStarting(t *testing.T) {
	tr := newTestRouter(config.Config{MaxUploadBytes: 1024})

	body, contentType := multipartUpload(t, "big.pdf", "application/pdf", bytes.Repeat([]byte("a"), 2048))
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", res.Code, res.Body.String())
	}
	var resp errorResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Failure == nil || resp.Failure.Cause != domain.CauseValidation {
		t.Fatalf("expected validation failure, got %+v", resp.Failure)
	}
	if tr.uploader.got.Filename != "" {
		t.Fatalf("oversized upload must not start")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	tr := newTestRouter(config.Config{})

	body, contentType := multipartUpload(t, "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "invalid file type") {
		t.Fatalf("unexpected body %s", res.Body.String())
	}
}

func TestUploadStreamsProgress(t *testing.T) {
	tr := newTestRouter(config.Config{})
	tr.uploader.task = newFinishedTask(&domain.UploadResult{Invoice: sampleInvoice("inv-1", domain.StatusProcessed)}, nil, allCheckpoints()...)

	body, contentType := multipartUpload(t, "invoice.pdf", "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []string
	var percents []int
	scanner := bufio.NewScanner(res.Body)
	var current string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
			events = append(events, current)
		case strings.HasPrefix(line, "data: ") && current == "progress":
			var p domain.UploadProgress
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &p); err != nil {
				t.Fatalf("decode progress: %v", err)
			}
			percents = append(percents, p.Percent)
		}
	}

	if len(events) != 5 || events[4] != "result" {
		t.Fatalf("unexpected events %v", events)
	}
	want := []int{10, 40, 50, 100}
	for i, p := range want {
		if percents[i] != p {
			t.Fatalf("unexpected percents %v", percents)
		}
	}
}
