package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

// multipartOverhead leaves room for form boundaries and headers on top of
// the file size limit.
const multipartOverhead = 1 << 20

func (rt *Router) maxUploadBytes() int64 {
	if rt.cfg.MaxUploadBytes > 0 {
		return rt.cfg.MaxUploadBytes
	}
	return domain.MaxUploadBytes
}

func (rt *Router) createUpload(w http.ResponseWriter, r *http.Request) {
	if rt.uploader == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "uploads are not configured"})
		return
	}
	maxBytes := rt.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.writeUploadTooLarge(w, maxBytes)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()
	if header.Size > maxBytes {
		rt.writeUploadTooLarge(w, maxBytes)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read uploaded file: " + err.Error()})
		return
	}
	upload := domain.UploadFile{
		Filename: header.Filename,
		MimeType: uploadMimeType(header.Header.Get("Content-Type"), header.Filename),
		Data:     data,
	}
	if upload.Size() > maxBytes {
		rt.writeUploadTooLarge(w, maxBytes)
		return
	}

	stream := acceptsEventStream(r)
	// Only event-stream clients can cancel an upload. A JSON client that
	// disconnects leaves the extraction running to completion.
	ctx := r.Context()
	if !stream {
		ctx = context.WithoutCancel(ctx)
	}
	task, err := rt.uploader.Start(ctx, upload)
	if err != nil {
		body := errorResponse{Error: err.Error(), Failure: domain.FailureInfoFor(err)}
		writeJSON(w, mapErrorToHTTPStatus(err), body)
		return
	}

	if stream {
		rt.streamUpload(w, r, task)
		return
	}
	res, err := task.Wait()
	rt.writeUploadResult(w, r, res, err)
}

func (rt *Router) writeUploadTooLarge(w http.ResponseWriter, maxBytes int64) {
	err := domain.WrapError(domain.ErrInvalidInput, "validate upload",
		fmt.Errorf("file size exceeds %dMB limit", (maxBytes+(1<<20)-1)/(1<<20)))
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
		Error:   err.Error(),
		Failure: domain.FailureInfoFor(err),
	})
}

type uploadResponse struct {
	Invoice *domain.Invoice     `json:"invoice,omitempty"`
	Failure *domain.FailureInfo `json:"failure,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// writeUploadResult answers 201 when extraction succeeded and 202 when the
// invoice was kept pending after a failed extraction.
func (rt *Router) writeUploadResult(w http.ResponseWriter, r *http.Request, res *domain.UploadResult, err error) {
	status, body := uploadOutcome(res, err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, status, body)
}

func uploadOutcome(res *domain.UploadResult, err error) (int, uploadResponse) {
	var body uploadResponse
	if res != nil {
		body.Invoice = res.Invoice
		body.Failure = res.Failure
	}
	if err == nil {
		return http.StatusCreated, body
	}
	body.Error = err.Error()
	if body.Failure == nil {
		body.Failure = domain.FailureInfoFor(err)
	}
	if domain.IsKind(err, domain.ErrPartialFailure) && body.Invoice != nil {
		return http.StatusAccepted, body
	}
	return mapErrorToHTTPStatus(err), body
}

// streamUpload reports checkpoints as they happen and finishes with a
// "result" event carrying the same body the JSON response would.
func (rt *Router) streamUpload(w http.ResponseWriter, r *http.Request, task ports.UploadTask) {
	flusher, err := startEventStream(w)
	if err != nil {
		res, waitErr := task.Wait()
		rt.writeUploadResult(w, r, res, waitErr)
		return
	}

	progress := task.Progress()
	for progress != nil {
		select {
		case <-r.Context().Done():
			task.Cancel()
			return
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			if err := writeSSE(w, flusher, "progress", p); err != nil {
				task.Cancel()
				return
			}
		}
	}

	res, err := task.Wait()
	status, body := uploadOutcome(res, err)
	event := "result"
	if status >= http.StatusBadRequest {
		event = "error"
	}
	_ = writeSSE(w, flusher, event, body)
}

// uploadMimeType trusts the part header unless it is missing or generic, in
// which case the extension decides.
func uploadMimeType(header, filename string) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err == nil && mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return header
}
