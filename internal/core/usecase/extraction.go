package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

const failureWriteTimeout = 5 * time.Second

// extractor runs one document through the extraction workflow and persists
// the outcome. Upload and reprocessing share it so both write results the
// same way.
type extractor struct {
	repo   ports.InvoiceRepository
	client ports.ExtractionClient
	source string
	now    func() time.Time
}

func encodeDocument(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// extract calls the workflow with an already encoded document.
func (e *extractor) extract(ctx context.Context, inv *domain.Invoice, encoded string) (*domain.ExtractionResponse, error) {
	req := domain.ExtractionRequest{
		FileBase64: encoded,
		MimeType:   inv.MimeType,
		Filename:   derefString(inv.FileName),
		Source:     e.source,
	}
	resp, err := e.client.Extract(ctx, req)
	if err != nil {
		return resp, fmt.Errorf("call extraction webhook: %w", err)
	}
	return resp, nil
}

// apply stores a successful response. The invoice keeps its status when it
// already left the in-flight states.
func (e *extractor) apply(ctx context.Context, invoiceID string, resp *domain.ExtractionResponse) error {
	extraction := domain.NormalizeExtraction(resp)
	if err := e.repo.ApplyExtraction(ctx, invoiceID, extraction, e.now()); err != nil {
		return fmt.Errorf("apply extraction: %w", err)
	}
	return nil
}

// recordFailure keeps the failure message on the invoice. It runs detached
// from ctx so a cancelled or timed out call is still recorded.
func (e *extractor) recordFailure(ctx context.Context, invoiceID string, cause error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	if err := e.repo.RecordFailure(writeCtx, invoiceID, failureMessage(cause)); err != nil {
		return fmt.Errorf("record extraction failure: %w", err)
	}
	return nil
}

func failureMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "extraction cancelled"
	}
	info := domain.FailureInfoFor(err)
	if info == nil {
		return ""
	}
	return info.Title + ": " + err.Error()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
