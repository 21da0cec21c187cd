package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUploadValidateRejectsWrongType(t *testing.T) {
	file := UploadFile{Filename: "notes.txt", MimeType: "text/plain", Data: []byte("hello")}
	err := file.Validate(0)
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "upload a PDF, PNG, or JPG file") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestUploadValidateRejectsOversize(t *testing.T) {
	file := UploadFile{Filename: "big.pdf", MimeType: "application/pdf", Data: bytes.Repeat([]byte{'x'}, MaxUploadBytes+1)}
	err := file.Validate(0)
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "10MB") {
		t.Fatalf("expected size limit in message, got %v", err)
	}
}

func TestUploadValidateAcceptsBoundary(t *testing.T) {
	file := UploadFile{Filename: "scan.jpg", MimeType: "image/jpeg", Data: bytes.Repeat([]byte{'x'}, MaxUploadBytes)}
	if err := file.Validate(0); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestNormalizeConfidence(t *testing.T) {
	cases := map[float64]int{
		0.92: 92,
		0.5:  50,
		1:    100,
		87:   87,
		87.6: 88,
		150:  100,
		-3:   0,
	}
	for in, want := range cases {
		if got := NormalizeConfidence(in); got != want {
			t.Fatalf("NormalizeConfidence(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestNormalizeExtractionPrefersStructuredData(t *testing.T) {
	raw := `{
		"success": true,
		"data": {"invoice_number": "S-1", "vendor_name": "Summary Co", "total_amount": 10, "currency": "eur", "confidence": 0.5, "anomalies": ["late"]},
		"extracted_data": {
			"vendor": "Acme Corp",
			"invoice_number": "INV-1",
			"invoice_date": "2024-03-01",
			"total": 250,
			"subtotal": 230,
			"tax_amount": 20,
			"confidence": 0.92,
			"anomalies": ["late", "duplicate?"],
			"line_items": [{"description": " Widget ", "quantity": 2, "unit_price": 115, "amount": 230}]
		}
	}`
	var resp ExtractionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := NormalizeExtraction(&resp)
	if got.InvoiceNumber == nil || *got.InvoiceNumber != "INV-1" {
		t.Fatalf("unexpected invoice number %v", got.InvoiceNumber)
	}
	if got.VendorName == nil || *got.VendorName != "Acme Corp" {
		t.Fatalf("unexpected vendor %v", got.VendorName)
	}
	if got.TotalAmount == nil || *got.TotalAmount != 250 {
		t.Fatalf("unexpected total %v", got.TotalAmount)
	}
	if got.Currency != "EUR" {
		t.Fatalf("expected summary currency EUR, got %s", got.Currency)
	}
	if got.Confidence == nil || *got.Confidence != 92 {
		t.Fatalf("expected confidence 92, got %v", got.Confidence)
	}
	if len(got.Flags) != 2 {
		t.Fatalf("expected deduplicated flags, got %v", got.Flags)
	}
	if len(got.LineItems) != 1 || got.LineItems[0].Description != "Widget" {
		t.Fatalf("unexpected line items %+v", got.LineItems)
	}
	if !resp.ExtractedData.TotalsConsistent(0.01) {
		t.Fatalf("expected totals to be consistent")
	}
}

func TestNormalizeExtractionEmpty(t *testing.T) {
	got := NormalizeExtraction(&ExtractionResponse{Success: true})
	if got.Currency != DefaultCurrency {
		t.Fatalf("expected default currency, got %s", got.Currency)
	}
	if got.Confidence != nil || got.TotalAmount != nil {
		t.Fatalf("expected nil optional fields, got %+v", got)
	}
}

func TestFailureInfoFor(t *testing.T) {
	connErr := &NetworkError{Service: "webhook", Cause: CauseConnection, Err: errors.New("connection refused")}
	info := FailureInfoFor(fmt.Errorf("upload: %w", connErr))
	if info.Title != "Connection Failed" || !info.Retryable {
		t.Fatalf("unexpected info %+v", info)
	}
	if !IsKind(connErr, ErrNetwork) {
		t.Fatalf("network error must unwrap to ErrNetwork")
	}

	info = FailureInfoFor(context.DeadlineExceeded)
	if info.Cause != CauseTimeout {
		t.Fatalf("expected timeout cause, got %s", info.Cause)
	}

	info = FailureInfoFor(WrapError(ErrInvalidInput, "validate upload", errors.New("bad type")))
	if info.Cause != CauseValidation || info.Retryable {
		t.Fatalf("unexpected validation info %+v", info)
	}

	if FailureInfoFor(nil) != nil {
		t.Fatalf("expected nil info for nil error")
	}
}
