package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const MaxUploadBytes = 10 * 1024 * 1024

// AcceptedMimeTypes maps upload content types to their file extensions.
var AcceptedMimeTypes = map[string][]string{
	"application/pdf": {".pdf"},
	"image/png":       {".png"},
	"image/jpeg":      {".jpg", ".jpeg"},
	"image/jpg":       {".jpg", ".jpeg"},
}

type UploadFile struct {
	Filename string
	MimeType string
	Data     []byte
}

func (f UploadFile) Size() int64 { return int64(len(f.Data)) }

// Validate rejects unsupported types and oversized files. maxBytes <= 0 uses
// MaxUploadBytes.
func (f UploadFile) Validate(maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	mime := strings.ToLower(strings.TrimSpace(f.MimeType))
	if _, ok := AcceptedMimeTypes[mime]; !ok {
		return WrapError(ErrInvalidInput, "validate upload",
			fmt.Errorf("invalid file type %q: upload a PDF, PNG, or JPG file", f.MimeType))
	}
	if f.Size() == 0 {
		return WrapError(ErrInvalidInput, "validate upload", fmt.Errorf("file %q is empty", f.Filename))
	}
	if f.Size() > maxBytes {
		return WrapError(ErrInvalidInput, "validate upload",
			fmt.Errorf("file size exceeds %dMB limit", int64(math.Ceil(float64(maxBytes)/(1024*1024)))))
	}
	return nil
}

type ExtractionRequest struct {
	FileBase64 string `json:"file_base64"`
	MimeType   string `json:"mime_type"`
	Filename   string `json:"filename"`
	Source     string `json:"source"`
}

type ExtractionSummary struct {
	InvoiceID      string   `json:"invoice_id,omitempty"`
	InvoiceNumber  *string  `json:"invoice_number,omitempty"`
	VendorName     *string  `json:"vendor_name,omitempty"`
	TotalAmount    *float64 `json:"total_amount,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	LineItemsCount int      `json:"line_items_count,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Anomalies      []string `json:"anomalies,omitempty"`
	ProcessedAt    string   `json:"processed_at,omitempty"`
}

// ExtractionResponse is the webhook reply.
type ExtractionResponse struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message,omitempty"`
	Error         string             `json:"error,omitempty"`
	ExtractedData *ExtractedData     `json:"extracted_data,omitempty"`
	Data          *ExtractionSummary `json:"data,omitempty"`
}

// Extraction is the normalized set of invoice fields derived from a webhook
// response, ready to be persisted.
type Extraction struct {
	InvoiceNumber *string
	VendorName    *string
	InvoiceDate   *time.Time
	DueDate       *time.Time
	TotalAmount   *float64
	Currency      string
	Confidence    *int
	Flags         []string
	Data          *ExtractedData
	LineItems     []LineItem
}

// NormalizeExtraction merges the structured payload and the summary block of a
// webhook response. Structured fields win over summary fields.
func NormalizeExtraction(resp *ExtractionResponse) Extraction {
	out := Extraction{Currency: DefaultCurrency, Flags: []string{}}
	if resp == nil {
		return out
	}

	if sum := resp.Data; sum != nil {
		out.InvoiceNumber = trimmedPtr(sum.InvoiceNumber)
		out.VendorName = trimmedPtr(sum.VendorName)
		out.TotalAmount = sum.TotalAmount
		if c := strings.TrimSpace(sum.Currency); c != "" {
			out.Currency = strings.ToUpper(c)
		}
		if sum.Confidence != nil {
			c := NormalizeConfidence(*sum.Confidence)
			out.Confidence = &c
		}
		out.Flags = append(out.Flags, sum.Anomalies...)
	}

	data := resp.ExtractedData
	if data == nil {
		return out
	}
	out.Data = data
	if v := StringPtr(data.InvoiceNumber); v != nil {
		out.InvoiceNumber = v
	}
	if data.Vendor != nil {
		if v := StringPtr(data.Vendor.Name); v != nil {
			out.VendorName = v
		}
	}
	out.InvoiceDate = ParseInvoiceDate(data.InvoiceDate)
	out.DueDate = ParseInvoiceDate(data.DueDate)
	if data.Total != nil {
		out.TotalAmount = data.Total
	}
	if c := strings.TrimSpace(data.Currency); c != "" {
		out.Currency = strings.ToUpper(c)
	}
	if data.Confidence != nil {
		c := NormalizeConfidence(*data.Confidence)
		out.Confidence = &c
	}
	out.Flags = appendUnique(out.Flags, data.Anomalies...)
	out.LineItems = make([]LineItem, 0, len(data.LineItems))
	for _, item := range data.LineItems {
		out.LineItems = append(out.LineItems, LineItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}
	return out
}

// NormalizeConfidence maps a producer score on either the 0-1 or 0-100 scale
// to an integer percentage in [0, 100].
func NormalizeConfidence(raw float64) int {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw <= 1 {
		raw *= 100
	}
	if raw > 100 {
		raw = 100
	}
	return int(math.Round(raw))
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	return StringPtr(*v)
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

type Checkpoint string

const (
	CheckpointEncodingStarted Checkpoint = "encoding_started"
	CheckpointUploadDone      Checkpoint = "upload_done"
	CheckpointWebhookStarted  Checkpoint = "webhook_started"
	CheckpointWebhookDone     Checkpoint = "webhook_done"
)

// Percent is the progress value reported when the checkpoint is reached.
func (c Checkpoint) Percent() int {
	switch c {
	case CheckpointEncodingStarted:
		return 10
	case CheckpointUploadDone:
		return 40
	case CheckpointWebhookStarted:
		return 50
	case CheckpointWebhookDone:
		return 100
	default:
		return 0
	}
}

type UploadProgress struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Percent    int        `json:"percent"`
	InvoiceID  string     `json:"invoice_id,omitempty"`
}

// ReprocessOutcome reports how a reprocess request was handled. Invoice is
// the re-extracted record when the extraction ran inline.
type ReprocessOutcome struct {
	Queued  bool
	Invoice *Invoice
}

// UploadResult is what an upload task resolves to. Invoice is set whenever
// the pending record was created, including failed extractions.
type UploadResult struct {
	Invoice  *Invoice            `json:"invoice,omitempty"`
	Response *ExtractionResponse `json:"response,omitempty"`
	Failure  *FailureInfo        `json:"failure,omitempty"`
}
