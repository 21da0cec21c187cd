package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

const DefaultCurrency = "USD"

type Invoice struct {
	ID              string         `json:"id"`
	InvoiceNumber   *string        `json:"invoice_number"`
	VendorName      *string        `json:"vendor_name"`
	InvoiceDate     *time.Time     `json:"invoice_date"`
	DueDate         *time.Time     `json:"due_date"`
	TotalAmount     *float64       `json:"total_amount"`
	Currency        string         `json:"currency"`
	Status          InvoiceStatus  `json:"status"`
	FileURL         *string        `json:"file_url"`
	FileName        *string        `json:"file_name"`
	MimeType        string         `json:"mime_type,omitempty"`
	StorageKey      string         `json:"-"`
	PageCount       *int           `json:"page_count,omitempty"`
	ExtractedData   *ExtractedData `json:"extracted_data"`
	Confidence      *int           `json:"confidence"`
	MatchedPO       *string        `json:"matched_po"`
	Flags           []string       `json:"flags"`
	ProcessingError string         `json:"processing_error,omitempty"`
	LineItems       []LineItem     `json:"line_items,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	UploadedAt      time.Time      `json:"uploaded_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

// InvoiceSummary is the reduced projection used by the recent list and the
// processing queue.
type InvoiceSummary struct {
	ID            string        `json:"id"`
	InvoiceNumber *string       `json:"invoice_number"`
	VendorName    *string       `json:"vendor_name"`
	FileName      *string       `json:"file_name,omitempty"`
	TotalAmount   *float64      `json:"total_amount"`
	Currency      string        `json:"currency"`
	Status        InvoiceStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

type LineItem struct {
	ID          string    `json:"id,omitempty"`
	InvoiceID   string    `json:"invoice_id,omitempty"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// UnmarshalJSON accepts either a contact object or a bare name string; both
// shapes are produced by extraction workflows.
func (c *Contact) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		*c = Contact{Name: strings.TrimSpace(name)}
		return nil
	}
	type plain Contact
	var out plain
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*c = Contact(out)
	return nil
}

type PaymentInfo struct {
	Bank    string `json:"bank,omitempty"`
	Account string `json:"account,omitempty"`
	Routing string `json:"routing,omitempty"`
}

type ExtractedData struct {
	Vendor        *Contact     `json:"vendor,omitempty"`
	BillTo        *Contact     `json:"bill_to,omitempty"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	InvoiceDate   string       `json:"invoice_date,omitempty"`
	DueDate       string       `json:"due_date,omitempty"`
	PaymentTerms  string       `json:"payment_terms,omitempty"`
	LineItems     []LineItem   `json:"line_items,omitempty"`
	Subtotal      *float64     `json:"subtotal,omitempty"`
	TaxRate       *float64     `json:"tax_rate,omitempty"`
	TaxAmount     *float64     `json:"tax_amount,omitempty"`
	Discount      *float64     `json:"discount,omitempty"`
	Total         *float64     `json:"total,omitempty"`
	Currency      string       `json:"currency,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	PaymentInfo   *PaymentInfo `json:"payment_info,omitempty"`
	Confidence    *float64     `json:"confidence,omitempty"`
	Anomalies     []string     `json:"anomalies,omitempty"`
}

// ExpectedTotal returns subtotal - discount + tax when a subtotal is present.
// The result is informational; stored totals are never corrected with it.
func (d *ExtractedData) ExpectedTotal() (float64, bool) {
	if d == nil || d.Subtotal == nil {
		return 0, false
	}
	total := *d.Subtotal
	if d.Discount != nil {
		total -= *d.Discount
	}
	if d.TaxAmount != nil {
		total += *d.TaxAmount
	}
	return math.Round(total*100) / 100, true
}

// TotalsConsistent reports whether the extracted total is within tolerance of
// ExpectedTotal. It returns true when either side is unknown.
func (d *ExtractedData) TotalsConsistent(tolerance float64) bool {
	expected, ok := d.ExpectedTotal()
	if !ok || d.Total == nil {
		return true
	}
	return math.Abs(expected-*d.Total) <= tolerance
}

type VendorSpend struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

type DashboardStats struct {
	ThisMonthCount       int      `json:"this_month_count"`
	LastMonthCount       int      `json:"last_month_count"`
	TotalAmount          float64  `json:"total_amount"`
	PendingCount         int      `json:"pending_count"`
	AvgProcessingSeconds *float64 `json:"avg_processing_seconds"`
}

// MonthBounds returns the first instant of the month containing now and of
// the month before it, in now's location.
func MonthBounds(now time.Time) (thisMonth, lastMonth time.Time) {
	y, m, _ := now.Date()
	thisMonth = time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	lastMonth = thisMonth.AddDate(0, -1, 0)
	return thisMonth, lastMonth
}

func StringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseInvoiceDate reads a calendar date in one of the layouts extraction
// workflows emit. It returns nil when raw is empty or unrecognized.
func ParseInvoiceDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}
