package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
	QueueLimit      = 10
	RecentLimit     = 10
	VendorSpendTop  = 10
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

func (d SortDirection) Flip() SortDirection {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

func ParseSortDirection(raw string) (SortDirection, bool) {
	switch SortDirection(strings.ToLower(strings.TrimSpace(raw))) {
	case SortAsc:
		return SortAsc, true
	case SortDesc:
		return SortDesc, true
	default:
		return "", false
	}
}

const DefaultSortColumn = "created_at"

// SortColumns is the whitelist of columns a list may be ordered by.
var SortColumns = map[string]struct{}{
	"created_at":     {},
	"updated_at":     {},
	"invoice_number": {},
	"vendor_name":    {},
	"invoice_date":   {},
	"due_date":       {},
	"total_amount":   {},
	"status":         {},
	"confidence":     {},
}

func ValidSortColumn(column string) bool {
	_, ok := SortColumns[column]
	return ok
}

type ListFilter struct {
	Page          int           `json:"page"`
	PageSize      int           `json:"page_size"`
	Status        InvoiceStatus `json:"status,omitempty"`
	Search        string        `json:"search,omitempty"`
	SortColumn    string        `json:"sort_column"`
	SortDirection SortDirection `json:"sort_direction"`
	DateFrom      *time.Time    `json:"date_from,omitempty"`
	DateTo        *time.Time    `json:"date_to,omitempty"`
}

// Normalize fills defaults and rejects values the store cannot express.
func (f ListFilter) Normalize() (ListFilter, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
	if f.Status != "" && !f.Status.Valid() {
		return f, WrapError(ErrInvalidInput, "normalize list filter", fmt.Errorf("unknown status %q", f.Status))
	}
	if f.SortColumn == "" {
		f.SortColumn = DefaultSortColumn
	}
	if !ValidSortColumn(f.SortColumn) {
		return f, WrapError(ErrInvalidInput, "normalize list filter", fmt.Errorf("cannot sort by %q", f.SortColumn))
	}
	if f.SortDirection == "" {
		f.SortDirection = SortDesc
	}
	if _, ok := ParseSortDirection(string(f.SortDirection)); !ok {
		return f, WrapError(ErrInvalidInput, "normalize list filter", fmt.Errorf("unknown sort direction %q", f.SortDirection))
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return f, WrapError(ErrInvalidInput, "normalize list filter", fmt.Errorf("date range ends before it starts"))
	}
	return f, nil
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type InvoicePage struct {
	Data       []Invoice `json:"data"`
	Count      int       `json:"count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

func TotalPages(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// BulkResult reports the outcome of one id in a bulk action.
type BulkResult struct {
	ID     string        `json:"id"`
	Status InvoiceStatus `json:"status,omitempty"`
	Error  string        `json:"error,omitempty"`
}
