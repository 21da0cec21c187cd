// Package liststate keeps invoice list view state in the URL query string.
//
// Every list view is a pure function of its query parameters, so links and
// browser history reproduce the exact page, filter and ordering.
package liststate

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

const (
	KeyPage      = "page"
	KeyStatus    = "status"
	KeySearch    = "search"
	KeySortBy    = "sortBy"
	KeySortOrder = "sortOrder"
)

const statusAll = "all"

type State struct {
	Page      int                  `json:"page"`
	Status    domain.InvoiceStatus `json:"status,omitempty"`
	Search    string               `json:"search,omitempty"`
	SortBy    string               `json:"sortBy"`
	SortOrder domain.SortDirection `json:"sortOrder"`
}

func Default() State {
	return State{
		Page:      1,
		SortBy:    domain.DefaultSortColumn,
		SortOrder: domain.SortDesc,
	}
}

// Parse reads list state from query values. Missing or malformed values fall
// back to their defaults.
func Parse(values url.Values) State {
	st := Default()

	if raw := strings.TrimSpace(values.Get(KeyPage)); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page > 0 {
			st.Page = page
		}
	}
	if raw := strings.TrimSpace(values.Get(KeyStatus)); raw != "" && !strings.EqualFold(raw, statusAll) {
		if status, err := domain.ParseStatus(raw); err == nil {
			st.Status = status
		}
	}
	st.Search = strings.TrimSpace(values.Get(KeySearch))
	if raw := strings.TrimSpace(values.Get(KeySortBy)); domain.ValidSortColumn(raw) {
		st.SortBy = raw
	}
	if dir, ok := domain.ParseSortDirection(values.Get(KeySortOrder)); ok {
		st.SortOrder = dir
	}
	return st
}

// Values encodes the state canonically. Default values are omitted.
func (s State) Values() url.Values {
	def := Default()
	out := url.Values{}
	if s.Page > 1 {
		out.Set(KeyPage, strconv.Itoa(s.Page))
	}
	if s.Status != "" {
		out.Set(KeyStatus, string(s.Status))
	}
	if s.Search != "" {
		out.Set(KeySearch, s.Search)
	}
	if s.SortBy != "" && s.SortBy != def.SortBy {
		out.Set(KeySortBy, s.SortBy)
	}
	if s.SortOrder != "" && s.SortOrder != def.SortOrder {
		out.Set(KeySortOrder, string(s.SortOrder))
	}
	return out
}

func (s State) Encode() string {
	return s.Values().Encode()
}

// ListFilter converts the view state into a store query.
func (s State) ListFilter(pageSize int) domain.ListFilter {
	return domain.ListFilter{
		Page:          s.Page,
		PageSize:      pageSize,
		Status:        s.Status,
		Search:        s.Search,
		SortColumn:    s.SortBy,
		SortDirection: s.SortOrder,
	}
}
