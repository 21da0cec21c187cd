package querycache

import (
	"encoding/json"
	"strconv"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

const (
	ScopeInvoices        = "invoices"
	ScopeInvoice         = "invoice"
	ScopeDashboardStats  = "dashboard-stats"
	ScopeVendorSpend     = "vendor-spend"
	ScopeProcessingQueue = "processing-queue"
)

func InvoiceListKey(filter domain.ListFilter) Key {
	raw, err := json.Marshal(filter)
	if err != nil {
		return Key{ScopeInvoices, "list"}
	}
	return Key{ScopeInvoices, "list", string(raw)}
}

func RecentKey(limit int) Key {
	return Key{ScopeInvoices, "recent", strconv.Itoa(limit)}
}

func InvoiceKey(id string) Key {
	return Key{ScopeInvoice, id}
}

// StatsKey is keyed by month so a cached value never crosses a month
// boundary.
func StatsKey(thisMonth string) Key {
	return Key{ScopeDashboardStats, thisMonth}
}

func VendorSpendKey(limit int) Key {
	return Key{ScopeVendorSpend, strconv.Itoa(limit)}
}

func QueueKey() Key {
	return Key{ScopeProcessingQueue}
}

type Mutation string

const (
	MutationUpdateStatus Mutation = "update_status"
	MutationDelete       Mutation = "delete"
	MutationUpload       Mutation = "upload"
	MutationRowChanged   Mutation = "row_changed"
)

var invalidations = map[Mutation][]Key{
	MutationUpdateStatus: {{ScopeInvoices}, {ScopeInvoice}, {ScopeDashboardStats}},
	MutationDelete:       {{ScopeInvoices}, {ScopeInvoice}, {ScopeDashboardStats}},
	MutationUpload:       {{ScopeInvoices}, {ScopeDashboardStats}, {ScopeProcessingQueue}},
	MutationRowChanged: {
		{ScopeInvoices},
		{ScopeInvoice},
		{ScopeDashboardStats},
		{ScopeProcessingQueue},
		{ScopeVendorSpend},
	},
}

// Invalidates lists the key prefixes a mutation drops.
func Invalidates(m Mutation) []Key {
	out := make([]Key, len(invalidations[m]))
	copy(out, invalidations[m])
	return out
}
