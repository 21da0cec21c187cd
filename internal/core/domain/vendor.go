package domain

import (
	"math"
	"sort"
	"strings"
)

// VendorAmount is a single (vendor, total) pair read from the store.
type VendorAmount struct {
	Vendor string
	Amount float64
}

// RankVendorSpend groups rows by vendor name, sums their amounts and returns
// the top limit vendors by spend. Ties are ordered by name.
func RankVendorSpend(rows []VendorAmount, limit int) []VendorSpend {
	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Vendor)
		if name == "" {
			continue
		}
		totals[name] += row.Amount
	}

	out := make([]VendorSpend, 0, len(totals))
	for name, amount := range totals {
		out = append(out, VendorSpend{Name: name, Amount: math.Round(amount*100) / 100})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
