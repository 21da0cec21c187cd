package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

// Stats runs the dashboard aggregates. Counts use created_at; the processing
// average covers invoices whose extraction finished this month.
func (r *InvoiceRepository) Stats(ctx context.Context, thisMonth, lastMonth time.Time) (*domain.DashboardStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var stats domain.DashboardStats
	thisMonth = thisMonth.UTC()
	lastMonth = lastMonth.UTC()

	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM invoices WHERE created_at >= $1
`, thisMonth).Scan(&stats.ThisMonthCount); err != nil {
		return nil, wrapStoreError("count this month invoices", err)
	}

	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM invoices WHERE created_at >= $1 AND created_at < $2
`, lastMonth, thisMonth).Scan(&stats.LastMonthCount); err != nil {
		return nil, wrapStoreError("count last month invoices", err)
	}

	if err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(total_amount), 0) FROM invoices WHERE created_at >= $1
`, thisMonth).Scan(&stats.TotalAmount); err != nil {
		return nil, wrapStoreError("sum this month amount", err)
	}

	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM invoices WHERE status IN `+inFlightStatusList()+`
`).Scan(&stats.PendingCount); err != nil {
		return nil, wrapStoreError("count pending invoices", err)
	}

	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, `
SELECT AVG(EXTRACT(EPOCH FROM (processed_at - uploaded_at)))
FROM invoices
WHERE processed_at IS NOT NULL AND processed_at >= $1
`, thisMonth).Scan(&avg); err != nil {
		return nil, wrapStoreError("average processing time", err)
	}
	stats.AvgProcessingSeconds = floatOrNil(avg)

	return &stats, nil
}

func (r *InvoiceRepository) VendorAmounts(ctx context.Context) ([]domain.VendorAmount, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
SELECT vendor_name, total_amount
FROM invoices
WHERE vendor_name IS NOT NULL AND total_amount IS NOT NULL
`)
	if err != nil {
		return nil, wrapStoreError("list vendor amounts", err)
	}
	defer rows.Close()

	out := make([]domain.VendorAmount, 0)
	for rows.Next() {
		var row domain.VendorAmount
		if err := rows.Scan(&row.Vendor, &row.Amount); err != nil {
			return nil, fmt.Errorf("scan vendor amount: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("iterate vendor amounts", err)
	}
	return out, nil
}
