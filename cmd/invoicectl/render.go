package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/format"
)

func renderProgress(w io.Writer, p domain.UploadProgress) {
	fmt.Fprintf(w, "[%3d%%] %s\n", p.Percent, strings.ReplaceAll(string(p.Checkpoint), "_", " "))
}

func renderUploadResult(w io.Writer, res *domain.UploadResult) {
	if res == nil {
		return
	}
	if inv := res.Invoice; inv != nil {
		fmt.Fprintf(w, "invoice %s  status=%s  vendor=%s  total=%s\n",
			inv.ID, inv.Status, orPlaceholder(inv.VendorName), format.Currency(inv.TotalAmount, inv.Currency))
	}
	if f := res.Failure; f != nil {
		fmt.Fprintf(w, "%s: %s\n", f.Title, f.Message)
		if f.Suggestion != "" {
			fmt.Fprintf(w, "suggestion: %s\n", f.Suggestion)
		}
	}
}

func renderStats(w io.Writer, stats *domain.DashboardStats, spend []domain.VendorSpend, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	trend := "n/a"
	if pct, ok := format.TrendPercent(stats.ThisMonthCount, stats.LastMonthCount); ok {
		trend = fmt.Sprintf("%+d%%", pct)
	}
	fmt.Fprintf(tw, "Invoices in %s\t%d\t(%s vs last month)\n", now.Format("January 2006"), stats.ThisMonthCount, trend)
	fmt.Fprintf(tw, "Total amount\t%s\t\n", format.CurrencyValue(stats.TotalAmount, domain.DefaultCurrency))
	fmt.Fprintf(tw, "Pending review\t%d\t\n", stats.PendingCount)
	fmt.Fprintf(tw, "Avg processing time\t%s\t\n", format.Duration(stats.AvgProcessingSeconds))
	_ = tw.Flush()

	if len(spend) == 0 {
		return
	}
	var total float64
	for _, v := range spend {
		total += v.Amount
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Top vendors")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, v := range spend {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", v.Name, format.CompactCurrency(v.Amount, domain.DefaultCurrency), format.Percent(v.Amount, total))
	}
	_ = tw.Flush()
}

func renderList(w io.Writer, page *domain.InvoicePage) {
	if page == nil || len(page.Data) == 0 {
		fmt.Fprintln(w, "no invoices match")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tVENDOR\tDATE\tTOTAL\tSTATUS")
	for _, inv := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID,
			orPlaceholder(inv.InvoiceNumber),
			orPlaceholder(inv.VendorName),
			format.Date(inv.InvoiceDate),
			format.Currency(inv.TotalAmount, inv.Currency),
			inv.Status.Label(),
		)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "page %d of %d (%d invoices)\n", page.Page, max(page.TotalPages, 1), page.Count)
}

func orPlaceholder(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return format.Placeholder
	}
	return *v
}
