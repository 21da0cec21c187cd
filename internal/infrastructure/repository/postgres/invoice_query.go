package postgres

import (
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

type listQuery struct {
	countSQL  string
	selectSQL string
	args      []any
	limit     int
	offset    int
}

func (q listQuery) pageArgs() []any {
	out := make([]any, 0, len(q.args)+2)
	out = append(out, q.args...)
	return append(out, q.limit, q.offset)
}

// buildListQuery expects a normalized filter. Sort columns are checked
// against the whitelist before they are interpolated.
func buildListQuery(f domain.ListFilter) listQuery {
	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "status = "+next(string(f.Status)))
	}
	if f.Search != "" {
		p := next("%" + escapeLike(f.Search) + "%")
		where = append(where, fmt.Sprintf(`(invoice_number ILIKE %s ESCAPE '\' OR vendor_name ILIKE %s ESCAPE '\')`, p, p))
	}
	if f.DateFrom != nil {
		where = append(where, "invoice_date >= "+next(f.DateFrom.Format("2006-01-02")))
	}
	if f.DateTo != nil {
		where = append(where, "invoice_date <= "+next(f.DateTo.Format("2006-01-02")))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "\nWHERE " + strings.Join(where, "\n  AND ")
	}

	column := f.SortColumn
	if !domain.ValidSortColumn(column) {
		column = domain.DefaultSortColumn
	}
	dir := "DESC"
	if f.SortDirection == domain.SortAsc {
		dir = "ASC"
	}

	limitPos := len(args) + 1
	q := listQuery{
		countSQL: "SELECT COUNT(*) FROM invoices" + whereSQL,
		selectSQL: fmt.Sprintf(
			"SELECT %s\nFROM invoices%s\nORDER BY %s %s NULLS LAST, id ASC\nLIMIT $%d OFFSET $%d",
			invoiceColumns, whereSQL, column, dir, limitPos, limitPos+1,
		),
		args:   args,
		limit:  f.PageSize,
		offset: f.Offset(),
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func inFlightStatusList() string {
	quoted := make([]string, 0, len(domain.InFlightStatuses))
	for _, s := range domain.InFlightStatuses {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
