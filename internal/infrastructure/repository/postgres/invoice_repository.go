package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

const defaultTimeout = 5 * time.Second

type InvoiceRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewInvoiceRepository(db *sql.DB, timeout time.Duration) *InvoiceRepository {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &InvoiceRepository{db: db, timeout: timeout}
}

func (r *InvoiceRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

const invoiceColumns = `id, invoice_number, vendor_name, invoice_date, due_date, total_amount, currency, status,
	file_url, file_name, mime_type, storage_key, page_count, extracted_data, confidence, matched_po, flags,
	processing_error, created_at, updated_at, uploaded_at, processed_at`

const summaryColumns = `id, invoice_number, vendor_name, file_name, total_amount, currency, status, created_at`

func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	flags, err := json.Marshal(nonNilFlags(inv.Flags))
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	extracted, err := marshalExtracted(inv.ExtractedData)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO invoices (
	id, invoice_number, vendor_name, invoice_date, due_date, total_amount, currency, status,
	file_url, file_name, mime_type, storage_key, page_count, extracted_data, confidence, matched_po, flags,
	processing_error, created_at, updated_at, uploaded_at, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
`,
		inv.ID, inv.InvoiceNumber, inv.VendorName, inv.InvoiceDate, inv.DueDate, inv.TotalAmount, inv.Currency,
		string(inv.Status), inv.FileURL, inv.FileName, inv.MimeType, inv.StorageKey, inv.PageCount, extracted,
		inv.Confidence, inv.MatchedPO, flags, inv.ProcessingError, inv.CreatedAt, inv.UpdatedAt, inv.UploadedAt,
		inv.ProcessedAt,
	)
	if err != nil {
		return wrapStoreError("insert invoice", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+`
FROM invoices
WHERE id = $1
`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice by id", fmt.Errorf("id=%s", id))
		}
		return nil, wrapStoreError("get invoice by id", err)
	}

	items, err := r.lineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.LineItems = items
	return &inv, nil
}

func (r *InvoiceRepository) lineItems(ctx context.Context, invoiceID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, invoice_id, description, quantity, unit_price, total, created_at
FROM invoice_line_items
WHERE invoice_id = $1
ORDER BY created_at ASC, id ASC
`, invoiceID)
	if err != nil {
		return nil, wrapStoreError("list line items", err)
	}
	defer rows.Close()

	out := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Amount, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("iterate line items", err)
	}
	return out, nil
}

// List runs the count query first and skips the page query when the
// requested page lies past the end.
func (r *InvoiceRepository) List(ctx context.Context, filter domain.ListFilter) (*domain.InvoicePage, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := buildListQuery(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, q.countSQL, q.args...).Scan(&count); err != nil {
		return nil, wrapStoreError("count invoices", err)
	}

	page := &domain.InvoicePage{
		Data:       []domain.Invoice{},
		Count:      count,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: domain.TotalPages(count, filter.PageSize),
	}
	if filter.Offset() >= count {
		return page, nil
	}

	rows, err := r.db.QueryContext(ctx, q.selectSQL, q.pageArgs()...)
	if err != nil {
		return nil, wrapStoreError("list invoices", err)
	}
	defer rows.Close()

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		page.Data = append(page.Data, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("iterate invoices", err)
	}
	return page, nil
}

func (r *InvoiceRepository) Recent(ctx context.Context, limit int) ([]domain.InvoiceSummary, error) {
	if limit <= 0 {
		limit = domain.RecentLimit
	}
	return r.summaries(ctx, "recent invoices", `SELECT `+summaryColumns+`
FROM invoices
ORDER BY created_at DESC, id ASC
LIMIT $1
`, limit)
}

func (r *InvoiceRepository) ProcessingQueue(ctx context.Context, limit int) ([]domain.InvoiceSummary, error) {
	if limit <= 0 {
		limit = domain.QueueLimit
	}
	return r.summaries(ctx, "processing queue", `SELECT `+summaryColumns+`
FROM invoices
WHERE status IN `+inFlightStatusList()+`
ORDER BY created_at ASC, id ASC
LIMIT $1
`, limit)
}

func (r *InvoiceRepository) summaries(ctx context.Context, op, query string, args ...any) ([]domain.InvoiceSummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	defer rows.Close()

	out := make([]domain.InvoiceSummary, 0)
	for rows.Next() {
		var (
			s        domain.InvoiceSummary
			number   sql.NullString
			vendor   sql.NullString
			fileName sql.NullString
			total    sql.NullFloat64
			status   string
		)
		if err := rows.Scan(&s.ID, &number, &vendor, &fileName, &total, &s.Currency, &status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice summary: %w", err)
		}
		s.InvoiceNumber = stringOrNil(number)
		s.VendorName = stringOrNil(vendor)
		s.FileName = stringOrNil(fileName)
		s.TotalAmount = floatOrNil(total)
		s.Status = domain.InvoiceStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(op, err)
	}
	return out, nil
}

// UpdateStatus overwrites the status unconditionally. updated_at never moves
// backwards.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status domain.InvoiceStatus, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
UPDATE invoices
SET status = $2, updated_at = GREATEST(updated_at, $3)
WHERE id = $1
`, id, string(status), at.UTC())
	if err != nil {
		return wrapStoreError("update invoice status", err)
	}
	return requireRow(result, "update invoice status", id)
}

// Delete removes the invoice and, through the foreign key, its line items.
// Deleting a missing invoice is not an error.
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id); err != nil {
		return wrapStoreError("delete invoice", err)
	}
	return nil
}

// ApplyExtraction stores an extraction result and replaces the line items in
// one transaction. Only invoices still awaiting review are updated.
func (r *InvoiceRepository) ApplyExtraction(ctx context.Context, id string, ex domain.Extraction, processedAt time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	flags, err := json.Marshal(nonNilFlags(ex.Flags))
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	extracted, err := marshalExtracted(ex.Data)
	if err != nil {
		return err
	}
	currency := ex.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreError("begin apply extraction tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE invoices
SET invoice_number = COALESCE($2, invoice_number),
	vendor_name = COALESCE($3, vendor_name),
	invoice_date = COALESCE($4, invoice_date),
	due_date = COALESCE($5, due_date),
	total_amount = COALESCE($6, total_amount),
	currency = $7,
	confidence = $8,
	flags = $9,
	extracted_data = $10,
	status = '`+string(domain.StatusProcessed)+`',
	processing_error = '',
	processed_at = $11,
	updated_at = GREATEST(updated_at, $11)
WHERE id = $1 AND status IN `+inFlightStatusList()+`
`,
		id, ex.InvoiceNumber, ex.VendorName, ex.InvoiceDate, ex.DueDate, ex.TotalAmount, currency,
		ex.Confidence, flags, extracted, processedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError("apply extraction", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply extraction rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(
			domain.ErrIllegalTransition,
			"apply extraction",
			fmt.Errorf("invoice %s is missing or no longer awaiting extraction", id),
		)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_line_items WHERE invoice_id = $1`, id); err != nil {
		return wrapStoreError("clear line items", err)
	}
	for _, item := range ex.LineItems {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO invoice_line_items (id, invoice_id, description, quantity, unit_price, total, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, uuid.NewString(), id, item.Description, item.Quantity, item.UnitPrice, item.Amount, processedAt.UTC()); err != nil {
			return wrapStoreError("insert line item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreError("commit apply extraction tx", err)
	}
	return nil
}

func (r *InvoiceRepository) RecordFailure(ctx context.Context, id string, message string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
UPDATE invoices
SET processing_error = $2, updated_at = GREATEST(updated_at, $3)
WHERE id = $1
`, id, message, time.Now().UTC())
	if err != nil {
		return wrapStoreError("record extraction failure", err)
	}
	return requireRow(result, "record extraction failure", id)
}

func requireRow(result sql.Result, op, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrInvoiceNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var (
		inv         domain.Invoice
		number      sql.NullString
		vendor      sql.NullString
		invoiceDate sql.NullTime
		dueDate     sql.NullTime
		total       sql.NullFloat64
		status      string
		fileURL     sql.NullString
		fileName    sql.NullString
		pageCount   sql.NullInt64
		extracted   []byte
		confidence  sql.NullInt64
		matchedPO   sql.NullString
		flags       []byte
		processedAt sql.NullTime
	)
	err := row.Scan(
		&inv.ID, &number, &vendor, &invoiceDate, &dueDate, &total, &inv.Currency, &status,
		&fileURL, &fileName, &inv.MimeType, &inv.StorageKey, &pageCount, &extracted, &confidence, &matchedPO, &flags,
		&inv.ProcessingError, &inv.CreatedAt, &inv.UpdatedAt, &inv.UploadedAt, &processedAt,
	)
	if err != nil {
		return domain.Invoice{}, err
	}

	inv.InvoiceNumber = stringOrNil(number)
	inv.VendorName = stringOrNil(vendor)
	inv.InvoiceDate = timeOrNil(invoiceDate)
	inv.DueDate = timeOrNil(dueDate)
	inv.TotalAmount = floatOrNil(total)
	inv.Status = domain.InvoiceStatus(status)
	inv.FileURL = stringOrNil(fileURL)
	inv.FileName = stringOrNil(fileName)
	inv.MatchedPO = stringOrNil(matchedPO)
	inv.ProcessedAt = timeOrNil(processedAt)
	if pageCount.Valid {
		v := int(pageCount.Int64)
		inv.PageCount = &v
	}
	if confidence.Valid {
		v := int(confidence.Int64)
		inv.Confidence = &v
	}
	if len(extracted) > 0 && string(extracted) != "null" {
		var data domain.ExtractedData
		if err := json.Unmarshal(extracted, &data); err != nil {
			return domain.Invoice{}, fmt.Errorf("unmarshal extracted data: %w", err)
		}
		inv.ExtractedData = &data
	}
	inv.Flags = []string{}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &inv.Flags); err != nil {
			return domain.Invoice{}, fmt.Errorf("unmarshal flags: %w", err)
		}
	}
	return inv, nil
}

// marshalExtracted returns nil for a missing payload so the column is NULL.
func marshalExtracted(data *domain.ExtractedData) (any, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal extracted data: %w", err)
	}
	return raw, nil
}

func nonNilFlags(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}

func stringOrNil(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timeOrNil(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
