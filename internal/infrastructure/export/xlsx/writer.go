package xlsx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

const SheetName = "Invoices"

var header = []any{
	"Invoice #",
	"Vendor",
	"Invoice Date",
	"Due Date",
	"Amount",
	"Currency",
	"Status",
	"Confidence",
	"Flags",
	"File",
	"Uploaded",
}

// Writer renders invoice lists as a single-sheet workbook.
type Writer struct{}

func New() *Writer {
	return &Writer{}
}

func (x *Writer) WriteInvoices(w io.Writer, invoices []domain.Invoice) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	amountFmt := "#,##0.00"
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &amountFmt})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	for i, inv := range invoices {
		row := i + 2
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := rowValues(inv)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		amountCell, _ := excelize.CoordinatesToCellName(5, row)
		if err := f.SetCellStyle(SheetName, amountCell, amountCell, money); err != nil {
			return fmt.Errorf("style row %d: %w", row, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "K", 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func rowValues(inv domain.Invoice) []any {
	return []any{
		deref(inv.InvoiceNumber),
		deref(inv.VendorName),
		dateCell(inv.InvoiceDate),
		dateCell(inv.DueDate),
		amountCell(inv.TotalAmount),
		inv.Currency,
		inv.Status.Label(),
		confidenceCell(inv.Confidence),
		strings.Join(inv.Flags, "; "),
		deref(inv.FileName),
		inv.UploadedAt.UTC().Format("2006-01-02 15:04"),
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func amountCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func confidenceCell(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
