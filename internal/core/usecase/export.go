package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
	"github.com/kirillkom/invoice-dashboard/internal/core/ports"
)

const maxExportRows = 10000

type ExportUseCase struct {
	repo   ports.InvoiceRepository
	writer ports.SpreadsheetWriter
}

func NewExportUseCase(repo ports.InvoiceRepository, writer ports.SpreadsheetWriter) *ExportUseCase {
	return &ExportUseCase{repo: repo, writer: writer}
}

// Export writes every invoice matching filter, ignoring its page fields.
func (uc *ExportUseCase) Export(ctx context.Context, filter domain.ListFilter, w io.Writer) error {
	filter.Page = 1
	filter.PageSize = domain.MaxPageSize
	filter, err := filter.Normalize()
	if err != nil {
		return err
	}

	var invoices []domain.Invoice
	for {
		page, err := uc.repo.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list invoices for export: %w", err)
		}
		invoices = append(invoices, page.Data...)
		if filter.Page >= page.TotalPages || len(page.Data) == 0 {
			break
		}
		if len(invoices) >= maxExportRows {
			return domain.WrapError(domain.ErrInvalidInput, "export invoices",
				fmt.Errorf("more than %d invoices match, narrow the filter", maxExportRows))
		}
		filter.Page++
	}

	if err := uc.writer.WriteInvoices(w, invoices); err != nil {
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	return nil
}
