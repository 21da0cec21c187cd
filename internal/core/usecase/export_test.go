package usecase

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

type spreadsheetFake struct {
	rows int
}

func (f *spreadsheetFake) WriteInvoices(w io.Writer, invoices []domain.Invoice) error {
	f.rows = len(invoices)
	_, err := w.Write([]byte("xlsx"))
	return err
}

func TestExportCollectsAllPages(t *testing.T) {
	repo := newInvoiceRepoFake()
	repo.pages = map[int]*domain.InvoicePage{
		1: {Data: make([]domain.Invoice, domain.MaxPageSize), Count: domain.MaxPageSize + 3, Page: 1, TotalPages: 2},
		2: {Data: make([]domain.Invoice, 3), Count: domain.MaxPageSize + 3, Page: 2, TotalPages: 2},
	}
	writer := &spreadsheetFake{}
	uc := NewExportUseCase(repo, writer)

	var buf bytes.Buffer
	err := uc.Export(context.Background(), domain.ListFilter{Page: 7, Status: domain.StatusPending}, &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if writer.rows != domain.MaxPageSize+3 {
		t.Fatalf("expected %d rows, got %d", domain.MaxPageSize+3, writer.rows)
	}
	if len(repo.lists) != 2 || repo.lists[0].Page != 1 || repo.lists[0].Status != domain.StatusPending {
		t.Fatalf("unexpected list calls %+v", repo.lists)
	}
	if buf.String() != "xlsx" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
