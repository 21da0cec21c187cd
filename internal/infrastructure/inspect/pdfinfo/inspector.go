package pdfinfo

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

// Inspector reads document metadata before the document is sent for
// extraction.
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

// PageCount returns the number of pages of a PDF. Images count as one page.
func (i *Inspector) PageCount(data []byte, mimeType string) (n int, err error) {
	if !strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf") {
		return 1, nil
	}
	if len(data) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "inspect pdf", fmt.Errorf("empty document"))
	}

	// The parser panics on some truncated cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			n = 0
			err = domain.WrapError(domain.ErrInvalidInput, "inspect pdf", fmt.Errorf("unreadable pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "inspect pdf", err)
	}
	return reader.NumPage(), nil
}
