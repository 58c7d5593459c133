// Package pdf extracts the text layer of PDF uploads.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/extractor/plaintext"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads every page's plain text and sections the result by headings.
// Pages that fail to decode are skipped with a warning.
func (e *Extractor) Extract(ctx context.Context, filename, _ string, body io.Reader) ([]domain.SourceUnit, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "read "+filename, err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "open pdf "+filename, err)
	}

	var text strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf_page_skipped", "filename", filename, "page", i, "error", err.Error())
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(content)
	}

	units := plaintext.Sections(text.String())
	if len(units) == 0 {
		return nil, domain.WrapError(domain.ErrIngestion, "read "+filename, fmt.Errorf("pdf has no text layer (%d pages)", reader.NumPage()))
	}
	return units, nil
}

var errNotPDF = errors.New("missing %PDF header")

// Sniff reports whether data starts like a PDF file.
func Sniff(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return errNotPDF
	}
	return nil
}
