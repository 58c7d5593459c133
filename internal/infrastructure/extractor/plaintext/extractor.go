// Package plaintext reads UTF-8 text and markdown uploads and splits them into
// heading-labelled sections.
package plaintext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/chunking"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, filename, _ string, body io.Reader) ([]domain.SourceUnit, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "read "+filename, err)
	}
	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrIngestion, "read "+filename, fmt.Errorf("%s is not valid UTF-8 text", filename))
	}
	units := Sections(string(raw))
	if len(units) == 0 {
		return nil, domain.WrapError(domain.ErrIngestion, "read "+filename, errors.New("document contains no text"))
	}
	return units, nil
}

// Sections splits text at heading lines. Text before the first heading gets an
// empty section label; sections without body text are skipped.
func Sections(text string) []domain.SourceUnit {
	text = strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")

	var (
		out     []domain.SourceUnit
		section string
		body    []string
	)
	flush := func() {
		joined := strings.TrimSpace(strings.Join(body, "\n"))
		if joined != "" {
			out = append(out, domain.SourceUnit{Section: section, Text: joined})
		}
		body = body[:0]
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if title, ok := chunking.HeadingAt(lines, i); ok {
			flush()
			section = title
			continue
		}
		body = append(body, strings.TrimRight(line, " \t"))
	}
	flush()
	return out
}
