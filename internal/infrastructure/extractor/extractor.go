// Package extractor picks a text extractor for an upload from its MIME type
// or file extension.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/extractor/plaintext"
)

const DefaultMaxBytes = 20 << 20

// Router dispatches to the PDF or plain-text extractor and enforces an upload size limit.
type Router struct {
	maxBytes int64
	text     ports.TextExtractor
	pdf      ports.TextExtractor
}

func NewRouter(maxBytes int64) *Router {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Router{maxBytes: maxBytes, text: plaintext.NewExtractor(), pdf: pdf.NewExtractor()}
}

func (r *Router) Extract(ctx context.Context, filename, mimeType string, body io.Reader) ([]domain.SourceUnit, error) {
	if body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("%s has no body", filename))
	}
	raw, err := io.ReadAll(io.LimitReader(body, r.maxBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestion, "read "+filename, err)
	}
	if int64(len(raw)) > r.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("%s exceeds %d bytes", filename, r.maxBytes))
	}

	if isPDF(filename, mimeType) || pdf.Sniff(raw) == nil {
		return r.pdf.Extract(ctx, filename, mimeType, bytes.NewReader(raw))
	}
	return r.text.Extract(ctx, filename, mimeType, bytes.NewReader(raw))
}

func isPDF(filename, mimeType string) bool {
	if media, _, err := mime.ParseMediaType(mimeType); err == nil && media == "application/pdf" {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
