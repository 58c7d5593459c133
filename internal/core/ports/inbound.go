package ports

import (
	"context"
	"io"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

// SessionService is the inbound contract for review session lifecycle.
type SessionService interface {
	CreateSession(ctx context.Context) (string, error)
	EndSession(ctx context.Context, sessionID string) error
}

// StyleGuideLoader builds and installs the active rule set of a session.
type StyleGuideLoader interface {
	LoadStyleGuide(ctx context.Context, sessionID, filename, mimeType string, body io.Reader) (domain.RuleSetSummary, error)
	Rules(ctx context.Context, sessionID string) (domain.RuleSetSummary, error)
}

// DocumentReviewer checks a CSR document against the session's active rule set.
type DocumentReviewer interface {
	ReviewDocument(ctx context.Context, sessionID, filename, mimeType string, body io.Reader) (*domain.ReviewReport, error)
	Runs(ctx context.Context, sessionID string, limit int) ([]domain.RunSummary, error)
}

// ReviewExporter renders finished reviews into downloadable artifacts.
type ReviewExporter interface {
	Export(ctx context.Context, runID string) ([]domain.ExportArtifact, error)
	Open(ctx context.Context, runID, kind string) (io.ReadCloser, domain.ExportArtifact, error)
}
