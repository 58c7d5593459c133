package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

// ReviewService wires ingestion, rule-set building and document review behind
// the session lifecycle.
type ReviewService struct {
	sessions  *SessionManager
	extractor ports.TextExtractor
	builder   *RuleSetBuilder
	reviews   *ReviewUseCase
	runs      ports.ReviewRunStore
	progress  ports.ProgressReporter
}

func NewReviewService(
	sessions *SessionManager,
	extractor ports.TextExtractor,
	builder *RuleSetBuilder,
	reviews *ReviewUseCase,
	runs ports.ReviewRunStore,
	progress ports.ProgressReporter,
) *ReviewService {
	return &ReviewService{
		sessions:  sessions,
		extractor: extractor,
		builder:   builder,
		reviews:   reviews,
		runs:      runs,
		progress:  progressOrNop(progress),
	}
}

func (s *ReviewService) CreateSession(ctx context.Context) (string, error) {
	return s.sessions.CreateSession(ctx)
}

func (s *ReviewService) EndSession(ctx context.Context, sessionID string) error {
	return s.sessions.EndSession(ctx, sessionID)
}

func (s *ReviewService) LoadStyleGuide(ctx context.Context, sessionID, filename, mimeType string, body io.Reader) (domain.RuleSetSummary, error) {
	if !s.sessions.Exists(sessionID) {
		return domain.RuleSetSummary{}, domain.WrapError(domain.ErrSessionNotFound, "load style guide", errors.New(sessionID))
	}
	units, err := s.read(ctx, sessionID, domain.DocumentStyleGuide, filename, mimeType, body)
	if err != nil {
		return domain.RuleSetSummary{}, err
	}
	set, err := s.builder.Build(ctx, sessionID, units)
	if err != nil {
		return domain.RuleSetSummary{}, err
	}
	if err := s.sessions.Install(ctx, sessionID, set); err != nil {
		_ = set.Close(context.Background())
		return domain.RuleSetSummary{}, err
	}
	s.progress.Report(domain.ProgressEvent{
		SessionID: sessionID,
		Document:  domain.DocumentStyleGuide,
		Phase:     domain.PhaseDone,
		Current:   set.Len(),
		Total:     set.Len(),
		Message:   fmt.Sprintf("Loaded %d rules (%d chunks dropped)", set.Len(), len(set.Dropped)),
	})
	return set.Summary(sessionID), nil
}

func (s *ReviewService) Rules(_ context.Context, sessionID string) (domain.RuleSetSummary, error) {
	set, err := s.sessions.RuleSet(sessionID)
	if err != nil {
		return domain.RuleSetSummary{}, err
	}
	return set.Summary(sessionID), nil
}

func (s *ReviewService) ReviewDocument(ctx context.Context, sessionID, filename, mimeType string, body io.Reader) (*domain.ReviewReport, error) {
	reviewCtx, set, done, err := s.sessions.BeginReview(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer done()

	units, err := s.read(reviewCtx, sessionID, domain.DocumentCSR, filename, mimeType, body)
	if err != nil {
		return nil, err
	}
	report, err := s.reviews.ProcessDocument(reviewCtx, sessionID, units, set)
	if err != nil {
		return nil, err
	}
	report.Filename = filename
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, report); err != nil {
			slog.Warn("review_run_save_failed", "run_id", report.RunID, "error", err.Error())
		}
	}
	return report, nil
}

// Runs lists a session's stored review runs, newest first. Runs outlive
// their session.
func (s *ReviewService) Runs(ctx context.Context, sessionID string, limit int) ([]domain.RunSummary, error) {
	if s.runs == nil {
		return []domain.RunSummary{}, nil
	}
	return s.runs.ListRuns(ctx, sessionID, limit)
}

func (s *ReviewService) read(ctx context.Context, sessionID string, kind domain.DocumentKind, filename, mimeType string, body io.Reader) ([]domain.SourceUnit, error) {
	s.progress.Report(domain.ProgressEvent{
		SessionID: sessionID,
		Document:  kind,
		Phase:     domain.PhaseReading,
		Message:   "Reading " + filename,
	})
	units, err := s.extractor.Extract(ctx, filename, mimeType, body)
	if err != nil {
		if domain.IsKind(err, domain.ErrIngestion) || domain.IsKind(err, domain.ErrInvalidInput) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrIngestion, "read "+string(kind), err)
	}
	return units, nil
}
