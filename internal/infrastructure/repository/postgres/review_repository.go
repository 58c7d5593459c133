package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

// ReviewRepository keeps finished review runs as JSONB so exports can be
// rendered again later.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS review_runs (
	run_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	rule_set_id TEXT NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	paragraphs INTEGER NOT NULL,
	paragraphs_changed INTEGER NOT NULL,
	rules_applied INTEGER NOT NULL,
	results JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_runs_session ON review_runs(session_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ReviewRepository) SaveRun(ctx context.Context, report *domain.ReviewReport) error {
	if report == nil || report.RunID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save run", errors.New("run id is required"))
	}
	results, err := json.Marshal(report.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	stats := report.Stats()

	_, err = r.db.ExecContext(ctx, `
INSERT INTO review_runs (
	run_id, session_id, rule_set_id, filename, paragraphs, paragraphs_changed, rules_applied, results, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (run_id) DO UPDATE SET
	filename = EXCLUDED.filename,
	paragraphs = EXCLUDED.paragraphs,
	paragraphs_changed = EXCLUDED.paragraphs_changed,
	rules_applied = EXCLUDED.rules_applied,
	results = EXCLUDED.results
`,
		report.RunID, report.SessionID, report.RuleSetID, report.Filename,
		stats.TotalParagraphs, stats.ParagraphsChanged, stats.TotalRulesApplied, results, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review run: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetRun(ctx context.Context, runID string) (*domain.ReviewReport, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT run_id, session_id, rule_set_id, filename, results, created_at
FROM review_runs
WHERE run_id = $1
`, runID)

	var report domain.ReviewReport
	var resultsRaw []byte
	err := row.Scan(&report.RunID, &report.SessionID, &report.RuleSetID, &report.Filename, &resultsRaw, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("run %s", runID))
		}
		return nil, fmt.Errorf("scan review run: %w", err)
	}
	if err := json.Unmarshal(resultsRaw, &report.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return &report, nil
}

func (r *ReviewRepository) ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, filename, paragraphs, paragraphs_changed, rules_applied, created_at
FROM review_runs
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query review runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RunSummary, 0, limit)
	for rows.Next() {
		var s domain.RunSummary
		if err := rows.Scan(&s.RunID, &s.Filename, &s.Paragraphs, &s.ParagraphsChanged, &s.RulesApplied, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review run: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review runs: %w", err)
	}
	return out, nil
}
