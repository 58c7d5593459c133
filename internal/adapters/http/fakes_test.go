package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/csr-style-review/internal/config"
	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

type apiFake struct {
	mu        sync.Mutex
	sessions  map[string]bool
	loaded    map[string]bool
	uploads   []string
	reviewErr error
}

func newAPIFake() *apiFake {
	return &apiFake{sessions: map[string]bool{}, loaded: map[string]bool{}}
}

func (f *apiFake) CreateSession(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions["s-1"] = true
	return "s-1", nil
}

func (f *apiFake) EndSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[id] {
		return domain.WrapError(domain.ErrSessionNotFound, "end session", errors.New(id))
	}
	delete(f.sessions, id)
	return nil
}

func (f *apiFake) LoadStyleGuide(_ context.Context, id, filename, _ string, body io.Reader) (domain.RuleSetSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[id] {
		return domain.RuleSetSummary{}, domain.WrapError(domain.ErrSessionNotFound, "load style guide", errors.New(id))
	}
	raw, _ := io.ReadAll(body)
	f.uploads = append(f.uploads, filename+":"+string(raw))
	f.loaded[id] = true
	return domain.RuleSetSummary{ID: "rs-1", SessionID: id, RuleCount: 1}, nil
}

func (f *apiFake) Rules(_ context.Context, id string) (domain.RuleSetSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case !f.sessions[id]:
		return domain.RuleSetSummary{}, domain.WrapError(domain.ErrSessionNotFound, "rules", errors.New(id))
	case !f.loaded[id]:
		return domain.RuleSetSummary{}, domain.WrapError(domain.ErrNoRuleSet, "rules", errors.New(id))
	}
	return domain.RuleSetSummary{ID: "rs-1", SessionID: id, RuleCount: 1}, nil
}

func (f *apiFake) ReviewDocument(_ context.Context, id, filename, _ string, _ io.Reader) (*domain.ReviewReport, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	if _, err := f.Rules(context.Background(), id); err != nil {
		return nil, err
	}
	return &domain.ReviewReport{
		RunID:     "run-1",
		SessionID: id,
		RuleSetID: "rs-1",
		Filename:  filename,
		Results: []domain.CorrectionResult{
			{ParagraphIndex: 0, Changed: true, Status: domain.ParagraphProcessed, AppliedRules: []domain.AppliedRule{{RuleID: "R0001"}}},
			{ParagraphIndex: 1, Status: domain.ParagraphUnprocessed, Error: "cancelled"},
		},
	}, nil
}

func (f *apiFake) Runs(_ context.Context, id string, limit int) ([]domain.RunSummary, error) {
	runs := []domain.RunSummary{{RunID: "run-2"}, {RunID: "run-1"}}
	return runs[:min(limit, len(runs))], nil
}

type exporterFake struct{}

func (exporterFake) Export(_ context.Context, runID string) ([]domain.ExportArtifact, error) {
	if runID != "run-1" {
		return nil, domain.WrapError(domain.ErrRunNotFound, "export", errors.New(runID))
	}
	out := make([]domain.ExportArtifact, 0, len(domain.ExportKinds))
	for _, kind := range domain.ExportKinds {
		a, _ := domain.ExportSpec(kind, runID)
		out = append(out, a)
	}
	return out, nil
}

func (exporterFake) Open(_ context.Context, runID, kind string) (io.ReadCloser, domain.ExportArtifact, error) {
	a, ok := domain.ExportSpec(kind, runID)
	if !ok {
		return nil, domain.ExportArtifact{}, domain.WrapError(domain.ErrInvalidInput, "open export", errors.New(kind))
	}
	if runID != "run-1" {
		return nil, domain.ExportArtifact{}, domain.WrapError(domain.ErrRunNotFound, "open export", errors.New(runID))
	}
	return io.NopCloser(bytes.NewBufferString("corrected body")), a, nil
}

func newTestHandler(cfg config.Config, api ReviewAPI, progress ProgressSource) http.Handler {
	if api == nil {
		api = newAPIFake()
	}
	return NewRouter(cfg, api, exporterFake{}, progress, nil).Handler()
}

func multipartRequest(t *testing.T, path, field, filename, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, body); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
