package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/csr-style-review/internal/config"
)

func TestSessionRoutesReviewFlow(t *testing.T) {
	api := newAPIFake()
	handler := newTestHandler(config.Config{}, api, nil)

	res := serve(handler, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if res.Code != http.StatusCreated {
		t.Fatalf("create session expected 201, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	res = serve(handler, multipartRequest(t, "/v1/sessions/s-1/csr", "file", "csr.txt", "text"))
	if res.Code != http.StatusConflict {
		t.Fatalf("review before style guide expected 409, got %d", res.Code)
	}

	res = serve(handler, multipartRequest(t, "/v1/sessions/s-1/style-guide", "file", "guide.md", "Use aspirin."))
	if res.Code != http.StatusCreated {
		t.Fatalf("style guide upload expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if len(api.uploads) != 1 || api.uploads[0] != "guide.md:Use aspirin." {
		t.Fatalf("unexpected uploads: %v", api.uploads)
	}

	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/rules", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("rules expected 200, got %d", res.Code)
	}

	res = serve(handler, multipartRequest(t, "/v1/sessions/s-1/csr", "file", "csr.txt", "text"))
	if res.Code != http.StatusOK {
		t.Fatalf("review expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var report struct {
		RunID    string `json:"run_id"`
		Filename string `json:"filename"`
		Stats    struct {
			TotalParagraphs       int `json:"total_paragraphs"`
			UnprocessedParagraphs int `json:"unprocessed_paragraphs"`
			TotalRulesApplied     int `json:"total_rules_applied"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.RunID != "run-1" || report.Filename != "csr.txt" {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if report.Stats.TotalParagraphs != 2 || report.Stats.UnprocessedParagraphs != 1 || report.Stats.TotalRulesApplied != 1 {
		t.Fatalf("unexpected stats: %+v", report.Stats)
	}

	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/runs?limit=1", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "run-2") || strings.Contains(res.Body.String(), "run-1") {
		t.Fatalf("unexpected runs response %d: %s", res.Code, res.Body.String())
	}

	res = serve(handler, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s-1", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("end session expected 204, got %d", res.Code)
	}
	res = serve(handler, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s-1", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("second end session expected 404, got %d", res.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	api := newAPIFake()
	api.sessions["s-1"] = true
	handler := newTestHandler(config.Config{}, api, nil)

	res := serve(handler, multipartRequest(t, "/v1/sessions/s-1/style-guide", "document", "guide.md", "x"))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("missing file field expected 400, got %d", res.Code)
	}

	limited := newTestHandler(config.Config{MaxUploadBytes: 1024}, api, nil)
	res = serve(limited, multipartRequest(t, "/v1/sessions/s-1/style-guide", "file", "guide.md", strings.Repeat("x", 4096)))
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload expected 413, got %d", res.Code)
	}

	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/runs?limit=zero", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit expected 400, got %d", res.Code)
	}
}

func TestExportRoutes(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	res := serve(handler, httptest.NewRequest(http.MethodPost, "/v1/exports", strings.NewReader(`{"run_id":"run-1"}`)))
	if res.Code != http.StatusCreated {
		t.Fatalf("export expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		Artifacts []struct {
			Kind string `json:"kind"`
			URL  string `json:"url"`
		} `json:"artifacts"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(body.Artifacts) != 2 || body.Artifacts[0].URL != "/v1/exports/run-1/corrected" {
		t.Fatalf("unexpected artifacts: %+v", body.Artifacts)
	}

	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/exports/run-1/corrected", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("download expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Disposition"); !strings.Contains(got, "run-1-corrected.txt") {
		t.Fatalf("unexpected content disposition %q", got)
	}
	if res.Body.String() != "corrected body" {
		t.Fatalf("unexpected download body %q", res.Body.String())
	}

	res = serve(handler, httptest.NewRequest(http.MethodPost, "/v1/exports", strings.NewReader(`{"run_id":" "}`)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("blank run id expected 400, got %d", res.Code)
	}
	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/exports/run-1/pdf", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind expected 400, got %d", res.Code)
	}
}

func TestHealthzAndMethodRouting(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	res := serve(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("healthz expected 200, got %d", res.Code)
	}
	res = serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /v1/sessions expected 405, got %d", res.Code)
	}
}
