package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/csr-style-review/internal/config"
	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
	"github.com/kirillkom/csr-style-review/internal/observability/metrics"
)

// ReviewAPI is the inbound surface the router serves.
type ReviewAPI interface {
	ports.SessionService
	ports.StyleGuideLoader
	ports.DocumentReviewer
}

// ProgressSource hands out per-session progress subscriptions.
type ProgressSource interface {
	Subscribe(sessionID string) (<-chan domain.ProgressEvent, func())
}

type Router struct {
	api      ReviewAPI
	exporter ports.ReviewExporter
	progress ProgressSource
	metrics  *metrics.HTTPServerMetrics

	maxUploadBytes int64
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	queueWait      time.Duration
	heartbeat      time.Duration
}

func NewRouter(
	cfg config.Config,
	api ReviewAPI,
	exporter ports.ReviewExporter,
	progress ProgressSource,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Router{
		api:            api,
		exporter:       exporter,
		progress:       progress,
		metrics:        httpMetrics,
		maxUploadBytes: maxUpload,
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
		maxInFlight:    cfg.MaxInFlight,
		queueWait:      250 * time.Millisecond,
		heartbeat:      15 * time.Second,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", rt.endSession)
	mux.Handle("POST /v1/sessions/{id}/style-guide", rt.gated(rt.loadStyleGuide))
	mux.HandleFunc("GET /v1/sessions/{id}/rules", rt.listRules)
	mux.Handle("POST /v1/sessions/{id}/csr", rt.gated(rt.reviewDocument))
	mux.HandleFunc("GET /v1/sessions/{id}/runs", rt.listRuns)
	mux.HandleFunc("GET /v1/sessions/{id}/progress", rt.streamProgress)
	mux.Handle("POST /v1/exports", rt.gated(rt.createExport))
	mux.HandleFunc("GET /v1/exports/{run}/{kind}", rt.downloadExport)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rt.rejected)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

// gated puts heavy endpoints behind the in-flight limit.
func (rt *Router) gated(h http.HandlerFunc) http.Handler {
	return backpressureMiddleware(h, rt.maxInFlight, rt.queueWait, rt.rejected)
}

func (rt *Router) rejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := rt.api.CreateSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.api.EndSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) loadStyleGuide(w http.ResponseWriter, r *http.Request) {
	file, header, ok := rt.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	summary, err := rt.api.LoadStyleGuide(r.Context(), r.PathValue("id"), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (rt *Router) listRules(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.api.Rules(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type reviewResponse struct {
	*domain.ReviewReport
	Stats domain.DocumentStats `json:"stats"`
}

func (rt *Router) reviewDocument(w http.ResponseWriter, r *http.Request) {
	file, header, ok := rt.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	report, err := rt.api.ReviewDocument(r.Context(), r.PathValue("id"), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponse{ReviewReport: report, Stats: report.Stats()})
}

func (rt *Router) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, 200)
	}
	runs, err := rt.api.Runs(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type exportArtifactResponse struct {
	domain.ExportArtifact
	URL string `json:"url"`
}

func (rt *Router) createExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	req.RunID = strings.TrimSpace(req.RunID)
	if req.RunID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run_id is required"})
		return
	}

	artifacts, err := rt.exporter.Export(r.Context(), req.RunID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]exportArtifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, exportArtifactResponse{ExportArtifact: a, URL: "/v1/exports/" + req.RunID + "/" + a.Kind})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"run_id": req.RunID, "artifacts": out})
}

func (rt *Router) downloadExport(w http.ResponseWriter, r *http.Request) {
	body, artifact, err := rt.exporter.Open(r.Context(), r.PathValue("run"), r.PathValue("kind"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("export_download_interrupted",
			"request_id", requestIDFromContext(r.Context()),
			"storage_key", artifact.StorageKey,
			"error", err.Error(),
		)
	}
}

func (rt *Router) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return nil, nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return nil, nil, false
	}
	return file, header, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
