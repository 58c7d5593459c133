package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

type reviewAPI interface {
	ports.SessionService
	ports.StyleGuideLoader
	ports.DocumentReviewer
}

type tools struct {
	api reviewAPI
}

func newTools(api reviewAPI) *tools {
	return &tools{api: api}
}

func registerTools(s *server.MCPServer, t *tools) {
	s.AddTool(mcp.NewTool("load_style_guide",
		mcp.WithDescription("Load a style guide into a review session and extract its rules. Creates a session when session_id is omitted."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Style guide text; markdown headings become rule sections")),
		mcp.WithString("session_id", mcp.Description("Existing session to replace the style guide of")),
	), t.loadStyleGuide)

	s.AddTool(mcp.NewTool("review_text",
		mcp.WithDescription("Check CSR text against the session's style guide and return the corrected text with change markers."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by load_style_guide")),
		mcp.WithString("text", mcp.Required(), mcp.Description("CSR text to review")),
	), t.reviewText)
}

type styleGuideResult struct {
	SessionID  string                      `json:"session_id"`
	RuleSetID  string                      `json:"rule_set_id"`
	RuleCount  int                         `json:"rule_count"`
	Dropped    int                         `json:"dropped_chunks"`
	ByCategory map[domain.RuleCategory]int `json:"by_category"`
}

func (t *tools) loadStyleGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	if sessionID == "" {
		if sessionID, err = t.api.CreateSession(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	summary, err := t.api.LoadStyleGuide(ctx, sessionID, "style-guide.md", "text/markdown", strings.NewReader(text))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := styleGuideResult{
		SessionID:  sessionID,
		RuleSetID:  summary.ID,
		RuleCount:  summary.RuleCount,
		Dropped:    len(summary.Dropped),
		ByCategory: make(map[domain.RuleCategory]int, len(summary.ByCategory)),
	}
	for category, group := range summary.ByCategory {
		out.ByCategory[category] = len(group)
	}
	return jsonResult(out)
}

type reviewResult struct {
	RunID     string                    `json:"run_id"`
	Corrected string                    `json:"corrected_text"`
	Stats     domain.DocumentStats      `json:"stats"`
	Changes   []domain.CorrectionResult `json:"changed_paragraphs"`
}

func (t *tools) reviewText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := t.api.ReviewDocument(ctx, sessionID, "csr.md", "text/markdown", strings.NewReader(text))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := reviewResult{RunID: report.RunID, Stats: report.Stats(), Changes: []domain.CorrectionResult{}}
	paragraphs := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		paragraphs = append(paragraphs, r.CorrectedText)
		if r.Changed || r.Status == domain.ParagraphUnprocessed {
			out.Changes = append(out.Changes, r)
		}
	}
	out.Corrected = strings.Join(paragraphs, "\n\n")
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
