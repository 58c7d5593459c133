// Package export renders finished reviews as a corrected plain-text document
// and an XLSX analysis workbook.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/csr-style-review/internal/core/correction"
	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

const (
	analysisSheet = "Analysis"
	rulesSheet    = "Applied Rules"
	summarySheet  = "Summary"
)

var (
	analysisHeader = []any{"Paragraph", "Section", "Status", "Original", "Corrected", "Changes", "Rules", "Error"}
	rulesHeader    = []any{"Paragraph", "Rule ID", "Type", "Category", "Source Section", "Confidence", "Changes", "Rule", "Examples"}
)

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// WriteCorrected emits the corrected paragraphs without change markers,
// separated by blank lines, with a heading line whenever the section changes.
func (w *Writer) WriteCorrected(report *domain.ReviewReport) (domain.ExportArtifact, error) {
	artifact, _ := domain.ExportSpec(domain.ExportCorrected, report.RunID)

	var buf bytes.Buffer
	section := ""
	for i, r := range report.Results {
		if r.Section != "" && r.Section != section {
			fmt.Fprintf(&buf, "%s\n\n", r.Section)
		}
		section = r.Section
		buf.WriteString(correction.StripMarkers(r.CorrectedText))
		buf.WriteString("\n")
		if i < len(report.Results)-1 {
			buf.WriteString("\n")
		}
	}
	artifact.Data = buf.Bytes()
	artifact.Size = buf.Len()
	return artifact, nil
}

func (w *Writer) WriteAnalysis(report *domain.ReviewReport) (domain.ExportArtifact, error) {
	artifact, _ := domain.ExportSpec(domain.ExportAnalysis, report.RunID)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", analysisSheet); err != nil {
		return artifact, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{rulesSheet, summarySheet} {
		if _, err := f.NewSheet(name); err != nil {
			return artifact, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return artifact, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRows(f, analysisSheet, header, analysisHeader, analysisRows(report)); err != nil {
		return artifact, err
	}
	if err := writeRows(f, rulesSheet, header, rulesHeader, ruleRows(report)); err != nil {
		return artifact, err
	}
	if err := writeRows(f, summarySheet, header, []any{"Metric", "Value"}, summaryRows(report)); err != nil {
		return artifact, err
	}
	_ = f.SetColWidth(analysisSheet, "D", "F", 60)
	_ = f.SetColWidth(rulesSheet, "H", "I", 50)
	_ = f.SetColWidth(summarySheet, "A", "A", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return artifact, fmt.Errorf("write workbook: %w", err)
	}
	artifact.Data = buf.Bytes()
	artifact.Size = buf.Len()
	return artifact, nil
}

func analysisRows(report *domain.ReviewReport) [][]any {
	rows := make([][]any, 0, len(report.Results))
	for _, r := range report.Results {
		changes := make([]string, 0, 4)
		for _, c := range correction.ParseChanges(r.CorrectedText) {
			changes = append(changes, fmt.Sprintf("%s → %s (%s, %.2f)", c.From, c.To, c.RuleID, c.Confidence))
		}
		ruleIDs := make([]string, 0, len(r.AppliedRules))
		for _, a := range r.AppliedRules {
			ruleIDs = append(ruleIDs, a.RuleID)
		}
		rows = append(rows, []any{
			r.ParagraphIndex + 1,
			r.Section,
			string(r.Status),
			r.OriginalText,
			correction.StripMarkers(r.CorrectedText),
			strings.Join(changes, "\n"),
			strings.Join(ruleIDs, ", "),
			r.Error,
		})
	}
	return rows
}

func ruleRows(report *domain.ReviewReport) [][]any {
	var rows [][]any
	for _, r := range report.Results {
		for _, a := range r.AppliedRules {
			rows = append(rows, []any{
				r.ParagraphIndex + 1,
				a.RuleID,
				string(a.Type),
				string(a.Category),
				a.Section,
				a.Confidence,
				a.Changes,
				a.Excerpt,
				strings.Join(a.Examples, "; "),
			})
		}
	}
	return rows
}

func summaryRows(report *domain.ReviewReport) [][]any {
	stats := report.Stats()
	return [][]any{
		{"Run", report.RunID},
		{"File", report.Filename},
		{"Rule set", report.RuleSetID},
		{"Created", report.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"Total paragraphs", stats.TotalParagraphs},
		{"Processed paragraphs", stats.ProcessedParagraphs},
		{"Unprocessed paragraphs", stats.UnprocessedParagraphs},
		{"Paragraphs changed", stats.ParagraphsChanged},
		{"Total rules applied", stats.TotalRulesApplied},
	}
}

func writeRows(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
