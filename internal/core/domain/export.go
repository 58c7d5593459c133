package domain

import "fmt"

const (
	ExportCorrected = "corrected"
	ExportAnalysis  = "analysis"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportKinds lists every artifact produced for a finished review.
var ExportKinds = []string{ExportCorrected, ExportAnalysis}

// ExportSpec returns the naming and storage layout of an export artifact.
func ExportSpec(kind, runID string) (ExportArtifact, bool) {
	var artifact ExportArtifact
	switch kind {
	case ExportCorrected:
		artifact = ExportArtifact{Kind: kind, Filename: fmt.Sprintf("%s-corrected.txt", runID), ContentType: contentTypeText}
	case ExportAnalysis:
		artifact = ExportArtifact{Kind: kind, Filename: fmt.Sprintf("%s-analysis.xlsx", runID), ContentType: contentTypeXLSX}
	default:
		return ExportArtifact{}, false
	}
	artifact.StorageKey = fmt.Sprintf("exports/%s/%s", runID, artifact.Filename)
	return artifact, true
}
