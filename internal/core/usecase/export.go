package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

// ExportUseCase renders stored review runs through the document writer and
// keeps the artifacts in object storage.
type ExportUseCase struct {
	runs    ports.ReviewRunStore
	writer  ports.DocumentWriter
	storage ports.ObjectStorage
}

func NewExportUseCase(runs ports.ReviewRunStore, writer ports.DocumentWriter, storage ports.ObjectStorage) *ExportUseCase {
	return &ExportUseCase{runs: runs, writer: writer, storage: storage}
}

func (uc *ExportUseCase) Export(ctx context.Context, runID string) ([]domain.ExportArtifact, error) {
	report, err := uc.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	artifacts, err := Render(uc.writer, report)
	if err != nil {
		return nil, err
	}
	for i := range artifacts {
		if err := uc.storage.Save(ctx, artifacts[i].StorageKey, bytes.NewReader(artifacts[i].Data)); err != nil {
			return nil, fmt.Errorf("store %s artifact: %w", artifacts[i].Kind, err)
		}
	}
	return artifacts, nil
}

// Open streams a previously exported artifact.
func (uc *ExportUseCase) Open(ctx context.Context, runID, kind string) (io.ReadCloser, domain.ExportArtifact, error) {
	artifact, ok := domain.ExportSpec(kind, runID)
	if !ok {
		return nil, domain.ExportArtifact{}, domain.WrapError(domain.ErrInvalidInput, "open export", fmt.Errorf("unknown export kind %q", kind))
	}
	rc, err := uc.storage.Open(ctx, artifact.StorageKey)
	if err != nil {
		return nil, domain.ExportArtifact{}, err
	}
	return rc, artifact, nil
}

// Render produces both artifacts of a finished review in memory.
func Render(writer ports.DocumentWriter, report *domain.ReviewReport) ([]domain.ExportArtifact, error) {
	if report == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "render export", errors.New("nil report"))
	}
	corrected, err := writer.WriteCorrected(report)
	if err != nil {
		return nil, fmt.Errorf("write corrected document: %w", err)
	}
	analysis, err := writer.WriteAnalysis(report)
	if err != nil {
		return nil, fmt.Errorf("write analysis document: %w", err)
	}
	return []domain.ExportArtifact{corrected, analysis}, nil
}
