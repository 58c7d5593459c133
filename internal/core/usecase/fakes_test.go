package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/matching"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

type blockChunker struct{}

func (blockChunker) SplitRules(text string) []domain.TextChunk {
	var out []domain.TextChunk
	for _, block := range strings.Split(text, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, domain.TextChunk{Text: block})
		}
	}
	return out
}

func (blockChunker) SplitParagraphs(units []domain.SourceUnit) []domain.ParagraphUnit {
	var out []domain.ParagraphUnit
	for _, u := range units {
		for _, block := range strings.Split(u.Text, "\n\n") {
			if block = strings.TrimSpace(block); block != "" {
				out = append(out, domain.ParagraphUnit{Index: len(out), Section: u.Section, Text: block, MatchText: block})
			}
		}
	}
	return out
}

var vocabulary = []string{"drug", "aspirin", "patient", "dose", "mg", "subject", "milligrams"}

// vocabEmbedder counts vocabulary words plus a constant bias dimension.
type vocabEmbedder struct {
	mu     sync.Mutex
	failOn map[string]bool
	calls  [][]string
}

func (e *vocabEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if e.failOn[text] {
			return nil, errors.New("backend exploded")
		}
		lower := strings.ToLower(text)
		vec := make([]float32, len(vocabulary)+1)
		for j, word := range vocabulary {
			vec[j] = float32(strings.Count(lower, word))
		}
		vec[len(vocabulary)] = 1
		out[i] = vec
	}
	return out, nil
}

type cosineIndex struct {
	mu     sync.Mutex
	ids    []string
	vecs   [][]float32
	sealed bool
	closed bool
}

func (i *cosineIndex) Add(_ context.Context, ids []string, vectors [][]float32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, ids...)
	i.vecs = append(i.vecs, vectors...)
	return nil
}

func (i *cosineIndex) Seal(context.Context) error {
	i.mu.Lock()
	i.sealed = true
	i.mu.Unlock()
	return nil
}

func (i *cosineIndex) Query(_ context.Context, vector []float32, k int) ([]domain.RuleScore, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.sealed {
		return nil, domain.ErrIndexNotReady
	}
	out := make([]domain.RuleScore, 0, len(i.ids))
	for n, id := range i.ids {
		out = append(out, domain.RuleScore{RuleID: id, Similarity: matching.Cosine(vector, i.vecs[n])})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Similarity != out[b].Similarity {
			return out[a].Similarity > out[b].Similarity
		}
		return out[a].RuleID < out[b].RuleID
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func (i *cosineIndex) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ids)
}

func (i *cosineIndex) Close(context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	return nil
}

func (i *cosineIndex) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

type indexRecorder struct {
	mu      sync.Mutex
	indexes []*cosineIndex
}

func (r *indexRecorder) factory() ports.IndexFactory {
	return func(string) ports.RuleIndex {
		r.mu.Lock()
		defer r.mu.Unlock()
		idx := &cosineIndex{}
		r.indexes = append(r.indexes, idx)
		return idx
	}
}

type progressRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *progressRecorder) Report(e domain.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *progressRecorder) snapshot() []domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressEvent(nil), r.events...)
}

type metricsRecorder struct {
	mu          sync.Mutex
	builds      int
	paragraphs  int
	applied     int
	batches     int
	batchErrors int
	reviews     int
	finished    int
}

func (m *metricsRecorder) ObserveRuleSetBuild(int, int, error) {
	m.mu.Lock()
	m.builds++
	m.mu.Unlock()
}

func (m *metricsRecorder) ObserveParagraph(domain.ParagraphStatus, bool) {
	m.mu.Lock()
	m.paragraphs++
	m.mu.Unlock()
}

func (m *metricsRecorder) ObserveAppliedRule(domain.RuleType) {
	m.mu.Lock()
	m.applied++
	m.mu.Unlock()
}

func (m *metricsRecorder) ObserveEmbedBatch(_ int, err error) {
	m.mu.Lock()
	m.batches++
	if err != nil {
		m.batchErrors++
	}
	m.mu.Unlock()
}

func (m *metricsRecorder) StartReview() {
	m.mu.Lock()
	m.reviews++
	m.mu.Unlock()
}

func (m *metricsRecorder) FinishReview(time.Duration, error) {
	m.mu.Lock()
	m.finished++
	m.mu.Unlock()
}

type textExtractorFake struct {
	err error
}

func (f textExtractorFake) Extract(_ context.Context, filename, _ string, body io.Reader) ([]domain.SourceUnit, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return []domain.SourceUnit{{Section: filename, Text: string(data)}}, nil
}

type runStoreFake struct {
	mu   sync.Mutex
	runs map[string]*domain.ReviewReport
}

func newRunStoreFake() *runStoreFake {
	return &runStoreFake{runs: make(map[string]*domain.ReviewReport)}
}

func (f *runStoreFake) SaveRun(_ context.Context, report *domain.ReviewReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[report.RunID] = report
	return nil
}

func (f *runStoreFake) GetRun(_ context.Context, runID string) (*domain.ReviewReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	report, ok := f.runs[runID]
	if !ok {
		return nil, domain.WrapError(domain.ErrRunNotFound, "get run", errors.New(runID))
	}
	return report, nil
}

func (f *runStoreFake) ListRuns(_ context.Context, sessionID string, _ int) ([]domain.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RunSummary
	for _, r := range f.runs {
		if r.SessionID == sessionID {
			out = append(out, domain.RunSummary{RunID: r.RunID, Filename: r.Filename})
		}
	}
	return out, nil
}

type writerFake struct{}

func (writerFake) WriteCorrected(report *domain.ReviewReport) (domain.ExportArtifact, error) {
	artifact, _ := domain.ExportSpec(domain.ExportCorrected, report.RunID)
	artifact.Data = []byte("corrected")
	artifact.Size = len(artifact.Data)
	return artifact, nil
}

func (writerFake) WriteAnalysis(report *domain.ReviewReport) (domain.ExportArtifact, error) {
	artifact, _ := domain.ExportSpec(domain.ExportAnalysis, report.RunID)
	artifact.Data = []byte("analysis")
	artifact.Size = len(artifact.Data)
	return artifact, nil
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = body
	return nil
}

func (s *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrRunNotFound, "open object", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}
