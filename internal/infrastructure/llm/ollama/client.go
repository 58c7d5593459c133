package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/resilience"
)

const embedOperation = "ollama.embed"

// Embedder calls the Ollama /api/embed endpoint with the whole batch in one request.
type Embedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
	exec       *resilience.Executor
}

// New builds an embedder. exec may be nil, in which case calls are not retried.
func New(baseURL, model string, timeout time.Duration, exec *resilience.Executor) *Embedder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Embedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		exec:       exec,
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	request := embedRequest{Model: e.model, Input: texts}

	vectors, err := resilience.Call(ctx, e.exec, embedOperation, func(ctx context.Context) ([][]float32, error) {
		var response embedResponse
		if err := e.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, resilience.ClassifyRemote)
	if err != nil {
		return nil, wrapTemporaryIfNeeded(embedOperation, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama embed returned an empty vector at position %d", i)
		}
	}
	return vectors, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.ClassifyRemote(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
