// Package qdrant stores rule embeddings in a Qdrant collection, one collection
// per rule set.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/ports"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/resilience"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Client talks to the Qdrant REST API.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, collectionPrefix string, timeout time.Duration, exec *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	prefix := strings.TrimSpace(collectionPrefix)
	if prefix == "" {
		prefix = "style_rules"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     prefix,
		httpClient: &http.Client{Timeout: timeout},
		exec:       exec,
	}
}

// Factory returns an IndexFactory creating one collection per rule set.
func (c *Client) Factory() ports.IndexFactory {
	return func(ruleSetID string) ports.RuleIndex {
		return &RuleIndex{client: c, collection: c.CollectionName(ruleSetID)}
	}
}

func (c *Client) CollectionName(ruleSetID string) string {
	return c.prefix + "_" + unsafeName.ReplaceAllString(ruleSetID, "_")
}

// StatusError is a non-2xx answer from Qdrant.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, msg)
	}
	return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

func (c *Client) do(ctx context.Context, method, path, operation string, payload any, out any) error {
	if c.exec == nil {
		return c.send(ctx, method, path, operation, payload, out)
	}
	return c.exec.Execute(ctx, "qdrant."+operation, func(ctx context.Context) error {
		return c.send(ctx, method, path, operation, payload, out)
	}, resilience.ClassifyRemote)
}

func (c *Client) send(ctx context.Context, method, path, operation string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
