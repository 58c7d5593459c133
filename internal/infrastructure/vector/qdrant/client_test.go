package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

type fakeQdrant struct {
	mu       sync.Mutex
	creates  int
	upserted int
	deleted  []string
	search   string
	limit    int
	status   int
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.status != 0 {
			http.Error(w, "boom", f.status)
			return
		}
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/rules_set-1":
			f.creates++
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/rules_set-1/points":
			var body struct {
				Points []point `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode upsert: %v", err)
			}
			f.upserted += len(body.Points)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/rules_set-1/points/search":
			var body struct {
				Limit int `json:"limit"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode search: %v", err)
			}
			f.limit = body.Limit
			_, _ = w.Write([]byte(f.search))
		case r.Method == http.MethodDelete:
			f.deleted = append(f.deleted, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestIndex(t *testing.T, f *fakeQdrant) *RuleIndex {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	client := New(server.URL, "rules", time.Second, nil)
	return client.Factory()("set-1").(*RuleIndex)
}

func TestRuleIndexLifecycle(t *testing.T) {
	f := &fakeQdrant{search: `{"result":[
		{"score":0.5,"payload":{"rule_id":"R0002"}},
		{"score":0.9,"payload":{"rule_id":"R0003"}},
		{"score":0.9,"payload":{"rule_id":"R0001"}}
	]}`}
	idx := newTestIndex(t, f)
	ctx := context.Background()

	ids := []string{"R0001", "R0002", "R0003"}
	vecs := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	if err := idx.Add(ctx, ids[:2], vecs[:2]); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := idx.Add(ctx, ids[2:], vecs[2:]); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if f.creates != 1 || f.upserted != 3 || idx.Len() != 3 {
		t.Fatalf("expected one create and 3 points, got creates=%d upserted=%d len=%d", f.creates, f.upserted, idx.Len())
	}

	if _, err := idx.Query(ctx, []float32{1, 0}, 3); !domain.IsKind(err, domain.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady before seal, got %v", err)
	}
	_ = idx.Seal(ctx)
	if err := idx.Add(ctx, []string{"R0004"}, [][]float32{{1, 0}}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected add after seal to fail, got %v", err)
	}

	scores, err := idx.Query(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	got := []string{scores[0].RuleID, scores[1].RuleID, scores[2].RuleID}
	if strings.Join(got, ",") != "R0001,R0003,R0002" {
		t.Fatalf("expected ties broken by rule id, got %v", got)
	}

	if err := idx.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "/collections/rules_set-1" {
		t.Fatalf("expected collection dropped, got %v", f.deleted)
	}
}

func TestRuleIndexQueryResolvesTiesBeyondK(t *testing.T) {
	f := &fakeQdrant{search: `{"result":[
		{"score":0.9,"payload":{"rule_id":"R0005"}},
		{"score":0.8,"payload":{"rule_id":"R0004"}},
		{"score":0.8,"payload":{"rule_id":"R0003"}},
		{"score":0.8,"payload":{"rule_id":"R0001"}},
		{"score":0.1,"payload":{"rule_id":"R0002"}}
	]}`}
	idx := newTestIndex(t, f)
	ctx := context.Background()

	ids := []string{"R0001", "R0002", "R0003", "R0004", "R0005"}
	vecs := [][]float32{{1, 0}, {0, 1}, {1, 1}, {1, 0.5}, {0.5, 1}}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	_ = idx.Seal(ctx)

	scores, err := idx.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if f.limit <= 2 || f.limit > len(ids) {
		t.Fatalf("expected search limit above k and capped at index size, got %d", f.limit)
	}
	if len(scores) != 2 || scores[0].RuleID != "R0005" || scores[1].RuleID != "R0001" {
		t.Fatalf("expected [R0005 R0001], got %+v", scores)
	}
}

func TestRuleIndexIncludesResponseBodyInError(t *testing.T) {
	f := &fakeQdrant{status: http.StatusBadRequest}
	idx := newTestIndex(t, f)

	err := idx.Add(context.Background(), []string{"R0001"}, [][]float32{{0.1, 0.2}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestRuleIndexRejectsDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, &fakeQdrant{})
	err := idx.Add(context.Background(), []string{"R0001", "R0002"}, [][]float32{{1, 0}, {1}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCollectionNameIsSanitised(t *testing.T) {
	client := New("http://qdrant", "", 0, nil)
	if got := client.CollectionName("a/b c"); got != "style_rules_a_b_c" {
		t.Fatalf("unexpected collection name %q", got)
	}
}
