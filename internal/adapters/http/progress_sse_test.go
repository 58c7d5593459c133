package httpadapter

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/csr-style-review/internal/config"
	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/progress"
)

func TestProgressStreamEndsWithDoneEvent(t *testing.T) {
	api := newAPIFake()
	api.sessions["s-1"] = true
	hub := progress.NewHub(8)
	defer hub.Close()

	server := httptest.NewServer(newTestHandler(config.Config{}, api, hub))
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/sessions/s-1/progress")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}

	waitFor(t, func() bool { return hub.Subscribers("s-1") == 1 })
	hub.Report(domain.ProgressEvent{SessionID: "s-1", Document: domain.DocumentCSR, Phase: domain.PhaseMatching, Current: 1, Total: 2})
	hub.Report(domain.ProgressEvent{SessionID: "other", Phase: domain.PhaseMatching})
	hub.Report(domain.ProgressEvent{SessionID: "s-1", Document: domain.DocumentCSR, Phase: domain.PhaseDone, Current: 2, Total: 2})

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	if strings.Join(events, ",") != "progress,done" {
		t.Fatalf("unexpected event sequence %v", events)
	}
	waitFor(t, func() bool { return hub.Subscribers("s-1") == 0 })
}

func TestProgressStreamUnknownSession(t *testing.T) {
	hub := progress.NewHub(8)
	defer hub.Close()
	handler := newTestHandler(config.Config{}, nil, hub)

	res := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/missing/progress", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}
