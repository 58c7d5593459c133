package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

func TestSessionSubject(t *testing.T) {
	cases := map[string]string{
		"abc":      "csr.progress.abc",
		"a.b*c>d":  "csr.progress.a_b_c_d",
		"with one": "csr.progress.with_one",
	}
	for session, want := range cases {
		if got := SessionSubject("", session); got != want {
			t.Fatalf("SessionSubject(%q) = %q, want %q", session, got, want)
		}
	}
	if got := SessionSubject(" review.events. ", "s"); got != "review.events.s" {
		t.Fatalf("unexpected prefixed subject %q", got)
	}
}

func TestDecodeEvent(t *testing.T) {
	event, ok := decodeEvent([]byte(`{"session_id":"s-1","document":"csr","phase":"matching","current":2,"total":5}`))
	if !ok || event.SessionID != "s-1" || event.Document != domain.DocumentCSR || event.Current != 2 {
		t.Fatalf("unexpected event %+v ok=%v", event, ok)
	}
	if _, ok := decodeEvent([]byte(`not json`)); ok {
		t.Fatalf("expected invalid payload to be skipped")
	}
	if _, ok := decodeEvent([]byte(`{"phase":"done"}`)); ok {
		t.Fatalf("expected event without session to be skipped")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable {
		t.Fatalf("closed connection should be retryable")
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not be retried or recorded: %+v", c)
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable {
		t.Fatalf("bad subject must not be retried")
	}
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(errors.New("x")); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent errors must not be temporary")
	}
}
