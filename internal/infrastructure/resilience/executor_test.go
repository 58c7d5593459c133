package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

type statusErr int

func (s statusErr) Error() string   { return http.StatusText(int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestCallRetriesTransientStatus(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	got, err := Call(context.Background(), exec, "embed", func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, statusErr(http.StatusServiceUnavailable)
		}
		return 42, nil
	}, ClassifyRemote)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got != 42 || attempts != 3 {
		t.Fatalf("expected 42 after 3 attempts, got %d after %d", got, attempts)
	}
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		return statusErr(http.StatusBadRequest)
	}, ClassifyRemote)
	var se statusErr
	if !errors.As(err, &se) || int(se) != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	var transitions []string
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.OnStateChange = func(_, from, to string) { transitions = append(transitions, from+"->"+to) }
	exec := NewExecutor(cfg)

	errBoom := errors.New("boom")
	for i := 0; i < 2; i++ {
		if err := exec.Execute(context.Background(), "op", func(context.Context) error { return errBoom }, nil); !errors.Is(err, errBoom) {
			t.Fatalf("iteration %d: expected boom, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if exec.State("op") != gobreaker.StateOpen.String() || exec.State("other") != gobreaker.StateClosed.String() {
		t.Fatalf("unexpected states: op=%s other=%s", exec.State("op"), exec.State("other"))
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestClassifyRemote(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"cancelled", context.Canceled, ErrorClassification{}},
		{"deadline", context.DeadlineExceeded, ErrorClassification{}},
		{"open circuit", gobreaker.ErrOpenState, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"429", statusErr(http.StatusTooManyRequests), ErrorClassification{Retryable: true, RecordFailure: true}},
		{"404", statusErr(http.StatusNotFound), ErrorClassification{}},
		{"other", errors.New("decode"), ErrorClassification{Retryable: false, RecordFailure: true}},
	}
	for _, tc := range cases {
		if got := ClassifyRemote(tc.err); got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}
