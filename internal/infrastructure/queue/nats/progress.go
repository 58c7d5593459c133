package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

const publishTimeout = 2 * time.Second

// Report publishes a progress event on the session subject. Failures are
// logged and dropped.
func (c *Conn) Report(event domain.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.Publish(ctx, event); err != nil {
		slog.Debug("progress_publish_failed", "session_id", event.SessionID, "phase", event.Phase, "error", err.Error())
	}
}

func (c *Conn) Publish(ctx context.Context, event domain.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	subject := SessionSubject(c.prefix, event.SessionID)
	call := func(context.Context) error {
		if err := c.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// Forward subscribes to every session subject under the prefix and hands the
// decoded events to sink until ctx ends.
func (c *Conn) Forward(ctx context.Context, sink func(domain.ProgressEvent)) error {
	sub, err := c.conn.Subscribe(c.prefix+".*", func(msg *nats.Msg) {
		if event, ok := decodeEvent(msg.Data); ok {
			sink(event)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := c.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func decodeEvent(data []byte) (domain.ProgressEvent, bool) {
	var event domain.ProgressEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Warn("progress_event_decode_failed", "error", err.Error())
		return domain.ProgressEvent{}, false
	}
	if event.SessionID == "" {
		return domain.ProgressEvent{}, false
	}
	return event, true
}
