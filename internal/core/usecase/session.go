package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
)

// generation is one installed rule set together with the reviews started
// against it.
type generation struct {
	set      *rules.RuleSet
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight sync.WaitGroup
}

type session struct {
	id        string
	createdAt time.Time
	current   *generation
}

// SessionManager owns the one active rule set per session. Installing a new
// rule set cancels reviews running against the previous one and closes it
// once they have returned.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	retired  sync.WaitGroup
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*session)}
}

func (m *SessionManager) CreateSession(context.Context) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &session{id: id, createdAt: time.Now().UTC()}
	m.mu.Unlock()
	return id, nil
}

func (m *SessionManager) Exists(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// EndSession cancels running reviews and tears down the session's rule set.
func (m *SessionManager) EndSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "end session", errors.New(sessionID))
	}
	m.retire(sessionID, sess.current)
	return nil
}

// Install replaces the session's active rule set.
func (m *SessionManager) Install(_ context.Context, sessionID string, set *rules.RuleSet) error {
	ctx, cancel := context.WithCancel(context.Background())
	next := &generation{set: set, ctx: ctx, cancel: cancel}

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	var prev *generation
	if ok {
		prev = sess.current
		sess.current = next
	}
	m.mu.Unlock()
	if !ok {
		cancel()
		return domain.WrapError(domain.ErrSessionNotFound, "install rule set", errors.New(sessionID))
	}
	m.retire(sessionID, prev)
	return nil
}

func (m *SessionManager) RuleSet(sessionID string) (*rules.RuleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get rule set", errors.New(sessionID))
	}
	if sess.current == nil {
		return nil, domain.WrapError(domain.ErrNoRuleSet, "get rule set", errors.New("upload a style guide first"))
	}
	return sess.current.set, nil
}

// BeginReview pins the active rule set for one review. The returned context is
// cancelled when ctx ends, the rule set is replaced or the session ends; the
// caller must invoke done when the review returns.
func (m *SessionManager) BeginReview(ctx context.Context, sessionID string) (context.Context, *rules.RuleSet, func(), error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, nil, nil, domain.WrapError(domain.ErrSessionNotFound, "begin review", errors.New(sessionID))
	}
	gen := sess.current
	if gen == nil {
		m.mu.Unlock()
		return nil, nil, nil, domain.WrapError(domain.ErrNoRuleSet, "begin review", errors.New("upload a style guide first"))
	}
	gen.inFlight.Add(1)
	m.mu.Unlock()

	reviewCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(gen.ctx, cancel)
	var once sync.Once
	done := func() {
		once.Do(func() {
			stop()
			cancel()
			gen.inFlight.Done()
		})
	}
	return reviewCtx, gen.set, done, nil
}

// Wait blocks until every retired rule set has been closed.
func (m *SessionManager) Wait() {
	m.retired.Wait()
}

// Close ends every session.
func (m *SessionManager) Close(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_ = m.EndSession(ctx, id)
	}
	m.Wait()
}

func (m *SessionManager) retire(sessionID string, gen *generation) {
	if gen == nil {
		return
	}
	gen.cancel()
	m.retired.Add(1)
	go func() {
		defer m.retired.Done()
		gen.inFlight.Wait()
		if err := gen.set.Close(context.Background()); err != nil {
			slog.Warn("rule_set_close_failed", "session_id", sessionID, "rule_set_id", gen.set.ID, "error", err.Error())
		}
	}()
}
