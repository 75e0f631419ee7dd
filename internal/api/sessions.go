package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/editor"
	"github.com/gyaneshwarpardhi/flowcode/internal/metrics"
)

const cleanupInterval = time.Minute

// session is one editor held by the API. mu serializes every editor call.
type session struct {
	mu       sync.Mutex
	ed       *editor.Editor
	lastUsed time.Time

	subsMu sync.Mutex
	subs   map[chan []byte]struct{}
}

// graphMessage is pushed to live subscribers after every committed change.
type graphMessage struct {
	Type  string    `json:"type"`
	Graph dag.Graph `json:"graph"`
}

func newSession(ed *editor.Editor) *session {
	s := &session{ed: ed, lastUsed: time.Now(), subs: make(map[chan []byte]struct{})}
	ed.OnChange(s.broadcast)
	return s
}

// lock takes the session and marks it used.
func (s *session) lock() {
	s.mu.Lock()
	s.lastUsed = time.Now()
}

func (s *session) unlock() { s.mu.Unlock() }

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// subscribe registers a live listener. Slow listeners miss updates rather than
// stalling the editor.
func (s *session) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch, func() {
		s.subsMu.Lock()
		delete(s.subs, ch)
		s.subsMu.Unlock()
	}
}

func (s *session) broadcast(g dag.Graph) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	msg, err := json.Marshal(graphMessage{Type: "graph", Graph: g})
	if err != nil {
		return
	}
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// sessionManager owns the editor sessions and expires idle ones.
type sessionManager struct {
	mu   sync.RWMutex
	byID map[string]*session
	ttl  time.Duration
}

func newSessionManager(ttl time.Duration) *sessionManager {
	return &sessionManager{byID: make(map[string]*session), ttl: ttl}
}

func (m *sessionManager) add(ed *editor.Editor) *session {
	s := newSession(ed)
	m.mu.Lock()
	m.byID[ed.ID()] = s
	n := len(m.byID)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return s
}

func (m *sessionManager) get(id string) (*session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	return s, ok
}

func (m *sessionManager) remove(id string) bool {
	m.mu.Lock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	n := len(m.byID)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return ok
}

// sweep drops sessions idle for longer than the TTL and returns how many it removed.
func (m *sessionManager) sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	removed := 0
	for id, s := range m.byID {
		if now.Sub(s.idleSince()) > m.ttl {
			delete(m.byID, id)
			removed++
		}
	}
	n := len(m.byID)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return removed
}

// cleanupLoop sweeps periodically until ctx is done.
func (m *sessionManager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.sweep(now)
		case <-ctx.Done():
			return
		}
	}
}
