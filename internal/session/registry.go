// ABOUTME: Session registry mapping caller-supplied ids to per-session locks and conversations.
// ABOUTME: Get-or-create is atomic; deletion removes the map entry without invalidating holders.

package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/inferd/inferd/internal/engine"
)

// Session is one isolated conversation context. The embedded mutex is the
// sole serialization point for the conversation handle: dispatchers borrow
// the session, lock it, and only then touch the handle.
//
// A Session outlives its registry entry. Deleting the id from the registry
// makes it unreachable for new requests, but an operation already holding
// the lock keeps a valid session until it releases.
type Session struct {
	ID string

	mu       sync.Mutex
	conv     engine.Conversation
	lastUsed time.Time
}

// Lock acquires the session's generation lock, blocking until no other
// operation holds it.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the generation lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Conversation returns the engine conversation for this session, creating it
// on first use with the given tool set. Tools bind at creation time only;
// they are ignored on every later call. Caller must hold the session lock.
func (s *Session) Conversation(ctx context.Context, eng engine.Engine, tools []engine.Tool) (engine.Conversation, error) {
	if s.conv != nil {
		return s.conv, nil
	}
	conv, err := eng.CreateConversation(ctx, tools)
	if err != nil {
		return nil, err
	}
	s.conv = conv
	return conv, nil
}

// TakeConversation detaches and returns the conversation handle, leaving the
// session without one. Caller must hold the session lock.
func (s *Session) TakeConversation() engine.Conversation {
	conv := s.conv
	s.conv = nil
	return conv
}

// Info is the registry's public view of one session.
type Info struct {
	ID       string
	LastUsed time.Time
}

// Registry owns the global session map. It is the only shared mutable
// structure in the gateway and is safe for arbitrary concurrent callers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "sessions"),
	}
}

// Acquire returns the session for id, creating it if this is the first
// request for that id. The returned session stays valid even if the id is
// deleted from the registry while the caller holds it.
func (r *Registry) Acquire(id string) *Session {
	now := time.Now()

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		r.touch(s, now)
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have won the create race between the two locks.
	if s, ok := r.sessions[id]; ok {
		s.lastUsed = now
		return s
	}
	s = &Session{ID: id, lastUsed: now}
	r.sessions[id] = s
	r.logger.Info("session created", "session_id", id, "total", len(r.sessions))
	return s
}

func (r *Registry) touch(s *Session, now time.Time) {
	r.mu.Lock()
	s.lastUsed = now
	r.mu.Unlock()
}

// Get returns the session for id without creating one.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes id from the registry and returns the detached session, if
// any. It does not interrupt a generation currently holding the session's
// lock; the caller decides whether to release engine resources afterwards.
func (r *Registry) Delete(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	r.logger.Info("session deleted", "session_id", id, "total", len(r.sessions))
	return s, true
}

// List returns all sessions ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{ID: s.ID, LastUsed: s.lastUsed})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Clear removes every session and returns the detached sessions.
func (r *Registry) Clear() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	detached := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		detached = append(detached, s)
		delete(r.sessions, id)
	}
	if len(detached) > 0 {
		r.logger.Info("sessions cleared", "count", len(detached))
	}
	return detached
}
