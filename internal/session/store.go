package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Store maps session id -> session state and owns TTL-based expiry. It is
// constructor-injected wherever session state is needed; nothing reaches
// into a session's fields except through its operations.
type Store struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	inactivityTimeout time.Duration
	onEvict           func(*Session, EndReason)
}

// entry pairs a session with the mutex that serializes turns and eviction
// for that id.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

func NewStore(inactivityTimeout time.Duration) *Store {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Store{
		sessions:          make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetEvictHook registers the callback invoked with the final session state
// whenever a session leaves the store. The lead flush happens there.
func (s *Store) SetEvictHook(hook func(*Session, EndReason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

// NewSessionID generates an opaque id for callers that did not supply one.
func NewSessionID() string {
	return "chat_" + uuid.NewString()
}

// Lock acquires the per-session turn lock, creating the session if the id is
// unknown. Turns for the same id never interleave; the sweeper takes the
// same lock before evicting.
func (s *Store) Lock(id string) (unlock func()) {
	for {
		e := s.getOrCreateEntry(id)
		e.mu.Lock()
		s.mu.RLock()
		current := s.sessions[id]
		s.mu.RUnlock()
		if current == e {
			return e.mu.Unlock
		}
		// The session was evicted while we waited; retry against the fresh
		// entry.
		e.mu.Unlock()
	}
}

// GetOrCreate returns a snapshot of the session, creating an empty one for
// an unknown id.
func (s *Store) GetOrCreate(id string) *Session {
	e := s.getOrCreateEntry(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(e.sess)
}

// Get returns a snapshot of an existing session.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.sess), nil
}

func (s *Store) getOrCreateEntry(id string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[id]; ok {
		return e
	}
	now := time.Now().UTC()
	e = &entry{sess: &Session{
		ID:             id,
		StartedAt:      now,
		LastActivityAt: now,
	}}
	s.sessions[id] = e
	return e
}

// Touch resets the inactivity TTL. Called for user messages only, so pure
// bot chatter cannot keep a session alive.
func (s *Store) Touch(id string) error {
	return s.withSession(id, func(sess *Session) {
		sess.LastActivityAt = time.Now().UTC()
	})
}

// AppendMessage appends to history and touches the session for user roles.
// Genuine user text also advances the prompt counter and becomes the
// current trigger message.
func (s *Store) AppendMessage(id string, role string, kind MessageKind, content string) error {
	return s.withSession(id, func(sess *Session) {
		sess.History = append(sess.History, Message{
			Role:      role,
			Kind:      kind,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})
		switch kind {
		case KindUserText:
			sess.GenuineUserMessages++
			sess.TriggerMessage = content
		case KindAssistantContactPrompt:
			sess.PromptShown = true
		}
		if role == RoleUser {
			sess.LastActivityAt = time.Now().UTC()
		}
	})
}

// SetContact captures the contact exactly once. A second call is a logged
// no-op: contact capture is a one-way transition.
func (s *Store) SetContact(id string, c Contact) error {
	return s.withSession(id, func(sess *Session) {
		if sess.Contact != nil {
			log.Printf("session %s: ignoring attempt to overwrite captured contact", id)
			return
		}
		contact := c
		sess.Contact = &contact
	})
}

// SetMetadata overwrites the last-known request context.
func (s *Store) SetMetadata(id string, md Metadata) error {
	return s.withSession(id, func(sess *Session) {
		sess.Metadata = md
	})
}

func (s *Store) withSession(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(e.sess)
	return nil
}

// Evict removes the session and invokes the evict hook with its final
// state. Hook failures are the hook's problem; eviction always completes.
func (s *Store) Evict(id string, reason EndReason) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s.evictLocked(id, e, reason)
}

// evictLocked removes the entry from the map and fires the hook. Caller
// holds e.mu.
func (s *Store) evictLocked(id string, e *entry, reason EndReason) {
	s.mu.Lock()
	if s.sessions[id] != e {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, id)
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		hook(clone(e.sess), reason)
	}
}

// StartSweeper runs the background scan that evicts sessions past their
// inactivity TTL.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	now := time.Now().UTC()

	s.mu.RLock()
	candidates := make(map[string]*entry)
	for id, e := range s.sessions {
		candidates[id] = e
	}
	timeout := s.inactivityTimeout
	s.mu.RUnlock()

	evicted := 0
	for id, e := range candidates {
		e.mu.Lock()
		// Re-check while holding the turn lock: an in-flight turn may have
		// touched the session while we waited.
		s.mu.RLock()
		lastActivity := e.sess.LastActivityAt
		s.mu.RUnlock()
		if now.Sub(lastActivity) >= timeout {
			s.evictLocked(id, e, EndTimeout)
			evicted++
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		log.Printf("session sweep evicted %d inactive session(s)", evicted)
	}
}

// Shutdown drains every remaining session, flushing captured contacts via
// the evict hook.
func (s *Store) Shutdown(reason EndReason) {
	s.mu.RLock()
	remaining := make(map[string]*entry, len(s.sessions))
	for id, e := range s.sessions {
		remaining[id] = e
	}
	s.mu.RUnlock()

	for id, e := range remaining {
		e.mu.Lock()
		s.evictLocked(id, e, reason)
		e.mu.Unlock()
	}
}

// ActiveCount reports the number of live sessions.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func clone(sess *Session) *Session {
	c := *sess
	c.History = make([]Message, len(sess.History))
	copy(c.History, sess.History)
	if sess.Contact != nil {
		contact := *sess.Contact
		c.Contact = &contact
	}
	return &c
}
