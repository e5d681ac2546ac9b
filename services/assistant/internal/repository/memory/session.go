package memory

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
)

type entry struct {
	session  *domain.Session
	lastSeen time.Time
}

// SessionRepository keeps sessions in process memory. A session idle for
// longer than the TTL reads as gone until the sweeper drops it.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	nowFunc  func() time.Time
}

// NewSessionRepository creates an empty repository. A zero ttl never expires
// sessions on read.
func NewSessionRepository(ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

// Create stores s. An id that is already taken is a conflict.
func (r *SessionRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return apperrors.Conflict("session " + s.ID + " already exists")
	}
	r.sessions[s.ID] = &entry{session: s, lastSeen: r.nowFunc()}
	return nil
}

// Get returns a snapshot of the session and marks it as seen.
func (r *SessionRepository) Get(_ context.Context, id string) (domain.SessionView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return e.session.View(), nil
}

// Update applies fn to the session under the repository lock.
func (r *SessionRepository) Update(_ context.Context, id string, fn func(s *domain.Session) error) (domain.SessionView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	err = fn(e.session)
	return e.session.View(), err
}

// Delete removes the session.
func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return apperrors.NotFound("session", id)
	}
	delete(r.sessions, id)
	return nil
}

// DeleteIdle drops every session last seen before cutoff.
func (r *SessionRepository) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored sessions, expired ones included.
func (r *SessionRepository) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), nil
}

// lookup must be called with r.mu held.
func (r *SessionRepository) lookup(id string) (*entry, error) {
	e, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}

	now := r.nowFunc()
	if r.ttl > 0 && now.Sub(e.lastSeen) > r.ttl {
		return nil, apperrors.Gone("session", id)
	}
	e.lastSeen = now
	return e, nil
}
