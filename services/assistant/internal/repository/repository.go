package repository

import (
	"context"
	"time"

	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
)

// SessionRepository keeps running assistant sessions. Sessions hold live
// flow state, so implementations serialize access to each session.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, s *domain.Session) error

	// Get returns a snapshot of the session. Returns apperrors.ErrNotFound for
	// unknown ids and apperrors.ErrGone for sessions idle past the TTL.
	Get(ctx context.Context, id string) (domain.SessionView, error)

	// Update runs fn on the session while holding it and returns the
	// resulting snapshot. When fn fails the snapshot is still returned.
	Update(ctx context.Context, id string, fn func(s *domain.Session) error) (domain.SessionView, error)

	// Delete removes a session. Deleting an unknown id returns apperrors.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteIdle removes sessions not touched since before cutoff and
	// returns how many were removed.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}
