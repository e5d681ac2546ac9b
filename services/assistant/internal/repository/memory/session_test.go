package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRepo(ttl time.Duration) (*SessionRepository, *clock) {
	c := &clock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	r := NewSessionRepository(ttl)
	r.nowFunc = c.Now
	return r, c
}

func newSession(id string, now time.Time) *domain.Session {
	return domain.NewSession(id, "", domain.NewSupport(), now)
}

func TestSessionRepository_CreateGet(t *testing.T) {
	r, c := newRepo(time.Minute)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newSession("s1", c.Now())))
	err := r.Create(ctx, newSession("s1", c.Now()))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	v, err := r.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", v.ID)
	assert.Equal(t, domain.StepIssue, v.Step)

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionRepository_Update(t *testing.T) {
	r, c := newRepo(time.Minute)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newSession("s1", c.Now())))

	v, err := r.Update(ctx, "s1", func(s *domain.Session) error {
		_, err := s.Reply("Order Issues", c.Now())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepDescribe, v.Step)

	boom := errors.New("boom")
	v, err = r.Update(ctx, "s1", func(*domain.Session) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.StepDescribe, v.Step)
}

func TestSessionRepository_ExpiresAfterIdleTTL(t *testing.T) {
	r, c := newRepo(time.Minute)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newSession("s1", c.Now())))

	c.Advance(50 * time.Second)
	_, err := r.Get(ctx, "s1")
	require.NoError(t, err, "reading touches the session")

	c.Advance(50 * time.Second)
	_, err = r.Get(ctx, "s1")
	require.NoError(t, err)

	c.Advance(61 * time.Second)
	_, err = r.Get(ctx, "s1")
	assert.ErrorIs(t, err, apperrors.ErrGone)

	_, err = r.Update(ctx, "s1", func(*domain.Session) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrGone)
}

func TestSessionRepository_DeleteIdle(t *testing.T) {
	r, c := newRepo(time.Minute)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newSession("old", c.Now())))
	c.Advance(2 * time.Minute)
	require.NoError(t, r.Create(ctx, newSession("new", c.Now())))

	removed, err := r.DeleteIdle(ctx, c.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.Get(ctx, "old")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionRepository_Delete(t *testing.T) {
	r, c := newRepo(0)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newSession("s1", c.Now())))

	require.NoError(t, r.Delete(ctx, "s1"))
	assert.ErrorIs(t, r.Delete(ctx, "s1"), apperrors.ErrNotFound)
}

func TestSessionRepository_ConcurrentReplies(t *testing.T) {
	r, c := newRepo(0)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, domain.NewSession("s1", "", domain.NewProductSearch(nil), c.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update(ctx, "s1", func(s *domain.Session) error {
				_, err := s.Reply("Mobile", c.Now())
				return err
			})
		}()
	}
	wg.Wait()

	v, err := r.Get(ctx, "s1")
	require.NoError(t, err)
	// Only the first reply names a category; the rest are budget re-prompts.
	assert.Equal(t, domain.StepBudget, v.Step)
	assert.Len(t, v.Transcript, 1+20*2)
}
