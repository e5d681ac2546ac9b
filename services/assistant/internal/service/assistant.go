package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/pkg/pagination"
	"github.com/Uebook/Luna-sub002/pkg/tracing"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/repository"
)

const tracerName = "github.com/Uebook/Luna-sub002/services/assistant"

// ErrResultsNotReady is returned when results are requested before the
// search reached its final step.
var ErrResultsNotReady = &apperrors.AppError{
	Code:    "RESULTS_NOT_READY",
	Message: "the search has not finished yet",
	Status:  http.StatusConflict,
	Err:     apperrors.ErrConflict,
}

// CatalogProvider supplies the catalog new sessions search.
type CatalogProvider interface {
	Current() domain.Catalog
}

// ReplyResult is the outcome of one user reply.
type ReplyResult struct {
	Session  domain.SessionView `json:"session"`
	Messages []domain.Message   `json:"messages"`
	Advanced bool               `json:"advanced"`
}

// AssistantService runs assistant conversations.
type AssistantService struct {
	repo     repository.SessionRepository
	catalogs CatalogProvider
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewAssistantService creates a service whose sessions expire after ttl of
// inactivity.
func NewAssistantService(repo repository.SessionRepository, catalogs CatalogProvider, ttl time.Duration, logger *slog.Logger) *AssistantService {
	return &AssistantService{
		repo:     repo,
		catalogs: catalogs,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// StartSession opens a conversation of the named flow. An empty flow name
// starts a product search. owner may be empty for anonymous sessions.
func (s *AssistantService) StartSession(ctx context.Context, owner, flow string) (domain.SessionView, error) {
	kind, err := domain.ParseFlowKind(flow)
	if err != nil {
		return domain.SessionView{}, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "AssistantService.StartSession",
		attribute.String("assistant.flow", string(kind)))
	defer span.End()

	f, err := domain.NewFlow(kind, s.catalogs.Current())
	if err != nil {
		return domain.SessionView{}, err
	}

	session := domain.NewSession(uuid.New().String(), owner, f, s.now().UTC())
	if err := s.repo.Create(ctx, session); err != nil {
		tracing.RecordError(span, err)
		return domain.SessionView{}, fmt.Errorf("create session: %w", err)
	}
	sessionsStartedTotal.WithLabelValues(string(kind)).Inc()
	s.refreshGauge(ctx)

	s.logger.InfoContext(ctx, "assistant session started",
		slog.String("session_id", session.ID),
		slog.String("flow", string(kind)),
	)
	return session.View(), nil
}

// GetSession returns the current state and transcript of a session.
func (s *AssistantService) GetSession(ctx context.Context, owner, id string) (domain.SessionView, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "AssistantService.GetSession",
		attribute.String("assistant.session_id", id))
	defer span.End()

	view, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if !visible(view.Owner, owner) {
		return domain.SessionView{}, apperrors.NotFound("session", id)
	}
	return view, nil
}

// Reply feeds one user message to the session's flow.
func (s *AssistantService) Reply(ctx context.Context, owner, id, text string) (*ReplyResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "AssistantService.Reply",
		attribute.String("assistant.session_id", id))
	defer span.End()

	var t domain.Transition
	view, err := s.repo.Update(ctx, id, func(session *domain.Session) error {
		if !visible(session.Owner, owner) {
			return apperrors.NotFound("session", id)
		}
		var err error
		t, err = session.Reply(text, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(view.Flow), string(t.From), string(t.To)).Inc()
	span.SetAttributes(
		attribute.String("assistant.step_from", string(t.From)),
		attribute.String("assistant.step_to", string(t.To)),
	)

	if view.Done && t.Advanced() {
		s.logger.InfoContext(ctx, "assistant session finished",
			slog.String("session_id", id),
			slog.String("flow", string(view.Flow)),
			slog.Int("results", view.ResultCount),
		)
	}

	return &ReplyResult{
		Session:  view,
		Messages: t.Messages,
		Advanced: t.Advanced(),
	}, nil
}

// Results returns a page of the products a finished search found.
func (s *AssistantService) Results(ctx context.Context, owner, id string, params pagination.Params) (pagination.Result[domain.Product], error) {
	view, err := s.GetSession(ctx, owner, id)
	if err != nil {
		return pagination.Result[domain.Product]{}, err
	}
	if view.Flow != domain.FlowProductSearch {
		return pagination.Result[domain.Product]{}, apperrors.InvalidInput(fmt.Sprintf("flow %s has no results", view.Flow))
	}
	if !view.Done {
		return pagination.Result[domain.Product]{}, ErrResultsNotReady
	}
	return pagination.Paginate(view.Results(), params), nil
}

// EndSession discards a session.
func (s *AssistantService) EndSession(ctx context.Context, owner, id string) error {
	if _, err := s.GetSession(ctx, owner, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshGauge(ctx)

	s.logger.InfoContext(ctx, "assistant session ended", slog.String("session_id", id))
	return nil
}

// CleanIdleSessions drops sessions idle for longer than the TTL.
func (s *AssistantService) CleanIdleSessions(ctx context.Context) (int, error) {
	removed, err := s.repo.DeleteIdle(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	s.refreshGauge(ctx)
	return removed, nil
}

// RunSweeper calls CleanIdleSessions every interval until ctx is canceled.
func (s *AssistantService) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.CleanIdleSessions(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "session sweep error", slog.String("error", err.Error()))
			} else if removed > 0 {
				s.logger.InfoContext(ctx, "idle sessions removed", slog.Int("removed", removed))
			}
		}
	}
}

// Categories returns the category chips of the current catalog.
func (s *AssistantService) Categories() []string {
	if cats := s.catalogs.Current().Categories(); len(cats) > 0 {
		return cats
	}
	return domain.DefaultCategories
}

func (s *AssistantService) refreshGauge(ctx context.Context) {
	if n, err := s.repo.Count(ctx); err == nil {
		sessionsActive.Set(float64(n))
	}
}

// visible reports whether caller may see a session owned by owner. Anonymous
// sessions are reachable by anyone holding the id.
func visible(owner, caller string) bool {
	return owner == "" || owner == caller
}
