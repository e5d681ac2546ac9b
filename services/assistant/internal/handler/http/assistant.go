package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/pkg/httputil"
	"github.com/Uebook/Luna-sub002/pkg/middleware"
	"github.com/Uebook/Luna-sub002/pkg/pagination"
	"github.com/Uebook/Luna-sub002/pkg/validator"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/service"
)

// AssistantHandler handles HTTP requests for assistant sessions.
type AssistantHandler struct {
	service *service.AssistantService
	logger  *slog.Logger
}

// NewAssistantHandler creates a new assistant HTTP handler.
func NewAssistantHandler(svc *service.AssistantService, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{
		service: svc,
		logger:  logger,
	}
}

// StartSessionRequest is the JSON request body for starting a session.
type StartSessionRequest struct {
	Flow string `json:"flow" validate:"omitempty,oneof=product_search support"`
}

// ReplyRequest is the JSON request body for a user reply.
type ReplyRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}

// StartSession handles POST /api/v1/assistant/sessions
func (h *AssistantHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.StartSession(r.Context(), middleware.UserIDFromContext(r.Context()), req.Flow)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/assistant/sessions/"+session.ID)
	httputil.WriteData(w, http.StatusCreated, session)
}

// GetSession handles GET /api/v1/assistant/sessions/{id}
func (h *AssistantHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, session)
}

// Reply handles POST /api/v1/assistant/sessions/{id}/replies
func (h *AssistantHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Reply(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// Results handles GET /api/v1/assistant/sessions/{id}/results
func (h *AssistantHandler) Results(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.Results(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

// EndSession handles DELETE /api/v1/assistant/sessions/{id}
func (h *AssistantHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Categories handles GET /api/v1/assistant/categories
func (h *AssistantHandler) Categories(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.service.Categories())
}

func (h *AssistantHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httputil.DecodeJSON(w, r, dst)
	if err == nil {
		return true
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteValidationError(w, err)
		return false
	}
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		err = apperrors.InvalidInput("invalid request body")
	}
	httputil.WriteError(w, r, err, h.logger)
	return false
}
