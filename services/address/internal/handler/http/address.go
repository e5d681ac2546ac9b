package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/pkg/httputil"
	"github.com/Uebook/Luna-sub002/pkg/middleware"
	"github.com/Uebook/Luna-sub002/pkg/validator"
	"github.com/Uebook/Luna-sub002/services/address/internal/service"
)

// AddressHandler handles HTTP requests for address book endpoints.
type AddressHandler struct {
	service *service.AddressService
	logger  *slog.Logger
}

// NewAddressHandler creates a new address HTTP handler.
func NewAddressHandler(svc *service.AddressService, logger *slog.Logger) *AddressHandler {
	return &AddressHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddAddressRequest is the JSON request body for adding an address.
type AddAddressRequest struct {
	Fields    map[string]any `json:"fields" validate:"max=32"`
	IsPrimary bool           `json:"is_primary"`
}

// UpdateAddressRequest is the JSON request body for patching an address.
type UpdateAddressRequest struct {
	Fields    map[string]any `json:"fields" validate:"max=32"`
	IsPrimary *bool          `json:"is_primary"`
}

// --- Handlers ---

// GetAddresses handles GET /api/v1/addresses
func (h *AddressHandler) GetAddresses(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.GetAddresses(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, book)
}

// AddAddress handles POST /api/v1/addresses
func (h *AddressHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req AddAddressRequest
	if !h.decode(w, r, &req) {
		return
	}

	book, err := h.service.AddAddress(r.Context(), middleware.UserIDFromContext(r.Context()), service.AddAddressInput{
		Fields:    req.Fields,
		IsPrimary: req.IsPrimary,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, book)
}

// UpdateAddress handles PATCH /api/v1/addresses/{id}
func (h *AddressHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req UpdateAddressRequest
	if !h.decode(w, r, &req) {
		return
	}

	book, err := h.service.UpdateAddress(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), service.UpdateAddressInput{
		Fields:    req.Fields,
		IsPrimary: req.IsPrimary,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, book)
}

// RemoveAddress handles DELETE /api/v1/addresses/{id}
func (h *AddressHandler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.RemoveAddress(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, book)
}

// SetPrimary handles PUT /api/v1/addresses/{id}/primary
func (h *AddressHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.SetPrimary(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, book)
}

// decode reads the request body into dst and writes the 400 response itself
// when that fails.
func (h *AddressHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
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
