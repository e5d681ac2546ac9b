package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uebook/Luna-sub002/pkg/auth"
	"github.com/Uebook/Luna-sub002/pkg/health"
	"github.com/Uebook/Luna-sub002/pkg/httputil"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
	"github.com/Uebook/Luna-sub002/services/address/internal/event"
	"github.com/Uebook/Luna-sub002/services/address/internal/repository"
	"github.com/Uebook/Luna-sub002/services/address/internal/repository/memory"
	"github.com/Uebook/Luna-sub002/services/address/internal/service"
)

const testSecret = "handler-test-secret-with-32-plus-chars"

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	handler http.Handler
	jwt     *auth.JWTManager
}

func newTestServer(t *testing.T, repo repository.AddressBookRepository) *testServer {
	t.Helper()
	logger := testLogger()
	svc := service.NewAddressService(service.NewStore(repo, logger), event.Nop{}, logger)
	jwt := auth.NewJWTManager(testSecret, "address-service", time.Hour)

	return &testServer{
		handler: NewRouter(svc, health.NewHandler(), logger, RouterConfig{TokenValidator: jwt.Validator()}),
		jwt:     jwt,
	}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, err := s.jwt.GenerateAccessToken(user, user+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type bookResponse struct {
	Data  *domain.AddressBook     `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decodeBook(t *testing.T, rec *httptest.ResponseRecorder) bookResponse {
	t.Helper()
	var resp bookResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// failingRepo loads nothing and fails every write.
type failingRepo struct{}

func (failingRepo) Get(_ context.Context, owner string) (*domain.AddressBook, error) {
	return nil, errors.New("connection refused")
}

func (failingRepo) Save(context.Context, *domain.AddressBook) error {
	return errors.New("connection refused")
}

func (failingRepo) SaveIfVersion(context.Context, *domain.AddressBook, int) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingRepo) Delete(context.Context, string) error { return nil }

// ============================================================================
// Auth
// ============================================================================

func TestAddresses_RequireBearerToken(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	rec := srv.do(t, http.MethodGet, "/api/v1/addresses", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeBook(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestAddresses_NoStoreHeader(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	rec := srv.do(t, http.MethodGet, "/api/v1/addresses", "user-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

// ============================================================================
// CRUD flow
// ============================================================================

func TestAddresses_Flow(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	rec := srv.do(t, http.MethodPost, "/api/v1/addresses", "user-1", map[string]any{
		"fields": map[string]any{"city": "Pune", "line1": "MG Road"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBook(t, rec).Data
	require.Len(t, first.Addresses, 1)
	homeID := first.Addresses[0].ID
	assert.True(t, first.Addresses[0].IsPrimary)

	rec = srv.do(t, http.MethodPost, "/api/v1/addresses", "user-1", map[string]any{
		"fields":     map[string]any{"city": "Goa"},
		"is_primary": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decodeBook(t, rec).Data
	require.Len(t, second.Addresses, 2)
	goaID := second.Addresses[0].ID
	assert.Equal(t, goaID, second.PrimaryID())

	rec = srv.do(t, http.MethodPatch, "/api/v1/addresses/"+homeID, "user-1", map[string]any{
		"fields": map[string]any{"pin": "411001"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decodeBook(t, rec).Data
	assert.Equal(t, "411001", patched.Addresses[1].Fields["pin"])

	rec = srv.do(t, http.MethodPut, "/api/v1/addresses/"+homeID+"/primary", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, homeID, decodeBook(t, rec).Data.PrimaryID())

	rec = srv.do(t, http.MethodDelete, "/api/v1/addresses/"+homeID, "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	remaining := decodeBook(t, rec).Data
	require.Len(t, remaining.Addresses, 1)
	assert.Equal(t, goaID, remaining.PrimaryID())

	// Books are per user.
	rec = srv.do(t, http.MethodGet, "/api/v1/addresses", "user-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBook(t, rec).Data.Addresses)
}

func TestAddresses_FlatRecordJSON(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	rec := srv.do(t, http.MethodPost, "/api/v1/addresses", "user-1", map[string]any{
		"fields": map[string]any{"city": "Pune"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var raw struct {
		Data struct {
			Addresses []map[string]any `json:"addresses"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	require.Len(t, raw.Data.Addresses, 1)
	assert.Equal(t, "Pune", raw.Data.Addresses[0]["city"])
	assert.Equal(t, true, raw.Data.Addresses[0]["isPrimary"])
	assert.NotEmpty(t, raw.Data.Addresses[0]["id"])
}

// ============================================================================
// Errors
// ============================================================================

func TestUpdateAddress_UnknownID(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	rec := srv.do(t, http.MethodPatch, "/api/v1/addresses/addr_missing", "user-1", map[string]any{"is_primary": true})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBook(t, rec).Error.Code)
}

func TestSetPrimary_UnknownID(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	rec := srv.do(t, http.MethodPut, "/api/v1/addresses/addr_missing/primary", "user-1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddAddress_InvalidBody(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	rec := srv.do(t, http.MethodPost, "/api/v1/addresses", "user-1", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeBook(t, rec).Error.Code)
}

func TestAddAddress_TooManyFields(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	fields := make(map[string]any, 40)
	for i := 0; i < 40; i++ {
		fields[strings.Repeat("k", i+1)] = i
	}
	rec := srv.do(t, http.MethodPost, "/api/v1/addresses", "user-1", map[string]any{"fields": fields})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBook(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "fields")
}

func TestAddAddress_WrongContentType(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/addresses", strings.NewReader("city=Pune"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestAddAddress_StorageDown(t *testing.T) {
	srv := newTestServer(t, failingRepo{})

	rec := srv.do(t, http.MethodPost, "/api/v1/addresses", "user-1", map[string]any{"fields": map[string]any{"city": "A"}})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBook(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_PERSISTED", resp.Error.Code)
}

func TestGetAddresses_StorageDownLoadsEmpty(t *testing.T) {
	srv := newTestServer(t, failingRepo{})

	rec := srv.do(t, http.MethodGet, "/api/v1/addresses", "user-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBook(t, rec).Data.Addresses)
}

// ============================================================================
// Operational endpoints
// ============================================================================

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, memory.NewAddressBookRepository())

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
