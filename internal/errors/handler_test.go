package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewJSONHandler(io.Discard, nil)), false)
}

func TestErrorToProblem(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/messages/send", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"license required", fmt.Errorf("gate: %w", ErrLicenseRequired), http.StatusUnauthorized, TypeLicenseRequired},
		{"license invalid", ErrLicenseInvalid, http.StatusForbidden, TypeLicenseInvalid},
		{"missing key", ErrLicenseKeyMissing, http.StatusBadRequest, TypeValidation},
		{"authority down", ErrAuthorityDown, http.StatusServiceUnavailable, TypeAuthorityDown},
		{"session not ready", fmt.Errorf("send: %w", ErrSessionNotReady), http.StatusServiceUnavailable, TypeSessionNotReady},
		{"bad recipient", ErrRecipientInvalid, http.StatusBadRequest, TypeValidation},
		{"group missing", ErrGroupNotFound, http.StatusNotFound, TypeGroupNotFound},
		{"bulk running", ErrBulkAlreadyRunning, http.StatusConflict, TypeBulkRunning},
		{"api error", ErrRateLimitExceeded, http.StatusTooManyRequests, TypeRateLimit},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := h.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/messages/send", problem.Instance)
		})
	}
}

func TestHandleErrorWritesProblemJSON(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/license/validate", nil)
	rec := httptest.NewRecorder()

	h.HandleError(rec, req, ErrValidation("license_key", "required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, TypeValidation, body["type"])
	assert.Equal(t, CodeValidationFailed, body["error_code"])
	assert.Contains(t, body, "trace_id")
	assert.Contains(t, body, "details")
}

func TestHandleErrorNilIsNoop(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()
	h.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, 0, rec.Body.Len())
}

func TestProblemDetailsMarshalKeepsStandardFields(t *testing.T) {
	p := NewProblemDetails(http.StatusUnauthorized, TypeLicenseRequired, "License Required", "no license", "/x").
		WithExtension("status", 999).
		WithExtension("reason", "no_record")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.EqualValues(t, http.StatusUnauthorized, body["status"])
	assert.Equal(t, "no_record", body["reason"])
	assert.Equal(t, "no license", body["detail"])
}

func TestNewLicenseRequiredProblem(t *testing.T) {
	p := NewLicenseRequiredProblem("/api/messages/send", "failure_threshold", "license could not be confirmed", "req-1")

	assert.Equal(t, http.StatusUnauthorized, p.Status)
	assert.Equal(t, TypeLicenseRequired, p.Type)
	assert.Equal(t, CodeLicenseRequired, p.Extensions["error_code"])
	assert.Equal(t, "failure_threshold", p.Extensions["reason"])
	assert.Equal(t, true, p.Extensions["require_license"])
	assert.Equal(t, "req-1", p.Extensions["trace_id"])
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NotFoundError("group"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "group not found", resp.Error.Message)
}
