package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/shared/testutil"
)

type stubChecker struct {
	out   license.Outcome
	calls atomic.Int32
}

func (s *stubChecker) CheckCached(context.Context) license.Outcome {
	s.calls.Add(1)
	return s.out
}

type gateRecorder struct {
	reached atomic.Bool
	outcome atomic.Pointer[license.Outcome]
}

func gateFixture(t *testing.T, out license.Outcome) (*stubChecker, http.Handler, *gateRecorder) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	checker := &stubChecker{out: out}
	seen := &gateRecorder{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.reached.Store(true)
		if got, ok := OutcomeFromContext(r.Context()); ok {
			seen.outcome.Store(&got)
		}
		w.WriteHeader(http.StatusOK)
	})
	return checker, RequestID(NewLicenseGate(checker, logger).Handler(next)), seen
}

func TestLicenseGateExcludedPaths(t *testing.T) {
	checker, h, seen := gateFixture(t, license.Outcome{Verdict: license.VerdictInvalid})

	for _, path := range []string{"/", "/api/health", "/metrics", "/ws", "/api/license/status", "/static/app.js"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
	assert.Zero(t, checker.calls.Load())
	assert.Nil(t, seen.outcome.Load())
}

func TestLicenseGateUsable(t *testing.T) {
	checker, h, seen := gateFixture(t, license.Outcome{Verdict: license.VerdictUsable, Reason: license.ReasonCacheHit})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages/send", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen.reached.Load())
	require.NotNil(t, seen.outcome.Load())
	assert.Equal(t, license.ReasonCacheHit, seen.outcome.Load().Reason)
	assert.Equal(t, "usable", rec.Header().Get(HeaderLicenseStatus))
	assert.Empty(t, rec.Header().Get(HeaderLicenseDegraded))
	assert.EqualValues(t, 1, checker.calls.Load())
}

func TestLicenseGateDegradedPassesWithHeader(t *testing.T) {
	_, h, seen := gateFixture(t, license.Outcome{
		Verdict: license.VerdictDegraded,
		Reason:  license.ReasonTransportFailure,
		Cached:  true,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen.reached.Load())
	assert.Equal(t, "degraded", rec.Header().Get(HeaderLicenseStatus))
	assert.Equal(t, "true", rec.Header().Get(HeaderLicenseDegraded))
}

func TestLicenseGateBlocksAPIWithProblem(t *testing.T) {
	_, h, seen := gateFixture(t, license.Outcome{
		Verdict: license.VerdictInvalid,
		Reason:  license.ReasonConfirmedInvalid,
		Message: "Licença expirada",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/messages/bulk", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, seen.reached.Load())
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/errors/license/required", body["type"])
	assert.Equal(t, "confirmed_invalid", body["reason"])
	assert.Equal(t, "Licença expirada", body["detail"])
	assert.Equal(t, true, body["require_license"])
	assert.Equal(t, "req-42", body["trace_id"])
	assert.Equal(t, "/license", body["redirect_url"])
}

func TestLicenseGateRedirectsPages(t *testing.T) {
	_, h, seen := gateFixture(t, license.Outcome{Verdict: license.VerdictInvalid, Reason: license.ReasonNoRecord})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard?tab=bulk", nil))

	assert.False(t, seen.reached.Load())
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "/license?")
	assert.Contains(t, loc, "reason=no_record")
	assert.Contains(t, loc, "return=%2Fdashboard%3Ftab%3Dbulk")
}

func TestLicenseGateCustomExclusions(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	checker := &stubChecker{out: license.Outcome{Verdict: license.VerdictInvalid}}
	gate := NewLicenseGate(checker, logger)
	gate.AddExcludePath("/api/messages/qr")
	gate.AddExcludePrefix("/docs/")

	h := gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/api/messages/qr", "/docs/index.html"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
	}
	assert.Zero(t, checker.calls.Load())
}
