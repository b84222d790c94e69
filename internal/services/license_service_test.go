package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/shared/testutil"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testKey = "ABCD1234-EFGH-5678"

func testRecord() *license.Record {
	return &license.Record{
		Key:             testKey,
		ExpiresAt:       fixedNow.Add(10 * 24 * time.Hour),
		AuthorityStatus: "active",
		LastCheckedAt:   fixedNow.Add(-time.Minute),
		VerifiedAt:      fixedNow.Add(-time.Minute),
		CustomerName:    "Loja Central",
		LicenseType:     "mensal",
	}
}

func usableOutcome() license.Outcome {
	return license.Outcome{
		Verdict:   license.VerdictUsable,
		Reason:    license.ReasonAffirmed,
		Status:    "active",
		Message:   "license valid",
		CheckedAt: fixedNow,
		Record:    testRecord(),
	}
}

func requestCtx(id string) context.Context {
	return context.WithValue(context.Background(), middleware.RequestIDKey, id)
}

func newTestLicenseService(t *testing.T, mgr *MockLicenseManager, prober AuthorityProber, cfg LicenseServiceConfig) *licenseService {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	cfg.Now = func() time.Time { return fixedNow }
	return NewLicenseService(mgr, prober, cfg, logger).(*licenseService)
}

func TestLicenseServiceStatus(t *testing.T) {
	mgr := &MockLicenseManager{}
	mgr.On("CheckCached", mock.Anything).Return(usableOutcome()).Once()
	svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

	resp := svc.Status(requestCtx("req-1"))

	assert.True(t, resp.Success)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "usable", resp.Verdict)
	assert.Equal(t, "affirmed", resp.Reason)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "req-1", resp.TraceID)
	assert.Equal(t, fixedNow, resp.Timestamp)
	require.NotNil(t, resp.License)
	assert.Equal(t, "ABCD1234****", resp.License.Key)
	assert.Equal(t, 10, resp.License.DaysRemaining)
	assert.Equal(t, "Loja Central", resp.License.CustomerName)
	mgr.AssertExpectations(t)
}

func TestLicenseServiceStatusDegraded(t *testing.T) {
	out := usableOutcome()
	out.Verdict, out.Reason, out.Cached, out.FailureCount = license.VerdictDegraded, license.ReasonTransportFailure, true, 1
	mgr := &MockLicenseManager{}
	mgr.On("CheckCached", mock.Anything).Return(out)
	svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

	resp := svc.Status(context.Background())

	assert.True(t, resp.IsValid)
	assert.True(t, resp.Degraded)
	assert.True(t, resp.Cached)
	assert.Equal(t, "degraded", resp.Verdict)
}

func TestLicenseServiceActivate(t *testing.T) {
	t.Run("empty key", func(t *testing.T) {
		mgr := &MockLicenseManager{}
		svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

		_, err := svc.Activate(context.Background(), "   ")
		assert.ErrorIs(t, err, apierrors.ErrLicenseKeyMissing)
		mgr.AssertNotCalled(t, "Clear", mock.Anything)
	})

	t.Run("accepted key", func(t *testing.T) {
		activated := false
		mgr := &MockLicenseManager{}
		clear := mgr.On("Clear", mock.Anything).Return(nil).Once()
		mgr.On("Revalidate", mock.Anything, testKey).Return(usableOutcome()).Once().NotBefore(clear)
		svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{
			OnActivated: func(context.Context) { activated = true },
		})

		resp, err := svc.Activate(context.Background(), "  "+testKey+"\n")
		require.NoError(t, err)
		assert.True(t, resp.IsValid)
		assert.True(t, activated)
		mgr.AssertExpectations(t)
	})

	t.Run("clear failure does not block activation", func(t *testing.T) {
		mgr := &MockLicenseManager{}
		mgr.On("Clear", mock.Anything).Return(errors.New("read-only disk")).Once()
		mgr.On("Revalidate", mock.Anything, testKey).Return(usableOutcome()).Once()
		svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

		_, err := svc.Activate(context.Background(), testKey)
		assert.NoError(t, err)
	})

	tests := []struct {
		name    string
		outcome license.Outcome
		want    error
	}{
		{
			name:    "confirmed invalid",
			outcome: license.Outcome{Verdict: license.VerdictInvalid, Reason: license.ReasonConfirmedInvalid, Status: "expired", Message: "license expired"},
			want:    apierrors.ErrLicenseInvalid,
		},
		{
			name:    "authority unreachable",
			outcome: license.Outcome{Verdict: license.VerdictInvalid, Reason: license.ReasonTransportFailure, Message: "cannot reach licensing authority and no local record"},
			want:    apierrors.ErrAuthorityDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activated := false
			mgr := &MockLicenseManager{}
			mgr.On("Clear", mock.Anything).Return(nil)
			mgr.On("Revalidate", mock.Anything, testKey).Return(tt.outcome)
			svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{
				OnActivated: func(context.Context) { activated = true },
			})

			resp, err := svc.Activate(context.Background(), testKey)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.outcome.Message)
			require.NotNil(t, resp)
			assert.False(t, resp.IsValid)
			assert.Equal(t, string(tt.outcome.Reason), resp.Reason)
			assert.False(t, activated)
		})
	}
}

func TestLicenseServiceInfo(t *testing.T) {
	mgr := &MockLicenseManager{}
	mgr.On("CurrentRecord").Return(nil).Once()
	svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

	_, err := svc.Info(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrLicenseRequired)

	rec := testRecord()
	rec.ExpiresAt = time.Time{}
	mgr.On("CurrentRecord").Return(rec).Once()

	view, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Nil(t, view.ExpiresAt)
	assert.Equal(t, -1, view.DaysRemaining)
	assert.Equal(t, "active", view.AuthorityStatus)
}

func TestLicenseServiceRenew(t *testing.T) {
	mgr := &MockLicenseManager{}
	mgr.On("CurrentRecord").Return(nil).Once()
	svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

	_, err := svc.Renew(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrLicenseRequired)

	mgr.On("CurrentRecord").Return(testRecord()).Once()
	force := mgr.On("ForceRevalidate", mock.Anything).Return().Once()
	mgr.On("Revalidate", mock.Anything, testKey).Return(usableOutcome()).Once().NotBefore(force)

	resp, err := svc.Renew(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	mgr.AssertExpectations(t)
}

func TestLicenseServiceDeactivate(t *testing.T) {
	mgr := &MockLicenseManager{}
	mgr.On("Clear", mock.Anything).Return(nil).Once()
	svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

	resp, err := svc.Deactivate(requestCtx("req-9"))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-9", resp.TraceID)

	mgr.On("Clear", mock.Anything).Return(errors.New("permission denied")).Once()
	_, err = svc.Deactivate(context.Background())
	assert.ErrorContains(t, err, "permission denied")
}

func TestLicenseServiceForceCheckAndClearCache(t *testing.T) {
	mgr := &MockLicenseManager{}
	mgr.On("ForceRevalidate", mock.Anything).Return().Twice()
	mgr.On("CheckCached", mock.Anything).Return(usableOutcome()).Once()
	svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{})

	resp := svc.ForceCheck(context.Background())
	assert.True(t, resp.IsValid)

	cleared := svc.ClearCache(context.Background())
	assert.True(t, cleared.Success)
	mgr.AssertExpectations(t)
}

func TestLicenseServiceDebug(t *testing.T) {
	storeFile := filepath.Join(t.TempDir(), "license.json")
	require.NoError(t, os.WriteFile(storeFile, []byte("{}"), 0o600))

	mgr := &MockLicenseManager{}
	mgr.On("LastVerdict").Return(usableOutcome())
	mgr.On("Policy").Return(license.NewPolicy(license.PolicyConfig{FailureThreshold: 4}))
	mgr.On("InFlight").Return(false)
	mgr.On("Forced").Return(true)
	mgr.On("Interval").Return(5 * time.Minute)
	mgr.On("CurrentRecord").Return(testRecord())
	svc := newTestLicenseService(t, mgr, nil, LicenseServiceConfig{
		StoreFile:    storeFile,
		AuthorityURL: "https://license.example.test/api",
	})

	resp := svc.Debug(context.Background())

	assert.True(t, resp.RecordPresent)
	assert.True(t, resp.StoreFileExists)
	assert.True(t, resp.Forced)
	assert.Equal(t, "usable", resp.LastVerdict)
	assert.Equal(t, 300.0, resp.IntervalSeconds)
	assert.Equal(t, 4, resp.FailureThreshold)
	assert.Contains(t, resp.ConfirmedInvalidStatuses, "expired")
	assert.Contains(t, resp.AmbiguousStatuses, "pending")
	assert.Equal(t, "ABCD1234****", resp.License.Key)
	assert.NotEmpty(t, resp.MachineID)
}

func TestLicenseServiceTestAuthority(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		svc := newTestLicenseService(t, &MockLicenseManager{}, nil, LicenseServiceConfig{})
		resp := svc.TestAuthority(context.Background())
		assert.False(t, resp.Connected)
		assert.Equal(t, "licensing authority not configured", resp.Message)
	})

	t.Run("reachable", func(t *testing.T) {
		prober := &MockProber{}
		prober.On("Ping", mock.Anything).Return(license.PingResult{
			Reachable:  true,
			HTTPStatus: 200,
			Latency:    42 * time.Millisecond,
			Message:    "ok",
		})
		svc := newTestLicenseService(t, &MockLicenseManager{}, prober, LicenseServiceConfig{})

		resp := svc.TestAuthority(context.Background())
		assert.True(t, resp.Success)
		assert.True(t, resp.Connected)
		assert.Equal(t, 200, resp.HTTPStatus)
		assert.Equal(t, int64(42), resp.LatencyMS)
		prober.AssertExpectations(t)
	})
}

func TestLicenseEvent(t *testing.T) {
	ev := LicenseEvent(usableOutcome(), fixedNow)
	assert.True(t, ev.Valid)
	assert.Equal(t, "ABCD1234****", ev.Key)
	require.NotNil(t, ev.DaysRemaining)
	assert.Equal(t, 10, *ev.DaysRemaining)

	none := LicenseEvent(license.Outcome{Verdict: license.VerdictInvalid, Reason: license.ReasonNoRecord}, fixedNow)
	assert.False(t, none.Valid)
	assert.Empty(t, none.Key)
	assert.Nil(t, none.DaysRemaining)
}

func TestIsLicenseError(t *testing.T) {
	assert.True(t, IsLicenseError(outcomeError(license.Outcome{Verdict: license.VerdictInvalid})))
	assert.True(t, IsLicenseError(apierrors.ErrLicenseKeyMissing))
	assert.False(t, IsLicenseError(errors.New("boom")))
	assert.NoError(t, outcomeError(usableOutcome()))
}
