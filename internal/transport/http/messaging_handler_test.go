package http

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/exporter"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/shared/testutil"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

func newMessagingRouter(t *testing.T, svc *MockMessagingService) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewMessagingHandler(svc, nil, apierrors.NewErrorHandler(logger, false), logger).Routes()
}

func multipartUpload(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "contatos.xlsx")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestMessagingHandlerSend(t *testing.T) {
	svc := &MockMessagingService{}
	svc.On("Send", mock.Anything, domain.SendMessageRequest{Number: "5511912345678", Message: "Olá"}).
		Return(domain.SendResult{Success: true, To: "5511912345678", ChatID: "5511912345678@c.us", Message: "sent"}, nil)
	router := newMessagingRouter(t, svc)

	rec := doRequest(router, http.MethodPost, "/send", `{"number":"5511912345678","message":"Olá"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5511912345678@c.us", decodeBody(t, rec)["chat_id"])
	svc.AssertExpectations(t)
}

func TestMessagingHandlerSendErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantType string
	}{
		{"invalid number", `{"number":"abc","message":"hi"}`, nil, http.StatusBadRequest, apierrors.TypeValidation},
		{"missing message", `{"number":"5511912345678"}`, nil, http.StatusBadRequest, apierrors.TypeValidation},
		{"session not ready", `{"number":"5511912345678","message":"hi"}`, apierrors.ErrSessionNotReady, http.StatusServiceUnavailable, apierrors.TypeSessionNotReady},
		{"recipient rejected", `{"number":"5511912345678","message":"hi"}`, apierrors.ErrRecipientInvalid, http.StatusBadRequest, apierrors.TypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockMessagingService{}
			if tt.err != nil {
				svc.On("Send", mock.Anything, mock.Anything).Return(domain.SendResult{}, tt.err)
			}
			router := newMessagingRouter(t, svc)

			rec := doRequest(router, http.MethodPost, "/send", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantType, decodeBody(t, rec)["type"])
			if tt.err == nil {
				svc.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestMessagingHandlerSendRequiresJSON(t *testing.T) {
	svc := &MockMessagingService{}
	router := newMessagingRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/send", bytes.NewBufferString("number=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestMessagingHandlerBulk(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := &MockMessagingService{}
		svc.On("StartBulk", mock.Anything, domain.BulkSendRequest{
			Numbers: []string{"5511912345678", "5521998765432"},
			Message: "Promoção",
			DelayMS: 2000,
		}).Return(domain.BulkAccepted{Success: true, JobID: "job-1", Total: 2}, nil)
		router := newMessagingRouter(t, svc)

		rec := doRequest(router, http.MethodPost, "/bulk",
			`{"numbers":["5511912345678","5521998765432"],"message":"Promoção","delay":2000}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "job-1", body["job_id"])
		assert.Equal(t, float64(2), body["total"])
	})

	t.Run("empty list", func(t *testing.T) {
		svc := &MockMessagingService{}
		router := newMessagingRouter(t, svc)

		rec := doRequest(router, http.MethodPost, "/bulk", `{"numbers":[],"message":"x"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("already running", func(t *testing.T) {
		svc := &MockMessagingService{}
		svc.On("StartBulk", mock.Anything, mock.Anything).Return(domain.BulkAccepted{}, apierrors.ErrBulkAlreadyRunning)
		router := newMessagingRouter(t, svc)

		rec := doRequest(router, http.MethodPost, "/bulk", `{"numbers":["5511912345678"],"message":"x"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, apierrors.TypeBulkRunning, decodeBody(t, rec)["type"])
	})
}

func TestMessagingHandlerBulkFromXLSX(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := &MockMessagingService{}
		svc.On("StartBulkFromXLSX", mock.Anything, mock.Anything, "Bom dia", 1500*time.Millisecond, true).
			Return(domain.BulkAccepted{Success: true, JobID: "job-2", Total: 3}, nil)
		router := newMessagingRouter(t, svc)

		body, contentType := multipartUpload(t, map[string]string{
			"message":       "Bom dia",
			"delay":         "1500",
			"stop_on_error": "true",
		}, []byte("PK-fake-workbook"))
		req := httptest.NewRequest(http.MethodPost, "/bulk/xlsx", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, "job-2", decodeBody(t, rec)["job_id"])
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name   string
		fields map[string]string
		file   []byte
	}{
		{"missing message", map[string]string{"delay": "10"}, []byte("x")},
		{"bad delay", map[string]string{"message": "oi", "delay": "soon"}, []byte("x")},
		{"delay too long", map[string]string{"message": "oi", "delay": "600001"}, []byte("x")},
		{"missing file", map[string]string{"message": "oi"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockMessagingService{}
			router := newMessagingRouter(t, svc)

			body, contentType := multipartUpload(t, tt.fields, tt.file)
			req := httptest.NewRequest(http.MethodPost, "/bulk/xlsx", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			svc.AssertNotCalled(t, "StartBulkFromXLSX", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		svc := &MockMessagingService{}
		router := newMessagingRouter(t, svc)

		rec := doRequest(router, http.MethodPost, "/bulk/xlsx", `{"message":"oi"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMessagingHandlerSessionRoutes(t *testing.T) {
	svc := &MockMessagingService{}
	svc.On("Status", mock.Anything).Return(domain.SessionStatus{Success: true, Started: true, HasQR: true})
	svc.On("QR", mock.Anything).Return(domain.QRResponse{Success: true, QR: "data:image/png;base64,AAAA"}, nil)
	svc.On("Info", mock.Anything).Return(domain.AccountInfo{Number: "5511912345678", Name: "Atendimento"}, nil)
	svc.On("Logout", mock.Anything).Return(nil)
	router := newMessagingRouter(t, svc)

	rec := doRequest(router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["has_qr"])

	rec = doRequest(router, http.MethodGet, "/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data:image/png;base64,AAAA", decodeBody(t, rec)["qr"])

	rec = doRequest(router, http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Atendimento", decodeBody(t, rec)["info"].(map[string]any)["name"])

	rec = doRequest(router, http.MethodPost, "/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)

	svc.AssertExpectations(t)
}

func TestMessagingHandlerQRUnlicensed(t *testing.T) {
	svc := &MockMessagingService{}
	svc.On("QR", mock.Anything).Return(domain.QRResponse{}, apierrors.ErrLicenseRequired)
	router := newMessagingRouter(t, svc)

	rec := doRequest(router, http.MethodGet, "/qr", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMessagingHandlerGroups(t *testing.T) {
	svc := &MockMessagingService{}
	svc.On("Groups", mock.Anything).Return(domain.GroupsResponse{
		Success: true,
		Groups:  []domain.Group{{ID: "120363@g.us", Name: "Clientes"}},
		Count:   1,
	}, nil)
	svc.On("Group", mock.Anything, "120363@g.us").Return(domain.GroupInfo{
		Group: domain.Group{ID: "120363@g.us", Name: "Clientes"},
	}, nil)
	svc.On("Group", mock.Anything, "missing@g.us").Return(domain.GroupInfo{}, apierrors.ErrGroupNotFound)
	svc.On("SendToGroup", mock.Anything, domain.GroupSendRequest{GroupID: "120363@g.us", Message: "Aviso"}).
		Return(domain.SendResult{Success: true, GroupName: "Clientes"}, nil)
	svc.On("SendToGroups", mock.Anything, domain.GroupsSendRequest{GroupIDs: []string{"a@g.us", "b@g.us"}, Message: "Aviso"}).
		Return(domain.BulkAccepted{Success: true, JobID: "job-3", Total: 2}, nil)
	router := newMessagingRouter(t, svc)

	rec := doRequest(router, http.MethodGet, "/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = doRequest(router, http.MethodGet, "/groups/120363@g.us", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Clientes", decodeBody(t, rec)["group"].(map[string]any)["name"])

	rec = doRequest(router, http.MethodGet, "/groups/missing@g.us", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodPost, "/groups/send", `{"group_id":"120363@g.us","message":"Aviso"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Clientes", decodeBody(t, rec)["group_name"])

	rec = doRequest(router, http.MethodPost, "/groups/send-many", `{"group_ids":["a@g.us","b@g.us"],"message":"Aviso"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-3", decodeBody(t, rec)["job_id"])

	svc.AssertExpectations(t)
}

func TestMessagingHandlerCancelBulk(t *testing.T) {
	svc := &MockMessagingService{}
	svc.On("CancelBulk", mock.Anything).Return(true).Once()
	svc.On("CancelBulk", mock.Anything).Return(false).Once()
	router := newMessagingRouter(t, svc)

	rec := doRequest(router, http.MethodPost, "/bulk/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodPost, "/bulk/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessagingHandlerReports(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	reports := exporter.NewBulkReports(t.TempDir(), logger)
	router := NewMessagingHandler(&MockMessagingService{}, nil, apierrors.NewErrorHandler(logger, false), logger).
		WithReports(reports).
		Routes()

	rec := doRequest(router, http.MethodGet, "/bulk/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	jobID := uuid.New().String()
	_, err := reports.WriteBulkReport(context.Background(), events.BulkSummary{
		JobID:   jobID,
		Results: []events.BulkResult{{Target: "11911111111", Success: true, MessageID: "m1"}},
	})
	require.NoError(t, err)

	for _, path := range []string{"/bulk/report", "/bulk/report/" + jobID} {
		rec := doRequest(router, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), exporter.ReportName(jobID))
		assert.True(t, strings.Contains(rec.Body.String(), "11911111111,,sent,m1"), rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/bulk/report/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequest(router, http.MethodGet, "/bulk/report/not-a-job", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessagingHandlerReportsDisabled(t *testing.T) {
	router := newMessagingRouter(t, &MockMessagingService{})
	rec := doRequest(router, http.MethodGet, "/bulk/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
