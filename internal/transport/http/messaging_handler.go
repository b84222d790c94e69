package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/exporter"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/middleware"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/services"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
)

const (
	// MaxUploadSize bounds recipient workbook uploads.
	MaxUploadSize = 10 << 20

	maxUploadDelay = 10 * time.Minute
)

// ReportStore locates the CSV reports of finished bulk jobs.
type ReportStore interface {
	Path(jobID string) (string, error)
	Latest() (string, error)
}

// MessagingHandler serves /api/messages. Every route sits behind the
// license gate.
type MessagingHandler struct {
	service   services.MessagingService
	reports   ReportStore
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewMessagingHandler creates a new messaging handler
func NewMessagingHandler(service services.MessagingService, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *MessagingHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if validator == nil {
		validator = middleware.NewValidator()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &MessagingHandler{
		service:   service,
		validator: validator,
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "messaging")),
	}
}

// WithReports enables the bulk report download routes.
func (h *MessagingHandler) WithReports(reports ReportStore) *MessagingHandler {
	h.reports = reports
	return h
}

// Routes returns a chi router for messaging endpoints
func (h *MessagingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.Status)
	r.Get("/qr", h.QR)
	r.Get("/info", h.Info)
	r.Post("/logout", h.Logout)

	r.With(middleware.ContentTypeValidator("application/json")).Group(func(r chi.Router) {
		r.Post("/send", h.Send)
		r.Post("/bulk", h.Bulk)
		r.Post("/groups/send", h.SendToGroup)
		r.Post("/groups/send-many", h.SendToGroups)
	})
	r.Post("/bulk/xlsx", h.BulkFromXLSX)
	r.Post("/bulk/cancel", h.CancelBulk)
	if h.reports != nil {
		r.Get("/bulk/report", h.LatestReport)
		r.Get("/bulk/report/{jobID}", h.Report)
	}

	r.Get("/groups", h.Groups)
	r.Get("/groups/{groupID}", h.Group)

	return r
}

// Status handles GET /api/messages/status
func (h *MessagingHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Status(r.Context()))
}

// QR handles GET /api/messages/qr. The session is started on demand, so
// the first call may answer before a code exists.
func (h *MessagingHandler) QR(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.QR(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Info handles GET /api/messages/info
func (h *MessagingHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"success": true,
		"info":    info,
	})
}

// Logout handles POST /api/messages/logout
func (h *MessagingHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"success": true,
		"message": "logged out",
	})
}

// Send handles POST /api/messages/send
func (h *MessagingHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendMessageRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	res, err := h.service.Send(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// Bulk handles POST /api/messages/bulk. The job runs in the background and
// reports progress over the realtime channel.
func (h *MessagingHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkSendRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	accepted, err := h.service.StartBulk(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, accepted)
}

// BulkFromXLSX handles POST /api/messages/bulk/xlsx. The multipart form
// carries the workbook in "file", the text in "message", and optionally
// "delay" in milliseconds and "stop_on_error".
func (h *MessagingHandler) BulkFromXLSX(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		h.errors.HandleError(w, r, apierrors.ErrValidation("message", "message is required"))
		return
	}

	var delay time.Duration
	if raw := r.FormValue("delay"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 || time.Duration(ms)*time.Millisecond > maxUploadDelay {
			h.errors.HandleError(w, r, apierrors.ErrValidation("delay", "delay must be a number of milliseconds up to 600000"))
			return
		}
		delay = time.Duration(ms) * time.Millisecond
	}
	stopOnError, _ := strconv.ParseBool(r.FormValue("stop_on_error"))

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errors.HandleError(w, r, apierrors.ErrValidation("file", "an .xlsx file is required"))
		return
	}
	defer file.Close()

	h.logger.InfoContext(r.Context(), "recipient workbook uploaded",
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
	)

	accepted, err := h.service.StartBulkFromXLSX(r.Context(), file, message, delay, stopOnError)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, accepted)
}

// CancelBulk handles POST /api/messages/bulk/cancel
func (h *MessagingHandler) CancelBulk(w http.ResponseWriter, r *http.Request) {
	if !h.service.CancelBulk(r.Context()) {
		h.errors.HandleError(w, r, apierrors.NotFoundError("bulk job"))
		return
	}
	render.JSON(w, r, map[string]any{
		"success": true,
		"message": "bulk job cancelled",
	})
}

// LatestReport handles GET /api/messages/bulk/report
func (h *MessagingHandler) LatestReport(w http.ResponseWriter, r *http.Request) {
	path, err := h.reports.Latest()
	h.serveReport(w, r, path, err)
}

// Report handles GET /api/messages/bulk/report/{jobID}
func (h *MessagingHandler) Report(w http.ResponseWriter, r *http.Request) {
	path, err := h.reports.Path(chi.URLParam(r, "jobID"))
	h.serveReport(w, r, path, err)
}

func (h *MessagingHandler) serveReport(w http.ResponseWriter, r *http.Request, path string, err error) {
	if errors.Is(err, exporter.ErrReportNotFound) {
		h.errors.HandleError(w, r, apierrors.NotFoundError("bulk report"))
		return
	}
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// Groups handles GET /api/messages/groups
func (h *MessagingHandler) Groups(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Groups(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Group handles GET /api/messages/groups/{groupID}
func (h *MessagingHandler) Group(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Group(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"success": true,
		"group":   info,
	})
}

// SendToGroup handles POST /api/messages/groups/send
func (h *MessagingHandler) SendToGroup(w http.ResponseWriter, r *http.Request) {
	var req domain.GroupSendRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	res, err := h.service.SendToGroup(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// SendToGroups handles POST /api/messages/groups/send-many
func (h *MessagingHandler) SendToGroups(w http.ResponseWriter, r *http.Request) {
	var req domain.GroupsSendRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	accepted, err := h.service.SendToGroups(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, accepted)
}
