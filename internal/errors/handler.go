package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Common error types following RFC 7807
const (
	TypeValidation   = "/errors/validation"
	TypeNotFound     = "/errors/not-found"
	TypeUnauthorized = "/errors/unauthorized"
	TypeRateLimit    = "/errors/rate-limit"
	TypeInternal     = "/errors/internal"
	TypeServiceDown  = "/errors/service-unavailable"
	TypeTimeout      = "/errors/timeout"
	TypeConflict     = "/errors/conflict"
)

// Domain-specific error types
const (
	TypeLicenseRequired = "/errors/license/required"
	TypeLicenseInvalid  = "/errors/license/invalid"
	TypeAuthorityDown   = "/errors/license/authority-unreachable"
	TypeSessionNotReady = "/errors/messaging/session-not-ready"
	TypeGroupNotFound   = "/errors/messaging/group-not-found"
	TypeBulkRunning     = "/errors/messaging/bulk-running"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	switch {
	case errors.Is(err, ErrLicenseRequired):
		return NewProblemDetails(http.StatusUnauthorized, TypeLicenseRequired, "License Required",
			err.Error(), r.URL.Path).WithExtension("require_license", true)

	case errors.Is(err, ErrLicenseInvalid):
		return NewProblemDetails(http.StatusForbidden, TypeLicenseInvalid, "License Invalid",
			err.Error(), r.URL.Path).WithExtension("require_license", true)

	case errors.Is(err, ErrLicenseKeyMissing):
		return NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed",
			err.Error(), r.URL.Path)

	case errors.Is(err, ErrAuthorityDown):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeAuthorityDown, "Licensing Authority Unreachable",
			err.Error(), r.URL.Path)

	case errors.Is(err, ErrSessionNotReady):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeSessionNotReady, "WhatsApp Not Connected",
			"The WhatsApp session is not connected. Scan the QR code and try again.", r.URL.Path)

	case errors.Is(err, ErrRecipientInvalid), errors.Is(err, ErrUnsupportedDocument):
		return NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed",
			err.Error(), r.URL.Path)

	case errors.Is(err, ErrGroupNotFound):
		return NewProblemDetails(http.StatusNotFound, TypeGroupNotFound, "Group Not Found",
			err.Error(), r.URL.Path)

	case errors.Is(err, ErrBulkAlreadyRunning):
		return NewProblemDetails(http.StatusConflict, TypeBulkRunning, "Bulk Send Running",
			err.Error(), r.URL.Path)

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request",
			r.URL.Path,
		)
	}
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case CodeValidationFailed, CodeInvalidRequest:
		problemType = TypeValidation
	case CodeNotFound:
		problemType = TypeNotFound
	case CodeLicenseRequired:
		problemType = TypeLicenseRequired
	case CodeLicenseInvalid:
		problemType = TypeLicenseInvalid
	case CodeRateLimitExceeded:
		problemType = TypeRateLimit
	case CodeAuthorityDown:
		problemType = TypeAuthorityDown
	case CodeSessionNotReady:
		problemType = TypeSessionNotReady
	case CodeServiceUnavailable:
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}

	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
