package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Domain sentinel errors, matched with errors.Is by the ErrorHandler.
var (
	ErrLicenseRequired     = errors.New("license required")
	ErrLicenseInvalid      = errors.New("license invalid")
	ErrLicenseKeyMissing   = errors.New("license key is required")
	ErrAuthorityDown       = errors.New("licensing authority unreachable")
	ErrSessionNotReady     = errors.New("messaging session not ready")
	ErrRecipientInvalid    = errors.New("invalid recipient")
	ErrGroupNotFound       = errors.New("group not found")
	ErrBulkAlreadyRunning  = errors.New("bulk send already running")
	ErrUnsupportedDocument = errors.New("unsupported recipients document")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the top-level object.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 5+len(pd.Extensions))
	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewLicenseRequiredProblem is returned by the license gate. reason and
// message come from the last license verdict.
func NewLicenseRequiredProblem(instance, reason, message, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusUnauthorized,
		TypeLicenseRequired,
		"License Required",
		message,
		instance,
	).WithExtension("error_code", CodeLicenseRequired).
		WithExtension("reason", reason).
		WithExtension("require_license", true).
		WithExtension("trace_id", traceID)
}
