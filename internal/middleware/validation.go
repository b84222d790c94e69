package middleware

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
)

// MaxJSONBodySize caps decoded request bodies.
const MaxJSONBodySize = 1 << 20

var (
	phonePattern      = regexp.MustCompile(`^\+?[0-9 ()\-]{8,20}$`)
	licenseKeyPattern = regexp.MustCompile(`^[A-Za-z0-9\-]{8,64}$`)
)

// Validator validates request payloads with struct tags and reports field
// names by their JSON tag.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the custom "phone" and "license_key" tags.
func NewValidator() *Validator {
	v := validator.New()

	_ = v.RegisterValidation("phone", isPhone)
	_ = v.RegisterValidation("license_key", isLicenseKey)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v}
}

// ValidateStruct validates a struct and returns validation errors
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

// DecodeAndValidate decodes a JSON body into dst and validates it.
func (v *Validator) DecodeAndValidate(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxJSONBodySize)
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return apierrors.InvalidRequestWithError(err)
	}
	return v.ValidateStruct(dst)
}

// ContentTypeValidator ensures requests have proper content type
func ContentTypeValidator(contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead ||
				r.Method == http.MethodDelete || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil {
				render.Render(w, r, apierrors.New(
					http.StatusBadRequest,
					"MISSING_CONTENT_TYPE",
					"Content-Type header is required",
				))
				return
			}

			for _, allowed := range contentTypes {
				if mediaType == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			render.Render(w, r, apierrors.NewWithDetails(
				http.StatusUnsupportedMediaType,
				"UNSUPPORTED_MEDIA_TYPE",
				"Unsupported content type",
				map[string]any{
					"content_type": mediaType,
					"allowed":      contentTypes,
				},
			))
		})
	}
}

func formatValidationError(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "phone":
		return fmt.Sprintf("%s must be a phone number with country code", field)
	case "license_key":
		return fmt.Sprintf("%s must be a license key", field)
	case "dive":
		return fmt.Sprintf("%s contains an invalid entry", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func isPhone(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !phonePattern.MatchString(s) {
		return false
	}
	digits := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	return digits >= 8 && digits <= 15
}

func isLicenseKey(fl validator.FieldLevel) bool {
	return licenseKeyPattern.MatchString(strings.TrimSpace(fl.Field().String()))
}
