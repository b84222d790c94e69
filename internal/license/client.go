package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultUserAgent identifies this client to the licensing authority.
	DefaultUserAgent = "WhatsApp-Bot-Client/3.2-Conservative"
	// DefaultAuthorityTimeout bounds one authority round trip.
	DefaultAuthorityTimeout = 20 * time.Second

	maxResponseBytes = 1 << 20
)

// Authority issues one validation request per call. Implementations never
// retry and never touch the license record.
type Authority interface {
	Check(ctx context.Context, key string) RawOutcome
}

// ClientConfig configures the HTTP authority client.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	MachineID string
}

// HTTPClient talks to the licensing authority over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	userAgent  string
	machineID  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates an authority client. A zero timeout falls back to
// DefaultAuthorityTimeout.
func NewHTTPClient(cfg ClientConfig, logger *slog.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAuthorityTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		machineID: cfg.MachineID,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With(slog.String("component", "license_authority")),
	}
}

// authorityResponse mirrors the authority's JSON envelope. Pointer fields
// distinguish an absent member from its zero value.
type authorityResponse struct {
	Success *bool          `json:"success"`
	Message string         `json:"message"`
	Data    *authorityData `json:"data"`
}

type authorityData struct {
	Valid   *bool           `json:"valid"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	License *licensePayload `json:"license"`
}

type licensePayload struct {
	ExpiresAt    string  `json:"expires_at"`
	CustomerName string  `json:"customer_name"`
	LicenseType  string  `json:"license_type"`
	MaxUses      flexInt `json:"max_uses"`
	CurrentUses  flexInt `json:"current_uses"`
	Notes        string  `json:"notes"`
}

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = flexInt(n)
	return nil
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func parseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (p *licensePayload) toData() *LicenseData {
	if p == nil {
		return nil
	}
	d := &LicenseData{
		CustomerName: p.CustomerName,
		LicenseType:  p.LicenseType,
		MaxUses:      int(p.MaxUses),
		CurrentUses:  int(p.CurrentUses),
		Notes:        p.Notes,
	}
	if t, ok := parseExpiry(p.ExpiresAt); ok {
		d.ExpiresAt = t
	}
	return d
}

// Check performs action=check for key.
func (c *HTTPClient) Check(ctx context.Context, key string) RawOutcome {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.authority.check",
		trace.WithAttributes(attribute.String("license.key_prefix", KeyPrefix(key))),
	)
	defer span.End()

	start := time.Now()
	out := c.check(ctx, key)
	out.Latency = time.Since(start)

	span.SetAttributes(
		attribute.String("license.outcome", out.Kind.String()),
		attribute.String("license.status", out.Status),
	)
	if out.Kind == OutcomeTransportFailure {
		span.SetStatus(codes.Error, out.Reason)
		c.logger.WarnContext(ctx, "Authority check failed",
			slog.String("key_prefix", KeyPrefix(key)),
			slog.String("reason", out.Reason),
			slog.Duration("latency", out.Latency),
		)
	} else {
		c.logger.DebugContext(ctx, "Authority check completed",
			slog.String("key_prefix", KeyPrefix(key)),
			slog.String("outcome", out.Kind.String()),
			slog.String("status", out.Status),
			slog.Duration("latency", out.Latency),
		)
	}
	return out
}

func (c *HTTPClient) check(ctx context.Context, key string) RawOutcome {
	body, status, err := c.get(ctx, "check", url.Values{"license": {key}})
	if err != nil {
		return TransportFailure(err.Error())
	}
	if status >= http.StatusInternalServerError {
		return TransportFailure(fmt.Sprintf("authority returned HTTP %d", status))
	}
	return parseCheckResponse(body)
}

// parseCheckResponse maps an authority body onto a RawOutcome. Anything that
// is not the documented envelope is a transport failure.
func parseCheckResponse(body []byte) RawOutcome {
	if len(strings.TrimSpace(string(body))) == 0 {
		return TransportFailure("empty response from authority")
	}

	var resp authorityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TransportFailure("invalid response from authority: " + err.Error())
	}
	if resp.Success == nil {
		return TransportFailure("invalid response from authority: missing success field")
	}

	if !*resp.Success {
		status, message := "", resp.Message
		if resp.Data != nil {
			status = resp.Data.Status
			if message == "" {
				message = resp.Data.Message
			}
		}
		if message == "" {
			message = "license rejected by authority"
		}
		return Rejected(status, message)
	}

	if resp.Data == nil || resp.Data.Valid == nil {
		return TransportFailure("invalid response from authority: missing data.valid field")
	}

	if !*resp.Data.Valid {
		message := resp.Data.Message
		if message == "" {
			message = resp.Message
		}
		if message == "" {
			message = "license rejected by authority"
		}
		return Rejected(resp.Data.Status, message)
	}

	message := resp.Data.Message
	if message == "" {
		message = "license valid"
	}
	return Affirmed(resp.Data.Status, resp.Data.License.toData(), message)
}

// PingResult describes an action=status probe.
type PingResult struct {
	Reachable  bool          `json:"reachable"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Latency    time.Duration `json:"latency"`
	Message    string        `json:"message,omitempty"`
	Payload    any           `json:"payload,omitempty"`
}

// Ping probes the authority with action=status. It never affects license
// state and is only used for diagnostics.
func (c *HTTPClient) Ping(ctx context.Context) PingResult {
	start := time.Now()
	body, status, err := c.get(ctx, "status", nil)
	res := PingResult{Latency: time.Since(start), HTTPStatus: status}
	if err != nil {
		res.Message = err.Error()
		return res
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		res.Message = "invalid response from authority"
		return res
	}
	res.Payload = payload
	res.Reachable = status < http.StatusInternalServerError
	if msg, ok := payload["message"].(string); ok {
		res.Message = msg
	}
	return res
}

func (c *HTTPClient) get(ctx context.Context, action string, params url.Values) ([]byte, int, error) {
	if c.baseURL == "" {
		return nil, 0, errors.New("authority URL not configured")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid authority URL: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.machineID != "" {
		req.Header.Set("X-Machine-ID", c.machineID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, 0, errors.New("timeout contacting authority")
		}
		return nil, 0, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
