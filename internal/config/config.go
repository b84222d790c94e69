package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. WABOT_SERVER_PORT.
const EnvPrefix = "WABOT"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Authority AuthorityConfig `yaml:"authority" envconfig:"AUTHORITY"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Messaging MessagingConfig `yaml:"messaging" envconfig:"MESSAGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"required_if=EnableCORS true"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
	// ValidatePerMinute caps license activations per client IP.
	ValidatePerMinute int `yaml:"validate_per_minute" envconfig:"VALIDATE_PER_MINUTE" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration. Relative paths are
// resolved against BaseDir, which defaults to the executable directory.
type PathsConfig struct {
	BaseDir string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	WebDir  string `yaml:"web_dir" envconfig:"WEB_DIR"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" validate:"gt=0"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" validate:"gt=0"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" validate:"gt=0,ltfield=PongWait"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" validate:"gt=0"`
}

// AuthorityConfig points at the remote licensing authority.
type AuthorityConfig struct {
	URL       string        `yaml:"url" envconfig:"URL" validate:"omitempty,url"`
	APIKey    string        `yaml:"api_key" envconfig:"API_KEY"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	UserAgent string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

// LicenseConfig tunes the local license cache and resilience policy.
type LicenseConfig struct {
	File                     string        `yaml:"file" envconfig:"FILE" validate:"required"`
	Interval                 time.Duration `yaml:"interval" envconfig:"INTERVAL" validate:"gt=0"`
	FailureThreshold         int           `yaml:"failure_threshold" envconfig:"FAILURE_THRESHOLD" validate:"min=1"`
	ConfirmedInvalidStatuses []string      `yaml:"confirmed_invalid_statuses" envconfig:"CONFIRMED_INVALID_STATUSES"`
	AmbiguousStatuses        []string      `yaml:"ambiguous_statuses" envconfig:"AMBIGUOUS_STATUSES"`
	// SignRecord tags the stored record with an HMAC keyed from the machine id.
	SignRecord               bool   `yaml:"sign_record" envconfig:"SIGN_RECORD"`
	AuditFile                string `yaml:"audit_file" envconfig:"AUDIT_FILE"`
	SheetsAuditSpreadsheetID string `yaml:"sheets_audit_spreadsheet_id" envconfig:"SHEETS_AUDIT_SPREADSHEET_ID"`
	SheetsAuditSheet         string `yaml:"sheets_audit_sheet" envconfig:"SHEETS_AUDIT_SHEET"`
	SheetsCredentialsFile    string `yaml:"sheets_credentials_file" envconfig:"SHEETS_CREDENTIALS_FILE" validate:"required_with=SheetsAuditSpreadsheetID"`
}

// MessagingConfig controls the WhatsApp automation session.
type MessagingConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"ENABLED"`
	BulkDelay   time.Duration `yaml:"bulk_delay" envconfig:"BULK_DELAY" validate:"gte=0"`
	StopOnError bool          `yaml:"stop_on_error" envconfig:"STOP_ON_ERROR"`
	MaxBulk     int           `yaml:"max_bulk" envconfig:"MAX_BULK" validate:"gt=0"`
	SessionDir  string        `yaml:"session_dir" envconfig:"SESSION_DIR" validate:"required"`
	ReportsDir  string        `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
	Headless    bool          `yaml:"headless" envconfig:"HEADLESS"`
	ChromePath  string        `yaml:"chrome_path" envconfig:"CHROME_PATH"`
	WebURL      string        `yaml:"web_url" envconfig:"WEB_URL" validate:"url"`
	SendTimeout time.Duration `yaml:"send_timeout" envconfig:"SEND_TIMEOUT" validate:"gt=0"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	ServiceName       string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Environment       string `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnablePrometheus  bool   `yaml:"enable_prometheus" envconfig:"ENABLE_PROMETHEUS"`
	EnableStdoutTrace bool   `yaml:"enable_stdout_trace" envconfig:"ENABLE_STDOUT_TRACE"`
}

// Load builds the configuration from defaults, the first config file found
// in the usual locations, and WABOT_* environment variables, in increasing
// order of precedence.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file. An empty path skips the
// file layer.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg. Keys absent from the file
// keep their current value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

var validate = validator.New()

// validate checks struct constraints and normalizes logging settings.
func (c *Config) validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	// Logs are always structured JSON.
	c.Logging.Format = "json"

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file_path is required for output %q", c.Logging.Output)
	}
	return nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RPS:               20,
				Burst:             40,
				ValidatePerMinute: 10,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/wabot.log",
		},
		Paths: PathsConfig{
			DataDir: "data",
			WebDir:  "web",
			LogsDir: "logs",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Authority: AuthorityConfig{
			Timeout:   20 * time.Second,
			UserAgent: "WhatsApp-Bot-Client/3.2-Conservative",
		},
		License: LicenseConfig{
			File:                     "data/license.json",
			Interval:                 300 * time.Second,
			FailureThreshold:         3,
			ConfirmedInvalidStatuses: []string{"expired", "suspended", "expirada"},
			AmbiguousStatuses:        []string{"pending", "inactive", "pendente", "inativa"},
			SignRecord:               true,
			AuditFile:                "logs/license-audit.jsonl",
			SheetsAuditSheet:         "LicenseAudit",
		},
		Messaging: MessagingConfig{
			Enabled:     true,
			BulkDelay:   3 * time.Second,
			MaxBulk:     500,
			SessionDir:  "data/session",
			ReportsDir:  "data/reports",
			Headless:    true,
			WebURL:      "https://web.whatsapp.com",
			SendTimeout: 45 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "wabot",
			Environment:      "production",
			EnablePrometheus: true,
		},
	}
}
