package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains every resolved file system location the bot uses. All
// entries are absolute.
type Paths struct {
	BaseDir     string
	DataDir     string
	WebDir      string
	LogsDir     string
	LicenseFile string
	AuditFile   string
	SessionDir  string
	ReportsDir  string
	LogFile     string

	SheetsCredentialsFile string
}

// ExecutableDir returns the directory holding the running binary with
// symlinks resolved.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	return filepath.Dir(exe), nil
}

// Resolve returns p unchanged when absolute, otherwise joined to base. An
// empty p stays empty.
func Resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// resolvePaths turns every configured relative path into an absolute one
// rooted at Paths.BaseDir.
func (c *Config) resolvePaths() error {
	if c.Paths.BaseDir == "" {
		dir, err := ExecutableDir()
		if err != nil {
			return err
		}
		c.Paths.BaseDir = dir
	}
	base, err := filepath.Abs(c.Paths.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base dir: %w", err)
	}
	c.Paths.BaseDir = base

	c.Paths.DataDir = Resolve(base, c.Paths.DataDir)
	c.Paths.WebDir = Resolve(base, c.Paths.WebDir)
	c.Paths.LogsDir = Resolve(base, c.Paths.LogsDir)
	c.Logging.FilePath = Resolve(base, c.Logging.FilePath)
	c.License.File = Resolve(base, c.License.File)
	c.License.AuditFile = Resolve(base, c.License.AuditFile)
	c.License.SheetsCredentialsFile = Resolve(base, c.License.SheetsCredentialsFile)
	c.Messaging.SessionDir = Resolve(base, c.Messaging.SessionDir)
	c.Messaging.ReportsDir = Resolve(base, c.Messaging.ReportsDir)
	return nil
}

// ResolvedPaths returns the resolved locations. Call after Load.
func (c *Config) ResolvedPaths() *Paths {
	return &Paths{
		BaseDir:               c.Paths.BaseDir,
		DataDir:               c.Paths.DataDir,
		WebDir:                c.Paths.WebDir,
		LogsDir:               c.Paths.LogsDir,
		LicenseFile:           c.License.File,
		AuditFile:             c.License.AuditFile,
		SessionDir:            c.Messaging.SessionDir,
		ReportsDir:            c.Messaging.ReportsDir,
		LogFile:               c.Logging.FilePath,
		SheetsCredentialsFile: c.License.SheetsCredentialsFile,
	}
}

// EnsureDirectories creates every directory the bot writes into.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.DataDir, p.LogsDir, p.SessionDir, p.ReportsDir, filepath.Dir(p.LicenseFile)}
	if p.AuditFile != "" {
		dirs = append(dirs, filepath.Dir(p.AuditFile))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogPathResolution logs the resolved locations at startup.
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("logs", p.LogsDir),
			slog.String("web", p.WebDir),
			slog.String("session", p.SessionDir),
			slog.String("reports", p.ReportsDir),
		),
		slog.Group("files",
			slog.String("license", p.LicenseFile),
			slog.String("audit", p.AuditFile),
			slog.String("log", p.LogFile),
		),
	)
}
