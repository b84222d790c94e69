package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/config"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/services"
)

// LicenseComponents is the license stack shared by the server and the CLI.
type LicenseComponents struct {
	Manager   *license.Manager
	Authority *license.HTTPClient
	Service   services.LicenseService
}

// LicenseOptions carries the collaborators that differ between the server
// and the CLI.
type LicenseOptions struct {
	Meter metric.Meter
	// OnActivated runs after a key is accepted.
	OnActivated func(ctx context.Context)
	// Audit sinks receive every transition in addition to the configured
	// file and spreadsheet sinks.
	Audit []license.AuditSink
}

// NewLicenseComponents builds the authority client, the record store, the
// audit sinks and the manager from cfg.
func NewLicenseComponents(ctx context.Context, cfg *config.Config, opts LicenseOptions, logger *slog.Logger) (*LicenseComponents, error) {
	machineID := license.MachineID()

	client := license.NewHTTPClient(license.ClientConfig{
		BaseURL:   cfg.Authority.URL,
		APIKey:    cfg.Authority.APIKey,
		Timeout:   cfg.Authority.Timeout,
		UserAgent: cfg.Authority.UserAgent,
		MachineID: machineID,
	}, logger)

	var secret []byte
	if cfg.License.SignRecord {
		secret = []byte(machineID)
	}
	store, err := license.NewFileStore(cfg.License.File, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create license store: %w", err)
	}

	var metrics *license.LicenseMetrics
	if opts.Meter != nil {
		metrics, err = license.InitializeLicenseMetrics(opts.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize license metrics: %w", err)
		}
	}

	sinks := auditSinks(ctx, cfg.License, logger)
	sinks = append(sinks, opts.Audit...)
	var audit license.AuditSink
	if len(sinks) > 0 {
		audit = license.MultiAudit(sinks)
	}

	manager := license.NewManager(client, store, license.ManagerConfig{
		Interval: cfg.License.Interval,
		Policy: license.NewPolicy(license.PolicyConfig{
			FailureThreshold:         cfg.License.FailureThreshold,
			ConfirmedInvalidStatuses: cfg.License.ConfirmedInvalidStatuses,
			AmbiguousStatuses:        cfg.License.AmbiguousStatuses,
		}),
		Logger:  logger,
		Metrics: metrics,
		Audit:   audit,
	})

	service := services.NewLicenseService(manager, client, services.LicenseServiceConfig{
		StoreFile:    cfg.License.File,
		AuthorityURL: cfg.Authority.URL,
		OnActivated:  opts.OnActivated,
	}, logger)

	return &LicenseComponents{
		Manager:   manager,
		Authority: client,
		Service:   service,
	}, nil
}

// auditSinks opens the configured transition sinks. A spreadsheet that
// cannot be reached is logged and skipped; it must not keep the bot down.
func auditSinks(ctx context.Context, cfg config.LicenseConfig, logger *slog.Logger) []license.AuditSink {
	var sinks []license.AuditSink
	if cfg.AuditFile != "" {
		fileLog, err := license.NewFileAuditLog(cfg.AuditFile)
		if err != nil {
			logger.WarnContext(ctx, "License audit file disabled",
				slog.String("path", cfg.AuditFile),
				slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, fileLog)
		}
	}
	if cfg.SheetsAuditSpreadsheetID != "" {
		sheet, err := license.NewSheetsAuditLog(ctx, cfg.SheetsAuditSpreadsheetID, cfg.SheetsAuditSheet, cfg.SheetsCredentialsFile)
		if err != nil {
			logger.WarnContext(ctx, "License audit spreadsheet disabled",
				slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, sheet)
		}
	}
	return sinks
}
