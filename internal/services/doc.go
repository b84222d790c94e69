// Package services implements the business logic between the HTTP and
// realtime transports and the license and messaging packages.
//
// # Services
//
//	LicenseService   - status, activation, renewal and diagnostics over the
//	                   license orchestrator
//	MessagingService - WhatsApp session control, single and bulk sends
//	HealthService    - health, liveness, version and runtime statistics
//
// Services depend on small interfaces rather than concrete types so each can
// be tested with testify mocks:
//
//	svc := services.NewLicenseService(manager, client, services.LicenseServiceConfig{
//	    StoreFile:    cfg.License.File,
//	    AuthorityURL: cfg.Authority.URL,
//	}, logger)
//
//	resp, err := svc.Activate(ctx, key)
//
// Errors are the sentinels of internal/errors, wrapped with context, so the
// transport layer can map them to problem responses with errors.Is.
package services
