// Package app wires the bot together and manages its lifecycle.
//
// # Initialization Flow
//
// New builds every component in dependency order:
//
//  1. Resolve and create the data, log, session and report directories
//  2. Initialize OpenTelemetry and the application metrics
//  3. Build the license stack: authority client, record store, audit sinks,
//     policy and manager
//  4. Create the realtime hub and hand it to the license broadcaster
//  5. When messaging is enabled, create the WhatsApp session, the bulk
//     report writer, the bulk sender and the messaging service
//  6. Mount the HTTP routes and create the server
//
// Serve then starts the manager's revalidation loop and the hub, opens the
// WhatsApp session if the stored license is usable, and runs the HTTP
// server until its context ends.
//
// # Usage
//
//	a, err := app.New(ctx, cfg, logger, app.Options{})
//	if err != nil {
//	    return err
//	}
//	return a.Serve(ctx)
//
// The license commands of the CLI use NewLicenseComponents directly and
// never start a server.
package app
