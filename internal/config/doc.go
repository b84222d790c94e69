// Package config loads the bot's configuration.
//
// # Sources
//
// Configuration is layered, later sources winning:
//
//  1. Default()
//  2. YAML file: $WABOT_CONFIG_FILE, config.yaml or configs/config.yaml
//  3. WABOT_* environment variables
//
// Nested sections map onto underscore-joined variable names:
//
//	WABOT_SERVER_PORT=3000
//	WABOT_AUTHORITY_URL=https://licenses.example.com/api.php
//	WABOT_AUTHORITY_API_KEY=...
//	WABOT_LICENSE_INTERVAL=5m
//	WABOT_LICENSE_FAILURE_THRESHOLD=3
//	WABOT_LICENSE_AMBIGUOUS_STATUSES=pending,inactive
//	WABOT_MESSAGING_BULK_DELAY=3s
//
// # Paths
//
// Relative paths are resolved against paths.base_dir, which defaults to the
// directory of the running executable, so the bot behaves the same whatever
// the working directory.
//
// # Validation
//
// Load validates the result with go-playground/validator struct tags and
// reports every failing field at once.
package config
