// Package config provides configuration handling for statebak.
//
// # Configuration Sources
//
// Configuration values are loaded with the following precedence:
//
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Config file (YAML or JSON)
// 4. Default values (lowest priority)
//
// # Config File
//
//	repo: /var/lib/app
//	remote_url: https://github.com/acme/app-state.git
//	files: [users.json, orders.json]
//	batch_interval: 5s
//	batch_size: 4
//
// The legacy credentials layout is also accepted:
//
//	{"github": {"repository_url": "https://github.com/acme/app-state.git", "auth_token": "..."}}
//
// # Environment Variables
//
// Every setting has a STATEBAK_ variable, for example:
//
//	STATEBAK_REPO_PATH       Working directory to back up (default: current directory)
//	STATEBAK_REMOTE_URL      Remote to push to
//	STATEBAK_AUTH_TOKEN      Push token (falls back to GITHUB_TOKEN)
//	STATEBAK_FILES           Comma-separated files to watch
//	STATEBAK_BATCH_INTERVAL  Minimum time between flushes (default: 5s)
//	STATEBAK_BATCH_SIZE      Pending files that force a flush (default: 4)
//	STATEBAK_LOCK_TIMEOUT    Wait for the repository lock (default: 30s)
//	STATEBAK_DEBUG           Enable debug logging (default: false)
//	STATEBAK_METRICS_ADDR    Serve Prometheus metrics on this address
//
// Durations accept Go syntax ("90s", "1m30s") or a plain number of seconds.
package config
