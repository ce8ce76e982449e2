// Package statebak mirrors local JSON state files to a remote git repository.
//
// An application that keeps its state in a handful of JSON files calls
// QueueBackup whenever one of them changes. statebak batches those requests,
// and a background worker commits and pushes each batch to a remote (usually
// a private GitHub repository authenticated with a token). Several processes
// may share one working directory: a lock file inside .git serializes their
// git operations, and a lock left by a crashed process is reclaimed after
// five minutes.
//
// # Quick Start
//
//	# Watch two files and push changes to GitHub until interrupted
//	export STATEBAK_AUTH_TOKEN=ghp_...
//	statebak --remote https://github.com/acme/state.git run -f users.json -f orders.json
//
//	# Back up files once and exit
//	statebak --remote https://github.com/acme/state.git backup users.json
//
//	# Inspect the lock, last backup and watched files
//	statebak status
//
// # Key Features
//
//   - Batching: changes are committed at most every 5 seconds, or sooner once 4 files are pending
//   - Cross-process locking: one backup cycle at a time per working directory
//   - Self-healing push: a branch that was never pushed gets its upstream set on retry
//   - Graceful shutdown: pending changes are flushed before the process exits
//   - Token redaction: the auth token never appears in logs or error messages
//
// # Module Structure
//
//   - cmd/statebak: Command-line interface
//   - internal/backup: Pending queue, background worker and shutdown
//   - internal/git: Git runner, backup cycle engine, bootstrapper and repository inspection
//   - internal/lock: Cross-process lock file
//   - internal/queue: Pending file set and batching rules
//   - internal/watch: Polling file watcher for the run command
//   - internal/config: Defaults, config file, environment and validation
//   - internal/metrics: Prometheus metrics and the metrics endpoint
//   - internal/logger: Logging facilities
//   - internal/errors: Error handling utilities
//   - internal/constants: Fixed values
//
// # Implementation Notes
//
// Backups run the git executable rather than a Go git library so that
// pushes use the same transport and credential behavior as the user's git.
// Read-only inspection for the status command uses go-git and never takes
// the lock.
package statebak
