// Package main implements statebak, which keeps small JSON state files
// backed up in a remote git repository.
//
// An application rewrites its state files often; statebak batches those
// writes into occasional commit-and-push cycles on a single branch, and
// serializes every git operation on the repository with a lock file so
// that several cooperating processes can share one working directory.
//
// # Commands
//
//	statebak run      Watch the configured files and back them up until interrupted
//	statebak backup   Commit and push the named files now; the exit status reports the outcome
//	statebak status   Show the lock holder, the last backup and the watched files
//	statebak version  Print version information
//
// # Basic Usage
//
//	statebak --repo /var/lib/app --remote https://github.com/acme/app-state.git run -f users.json -f orders.json
//	statebak --config /etc/statebak.yaml run --metrics-addr :9100
//	statebak --repo /var/lib/app backup users.json
//
// The push token is read from the config file, STATEBAK_AUTH_TOKEN or
// GITHUB_TOKEN. It is spliced into https GitHub remotes and never printed.
//
// # Signal Handling
//
// On SIGINT, SIGTERM or SIGHUP, run stops watching, flushes pending changes
// once and exits. A second signal terminates immediately.
package main
