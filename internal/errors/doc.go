// Package errors provides error handling utilities for statebak.
//
// It adds typed errors for the three places a backup can go wrong (git
// commands, the repository lock and configuration) and a set of sentinels
// callers compare against with Is. Everything here wraps with %w, so the
// standard library errors.Is and errors.As work on every value it returns.
//
// # Usage
//
// Wrapping with context:
//
//	if err != nil {
//	    return errors.Wrap(err, "failed to stage state.json")
//	}
//
// Checking a cause across wrapping layers:
//
//	if errors.Is(err, errors.ErrLockTimeout) {
//	    // another process held the lock for the whole wait
//	}
//
// Extracting a git failure:
//
//	var gitErr *errors.GitError
//	if errors.As(err, &gitErr) {
//	    fmt.Println(gitErr.Operation, gitErr.Output)
//	}
//
// GitError values built by the git runner never carry the auth token; the
// runner redacts arguments and output before constructing them.
//
// All functions in this package are safe for concurrent use.
package errors
