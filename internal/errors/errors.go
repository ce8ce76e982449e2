package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is. Lock and git failures surface from a backup
// cycle; the configuration ones from loading and Finalize; the last two from
// the backup manager's lifecycle.
var (
	// ErrNotGitRepository indicates the target path is not a git repository
	ErrNotGitRepository = errors.New("not a git repository")

	// ErrLockAcquisitionFailure indicates the backup lock marker could not be created
	ErrLockAcquisitionFailure = errors.New("failed to acquire lock")

	// ErrLockTimeout indicates the backup lock stayed held by someone else for the whole wait
	ErrLockTimeout = errors.New("timed out waiting for backup lock")

	// ErrGitOperationFailed indicates a git command returned an error
	ErrGitOperationFailed = errors.New("git operation failed")

	// ErrCommandTimeout indicates a git command was abandoned after its deadline
	ErrCommandTimeout = errors.New("git command timed out")

	// ErrInvalidConfiguration indicates an invalid or conflicting user configuration
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidFlag indicates a command-line flag could not be parsed
	ErrInvalidFlag = errors.New("invalid flag")

	// ErrShutdownTimeout indicates the background worker did not stop in time
	ErrShutdownTimeout = errors.New("timed out waiting for backup worker to stop")

	// ErrManagerClosed indicates an operation was attempted after Shutdown
	ErrManagerClosed = errors.New("backup manager is shut down")
)

// New creates a new error with the given message.
// This is a convenience function that wraps errors.New.
func New(message string) error {
	return errors.New(message)
}

// Errorf creates a new formatted error.
// This is a convenience function that wraps fmt.Errorf.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Wrap wraps an error with a message for better context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message for better context.
func Wrapf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether target is in err's chain.
// This is a convenience function that wraps errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience function that wraps errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
// This is a convenience function that wraps errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// GitError describes a failed git invocation made by the backup runner.
// Operation is the git subcommand ("add", "commit", "push", ...). Args and
// Output are redacted by the runner before the error leaves the git package,
// so a GitError is always safe to log. Err wraps ErrGitOperationFailed for a
// non-zero exit or ErrCommandTimeout for a command killed by its deadline.
type GitError struct {
	Operation string
	Args      []string
	Err       error
	Output    string
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s failed", e.Operation)
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Output)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// ExitCode returns git's exit status, or -1 when the command never exited
// on its own (it timed out, or could not be started). The backup engine
// relies on status 1 from "diff --quiet" meaning "changes staged".
func (e *GitError) ExitCode() int {
	var exited interface{ ExitCode() int }
	if errors.As(e.Err, &exited) {
		return exited.ExitCode()
	}
	return -1
}

// TimedOut reports whether the command was killed by its deadline.
func (e *GitError) TimedOut() bool {
	return errors.Is(e.Err, ErrCommandTimeout)
}

// NewGitError creates a GitError. Callers outside the runner must redact
// args and output themselves.
func NewGitError(operation string, args []string, err error, output string) *GitError {
	return &GitError{
		Operation: operation,
		Args:      args,
		Err:       err,
		Output:    output,
	}
}

// LockError reports a problem with the repository's backup lock marker.
// PID is the holder read from the marker, or 0 when unknown.
type LockError struct {
	LockFile string
	PID      int
	Err      error
}

func (e *LockError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("backup lock %s held by PID %d: %v", e.LockFile, e.PID, e.Err)
	}
	return fmt.Sprintf("backup lock %s: %v", e.LockFile, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// NewLockError creates a LockError.
func NewLockError(lockFile string, pid int, err error) *LockError {
	return &LockError{
		LockFile: lockFile,
		PID:      pid,
		Err:      err,
	}
}

// ConfigError reports an invalid setting. Parameter is the Config field name.
// Values of credential parameters are never printed.
type ConfigError struct {
	Parameter string
	Value     interface{}
	Err       error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Value == nil || e.Value == "":
		return fmt.Sprintf("configuration error for %s: %v", e.Parameter, e.Err)
	case isSecretParameter(e.Parameter):
		return fmt.Sprintf("configuration error for %s = ***: %v", e.Parameter, e.Err)
	default:
		return fmt.Sprintf("configuration error for %s = %v: %v", e.Parameter, e.Value, e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError.
func NewConfigError(parameter string, value interface{}, err error) *ConfigError {
	return &ConfigError{
		Parameter: parameter,
		Value:     value,
		Err:       err,
	}
}

func isSecretParameter(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "token") || strings.Contains(name, "password") || strings.Contains(name, "secret")
}
