package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	statebakErrors "github.com/bashhack/statebak/internal/errors"
)

// waitDelay bounds how long Wait blocks for a killed command's pipes to close.
const waitDelay = 2 * time.Second

// CommandExecutor defines an interface for executing commands
type CommandExecutor interface {
	// ExecuteWithContextAndOutput runs name with args and returns its stdout.
	// A failed command yields a *errors.GitError carrying stderr; a command
	// killed by ctx's deadline yields one wrapping errors.ErrCommandTimeout.
	ExecuteWithContextAndOutput(ctx context.Context, name string, args ...string) (string, error)
}

// ExecExecutor is the default implementation of CommandExecutor
// that delegates to the os/exec package
type ExecExecutor struct {
	// Env is appended to the current process environment for every command.
	Env []string
}

// NewExecExecutor creates a new ExecExecutor
func NewExecExecutor(env ...string) *ExecExecutor {
	return &ExecExecutor{Env: env}
}

// ExecuteWithContextAndOutput implements CommandExecutor
func (e *ExecExecutor) ExecuteWithContextAndOutput(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	operation := name
	if sub := subcommand(args); sub != "" {
		operation = sub
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", statebakErrors.NewGitError(operation, args,
			fmt.Errorf("%w: %w", statebakErrors.ErrCommandTimeout, ctxErr), "")
	}

	// Keep the *exec.ExitError in the chain so callers can inspect exit codes.
	return "", statebakErrors.NewGitError(operation, args,
		fmt.Errorf("%w: %w", statebakErrors.ErrGitOperationFailed, err),
		strings.TrimSpace(stderr.String()))
}

// subcommand returns the first git subcommand in args, skipping "-C <dir>".
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-C":
			i++
		case strings.HasPrefix(args[i], "-"):
		default:
			return args[i]
		}
	}
	return ""
}

// ExitCode returns the git exit status carried by err, or -1.
func ExitCode(err error) int {
	var gitErr *statebakErrors.GitError
	if statebakErrors.As(err, &gitErr) {
		return gitErr.ExitCode()
	}
	var exitErr *exec.ExitError
	if statebakErrors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
