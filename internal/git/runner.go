package git

import (
	"context"
	"strings"
	"time"

	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/logger"
)

const (
	// DefaultCommandTimeout bounds every git invocation except push.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultPushTimeout bounds git push, which talks to the network.
	DefaultPushTimeout = 60 * time.Second
)

// Runner executes git commands against one repository. Every call has its
// own deadline and every diagnostic it emits is redacted.
type Runner struct {
	repoPath string
	executor CommandExecutor
	logger   logger.Logger
	secrets  []string
	timeout  time.Duration
}

// NewRunner creates a Runner. secrets are masked in all logged output and in
// returned errors.
func NewRunner(repoPath string, executor CommandExecutor, log logger.Logger, timeout time.Duration, secrets ...string) *Runner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Runner{
		repoPath: repoPath,
		executor: executor,
		logger:   log,
		secrets:  secrets,
		timeout:  timeout,
	}
}

// Run executes git with the default timeout.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunWithTimeout(ctx, r.timeout, args...)
}

// RunWithTimeout executes "git -C <repo> args..." and returns trimmed stdout.
func (r *Runner) RunWithTimeout(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	return r.run(ctx, timeout, false, args)
}

// Check runs a git command whose non-zero exit is an answer rather than a
// fault, such as "diff --quiet" or "remote get-url". Such exits are logged
// at info level only; timeouts are still reported as errors.
func (r *Runner) Check(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, r.timeout, true, args)
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, expectFailure bool, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allArgs := append([]string{"-C", r.repoPath}, args...)
	out, err := r.executor.ExecuteWithContextAndOutput(ctx, "git", allArgs...)
	if err == nil {
		return strings.TrimSpace(out), nil
	}

	err = r.sanitize(err)
	cmdLine := r.redact("git " + strings.Join(args, " "))
	switch {
	case statebakErrors.Is(err, statebakErrors.ErrCommandTimeout):
		r.logger.Error("Git command timed out after %s: %s", timeout, cmdLine)
	case expectFailure:
		r.logger.Info("Git command exited with status %d: %s", ExitCode(err), cmdLine)
	default:
		r.logger.Warning("Git command failed: %s: %v", cmdLine, err)
	}
	return "", err
}

// sanitize redacts the output and arguments carried by a GitError.
func (r *Runner) sanitize(err error) error {
	var gitErr *statebakErrors.GitError
	if !statebakErrors.As(err, &gitErr) {
		return statebakErrors.Wrap(statebakErrors.ErrGitOperationFailed, r.redact(err.Error()))
	}

	args := make([]string, len(gitErr.Args))
	for i, a := range gitErr.Args {
		args[i] = r.redact(a)
	}
	gitErr.Args = args
	gitErr.Output = r.redact(gitErr.Output)
	return gitErr
}

func (r *Runner) redact(text string) string {
	return Redact(text, r.secrets...)
}
