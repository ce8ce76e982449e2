package git

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/logger"
)

const testToken = "ghp_testtoken123"

func newTestRunner(t *testing.T, executor CommandExecutor) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	log := logger.NewWithOutput(false, "", true, &stdout, &stderr)
	return NewRunner("/repo", executor, log, time.Second, testToken), &stdout, &stderr
}

func TestRunner_Success(t *testing.T) {
	t.Parallel()

	executor := &MockExecutor{}
	executor.On("ExecuteWithContextAndOutput", "rev-parse HEAD").Return("abc123\n", nil)

	runner, _, _ := newTestRunner(t, executor)
	out, err := runner.Run(context.Background(), "rev-parse", "HEAD")

	require.NoError(t, err)
	assert.Equal(t, "abc123", out)
	executor.AssertExpectations(t)
}

func TestRunner_Failures(t *testing.T) {
	t.Parallel()

	authURL := "https://" + testToken + "@github.com/acme/state.git"

	tests := map[string]struct {
		err         error
		wantErr     error
		wantStdout  string
		wantStderr  string
		wantMessage string
	}{
		"known failure is logged as a warning": {
			err: statebakErrors.NewGitError("push", []string{"push", authURL},
				statebakErrors.ErrGitOperationFailed, "fatal: unable to access '"+authURL+"/': 403"),
			wantErr:     statebakErrors.ErrGitOperationFailed,
			wantStdout:  "Git command failed",
			wantMessage: "https://***@github.com/acme/state.git",
		},
		"timeout is logged distinctly": {
			err:        gitTimeout("push"),
			wantErr:    statebakErrors.ErrCommandTimeout,
			wantStderr: "Git command timed out after 1s: git push origin main",
		},
		"foreign error is wrapped and redacted": {
			err:         statebakErrors.New("dial " + authURL + ": refused"),
			wantErr:     statebakErrors.ErrGitOperationFailed,
			wantStdout:  "Git command failed",
			wantMessage: "https://***@github.com",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			executor := &MockExecutor{}
			executor.On("ExecuteWithContextAndOutput", "push origin main").Return("", tc.err)

			runner, stdout, stderr := newTestRunner(t, executor)
			_, err := runner.Run(context.Background(), "push", "origin", "main")

			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.NotContains(t, err.Error(), testToken)
			assert.NotContains(t, stdout.String(), testToken)
			assert.NotContains(t, stderr.String(), testToken)

			if tc.wantStdout != "" {
				assert.Contains(t, stdout.String(), tc.wantStdout)
			}
			if tc.wantStderr != "" {
				assert.Contains(t, stderr.String(), tc.wantStderr)
			}
			if tc.wantMessage != "" {
				assert.Contains(t, err.Error(), tc.wantMessage)
			}

			var gitErr *statebakErrors.GitError
			if statebakErrors.As(err, &gitErr) {
				for _, arg := range gitErr.Args {
					assert.NotContains(t, arg, testToken)
				}
			}
		})
	}
}

func TestRunner_Check(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err        func(t *testing.T) error
		wantCode   int
		wantErr    error
		wantStderr string
	}{
		"expected exit is quiet": {
			err:      func(t *testing.T) error { return gitFailure(t, "diff", 1, "") },
			wantCode: 1,
			wantErr:  statebakErrors.ErrGitOperationFailed,
		},
		"timeout is still an error": {
			err:        func(*testing.T) error { return gitTimeout("diff") },
			wantCode:   -1,
			wantErr:    statebakErrors.ErrCommandTimeout,
			wantStderr: "Git command timed out after 1s: git diff --cached --quiet",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			executor := &MockExecutor{}
			executor.On("ExecuteWithContextAndOutput", "diff --cached --quiet").Return("", tc.err(t))

			runner, stdout, stderr := newTestRunner(t, executor)
			_, err := runner.Check(context.Background(), "diff", "--cached", "--quiet")

			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantCode, ExitCode(err))
			assert.NotContains(t, stdout.String(), "Git command failed")
			if tc.wantStderr != "" {
				assert.Contains(t, stderr.String(), tc.wantStderr)
			} else {
				assert.Empty(t, stderr.String())
			}
		})
	}
}

func TestRunner_AppliesDeadline(t *testing.T) {
	t.Parallel()

	executor := &deadlineRecorder{}
	runner := NewRunner("/repo", executor, nil, 0)

	_, err := runner.RunWithTimeout(context.Background(), 5*time.Second, "status")
	require.NoError(t, err)

	require.True(t, executor.hasDeadline)
	assert.InDelta(t, 5*time.Second, executor.remaining, float64(time.Second))
	assert.Equal(t, []string{"-C", "/repo", "status"}, executor.args)
}

type deadlineRecorder struct {
	hasDeadline bool
	remaining   time.Duration
	args        []string
}

func (d *deadlineRecorder) ExecuteWithContextAndOutput(ctx context.Context, _ string, args ...string) (string, error) {
	var deadline time.Time
	deadline, d.hasDeadline = ctx.Deadline()
	d.remaining = time.Until(deadline)
	d.args = args
	return "", nil
}

func TestExecExecutor(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Parallel()

	executor := NewExecExecutor(constants.EnvNoPrompt)
	dir := t.TempDir()

	t.Run("success returns stdout", func(t *testing.T) {
		out, err := executor.ExecuteWithContextAndOutput(context.Background(), "git", "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "git version")
	})

	t.Run("failure carries stderr and exit code", func(t *testing.T) {
		_, err := executor.ExecuteWithContextAndOutput(context.Background(), "git", "-C", dir, "rev-parse", "HEAD")
		require.Error(t, err)
		assert.ErrorIs(t, err, statebakErrors.ErrGitOperationFailed)

		var gitErr *statebakErrors.GitError
		require.True(t, statebakErrors.As(err, &gitErr))
		assert.Equal(t, "rev-parse", gitErr.Operation)
		assert.NotEmpty(t, gitErr.Output)
		assert.Equal(t, 128, ExitCode(err))
	})

	t.Run("deadline yields a timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := executor.ExecuteWithContextAndOutput(ctx, "sleep", "5")
		require.Error(t, err)
		assert.ErrorIs(t, err, statebakErrors.ErrCommandTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSubcommand(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		args []string
		want string
	}{
		"with repo flag":   {args: []string{"-C", "/repo", "push", "origin"}, want: "push"},
		"leading flags":    {args: []string{"--no-pager", "log"}, want: "log"},
		"no subcommand":    {args: []string{"--version"}, want: ""},
		"empty":            {args: nil, want: ""},
		"plain subcommand": {args: []string{"add", "--", "a.json"}, want: "add"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, subcommand(tc.args))
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, ExitCode(gitFailure(t, "diff", 1, "")))
	assert.Equal(t, 3, ExitCode(exitError(t, 3)))
	assert.Equal(t, -1, ExitCode(statebakErrors.ErrGitOperationFailed))
	assert.Equal(t, -1, ExitCode(nil))
}
