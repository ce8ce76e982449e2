package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	statebakErrors "github.com/bashhack/statebak/internal/errors"
)

// MockExecutor is a testify mock of CommandExecutor. Expectations are keyed
// by the git command line without the leading "-C <repo>", e.g.
// m.On("Git", "push origin main").
type MockExecutor struct {
	mock.Mock

	mu       sync.Mutex
	commands []string
}

// ExecuteWithContextAndOutput implements CommandExecutor
func (m *MockExecutor) ExecuteWithContextAndOutput(_ context.Context, name string, args ...string) (string, error) {
	line := strings.Join(stripRepoFlag(args), " ")

	m.mu.Lock()
	m.commands = append(m.commands, line)
	m.mu.Unlock()

	ret := m.Called(line)
	return ret.String(0), ret.Error(1)
}

// Commands returns the recorded command lines in call order.
func (m *MockExecutor) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

func stripRepoFlag(args []string) []string {
	if len(args) >= 2 && args[0] == "-C" {
		return args[2:]
	}
	return args
}

// exitError produces a real *exec.ExitError with the given status.
func exitError(t *testing.T, code int) error {
	t.Helper()

	err := exec.Command("sh", "-c", fmt.Sprintf("exit %d", code)).Run()
	require.Error(t, err)
	return err
}

// gitFailure builds the error ExecExecutor returns for a failed command.
func gitFailure(t *testing.T, op string, code int, stderr string) error {
	t.Helper()

	return statebakErrors.NewGitError(op, nil,
		fmt.Errorf("%w: %w", statebakErrors.ErrGitOperationFailed, exitError(t, code)), stderr)
}

// gitTimeout builds the error ExecExecutor returns for a command killed by its deadline.
func gitTimeout(op string) error {
	return statebakErrors.NewGitError(op, nil,
		fmt.Errorf("%w: %w", statebakErrors.ErrCommandTimeout, context.DeadlineExceeded), "")
}

// fakeLocker records lock usage without touching the filesystem.
type fakeLocker struct {
	mu         sync.Mutex
	acquireErr error
	acquired   int
	released   int
	timeouts   []time.Duration
}

func (f *fakeLocker) Acquire(_ context.Context, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.timeouts = append(f.timeouts, timeout)
	if f.acquireErr != nil {
		return f.acquireErr
	}
	f.acquired++
	return nil
}

func (f *fakeLocker) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *fakeLocker) counts() (acquired, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released
}
