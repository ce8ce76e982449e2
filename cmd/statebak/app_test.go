package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashhack/statebak/internal/backup"
	"github.com/bashhack/statebak/internal/config"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/logger"
)

const testRemote = "https://github.com/acme/state.git"

// fakeManager records what the commands ask of the backup manager.
type fakeManager struct {
	mu          sync.Mutex
	queued      []string
	backedUp    [][]string
	backupErr   error
	shutdownErr error
	shutdowns   int
	onQueue     func(name string)
}

func (f *fakeManager) QueueBackup(name string) {
	f.mu.Lock()
	f.queued = append(f.queued, name)
	hook := f.onQueue
	f.mu.Unlock()

	if hook != nil {
		hook(name)
	}
}

func (f *fakeManager) BackupNow(_ context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backedUp = append(f.backedUp, names)
	return f.backupErr
}

func (f *fakeManager) Pending() int { return 0 }

func (f *fakeManager) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return f.shutdownErr
}

type testApp struct {
	*App
	stdout   *bytes.Buffer
	manager  *fakeManager
	repo     string
	started  int
	startCfg *config.Config
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	var stdout, stderr bytes.Buffer
	ta := &testApp{
		stdout:  &stdout,
		manager: &fakeManager{},
		repo:    t.TempDir(),
	}

	cfg := config.New()
	cfg.VersionInfo = config.VersionInfo{Version: "1.2.3", Commit: "abc1234", Date: "2026-10-19"}
	cfg.LogFile = filepath.Join(t.TempDir(), "statebak.log")

	ta.App = NewApp(AppOptions{
		Config: cfg,
		Logger: logger.NewWithOutput(false, "", false, &stdout, &stderr),
		NewManager: func(_ context.Context, cfg *config.Config, _ backup.Options) (BackupService, error) {
			ta.started++
			ta.startCfg = cfg
			return ta.manager, nil
		},
		Stdout:       &stdout,
		Stderr:       &stderr,
		Exit:         func(int) {},
		ExecLookPath: func(string) (string, error) { return "/usr/bin/git", nil },
	})
	return ta
}

func (ta *testApp) args(extra ...string) []string {
	return append([]string{"statebak", "--repo", ta.repo}, extra...)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	require.NoError(t, ta.Execute(context.Background(), ta.args("version")))

	assert.Contains(t, ta.stdout.String(), "statebak 1.2.3 (abc1234) built on 2026-10-19")
	assert.Zero(t, ta.started)
}

func TestBackupCommand(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		args        []string
		setup       func(ta *testApp)
		wantErr     error
		wantErrText string
		wantBackups [][]string
		wantStarted int
	}{
		"success": {
			args:        []string{"--remote", testRemote, "backup", "users.json", "orders.json"},
			wantBackups: [][]string{{"users.json", "orders.json"}},
			wantStarted: 1,
		},
		"no files": {
			args:    []string{"--remote", testRemote, "backup"},
			wantErr: statebakErrors.ErrInvalidFlag,
		},
		"no remote": {
			args:    []string{"backup", "users.json"},
			wantErr: statebakErrors.ErrInvalidConfiguration,
		},
		"git missing": {
			args: []string{"--remote", testRemote, "backup", "users.json"},
			setup: func(ta *testApp) {
				ta.execLookPath = func(string) (string, error) { return "", errors.New("not found") }
			},
			wantErrText: "git is not found in PATH",
		},
		"cycle failure": {
			args: []string{"--remote", testRemote, "backup", "users.json"},
			setup: func(ta *testApp) {
				ta.manager.backupErr = statebakErrors.ErrLockTimeout
			},
			wantErr:     statebakErrors.ErrLockTimeout,
			wantBackups: [][]string{{"users.json"}},
			wantStarted: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ta := newTestApp(t)
			if tc.setup != nil {
				tc.setup(ta)
			}

			err := ta.Execute(context.Background(), ta.args(tc.args...))

			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.wantErrText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErrText)
			default:
				require.NoError(t, err)
				assert.Contains(t, ta.stdout.String(), "Backup complete")
			}

			assert.Equal(t, tc.wantStarted, ta.started)
			assert.Equal(t, tc.wantBackups, ta.manager.backedUp)
			assert.Equal(t, tc.wantStarted, ta.manager.shutdowns, "a started manager is always shut down")
		})
	}
}

func TestBackupCommand_ConfigFile(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	path := filepath.Join(t.TempDir(), "statebak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"remote_url: "+testRemote+"\nbranch: backups\nlock_timeout: 12s\n"), 0o600))

	require.NoError(t, ta.Execute(context.Background(), ta.args("--config", path, "--branch", "override", "backup", "a.json")))

	require.NotNil(t, ta.startCfg)
	assert.Equal(t, testRemote, ta.startCfg.RemoteURL)
	assert.Equal(t, "override", ta.startCfg.Branch, "flags win over the config file")
	assert.Equal(t, 12*time.Second, ta.startCfg.LockTimeout)
	assert.Equal(t, ta.repo, ta.startCfg.RepoPath)
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(ta.repo, "state.json"), []byte(`{}`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ta.manager.onQueue = func(string) { cancel() }

	err := ta.Execute(ctx, ta.args("--remote", testRemote, "run",
		"-f", "state.json", "--watch-interval", "10ms", "--batch-size", "2"))
	require.NoError(t, err)

	assert.Equal(t, []string{"state.json"}, ta.manager.queued)
	assert.Equal(t, 1, ta.manager.shutdowns)
	assert.Equal(t, 2, ta.startCfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, ta.startCfg.WatchInterval)
	assert.Nil(t, ta.Manager)
}

func TestRunCommand_ShutdownErrorIsReported(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	ta.manager.shutdownErr = statebakErrors.ErrShutdownTimeout

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ta.Execute(ctx, ta.args("--remote", testRemote, "run"))
	assert.ErrorIs(t, err, statebakErrors.ErrShutdownTimeout)
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(ta.repo, "users.json"), []byte(`{"users":[]}`), 0o644))

	err := ta.Execute(context.Background(), ta.args(
		"--remote", "https://s3cr3t@github.com/acme/state.git", "status"))
	require.NoError(t, err)

	out := ta.stdout.String()
	assert.Contains(t, out, "statebak status")
	assert.Contains(t, out, "free")
	assert.Contains(t, out, "repository not initialized")
	assert.Contains(t, out, "https://github.com/acme/state.git")
	assert.NotContains(t, out, "s3cr3t")
	assert.Zero(t, ta.started, "status never bootstraps")
}

func TestStatusCommand_LockHeld(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t)
	require.NoError(t, os.Mkdir(filepath.Join(ta.repo, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ta.repo, ".git", "backup.lock"), []byte("4242"), 0o644))

	require.NoError(t, ta.Execute(context.Background(), ta.args("status")))
	assert.Contains(t, ta.stdout.String(), "held by PID 4242")
}

func TestClose(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		manager *fakeManager
		wantErr error
	}{
		"no manager":       {},
		"clean shutdown":   {manager: &fakeManager{}},
		"shutdown failure": {manager: &fakeManager{shutdownErr: statebakErrors.ErrShutdownTimeout}, wantErr: statebakErrors.ErrShutdownTimeout},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ta := newTestApp(t)
			if tc.manager != nil {
				ta.Manager = tc.manager
			}

			err := ta.Close()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}

			if tc.manager != nil {
				assert.Equal(t, 1, tc.manager.shutdowns)
			}
		})
	}
}

func TestNewApp_PanicsWithoutConfig(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewApp(AppOptions{}) })
}
