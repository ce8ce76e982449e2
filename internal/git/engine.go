package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/lock"
	"github.com/bashhack/statebak/internal/logger"
)

// Status is the outcome of one backup cycle.
type Status int

const (
	// StatusNoFiles means there was nothing on disk to back up.
	StatusNoFiles Status = iota
	// StatusNothingToCommit means the files matched the last commit.
	StatusNothingToCommit
	// StatusPushed means a commit was created and pushed.
	StatusPushed
	// StatusPushFailed means the commit exists locally but could not be pushed.
	StatusPushFailed
	// StatusFailed means the cycle was abandoned before a commit was made.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNoFiles:
		return "no_files"
	case StatusNothingToCommit:
		return "nothing_to_commit"
	case StatusPushed:
		return "pushed"
	case StatusPushFailed:
		return "push_failed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result describes one backup cycle. It is logged and counted, never stored.
type Result struct {
	ID       string
	Status   Status
	Files    []string
	Skipped  []string
	Message  string
	LockWait time.Duration
	Duration time.Duration
}

// Succeeded reports whether the cycle left nothing to retry.
func (r Result) Succeeded() bool {
	switch r.Status {
	case StatusNoFiles, StatusNothingToCommit, StatusPushed:
		return true
	default:
		return false
	}
}

// Locker is the cross-process lock a cycle runs under.
type Locker interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release()
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	RepoPath    string
	Branch      string
	LockTimeout time.Duration
	PushTimeout time.Duration
}

// Engine runs backup cycles: stage the named files, commit if anything
// changed, push, all under the repository lock.
type Engine struct {
	config EngineConfig
	runner *Runner
	locker Locker
	logger logger.Logger
	now    func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(config EngineConfig, runner *Runner, locker Locker, log logger.Logger) *Engine {
	if config.Branch == "" {
		config.Branch = constants.DefaultBranch
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = lock.DefaultTimeout
	}
	if config.PushTimeout <= 0 {
		config.PushTimeout = DefaultPushTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Engine{
		config: config,
		runner: runner,
		locker: locker,
		logger: log,
		now:    time.Now,
	}
}

// RunCycle backs up files. A nil error means the files are committed and
// pushed, or there was nothing to do. Panics inside the cycle are recovered
// and reported as errors; the lock is released on every path.
func (e *Engine) RunCycle(ctx context.Context, files []string) (result Result, err error) {
	start := e.now()
	result = Result{ID: uuid.NewString(), Status: StatusNoFiles}
	log := e.logger.With("cycle", result.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Unexpected error during backup: %v", r)
			result.Status = StatusFailed
			err = statebakErrors.Errorf("backup cycle panicked: %v", r)
		}
		result.Duration = e.now().Sub(start)
	}()

	if len(files) == 0 {
		return result, nil
	}

	result.Files, result.Skipped = e.existing(files)
	for _, name := range result.Skipped {
		log.Warning("File not found: %s", name)
	}
	if len(result.Files) == 0 {
		log.Info("No files to backup")
		return result, nil
	}

	lockStart := e.now()
	if err := e.locker.Acquire(ctx, e.config.LockTimeout); err != nil {
		log.Error("Failed to acquire git lock, skipping backup: %v", err)
		result.Status = StatusFailed
		result.LockWait = e.now().Sub(lockStart)
		return result, err
	}
	defer e.locker.Release()
	result.LockWait = e.now().Sub(lockStart)

	if err := e.stage(ctx, log, result.Files); err != nil {
		result.Status = StatusFailed
		return result, err
	}

	changed, err := e.hasStagedChanges(ctx, result.Files)
	if err != nil {
		result.Status = StatusFailed
		return result, err
	}
	if !changed {
		log.Info("No changes to commit")
		result.Status = StatusNothingToCommit
		return result, nil
	}

	result.Message = e.commitMessage(result.Files)
	commitArgs := append([]string{"commit", "-m", result.Message, "--"}, result.Files...)
	if _, err := e.runner.Run(ctx, commitArgs...); err != nil {
		log.Error("Failed to commit: %v", err)
		result.Status = StatusFailed
		return result, err
	}
	log.Info("Committed: %s", result.Message)

	if err := e.push(ctx, log); err != nil {
		result.Status = StatusPushFailed
		return result, err
	}

	log.Info("Successfully pushed: %s", strings.Join(result.Files, ", "))
	result.Status = StatusPushed
	return result, nil
}

// existing splits files into those present on disk and those missing.
func (e *Engine) existing(files []string) (present, missing []string) {
	for _, name := range files {
		if _, err := os.Stat(filepath.Join(e.config.RepoPath, name)); err != nil {
			missing = append(missing, name)
			continue
		}
		present = append(present, name)
	}
	return present, missing
}

// stage adds each file individually so a failure names the offending file.
func (e *Engine) stage(ctx context.Context, log logger.Logger, files []string) error {
	for _, name := range files {
		if _, err := e.runner.Run(ctx, "add", "--", name); err != nil {
			log.Error("Failed to stage %s: %v", name, err)
			return statebakErrors.Wrapf(err, "failed to stage %s", name)
		}
	}
	return nil
}

// hasStagedChanges reports whether the index differs from HEAD for files.
func (e *Engine) hasStagedChanges(ctx context.Context, files []string) (bool, error) {
	args := append([]string{"diff", "--cached", "--quiet", "--"}, files...)
	_, err := e.runner.Check(ctx, args...)
	if err == nil {
		return false, nil
	}
	if ExitCode(err) == 1 {
		return true, nil
	}
	return false, statebakErrors.Wrap(err, "failed to compare index with HEAD")
}

// push pushes the branch, retrying once with --set-upstream so a branch
// that has never been pushed heals itself.
func (e *Engine) push(ctx context.Context, log logger.Logger) error {
	branch := e.config.Branch
	_, err := e.runner.RunWithTimeout(ctx, e.config.PushTimeout, "push", constants.RemoteName, branch)
	if err == nil {
		return nil
	}
	log.Warning("Push failed, retrying with upstream set: %v", err)

	_, retryErr := e.runner.RunWithTimeout(ctx, e.config.PushTimeout, "push", "-u", constants.RemoteName, branch)
	if retryErr == nil {
		return nil
	}
	log.Error("Failed to push to remote: %v", retryErr)
	return statebakErrors.Wrap(retryErr, "push failed after setting upstream")
}

func (e *Engine) commitMessage(files []string) string {
	return fmt.Sprintf("%s: %s - %s", constants.CommitPrefix, strings.Join(files, ", "),
		e.now().Format(constants.CommitTimeFormat))
}
