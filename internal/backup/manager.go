package backup

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bashhack/statebak/internal/config"
	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/git"
	"github.com/bashhack/statebak/internal/lock"
	"github.com/bashhack/statebak/internal/logger"
	"github.com/bashhack/statebak/internal/metrics"
	"github.com/bashhack/statebak/internal/queue"
)

const (
	// DefaultPanicBackoff is how long the worker sleeps after recovering a panic.
	DefaultPanicBackoff = 5 * time.Second

	// DefaultCancelGrace is how long Shutdown waits for the worker to return
	// once its in-flight cycle has been cancelled.
	DefaultCancelGrace = 2 * time.Second
)

// Options carries the Manager's collaborators. All fields are optional.
type Options struct {
	Logger  logger.Logger
	Metrics *metrics.Metrics

	// Executor runs git. Defaults to the os/exec implementation with
	// interactive prompts disabled.
	Executor git.CommandExecutor
}

// cycleRunner is the part of git.Engine the manager depends on.
type cycleRunner interface {
	RunCycle(ctx context.Context, files []string) (git.Result, error)
}

// Manager owns the pending-change queue and the background worker that
// flushes it. There is one Manager per repository per process; it is created
// by the application and passed to whoever produces changes.
type Manager struct {
	config  *config.Config
	logger  logger.Logger
	metrics *metrics.Metrics
	queue   *queue.Queue
	engine  cycleRunner

	// cycleSem keeps this process's cycles from polling the lock file
	// against each other. It is a channel so waiting can be cancelled.
	cycleSem chan struct{}

	// closeMu orders QueueBackup's add against the final drain.
	closeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}

	panicBackoff time.Duration
	cancelGrace  time.Duration

	shutdownOnce sync.Once
	shutdownErr  error
	stopping     atomic.Bool
	closed       bool
}

// New bootstraps the repository described by cfg and starts the background
// worker. cfg must already be finalized. Bootstrap failures are returned and
// no worker is started.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Manager, error) {
	if err := cfg.RequireRemote(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log.AddSecret(cfg.AuthToken)

	executor := opts.Executor
	if executor == nil {
		executor = git.NewExecExecutor(constants.EnvNoPrompt)
	}

	runner := git.NewRunner(cfg.RepoPath, executor, log, cfg.CommandTimeout, cfg.AuthToken)

	bootstrapper := git.NewBootstrapper(git.BootstrapConfig{
		RepoPath:    cfg.RepoPath,
		RemoteURL:   cfg.RemoteURL,
		AuthToken:   cfg.AuthToken,
		Branch:      cfg.Branch,
		AuthorName:  cfg.AuthorName,
		AuthorEmail: cfg.AuthorEmail,
	}, runner, log)
	if err := bootstrapper.Bootstrap(ctx); err != nil {
		return nil, statebakErrors.Wrap(err, "repository bootstrap failed")
	}

	locker := lock.New(cfg.RepoPath, lock.Options{
		StaleAfter:   cfg.StaleAfter,
		PollInterval: cfg.LockPollInterval,
		Logger:       log,
	})

	engine := git.NewEngine(git.EngineConfig{
		RepoPath:    cfg.RepoPath,
		Branch:      cfg.Branch,
		LockTimeout: cfg.LockTimeout,
		PushTimeout: cfg.PushTimeout,
	}, runner, locker, log)

	return start(cfg, log, opts.Metrics, engine), nil
}

// start builds a Manager around engine and launches the worker.
func start(cfg *config.Config, log logger.Logger, m *metrics.Metrics, engine cycleRunner) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		config:       cfg,
		logger:       log,
		metrics:      m,
		queue:        queue.New(cfg.BatchInterval, cfg.BatchSize),
		engine:       engine,
		cycleSem:     make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		panicBackoff: DefaultPanicBackoff,
		cancelGrace:  DefaultCancelGrace,
	}

	go mgr.run()
	log.Info("Backup worker started (interval %s, batch %d files / %s)",
		cfg.WorkerInterval, cfg.BatchSize, cfg.BatchInterval)
	return mgr
}

// QueueBackup marks name as changed. It never blocks on git and never fails;
// invalid names are logged and ignored.
func (m *Manager) QueueBackup(name string) {
	clean, err := config.CleanRelative(name)
	if err != nil {
		m.logger.Warning("Ignoring backup request: %v", err)
		return
	}

	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed {
		m.logger.Warning("Backup manager is shut down; dropping change to %s", clean)
		m.metrics.Dropped(1)
		return
	}

	m.queue.Add(clean)
	m.metrics.SetPending(m.queue.Len())
}

// BackupNow runs a cycle for names on the calling goroutine and reports
// whether the files are safely pushed. It bypasses the queue.
func (m *Manager) BackupNow(ctx context.Context, names []string) error {
	if m.isClosed() {
		return statebakErrors.ErrManagerClosed
	}

	files := make([]string, 0, len(names))
	for _, name := range names {
		clean, err := config.CleanRelative(name)
		if err != nil {
			return err
		}
		files = append(files, clean)
	}

	_, err := m.runCycle(ctx, files)
	return err
}

// Pending returns the number of queued files.
func (m *Manager) Pending() int {
	return m.queue.Len()
}

// Shutdown stops the worker, flushes whatever is still queued once, and
// returns. The wait for an in-flight worker cycle is bounded by the
// configured shutdown timeout and by ctx; when either runs out the cycle is
// cancelled. The final flush is bounded only by the per-command git
// timeouts, so a slow last push is not cut short. It is safe to call more
// than once; later calls return the first call's result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.shutdownErr = m.shutdown(ctx)
	})
	return m.shutdownErr
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down backup manager")
	m.stopping.Store(true)
	close(m.stop)

	var errs []error
	stopped, err := m.waitForWorker(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	m.closeMu.Lock()
	files := m.queue.Drain()
	m.closed = true
	m.closeMu.Unlock()
	m.metrics.SetPending(0)

	switch {
	case len(files) == 0:
	case !stopped:
		m.logger.Error("Backup worker is still running; dropping %d pending file(s): %s",
			len(files), strings.Join(files, ", "))
		m.metrics.Dropped(len(files))
	default:
		m.logger.InfoToUser("Flushing %d pending file(s) before exit: %s", len(files), strings.Join(files, ", "))
		if _, err := m.runCycle(context.WithoutCancel(ctx), files); err != nil {
			errs = append(errs, statebakErrors.Wrap(err, "final backup failed"))
		}
		m.queue.MarkFlushed()
	}

	m.cancel()
	return statebakErrors.Join(errs...)
}

// waitForWorker waits for the worker to return. If it is still busy when
// the shutdown timeout or ctx runs out, its cycle is cancelled and it gets
// cancelGrace more to return. stopped reports whether it did.
func (m *Manager) waitForWorker(ctx context.Context) (stopped bool, err error) {
	timer := time.NewTimer(m.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-m.done:
		m.logger.Info("Backup worker stopped")
		return true, nil
	case <-timer.C:
		m.logger.Error("Backup worker did not stop within %s; cancelling its cycle", m.config.ShutdownTimeout)
		err = statebakErrors.ErrShutdownTimeout
	case <-ctx.Done():
		m.logger.Error("Shutdown interrupted: %v", ctx.Err())
		err = statebakErrors.Wrap(statebakErrors.ErrShutdownTimeout, ctx.Err().Error())
	}

	m.cancel()
	select {
	case <-m.done:
		return true, err
	case <-time.After(m.cancelGrace):
		return false, err
	}
}

func (m *Manager) isClosed() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	return m.closed
}

// run is the worker loop.
func (m *Manager) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.config.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		if !m.tick() {
			continue
		}

		select {
		case <-m.stop:
			return
		case <-time.After(m.panicBackoff):
		}
	}
}

// tick flushes the queue if it is due. It reports whether a panic was
// recovered, in which case the caller backs off.
func (m *Manager) tick() (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Backup worker error: %v", r)
			m.metrics.WorkerPanic()
			panicked = true
		}
	}()

	m.metrics.SetPending(m.queue.Len())
	if m.stopping.Load() || !m.queue.ShouldFlush() {
		return false
	}

	files := m.queue.Drain()
	if len(files) == 0 {
		return false
	}
	defer m.queue.MarkFlushed()

	result, err := m.runCycle(m.ctx, files)
	if err != nil && !result.Succeeded() {
		m.handleFailure(result)
	}
	return false
}

func (m *Manager) handleFailure(result git.Result) {
	if len(result.Files) == 0 {
		return
	}

	if m.config.RequeueOnFailure && result.Status != git.StatusPushFailed {
		for _, name := range result.Files {
			m.queue.Add(name)
		}
		m.logger.Info("Re-queued %d file(s) after failed cycle", len(result.Files))
		return
	}

	if result.Status == git.StatusPushFailed {
		// The commit exists locally and goes out with the next push.
		return
	}

	m.logger.Warning("Dropping %d file(s) after failed cycle: %s", len(result.Files), strings.Join(result.Files, ", "))
	m.metrics.Dropped(len(result.Files))
}

// runCycle runs one engine cycle, serialized within the process, and
// records its outcome.
func (m *Manager) runCycle(ctx context.Context, files []string) (git.Result, error) {
	select {
	case m.cycleSem <- struct{}{}:
	case <-ctx.Done():
		m.logger.Warning("Gave up waiting for the running backup: %v", ctx.Err())
		return git.Result{Status: git.StatusFailed, Files: files},
			statebakErrors.Wrap(ctx.Err(), "waiting for the running backup")
	}
	defer func() { <-m.cycleSem }()

	result, err := m.engine.RunCycle(ctx, files)
	m.metrics.ObserveCycle(result.Status.String(), result.Succeeded(), len(result.Files), result.Duration, result.LockWait)

	switch result.Status {
	case git.StatusPushed:
		m.logger.Success("Backed up %s", strings.Join(result.Files, ", "))
	case git.StatusPushFailed:
		m.logger.WarningToUser("Committed %s locally but could not push; will retry with the next backup",
			strings.Join(result.Files, ", "))
	}

	return result, err
}
