package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danjacques/gofslock/fslock"

	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/logger"
)

const (
	// FileName is the marker name inside the repository's .git directory.
	FileName = "backup.lock"

	// DefaultTimeout bounds how long a queued backup cycle waits for the lock.
	DefaultTimeout = 30 * time.Second

	// DefaultStaleAfter is the marker age after which its holder is presumed dead.
	DefaultStaleAfter = 300 * time.Second

	// DefaultPollInterval is the sleep between acquisition attempts.
	DefaultPollInterval = 500 * time.Millisecond
)

// Options tunes a Locker. Zero values select the defaults.
type Options struct {
	StaleAfter   time.Duration
	PollInterval time.Duration
	Logger       logger.Logger
}

// Holder describes the process currently holding the marker.
type Holder struct {
	PID   int
	Since time.Time
	Age   time.Duration
}

// Locker is a cross-process mutual exclusion primitive backed by a marker
// file. The marker's existence is the lock: it is created with O_EXCL and
// removed on release. A marker older than StaleAfter is treated as orphaned
// by a crashed holder and may be removed by any acquirer.
type Locker struct {
	lockFile     string
	guardFile    string
	pid          int
	staleAfter   time.Duration
	pollInterval time.Duration
	logger       logger.Logger
	now          func() time.Time

	mu   sync.Mutex
	held bool
}

// New creates a Locker for the repository at repoPath. The marker lives at
// <repoPath>/.git/backup.lock.
func New(repoPath string, opts Options) *Locker {
	return NewAtPath(filepath.Join(repoPath, ".git", FileName), opts)
}

// NewAtPath creates a Locker using an explicit marker path.
func NewAtPath(lockFile string, opts Options) *Locker {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	return &Locker{
		lockFile:     lockFile,
		guardFile:    lockFile + ".guard",
		pid:          os.Getpid(),
		staleAfter:   opts.StaleAfter,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// Path returns the marker path.
func (l *Locker) Path() string {
	return l.lockFile
}

// Acquire blocks until the marker is created, the timeout elapses, or ctx is
// done. A timeout of zero makes a single attempt.
func (l *Locker) Acquire(ctx context.Context, timeout time.Duration) error {
	start := l.now()

	for {
		created, err := l.tryCreate()
		if err != nil {
			return err
		}
		if created {
			l.mu.Lock()
			l.held = true
			l.mu.Unlock()
			l.logger.Info("Lock acquired: %s", l.lockFile)
			return nil
		}

		if l.removeIfStale() {
			continue
		}

		if elapsed := l.now().Sub(start); elapsed >= timeout {
			l.logger.Error("Failed to acquire lock after %s", timeout)
			return statebakErrors.NewLockError(l.lockFile, l.readPID(), statebakErrors.ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return statebakErrors.NewLockError(l.lockFile, 0,
				statebakErrors.Wrap(ctx.Err(), "lock wait cancelled"))
		case <-time.After(l.pollInterval):
		}
	}
}

// tryCreate attempts the atomic create. It reports false without error when
// the marker already exists.
func (l *Locker) tryCreate() (bool, error) {
	f, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, statebakErrors.NewLockError(l.lockFile, 0,
			statebakErrors.Wrap(statebakErrors.ErrLockAcquisitionFailure, err.Error()))
	}

	// The payload is diagnostic only; failing to write it does not void the lock.
	if _, err := f.WriteString(strconv.Itoa(l.pid)); err != nil {
		l.logger.Warning("Failed to write PID to lock file: %v", err)
	}
	if err := f.Close(); err != nil {
		l.logger.Warning("Failed to close lock file: %v", err)
	}
	return true, nil
}

// removeIfStale removes the marker when it is older than staleAfter. It
// reports whether the caller should retry creation right away.
func (l *Locker) removeIfStale() bool {
	seen, err := os.Stat(l.lockFile)
	if err != nil {
		// Released between our create attempt and the stat.
		return os.IsNotExist(err)
	}

	age := l.now().Sub(seen.ModTime())
	if age <= l.staleAfter {
		return false
	}

	// Only one process may judge and remove a given stale marker; otherwise a
	// slow recoverer could delete the fresh marker of a faster one.
	err = fslock.With(l.guardFile, func() error {
		current, err := os.Stat(l.lockFile)
		if err != nil {
			return nil
		}
		if !os.SameFile(current, seen) || !current.ModTime().Equal(seen.ModTime()) {
			return nil
		}

		l.logger.Warning("Removing stale lock held by PID %d (age: %s)", l.readPID(), age.Round(time.Second))
		if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
	// Leave no guard behind; the marker is the only file kept in .git. A
	// recoverer that raced on the deleted guard still re-checks the marker.
	if err != fslock.ErrLockHeld {
		if rmErr := os.Remove(l.guardFile); rmErr != nil && !os.IsNotExist(rmErr) {
			l.logger.Warning("Failed to remove lock guard %s: %v", l.guardFile, rmErr)
		}
	}

	switch {
	case err == nil:
		return true
	case err == fslock.ErrLockHeld:
		return false
	default:
		l.logger.Warning("Failed to remove stale lock %s: %v", l.lockFile, err)
		return false
	}
}

// Release removes the marker. It never fails: errors are logged and the
// in-process state is cleared so the next cycle can proceed.
func (l *Locker) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.held = false

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		l.logger.Error("Error releasing lock %s: %v", l.lockFile, err)
		return
	}
	l.logger.Info("Lock released: %s", l.lockFile)
}

// WithLock runs fn while holding the lock and releases it on every exit
// path, including a panic in fn.
func (l *Locker) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	if err := l.Acquire(ctx, timeout); err != nil {
		return err
	}
	defer l.Release()

	return fn()
}

// Held reports whether this Locker currently holds the marker.
func (l *Locker) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Inspect reads the current marker. The returned error satisfies
// errors.Is(err, fs.ErrNotExist) when nobody holds the lock.
func (l *Locker) Inspect() (Holder, error) {
	info, err := os.Stat(l.lockFile)
	if err != nil {
		return Holder{}, err
	}

	return Holder{
		PID:   l.readPID(),
		Since: info.ModTime(),
		Age:   l.now().Sub(info.ModTime()),
	}, nil
}

// IsStale reports whether a holder has exceeded the staleness threshold.
func (l *Locker) IsStale(h Holder) bool {
	return h.Age > l.staleAfter
}

// readPID returns the PID stored in the marker, or 0 if it is unreadable.
func (l *Locker) readPID() int {
	data, err := os.ReadFile(l.lockFile)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// String implements fmt.Stringer for diagnostics.
func (h Holder) String() string {
	if h.PID == 0 {
		return fmt.Sprintf("unknown holder since %s", h.Since.Format(time.RFC3339))
	}
	return fmt.Sprintf("PID %d since %s", h.PID, h.Since.Format(time.RFC3339))
}
