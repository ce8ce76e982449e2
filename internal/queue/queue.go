// Package queue accumulates the names of files awaiting backup and decides
// when the accumulated batch is worth flushing.
package queue

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultBatchInterval is the time since the last flush after which any
	// pending file is flushed.
	DefaultBatchInterval = 5 * time.Second

	// DefaultBatchSize is the pending count that triggers a flush regardless
	// of elapsed time.
	DefaultBatchSize = 4
)

// Queue is a set of pending filenames guarded by a single mutex. The zero
// value is not usable; call New.
type Queue struct {
	mu        sync.Mutex
	pending   map[string]struct{}
	lastFlush time.Time

	interval time.Duration
	size     int
	now      func() time.Time
}

// New creates a Queue. Non-positive arguments select the defaults.
func New(interval time.Duration, size int) *Queue {
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	if size <= 0 {
		size = DefaultBatchSize
	}

	return &Queue{
		pending:  make(map[string]struct{}),
		interval: interval,
		size:     size,
		now:      time.Now,
	}
}

// Add marks name as having unbacked-up changes. Adding a name that is
// already pending is a no-op.
func (q *Queue) Add(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[name] = struct{}{}
}

// ShouldFlush reports whether the pending set is non-empty and either the
// batch interval has elapsed since the last flush or the batch size has been
// reached.
func (q *Queue) ShouldFlush() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return false
	}
	return q.now().Sub(q.lastFlush) >= q.interval || len(q.pending) >= q.size
}

// Drain returns the pending names in sorted order and clears the set in one
// step. Names added after Drain returns belong to the next batch.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	names := make([]string, 0, len(q.pending))
	for name := range q.pending {
		names = append(names, name)
	}
	q.pending = make(map[string]struct{})

	sort.Strings(names)
	return names
}

// MarkFlushed restarts the batch interval. It resets the timer only; the
// pending set is untouched.
func (q *Queue) MarkFlushed() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.lastFlush = q.now()
}

// Len returns the number of pending names.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// LastFlush returns the time of the last MarkFlushed call, or the zero time.
func (q *Queue) LastFlush() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.lastFlush
}
