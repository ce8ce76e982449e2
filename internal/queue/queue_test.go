package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue() (*Queue, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	q := New(0, 0)
	q.now = clock.Now
	return q, clock
}

func TestNew_Defaults(t *testing.T) {
	q := New(-1, 0)
	assert.Equal(t, DefaultBatchInterval, q.interval)
	assert.Equal(t, DefaultBatchSize, q.size)

	q = New(time.Minute, 10)
	assert.Equal(t, time.Minute, q.interval)
	assert.Equal(t, 10, q.size)
}

func TestDrain_CollapsesDuplicates(t *testing.T) {
	q, _ := newTestQueue()

	q.Add("a.json")
	q.Add("b.json")
	q.Add("a.json")

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []string{"a.json", "b.json"}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestShouldFlush(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		files    []string
		elapsed  time.Duration
		expected bool
	}{
		"EmptyNeverFlushes": {
			files:    nil,
			elapsed:  time.Hour,
			expected: false,
		},
		"BelowIntervalAndBelowSize": {
			files:    []string{"a.json", "b.json", "c.json"},
			elapsed:  DefaultBatchInterval - time.Millisecond,
			expected: false,
		},
		"IntervalBoundaryReached": {
			files:    []string{"a.json"},
			elapsed:  DefaultBatchInterval,
			expected: true,
		},
		"SizeBoundaryReached": {
			files:    []string{"a.json", "b.json", "c.json", "d.json"},
			elapsed:  0,
			expected: true,
		},
		"DuplicatesDoNotCountTowardSize": {
			files:    []string{"a.json", "a.json", "b.json", "b.json"},
			elapsed:  time.Second,
			expected: false,
		},
	}

	for name, test := range tests {
		test := test
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			q, clock := newTestQueue()
			q.MarkFlushed()
			for _, f := range test.files {
				q.Add(f)
			}
			clock.Advance(test.elapsed)

			assert.Equal(t, test.expected, q.ShouldFlush())
		})
	}
}

func TestShouldFlush_FirstBatchIsImmediate(t *testing.T) {
	q, _ := newTestQueue()
	assert.True(t, q.LastFlush().IsZero())

	q.Add("claims.json")
	assert.True(t, q.ShouldFlush(), "nothing flushed yet, so the interval has already elapsed")
}

func TestMarkFlushed_ResetsTimerOnly(t *testing.T) {
	q, clock := newTestQueue()

	q.Add("a.json")
	q.MarkFlushed()
	assert.Equal(t, clock.Now(), q.LastFlush())
	assert.Equal(t, 1, q.Len(), "MarkFlushed must not clear pending names")
	assert.False(t, q.ShouldFlush())

	clock.Advance(DefaultBatchInterval)
	assert.True(t, q.ShouldFlush())
}

func TestConcurrentAdd_NoLossNoDuplicates(t *testing.T) {
	q, _ := newTestQueue()

	const producers = 16
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				// Every producer writes the same names, plus one of its own.
				q.Add(fmt.Sprintf("shared-%d.json", i%10))
				q.Add(fmt.Sprintf("producer-%d.json", p))
			}
		}(p)
	}
	wg.Wait()

	names := q.Drain()
	require.Len(t, names, 10+producers)

	seen := map[string]bool{}
	for _, name := range names {
		assert.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
	}
}

func TestDrain_ConcurrentWithAdd(t *testing.T) {
	q, _ := newTestQueue()

	const total = 2000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			q.Add(fmt.Sprintf("file-%04d.json", i))
		}
	}()

	seen := map[string]int{}
	collect := func() {
		for _, name := range q.Drain() {
			seen[name]++
		}
	}

	for {
		select {
		case <-done:
			collect()
			require.Len(t, seen, total)
			for name, count := range seen {
				assert.Equal(t, 1, count, "%s drained more than once", name)
			}
			return
		default:
			collect()
		}
	}
}
