// Package coalesce batches bursts of small events into one delivery.
//
// A Queue collects subjects per category and delivers everything pending once
// no new subject has arrived for a full quiescence interval. Every Add restarts
// the interval, so a steady stream keeps the batch open.
package coalesce

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// Batch is the pending subjects of one category at flush time.
type Batch[T any] struct {
	Category string
	Items    []T
}

type Queue[T any] struct {
	mu         sync.Mutex
	clock      Clock
	interval   time.Duration
	categories []string
	pending    map[string][]T
	timer      Timer
	generation uint64
	flush      func([]Batch[T])
}

// New returns a queue delivering batches to flush. Categories listed here are
// delivered first and in this order; unknown categories follow in arrival order.
func New[T any](interval time.Duration, flush func([]Batch[T]), categories ...string) *Queue[T] {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Queue[T]{
		clock:      realClock{},
		interval:   interval,
		categories: append([]string(nil), categories...),
		pending:    make(map[string][]T),
		flush:      flush,
	}
}

func (q *Queue[T]) WithClock(clock Clock) {
	q.mu.Lock()
	q.clock = clock
	q.mu.Unlock()
}

// Add queues subject under category and restarts the quiescence timer.
func (q *Queue[T]) Add(category string, subject T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, known := q.pending[category]; !known && !q.hasCategory(category) {
		q.categories = append(q.categories, category)
	}
	q.pending[category] = append(q.pending[category], subject)

	if q.timer != nil {
		q.timer.Stop()
	}
	q.generation++
	gen := q.generation
	q.timer = q.clock.AfterFunc(q.interval, func() { q.fire(gen) })
}

// Pending reports how many subjects are waiting across all categories.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, items := range q.pending {
		total += len(items)
	}
	return total
}

// Flush delivers everything pending now, regardless of the timer.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.generation++
	batches := q.drainLocked()
	q.mu.Unlock()
	q.deliver(batches)
}

func (q *Queue[T]) fire(gen uint64) {
	q.mu.Lock()
	// A timer that lost the race with a later Add must not flush early.
	if gen != q.generation {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	batches := q.drainLocked()
	q.mu.Unlock()
	q.deliver(batches)
}

func (q *Queue[T]) drainLocked() []Batch[T] {
	var batches []Batch[T]
	for _, category := range q.categories {
		items := q.pending[category]
		if len(items) == 0 {
			continue
		}
		batches = append(batches, Batch[T]{Category: category, Items: items})
	}
	q.pending = make(map[string][]T)
	return batches
}

func (q *Queue[T]) deliver(batches []Batch[T]) {
	if len(batches) == 0 || q.flush == nil {
		return
	}
	q.flush(batches)
}

func (q *Queue[T]) hasCategory(category string) bool {
	for _, c := range q.categories {
		if c == category {
			return true
		}
	}
	return false
}
