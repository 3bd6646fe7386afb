package coalesce

import (
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	stopped bool
	at      time.Time
	fn      func()
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves time forward and runs every live timer that has come due.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var due, rest []*fakeTimer
	for _, t := range f.timers {
		switch {
		case t.stopped:
		case !t.at.After(f.now):
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	f.timers = rest
	f.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

type recorder struct {
	mu      sync.Mutex
	flushes [][]Batch[string]
}

func (r *recorder) flush(batches []Batch[string]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, batches)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

func newTestQueue() (*Queue[string], *fakeClock, *recorder) {
	rec := &recorder{}
	q := New(10*time.Second, rec.flush, "added", "removed")
	clock := &fakeClock{now: time.Unix(0, 0)}
	q.WithClock(clock)
	return q, clock, rec
}

func TestQueueFlushesAfterQuiescence(t *testing.T) {
	q, clock, rec := newTestQueue()

	q.Add("added", "alice")
	clock.Advance(9 * time.Second)
	if rec.count() != 0 {
		t.Fatalf("flushed before interval elapsed")
	}
	clock.Advance(time.Second)
	if rec.count() != 1 {
		t.Fatalf("expected one flush, got %d", rec.count())
	}
	if q.Pending() != 0 {
		t.Fatalf("expected queue drained, got %d pending", q.Pending())
	}
}

func TestQueueAddResetsTimer(t *testing.T) {
	q, clock, rec := newTestQueue()

	q.Add("added", "alice")
	clock.Advance(8 * time.Second)
	q.Add("added", "bob")
	clock.Advance(8 * time.Second)
	if rec.count() != 0 {
		t.Fatalf("timer should restart on every add")
	}
	clock.Advance(2 * time.Second)
	if rec.count() != 1 {
		t.Fatalf("expected a single flush, got %d", rec.count())
	}

	batches := rec.flushes[0]
	if len(batches) != 1 || len(batches[0].Items) != 2 {
		t.Fatalf("expected both subjects in one batch, got %+v", batches)
	}
	if batches[0].Items[0] != "alice" || batches[0].Items[1] != "bob" {
		t.Fatalf("expected arrival order, got %v", batches[0].Items)
	}
}

func TestQueueCategoryOrder(t *testing.T) {
	q, clock, rec := newTestQueue()

	q.Add("removed", "carol")
	q.Add("custom", "dave")
	q.Add("added", "erin")
	clock.Advance(10 * time.Second)

	if rec.count() != 1 {
		t.Fatalf("expected one flush, got %d", rec.count())
	}
	batches := rec.flushes[0]
	want := []string{"added", "removed", "custom"}
	if len(batches) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(batches))
	}
	for i, category := range want {
		if batches[i].Category != category {
			t.Fatalf("batch %d: expected %s, got %s", i, category, batches[i].Category)
		}
	}
}

func TestQueueFlushNow(t *testing.T) {
	q, clock, rec := newTestQueue()

	q.Flush()
	if rec.count() != 0 {
		t.Fatalf("empty flush should not deliver")
	}

	q.Add("added", "alice")
	q.Flush()
	if rec.count() != 1 {
		t.Fatalf("expected forced flush")
	}
	clock.Advance(time.Minute)
	if rec.count() != 1 {
		t.Fatalf("stopped timer must not deliver again, got %d", rec.count())
	}
}

func TestQueueStaleTimerIgnored(t *testing.T) {
	q, _, rec := newTestQueue()
	stale := &fakeClock{now: time.Unix(0, 0)}
	q.WithClock(stale)

	q.Add("added", "alice")
	first := stale.timers[0]
	q.Add("added", "bob")

	// Simulate the first timer firing after it lost the race with Stop.
	first.fn()
	if rec.count() != 0 {
		t.Fatalf("stale timer flushed the batch")
	}
	if q.Pending() != 2 {
		t.Fatalf("expected both subjects pending, got %d", q.Pending())
	}
}
