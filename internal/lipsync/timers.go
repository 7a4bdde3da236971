package lipsync

import (
	"sync"
	"time"
)

// Clock reads a monotonic time. Production code uses the wall clock or the
// audio engine clock; tests use ManualClock to simulate elapsed time.
type Clock interface {
	Now() time.Duration
}

// WallClock reads monotonic time since construction.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a wall clock anchored at now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the elapsed time since the clock was created.
func (c *WallClock) Now() time.Duration {
	return time.Since(c.start)
}

// TaskHandle identifies one scheduled task.
type TaskHandle uint64

// TimerSet is a cancellable deferred-task collection. Pending tasks are a
// first-class owned set: CancelAll empties it in one call, which is the
// scheduler's single cancellation point.
type TimerSet interface {
	// Schedule runs fn after d. A non-positive d runs fn as soon as the
	// timer set can, never drops it.
	Schedule(d time.Duration, fn func()) TaskHandle
	Cancel(h TaskHandle)
	CancelAll()
	// Pending returns the number of outstanding tasks.
	Pending() int
}

// WallTimers is the production TimerSet backed by time.AfterFunc.
type WallTimers struct {
	mu     sync.Mutex
	next   TaskHandle
	timers map[TaskHandle]*time.Timer
}

// NewWallTimers creates an empty wall-clock timer set.
func NewWallTimers() *WallTimers {
	return &WallTimers{timers: make(map[TaskHandle]*time.Timer)}
}

// Schedule registers fn to run after d.
func (ts *WallTimers) Schedule(d time.Duration, fn func()) TaskHandle {
	if d < 0 {
		d = 0
	}

	ts.mu.Lock()
	ts.next++
	h := ts.next
	ts.timers[h] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		_, live := ts.timers[h]
		delete(ts.timers, h)
		ts.mu.Unlock()
		if live {
			fn()
		}
	})
	ts.mu.Unlock()

	return h
}

// Cancel stops one task if it has not fired.
func (ts *WallTimers) Cancel(h TaskHandle) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[h]; ok {
		t.Stop()
		delete(ts.timers, h)
	}
}

// CancelAll stops every outstanding task. Idempotent.
func (ts *WallTimers) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for h, t := range ts.timers {
		t.Stop()
		delete(ts.timers, h)
	}
}

// Pending returns the number of outstanding tasks.
func (ts *WallTimers) Pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}

// ManualClock is a Clock advanced explicitly by tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualClock creates a manual clock at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// Now returns the current simulated time.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves simulated time forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type manualTask struct {
	handle TaskHandle
	due    time.Duration
	seq    uint64
	fn     func()
}

// ManualTimers is a deterministic TimerSet driven by explicit Advance calls.
// Tasks fire in due order; ties fire in scheduling order.
type ManualTimers struct {
	mu    sync.Mutex
	now   time.Duration
	next  TaskHandle
	seq   uint64
	tasks []*manualTask
}

// NewManualTimers creates an empty manual timer set at time zero.
func NewManualTimers() *ManualTimers {
	return &ManualTimers{}
}

// Schedule registers fn to run once simulated time reaches now+d.
func (ts *ManualTimers) Schedule(d time.Duration, fn func()) TaskHandle {
	if d < 0 {
		d = 0
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.next++
	ts.seq++
	ts.tasks = append(ts.tasks, &manualTask{
		handle: ts.next,
		due:    ts.now + d,
		seq:    ts.seq,
		fn:     fn,
	})
	return ts.next
}

// Cancel removes one pending task.
func (ts *ManualTimers) Cancel(h TaskHandle) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for i, t := range ts.tasks {
		if t.handle == h {
			ts.tasks = append(ts.tasks[:i], ts.tasks[i+1:]...)
			return
		}
	}
}

// CancelAll drops every pending task.
func (ts *ManualTimers) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tasks = nil
}

// Pending returns the number of outstanding tasks.
func (ts *ManualTimers) Pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tasks)
}

// Advance moves simulated time forward and fires every task that came due,
// in time order. Tasks scheduled by fired callbacks run too if they fall
// within the advanced window.
func (ts *ManualTimers) Advance(d time.Duration) {
	ts.mu.Lock()
	target := ts.now + d
	ts.mu.Unlock()

	for {
		ts.mu.Lock()
		var next *manualTask
		for _, t := range ts.tasks {
			if t.due > target {
				continue
			}
			if next == nil || t.due < next.due || (t.due == next.due && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			ts.now = target
			ts.mu.Unlock()
			return
		}
		// Remove before firing so the callback sees a consistent set.
		for i, t := range ts.tasks {
			if t.handle == next.handle {
				ts.tasks = append(ts.tasks[:i], ts.tasks[i+1:]...)
				break
			}
		}
		if next.due > ts.now {
			ts.now = next.due
		}
		ts.mu.Unlock()

		next.fn()
	}
}
