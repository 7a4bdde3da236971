package lipsync

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRenderer captures applied visemes for assertions.
type recordingRenderer struct {
	mu       sync.Mutex
	applied  []Viseme
	silences int
}

func (r *recordingRenderer) Apply(v Viseme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, v)
}

func (r *recordingRenderer) ApplySilence() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.silences++
}

func (r *recordingRenderer) Applied() []Viseme {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Viseme(nil), r.applied...)
}

func (r *recordingRenderer) Silences() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.silences
}

func newTestScheduler() (*Scheduler, *recordingRenderer, *ManualTimers) {
	rend := &recordingRenderer{}
	timers := NewManualTimers()
	s := NewScheduler(rend, timers, nil, zerolog.Nop())
	return s, rend, timers
}

func TestScheduler_SingleEventFiresInWindow(t *testing.T) {
	s, rend, timers := newTestScheduler()

	tl := &Timeline{
		Events:   []Event{{Viseme: VisemeAA, Offset: 0.0}},
		Duration: 0.5,
	}
	s.Schedule(tl, 0.05)

	require.True(t, s.IsSpeaking(), "speaking must be set synchronously")
	require.Equal(t, 2, s.PendingCount(), "one event plus terminal silence")

	// Nothing fires before the offset.
	timers.Advance(40 * time.Millisecond)
	assert.Empty(t, rend.Applied())

	// The viseme fires inside [offset, duration+offset].
	timers.Advance(20 * time.Millisecond)
	require.Equal(t, []Viseme{VisemeAA}, rend.Applied())
	assert.Equal(t, 0, rend.Silences())
	assert.True(t, s.IsSpeaking())

	// Terminal silence fires at duration+offset and clears speaking.
	timers.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, rend.Silences())
	assert.False(t, s.IsSpeaking())
	assert.Equal(t, 0, s.PendingCount())
}

func TestScheduler_RescheduleCancelsPrevious(t *testing.T) {
	s, rend, timers := newTestScheduler()

	first := &Timeline{
		Events:   []Event{{Viseme: VisemeO, Offset: 0.1}},
		Duration: 0.4,
	}
	s.Schedule(first, 0)

	// Replace the timeline before the first viseme is due.
	second := &Timeline{
		Events:   []Event{{Viseme: VisemeE, Offset: 0.05}},
		Duration: 0.3,
	}
	s.Schedule(second, 0)

	timers.Advance(time.Second)

	// Only the second timeline's viseme applied; nothing stale.
	assert.Equal(t, []Viseme{VisemeE}, rend.Applied())
	assert.False(t, s.IsSpeaking())
}

func TestScheduler_StopSpeakingIsSynchronous(t *testing.T) {
	s, rend, timers := newTestScheduler()

	tl := &Timeline{
		Events: []Event{
			{Viseme: VisemePP, Offset: 0.1},
			{Viseme: VisemeAA, Offset: 0.2},
		},
		Duration: 0.5,
	}
	s.Schedule(tl, 0)

	s.StopSpeaking()

	require.False(t, s.IsSpeaking())
	require.Equal(t, 0, s.PendingCount())
	require.Equal(t, 1, rend.Silences())

	// Advancing past every scheduled time fires nothing.
	timers.Advance(time.Second)
	assert.Empty(t, rend.Applied())
	assert.Equal(t, 1, rend.Silences())
}

func TestScheduler_EmptyTimelineIsNoOp(t *testing.T) {
	s, rend, timers := newTestScheduler()

	s.Schedule(&Timeline{}, 0.1)

	assert.False(t, s.IsSpeaking())
	assert.Equal(t, 0, s.PendingCount())

	timers.Advance(time.Second)
	assert.Empty(t, rend.Applied())
	assert.Equal(t, 0, rend.Silences())
}

func TestScheduler_EmptyTimelineStillCancelsPending(t *testing.T) {
	s, rend, timers := newTestScheduler()

	tl := &Timeline{
		Events:   []Event{{Viseme: VisemeU, Offset: 0.2}},
		Duration: 0.4,
	}
	s.Schedule(tl, 0)
	s.Schedule(&Timeline{}, 0)

	timers.Advance(time.Second)
	assert.Empty(t, rend.Applied())
}

func TestScheduler_NegativeOffsetFiresImmediately(t *testing.T) {
	s, rend, timers := newTestScheduler()

	tl := &Timeline{
		Events:   []Event{{Viseme: VisemeI, Offset: 0.05}},
		Duration: 0.2,
	}
	// Offset large enough to push every fire time into the past.
	s.Schedule(tl, -1.0)

	timers.Advance(time.Nanosecond)
	assert.Equal(t, []Viseme{VisemeI}, rend.Applied())
	assert.Equal(t, 1, rend.Silences())
	assert.False(t, s.IsSpeaking())
}

func TestScheduler_TerminalSilenceNeverBeforeLastEvent(t *testing.T) {
	s, rend, timers := newTestScheduler()

	tl := &Timeline{
		Events: []Event{
			{Viseme: VisemeAA, Offset: 0.0},
			{Viseme: VisemeO, Offset: 0.3},
		},
		Duration: 0.3,
	}
	s.Schedule(tl, 0)

	timers.Advance(300 * time.Millisecond)

	// The last viseme shares the terminal's fire time; scheduling order
	// guarantees it applies first, then silence.
	require.Equal(t, []Viseme{VisemeAA, VisemeO}, rend.Applied())
	assert.Equal(t, 1, rend.Silences())
}

func TestScheduler_CancelAllKeepsSpeakingFlag(t *testing.T) {
	s, _, _ := newTestScheduler()

	tl := &Timeline{
		Events:   []Event{{Viseme: VisemeAA, Offset: 0.1}},
		Duration: 0.2,
	}
	s.Schedule(tl, 0)
	s.CancelAll()

	assert.Equal(t, 0, s.PendingCount())
	assert.True(t, s.IsSpeaking(), "CancelAll must not force silence")

	// Idempotent.
	s.CancelAll()
	assert.Equal(t, 0, s.PendingCount())
}

func TestScheduler_StopSpeakingIdempotent(t *testing.T) {
	s, rend, _ := newTestScheduler()

	s.StopSpeaking()
	s.StopSpeaking()

	assert.False(t, s.IsSpeaking())
	assert.Equal(t, 2, rend.Silences())
}
