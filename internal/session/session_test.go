package session

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visagelab/talkinghead/internal/anim"
	"github.com/visagelab/talkinghead/internal/audio"
	"github.com/visagelab/talkinghead/internal/bus"
	"github.com/visagelab/talkinghead/internal/config"
	"github.com/visagelab/talkinghead/internal/lipsync"
	"github.com/visagelab/talkinghead/internal/scene"
)

type stubSurface struct {
	mu       sync.Mutex
	submits  int
	released bool
}

func (s *stubSurface) Size() (int, int)        { return 640, 480 }
func (s *stubSurface) OnResize(func(int, int)) {}
func (s *stubSurface) ShouldClose() bool       { return false }

func (s *stubSurface) Submit(scene.Frame) {
	s.mu.Lock()
	s.submits++
	s.mu.Unlock()
}

func (s *stubSurface) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

func (s *stubSurface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func testAssets() *scene.Assets {
	channels := make([]string, 0, len(lipsync.Visemes))
	for _, v := range lipsync.Visemes {
		channels = append(channels, anim.ChannelPrefix+string(v))
	}
	return &scene.Assets{
		Rig:      scene.NewMeshRig(channels, []string{"Armature"}),
		RootBone: "Armature",
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Audio.LatencyCompensation = 0
	return cfg
}

func newTestSession(t *testing.T) (*Session, *stubSurface) {
	t.Helper()
	sess := New(testConfig(), audio.NewPacingEngine(), bus.NewEventBus(), zerolog.Nop())
	surface := &stubSurface{}
	require.NoError(t, sess.Attach(surface, testAssets()))
	return sess, surface
}

func silenceChunk(words []string, starts, durs []float64) SpeechChunk {
	samples := make([]byte, 2*2205)
	for i := 0; i+1 < len(samples); i += 2 {
		binary.LittleEndian.PutUint16(samples[i:], 0)
	}
	return SpeechChunk{
		Samples:        samples,
		Encoding:       audio.EncodingPCM16,
		Words:          words,
		WordStartTimes: starts,
		WordDurations:  durs,
	}
}

func TestSession_StreamAudioSchedulesSpeech(t *testing.T) {
	sess, _ := newTestSession(t)
	defer sess.Dispose()

	err := sess.StreamAudio(silenceChunk(
		[]string{"hello"},
		[]float64{0.0},
		[]float64{5.0},
	))
	require.NoError(t, err)

	assert.True(t, sess.IsSpeaking(), "speaking flag set synchronously on schedule")
	assert.True(t, sess.Player().Ready(), "audio engine lazily opened")
	assert.Greater(t, sess.Scheduler().PendingCount(), 0)
}

func TestSession_AudioOnlyChunkDoesNotSpeak(t *testing.T) {
	sess, _ := newTestSession(t)
	defer sess.Dispose()

	require.NoError(t, sess.StreamAudio(silenceChunk(nil, nil, nil)))
	assert.False(t, sess.IsSpeaking())
	assert.True(t, sess.Player().Ready())
}

func TestSession_BadEncodingRejected(t *testing.T) {
	sess, _ := newTestSession(t)
	defer sess.Dispose()

	err := sess.StreamAudio(SpeechChunk{
		Samples:  []byte{1, 2, 3},
		Encoding: "opus",
	})
	assert.ErrorIs(t, err, audio.ErrInvalidEncoding)
	assert.False(t, sess.Player().Ready(), "bad chunk must not open the engine")
}

func TestSession_StopSpeakingSilencesAndRebases(t *testing.T) {
	sess, _ := newTestSession(t)
	defer sess.Dispose()

	require.NoError(t, sess.StreamAudio(silenceChunk(
		[]string{"hello", "world"},
		[]float64{0.0, 0.5},
		[]float64{0.4, 0.4},
	)))
	require.True(t, sess.IsSpeaking())

	sess.StopSpeaking()

	assert.False(t, sess.IsSpeaking())
	assert.Equal(t, 0, sess.Scheduler().PendingCount())
	assert.InDelta(t, 0.0, sess.Player().Elapsed(), 0.05, "anchor rebased")
}

func TestSession_RescheduleReplacesTimeline(t *testing.T) {
	sess, _ := newTestSession(t)
	defer sess.Dispose()

	require.NoError(t, sess.StreamAudio(silenceChunk(
		[]string{"first"}, []float64{0.0}, []float64{10.0},
	)))
	first := sess.Scheduler().PendingCount()

	require.NoError(t, sess.StreamAudio(silenceChunk(
		[]string{"go"}, []float64{0.0}, []float64{10.0},
	)))

	// Pending count reflects only the new timeline, not both.
	assert.LessOrEqual(t, sess.Scheduler().PendingCount(), first)
	assert.True(t, sess.IsSpeaking())
}

func TestSession_AttachTwiceFails(t *testing.T) {
	sess, _ := newTestSession(t)
	defer sess.Dispose()

	err := sess.Attach(&stubSurface{}, testAssets())
	assert.Error(t, err)
}

func TestSession_AttachWithoutAssets(t *testing.T) {
	sess := New(testConfig(), audio.NewPacingEngine(), bus.NewEventBus(), zerolog.Nop())
	surface := &stubSurface{}
	require.NoError(t, sess.Attach(surface, nil))
	defer sess.Dispose()

	// Still fully usable for audio and events.
	require.NoError(t, sess.StreamAudio(silenceChunk(
		[]string{"ok"}, []float64{0}, []float64{5.0},
	)))
	assert.True(t, sess.IsSpeaking())
}

func TestSession_RunSubmitsFrames(t *testing.T) {
	sess, surface := newTestSession(t)
	require.NoError(t, sess.Start(200))
	defer sess.Dispose()

	deadline := time.After(time.Second)
	for {
		surface.mu.Lock()
		n := surface.submits
		surface.mu.Unlock()
		if n > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("render loop never submitted a frame")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSession_DisposeIsIdempotent(t *testing.T) {
	sess, surface := newTestSession(t)
	require.NoError(t, sess.Start(100))

	sess.Dispose()
	sess.Dispose()

	assert.True(t, surface.Released())
	assert.ErrorIs(t, sess.StreamAudio(silenceChunk(nil, nil, nil)), ErrDisposed)
}

func TestSession_DisposeCancelsPendingSpeech(t *testing.T) {
	sess, _ := newTestSession(t)

	require.NoError(t, sess.StreamAudio(silenceChunk(
		[]string{"long", "speech"},
		[]float64{0.0, 5.0},
		[]float64{4.0, 4.0},
	)))

	sess.Dispose()

	assert.Equal(t, 0, sess.Scheduler().PendingCount())
	assert.False(t, sess.IsSpeaking())
}

func TestSession_RunWithoutAttach(t *testing.T) {
	sess := New(testConfig(), audio.NewPacingEngine(), bus.NewEventBus(), zerolog.Nop())
	assert.ErrorIs(t, sess.Run(60), ErrNotAttached)
	assert.ErrorIs(t, sess.Start(60), ErrNotAttached)
}

// countingMixer records how often the loop advances it.
type countingMixer struct {
	n atomic.Int32
}

func (m *countingMixer) Advance(float64) { m.n.Add(1) }

func TestSession_MixersAdvancedByLoop(t *testing.T) {
	sess := New(testConfig(), audio.NewPacingEngine(), bus.NewEventBus(), zerolog.Nop())
	installed := &countingMixer{}
	sess.SetMixers(installed)

	assets := testAssets()
	fromAssets := &countingMixer{}
	assets.Mixer = fromAssets

	require.NoError(t, sess.Attach(&stubSurface{}, assets))
	require.NoError(t, sess.Start(200))
	defer sess.Dispose()

	deadline := time.After(time.Second)
	for installed.n.Load() == 0 || fromAssets.n.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("mixers never advanced: installed=%d assets=%d",
				installed.n.Load(), fromAssets.n.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSession_ApplyAvatarConfigLive(t *testing.T) {
	sess, _ := newTestSession(t)
	defer sess.Dispose()

	av := testConfig().Avatar
	av.LipsyncLang = "xx" // falls back to English, must not break streaming
	av.SpeakingHeadMove = 2.0
	sess.ApplyAvatarConfig(av)

	require.NoError(t, sess.StreamAudio(silenceChunk(
		[]string{"go"}, []float64{0}, []float64{5.0},
	)))
	assert.True(t, sess.IsSpeaking())
}

func TestSession_UniqueIDs(t *testing.T) {
	a := New(testConfig(), audio.NewPacingEngine(), bus.NewEventBus(), zerolog.Nop())
	b := New(testConfig(), audio.NewPacingEngine(), bus.NewEventBus(), zerolog.Nop())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotEmpty(t, a.ID())
}
