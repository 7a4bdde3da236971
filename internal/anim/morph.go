// Package anim drives the avatar's facial and procedural animation: viseme
// morph switching, idle/speaking motion, and the per-frame render loop.
package anim

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/lipsync"
	"github.com/visagelab/talkinghead/internal/scene"
)

// ChannelPrefix is the naming convention for viseme morph channels on the
// avatar mesh: viseme_aa, viseme_PP, viseme_sil, ...
const ChannelPrefix = "viseme_"

// moodChannels maps mood names to morph channel weights. Mood channels are
// orthogonal to viseme channels and never touched by Apply/ApplySilence.
var moodChannels = map[string]map[string]float32{
	"neutral": {"mouthSmile": 0},
	"happy":   {"mouthSmile": 0.6},
	"angry":   {"mouthSmile": 0},
	"sad":     {"mouthSmile": 0},
}

// MorphRenderer applies viseme and mood weights to a rig's morph channels.
// It is a binary, non-interpolated switch: exactly one non-silence viseme at
// weight 1 at any instant, every other viseme channel at 0.
//
// All operations tolerate a missing rig (asset still loading) and missing
// channels (avatars without a full viseme set): both are silent no-ops.
type MorphRenderer struct {
	mu     sync.Mutex
	rig    scene.Rig
	logger zerolog.Logger

	visemeHandles map[lipsync.Viseme]scene.MorphHandle
}

// NewMorphRenderer creates a renderer with no rig bound; Apply and
// ApplySilence no-op until BindRig is called.
func NewMorphRenderer(logger zerolog.Logger) *MorphRenderer {
	return &MorphRenderer{
		logger: logger.With().Str("component", "morph").Logger(),
	}
}

// BindRig resolves viseme channels on the rig. Channels the avatar lacks
// are skipped; that is tolerated, not an error.
func (m *MorphRenderer) BindRig(rig scene.Rig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rig = rig
	m.visemeHandles = make(map[lipsync.Viseme]scene.MorphHandle, len(lipsync.Visemes))

	for _, v := range lipsync.Visemes {
		if h, ok := rig.ResolveMorphChannel(ChannelPrefix + string(v)); ok {
			m.visemeHandles[v] = h
		}
	}

	m.logger.Debug().
		Int("resolved", len(m.visemeHandles)).
		Int("known", len(lipsync.Visemes)).
		Msg("Viseme channels bound")
}

// Apply sets the named viseme channel to 1 and every other viseme channel
// to 0.
func (m *MorphRenderer) Apply(v lipsync.Viseme) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rig == nil {
		return
	}

	for viseme, h := range m.visemeHandles {
		if viseme == v {
			m.rig.SetInfluence(h, 1)
		} else {
			m.rig.SetInfluence(h, 0)
		}
	}
}

// ApplySilence zeroes every viseme channel.
func (m *MorphRenderer) ApplySilence() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rig == nil {
		return
	}

	for _, h := range m.visemeHandles {
		m.rig.SetInfluence(h, 0)
	}
}

// ApplyMood adjusts mood-related channels without touching viseme state.
// Unknown mood names and missing channels are ignored.
func (m *MorphRenderer) ApplyMood(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rig == nil {
		return
	}

	weights, ok := moodChannels[name]
	if !ok {
		m.logger.Debug().Str("mood", name).Msg("Unknown mood, ignoring")
		return
	}

	for channel, w := range weights {
		if h, ok := m.rig.ResolveMorphChannel(channel); ok {
			m.rig.SetInfluence(h, w)
		}
	}
}
