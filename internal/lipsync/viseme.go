// Package lipsync converts word timing into viseme timelines and schedules
// them against the audio playback clock.
package lipsync

// Viseme is a discrete visual mouth-shape category. The names follow the
// Oculus viseme convention used by the avatar's morph channels
// (viseme_<name>).
type Viseme string

const (
	VisemeSil Viseme = "sil"
	VisemePP  Viseme = "PP"
	VisemeFF  Viseme = "FF"
	VisemeDD  Viseme = "DD"
	VisemeKK  Viseme = "kk"
	VisemeSS  Viseme = "SS"
	VisemeNN  Viseme = "nn"
	VisemeRR  Viseme = "RR"
	VisemeAA  Viseme = "aa"
	VisemeE   Viseme = "E"
	VisemeI   Viseme = "I"
	VisemeO   Viseme = "O"
	VisemeU   Viseme = "U"
)

// Visemes lists every viseme the renderer knows, silence included.
var Visemes = []Viseme{
	VisemeAA, VisemeE, VisemeI, VisemeO, VisemeU,
	VisemePP, VisemeSS, VisemeDD, VisemeFF, VisemeKK,
	VisemeNN, VisemeRR, VisemeSil,
}

// Event is one viseme switch at an offset (seconds) from timeline start.
type Event struct {
	Viseme Viseme
	Offset float64
}

// Timeline is an ordered, time-nondecreasing viseme sequence with a total
// duration in seconds. Immutable once computed.
type Timeline struct {
	Events   []Event
	Duration float64
}

// Empty reports whether the timeline carries no events.
func (t *Timeline) Empty() bool {
	return t == nil || len(t.Events) == 0
}
