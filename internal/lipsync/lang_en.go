package lipsync

import (
	"strings"
)

// letterToViseme maps English letters to the closest viseme. Digraphs
// (th, ch, sh) are handled separately in WordsToVisemes.
var letterToViseme = map[byte]Viseme{
	'p': VisemePP, 'b': VisemePP, 'm': VisemePP,
	'f': VisemeFF, 'v': VisemeFF,
	't': VisemeDD, 'd': VisemeDD,
	'k': VisemeKK, 'g': VisemeKK, 'c': VisemeKK, 'q': VisemeKK, 'x': VisemeKK,
	's': VisemeSS, 'z': VisemeSS, 'j': VisemeSS,
	'n': VisemeNN, 'l': VisemeNN,
	'r': VisemeRR,
	'a': VisemeAA, 'h': VisemeAA,
	'e': VisemeE,
	'i': VisemeI, 'y': VisemeI,
	'o': VisemeO,
	'u': VisemeU, 'w': VisemeU,
}

// Relative duration units per viseme class. Vowels are held longer than
// consonants, fricatives sit in between.
const (
	unitConsonant = 1.0
	unitFricative = 1.2
	unitVowel     = 1.5
)

// EnglishMapper is a letter-level approximation of English phonetics: good
// enough for lip-sync, no dictionary required.
type EnglishMapper struct{}

// WordsToVisemes maps a word to a viseme sequence with relative timing.
// Consecutive identical visemes collapse into one longer viseme.
func (em *EnglishMapper) WordsToVisemes(text string) ([]Viseme, []float64, []float64) {
	chars := []byte(strings.ToLower(text))

	var visemes []Viseme
	var times []float64
	var durations []float64
	var cursor float64

	for i := 0; i < len(chars); i++ {
		ch := chars[i]
		if ch < 'a' || ch > 'z' {
			continue
		}

		v, unit := visemeForLetter(ch)
		if i+1 < len(chars) {
			switch string(chars[i : i+2]) {
			case "th":
				v, unit = VisemeDD, unitFricative
				i++
			case "ch", "sh":
				v, unit = VisemeSS, unitFricative
				i++
			}
		}

		if n := len(visemes); n > 0 && visemes[n-1] == v {
			// Extend the previous viseme instead of repeating it.
			durations[n-1] += unit
			cursor += unit
			continue
		}

		visemes = append(visemes, v)
		times = append(times, cursor)
		durations = append(durations, unit)
		cursor += unit
	}

	return visemes, times, durations
}

func visemeForLetter(ch byte) (Viseme, float64) {
	v, ok := letterToViseme[ch]
	if !ok {
		// Unknown letters get a neutral open mouth.
		return VisemeAA, unitConsonant
	}
	switch ch {
	case 'a', 'e', 'i', 'o', 'u':
		return v, unitVowel
	case 's', 'z', 'f', 'v':
		return v, unitFricative
	default:
		return v, unitConsonant
	}
}
