package lipsync

// Mapper converts one word of text into a viseme sequence with relative
// timing. Times and durations are in arbitrary units; ComputeTimeline scales
// them into the word's real time window, so a mapper only has to get the
// proportions right.
type Mapper interface {
	// WordsToVisemes returns parallel slices: the viseme sequence, each
	// viseme's start time, and each viseme's duration, all in relative units.
	WordsToVisemes(text string) (visemes []Viseme, times []float64, durations []float64)
}

var mappers = map[string]Mapper{
	"en": &EnglishMapper{},
}

// MapperFor returns the mapper for a language code, falling back to English
// for unknown codes.
func MapperFor(lang string) Mapper {
	if m, ok := mappers[lang]; ok {
		return m
	}
	return mappers["en"]
}

// RegisterMapper installs a mapper for a language code. Intended for callers
// embedding their own language support.
func RegisterMapper(lang string, m Mapper) {
	mappers[lang] = m
}

// ComputeTimeline converts word timing into a clock-relative viseme timeline.
// Pure function over its inputs. Words beyond the timing slices are ignored;
// words that map to no visemes contribute nothing. The resulting offsets are
// nondecreasing as long as word start times are.
func ComputeTimeline(m Mapper, words []string, startTimes, durations []float64) *Timeline {
	tl := &Timeline{}

	for i, word := range words {
		if i >= len(startTimes) || i >= len(durations) {
			break
		}
		wordStart := startTimes[i]
		wordDur := durations[i]
		if wordDur <= 0 {
			continue
		}

		visemes, times, units := m.WordsToVisemes(word)
		if len(visemes) == 0 {
			continue
		}

		var total float64
		for _, u := range units {
			total += u
		}
		if total <= 0 {
			continue
		}

		scale := wordDur / total
		for j, v := range visemes {
			tl.Events = append(tl.Events, Event{
				Viseme: v,
				Offset: wordStart + times[j]*scale,
			})
		}

		if end := wordStart + wordDur; end > tl.Duration {
			tl.Duration = end
		}
	}

	return tl
}
