// Package audio owns the realtime audio output side of the avatar: sample
// decoding, a playback engine abstraction, and the reference clock viseme
// scheduling is anchored to.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zaf/g711"
)

// Common errors
var (
	ErrEngineClosed    = errors.New("audio engine closed")
	ErrNotReady        = errors.New("audio engine not ready")
	ErrInvalidEncoding = errors.New("invalid sample encoding")
)

// Encoding identifies the wire format of inbound audio samples.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm16" // 16-bit little-endian linear PCM
	EncodingULaw  Encoding = "mulaw" // ITU-T G.711 µ-law
)

// DecodeSamples converts wire bytes into 16-bit PCM samples. µ-law input is
// expanded through G.711 first.
func DecodeSamples(data []byte, enc Encoding) ([]int16, error) {
	switch enc {
	case EncodingPCM16, "":
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: pcm16 payload length %d is odd", ErrInvalidEncoding, len(data))
		}
		return pcmBytesToSamples(data), nil
	case EncodingULaw:
		return pcmBytesToSamples(g711.DecodeUlaw(data)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEncoding, enc)
	}
}

func pcmBytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
