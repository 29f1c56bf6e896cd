// Package audio plays clip and live audio alongside volumetric playback.
// Output goes to a Device; the built-in ClockDevice simulates playback for
// headless hosts.
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// ErrOddLength is returned for PCM payloads that are not whole float32 samples.
var ErrOddLength = errors.New("pcm payload is not a multiple of 4 bytes")

// Buffer is mono float32 PCM.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Len returns the number of samples.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// FromFloat32LE wraps raw little-endian float32 mono samples at sampleRate.
func FromFloat32LE(data []byte, sampleRate int) (*Buffer, error) {
	if len(data)%4 != 0 {
		return nil, ErrOddLength
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}, nil
}
