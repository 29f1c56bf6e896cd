package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrNotWAV is returned when data has no RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// DecodeWAV decodes 16-bit PCM or 32-bit float WAV data, mixing all channels
// down to mono.
func DecodeWAV(data []byte) (*Buffer, error) {
	if !IsWAV(data) {
		return nil, ErrNotWAV
	}

	var (
		format, channels, bits uint16
		rate                   uint32
		haveFmt                bool
		pcm                    []byte
	)
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}
		chunk := data[body : body+size]

		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, fmt.Errorf("wav fmt chunk too short: %d bytes", len(chunk))
			}
			format = binary.LittleEndian.Uint16(chunk[0:])
			channels = binary.LittleEndian.Uint16(chunk[2:])
			rate = binary.LittleEndian.Uint32(chunk[4:])
			bits = binary.LittleEndian.Uint16(chunk[14:])
			haveFmt = true
		case "data":
			pcm = chunk
		}
		pos = body + size + size%2
	}

	if !haveFmt {
		return nil, errors.New("wav missing fmt chunk")
	}
	if pcm == nil {
		return nil, errors.New("wav missing data chunk")
	}
	if channels == 0 || rate == 0 {
		return nil, fmt.Errorf("wav invalid channels=%d rate=%d", channels, rate)
	}

	var sample func(b []byte) float32
	switch {
	case format == wavFormatPCM && bits == 16:
		sample = func(b []byte) float32 {
			return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
		}
	case format == wavFormatFloat && bits == 32:
		sample = func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		}
	default:
		return nil, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", format, bits)
	}

	width := int(bits / 8)
	frame := width * int(channels)
	n := len(pcm) / frame
	samples := make([]float32, n)
	for i := range n {
		var sum float32
		for c := range int(channels) {
			sum += sample(pcm[i*frame+c*width:])
		}
		samples[i] = sum / float32(channels)
	}
	return &Buffer{Samples: samples, SampleRate: int(rate)}, nil
}
