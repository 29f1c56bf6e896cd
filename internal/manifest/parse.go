package manifest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ulikunitz/xz"
)

// wireManifest mirrors the scvv.json document.
type wireManifest struct {
	Version         json.RawMessage `json:"version"`
	IsStreaming     bool            `json:"isStreaming"`
	Frames          []wireFrame     `json:"frames"`
	Audio           string          `json:"audio"`
	AudioUsOffset   float64         `json:"audio_us_offset"`
	FrameExpiration float64         `json:"frameExpiration"` // seconds
	Transform       []float64       `json:"transform"`
}

type wireFrame struct {
	UID         json.RawMessage `json:"uid"`
	MeshPath    string          `json:"mesh_path"`
	TexturePath string          `json:"texture_path"`
	DelayUs     float64         `json:"delay_us"`
}

// maxManifestSize bounds decompressed manifests.
const maxManifestSize = 32 << 20

// Parse decodes a manifest payload fetched from baseURL. Gzip and xz
// compressed payloads are detected by their magic bytes. defaultExpiration
// applies when a streaming manifest omits frameExpiration.
//
// Frames whose names carry no timestamp are numbered in listing order. Use a
// Resolver to keep that numbering stable across repeated fetches.
func Parse(data []byte, baseURL string, defaultExpiration time.Duration) (*SessionManifest, error) {
	return parse(data, baseURL, defaultExpiration, newUIDSequence())
}

func parse(data []byte, baseURL string, defaultExpiration time.Duration, seq *uidSequence) (*SessionManifest, error) {
	src := baseURL + "/" + FileName

	plain, err := decompress(data)
	if err != nil {
		return nil, &ParseError{URL: src, Err: err}
	}

	var wire wireManifest
	if err := json.Unmarshal(plain, &wire); err != nil {
		return nil, &ParseError{URL: src, Err: err}
	}
	if wire.Frames == nil {
		return nil, &ParseError{URL: src, Err: errors.New("missing frames")}
	}
	if len(wire.Transform) != 0 && len(wire.Transform) != 16 {
		return nil, &ParseError{URL: src, Err: fmt.Errorf("transform has %d elements, want 16", len(wire.Transform))}
	}

	m := &SessionManifest{
		BaseURL:         baseURL,
		Mode:            ModeStatic,
		Version:         versionString(wire.Version),
		Audio:           wire.Audio,
		AudioOffset:     time.Duration(math.Round(wire.AudioUsOffset)) * time.Microsecond,
		FrameExpiration: defaultExpiration,
		Frames:          make([]FrameRef, 0, len(wire.Frames)),
	}
	if wire.IsStreaming {
		m.Mode = ModeStreaming
	}
	if wire.FrameExpiration > 0 {
		m.FrameExpiration = time.Duration(wire.FrameExpiration * float64(time.Second))
	}
	m.Transform = TransformFor(m.Version, wire.Transform)

	var keys []string
	var untimed []int
	for i, f := range wire.Frames {
		if f.MeshPath == "" || f.TexturePath == "" {
			return nil, &ParseError{URL: src, Err: fmt.Errorf("frame %d: mesh_path and texture_path are required", i)}
		}
		uid, timed := timestampUID(f.UID, f.TexturePath)
		if !timed {
			keys = append(keys, fallbackKey(f.UID, f.TexturePath))
			untimed = append(untimed, i)
		}
		m.Frames = append(m.Frames, FrameRef{
			UID:         uid,
			Timestamped: timed,
			MeshPath:    f.MeshPath,
			TexturePath: f.TexturePath,
			DelayMicros: int64(math.Round(f.DelayUs)),
			Index:       i,
		})
	}
	if len(keys) > 0 {
		for j, uid := range seq.assign(keys) {
			m.Frames[untimed[j]].UID = uid
		}
	}

	return m, nil
}

// versionString accepts both "1.2" and 1.2 style versions.
func versionString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func decompress(data []byte) ([]byte, error) {
	var reader io.Reader
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		gzr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr
	case len(data) >= 6 && data[0] == 0xfd && data[1] == '7' && data[2] == 'z' && data[3] == 'X' && data[4] == 'Z' && data[5] == 0x00:
		xzr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		reader = xzr
	default:
		return data, nil
	}

	out, err := io.ReadAll(io.LimitReader(reader, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	if len(out) > maxManifestSize {
		return nil, errors.New("decompressed manifest too large")
	}
	return out, nil
}
