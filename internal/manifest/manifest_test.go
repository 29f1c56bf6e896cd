package manifest

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/task"
	"github.com/jmylchreest/scvv/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const staticDoc = `{
  "version": "2.1",
  "isStreaming": false,
  "audio": "audio.wav",
  "audio_us_offset": -250000,
  "frames": [
    {"mesh_path": "m/1.scmf", "texture_path": "t/1.png", "delay_us": 33000, "uid": 1},
    {"mesh_path": "m/2.scmf", "texture_path": "t/2.png", "delay_us": 33366.6, "uid": "2"}
  ]
}`

func TestParse_Static(t *testing.T) {
	m, err := Parse([]byte(staticDoc), "https://cdn.example.com/clip", 12*time.Second)
	require.NoError(t, err)

	assert.Equal(t, ModeStatic, m.Mode)
	assert.False(t, m.Streaming())
	assert.Equal(t, "2.1", m.Version)
	assert.Equal(t, -250*time.Millisecond, m.AudioOffset)
	assert.Equal(t, "https://cdn.example.com/clip/audio.wav", m.AudioURL())
	assert.Equal(t, Identity(), m.Transform)

	require.Len(t, m.Frames, 2)
	assert.Equal(t, uint64(1), m.Frames[0].UID)
	assert.Equal(t, uint64(2), m.Frames[1].UID)
	assert.Equal(t, 33*time.Millisecond, m.Frames[0].Delay())
	assert.Equal(t, int64(33367), m.Frames[1].DelayMicros)
	assert.Equal(t, 1, m.Frames[1].Index)
}

func TestParse_Streaming(t *testing.T) {
	doc := `{"version": 3, "isStreaming": true, "frameExpiration": 4.5, "frames": [
		{"mesh_path": "a.drc", "texture_path": "tex.1700000000000000.jpg", "delay_us": 0}
	]}`

	m, err := Parse([]byte(doc), "https://live.example.com/s", 12*time.Second)
	require.NoError(t, err)

	assert.True(t, m.Streaming())
	assert.Equal(t, "3", m.Version)
	assert.Equal(t, 4500*time.Millisecond, m.FrameExpiration)
	assert.Equal(t, uint64(1700000000000000), m.Frames[0].UID)
	ts, ok := m.Frames[0].Timestamp()
	require.True(t, ok)
	assert.Equal(t, time.UnixMicro(1700000000000000), ts)
	assert.Empty(t, m.AudioURL())
}

func TestParse_DefaultExpiration(t *testing.T) {
	m, err := Parse([]byte(`{"isStreaming": true, "frames": []}`), "https://x", 12*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, m.FrameExpiration)
}

func TestParse_Compressed(t *testing.T) {
	t.Run("xz", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write([]byte(staticDoc))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		m, err := Parse(buf.Bytes(), "https://x", time.Second)
		require.NoError(t, err)
		assert.Len(t, m.Frames, 2)
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, err := w.Write([]byte(staticDoc))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		m, err := Parse(buf.Bytes(), "https://x", time.Second)
		require.NoError(t, err)
		assert.Len(t, m.Frames, 2)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `<html>`},
		{"missing frames", `{"isStreaming": false}`},
		{"bad transform", `{"frames": [], "transform": [1, 0, 0]}`},
		{"frame without texture", `{"frames": [{"mesh_path": "a.scmf"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "https://x", time.Second)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, "https://x/scvv.json", pe.URL)
		})
	}
}

func TestTimestampUID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		texture string
		want    uint64
		ok      bool
	}{
		{"explicit number", `42`, "t.png", 42, true},
		{"explicit string", `"43"`, "t.png", 43, true},
		{"large explicit number", `1700000000123456`, "t.png", 1700000000123456, true},
		{"null falls back to texture", `null`, "77.png", 77, true},
		{"three segments uses second", ``, "tex.1234.png", 1234, true},
		{"two segments uses first", ``, "frames/5678.png", 5678, true},
		{"mixed name is not a timestamp", ``, "frame_0099.png", 0, false},
		{"non-numeric explicit string", `"cam-a"`, "1.png", 0, false},
		{"no digits", ``, "texture.png", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, ok := timestampUID(json.RawMessage(tt.raw), tt.texture)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, uid)
			}
		})
	}
}

func TestParse_UntimedFramesNumberedByListing(t *testing.T) {
	doc := `{"frames": [
		{"mesh_path": "a.scmf", "texture_path": "camA_1.png"},
		{"mesh_path": "b.scmf", "texture_path": "camB_1.png"},
		{"mesh_path": "c.scmf", "texture_path": "123.png"}
	]}`
	m, err := Parse([]byte(doc), "https://x", time.Second)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), m.Frames[0].UID)
	assert.Equal(t, uint64(2), m.Frames[1].UID)
	assert.False(t, m.Frames[0].Timestamped)
	assert.Equal(t, uint64(123), m.Frames[2].UID)
	assert.True(t, m.Frames[2].Timestamped)

	_, ok := m.Frames[0].Timestamp()
	assert.False(t, ok)
}

func TestResolver_UntimedUIDsStableAcrossPolls(t *testing.T) {
	docs := []string{
		`{"isStreaming": true, "frames": [
			{"mesh_path": "a.scmf", "texture_path": "a.png"},
			{"mesh_path": "b.scmf", "texture_path": "b.png"}]}`,
		`{"isStreaming": true, "frames": [
			{"mesh_path": "b.scmf", "texture_path": "b.png"},
			{"mesh_path": "c.scmf", "texture_path": "c.png"},
			{"mesh_path": "d.scmf", "texture_path": "d.png"}]}`,
		`{"isStreaming": true, "frames": [
			{"mesh_path": "d.scmf", "texture_path": "d.png"},
			{"mesh_path": "e.scmf", "texture_path": "e.png"}]}`,
	}
	var poll atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(docs[poll.Load()]))
	}))
	t.Cleanup(server.Close)

	client := transport.NewClient(config.HTTPConfig{RequestTimeout: time.Second}, nil)
	resolver := NewResolver(transport.NewHTTPFetcher(client, time.Second), 12*time.Second)

	uids := make(map[string]uint64)
	for i := range docs {
		poll.Store(int32(i))
		m, err := resolver.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		for _, f := range m.Frames {
			if prev, seen := uids[f.TexturePath]; seen {
				assert.Equal(t, prev, f.UID, "uid changed for %s", f.TexturePath)
			}
			uids[f.TexturePath] = f.UID
		}
	}

	assert.Equal(t, map[string]uint64{
		"a.png": 1, "b.png": 2, "c.png": 3, "d.png": 4, "e.png": 5,
	}, uids)
	assert.Len(t, resolver.sequence(transport.NormalizeBase(server.URL)).byKey, 2)
}

func TestTransformFor(t *testing.T) {
	explicit := []float64{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 1, 2, 3, 1}

	assert.Equal(t, preVersionedTransform, TransformFor("", explicit))
	assert.Equal(t, zUpTransform, TransformFor("0.9", explicit))
	assert.Equal(t, zUpTransform, TransformFor("1.0.3", nil))
	assert.Equal(t, zUpTransform, TransformFor("v1", nil))
	assert.Equal(t, Identity(), TransformFor("1.1", nil))

	m := TransformFor("2.0", explicit)
	x, y, z := m.Apply(1, 1, 1)
	assert.InDelta(t, 3, x, 1e-9)
	assert.InDelta(t, 4, y, 1e-9)
	assert.InDelta(t, 5, z, 1e-9)

	// Pre-versioned clips flip Y and Z.
	x, y, z = preVersionedTransform.Apply(1, 2, 3)
	assert.Equal(t, []float64{1, -2, -3}, []float64{x, y, z})
}

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := transport.NewClient(config.HTTPConfig{CircuitBreakerThreshold: 100, CircuitBreakerTimeout: time.Second}, nil)
	return NewResolver(transport.NewHTTPFetcher(client, time.Second), 12*time.Second), server.URL
}

func TestResolver_Fetch(t *testing.T) {
	r, base := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/clip/scvv.json", req.URL.Path)
		_, _ = w.Write([]byte(staticDoc))
	})

	m, err := r.Fetch(context.Background(), base+"/clip/")
	require.NoError(t, err)
	assert.Equal(t, base+"/clip", m.BaseURL)
	assert.Len(t, m.Frames, 2)
}

func TestResolver_FetchNotFound(t *testing.T) {
	r, base := newTestResolver(t, http.NotFound)

	_, err := r.Fetch(context.Background(), base)
	assert.True(t, transport.IsNetworkError(err))
}

func testPollConfig() PollConfig {
	return PollConfig{
		RetryInterval:    2 * time.Second,
		BusyInterval:     300 * time.Millisecond,
		IdleInterval:     700 * time.Millisecond,
		BacklogThreshold: 4,
	}
}

func TestPollConfig_NextDelay(t *testing.T) {
	pc := testPollConfig()
	assert.Equal(t, 700*time.Millisecond, pc.NextDelay(0))
	assert.Equal(t, 700*time.Millisecond, pc.NextDelay(4))
	assert.Equal(t, 300*time.Millisecond, pc.NextDelay(5))
}

func TestResolver_PollFunc(t *testing.T) {
	var fail atomic.Bool
	var streaming atomic.Bool
	r, base := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if streaming.Load() {
			_, _ = w.Write([]byte(`{"isStreaming": true, "frames": [{"mesh_path": "a", "texture_path": "1.png"}]}`))
			return
		}
		_, _ = w.Write([]byte(staticDoc))
	})

	var delivered []*SessionManifest
	backlog := 0
	poll := r.PollFunc(base, testPollConfig(), func() int { return backlog }, func(m *SessionManifest) {
		delivered = append(delivered, m)
	})
	ctx := context.Background()

	t.Run("failure retries after retry interval", func(t *testing.T) {
		fail.Store(true)
		defer fail.Store(false)
		assert.Equal(t, 2*time.Second, poll(ctx))
		assert.Empty(t, delivered)
	})

	t.Run("static stops after first success", func(t *testing.T) {
		assert.Equal(t, task.Done, poll(ctx))
		require.Len(t, delivered, 1)
	})

	t.Run("streaming cadence follows backlog", func(t *testing.T) {
		streaming.Store(true)
		backlog = 10
		assert.Equal(t, 300*time.Millisecond, poll(ctx))
		backlog = 1
		assert.Equal(t, 700*time.Millisecond, poll(ctx))
		assert.Len(t, delivered, 3)
	})

	t.Run("cancelled context ends the task", func(t *testing.T) {
		fail.Store(true)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Equal(t, task.Done, poll(cctx))
	})
}
