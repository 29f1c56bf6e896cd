package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/task"
	"github.com/jmylchreest/scvv/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32LE(samples ...float32) []byte {
	out := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func wavBytes(format, channels, bits uint16, rate uint32, pcm []byte) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, format)
	_ = binary.Write(&b, binary.LittleEndian, channels)
	_ = binary.Write(&b, binary.LittleEndian, rate)
	_ = binary.Write(&b, binary.LittleEndian, rate*uint32(channels)*uint32(bits/8))
	_ = binary.Write(&b, binary.LittleEndian, channels*bits/8)
	_ = binary.Write(&b, binary.LittleEndian, bits)
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

func pcm16(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestBuffer(t *testing.T) {
	buf, err := FromFloat32LE(float32LE(0.5, -0.5, 1), 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.5, 1}, buf.Samples)
	assert.Equal(t, time.Second, buf.Duration())

	_, err = FromFloat32LE([]byte{1, 2, 3}, 48000)
	assert.ErrorIs(t, err, ErrOddLength)

	var nilBuf *Buffer
	assert.Zero(t, nilBuf.Duration())
	assert.Zero(t, nilBuf.Len())
}

func TestDecodeWAV(t *testing.T) {
	t.Run("pcm16 stereo mixed to mono", func(t *testing.T) {
		data := wavBytes(wavFormatPCM, 2, 16, 8000, pcm16(16384, 16384, -16384, 0))
		buf, err := DecodeWAV(data)
		require.NoError(t, err)
		assert.Equal(t, 8000, buf.SampleRate)
		assert.Equal(t, []float32{0.5, -0.25}, buf.Samples)
	})

	t.Run("float32 mono", func(t *testing.T) {
		buf, err := DecodeWAV(wavBytes(wavFormatFloat, 1, 32, 48000, float32LE(0.25, -1)))
		require.NoError(t, err)
		assert.Equal(t, []float32{0.25, -1}, buf.Samples)
	})

	t.Run("unsupported encoding", func(t *testing.T) {
		_, err := DecodeWAV(wavBytes(wavFormatPCM, 1, 8, 8000, []byte{1, 2}))
		assert.ErrorContains(t, err, "unsupported")
	})

	t.Run("not wav", func(t *testing.T) {
		_, err := DecodeWAV([]byte("ID3 mp3 data here"))
		assert.ErrorIs(t, err, ErrNotWAV)
	})
}

type decoderFunc func(ctx context.Context, data []byte, sampleRate int) (*Buffer, error)

func (f decoderFunc) Decode(ctx context.Context, data []byte, sampleRate int) (*Buffer, error) {
	return f(ctx, data, sampleRate)
}

func TestChainDecoder(t *testing.T) {
	wav := wavBytes(wavFormatFloat, 1, 32, 48000, float32LE(0.1))

	buf, err := ChainDecoder{}.Decode(context.Background(), wav, 48000)
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Len())

	_, err = ChainDecoder{}.Decode(context.Background(), []byte("opus"), 48000)
	assert.ErrorIs(t, err, ErrNoDecoder)

	var called bool
	fallback := decoderFunc(func(_ context.Context, _ []byte, rate int) (*Buffer, error) {
		called = true
		return &Buffer{Samples: make([]float32, 4), SampleRate: rate}, nil
	})
	buf, err = ChainDecoder{Fallback: fallback}.Decode(context.Background(), []byte("opus"), 44100)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 44100, buf.SampleRate)
}

func TestClockDevice(t *testing.T) {
	now := time.Unix(1000, 0)
	d := NewClockDevice(10)
	d.now = func() time.Time { return now }

	assert.False(t, d.Playing())
	require.NoError(t, d.Play(&Buffer{Samples: make([]float32, 10), SampleRate: 10}, 200*time.Millisecond))
	assert.True(t, d.Playing())

	now = now.Add(700 * time.Millisecond)
	assert.True(t, d.Playing())
	now = now.Add(100 * time.Millisecond)
	assert.False(t, d.Playing())

	require.NoError(t, d.Play(&Buffer{Samples: make([]float32, 10), SampleRate: 10}, 0))
	d.Stop()
	assert.False(t, d.Playing())
	assert.Len(t, d.History(), 2)
	assert.Equal(t, 200*time.Millisecond, d.History()[0].Offset)
}

func TestClockDevice_HistoryIsBounded(t *testing.T) {
	d := NewClockDevice(10).WithHistoryLimit(3)
	for i := range 10 {
		require.NoError(t, d.Play(&Buffer{Samples: make([]float32, 10), SampleRate: 10}, time.Duration(i)*time.Millisecond))
	}

	h := d.History()
	require.Len(t, h, 3)
	assert.Equal(t, 7*time.Millisecond, h[0].Offset)
	assert.Equal(t, 9*time.Millisecond, h[2].Offset)
	assert.Equal(t, int64(10), d.Plays())

	d.WithHistoryLimit(1)
	require.Len(t, d.History(), 1)
	assert.Equal(t, 9*time.Millisecond, d.History()[0].Offset)
}

type countingFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
	delay time.Duration
}

func (f *countingFetcher) Fetch(ctx context.Context, rawURL string, kind transport.AssetKind) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	d, ok := f.data[rawURL]
	if !ok {
		return nil, &transport.NetworkError{URL: rawURL, Kind: kind, Status: http.StatusNotFound, Err: errors.New("not found")}
	}
	return d, nil
}

func (f *countingFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

const clipURL = "https://cdn.example.com/clip/audio.wav"

func newClip(t *testing.T, offset time.Duration, delay time.Duration) (*Clip, *ClockDevice, *countingFetcher) {
	t.Helper()
	f := &countingFetcher{
		data:  map[string][]byte{clipURL: wavBytes(wavFormatFloat, 1, 32, 48000, float32LE(make([]float32, 480)...))},
		calls: map[string]int{},
		delay: delay,
	}
	runner := task.NewRunner(context.Background())
	t.Cleanup(runner.Stop)
	device := NewClockDevice(48000)
	return NewClip(f, clipURL, offset, device, ChainDecoder{}, runner), device, f
}

func TestClip_LoadIsSingleFlight(t *testing.T) {
	clip, _, f := newClip(t, 0, 30*time.Millisecond)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := clip.Load(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 480, buf.Len())
		}()
	}
	wg.Wait()

	_, err := clip.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(clipURL))
}

func TestClip_Cue(t *testing.T) {
	t.Run("positive offset delays start", func(t *testing.T) {
		clip, device, _ := newClip(t, 40*time.Millisecond, 0)
		start := time.Now()
		clip.Cue(0)

		require.Eventually(t, func() bool { return len(device.History()) == 1 }, time.Second, 5*time.Millisecond)
		p := device.History()[0]
		assert.Zero(t, p.Offset)
		assert.GreaterOrEqual(t, p.At.Sub(start), 40*time.Millisecond)
	})

	t.Run("negative offset skips into track", func(t *testing.T) {
		clip, device, _ := newClip(t, -50*time.Millisecond, 0)
		clip.Cue(100 * time.Millisecond)

		require.Eventually(t, func() bool { return len(device.History()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, 150*time.Millisecond, device.History()[0].Offset)
	})

	t.Run("zero offset starts at elapsed", func(t *testing.T) {
		clip, device, _ := newClip(t, 0, 0)
		clip.Cue(0)

		require.Eventually(t, func() bool { return len(device.History()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Zero(t, device.History()[0].Offset)
	})

	t.Run("stop cancels pending cue", func(t *testing.T) {
		clip, device, _ := newClip(t, 100*time.Millisecond, 0)
		clip.Cue(0)
		clip.Stop()

		time.Sleep(200 * time.Millisecond)
		assert.Empty(t, device.History())
		assert.False(t, device.Playing())
	})
}

type liveOrigin struct {
	timestamp atomic.Int64
	samples   atomic.Int64
	chunkHits atomic.Int64
}

func (o *liveOrigin) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live/audio.json", func(w http.ResponseWriter, r *http.Request) {
		ts := o.timestamp.Load()
		_, _ = fmt.Fprintf(w, `{"timestamp":%d,"scvv_audio":"chunks/%d.f32"}`, ts, ts)
	})
	mux.HandleFunc("/live/chunks/", func(w http.ResponseWriter, r *http.Request) {
		o.chunkHits.Add(1)
		_, _ = w.Write(float32LE(make([]float32, o.samples.Load())...))
	})
	return mux
}

func newStream(t *testing.T, cfg StreamConfig) (*Stream, *liveOrigin, *ClockDevice) {
	t.Helper()
	origin := &liveOrigin{}
	server := httptest.NewServer(origin.handler())
	t.Cleanup(server.Close)

	client := transport.NewClient(config.HTTPConfig{
		RequestTimeout:          time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   time.Second,
	}, slog.Default())
	fetcher := transport.NewHTTPFetcher(client, time.Second)

	runner := task.NewRunner(context.Background())
	t.Cleanup(runner.Stop)
	device := NewClockDevice(1000)
	return NewStream(fetcher, server.URL+"/live", device, cfg, runner), origin, device
}

func TestStream_PollOnce(t *testing.T) {
	s, origin, _ := newStream(t, StreamConfig{MinSamples: 10, Lookahead: 1})
	ctx := context.Background()

	origin.timestamp.Store(100)
	origin.samples.Store(20)
	require.NoError(t, s.PollOnce(ctx))
	st := s.Stats()
	assert.Equal(t, float64(100), st.LastTimestamp)
	assert.Equal(t, 1, st.Queued)

	t.Run("same timestamp ignored", func(t *testing.T) {
		require.NoError(t, s.PollOnce(ctx))
		assert.Equal(t, 1, s.Stats().Queued)
		assert.Equal(t, int64(1), origin.chunkHits.Load())
	})

	t.Run("older timestamp ignored and last unchanged", func(t *testing.T) {
		origin.timestamp.Store(50)
		require.NoError(t, s.PollOnce(ctx))
		assert.Equal(t, float64(100), s.Stats().LastTimestamp)
		assert.Equal(t, 1, s.Stats().Queued)
	})

	t.Run("short chunk dropped", func(t *testing.T) {
		origin.timestamp.Store(200)
		origin.samples.Store(9)
		require.NoError(t, s.PollOnce(ctx))
		st := s.Stats()
		assert.Equal(t, 1, st.Queued)
		assert.Equal(t, int64(1), st.Dropped)
		assert.Equal(t, float64(200), st.LastTimestamp)
	})
}

func TestStream_PlaysQueuedChunks(t *testing.T) {
	cfg := StreamConfig{
		PollInterval:   5 * time.Millisecond,
		RetryInterval:  5 * time.Millisecond,
		Lookahead:      1,
		MinSamples:     10,
		StartDelayBase: 20 * time.Millisecond,
	}
	s, origin, device := newStream(t, cfg)
	origin.samples.Store(10)
	origin.timestamp.Store(1)

	s.Start(5)
	s.Start(5)

	require.Eventually(t, func() bool { return len(device.History()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	origin.timestamp.Store(2)
	require.Eventually(t, func() bool { return len(device.History()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, device.Playing())
	assert.Zero(t, s.Stats().Queued)
	assert.GreaterOrEqual(t, s.Stats().Played, int64(2))
}

func TestStreamConfig(t *testing.T) {
	cfg := StreamConfigFrom(config.AudioConfig{
		StartDelayBase:     3 * time.Second,
		StartDelayPerFrame: 40 * time.Millisecond,
		Lookahead:          1,
	})
	assert.Equal(t, 3200*time.Millisecond, cfg.StartDelay(5))
}
