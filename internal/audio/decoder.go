package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/jmylchreest/scvv/internal/util"
)

// ErrNoDecoder is returned when no decoder accepts the payload.
var ErrNoDecoder = errors.New("no audio decoder for payload")

// Decoder turns an encoded clip into mono PCM at sampleRate.
type Decoder interface {
	Decode(ctx context.Context, data []byte, sampleRate int) (*Buffer, error)
}

// WAVDecoder decodes WAV payloads in process.
type WAVDecoder struct{}

// Decode ignores sampleRate; WAV buffers keep their native rate.
func (WAVDecoder) Decode(_ context.Context, data []byte, _ int) (*Buffer, error) {
	return DecodeWAV(data)
}

// FFmpegDecoder pipes the payload through ffmpeg and reads float32 mono PCM.
type FFmpegDecoder struct {
	path   string
	logger *slog.Logger
}

// NewFFmpegDecoder locates ffmpeg via the configured path, SCVV_FFMPEG or PATH.
func NewFFmpegDecoder(configured string) (*FFmpegDecoder, error) {
	p, err := util.FindBinary("ffmpeg", configured, "SCVV_FFMPEG")
	if err != nil {
		return nil, fmt.Errorf("locating ffmpeg: %w", err)
	}
	return &FFmpegDecoder{path: p, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger.
func (d *FFmpegDecoder) WithLogger(logger *slog.Logger) *FFmpegDecoder {
	d.logger = logger
	return d
}

// Path returns the ffmpeg binary in use.
func (d *FFmpegDecoder) Path() string {
	return d.path
}

func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, sampleRate int) (*Buffer, error) {
	cmd := exec.CommandContext(ctx, d.path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "f32le", "-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	d.logger.Debug("ffmpeg decoded audio",
		slog.Int("input_bytes", len(data)),
		slog.Int("output_bytes", stdout.Len()),
	)
	return FromFloat32LE(stdout.Bytes(), sampleRate)
}

var ffmpegVersionRe = regexp.MustCompile(`^ffmpeg version n?(\S+)`)

// Version returns the version string ffmpeg reports.
func (d *FFmpegDecoder) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, d.path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version: %w", err)
	}
	line, _, _ := bytes.Cut(out, []byte("\n"))
	m := ffmpegVersionRe.FindSubmatch(line)
	if m == nil {
		return "", fmt.Errorf("unrecognised ffmpeg version line %q", line)
	}
	return string(m[1]), nil
}

// ChainDecoder decodes WAV in process and hands everything else to a
// fallback, when one is configured.
type ChainDecoder struct {
	Fallback Decoder
}

func (c ChainDecoder) Decode(ctx context.Context, data []byte, sampleRate int) (*Buffer, error) {
	if IsWAV(data) {
		return DecodeWAV(data)
	}
	if c.Fallback == nil {
		return nil, ErrNoDecoder
	}
	return c.Fallback.Decode(ctx, data, sampleRate)
}

// DefaultDecoder returns a ChainDecoder with ffmpeg as fallback when it can be
// found. Without ffmpeg only WAV clips play.
func DefaultDecoder(ffmpegPath string, logger *slog.Logger) Decoder {
	ff, err := NewFFmpegDecoder(ffmpegPath)
	if err != nil {
		logger.Info("ffmpeg unavailable, clip audio limited to wav", slog.String("error", err.Error()))
		return ChainDecoder{}
	}
	return ChainDecoder{Fallback: ff.WithLogger(logger)}
}
