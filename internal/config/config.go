// Package config provides configuration management for scvv using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultStatusPort             = 8090
	defaultServerTimeout          = 30 * time.Second
	defaultShutdownTimeout        = 10 * time.Second
	defaultRequestTimeout         = 10 * time.Second
	defaultMaxResponseSize        = 64 * 1024 * 1024 // 64MB
	defaultCircuitBreakerThresh   = 5
	defaultCircuitBreakerTimeout  = 30 * time.Second
	defaultManifestRetryInterval  = 2 * time.Second
	defaultManifestBusyInterval   = 300 * time.Millisecond
	defaultManifestIdleInterval   = 700 * time.Millisecond
	defaultManifestBacklogThresh  = 4
	defaultFrameExpiration        = 12 * time.Second
	defaultFetchConcurrency       = 50
	defaultDecodeConcurrency      = 150
	defaultWorkerIdleInterval     = 100 * time.Millisecond
	defaultStreamingCapacity      = 50
	defaultStreamingMinBuffered   = 5
	defaultStaticReadyRatio       = 0.6
	defaultInitialDelay           = 35 * time.Millisecond
	defaultMinFrameSpacing        = 5 * time.Millisecond
	defaultRenderOverhead         = 7 * time.Millisecond
	defaultRampMinDelay           = 45 * time.Millisecond
	defaultRampMaxDelay           = 180 * time.Millisecond
	defaultRampStep               = 19 * time.Millisecond
	defaultRampHighWater          = 19
	defaultAudioSampleRate        = 48000
	defaultAudioPollInterval      = 35 * time.Millisecond
	defaultAudioRetryInterval     = 15 * time.Millisecond
	defaultAudioLookahead         = 1
	defaultAudioMinSamples        = 10
	defaultAudioStartDelayBase    = 3 * time.Second
	defaultAudioStartDelayPerFrm  = 40 * time.Millisecond
	defaultHostTickRate           = 60
	defaultMaxFrameQueue          = 256
	defaultLocalRecordingsBaseDir = "./recordings"
)

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Decode   DecodeConfig   `mapstructure:"decode"`
	Buffer   BufferConfig   `mapstructure:"buffer"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Status   StatusConfig   `mapstructure:"status"`
	Host     HostConfig     `mapstructure:"host"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// HTTPConfig holds asset transport configuration.
type HTTPConfig struct {
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	MaxResponseSize         ByteSize      `mapstructure:"max_response_size"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	RetryAttempts           int           `mapstructure:"retry_attempts"` // asset retries, 0 = fail fast
	UserAgent               string        `mapstructure:"user_agent"`     // empty = scvv/<version>
}

// ManifestConfig holds manifest polling configuration.
type ManifestConfig struct {
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	BusyInterval     time.Duration `mapstructure:"busy_interval"` // poll rate while the backlog is large
	IdleInterval     time.Duration `mapstructure:"idle_interval"`
	BacklogThreshold int           `mapstructure:"backlog_threshold"`
	FrameExpiration  time.Duration `mapstructure:"frame_expiration"` // used when the manifest omits it
}

// DecodeConfig holds decode worker configuration.
type DecodeConfig struct {
	FetchConcurrency  int           `mapstructure:"fetch_concurrency"`
	DecodeConcurrency int           `mapstructure:"decode_concurrency"`
	Workers           int           `mapstructure:"workers"` // CPU pool size, 0 = NumCPU
	IdleInterval      time.Duration `mapstructure:"idle_interval"`
	QueueSize         int           `mapstructure:"queue_size"`
}

// BufferConfig holds frame buffer configuration.
type BufferConfig struct {
	StreamingCapacity    int     `mapstructure:"streaming_capacity"`
	StreamingMinBuffered int     `mapstructure:"streaming_min_buffered"`
	StaticReadyRatio     float64 `mapstructure:"static_ready_ratio"`
}

// PlaybackConfig holds playback scheduler configuration.
type PlaybackConfig struct {
	Loop            bool          `mapstructure:"loop"`
	Autoplay        bool          `mapstructure:"autoplay"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"`
	MinFrameSpacing time.Duration `mapstructure:"min_frame_spacing"`
	RenderOverhead  time.Duration `mapstructure:"render_overhead"`
	Ramp            RampConfig    `mapstructure:"ramp"`
}

// RampConfig holds the streaming delay ramp.
type RampConfig struct {
	MinDelay  time.Duration `mapstructure:"min_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
	Step      time.Duration `mapstructure:"step"`
	HighWater int           `mapstructure:"high_water"`
}

// AudioConfig holds audio subsystem configuration.
type AudioConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	SampleRate         int           `mapstructure:"sample_rate"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	RetryInterval      time.Duration `mapstructure:"retry_interval"`
	Lookahead          int           `mapstructure:"lookahead"`
	MinSamples         int           `mapstructure:"min_samples"`
	StartDelayBase     time.Duration `mapstructure:"start_delay_base"`
	StartDelayPerFrame time.Duration `mapstructure:"start_delay_per_frame"`
	FFmpegPath         string        `mapstructure:"ffmpeg_path"` // empty = auto-detect
}

// StorageConfig holds local recording configuration.
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// StatusConfig holds the status API server configuration.
type StatusConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HostConfig holds the headless host loop configuration.
type HostConfig struct {
	TickRate int `mapstructure:"tick_rate"` // ticks per second
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SCVV_ and use underscores for nesting.
// Example: SCVV_PLAYBACK_LOOP=true.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/scvv")
		v.AddConfigPath("$HOME/.scvv")
	}

	v.SetEnvPrefix("SCVV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is OK, defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return Decode(v)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Transport defaults
	v.SetDefault("http.request_timeout", defaultRequestTimeout)
	v.SetDefault("http.max_response_size", defaultMaxResponseSize)
	v.SetDefault("http.circuit_breaker_threshold", defaultCircuitBreakerThresh)
	v.SetDefault("http.circuit_breaker_timeout", defaultCircuitBreakerTimeout)
	v.SetDefault("http.retry_attempts", 0)
	v.SetDefault("http.user_agent", "")

	// Manifest defaults
	v.SetDefault("manifest.retry_interval", defaultManifestRetryInterval)
	v.SetDefault("manifest.busy_interval", defaultManifestBusyInterval)
	v.SetDefault("manifest.idle_interval", defaultManifestIdleInterval)
	v.SetDefault("manifest.backlog_threshold", defaultManifestBacklogThresh)
	v.SetDefault("manifest.frame_expiration", defaultFrameExpiration)

	// Decode defaults
	v.SetDefault("decode.fetch_concurrency", defaultFetchConcurrency)
	v.SetDefault("decode.decode_concurrency", defaultDecodeConcurrency)
	v.SetDefault("decode.workers", 0)
	v.SetDefault("decode.idle_interval", defaultWorkerIdleInterval)
	v.SetDefault("decode.queue_size", defaultMaxFrameQueue)

	// Buffer defaults
	v.SetDefault("buffer.streaming_capacity", defaultStreamingCapacity)
	v.SetDefault("buffer.streaming_min_buffered", defaultStreamingMinBuffered)
	v.SetDefault("buffer.static_ready_ratio", defaultStaticReadyRatio)

	// Playback defaults
	v.SetDefault("playback.loop", true)
	v.SetDefault("playback.autoplay", true)
	v.SetDefault("playback.initial_delay", defaultInitialDelay)
	v.SetDefault("playback.min_frame_spacing", defaultMinFrameSpacing)
	v.SetDefault("playback.render_overhead", defaultRenderOverhead)
	v.SetDefault("playback.ramp.min_delay", defaultRampMinDelay)
	v.SetDefault("playback.ramp.max_delay", defaultRampMaxDelay)
	v.SetDefault("playback.ramp.step", defaultRampStep)
	v.SetDefault("playback.ramp.high_water", defaultRampHighWater)

	// Audio defaults
	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.sample_rate", defaultAudioSampleRate)
	v.SetDefault("audio.poll_interval", defaultAudioPollInterval)
	v.SetDefault("audio.retry_interval", defaultAudioRetryInterval)
	v.SetDefault("audio.lookahead", defaultAudioLookahead)
	v.SetDefault("audio.min_samples", defaultAudioMinSamples)
	v.SetDefault("audio.start_delay_base", defaultAudioStartDelayBase)
	v.SetDefault("audio.start_delay_per_frame", defaultAudioStartDelayPerFrm)
	v.SetDefault("audio.ffmpeg_path", "")

	// Storage defaults
	v.SetDefault("storage.base_dir", defaultLocalRecordingsBaseDir)

	// Status API defaults
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.host", "127.0.0.1")
	v.SetDefault("status.port", defaultStatusPort)
	v.SetDefault("status.read_timeout", defaultServerTimeout)
	v.SetDefault("status.write_timeout", defaultServerTimeout)
	v.SetDefault("status.shutdown_timeout", defaultShutdownTimeout)

	// Host defaults
	v.SetDefault("host.tick_rate", defaultHostTickRate)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive")
	}
	if c.HTTP.RetryAttempts < 0 {
		return fmt.Errorf("http.retry_attempts must not be negative")
	}

	if c.Manifest.RetryInterval <= 0 || c.Manifest.BusyInterval <= 0 || c.Manifest.IdleInterval <= 0 {
		return fmt.Errorf("manifest intervals must be positive")
	}

	if c.Decode.FetchConcurrency < 1 {
		return fmt.Errorf("decode.fetch_concurrency must be at least 1")
	}
	if c.Decode.DecodeConcurrency < 1 {
		return fmt.Errorf("decode.decode_concurrency must be at least 1")
	}
	if c.Decode.Workers < 0 {
		return fmt.Errorf("decode.workers must not be negative")
	}

	if c.Buffer.StreamingCapacity < 1 {
		return fmt.Errorf("buffer.streaming_capacity must be at least 1")
	}
	if c.Buffer.StreamingMinBuffered < 0 || c.Buffer.StreamingMinBuffered >= c.Buffer.StreamingCapacity {
		return fmt.Errorf("buffer.streaming_min_buffered must be in [0, streaming_capacity)")
	}
	if c.Buffer.StaticReadyRatio < 0 || c.Buffer.StaticReadyRatio >= 1 {
		return fmt.Errorf("buffer.static_ready_ratio must be in [0, 1)")
	}

	if c.Playback.MinFrameSpacing <= 0 {
		return fmt.Errorf("playback.min_frame_spacing must be positive")
	}
	if c.Playback.Ramp.MaxDelay < c.Playback.Ramp.MinDelay {
		return fmt.Errorf("playback.ramp.max_delay must not be below min_delay")
	}

	if c.Audio.SampleRate < 1 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.Lookahead < 1 {
		return fmt.Errorf("audio.lookahead must be at least 1")
	}

	const maxPort = 65535
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > maxPort) {
		return fmt.Errorf("status.port must be between 1 and %d", maxPort)
	}

	if c.Host.TickRate < 1 {
		return fmt.Errorf("host.tick_rate must be at least 1")
	}

	return nil
}

// Address returns the status server address in host:port format.
func (c *StatusConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TickInterval returns the host tick period.
func (c *HostConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}
