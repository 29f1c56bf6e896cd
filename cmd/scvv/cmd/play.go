package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/scvv/internal/audio"
	internalhttp "github.com/jmylchreest/scvv/internal/http"
	"github.com/jmylchreest/scvv/internal/http/handlers"
	"github.com/jmylchreest/scvv/internal/session"
	"github.com/jmylchreest/scvv/internal/version"
	"github.com/jmylchreest/scvv/pkg/format"
)

const statusLogInterval = 5 * time.Second

var playCmd = &cobra.Command{
	Use:   "play <base-url>",
	Short: "Play a clip or live stream",
	Long: `Play the SCVV session at base-url headlessly.

The base URL is the directory holding scvv.json, over http(s) or as
local://<recording> under storage.base_dir. Frames are "displayed" to the log
and audio is clocked rather than rendered, which makes this useful for soak
testing an origin and checking pacing.

With --status the player also serves a status API:
- GET  /health                  host and player health
- GET  /api/v1/session          session snapshot
- POST /api/v1/session/start    start playback
- POST /api/v1/session/stop     stop playback
- PUT  /api/v1/session/source   switch to another base URL`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Bool("loop", true, "loop recorded clips")
	playCmd.Flags().Bool("autoplay", true, "start playback once the buffer is ready")
	playCmd.Flags().Bool("audio", true, "enable clip and live audio")
	playCmd.Flags().String("ffmpeg", "", "path to ffmpeg for non-WAV audio (default: search PATH)")
	playCmd.Flags().Int("tick-rate", 60, "host ticks per second")
	playCmd.Flags().Bool("status", false, "serve the status API")
	playCmd.Flags().String("status-host", "127.0.0.1", "status API host")
	playCmd.Flags().Int("status-port", 8090, "status API port")
	playCmd.Flags().Int("max-frames", 0, "stop after displaying this many frames (0 = unlimited)")
	playCmd.Flags().Duration("duration", 0, "stop after this long (0 = until interrupted)")

	mustBindPFlag("playback.loop", playCmd.Flags().Lookup("loop"))
	mustBindPFlag("playback.autoplay", playCmd.Flags().Lookup("autoplay"))
	mustBindPFlag("audio.enabled", playCmd.Flags().Lookup("audio"))
	mustBindPFlag("audio.ffmpeg_path", playCmd.Flags().Lookup("ffmpeg"))
	mustBindPFlag("host.tick_rate", playCmd.Flags().Lookup("tick-rate"))
	mustBindPFlag("status.enabled", playCmd.Flags().Lookup("status"))
	mustBindPFlag("status.host", playCmd.Flags().Lookup("status-host"))
	mustBindPFlag("status.port", playCmd.Flags().Lookup("status-port"))
}

func runPlay(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	maxFrames, _ := cmd.Flags().GetInt("max-frames")
	limit, _ := cmd.Flags().GetDuration("duration")

	fetcher, registry, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	var device audio.Device
	if cfg.Audio.Enabled {
		device = audio.NewClockDevice(cfg.Audio.SampleRate)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := session.New(ctx, session.Options{
		Config:   cfg,
		Fetcher:  fetcher,
		Renderer: session.NewLogRenderer(logger),
		Device:   device,
		Decoder:  audio.DefaultDecoder(cfg.Audio.FFmpegPath, logger),
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Status.Enabled {
		server := internalhttp.NewServer(cfg.Status, logger, version.Version)
		handlers.NewHealthHandler(version.Version).
			WithRegistry(registry).
			WithSession(sess).
			Register(server.API())
		handlers.NewSessionHandler(sess).Register(server.API())
		g.Go(func() error {
			return server.ListenAndServe(gctx)
		})
	}

	logger.Info("starting scvv player",
		slog.String("source", args[0]),
		slog.String("session_id", sess.ID()),
		slog.String("version", version.Version),
		slog.Int("tick_rate", cfg.Host.TickRate),
		slog.Bool("audio", cfg.Audio.Enabled),
	)

	g.Go(func() error {
		// The session is single-threaded; every host event happens here.
		defer cancel()
		defer sess.Close()
		return hostLoop(gctx, sess, args[0], cfg.Host.TickInterval(), maxFrames, logger)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("playing %s: %w", args[0], err)
	}

	snap := sess.Snapshot()
	logger.Info("player stopped",
		slog.Int64("displayed", displayedCount(snap)),
		slog.Int("quarantined", snap.Quarantined),
	)
	return nil
}

// hostLoop drives the session at a fixed tick until ctx ends or maxFrames
// frames have been displayed.
func hostLoop(ctx context.Context, sess *session.Session, source string, interval time.Duration, maxFrames int, logger *slog.Logger) error {
	sess.SourceChanged(source)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	statusTicker := time.NewTicker(statusLogInterval)
	defer statusTicker.Stop()

	last := time.Now()
	displayed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			if sess.Tick(delta) != nil {
				displayed++
				if maxFrames > 0 && displayed >= maxFrames {
					logger.Info("frame limit reached", slog.Int("max_frames", maxFrames))
					return nil
				}
			}
		case <-statusTicker.C:
			logStatus(logger, sess.Snapshot())
		}
	}
}

func logStatus(logger *slog.Logger, snap session.Snapshot) {
	attrs := []any{
		slog.String("mode", snap.Mode),
		slog.Int("buffered", snap.Buffered),
		slog.String("buffer_size", format.Bytes(int64(snap.BufferBytes))),
		slog.Int("quarantined", snap.Quarantined),
		slog.Int64("manifest_polls", snap.ManifestPolls),
	}
	if snap.Playback != nil {
		attrs = append(attrs,
			slog.String("state", snap.Playback.State),
			slog.Int64("displayed", snap.Playback.Displayed),
			slog.Int64("loops", snap.Playback.Loops),
		)
	}
	logger.Info("player status", attrs...)
}

func displayedCount(snap session.Snapshot) int64 {
	if snap.Playback == nil {
		return 0
	}
	return snap.Playback.Displayed
}
