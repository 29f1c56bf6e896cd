package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/decode"
	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/mesh"
	"github.com/jmylchreest/scvv/internal/transport"
	"github.com/jmylchreest/scvv/pkg/format"
)

var probeCmd = &cobra.Command{
	Use:   "probe <base-url>",
	Short: "Inspect a session manifest",
	Long: `Fetch scvv.json from base-url and print a summary of the session.

With --decode N the first N frames are also fetched and decoded through the
same worker the player uses, reporting geometry and texture details and any
network or codec failures.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Int("decode", 0, "decode the first N frames")
	probeCmd.Flags().Duration("timeout", 30*time.Second, "overall probe timeout")
}

func runProbe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("decode")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	fetcher, _, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	m, err := manifest.NewResolver(fetcher, cfg.Manifest.FrameExpiration).WithLogger(logger).Fetch(ctx, args[0])
	if err != nil {
		return fmt.Errorf("probing %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	printManifest(out, m)

	if n <= 0 || len(m.Frames) == 0 {
		return nil
	}
	if n > len(m.Frames) {
		n = len(m.Frames)
	}

	results, err := decodeFrames(ctx, m, m.Frames[:n], cfg.Decode, fetcher, logger)
	if err != nil {
		return err
	}
	printResults(out, results, n)
	return nil
}

func printManifest(w io.Writer, m *manifest.SessionManifest) {
	fmt.Fprintf(w, "base url:    %s\n", m.BaseURL)
	fmt.Fprintf(w, "mode:        %s\n", m.Mode)
	fmt.Fprintf(w, "version:     %s\n", m.Version)
	fmt.Fprintf(w, "frames:      %s\n", format.Number(int64(len(m.Frames))))

	if len(m.Frames) > 0 {
		first, last := m.Frames[0], m.Frames[len(m.Frames)-1]
		var total time.Duration
		for _, f := range m.Frames {
			total += f.Delay()
		}
		fmt.Fprintf(w, "uid range:   %d .. %d\n", first.UID, last.UID)
		fmt.Fprintf(w, "duration:    %s (%s)\n", total.Round(time.Millisecond), format.Rate(len(m.Frames), total))
		fmt.Fprintf(w, "mean delay:  %s\n", format.Millis(total/time.Duration(len(m.Frames))))
	}
	if m.Streaming() {
		fmt.Fprintf(w, "expiration:  %s\n", m.FrameExpiration)
	}
	if url := m.AudioURL(); url != "" {
		fmt.Fprintf(w, "audio:       %s (offset %s)\n", url, m.AudioOffset)
	}
	if !m.Transform.ApproxEqual(manifest.Identity(), 1e-9) {
		fmt.Fprintf(w, "transform:   %v\n", m.Transform)
	}
}

// decodeFrames runs refs through a decode worker and collects one result per
// frame, or fewer if ctx ends first.
func decodeFrames(ctx context.Context, m *manifest.SessionManifest, refs []manifest.FrameRef, dc config.DecodeConfig, fetcher transport.Fetcher, logger *slog.Logger) ([]decode.Result, error) {
	worker := decode.NewWorker(fetcher, mesh.DefaultRegistry(), decode.ConfigFrom(dc)).WithLogger(logger)
	if !worker.Submit(decode.Request{Frames: refs, Context: decode.ContextFrom(m)}) {
		return nil, errors.New("decode queue is full")
	}

	runCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return worker.Run(gctx)
	})

	results := make([]decode.Result, 0, len(refs))
collect:
	for len(results) < len(refs) {
		select {
		case <-ctx.Done():
			break collect
		case r := <-worker.Results():
			results = append(results, r)
		}
	}

	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return results, fmt.Errorf("running decode worker: %w", err)
	}
	return results, nil
}

func printResults(w io.Writer, results []decode.Result, want int) {
	failed := 0
	var bytes int64
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "frame %d: %s error: %v\n", r.Ref.UID, r.Err.Kind, r.Err.Err)
			continue
		}
		f := r.Frame
		bytes += int64(f.SizeBytes())
		fmt.Fprintf(w, "frame %d: %s, %s vertices, texture %s %dx%d\n",
			f.UID, f.Geometry.Kind, format.Number(int64(f.Geometry.VertexCount())),
			f.Texture.Format, f.Texture.Width, f.Texture.Height)
		f.Release()
	}
	fmt.Fprintf(w, "decoded %d/%d frames, %d failed, %s in memory\n",
		len(results)-failed, want, failed, format.Bytes(bytes))
	if len(results) < want {
		fmt.Fprintf(w, "%d frames did not complete before the timeout\n", want-len(results))
	}
}
