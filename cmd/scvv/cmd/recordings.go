package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/recorder"
	"github.com/jmylchreest/scvv/internal/storage"
	"github.com/jmylchreest/scvv/pkg/format"
)

var saveCmd = &cobra.Command{
	Use:   "save <base-url> <name>",
	Short: "Save a recorded clip for offline playback",
	Long: `Copy a recorded (non-live) clip into storage.base_dir/<name> so it can be
played later with:

  scvv play local://<name>`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fetcher, _, err := newFetcher(cfg, logger)
		if err != nil {
			return err
		}
		sandbox, err := storage.NewSandbox(cfg.Storage.BaseDir)
		if err != nil {
			return fmt.Errorf("initializing recordings storage: %w", err)
		}

		sum, err := recorder.New(fetcher, sandbox, cfg.Decode.FetchConcurrency).
			WithLogger(logger).
			Save(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "saved %s: %s frames, %s files, %s\n",
			sum.Name, format.Number(int64(sum.Frames)), format.Number(int64(sum.Files)), format.Bytes(sum.Bytes))
		for _, u := range sum.Skipped {
			fmt.Fprintf(out, "not copied (absolute URL): %s\n", u)
		}
		return nil
	},
}

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List saved recordings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sandbox, err := storage.NewSandbox(cfg.Storage.BaseDir)
		if err != nil {
			return fmt.Errorf("initializing recordings storage: %w", err)
		}
		recs, err := sandbox.Recordings(manifest.FileName)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFILES\tSIZE\tMODIFIED")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				r.Name, format.Number(int64(r.Files)), format.Bytes(r.Size), r.Modified.Format(time.DateTime))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(saveCmd, recordingsCmd)
}
