package cmd

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/scvv/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing scvv configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

With no config file or SCVV_ variables set this prints the defaults, so the
output can be redirected to create a configuration template:

  scvv config dump > config.yaml

Environment variables use the SCVV_ prefix and underscores for nesting.
Example: playback.loop -> SCVV_PLAYBACK_LOOP`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return dumpConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case config.ByteSize:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = fv
			}
		}
	}
	return result
}

func dumpConfig(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Fprintln(w, "# scvv configuration")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Duration format: 35ms, 2s, 1m")
	fmt.Fprintln(w, "# Size format: 64MiB, 5MB")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Environment variable overrides:")
	fmt.Fprintln(w, "#   SCVV_PLAYBACK_LOOP, SCVV_PLAYBACK_AUTOPLAY")
	fmt.Fprintln(w, "#   SCVV_AUDIO_ENABLED, SCVV_AUDIO_FFMPEG_PATH")
	fmt.Fprintln(w, "#   SCVV_STATUS_ENABLED, SCVV_STATUS_PORT")
	fmt.Fprintln(w, "#   SCVV_LOGGING_LEVEL, SCVV_LOGGING_FORMAT")
	fmt.Fprintln(w, "#   etc.")
	fmt.Fprintln(w)
	_, err = w.Write(data)
	return err
}
