package cli

import (
	"errors"
	"fmt"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigFile  string
	MappingFile string
	Pipeline    string
	LogLevel    string
}

func NewRootCmd() *cobra.Command {
	v := viper.New()
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "taxi-etl",
		Short: "taxi-etl - monthly NYC taxi trip loader",
		Long: `taxi-etl downloads the monthly NYC TLC yellow-taxi Parquet files, loads them
into a raw table, rebuilds the cleaned and aggregated tables with static SQL and
tracks the last loaded month in a checkpoint.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindConfig(v, cmd, opts)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "Optional config file (yaml, toml, json or .env)")
	flags.StringVarP(&opts.MappingFile, "mapping", "m", "", "Column mapping file (default: built-in yellow-taxi mapping)")
	flags.StringVarP(&opts.Pipeline, "pipeline", "p", "", "Checkpoint key (default: PIPELINE_NAME)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: LOG_LEVEL)")

	rootCmd.AddCommand(NewIncrementalCmd(v), NewFullRefreshCmd(v), NewStatusCmd(v))

	return rootCmd
}

// bindConfig layers flags over the environment and the optional config file.
func bindConfig(v *viper.Viper, cmd *cobra.Command, opts *GlobalOptions) error {
	bindings := map[string]string{
		"mapping_file":  "mapping",
		"pipeline_name": "pipeline",
		"log_level":     "log-level",
	}
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return models.NewError(models.KindConfigError,
				fmt.Errorf("error reading configuration file '%s': %w", opts.ConfigFile, err))
		}
	}
	return nil
}

// Exit codes: 1 for a failed run, 2 when the run never started because the
// configuration is unusable.
const (
	ExitFailed = 1
	ExitConfig = 2
)

// ExitCode maps a command error to the process exit code. A configuration
// error raised inside a stage is a failed run.
func ExitCode(err error) int {
	var e *models.Error
	if errors.As(err, &e) && e.Kind == models.KindConfigError && e.Stage == "" {
		return ExitConfig
	}
	return ExitFailed
}
