package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type IncrementalOptions struct {
	DryRun    bool
	KeepFiles bool
}

func NewIncrementalCmd(v *viper.Viper) *cobra.Command {
	opts := &IncrementalOptions{}

	cmd := &cobra.Command{
		Use:   "incremental",
		Short: "Load the next month after the checkpoint",
		Long: `Loads exactly one month: the one after the checkpoint, or the first month of
the window when there is no checkpoint. Exits 0 when there is nothing new.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runIncremental(c, v, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Determine the next month and stop")
	cmd.Flags().BoolVar(&opts.KeepFiles, "keep-files", false, "Keep the cached Parquet file even if DELETE_PARQUET_AFTER_LOAD is set")

	return cmd
}
