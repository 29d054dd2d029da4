package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type RefreshOptions struct {
	Force  bool
	DryRun bool
}

func NewFullRefreshCmd(v *viper.Viper) *cobra.Command {
	opts := &RefreshOptions{}

	cmd := &cobra.Command{
		Use:   "full-refresh",
		Short: "Reconcile every month of the window and rebuild the derived tables",
		Long: `Compares each month's source row count with the rows stored for it and
reloads the months that differ. With --force the raw table is truncated and
every month is reloaded.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runFullRefresh(c, v, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Truncate the raw table and reload every month")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report which months would be reloaded")

	return cmd
}
