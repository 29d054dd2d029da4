package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/internal/etl"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint, the next month and table row counts",
		RunE: func(c *cobra.Command, args []string) error {
			return runStatus(c, v)
		},
	}
}

type statusReport struct {
	Pipeline   string
	Window     models.Window
	Checkpoint *models.Checkpoint
	Tables     []etl.TableStat
}

func printStatus(w io.Writer, r statusReport) {
	label := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", label("Pipeline:  "), r.Pipeline)
	fmt.Fprintf(w, "%s %s\n", label("Window:    "), r.Window)

	if r.Checkpoint == nil {
		fmt.Fprintf(w, "%s %s\n", label("Checkpoint:"), color.YellowString("none"))
	} else {
		fmt.Fprintf(w, "%s %s (loaded %s)\n", label("Checkpoint:"),
			color.GreenString(r.Checkpoint.Partition.String()),
			r.Checkpoint.LoadedAt.Format(time.RFC3339))
	}

	if next, ok := etl.NextPartition(r.Checkpoint, r.Window); ok {
		fmt.Fprintf(w, "%s %s\n", label("Next:      "), color.CyanString(next.String()))
	} else {
		fmt.Fprintf(w, "%s %s\n", label("Next:      "), color.GreenString("up to date"))
	}

	fmt.Fprintln(w, label("Tables:"))
	for _, t := range r.Tables {
		if !t.Exists {
			fmt.Fprintf(w, "  %-28s %s\n", t.Table, color.YellowString("missing"))
			continue
		}
		latest := ""
		if t.Latest.Valid {
			latest = "  latest " + t.Latest.Time.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "  %-28s %12d rows%s\n", t.Table, t.Rows, latest)
	}
}

func printResult(w io.Writer, res *etl.Result, refresh bool) {
	switch res.Outcome {
	case etl.OutcomeLoaded:
		fmt.Fprintf(w, "%s %s loaded (%d rows)\n", color.GreenString("✔"), res.Target, res.Rows)
	case etl.OutcomeRefreshed:
		fmt.Fprintf(w, "%s refresh committed through %s, %d month(s) reloaded (%d rows)\n",
			color.GreenString("✔"), res.Target, len(res.Reloaded), res.Rows)
	case etl.OutcomeUpToDate:
		fmt.Fprintf(w, "%s up to date at %s, nothing to do\n", color.GreenString("✔"), res.Checkpoint.Partition)
	case etl.OutcomePending:
		fmt.Fprintf(w, "%s %s is not published yet\n", color.YellowString("…"), describeTarget(res))
	case etl.OutcomePlanned:
		if refresh {
			fmt.Fprintf(w, "%s would reload %d month(s): %v\n", color.CyanString("dry run:"), len(res.Reloaded), res.Reloaded)
		} else {
			fmt.Fprintf(w, "%s next month is %s\n", color.CyanString("dry run:"), res.Target)
		}
	}
}

func describeTarget(res *etl.Result) string {
	if res.Target.IsZero() {
		return "the window"
	}
	return res.Target.String()
}
