package cli

import (
	"bytes"
	"database/sql"
	"testing"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/internal/etl"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestPrintStatus(t *testing.T) {
	w := models.Window{First: models.MustParsePartition("2024-01"), Last: models.MustParsePartition("2024-12")}
	latest := time.Date(2024, 3, 31, 23, 58, 1, 0, time.UTC)

	var buf bytes.Buffer
	printStatus(&buf, statusReport{
		Pipeline: "nyc_taxi_2024",
		Window:   w,
		Checkpoint: &models.Checkpoint{
			Pipeline:  "nyc_taxi_2024",
			Partition: models.MustParsePartition("2024-03"),
			LoadedAt:  time.Date(2024, 4, 2, 6, 0, 0, 0, time.UTC),
		},
		Tables: []etl.TableStat{
			{Table: "raw_taxi_data_2024", Exists: true, Rows: 9554778, Latest: sql.NullTime{Time: latest, Valid: true}},
			{Table: "gold_taxi_summary_2024", Exists: true, Rows: 3},
			{Table: "silver_taxi_data_2024"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "2024-03 (loaded 2024-04-02T06:00:00Z)")
	assert.Contains(t, out, "Next:       2024-04")
	assert.Contains(t, out, "9554778 rows  latest 2024-03-31 23:58:01")
	assert.Regexp(t, `silver_taxi_data_2024\s+missing`, out)
}

func TestPrintStatus_NoCheckpoint(t *testing.T) {
	w := models.Window{First: models.MustParsePartition("2024-01"), Last: models.MustParsePartition("2024-12")}

	var buf bytes.Buffer
	printStatus(&buf, statusReport{Pipeline: "nyc_taxi_2024", Window: w})

	assert.Contains(t, buf.String(), "Checkpoint: none")
	assert.Contains(t, buf.String(), "Next:       2024-01")
}

func TestPrintResult(t *testing.T) {
	p := func(s string) models.Partition { return models.MustParsePartition(s) }

	tests := []struct {
		name    string
		res     *etl.Result
		refresh bool
		want    string
	}{
		{"loaded", &etl.Result{Outcome: etl.OutcomeLoaded, Target: p("2024-04"), Rows: 3514289}, false, "2024-04 loaded (3514289 rows)"},
		{"up to date", &etl.Result{Outcome: etl.OutcomeUpToDate, Checkpoint: &models.Checkpoint{Partition: p("2024-12")}}, false, "up to date at 2024-12"},
		{"pending", &etl.Result{Outcome: etl.OutcomePending, Target: p("2025-09")}, false, "2025-09 is not published yet"},
		{"pending refresh", &etl.Result{Outcome: etl.OutcomePending}, true, "the window is not published yet"},
		{"planned", &etl.Result{Outcome: etl.OutcomePlanned, Target: p("2024-05")}, false, "next month is 2024-05"},
		{"planned refresh", &etl.Result{Outcome: etl.OutcomePlanned, Reloaded: []models.Partition{p("2024-02")}}, true, "would reload 1 month(s): [2024-02]"},
		{"refreshed", &etl.Result{Outcome: etl.OutcomeRefreshed, Target: p("2024-12"), Reloaded: []models.Partition{p("2024-02"), p("2024-07")}, Rows: 10}, true, "committed through 2024-12, 2 month(s) reloaded (10 rows)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, tt.res, tt.refresh)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
