package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/internal/config"
	"github.com/BartekS5/nyc-taxi-etl/internal/etl"
	"github.com/BartekS5/nyc-taxi-etl/pkg/database"
	"github.com/BartekS5/nyc-taxi-etl/pkg/logger"
	"github.com/BartekS5/nyc-taxi-etl/pkg/metrics"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
)

// app holds the components of one invocation.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	mongo    *mongo.Client
	source   etl.Source
	store    etl.CheckpointStore
	runner   *etl.TransformRunner
	pipeline *etl.Pipeline
	metrics  *metrics.Collector
}

// newApp wires config, logger, database, checkpoint store and, when
// withPipeline is set, the source, fetcher, loader and controller.
func newApp(ctx context.Context, v *viper.Viper, withPipeline bool) (*app, error) {
	cfg, err := config.LoadConfig(v)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return nil, models.NewError(models.KindConfigError, fmt.Errorf("initialising logger: %w", err))
	}

	mapping, err := config.LoadMapping(cfg.MappingFile)
	if err != nil {
		return nil, err
	}
	dialect, err := database.DialectFor(cfg.Driver)
	if err != nil {
		return nil, models.NewError(models.KindConfigError, err)
	}

	a := &app{cfg: cfg, metrics: metrics.NewCollector(cfg.PipelineName)}

	a.db, err = database.ConnectSQL(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, models.NewError(models.KindTransientIO, err)
	}
	if cfg.CheckpointBackend == "mongo" {
		a.mongo, err = database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			a.Close()
			return nil, models.NewError(models.KindTransientIO, err)
		}
	}

	a.store, err = etl.NewCheckpointStore(cfg, a.db, dialect, a.mongo)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = etl.NewTransformRunner(a.db, dialect, cfg.SQLDir)

	if !withPipeline {
		return a, nil
	}

	a.source, err = etl.NewSource(ctx, cfg.Source)
	if err != nil {
		a.Close()
		return nil, err
	}
	fetcher := etl.NewFetcher(a.source, cfg.DataDir, cfg.FilePattern)
	loader := etl.NewSQLLoader(a.db, dialect, mapping, cfg.RawTable, cfg.SQLDir)

	p := etl.NewPipeline(cfg.PipelineName, cfg.Window, a.store, fetcher, loader, a.runner)
	p.AutoEnd = cfg.AutoEnd
	p.BatchSize = cfg.BatchSize
	p.DeleteAfterLoad = cfg.DeleteAfterLoad
	p.Observer = a.metrics
	a.pipeline = p

	return a, nil
}

func (a *app) Close() {
	if c, ok := a.source.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warnf("closing source: %v", err)
		}
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.mongo.Disconnect(ctx)
	}
	if a.db != nil {
		a.db.Close()
	}
	logger.Close()
}

// pushMetrics is best effort: the run's outcome is already decided.
func (a *app) pushMetrics() {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, "taxi_etl"); err != nil {
		logger.Warnf("%v", err)
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runIncremental(cmd *cobra.Command, v *viper.Viper, opts *IncrementalOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx, v, true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.pipeline.DryRun = opts.DryRun
	if opts.KeepFiles {
		a.pipeline.DeleteAfterLoad = false
	}

	res, err := a.pipeline.Run(ctx)
	a.pushMetrics()
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, false)
	return nil
}

func runFullRefresh(cmd *cobra.Command, v *viper.Viper, opts *RefreshOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx, v, true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.pipeline.DryRun = opts.DryRun

	res, err := a.pipeline.FullRefresh(ctx, opts.Force)
	a.pushMetrics()
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, true)
	return nil
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx, v, false)
	if err != nil {
		return err
	}
	defer a.Close()

	cp, err := a.store.Read(ctx, a.cfg.PipelineName)
	if err != nil {
		return err
	}

	report := statusReport{Pipeline: a.cfg.PipelineName, Window: a.cfg.Window, Checkpoint: cp}
	for _, t := range []struct{ table, ts string }{
		{a.cfg.RawTable, "tpep_pickup_datetime"},
		{a.cfg.SilverTable, "pickup_datetime"},
		{a.cfg.GoldTable, ""},
	} {
		stat, err := a.runner.TableStats(ctx, t.table, t.ts)
		if err != nil {
			return err
		}
		report.Tables = append(report.Tables, stat)
	}

	printStatus(cmd.OutOrStdout(), report)
	return nil
}
