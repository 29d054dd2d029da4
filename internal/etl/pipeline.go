package etl

import (
	"context"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/logger"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

type Outcome string

const (
	// OutcomeLoaded: one partition went through every stage and is committed.
	OutcomeLoaded Outcome = "loaded"
	// OutcomeUpToDate: the checkpoint already holds the last known partition.
	OutcomeUpToDate Outcome = "up-to-date"
	// OutcomePending: the next partition is not published upstream yet.
	OutcomePending Outcome = "pending"
	// OutcomePlanned: dry run, the target was determined and nothing else ran.
	OutcomePlanned Outcome = "planned"
	// OutcomeRefreshed: a full refresh completed.
	OutcomeRefreshed Outcome = "refreshed"
)

// Result describes a finished invocation.
type Result struct {
	Outcome    Outcome
	Previous   *models.Checkpoint
	Target     models.Partition
	Rows       int64
	Checkpoint *models.Checkpoint
	States     []models.Stage
	// Reloaded lists the partitions a full refresh loaded, or would load
	// on a dry run.
	Reloaded []models.Partition
}

// Pipeline is the incremental controller. It loads at most one partition
// per Run, in calendar order, and writes the checkpoint last.
type Pipeline struct {
	Name    string
	Window  models.Window
	AutoEnd bool

	Store       CheckpointStore
	Fetcher     PartitionFetcher
	Loader      Loader
	Transformer Transformer
	Observer    Observer

	// Decode turns fetched bytes into rows; Parquet when nil.
	Decode    func(ctx context.Context, data []byte) (RowIterator, error)
	BatchSize int

	DryRun          bool
	DeleteAfterLoad bool
	Now             func() time.Time
}

func NewPipeline(name string, w models.Window, store CheckpointStore, fetcher PartitionFetcher, loader Loader, transformer Transformer) *Pipeline {
	return &Pipeline{
		Name:        name,
		Window:      w,
		Store:       store,
		Fetcher:     fetcher,
		Loader:      loader,
		Transformer: transformer,
		BatchSize:   65536,
	}
}

// NextPartition returns the partition after cp within w. With no checkpoint,
// or one older than the window, it is w.First. It returns false when cp is
// already at or past w.Last.
func NextPartition(cp *models.Checkpoint, w models.Window) (models.Partition, bool) {
	if cp == nil || cp.Partition.IsZero() {
		return w.First, true
	}
	next := cp.Partition.Next()
	if next.Before(w.First) {
		return w.First, true
	}
	if next.After(w.Last) {
		return models.Partition{}, false
	}
	return next, true
}

func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	logger.Infof("Starting pipeline %s. Window: %s, DryRun: %v", p.Name, p.Window, p.DryRun)

	var cp *models.Checkpoint
	err := p.stage(ctx, res, models.StageDetermineNext, models.Partition{}, func(ctx context.Context) error {
		if !p.DryRun {
			if err := p.prepare(ctx); err != nil {
				return err
			}
		}
		var err error
		cp, err = p.Store.Read(ctx, p.Name)
		return err
	})
	if err != nil {
		return p.fail(res, err)
	}
	res.Previous = cp
	res.Checkpoint = cp

	target, ok := NextPartition(cp, p.Window)
	if !ok {
		logger.Infow("nothing to do", "checkpoint", cp.Partition.String(), "window_end", p.Window.Last.String())
		return p.done(res, OutcomeUpToDate), nil
	}
	res.Target = target
	logger.Infow("determined next partition", "partition", target.String(), "previous", describe(cp))

	if p.DryRun {
		return p.done(res, OutcomePlanned), nil
	}

	var obj *Object
	err = p.stage(ctx, res, models.StageFetch, target, func(ctx context.Context) error {
		var err error
		obj, err = p.Fetcher.Fetch(ctx, target)
		return err
	})
	if err != nil {
		if p.AutoEnd && models.KindOf(err) == models.KindNotFound {
			logger.Warnw("partition not yet published", "partition", target.String(), "error", err)
			return p.done(res, OutcomePending), nil
		}
		return p.fail(res, err)
	}

	err = p.stage(ctx, res, models.StageLoadRaw, target, func(ctx context.Context) error {
		n, err := p.load(ctx, obj)
		res.Rows = n
		return err
	})
	if err != nil {
		return p.fail(res, err)
	}
	obj = nil

	if err := p.stage(ctx, res, models.StageTransform, target, p.Transformer.Run); err != nil {
		return p.fail(res, err)
	}

	if err := p.commit(ctx, res, target); err != nil {
		return p.fail(res, err)
	}

	if p.DeleteAfterLoad {
		p.discard(target)
	}
	return p.done(res, OutcomeLoaded), nil
}

func (p *Pipeline) prepare(ctx context.Context) error {
	for _, c := range []interface{}{p.Store, p.Loader, p.Transformer} {
		if prep, ok := c.(Preparer); ok {
			if err := prep.Prepare(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) load(ctx context.Context, obj *Object) (int64, error) {
	rows, err := p.open(ctx, obj)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	logger.Infow("loading raw rows", "partition", obj.Partition.String(), "source_rows", rows.NumRows())
	n, err := p.Loader.Load(ctx, obj.Partition, rows)
	if err != nil {
		return n, err
	}
	p.observer().RowsLoaded(obj.Partition, n)
	logger.Infow("loaded raw rows", "partition", obj.Partition.String(), "rows", n)
	return n, nil
}

// open decodes obj. A cached file that cannot be decoded is dropped so the
// next run downloads it again.
func (p *Pipeline) open(ctx context.Context, obj *Object) (RowIterator, error) {
	rows, err := p.decode(ctx, obj.Data)
	if err == nil || !obj.Cached {
		return rows, err
	}
	logger.Warnw("dropping undecodable cached partition file", "partition", obj.Partition.String(), "error", err)
	if derr := p.Fetcher.Discard(obj.Partition); derr != nil {
		logger.Warnw("could not delete cached partition file", "partition", obj.Partition.String(), "error", derr)
	}
	return nil, err
}

func (p *Pipeline) decode(ctx context.Context, data []byte) (RowIterator, error) {
	if p.Decode != nil {
		return p.Decode(ctx, data)
	}
	rows, err := OpenParquet(ctx, data, p.BatchSize)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *Pipeline) commit(ctx context.Context, res *Result, target models.Partition) error {
	at := p.now()
	err := p.stage(ctx, res, models.StageCommit, target, func(ctx context.Context) error {
		return p.Store.Commit(ctx, p.Name, target, at)
	})
	if err != nil {
		return err
	}
	res.Checkpoint = &models.Checkpoint{Pipeline: p.Name, Partition: target, LoadedAt: at}
	p.observer().Committed(target, at)
	logger.Infow("checkpoint committed", "pipeline", p.Name, "partition", target.String())
	return nil
}

// discard drops cached files of committed partitions. The commit already
// happened, so failures are only logged.
func (p *Pipeline) discard(parts ...models.Partition) {
	for _, part := range parts {
		if err := p.Fetcher.Discard(part); err != nil {
			logger.Warnw("could not delete cached partition file", "partition", part.String(), "error", err)
		}
	}
}

// stage runs fn as one controller state and returns its failure classified
// with the stage and partition.
func (p *Pipeline) stage(ctx context.Context, res *Result, stage models.Stage, target models.Partition, fn func(context.Context) error) error {
	res.States = append(res.States, stage)
	logger.Debugw("entering stage", "stage", string(stage), "partition", target.String())

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	p.observer().StageFinished(stage, target, elapsed, err)

	if err == nil {
		logger.Infow("stage completed", "stage", string(stage), "partition", target.String(),
			"elapsed", elapsed.Round(time.Millisecond))
		return nil
	}

	return models.AtStage(err, stage, target)
}

// fail ends the run in FAILED.
func (p *Pipeline) fail(res *Result, err error) (*Result, error) {
	staged := models.AtStage(err, models.StageFailed, models.Partition{})
	res.States = append(res.States, models.StageFailed)
	logger.Errorw("pipeline failed", "pipeline", p.Name, "stage", string(staged.Stage),
		"partition", staged.Partition.String(), "kind", staged.Kind.String(), "error", staged.Err)
	return res, staged
}

func (p *Pipeline) done(res *Result, outcome Outcome) *Result {
	res.Outcome = outcome
	res.States = append(res.States, models.StageDone)
	logger.Infow("pipeline finished", "pipeline", p.Name, "outcome", string(outcome), "partition", res.Target.String())
	return res
}

func (p *Pipeline) observer() Observer {
	if p.Observer == nil {
		return nopObserver{}
	}
	return p.Observer
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func describe(cp *models.Checkpoint) string {
	if cp == nil {
		return "none"
	}
	return cp.Partition.String()
}
