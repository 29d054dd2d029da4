package etl

import (
	"context"

	"github.com/BartekS5/nyc-taxi-etl/pkg/logger"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

// FullRefresh reconciles every partition of the window with the raw table,
// then rebuilds the derived tables once and commits the last partition.
// Without force a checkpoint already past that partition is kept.
//
// Without force a partition is reloaded only when its source row count
// differs from the raw rows stored for it. With force the raw table is
// truncated first and every partition is reloaded.
func (p *Pipeline) FullRefresh(ctx context.Context, force bool) (*Result, error) {
	res := &Result{}
	logger.Infof("Starting full refresh of %s. Window: %s, Force: %v, DryRun: %v", p.Name, p.Window, force, p.DryRun)

	err := p.stage(ctx, res, models.StageDetermineNext, models.Partition{}, func(ctx context.Context) error {
		if !p.DryRun {
			if err := p.prepare(ctx); err != nil {
				return err
			}
		}
		cp, err := p.Store.Read(ctx, p.Name)
		res.Previous = cp
		return err
	})
	if err != nil {
		return p.fail(res, err)
	}
	res.Checkpoint = res.Previous

	if force && !p.DryRun {
		err := p.stage(ctx, res, models.StageLoadRaw, p.Window.First, p.Loader.Truncate)
		if err != nil {
			return p.fail(res, err)
		}
	}

	var last models.Partition
	for _, part := range p.Window.Partitions() {
		var obj *Object
		err := p.stage(ctx, res, models.StageFetch, part, func(ctx context.Context) error {
			var err error
			obj, err = p.Fetcher.Fetch(ctx, part)
			return err
		})
		if err != nil {
			if p.AutoEnd && models.KindOf(err) == models.KindNotFound {
				logger.Warnw("partition not yet published, refresh stops here", "partition", part.String())
				break
			}
			return p.fail(res, err)
		}

		err = p.stage(ctx, res, models.StageLoadRaw, part, func(ctx context.Context) error {
			reloaded, n, err := p.reconcile(ctx, obj, force)
			if reloaded {
				res.Reloaded = append(res.Reloaded, part)
				res.Rows += n
			}
			return err
		})
		if err != nil {
			return p.fail(res, err)
		}
		last = part
	}

	if last.IsZero() {
		logger.Warnw("no partition of the window is published yet", "window", p.Window.String())
		return p.done(res, OutcomePending), nil
	}
	// Raw rows past the window survive a refresh without force, so the
	// checkpoint stays where it is when it is already ahead.
	through := last
	if !force && res.Previous != nil && res.Previous.Partition.After(last) {
		logger.Warnw("checkpoint is ahead of the refreshed window, keeping it",
			"checkpoint", res.Previous.Partition.String(), "window_end", last.String())
		through = res.Previous.Partition
	}
	res.Target = through

	if p.DryRun {
		logger.Infow("dry run: partitions to reload", "count", len(res.Reloaded))
		return p.done(res, OutcomePlanned), nil
	}

	if err := p.stage(ctx, res, models.StageTransform, last, p.Transformer.Run); err != nil {
		return p.fail(res, err)
	}
	if err := p.commit(ctx, res, through); err != nil {
		return p.fail(res, err)
	}

	if p.DeleteAfterLoad {
		p.discard(res.Reloaded...)
	}
	return p.done(res, OutcomeRefreshed), nil
}

// reconcile reloads obj's partition when forced or when the stored row
// count differs from the file's. On a dry run it only reports the decision.
func (p *Pipeline) reconcile(ctx context.Context, obj *Object, force bool) (bool, int64, error) {
	rows, err := p.open(ctx, obj)
	if err != nil {
		return false, 0, err
	}
	defer rows.Close()

	part := obj.Partition
	if !force {
		stored, err := p.Loader.CountPartition(ctx, part)
		if err != nil {
			return false, 0, err
		}
		if stored == rows.NumRows() {
			logger.Infow("partition up to date, skipping", "partition", part.String(), "rows", stored)
			return false, 0, nil
		}
		logger.Infow("partition differs from source", "partition", part.String(),
			"stored_rows", stored, "source_rows", rows.NumRows())
	}

	if p.DryRun {
		return true, 0, nil
	}

	n, err := p.Loader.Load(ctx, part, rows)
	if err != nil {
		return true, n, err
	}
	p.observer().RowsLoaded(part, n)
	logger.Infow("reloaded raw rows", "partition", part.String(), "rows", n)
	return true, n, nil
}
