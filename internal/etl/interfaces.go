package etl

import (
	"context"
	"io"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

// Source opens upstream partition objects by name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// PartitionFetcher turns a partition id into the bytes of its file.
type PartitionFetcher interface {
	Fetch(ctx context.Context, p models.Partition) (*Object, error)
	Discard(p models.Partition) error
}

// RowIterator yields decoded source rows keyed by column name. Next returns
// io.EOF after the last row.
type RowIterator interface {
	Columns() []string
	NumRows() int64
	Next(ctx context.Context) (map[string]interface{}, error)
	Close() error
}

// Loader replaces the raw rows of one partition.
type Loader interface {
	Load(ctx context.Context, p models.Partition, rows RowIterator) (int64, error)
	CountPartition(ctx context.Context, p models.Partition) (int64, error)
	Truncate(ctx context.Context) error
}

// Transformer rebuilds the cleaned and aggregated tables from raw.
type Transformer interface {
	Run(ctx context.Context) error
}

// CheckpointStore persists the last committed partition of each pipeline.
// Read returns nil, nil when nothing has been committed yet.
type CheckpointStore interface {
	Read(ctx context.Context, pipeline string) (*models.Checkpoint, error)
	Commit(ctx context.Context, pipeline string, p models.Partition, at time.Time) error
}

// Preparer is implemented by components that create their tables before
// the first stage runs.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Observer receives stage outcomes, e.g. for metrics.
type Observer interface {
	StageFinished(stage models.Stage, p models.Partition, elapsed time.Duration, err error)
	RowsLoaded(p models.Partition, rows int64)
	Committed(p models.Partition, at time.Time)
}

type nopObserver struct{}

func (nopObserver) StageFinished(models.Stage, models.Partition, time.Duration, error) {}
func (nopObserver) RowsLoaded(models.Partition, int64)                               {}
func (nopObserver) Committed(models.Partition, time.Time)                            {}
