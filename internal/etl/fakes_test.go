package etl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

// sliceRows is an in-memory RowIterator.
type sliceRows struct {
	cols   []string
	rows   []map[string]interface{}
	i      int
	closed bool
}

func (r *sliceRows) Columns() []string { return r.cols }
func (r *sliceRows) NumRows() int64    { return int64(len(r.rows)) }
func (r *sliceRows) Close() error      { r.closed = true; return nil }

func (r *sliceRows) Next(ctx context.Context) (map[string]interface{}, error) {
	if r.i >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.i]
	r.i++
	return row, nil
}

func trip(fare, distance, passengers float64) map[string]interface{} {
	return map[string]interface{}{
		"fare_amount":     fare,
		"trip_distance":   distance,
		"passenger_count": passengers,
	}
}

// memStore is a CheckpointStore backed by a map.
type memStore struct {
	cps       map[string]*models.Checkpoint
	commits   int
	prepared  int
	readErr   error
	commitErr error
	prepErr   error
}

func newMemStore() *memStore {
	return &memStore{cps: map[string]*models.Checkpoint{}}
}

func (s *memStore) at(pipeline, month string) *memStore {
	s.cps[pipeline] = &models.Checkpoint{Pipeline: pipeline, Partition: models.MustParsePartition(month)}
	return s
}

func (s *memStore) Prepare(context.Context) error {
	s.prepared++
	return s.prepErr
}

func (s *memStore) Read(_ context.Context, pipeline string) (*models.Checkpoint, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	cp, ok := s.cps[pipeline]
	if !ok {
		return nil, nil
	}
	c := *cp
	return &c, nil
}

func (s *memStore) Commit(_ context.Context, pipeline string, p models.Partition, at time.Time) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++
	s.cps[pipeline] = &models.Checkpoint{Pipeline: pipeline, Partition: p, LoadedAt: at}
	return nil
}

// fakeFetcher serves the partitions present in files. Object data is the
// partition id, which decode turns back into rows. Partitions in stale come
// from the cache with unreadable data until they are discarded.
type fakeFetcher struct {
	files      map[models.Partition][]map[string]interface{}
	stale      map[models.Partition]bool
	fetched    []models.Partition
	discarded  []models.Partition
	fetchErr   error
	discardErr error
}

func (f *fakeFetcher) Fetch(_ context.Context, p models.Partition) (*Object, error) {
	f.fetched = append(f.fetched, p)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if _, ok := f.files[p]; !ok {
		return nil, models.Errorf(models.KindNotFound, "GET yellow_tripdata_%s.parquet: 404 Not Found", p)
	}
	if f.stale[p] {
		return &Object{Partition: p, Name: p.String(), Data: []byte("<html>oops</html>"), Cached: true}, nil
	}
	return &Object{Partition: p, Name: p.String(), Data: []byte(p.String())}, nil
}

func (f *fakeFetcher) Discard(p models.Partition) error {
	f.discarded = append(f.discarded, p)
	delete(f.stale, p)
	return f.discardErr
}

func (f *fakeFetcher) decode(_ context.Context, data []byte) (RowIterator, error) {
	p, err := models.ParsePartition(string(data))
	if err != nil {
		return nil, models.NewError(models.KindConstraintViolation, err)
	}
	return &sliceRows{cols: []string{"fare_amount", "trip_distance", "passenger_count"}, rows: f.files[p]}, nil
}

// memLoader keeps raw rows per partition and replaces them on reload.
type memLoader struct {
	raw       map[models.Partition][]map[string]interface{}
	loads     []models.Partition
	truncates int
	prepared  int
	err       error
}

func newMemLoader() *memLoader {
	return &memLoader{raw: map[models.Partition][]map[string]interface{}{}}
}

func (l *memLoader) Prepare(context.Context) error {
	l.prepared++
	return nil
}

func (l *memLoader) Load(ctx context.Context, p models.Partition, rows RowIterator) (int64, error) {
	l.loads = append(l.loads, p)
	if l.err != nil {
		return 0, l.err
	}
	var got []map[string]interface{}
	for {
		row, err := rows.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		got = append(got, row)
	}
	l.raw[p] = got
	return int64(len(got)), nil
}

func (l *memLoader) CountPartition(_ context.Context, p models.Partition) (int64, error) {
	return int64(len(l.raw[p])), nil
}

func (l *memLoader) Truncate(context.Context) error {
	l.truncates++
	l.raw = map[models.Partition][]map[string]interface{}{}
	return nil
}

func (l *memLoader) totalRows() int {
	n := 0
	for _, rows := range l.raw {
		n += len(rows)
	}
	return n
}

// memTransformer rebuilds silver and gold from the loader's raw rows with
// the same filter and grouping as the SQL scripts.
type memTransformer struct {
	loader *memLoader
	silver map[models.Partition]int
	gold   map[string]int
	runs   int
	err    error
}

func (t *memTransformer) Run(context.Context) error {
	t.runs++
	if t.err != nil {
		return t.err
	}
	t.silver = map[models.Partition]int{}
	t.gold = map[string]int{}
	for p, rows := range t.loader.raw {
		for _, r := range rows {
			if r["fare_amount"].(float64) > 0 && r["trip_distance"].(float64) > 0 && r["passenger_count"].(float64) > 0 {
				t.silver[p]++
				t.gold[p.String()]++
			}
		}
	}
	return nil
}

// recordingObserver remembers what the controller reported.
type recordingObserver struct {
	stages    []string
	rows      int64
	committed []models.Partition
}

func (o *recordingObserver) StageFinished(stage models.Stage, p models.Partition, _ time.Duration, err error) {
	s := string(stage)
	if err != nil {
		s += fmt.Sprintf("!%s", models.KindOf(err))
	}
	o.stages = append(o.stages, s)
}

func (o *recordingObserver) RowsLoaded(_ models.Partition, n int64) { o.rows += n }

func (o *recordingObserver) Committed(p models.Partition, _ time.Time) {
	o.committed = append(o.committed, p)
}
