package etl

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// ParquetRows iterates over the rows of an in-memory Parquet file one
// record batch at a time.
type ParquetRows struct {
	pf      *file.Reader
	rr      pqarrow.RecordReader
	cols    []string
	numRows int64

	rec arrow.Record
	row int
}

// OpenParquet decodes the footer of data and prepares a batched reader.
// Malformed input is a ConstraintViolation.
func OpenParquet(ctx context.Context, data []byte, batchSize int) (*ParquetRows, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewError(models.KindConstraintViolation, fmt.Errorf("reading parquet footer: %w", err))
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return nil, models.NewError(models.KindConstraintViolation, fmt.Errorf("reading parquet schema: %w", err))
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		pf.Close()
		return nil, models.NewError(models.KindConstraintViolation, fmt.Errorf("opening parquet record reader: %w", err))
	}

	schema := rr.Schema()
	cols := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = f.Name
	}

	return &ParquetRows{pf: pf, rr: rr, cols: cols, numRows: pf.NumRows()}, nil
}

// CheckParquet reports whether data ends in a readable Parquet footer.
func CheckParquet(data []byte) error {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return pf.Close()
}

func (r *ParquetRows) Columns() []string { return r.cols }

// NumRows is the row count recorded in the file metadata.
func (r *ParquetRows) NumRows() int64 { return r.numRows }

func (r *ParquetRows) Next(ctx context.Context) (map[string]interface{}, error) {
	for r.rec == nil || r.row >= int(r.rec.NumRows()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.rr.Next() {
			if err := r.rr.Err(); err != nil && err != io.EOF {
				return nil, models.NewError(models.KindConstraintViolation, fmt.Errorf("decoding parquet: %w", err))
			}
			return nil, io.EOF
		}
		r.rec = r.rr.Record()
		r.row = 0
	}

	out := make(map[string]interface{}, len(r.cols))
	for i, col := range r.rec.Columns() {
		out[r.cols[i]] = arrowValue(col, r.row)
	}
	r.row++
	return out, nil
}

func (r *ParquetRows) Close() error {
	r.rr.Release()
	return r.pf.Close()
}

func arrowValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint64:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	case *array.Date32:
		return a.Value(i).ToTime().UTC()
	case *array.Date64:
		return a.Value(i).ToTime().UTC()
	case *array.Dictionary:
		return arrowValue(a.Dictionary(), a.GetValueIndex(i))
	default:
		return col.ValueStr(i)
	}
}
