package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/BartekS5/nyc-taxi-etl/pkg/database"
	"github.com/BartekS5/nyc-taxi-etl/pkg/logger"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

const progressEvery = 500000

// SQLLoader bulk-copies partition rows into the raw table. Each load
// replaces the partition's previous rows inside the same transaction, so
// reloading a month never duplicates it.
type SQLLoader struct {
	DB        *sql.DB
	Dialect   database.Dialect
	Config    *models.MappingSchema
	Table     string
	SetupFile string

	Mapper    *RowMapper
	Validator *Validator
}

func NewSQLLoader(db *sql.DB, d database.Dialect, config *models.MappingSchema, table, sqlDir string) *SQLLoader {
	l := &SQLLoader{
		DB:        db,
		Dialect:   d,
		Config:    config,
		Table:     table,
		Mapper:    NewRowMapper(config),
		Validator: NewValidator(config),
	}
	if sqlDir != "" {
		l.SetupFile = filepath.Join(sqlDir, SetupRawFile)
	}
	return l
}

// Prepare creates the raw table from the setup script.
func (l *SQLLoader) Prepare(ctx context.Context) error {
	if l.SetupFile == "" {
		return nil
	}
	return execScript(ctx, l.DB, l.Dialect, l.SetupFile)
}

func (l *SQLLoader) Load(ctx context.Context, p models.Partition, rows RowIterator) (loaded int64, err error) {
	if err := l.Validator.ValidateColumns(rows.Columns()); err != nil {
		return 0, err
	}
	l.Mapper.Bind(rows.Columns())

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, database.Wrap(l.Dialect, err, models.KindTransientIO, "begin load transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Warnf("rollback of %s load failed: %v", p, rbErr)
			}
		}
	}()

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		l.Dialect.QuoteIdent(l.Table), l.Dialect.QuoteIdent(l.Config.PartitionColumn), l.Dialect.Placeholder(1))
	res, err := tx.ExecContext(ctx, del, p.String())
	if err != nil {
		return 0, database.Wrap(l.Dialect, err, models.KindQueryError, "clearing partition rows")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Infow("replacing previously loaded rows", "partition", p.String(), "rows", n)
	}

	stmt, err := tx.PrepareContext(ctx, l.Dialect.CopyIn(l.Table, l.Config.Columns()...))
	if err != nil {
		return 0, database.Wrap(l.Dialect, err, models.KindQueryError, "preparing bulk copy")
	}
	defer stmt.Close()

	for {
		row, err := rows.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, err
		}

		args, err := l.Mapper.Map(row, p)
		if err != nil {
			return loaded, fmt.Errorf("row %d: %w", loaded+1, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return loaded, database.Wrap(l.Dialect, err, models.KindTransientIO, fmt.Sprintf("copying row %d", loaded+1))
		}

		loaded++
		if loaded%progressEvery == 0 {
			logger.Infow("load progress", "partition", p.String(), "rows", loaded)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return loaded, database.Wrap(l.Dialect, err, models.KindTransientIO, "flushing bulk copy")
	}
	if err := stmt.Close(); err != nil {
		return loaded, database.Wrap(l.Dialect, err, models.KindTransientIO, "closing bulk copy")
	}
	if err := tx.Commit(); err != nil {
		return loaded, database.Wrap(l.Dialect, err, models.KindTransientIO, "committing load")
	}
	return loaded, nil
}

// CountPartition returns the number of raw rows stored for p. A missing
// table counts as empty.
func (l *SQLLoader) CountPartition(ctx context.Context, p models.Partition) (int64, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
		l.Dialect.QuoteIdent(l.Table), l.Dialect.QuoteIdent(l.Config.PartitionColumn), l.Dialect.Placeholder(1))

	var n int64
	if err := l.DB.QueryRowContext(ctx, q, p.String()).Scan(&n); err != nil {
		if l.Dialect.IsUndefinedTable(err) {
			return 0, nil
		}
		return 0, database.Wrap(l.Dialect, err, models.KindQueryError, "counting partition rows")
	}
	return n, nil
}

func (l *SQLLoader) Truncate(ctx context.Context) error {
	if _, err := l.DB.ExecContext(ctx, l.Dialect.Truncate(l.Table)); err != nil {
		return database.Wrap(l.Dialect, err, models.KindQueryError, "truncating raw table")
	}
	logger.Infof("Truncated %s", l.Table)
	return nil
}
