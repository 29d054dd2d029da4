package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/database"
	"github.com/BartekS5/nyc-taxi-etl/pkg/logger"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

// Script names looked up in the SQL directory.
const (
	SetupRawFile = "create_raw_table.sql"
	SilverFile   = "transform_silver.sql"
	GoldFile     = "aggregate_gold.sql"
)

// TransformRunner executes the static transform scripts verbatim. Each
// script runs in its own transaction.
type TransformRunner struct {
	DB      *sql.DB
	Dialect database.Dialect
	Dir     string
	Files   []string
}

func NewTransformRunner(db *sql.DB, d database.Dialect, dir string) *TransformRunner {
	return &TransformRunner{DB: db, Dialect: d, Dir: dir, Files: []string{SilverFile, GoldFile}}
}

func (r *TransformRunner) Run(ctx context.Context) error {
	for _, name := range r.Files {
		if err := r.RunFile(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransformRunner) RunFile(ctx context.Context, name string) error {
	return execScript(ctx, r.DB, r.Dialect, filepath.Join(r.Dir, name))
}

func execScript(ctx context.Context, db *sql.DB, d database.Dialect, path string) error {
	name := filepath.Base(path)
	text, err := os.ReadFile(path)
	if err != nil {
		return models.NewError(models.KindConfigError, fmt.Errorf("SQL file not found: %w", err))
	}
	if strings.TrimSpace(string(text)) == "" {
		return models.Errorf(models.KindConfigError, "SQL file %s is empty", path)
	}

	logger.Infof("Running SQL: %s", name)
	start := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return database.Wrap(d, err, models.KindTransientIO, "begin "+name)
	}
	if _, err := tx.ExecContext(ctx, string(text)); err != nil {
		_ = tx.Rollback()
		return scriptError(d, name, err)
	}
	if err := tx.Commit(); err != nil {
		return scriptError(d, name, err)
	}

	logger.Infow("completed SQL", "file", name, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// scriptError keeps the engine's diagnostic text. Only connection problems
// are reported as transient; everything else the engine rejects is a query
// error.
func scriptError(d database.Dialect, name string, err error) error {
	kind := models.KindQueryError
	if d.Classify(err) == models.KindTransientIO {
		kind = models.KindTransientIO
	}
	return models.NewError(kind, fmt.Errorf("executing %s: %w", name, err))
}

// TableStat summarises a table for status reports.
type TableStat struct {
	Table  string
	Exists bool
	Rows   int64
	Latest sql.NullTime
}

// TableStats returns the row count and, when tsColumn is set, its maximum.
// A missing table is reported with Exists unset.
func (r *TransformRunner) TableStats(ctx context.Context, table, tsColumn string) (TableStat, error) {
	stat := TableStat{Table: table}

	var err error
	if tsColumn == "" {
		q := "SELECT COUNT(*) FROM " + r.Dialect.QuoteIdent(table)
		err = r.DB.QueryRowContext(ctx, q).Scan(&stat.Rows)
	} else {
		q := fmt.Sprintf("SELECT COUNT(*), MAX(%s) FROM %s", r.Dialect.QuoteIdent(tsColumn), r.Dialect.QuoteIdent(table))
		err = r.DB.QueryRowContext(ctx, q).Scan(&stat.Rows, &stat.Latest)
	}
	switch {
	case err == nil:
		stat.Exists = true
		return stat, nil
	case r.Dialect.IsUndefinedTable(err) || errors.Is(err, sql.ErrNoRows):
		return stat, nil
	default:
		return stat, database.Wrap(r.Dialect, err, models.KindQueryError, "reading stats of "+table)
	}
}
