package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
)

// Dialect hides the SQL differences between the supported engines.
type Dialect interface {
	Name() string
	DriverName() string
	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string
	QuoteIdent(name string) string
	// CopyIn returns the statement that, prepared inside a transaction,
	// bulk-copies rows into table. Each Exec with arguments buffers a row;
	// an Exec without arguments flushes.
	CopyIn(table string, columns ...string) string
	CreateCheckpointTable(table string) string
	// UpsertCheckpoint binds pipeline name, month and timestamp.
	UpsertCheckpoint(table string) string
	// SelectCheckpoint binds pipeline name and yields month and timestamp.
	SelectCheckpoint(table string) string
	Truncate(table string) string
	// Classify maps a driver error onto the pipeline's error kinds.
	Classify(err error) models.Kind
	IsUndefinedTable(err error) bool
}

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlserver", "mssql":
		return SQLServer{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", name)
	}
}

// Postgres uses lib/pq and COPY FROM STDIN.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }

func (Postgres) CopyIn(table string, columns ...string) string {
	return pq.CopyIn(table, columns...)
}

func (p Postgres) CreateCheckpointTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    pipeline_name TEXT PRIMARY KEY,
    last_loaded_month TEXT,
    last_loaded_at TIMESTAMP
)`, p.QuoteIdent(table))
}

func (p Postgres) UpsertCheckpoint(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (pipeline_name, last_loaded_month, last_loaded_at)
VALUES ($1, $2, $3)
ON CONFLICT (pipeline_name) DO UPDATE
SET last_loaded_month = EXCLUDED.last_loaded_month,
    last_loaded_at = EXCLUDED.last_loaded_at`, p.QuoteIdent(table))
}

func (p Postgres) SelectCheckpoint(table string) string {
	return fmt.Sprintf("SELECT last_loaded_month, last_loaded_at FROM %s WHERE pipeline_name = $1", p.QuoteIdent(table))
}

func (p Postgres) Truncate(table string) string {
	return "TRUNCATE TABLE " + p.QuoteIdent(table)
}

func (Postgres) Classify(err error) models.Kind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23", "22":
			return models.KindConstraintViolation
		case "08", "53", "57":
			return models.KindTransientIO
		default:
			return models.KindQueryError
		}
	}
	return classifyConn(err)
}

func (Postgres) IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

// SQLServer uses go-mssqldb and its bulk copy protocol.
type SQLServer struct{}

func (SQLServer) Name() string       { return "sqlserver" }
func (SQLServer) DriverName() string { return "sqlserver" }

func (SQLServer) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (SQLServer) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (SQLServer) CopyIn(table string, columns ...string) string {
	return mssql.CopyIn(table, mssql.BulkOptions{Tablock: true}, columns...)
}

func (s SQLServer) CreateCheckpointTable(table string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
    pipeline_name NVARCHAR(200) NOT NULL PRIMARY KEY,
    last_loaded_month NVARCHAR(7) NULL,
    last_loaded_at DATETIME2 NULL
)`, strings.ReplaceAll(table, "'", "''"), s.QuoteIdent(table))
}

func (s SQLServer) UpsertCheckpoint(table string) string {
	return fmt.Sprintf(`MERGE %s WITH (HOLDLOCK) AS target
USING (SELECT @p1 AS pipeline_name, @p2 AS last_loaded_month, @p3 AS last_loaded_at) AS source
ON target.pipeline_name = source.pipeline_name
WHEN MATCHED THEN
    UPDATE SET last_loaded_month = source.last_loaded_month, last_loaded_at = source.last_loaded_at
WHEN NOT MATCHED THEN
    INSERT (pipeline_name, last_loaded_month, last_loaded_at)
    VALUES (source.pipeline_name, source.last_loaded_month, source.last_loaded_at);`, s.QuoteIdent(table))
}

func (s SQLServer) SelectCheckpoint(table string) string {
	return fmt.Sprintf("SELECT last_loaded_month, last_loaded_at FROM %s WHERE pipeline_name = @p1", s.QuoteIdent(table))
}

func (s SQLServer) Truncate(table string) string {
	return "TRUNCATE TABLE " + s.QuoteIdent(table)
}

func (SQLServer) Classify(err error) models.Kind {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case 515, 547, 2601, 2627, 8152, 2628, 245, 8114:
			return models.KindConstraintViolation
		case 1205, 4060, 18456, 40613:
			return models.KindTransientIO
		default:
			return models.KindQueryError
		}
	}
	return classifyConn(err)
}

func (SQLServer) IsUndefinedTable(err error) bool {
	var msErr mssql.Error
	return errors.As(err, &msErr) && msErr.Number == 208
}

func classifyConn(err error) models.Kind {
	var netErr net.Error
	switch {
	case err == nil:
		return models.KindUnknown
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return models.KindTransientIO
	default:
		return models.KindUnknown
	}
}

// Wrap classifies err with d and wraps it with msg. Errors that already
// carry a kind are only wrapped; unrecognised errors get the fallback kind.
func Wrap(d Dialect, err error, fallback models.Kind, msg string) error {
	if err == nil {
		return nil
	}
	if models.KindOf(err) != models.KindUnknown {
		return fmt.Errorf("%s: %w", msg, err)
	}
	kind := d.Classify(err)
	if kind == models.KindUnknown {
		kind = fallback
	}
	return models.NewError(kind, fmt.Errorf("%s: %w", msg, err))
}
