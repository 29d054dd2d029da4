package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("Postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = DialectFor("mssql")
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", d.DriverName())

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestPostgresStatements(t *testing.T) {
	d := Postgres{}
	assert.Equal(t, "$3", d.Placeholder(3))
	assert.Equal(t, `COPY "raw_taxi_data_2024" ("vendorid", "source_month") FROM STDIN`,
		d.CopyIn("raw_taxi_data_2024", "vendorid", "source_month"))
	assert.Contains(t, d.UpsertCheckpoint("pipeline_metadata"), `ON CONFLICT (pipeline_name) DO UPDATE`)
	assert.Contains(t, d.CreateCheckpointTable("pipeline_metadata"), `CREATE TABLE IF NOT EXISTS "pipeline_metadata"`)
	assert.Equal(t, `TRUNCATE TABLE "raw"`, d.Truncate("raw"))
}

func TestSQLServerStatements(t *testing.T) {
	d := SQLServer{}
	assert.Equal(t, "@p2", d.Placeholder(2))
	assert.Equal(t, "[odd]]name]", d.QuoteIdent("odd]name"))
	assert.Contains(t, d.CopyIn("raw", "a", "b"), "raw")
	assert.Contains(t, d.UpsertCheckpoint("pipeline_metadata"), "MERGE [pipeline_metadata]")
	assert.Contains(t, d.CreateCheckpointTable("pipeline_metadata"), "IF OBJECT_ID(N'pipeline_metadata', N'U') IS NULL")
}

func TestClassify(t *testing.T) {
	pg := Postgres{}
	assert.Equal(t, models.KindConstraintViolation, pg.Classify(&pq.Error{Code: "23505"}))
	assert.Equal(t, models.KindConstraintViolation, pg.Classify(fmt.Errorf("copy: %w", &pq.Error{Code: "22P02"})))
	assert.Equal(t, models.KindTransientIO, pg.Classify(&pq.Error{Code: "08006"}))
	assert.Equal(t, models.KindQueryError, pg.Classify(&pq.Error{Code: "42601"}))
	assert.True(t, pg.IsUndefinedTable(&pq.Error{Code: "42P01"}))
	assert.False(t, pg.IsUndefinedTable(&pq.Error{Code: "42601"}))

	ms := SQLServer{}
	assert.Equal(t, models.KindConstraintViolation, ms.Classify(mssql.Error{Number: 2627}))
	assert.Equal(t, models.KindQueryError, ms.Classify(mssql.Error{Number: 102}))
	assert.True(t, ms.IsUndefinedTable(mssql.Error{Number: 208}))

	assert.Equal(t, models.KindTransientIO, pg.Classify(driver.ErrBadConn))
	assert.Equal(t, models.KindTransientIO, ms.Classify(context.DeadlineExceeded))
	assert.Equal(t, models.KindUnknown, pg.Classify(errors.New("other")))
}

func TestWrap(t *testing.T) {
	d := Postgres{}
	assert.NoError(t, Wrap(d, nil, models.KindQueryError, "noop"))

	err := Wrap(d, &pq.Error{Code: "23502"}, models.KindQueryError, "loading raw rows")
	assert.Equal(t, models.KindConstraintViolation, models.KindOf(err))
	assert.Contains(t, err.Error(), "loading raw rows")

	err = Wrap(d, errors.New("boom"), models.KindTransientIO, "copy")
	assert.Equal(t, models.KindTransientIO, models.KindOf(err))

	classified := models.Errorf(models.KindNotFound, "gone")
	err = Wrap(d, classified, models.KindQueryError, "outer")
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}
