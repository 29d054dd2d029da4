package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/internal/config"
	"github.com/BartekS5/nyc-taxi-etl/pkg/database"
	"github.com/BartekS5/nyc-taxi-etl/pkg/logger"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// NewCheckpointStore returns the store selected by CHECKPOINT_BACKEND. The
// Mongo client is only used, and must only be non-nil, for the mongo backend.
func NewCheckpointStore(cfg *config.Config, db *sql.DB, d database.Dialect, client *mongo.Client) (CheckpointStore, error) {
	switch cfg.CheckpointBackend {
	case "sql":
		return NewSQLCheckpointStore(db, d, cfg.MetadataTable), nil
	case "mongo":
		if client == nil {
			return nil, models.Errorf(models.KindConfigError, "mongo checkpoint backend needs a client")
		}
		return NewMongoCheckpointStore(client, cfg.MongoDatabase, cfg.MetadataTable), nil
	case "file":
		return NewFileCheckpointStore(cfg.CheckpointDir), nil
	default:
		return nil, models.Errorf(models.KindConfigError, "unsupported checkpoint backend %q", cfg.CheckpointBackend)
	}
}

// SQLCheckpointStore keeps one row per pipeline in the metadata table.
type SQLCheckpointStore struct {
	DB      *sql.DB
	Dialect database.Dialect
	Table   string
}

func NewSQLCheckpointStore(db *sql.DB, d database.Dialect, table string) *SQLCheckpointStore {
	return &SQLCheckpointStore{DB: db, Dialect: d, Table: table}
}

func (s *SQLCheckpointStore) Prepare(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.CreateCheckpointTable(s.Table)); err != nil {
		return database.Wrap(s.Dialect, err, models.KindQueryError, "ensuring checkpoint table")
	}
	logger.Debugf("Ensured checkpoint table %s exists.", s.Table)
	return nil
}

func (s *SQLCheckpointStore) Read(ctx context.Context, pipeline string) (*models.Checkpoint, error) {
	var month sql.NullString
	var at sql.NullTime
	err := s.DB.QueryRowContext(ctx, s.Dialect.SelectCheckpoint(s.Table), pipeline).Scan(&month, &at)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil && s.Dialect.IsUndefinedTable(err):
		return nil, nil
	case err != nil:
		return nil, database.Wrap(s.Dialect, err, models.KindTransientIO, "reading checkpoint")
	}
	return decodeCheckpoint(pipeline, month, at)
}

func decodeCheckpoint(pipeline string, month sql.NullString, at sql.NullTime) (*models.Checkpoint, error) {
	if !month.Valid || month.String == "" {
		return nil, nil
	}
	p, err := models.ParsePartition(month.String)
	if err != nil {
		return nil, models.NewError(models.KindInvalidState,
			fmt.Errorf("checkpoint of %s holds %q: %w", pipeline, month.String, err))
	}
	cp := &models.Checkpoint{Pipeline: pipeline, Partition: p}
	if at.Valid {
		cp.LoadedAt = at.Time.UTC()
	}
	return cp, nil
}

// Commit upserts the checkpoint row with a single statement.
func (s *SQLCheckpointStore) Commit(ctx context.Context, pipeline string, p models.Partition, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, s.Dialect.UpsertCheckpoint(s.Table), pipeline, p.String(), at.UTC())
	if err != nil {
		return database.Wrap(s.Dialect, err, models.KindTransientIO, "writing checkpoint")
	}
	return nil
}
