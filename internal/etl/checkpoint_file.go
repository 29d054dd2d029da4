package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/BartekS5/nyc-taxi-etl/pkg/utils"
)

// FileCheckpointStore keeps one JSON document per pipeline in Dir.
type FileCheckpointStore struct {
	Dir string
}

type fileCheckpoint struct {
	Pipeline        string    `json:"pipeline_name"`
	LastLoadedMonth string    `json:"last_loaded_month"`
	LastLoadedAt    time.Time `json:"last_loaded_at"`
}

func NewFileCheckpointStore(dir string) *FileCheckpointStore {
	return &FileCheckpointStore{Dir: dir}
}

func (s *FileCheckpointStore) path(pipeline string) string {
	return filepath.Join(s.Dir, pipeline+".json")
}

func (s *FileCheckpointStore) Read(_ context.Context, pipeline string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(s.path(pipeline))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewError(models.KindTransientIO, fmt.Errorf("reading checkpoint: %w", err))
	}

	var doc fileCheckpoint
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, models.NewError(models.KindInvalidState, fmt.Errorf("checkpoint file %s: %w", s.path(pipeline), err))
	}
	if doc.LastLoadedMonth == "" {
		return nil, nil
	}
	p, err := models.ParsePartition(doc.LastLoadedMonth)
	if err != nil {
		return nil, models.NewError(models.KindInvalidState, fmt.Errorf("checkpoint file %s: %w", s.path(pipeline), err))
	}
	return &models.Checkpoint{Pipeline: pipeline, Partition: p, LoadedAt: doc.LastLoadedAt.UTC()}, nil
}

// Commit replaces the pipeline's file atomically.
func (s *FileCheckpointStore) Commit(_ context.Context, pipeline string, p models.Partition, at time.Time) error {
	data, err := json.MarshalIndent(fileCheckpoint{
		Pipeline:        pipeline,
		LastLoadedMonth: p.String(),
		LastLoadedAt:    at.UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := utils.WriteAtomic(s.path(pipeline), data); err != nil {
		return models.NewError(models.KindTransientIO, fmt.Errorf("writing checkpoint: %w", err))
	}
	return nil
}
