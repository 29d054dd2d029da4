package models

import "time"

// Checkpoint is the persisted position of a named pipeline: the last
// partition whose raw, cleaned and aggregated data are all committed.
type Checkpoint struct {
	Pipeline  string
	Partition Partition
	LoadedAt  time.Time
}

// Stage names a state of the incremental controller.
type Stage string

const (
	StageDetermineNext Stage = "DETERMINE_NEXT"
	StageFetch         Stage = "FETCH"
	StageLoadRaw       Stage = "LOAD_RAW"
	StageTransform     Stage = "TRANSFORM"
	StageCommit        Stage = "COMMIT"
	StageDone          Stage = "DONE"
	StageFailed        Stage = "FAILED"
)
