package services

import (
	"context"

	"crowdvolt_tracker/models"
)

type SnapshotSink interface {
	InsertSnapshots(ctx context.Context, rows []models.SnapshotRow) error
}

// SnapshotService appends snapshot rows in bounded batches.
type SnapshotService struct {
	sink      SnapshotSink
	batchSize int
}

func NewSnapshotService(sink SnapshotSink, batchSize int) *SnapshotService {
	return &SnapshotService{sink: sink, batchSize: batchSize}
}

func (s *SnapshotService) Insert(ctx context.Context, rows []models.SnapshotRow) *BatchReport {
	return writeBatches(ctx, "snapshots", rows, s.batchSize, s.sink.InsertSnapshots)
}
