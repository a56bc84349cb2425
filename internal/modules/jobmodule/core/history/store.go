// Package history keeps a record of finished jobs.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/database"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/job"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("job record not found")

// Store persists terminal job snapshots.
type Store struct {
	db     *gorm.DB
	limit  int
	logger hclog.Logger
}

// NewStore creates a store keeping at most limit records; zero keeps all.
func NewStore(db *gorm.DB, limit int, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		db:     db,
		limit:  limit,
		logger: logger.Named("history"),
	}
}

// Record stores a finished job. Non-terminal snapshots are rejected.
func (s *Store) Record(ctx context.Context, snap job.Snapshot) error {
	if !snap.Status.IsTerminal() {
		return fmt.Errorf("job %s is not finished (status %s)", snap.ID, snap.Status)
	}

	rec := toRecord(snap)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to record job %s: %w", snap.ID, err)
	}

	if s.limit > 0 {
		removed, err := s.Prune(ctx, s.limit)
		if err != nil {
			s.logger.Warn("failed to prune job history", "error", err)
		} else if removed > 0 {
			s.logger.Debug("pruned job history", "removed", removed)
		}
	}
	return nil
}

// List returns up to limit records, most recently finished first.
func (s *Store) List(ctx context.Context, limit int) ([]database.JobRecord, error) {
	var records []database.JobRecord
	q := s.db.WithContext(ctx).Order("ended_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list job history: %w", err)
	}
	return records, nil
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (*database.JobRecord, error) {
	var rec database.JobRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return &rec, nil
}

// Prune deletes all but the keep most recently finished records.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	db := s.db.WithContext(ctx)
	newest := db.Model(&database.JobRecord{}).Select("id").Order("ended_at DESC").Limit(keep)
	res := db.Where("id NOT IN (?)", newest).Delete(&database.JobRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune job history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func toRecord(snap job.Snapshot) database.JobRecord {
	rec := database.JobRecord{
		ID:         snap.ID,
		Type:       snap.Type,
		Title:      snap.Title,
		Status:     snap.Status,
		Error:      snap.Error,
		Message:    snap.Message,
		EndedAt:    snap.EndedAt,
		DurationMs: snap.Duration.Milliseconds(),
	}
	if !snap.StartedAt.IsZero() {
		started := snap.StartedAt
		rec.StartedAt = &started
	}
	return rec
}
