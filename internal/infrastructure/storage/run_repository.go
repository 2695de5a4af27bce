package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/ais-go/internal/domain/repository"
	"github.com/smilemakc/ais-go/internal/infrastructure/storage/models"
)

var _ repository.RunRepository = (*RunRepository)(nil)

// RunRepository implements repository.RunRepository using Bun ORM.
type RunRepository struct {
	db *bun.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *bun.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *models.RunModel) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(run).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *RunRepository) UpdateCheckpoint(ctx context.Context, runID uuid.UUID, checkpoint []byte, status string) error {
	_, err := r.db.NewUpdate().
		Model((*models.RunModel)(nil)).
		Set("checkpoint = ?", checkpoint).
		Set("status = ?", status).
		Where("id = ?", runID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update run checkpoint %s: %w", runID, err)
	}
	return nil
}

func (r *RunRepository) Finish(ctx context.Context, runID uuid.UUID, status string) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*models.RunModel)(nil)).
		Set("status = ?", status).
		Set("finished_at = ?", now).
		Where("id = ?", runID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*models.RunModel, error) {
	run := new(models.RunModel)
	err := r.db.NewSelect().Model(run).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

func (r *RunRepository) AppendEvents(ctx context.Context, events []*models.RunEventModel) error {
	if len(events) == 0 {
		return nil
	}
	_, err := r.db.NewInsert().Model(&events).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to append run events: %w", err)
	}
	return nil
}

func (r *RunRepository) ListEvents(ctx context.Context, runID uuid.UUID) ([]*models.RunEventModel, error) {
	var events []*models.RunEventModel
	err := r.db.NewSelect().Model(&events).Where("run_id = ?", runID).Order("seq ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for run %s: %w", runID, err)
	}
	return events, nil
}
