package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/smilemakc/ais-go/internal/infrastructure/storage/models"
)

// RunRepository persists run state and its redacted event log so a
// stalled or interrupted run can be inspected and resumed from its last
// checkpoint.
type RunRepository interface {
	Create(ctx context.Context, run *models.RunModel) error
	UpdateCheckpoint(ctx context.Context, runID uuid.UUID, checkpoint []byte, status string) error
	Finish(ctx context.Context, runID uuid.UUID, status string) error
	Get(ctx context.Context, id uuid.UUID) (*models.RunModel, error)
	AppendEvents(ctx context.Context, events []*models.RunEventModel) error
	ListEvents(ctx context.Context, runID uuid.UUID) ([]*models.RunEventModel, error)
}
