// Package repository defines the persistence interfaces the storage
// layer implements, kept independent of any particular driver (bun,
// in-memory, etc.) so application code depends only on these contracts.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/smilemakc/ais-go/internal/infrastructure/storage/models"
)

// PlanRepository persists compiled plans for later retrieval and reuse
// (e.g. replay, audit, or re-running an unchanged plan).
type PlanRepository interface {
	Create(ctx context.Context, plan *models.PlanModel) error
	Get(ctx context.Context, id uuid.UUID) (*models.PlanModel, error)
	List(ctx context.Context, limit, offset int) ([]*models.PlanModel, error)
}
