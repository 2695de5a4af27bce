package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/ais-go/internal/domain/repository"
	"github.com/smilemakc/ais-go/internal/infrastructure/storage/models"
)

var _ repository.PlanRepository = (*PlanRepository)(nil)

// PlanRepository implements repository.PlanRepository using Bun ORM.
type PlanRepository struct {
	db *bun.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *bun.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.PlanModel) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	_, err := r.db.NewInsert().Model(plan).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) Get(ctx context.Context, id uuid.UUID) (*models.PlanModel, error) {
	plan := new(models.PlanModel)
	err := r.db.NewSelect().Model(plan).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", id, err)
	}
	return plan, nil
}

func (r *PlanRepository) List(ctx context.Context, limit, offset int) ([]*models.PlanModel, error) {
	var plans []*models.PlanModel
	query := r.db.NewSelect().Model(&plans).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}
