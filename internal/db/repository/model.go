package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

type IModelRepository interface {
	Repository[models.Model]
	List(ctx context.Context, modelTypes, statuses []string) ([]models.Model, error)
	UpdateStatusByID(ctx context.Context, id string, status types.ModelStatus) error
	// UpdateStatusIf moves job_status from want to next in one conditional
	// write; types.ErrConflict means the row was no longer in want.
	UpdateStatusIf(ctx context.Context, id string, want, next types.ModelStatus) error
	UpdateParamsByID(ctx context.Context, id string, params map[string]interface{}) error
}

type ModelRepository struct {
	db bun.IDB
}

func NewModelRepository(db *bun.DB) IModelRepository {
	return &ModelRepository{db: db}
}

func (r *ModelRepository) Create(ctx context.Context, model *models.Model) (*models.Model, error) {
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return nil, err
	}

	return model, nil
}

func (r *ModelRepository) GetByID(ctx context.Context, id string) (*models.Model, error) {
	var model models.Model
	if err := r.db.NewSelect().Model(&model).Where("m.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("model %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}

	return &model, nil
}

func (r *ModelRepository) UpdateByID(ctx context.Context, id string, model *models.Model) (*models.Model, error) {
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	if _, err := r.db.NewUpdate().Model(model).Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	return model, nil
}

func (r *ModelRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.Model{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *ModelRepository) List(ctx context.Context, modelTypes, statuses []string) ([]models.Model, error) {
	var list []models.Model
	q := r.db.NewSelect().Model(&list)
	if len(modelTypes) > 0 {
		q = q.Where("model_type IN (?)", bun.In(modelTypes))
	}
	if len(statuses) > 0 {
		q = q.Where("job_status IN (?)", bun.In(statuses))
	}

	if err := q.Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}

	return list, nil
}

func (r *ModelRepository) UpdateStatusByID(ctx context.Context, id string, status types.ModelStatus) error {
	_, err := r.db.NewUpdate().Model(&models.Model{}).Where("id = ?", id).Set("job_status = ?", status).Exec(ctx)
	return err
}

func (r *ModelRepository) UpdateStatusIf(ctx context.Context, id string, want, next types.ModelStatus) error {
	res, err := r.db.NewUpdate().
		Model(&models.Model{}).
		Where("id = ? AND job_status = ?", id, want).
		Set("job_status = ?", next).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("model %s is not %s: %w", id, want, types.ErrConflict)
	}

	return nil
}

func (r *ModelRepository) UpdateParamsByID(ctx context.Context, id string, params map[string]interface{}) error {
	_, err := r.db.NewUpdate().Model(&models.Model{}).Where("id = ?", id).Set("params = ?", params).Exec(ctx)
	return err
}
