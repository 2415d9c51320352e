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

type ICheckpointRepository interface {
	Repository[models.Checkpoint]
	List(ctx context.Context, checkpointType string, status types.CheckpointStatus) ([]models.Checkpoint, error)
	UpdateStatusByID(ctx context.Context, id string, status types.CheckpointStatus) error
	UpdateParamsByID(ctx context.Context, id string, params map[string]interface{}) error
}

type CheckpointRepository struct {
	db bun.IDB
}

func NewCheckpointRepository(db *bun.DB) ICheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) Create(ctx context.Context, ckpt *models.Checkpoint) (*models.Checkpoint, error) {
	if ckpt == nil {
		return nil, fmt.Errorf("checkpoint model is nil")
	}

	if _, err := r.db.NewInsert().Model(ckpt).Exec(ctx); err != nil {
		return nil, err
	}

	return ckpt, nil
}

func (r *CheckpointRepository) GetByID(ctx context.Context, id string) (*models.Checkpoint, error) {
	var ckpt models.Checkpoint
	if err := r.db.NewSelect().Model(&ckpt).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("checkpoint %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}

	return &ckpt, nil
}

func (r *CheckpointRepository) UpdateByID(ctx context.Context, id string, ckpt *models.Checkpoint) (*models.Checkpoint, error) {
	if ckpt == nil {
		return nil, fmt.Errorf("checkpoint model is nil")
	}

	if _, err := r.db.NewUpdate().Model(ckpt).Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	return ckpt, nil
}

func (r *CheckpointRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.Checkpoint{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *CheckpointRepository) List(ctx context.Context, checkpointType string, status types.CheckpointStatus) ([]models.Checkpoint, error) {
	var ckpts []models.Checkpoint
	q := r.db.NewSelect().Model(&ckpts)
	if checkpointType != "" {
		q = q.Where("checkpoint_type = ?", checkpointType)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	if err := q.Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}

	return ckpts, nil
}

func (r *CheckpointRepository) UpdateStatusByID(ctx context.Context, id string, status types.CheckpointStatus) error {
	_, err := r.db.NewUpdate().Model(&models.Checkpoint{}).Where("id = ?", id).Set("status = ?", status).Exec(ctx)
	return err
}

func (r *CheckpointRepository) UpdateParamsByID(ctx context.Context, id string, params map[string]interface{}) error {
	_, err := r.db.NewUpdate().Model(&models.Checkpoint{}).Where("id = ?", id).Set("params = ?", params).Exec(ctx)
	return err
}
