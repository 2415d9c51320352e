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

type ITrainJobRepository interface {
	Repository[models.TrainJob]
	UpdateStatusIf(ctx context.Context, id string, want, next types.TrainJobStatus) error
	SetTrainName(ctx context.Context, id string, name string) error
	SetSfnArn(ctx context.Context, id string, arn string) error
}

type TrainJobRepository struct {
	db bun.IDB
}

func NewTrainJobRepository(db *bun.DB) ITrainJobRepository {
	return &TrainJobRepository{db: db}
}

func (r *TrainJobRepository) Create(ctx context.Context, job *models.TrainJob) (*models.TrainJob, error) {
	if job == nil {
		return nil, fmt.Errorf("train job is nil")
	}

	if _, err := r.db.NewInsert().Model(job).Exec(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *TrainJobRepository) GetByID(ctx context.Context, id string) (*models.TrainJob, error) {
	var job models.TrainJob
	if err := r.db.NewSelect().Model(&job).Where("tj.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("train job %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}

	return &job, nil
}

func (r *TrainJobRepository) UpdateByID(ctx context.Context, id string, job *models.TrainJob) (*models.TrainJob, error) {
	if job == nil {
		return nil, fmt.Errorf("train job is nil")
	}

	if _, err := r.db.NewUpdate().Model(job).Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *TrainJobRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.TrainJob{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *TrainJobRepository) UpdateStatusIf(ctx context.Context, id string, want, next types.TrainJobStatus) error {
	res, err := r.db.NewUpdate().
		Model(&models.TrainJob{}).
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
		return fmt.Errorf("train job %s is not %s: %w", id, want, types.ErrConflict)
	}

	return nil
}

func (r *TrainJobRepository) SetTrainName(ctx context.Context, id string, name string) error {
	_, err := r.db.NewUpdate().Model(&models.TrainJob{}).Where("id = ?", id).Set("sagemaker_train_name = ?", name).Exec(ctx)
	return err
}

func (r *TrainJobRepository) SetSfnArn(ctx context.Context, id string, arn string) error {
	_, err := r.db.NewUpdate().Model(&models.TrainJob{}).Where("id = ?", id).Set("sagemaker_sfn_arn = ?", arn).Exec(ctx)
	return err
}
