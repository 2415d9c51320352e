package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

type IEndpointJobRepository interface {
	Repository[models.EndpointDeploymentJob]
	List(ctx context.Context) ([]models.EndpointDeploymentJob, error)
	GetByEndpointName(ctx context.Context, name string) (*models.EndpointDeploymentJob, error)
	MarkFailed(ctx context.Context, id string, errText string) error
}

type EndpointJobRepository struct {
	db bun.IDB
}

func NewEndpointJobRepository(db *bun.DB) IEndpointJobRepository {
	return &EndpointJobRepository{db: db}
}

func (r *EndpointJobRepository) Create(ctx context.Context, job *models.EndpointDeploymentJob) (*models.EndpointDeploymentJob, error) {
	if job == nil {
		return nil, fmt.Errorf("endpoint deployment job is nil")
	}

	if _, err := r.db.NewInsert().Model(job).Exec(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *EndpointJobRepository) GetByID(ctx context.Context, id string) (*models.EndpointDeploymentJob, error) {
	var job models.EndpointDeploymentJob
	if err := r.db.NewSelect().Model(&job).Where("ej.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("endpoint deployment job %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}

	return &job, nil
}

func (r *EndpointJobRepository) UpdateByID(ctx context.Context, id string, job *models.EndpointDeploymentJob) (*models.EndpointDeploymentJob, error) {
	if job == nil {
		return nil, fmt.Errorf("endpoint deployment job is nil")
	}

	if _, err := r.db.NewUpdate().Model(job).Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *EndpointJobRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.EndpointDeploymentJob{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *EndpointJobRepository) List(ctx context.Context) ([]models.EndpointDeploymentJob, error) {
	var jobs []models.EndpointDeploymentJob
	if err := r.db.NewSelect().Model(&jobs).Order("start_time DESC").Scan(ctx); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *EndpointJobRepository) GetByEndpointName(ctx context.Context, name string) (*models.EndpointDeploymentJob, error) {
	var job models.EndpointDeploymentJob
	if err := r.db.NewSelect().Model(&job).Where("endpoint_name = ?", name).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("endpoint %s: %w", name, types.ErrNotFound)
		}
		return nil, err
	}

	return &job, nil
}

func (r *EndpointJobRepository) MarkFailed(ctx context.Context, id string, errText string) error {
	_, err := r.db.NewUpdate().
		Model(&models.EndpointDeploymentJob{}).
		Where("id = ?", id).
		Set("endpoint_status = ?", types.EndpointStatusFailed).
		Set("error = ?", errText).
		Set("complete_time = ?", time.Now().UTC()).
		Exec(ctx)
	return err
}
