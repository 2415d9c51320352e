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

// InferenceJobFilter narrows List; zero values mean "any".
type InferenceJobFilter struct {
	Status    types.InferenceJobStatus
	TaskType  string
	Endpoint  string
	StartFrom time.Time
	StartTo   time.Time
}

type IInferenceJobRepository interface {
	Repository[models.InferenceJob]
	List(ctx context.Context, filter InferenceJobFilter) ([]models.InferenceJob, error)
	// Finalize writes the terminal status exactly once; a second call
	// against an already-terminal row returns types.ErrConflict.
	Finalize(ctx context.Context, id string, status types.InferenceJobStatus, errText string, imageNames []string) error
}

type InferenceJobRepository struct {
	db bun.IDB
}

func NewInferenceJobRepository(db *bun.DB) IInferenceJobRepository {
	return &InferenceJobRepository{db: db}
}

func (r *InferenceJobRepository) Create(ctx context.Context, job *models.InferenceJob) (*models.InferenceJob, error) {
	if job == nil {
		return nil, fmt.Errorf("inference job is nil")
	}

	if _, err := r.db.NewInsert().Model(job).Exec(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *InferenceJobRepository) GetByID(ctx context.Context, id string) (*models.InferenceJob, error) {
	var job models.InferenceJob
	if err := r.db.NewSelect().Model(&job).Where("ij.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("inference job %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}

	return &job, nil
}

func (r *InferenceJobRepository) UpdateByID(ctx context.Context, id string, job *models.InferenceJob) (*models.InferenceJob, error) {
	if job == nil {
		return nil, fmt.Errorf("inference job is nil")
	}

	if _, err := r.db.NewUpdate().Model(job).Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *InferenceJobRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.InferenceJob{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *InferenceJobRepository) List(ctx context.Context, filter InferenceJobFilter) ([]models.InferenceJob, error) {
	var jobs []models.InferenceJob
	q := r.db.NewSelect().Model(&jobs)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.TaskType != "" {
		q = q.Where("task_type = ?", filter.TaskType)
	}
	if filter.Endpoint != "" {
		q = q.Where("endpoint = ?", filter.Endpoint)
	}
	if !filter.StartFrom.IsZero() {
		q = q.Where("start_time >= ?", filter.StartFrom)
	}
	if !filter.StartTo.IsZero() {
		q = q.Where("start_time <= ?", filter.StartTo)
	}

	if err := q.Order("start_time DESC").Scan(ctx); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *InferenceJobRepository) Finalize(ctx context.Context, id string, status types.InferenceJobStatus, errText string, imageNames []string) error {
	res, err := r.db.NewUpdate().
		Model(&models.InferenceJob{}).
		Where("id = ? AND status = ?", id, types.InferenceStatusInProgress).
		Set("status = ?", status).
		Set("error = ?", errText).
		Set("image_names = ?", imageNames).
		Set("complete_time = ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("inference job %s already terminal: %w", id, types.ErrConflict)
	}

	return nil
}
