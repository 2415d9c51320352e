package models

import (
	"github.com/google/uuid"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

// InferenceJob is one generation request. Rows are created inprogress and
// written at most once more, to a terminal status.
type InferenceJob struct {
	bun.BaseModel `bun:"table:inference_jobs,alias:ij"`

	ID           uuid.UUID                `bun:",type:uuid,pk"`
	Status       types.InferenceJobStatus `bun:",notnull"`
	EndpointName string                   `bun:"endpoint,notnull"`
	Checkpoint   string                   `bun:",nullzero"`
	TaskType     string                   `bun:",notnull"`
	Params       map[string]interface{}   `bun:",type:jsonb"`
	Error        string                   `bun:",nullzero"`
	ImageNames   []string                 `bun:",type:jsonb"`
	StartTime    bun.NullTime             `bun:",nullzero,notnull,default:current_timestamp"`
	CompleteTime bun.NullTime             `bun:",nullzero"`
}

func NewInferenceJob(id uuid.UUID, endpointName, checkpoint, taskType string, params map[string]interface{}) *InferenceJob {
	return &InferenceJob{
		ID:           id,
		Status:       types.InferenceStatusInProgress,
		EndpointName: endpointName,
		Checkpoint:   checkpoint,
		TaskType:     taskType,
		Params:       params,
	}
}
