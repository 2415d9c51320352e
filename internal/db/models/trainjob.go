package models

import (
	"github.com/google/uuid"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

// TrainJob is a training run bound to a model, with a checkpoint as its
// output target. SagemakerTrainName and SfnArn are filled in when the run is
// actually started.
type TrainJob struct {
	bun.BaseModel `bun:"table:train_jobs,alias:tj"`

	ID                 uuid.UUID              `bun:",type:uuid,pk"`
	ModelID            uuid.UUID              `bun:",type:uuid,notnull"`
	CheckpointID       uuid.UUID              `bun:",type:uuid,notnull"`
	TrainType          string                 `bun:",notnull"`
	InputS3Location    string                 `bun:",notnull"`
	Params             map[string]interface{} `bun:",type:jsonb"`
	Status             types.TrainJobStatus   `bun:"job_status,notnull"`
	SagemakerTrainName string                 `bun:",nullzero"`
	SfnArn             string                 `bun:"sagemaker_sfn_arn,nullzero"`
	CreatedAt          bun.NullTime           `bun:",nullzero,notnull,default:current_timestamp"`
}

func NewTrainJob(id, modelID, checkpointID uuid.UUID, trainType, inputLocation string, params map[string]interface{}) *TrainJob {
	return &TrainJob{
		ID:              id,
		ModelID:         modelID,
		CheckpointID:    checkpointID,
		TrainType:       trainType,
		InputS3Location: inputLocation,
		Params:          params,
		Status:          types.TrainJobStatusInitial,
	}
}
