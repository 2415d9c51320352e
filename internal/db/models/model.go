package models

import (
	"github.com/google/uuid"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

// Model is a build derived from a checkpoint plus parameters. Params grows a
// "resp" sub-object when the remote build completes.
type Model struct {
	bun.BaseModel `bun:"table:models,alias:m"`

	ID               uuid.UUID              `bun:",type:uuid,pk"`
	Name             string                 `bun:",notnull"`
	OutputS3Location string                 `bun:",notnull"`
	CheckpointID     uuid.UUID              `bun:",type:uuid,notnull"`
	Checkpoint       *Checkpoint            `bun:"rel:belongs-to,join:checkpoint_id=id"`
	ModelType        string                 `bun:",notnull"`
	Status           types.ModelStatus      `bun:"job_status,notnull"`
	Params           map[string]interface{} `bun:",type:jsonb"`
	CreatedAt        bun.NullTime           `bun:",nullzero,notnull,default:current_timestamp"`
}

func NewModel(id uuid.UUID, name, outputLocation string, checkpointID uuid.UUID, modelType string, params map[string]interface{}) *Model {
	return &Model{
		ID:               id,
		Name:             name,
		OutputS3Location: outputLocation,
		CheckpointID:     checkpointID,
		ModelType:        modelType,
		Status:           types.ModelStatusInitial,
		Params:           params,
	}
}
