package models

import (
	"github.com/google/uuid"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

// Checkpoint is a stored, reusable set of raw model weight files. Params
// carries arbitrary metadata, including in-progress multipart upload
// bookkeeping keyed by filename.
type Checkpoint struct {
	bun.BaseModel `bun:"table:checkpoints"`

	ID              uuid.UUID              `bun:",type:uuid,pk"`
	CheckpointType  string                 `bun:",notnull"`
	S3Location      string                 `bun:",notnull"`
	CheckpointNames []string               `bun:",type:jsonb"`
	Status          types.CheckpointStatus `bun:",notnull"`
	Params          map[string]interface{} `bun:",type:jsonb"`
	AllowedRoles    []string               `bun:"allowed_roles_or_users,type:jsonb"`
	CreatedAt       bun.NullTime           `bun:",nullzero,notnull,default:current_timestamp"`
}

func NewCheckpoint(id uuid.UUID, checkpointType, s3Location string, names []string, params map[string]interface{}, roles []string) *Checkpoint {
	return &Checkpoint{
		ID:              id,
		CheckpointType:  checkpointType,
		S3Location:      s3Location,
		CheckpointNames: names,
		Status:          types.CheckpointStatusInitial,
		Params:          params,
		AllowedRoles:    roles,
	}
}
