package models

import (
	"github.com/google/uuid"
	"github.com/sdstation/middleware/internal/types"
	"github.com/uptrace/bun"
)

// EndpointDeploymentJob tracks one managed-endpoint provisioning run. The row
// is written before the provisioning workflow is triggered so a status row
// exists even when the trigger call itself fails. EndpointName stays empty
// until the deployment-completion notifier associates one.
type EndpointDeploymentJob struct {
	bun.BaseModel `bun:"table:endpoint_deployment_jobs,alias:ej"`

	ID           uuid.UUID            `bun:",type:uuid,pk"`
	Status       types.EndpointStatus `bun:"endpoint_status,notnull"`
	EndpointName string               `bun:",nullzero"`
	MaxInstances int                  `bun:"max_instance_number,notnull"`
	Autoscaling  bool                 `bun:",notnull"`
	OwnerRoles   []string             `bun:"owner_group_or_role,type:jsonb"`
	Error        string               `bun:",nullzero"`
	StartTime    bun.NullTime         `bun:",nullzero,notnull,default:current_timestamp"`
	CompleteTime bun.NullTime         `bun:",nullzero"`
}

func NewEndpointDeploymentJob(id uuid.UUID, maxInstances int, autoscaling bool, ownerRoles []string) *EndpointDeploymentJob {
	return &EndpointDeploymentJob{
		ID:           id,
		Status:       types.EndpointStatusCreating,
		MaxInstances: maxInstances,
		Autoscaling:  autoscaling,
		OwnerRoles:   ownerRoles,
	}
}
