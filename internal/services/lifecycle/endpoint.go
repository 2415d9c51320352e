package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

type DeployEndpointInput struct {
	MaxInstances int      `json:"initial_instance_count"`
	Autoscaling  bool     `json:"autoscaling_enabled"`
	InstanceType string   `json:"instance_type"`
	OwnerRoles   []string `json:"assign_to_roles"`
}

// DeployEndpoint inserts the deployment row before triggering the
// provisioning workflow, so a status row is observable even when the trigger
// itself fails; in that case the already-written row is settled to failed.
func (s *Service) DeployEndpoint(ctx context.Context, in DeployEndpointInput) (*models.EndpointDeploymentJob, error) {
	if in.MaxInstances < 1 {
		return nil, fmt.Errorf("%w: initial_instance_count must be at least 1", types.ErrValidation)
	}

	job := models.NewEndpointDeploymentJob(uuid.New(), in.MaxInstances, in.Autoscaling, in.OwnerRoles)
	if _, err := s.endpointJobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting endpoint deployment job: %w", err)
	}

	_, err := s.workflows.Start(ctx, s.cfg.Workflows.EndpointStateMachineArn, map[string]interface{}{
		"endpoint_deployment_id": job.ID.String(),
		"initial_instance_count": in.MaxInstances,
		"autoscaling_enabled":    in.Autoscaling,
		"instance_type":          in.InstanceType,
	})
	if err != nil {
		if markErr := s.endpointJobs.MarkFailed(ctx, job.ID.String(), err.Error()); markErr != nil {
			logger.Error("marking endpoint deployment failed", "id", job.ID.String(), "error", markErr.Error())
		}
		return nil, fmt.Errorf("triggering endpoint deployment: %w: %v", types.ErrTransientIO, err)
	}

	return job, nil
}

func (s *Service) GetEndpointJob(ctx context.Context, id string) (*models.EndpointDeploymentJob, error) {
	return s.endpointJobs.GetByID(ctx, id)
}

func (s *Service) ListEndpointJobs(ctx context.Context) ([]models.EndpointDeploymentJob, error) {
	return s.endpointJobs.List(ctx)
}

// SweepEndpoints removes deployment rows whose endpoint no longer exists
// remotely. Rows that never got an endpoint name associated are left alone:
// their deployment may still be in flight. Returns how many rows were
// removed.
func (s *Service) SweepEndpoints(ctx context.Context) (int, error) {
	remoteNames, err := s.executor.ListEndpoints(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing remote endpoints: %w: %v", types.ErrTransientIO, err)
	}
	existing := make(map[string]bool, len(remoteNames))
	for _, name := range remoteNames {
		existing[name] = true
	}

	jobs, err := s.endpointJobs.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, job := range jobs {
		if job.EndpointName == "" || existing[job.EndpointName] {
			continue
		}
		if err := s.endpointJobs.DeleteByID(ctx, job.ID.String()); err != nil {
			logger.Error("removing stale endpoint row", "id", job.ID.String(), "endpoint", job.EndpointName, "error", err.Error())
			continue
		}
		removed++
	}
	return removed, nil
}
