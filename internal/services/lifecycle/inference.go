package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/db/repository"
	"github.com/sdstation/middleware/internal/services/artifacts"
	"github.com/sdstation/middleware/internal/services/payload"
	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

// Template locations in the bucket. The GUI maintains its own copy; direct
// API callers get the neutral one.
const (
	uiTemplateKey  = "config/aigc.json"
	apiTemplateKey = "template/inferenceTemplate.json"
)

const (
	SourceUI  = "ui"
	SourceAPI = "api"
)

type RunInferenceInput struct {
	TaskType  string                 `json:"task_type"`
	Source    string                 `json:"-"`
	Overrides map[string]interface{} `json:"overrides"`
	Artifacts artifacts.Request      `json:"-"`
}

type RunInferenceResult struct {
	InferenceID  string                   `json:"inference_id"`
	Status       types.InferenceJobStatus `json:"status"`
	EndpointName string                   `json:"endpoint_name"`
	OutputPath   string                   `json:"output_path"`
}

// RunInference assembles the job payload from the stored template plus the
// caller's overrides and resolved artifacts, records the job inprogress and
// fires the async invocation. If the invocation itself fails, the same call
// settles the row to failure with the error text, so a status row always
// tells the story.
func (s *Service) RunInference(ctx context.Context, in RunInferenceInput) (*RunInferenceResult, error) {
	template, err := s.fetchTemplate(ctx, in.Source)
	if err != nil {
		return nil, err
	}

	resolved := s.resolver.Resolve(in.Artifacts)

	merged, err := payload.Assemble(template, in.Overrides, in.TaskType, resolved)
	if err != nil {
		return nil, err
	}
	endpointName, _ := merged["endpoint_name"].(string)

	// Best effort: an unknown task type with an explicit endpoint override
	// has no template default to record.
	checkpointName, _ := payload.DefaultCheckpoint(template, in.TaskType)

	inferenceID := uuid.New()
	job := models.NewInferenceJob(inferenceID, endpointName, checkpointName, in.TaskType, map[string]interface{}{
		"sagemaker_inference_endpoint_name": endpointName,
		"used_models":                       resolved,
	})
	if _, err := s.inferenceJobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting inference job: %w", err)
	}

	body, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding inference payload: %w", err)
	}

	invocation, err := s.executor.InvokeAsync(ctx, endpointName, inferenceID.String(), body)
	if err != nil {
		if finErr := s.inferenceJobs.Finalize(ctx, inferenceID.String(), types.InferenceStatusFailure, err.Error(), nil); finErr != nil {
			logger.Error("settling inference job after invoke failure", "inference_id", inferenceID.String(), "error", finErr.Error())
		}
		return nil, fmt.Errorf("invoking endpoint %s: %w: %v", endpointName, types.ErrTransientIO, err)
	}

	return &RunInferenceResult{
		InferenceID:  inferenceID.String(),
		Status:       types.InferenceStatusInProgress,
		EndpointName: endpointName,
		OutputPath:   invocation.OutputLocation,
	}, nil
}

func (s *Service) fetchTemplate(ctx context.Context, source string) (map[string]interface{}, error) {
	key := apiTemplateKey
	if source == SourceUI {
		key = uiTemplateKey
	}

	content, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching template %s: %w: %v", key, types.ErrTransientIO, err)
	}

	var template map[string]interface{}
	if err := json.Unmarshal(content, &template); err != nil {
		return nil, fmt.Errorf("%w: template %s is not valid json: %v", types.ErrValidation, key, err)
	}
	return template, nil
}

// FinalizeInference writes the terminal status exactly once. The inprogress
// row is the only writable one; a second terminal write surfaces as a
// conflict.
func (s *Service) FinalizeInference(ctx context.Context, inferenceID string, status types.InferenceJobStatus, errText string, imageNames []string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal inference status", types.ErrValidation, status)
	}
	if _, err := s.inferenceJobs.GetByID(ctx, inferenceID); err != nil {
		return err
	}
	return s.inferenceJobs.Finalize(ctx, inferenceID, status, errText, imageNames)
}

func (s *Service) GetInferenceJob(ctx context.Context, inferenceID string) (*models.InferenceJob, error) {
	return s.inferenceJobs.GetByID(ctx, inferenceID)
}

// ListInferenceJobs applies the record-store filter, then the checkpoint
// filter over each job's recorded used models, then the limit.
func (s *Service) ListInferenceJobs(ctx context.Context, filter repository.InferenceJobFilter, checkpointName string, limit int) ([]models.InferenceJob, error) {
	jobs, err := s.inferenceJobs.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if checkpointName != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if jobUsesCheckpoint(&job, checkpointName) {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func jobUsesCheckpoint(job *models.InferenceJob, checkpointName string) bool {
	if job.Checkpoint == checkpointName {
		return true
	}
	used, ok := job.Params["used_models"]
	if !ok {
		return false
	}

	switch categories := used.(type) {
	case map[string][]types.ArtifactReference:
		for _, ref := range categories[types.CategoryCheckpoint] {
			if ref.Name == checkpointName {
				return true
			}
		}
	case map[string]interface{}:
		refs, _ := categories[types.CategoryCheckpoint].([]interface{})
		for _, raw := range refs {
			if ref, ok := raw.(map[string]interface{}); ok {
				if name, _ := ref["model_name"].(string); name == checkpointName {
					return true
				}
			}
		}
	}
	return false
}

// OutputImageURLs presigns a GET per produced image of a succeeded job.
func (s *Service) OutputImageURLs(ctx context.Context, inferenceID string, ttl time.Duration) (map[string]string, error) {
	job, err := s.inferenceJobs.GetByID(ctx, inferenceID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.InferenceStatusSucceed {
		return nil, fmt.Errorf("inference job %s has no outputs in status %s: %w", inferenceID, job.Status, types.ErrPrecondition)
	}

	urls := make(map[string]string, len(job.ImageNames))
	for _, image := range job.ImageNames {
		url, err := s.store.PresignGet(ctx, fmt.Sprintf("out/%s/result/%s", inferenceID, image), ttl)
		if err != nil {
			return nil, fmt.Errorf("presigning %s: %w: %v", image, types.ErrTransientIO, err)
		}
		urls[image] = url
	}
	return urls, nil
}

// OutputParamsURL presigns the parameter descriptor the worker wrote next to
// the images.
func (s *Service) OutputParamsURL(ctx context.Context, inferenceID string, ttl time.Duration) (string, error) {
	if _, err := s.inferenceJobs.GetByID(ctx, inferenceID); err != nil {
		return "", err
	}

	url, err := s.store.PresignGet(ctx, fmt.Sprintf("out/%s/result/%s_param.json", inferenceID, inferenceID), ttl)
	if err != nil {
		return "", fmt.Errorf("presigning param descriptor: %w: %v", types.ErrTransientIO, err)
	}
	return url, nil
}
