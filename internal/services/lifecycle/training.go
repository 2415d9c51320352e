package lifecycle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/services/remote"
	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

// trainEntrypoint is the script the managed trainer runs inside the image.
const trainEntrypoint = "extensions/sd-webui-sagemaker/sagemaker_entrypoint_json.py"

type CreateTrainJobInput struct {
	ModelID   string                 `json:"model_id"`
	TrainType string                 `json:"train_type"`
	Params    map[string]interface{} `json:"params"`
	// Filenames of the training input files the caller will upload.
	Filenames []string `json:"filenames"`
}

type CreateTrainJobResult struct {
	TrainJob   *models.TrainJob   `json:"job"`
	Checkpoint *models.Checkpoint `json:"checkpoint"`
	// InputUploadURLs maps input filename to a presigned PUT URL.
	InputUploadURLs map[string]string `json:"s3PresignUrl"`
}

// CreateTrainJob registers a training run in Initial against an existing
// model, together with a fresh Initial checkpoint that will receive the
// produced weights, and presigns the input data uploads.
func (s *Service) CreateTrainJob(ctx context.Context, in CreateTrainJobInput) (*CreateTrainJobResult, error) {
	if in.TrainType == "" {
		return nil, fmt.Errorf("%w: train_type is required", types.ErrValidation)
	}
	modelID, err := uuid.Parse(in.ModelID)
	if err != nil {
		return nil, fmt.Errorf("%w: model_id is not a uuid", types.ErrValidation)
	}

	model, err := s.models.GetByID(ctx, modelID.String())
	if err != nil {
		return nil, err
	}

	jobID := uuid.New()
	ckptID := uuid.New()
	ckptKey := baseCheckpointKey(in.TrainType, model.Name, ckptID.String())
	inputKey := fmt.Sprintf("%s/train/%s/%s/input", in.TrainType, model.Name, jobID.String())

	uploadURLs := make(map[string]string, len(in.Filenames))
	for _, filename := range in.Filenames {
		url, err := s.store.PresignPut(ctx, inputKey+"/"+filename, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("presigning %s: %w: %v", filename, types.ErrTransientIO, err)
		}
		uploadURLs[filename] = url
	}

	checkpoint := models.NewCheckpoint(ckptID, in.TrainType,
		fmt.Sprintf("s3://%s/%s", s.cfg.S3.Bucket, ckptKey),
		nil, map[string]interface{}{"created": time.Now().UTC().Format(time.RFC3339)}, []string{"*"})
	if _, err := s.checkpoints.Create(ctx, checkpoint); err != nil {
		return nil, fmt.Errorf("persisting output checkpoint: %w", err)
	}

	job := models.NewTrainJob(jobID, model.ID, ckptID, in.TrainType,
		fmt.Sprintf("s3://%s/%s", s.cfg.S3.Bucket, inputKey), in.Params)
	if _, err := s.trainJobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting train job: %w", err)
	}

	return &CreateTrainJobResult{TrainJob: job, Checkpoint: checkpoint, InputUploadURLs: uploadURLs}, nil
}

type StartTrainingResult struct {
	JobID         string               `json:"id"`
	Status        types.TrainJobStatus `json:"status"`
	TrainType     string               `json:"trainType"`
	RemoteJobName string               `json:"sagemakerTrainName"`
	ExecutionArn  string               `json:"sfnArn"`
	InputLocation string               `json:"input_location"`
}

// StartTraining kicks off the remote run for an Initial train job. The
// Initial->Training flip is a conditional write taken before anything remote
// happens, so re-issuing the request (or racing it) fails with a conflict
// instead of launching twice. Failures after the flip settle the row to Fail.
func (s *Service) StartTraining(ctx context.Context, trainJobID string) (*StartTrainingResult, error) {
	job, err := s.trainJobs.GetByID(ctx, trainJobID)
	if err != nil {
		return nil, err
	}
	model, err := s.models.GetByID(ctx, job.ModelID.String())
	if err != nil {
		return nil, err
	}
	checkpoint, err := s.checkpoints.GetByID(ctx, job.CheckpointID.String())
	if err != nil {
		return nil, err
	}

	if err := s.trainJobs.UpdateStatusIf(ctx, job.ID.String(), types.TrainJobStatusInitial, types.TrainJobStatusTraining); err != nil {
		return nil, err
	}

	result, err := s.launchTraining(ctx, job, model, checkpoint)
	if err != nil {
		if settleErr := s.trainJobs.UpdateStatusIf(ctx, job.ID.String(), types.TrainJobStatusTraining, types.TrainJobStatusFail); settleErr != nil {
			logger.Error("settling train job after launch failure", "train_job_id", job.ID.String(), "error", settleErr.Error())
		}
		return nil, err
	}

	return result, nil
}

func (s *Service) launchTraining(ctx context.Context, job *models.TrainJob, model *models.Model, checkpoint *models.Checkpoint) (*StartTrainingResult, error) {
	hyperparameters, err := encodeHyperparameters(map[string]interface{}{
		"sagemaker_program": trainEntrypoint,
		"params":            job.Params,
		"s3-input-path":     job.InputS3Location,
		"s3-output-path":    checkpoint.S3Location,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding hyperparameters: %w", err)
	}

	handle, err := s.executor.LaunchTraining(ctx, remote.TrainingSpec{
		JobID:           job.ID.String(),
		BaseJobName:     model.Name,
		ImageUri:        s.cfg.SageMaker.TrainImageUri,
		RoleArn:         s.cfg.SageMaker.TrainRoleArn,
		InstanceType:    s.trainingInstanceType(job),
		VolumeSizeGB:    s.cfg.SageMaker.TrainVolumeSizeGB,
		OutputS3Path:    checkpoint.S3Location,
		Hyperparameters: hyperparameters,
	})
	if err != nil {
		return nil, fmt.Errorf("launching training: %w: %v", types.ErrTransientIO, err)
	}

	remoteName, err := s.waitForRemoteName(ctx, handle)
	if err != nil {
		return nil, err
	}
	if err := s.trainJobs.SetTrainName(ctx, job.ID.String(), remoteName); err != nil {
		return nil, err
	}

	executionArn, err := s.workflows.Start(ctx, s.cfg.Workflows.TrainingStateMachineArn, map[string]string{
		"train_job_id":   job.ID.String(),
		"train_job_name": remoteName,
	})
	if err != nil {
		return nil, fmt.Errorf("starting training workflow: %w: %v", types.ErrTransientIO, err)
	}
	if err := s.trainJobs.SetSfnArn(ctx, job.ID.String(), executionArn); err != nil {
		return nil, err
	}

	return &StartTrainingResult{
		JobID:         job.ID.String(),
		Status:        types.TrainJobStatusTraining,
		TrainType:     job.TrainType,
		RemoteJobName: remoteName,
		ExecutionArn:  executionArn,
		InputLocation: job.InputS3Location,
	}, nil
}

// waitForRemoteName polls until the training service registers a job name.
// The wait is bounded; timing out is a retryable failure, not a hang.
func (s *Service) waitForRemoteName(ctx context.Context, handle remote.TrainingHandle) (string, error) {
	deadline := time.NewTimer(s.nameWait)
	defer deadline.Stop()
	tick := time.NewTicker(s.nameWaitTick)
	defer tick.Stop()

	for {
		name, err := handle.Name(ctx)
		if err != nil {
			return "", fmt.Errorf("querying training job name: %w: %v", types.ErrTransientIO, err)
		}
		if name != "" {
			return name, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("training job name not assigned in %s: %w", s.nameWait, types.ErrTransientIO)
		case <-tick.C:
		}
	}
}

func (s *Service) trainingInstanceType(job *models.TrainJob) string {
	if trainingParams, ok := job.Params["training_params"].(map[string]interface{}); ok {
		if instanceType, ok := trainingParams["training_instance_type"].(string); ok && instanceType != "" {
			return instanceType
		}
	}
	return s.cfg.SageMaker.TrainInstanceType
}

// encodeHyperparameters JSON-encodes then base64-wraps every value: the
// launcher only accepts flat string-valued parameters.
func encodeHyperparameters(params map[string]interface{}) (map[string]string, error) {
	encoded := make(map[string]string, len(params))
	for k, v := range params {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("hyperparameter %s: %w", k, err)
		}
		encoded[k] = base64.StdEncoding.EncodeToString(data)
	}
	return encoded, nil
}
