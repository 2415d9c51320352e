package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/mq"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/services/remote"
	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

type CreateModelInput struct {
	Name         string                   `json:"name"`
	ModelType    string                   `json:"model_type"`
	CheckpointID string                   `json:"checkpoint_id"`
	Filenames    []types.MultipartFileReq `json:"filenames"`
	Params       map[string]interface{}   `json:"params"`
}

type CreateModelResult struct {
	Model      *models.Model      `json:"job"`
	Checkpoint *models.Checkpoint `json:"checkpoint"`
	// UploadURLs maps filename to per-part presigned PUT URLs; empty when an
	// existing checkpoint was referenced.
	UploadURLs map[string][]string `json:"s3PresignUrl,omitempty"`
}

// CreateModel registers a model build in Initial. With no checkpoint id it
// first creates a fresh Initial checkpoint and opens one multipart upload per
// input file; with a checkpoint id the referenced checkpoint must already be
// Active. The checkpoint row is written before the model row that references
// it; a crash in between leaves a reusable orphan checkpoint, not a broken
// model.
func (s *Service) CreateModel(ctx context.Context, in CreateModelInput) (*CreateModelResult, error) {
	if in.Name == "" || in.ModelType == "" {
		return nil, fmt.Errorf("%w: name and model_type are required", types.ErrValidation)
	}
	if in.CheckpointID == "" && len(in.Filenames) == 0 {
		return nil, fmt.Errorf("%w: either checkpoint_id or filenames must be provided", types.ErrValidation)
	}

	var (
		checkpoint *models.Checkpoint
		uploadURLs map[string][]string
	)

	if in.CheckpointID == "" {
		ckptID := uuid.New()
		ckptKey := baseCheckpointKey(in.ModelType, in.Name, ckptID.String())

		uploads, err := s.presigner.BatchMultipartInit(ctx, ckptKey, in.Filenames)
		if err != nil {
			return nil, fmt.Errorf("opening multipart uploads: %w: %v", types.ErrTransientIO, err)
		}

		bookkeeping := make(map[string]interface{}, len(uploads))
		uploadURLs = make(map[string][]string, len(uploads))
		filenames := make([]string, 0, len(in.Filenames))
		for _, f := range in.Filenames {
			filenames = append(filenames, f.Filename)
		}
		for filename, upload := range uploads {
			bookkeeping[filename] = map[string]interface{}{
				"upload_id": upload.UploadID,
				"bucket":    upload.Bucket,
				"key":       upload.Key,
			}
			uploadURLs[filename] = upload.PartURLs
		}

		checkpoint = models.NewCheckpoint(ckptID, in.ModelType,
			fmt.Sprintf("s3://%s/%s", s.cfg.S3.Bucket, ckptKey),
			filenames,
			map[string]interface{}{
				"created":          time.Now().UTC().Format(time.RFC3339),
				"multipart_upload": bookkeeping,
			},
			[]string{"*"})

		if _, err := s.checkpoints.Create(ctx, checkpoint); err != nil {
			return nil, fmt.Errorf("persisting checkpoint: %w", err)
		}
	} else {
		ckptID, err := uuid.Parse(in.CheckpointID)
		if err != nil {
			return nil, fmt.Errorf("%w: checkpoint_id is not a uuid", types.ErrValidation)
		}
		checkpoint, err = s.checkpoints.GetByID(ctx, ckptID.String())
		if err != nil {
			return nil, err
		}
		if checkpoint.Status != types.CheckpointStatusActive {
			return nil, fmt.Errorf("checkpoint %s is not Active to use: %w", checkpoint.ID, types.ErrPrecondition)
		}
	}

	modelID := uuid.New()
	model := models.NewModel(modelID, in.Name,
		fmt.Sprintf("s3://%s/%s/output", s.cfg.S3.Bucket, baseModelKey(in.ModelType, in.Name, modelID.String())),
		checkpoint.ID, in.ModelType, in.Params)

	if _, err := s.models.Create(ctx, model); err != nil {
		return nil, fmt.Errorf("persisting model: %w", err)
	}

	return &CreateModelResult{Model: model, Checkpoint: checkpoint, UploadURLs: uploadURLs}, nil
}

type UpdateModelInput struct {
	ModelID string
	Status  types.ModelStatus
	// MultipartTags carries the completed-part etags per filename when the
	// caller has just finished uploading the checkpoint files.
	MultipartTags map[string][]objectstore.CompletedPart
}

type UpdateModelResult struct {
	JobID          string            `json:"id"`
	Status         types.ModelStatus `json:"jobStatus"`
	JobType        string            `json:"jobType"`
	EndpointName   string            `json:"endpointName"`
	OutputLocation string            `json:"output_path"`
}

// UpdateModel advances a model build. The only supported action is Creating:
// it requires the checkpoint to be Active, flips job_status Initial->Creating
// with a conditional write so racing callers trigger at most once, and sends
// the build payload to the async endpoint.
func (s *Service) UpdateModel(ctx context.Context, in UpdateModelInput) (*UpdateModelResult, error) {
	model, err := s.models.GetByID(ctx, in.ModelID)
	if err != nil {
		return nil, err
	}
	checkpoint, err := s.checkpoints.GetByID(ctx, model.CheckpointID.String())
	if err != nil {
		return nil, err
	}

	if len(in.MultipartTags) > 0 && checkpoint.Status == types.CheckpointStatusInitial {
		if err := s.completeCheckpointUpload(ctx, checkpoint, in.MultipartTags); err != nil {
			return nil, err
		}
	}

	switch in.Status {
	case types.ModelStatusCreating:
		// fall through below
	case types.ModelStatusInitial:
		return nil, fmt.Errorf("%w: not allowed to overwrite an existing model build, create a new one", types.ErrUnsupportedAction)
	default:
		return nil, fmt.Errorf("%w: cannot request status %s", types.ErrUnsupportedAction, in.Status)
	}

	if checkpoint.Status != types.CheckpointStatusActive {
		return nil, fmt.Errorf("checkpoint %s is not Active: %w", checkpoint.ID, types.ErrPrecondition)
	}

	if err := s.models.UpdateStatusIf(ctx, model.ID.String(), types.ModelStatusInitial, types.ModelStatusCreating); err != nil {
		return nil, err
	}

	invocation, err := s.invokeModelBuild(ctx, model, checkpoint)
	if err != nil {
		// The row already says Creating and nothing remote is running;
		// settle it instead of leaving it dangling.
		if updErr := s.models.UpdateStatusByID(ctx, model.ID.String(), types.ModelStatusFail); updErr != nil {
			logger.Error("marking model failed after invoke error", "model_id", model.ID.String(), "error", updErr.Error())
		}
		return nil, fmt.Errorf("invoking model build: %w: %v", types.ErrTransientIO, err)
	}

	return &UpdateModelResult{
		JobID:          model.ID.String(),
		Status:         types.ModelStatusCreating,
		JobType:        model.ModelType,
		EndpointName:   s.cfg.SageMaker.EndpointName,
		OutputLocation: invocation.OutputLocation,
	}, nil
}

// completeCheckpointUpload closes every multipart upload recorded in the
// checkpoint's bookkeeping and marks the checkpoint Active. Already-Active
// checkpoints are left alone by the caller.
func (s *Service) completeCheckpointUpload(ctx context.Context, checkpoint *models.Checkpoint, tags map[string][]objectstore.CompletedPart) error {
	bookkeeping, _ := checkpoint.Params["multipart_upload"].(map[string]interface{})
	for filename, parts := range tags {
		entry, _ := bookkeeping[filename].(map[string]interface{})
		if entry == nil {
			return fmt.Errorf("%w: no multipart upload recorded for %s", types.ErrValidation, filename)
		}
		key, _ := entry["key"].(string)
		uploadID, _ := entry["upload_id"].(string)
		if err := s.store.MultipartComplete(ctx, key, uploadID, parts); err != nil {
			return fmt.Errorf("completing upload for %s: %w: %v", filename, types.ErrTransientIO, err)
		}
	}

	if err := s.checkpoints.UpdateStatusByID(ctx, checkpoint.ID.String(), types.CheckpointStatusActive); err != nil {
		return err
	}
	checkpoint.Status = types.CheckpointStatusActive
	return nil
}

func (s *Service) invokeModelBuild(ctx context.Context, model *models.Model, checkpoint *models.Checkpoint) (*remote.AsyncInvocation, error) {
	inner, err := json.Marshal(map[string]interface{}{
		"s3_output_path": model.OutputS3Location,
		"s3_input_path":  checkpoint.S3Location,
		"ckpt_names":     checkpoint.CheckpointNames,
		"param":          model.Params,
		"job_id":         model.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"task":                    types.TaskCreateModel,
		"param_s3":                "",
		"db_create_model_payload": string(inner),
	})
	if err != nil {
		return nil, err
	}

	return s.executor.InvokeAsync(ctx, s.cfg.SageMaker.EndpointName, model.ID.String(), body)
}

// ModelResultMessage is the completion callback the remote build publishes.
type ModelResultMessage struct {
	InferenceID        string `json:"inferenceId"`
	ResponseParameters struct {
		OutputLocation string `json:"outputLocation"`
	} `json:"responseParameters"`
}

// resultDescriptor is what the worker leaves at the output location.
type resultDescriptor struct {
	StatusCode int                    `json:"statusCode"`
	Message    map[string]interface{} `json:"message"`
}

// ProcessModelResult finalizes a model build from a completion callback,
// routing on the topic that delivered it. An unknown model id is reported to
// the caller and nothing is written or published.
func (s *Service) ProcessModelResult(ctx context.Context, topic string, data []byte) error {
	var msg ModelResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: undecodable result message: %v", types.ErrValidation, err)
	}
	if msg.InferenceID == "" {
		return fmt.Errorf("%w: result message has no inferenceId", types.ErrValidation)
	}

	model, err := s.models.GetByID(ctx, msg.InferenceID)
	if err != nil {
		return err
	}

	switch topic {
	case s.cfg.Topics.ModelSuccess:
		return s.finishModelSuccess(ctx, model, msg.ResponseParameters.OutputLocation)
	case s.cfg.Topics.ModelError:
		return s.finishModelFailure(ctx, model)
	default:
		return fmt.Errorf("%w: unknown result topic %s", types.ErrValidation, topic)
	}
}

func (s *Service) finishModelSuccess(ctx context.Context, model *models.Model, outputLocation string) error {
	descriptor, err := s.fetchResultDescriptor(ctx, outputLocation)
	if err != nil || descriptor.StatusCode != 200 {
		if err != nil {
			logger.Warn("reading model result descriptor", "model_id", model.ID.String(), "error", err.Error())
		}
		return s.finishModelFailure(ctx, model)
	}

	if err := s.models.UpdateStatusIf(ctx, model.ID.String(), types.ModelStatusCreating, types.ModelStatusComplete); err != nil {
		return err
	}

	params := model.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	resp := make(map[string]interface{}, len(descriptor.Message)+1)
	for k, v := range descriptor.Message {
		resp[k] = v
	}
	resp["s3_output_location"] = fmt.Sprintf("%s/%s/%s.tar", s.cfg.S3.Bucket, model.ModelType, model.Name)
	params["resp"] = resp

	if err := s.models.UpdateParamsByID(ctx, model.ID.String(), params); err != nil {
		return err
	}

	s.notifyUser(ctx,
		fmt.Sprintf("Create Model Job %s: %s success", model.Name, model.ID),
		fmt.Sprintf("model %s: %s is ready to use", model.Name, model.ID))
	return nil
}

func (s *Service) finishModelFailure(ctx context.Context, model *models.Model) error {
	if err := s.models.UpdateStatusIf(ctx, model.ID.String(), types.ModelStatusCreating, types.ModelStatusFail); err != nil {
		return err
	}

	s.notifyUser(ctx,
		fmt.Sprintf("Create Model Job %s: %s failed", model.Name, model.ID),
		fmt.Sprintf("model build %s failed, check the training logs", model.ID))
	return nil
}

func (s *Service) fetchResultDescriptor(ctx context.Context, location string) (*resultDescriptor, error) {
	_, key, err := objectstore.SplitLocation(location)
	if err != nil {
		return nil, err
	}
	content, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var descriptor resultDescriptor
	if err := json.Unmarshal(content, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

// ConsumeModelResults drains the two completion topics until ctx is
// cancelled. Per-message failures are logged and the loop moves on.
func (s *Service) ConsumeModelResults(ctx context.Context) {
	for _, topic := range []string{s.cfg.Topics.ModelSuccess, s.cfg.Topics.ModelError} {
		go s.consumeResultTopic(ctx, topic)
	}
}

func (s *Service) consumeResultTopic(ctx context.Context, topic string) {
	for {
		msg, err := s.queue.Receive(ctx, topic)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, mq.ErrQueueClosed) || errors.Is(err, mq.ErrTopicClosed) {
				return
			}
			logger.Warn("receiving model result", "topic", topic, "error", err.Error())
			continue
		}

		data, err := s.queue.GetMessageData(msg)
		if err != nil {
			logger.Warn("decoding model result", "topic", topic, "error", err.Error())
			continue
		}

		if err := s.ProcessModelResult(ctx, topic, data); err != nil {
			logger.Warn("processing model result", "topic", topic, "error", err.Error())
		}

		if err := s.queue.Ack(topic, msg); err != nil {
			logger.Warn("acking model result", "topic", topic, "error", err.Error())
		}
	}
}
