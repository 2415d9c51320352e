package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/types"
)

func submitModel(t *testing.T, e *env) *CreateModelResult {
	t.Helper()
	res, err := e.svc.CreateModel(context.Background(), CreateModelInput{
		Name:      "dreambooth-cat",
		ModelType: types.CategoryCheckpoint,
		Filenames: []types.MultipartFileReq{
			{Filename: "model.safetensors", PartsNumber: 3},
			{Filename: "model.yaml", PartsNumber: 1},
		},
		Params: map[string]interface{}{"create_model_params": map[string]interface{}{"new_model_name": "cat"}},
	})
	require.NoError(t, err)
	return res
}

func TestCreateModelWithFreshCheckpoint(t *testing.T) {
	e := newEnv()
	res := submitModel(t, e)

	require.NotNil(t, res.Checkpoint)
	assert.Equal(t, types.CheckpointStatusInitial, res.Checkpoint.Status)
	assert.Equal(t, []string{"model.safetensors", "model.yaml"}, res.Checkpoint.CheckpointNames)
	assert.Contains(t, res.Checkpoint.S3Location, "s3://sd-bucket/Stable-diffusion/checkpoint/dreambooth-cat/")

	require.Len(t, res.UploadURLs, 2)
	assert.Len(t, res.UploadURLs["model.safetensors"], 3)
	assert.Len(t, res.UploadURLs["model.yaml"], 1)

	require.NotNil(t, res.Model)
	assert.Equal(t, types.ModelStatusInitial, res.Model.Status)
	assert.Equal(t, res.Checkpoint.ID, res.Model.CheckpointID)

	// Both rows landed.
	_, err := e.checkpoints.GetByID(context.Background(), res.Checkpoint.ID.String())
	require.NoError(t, err)
	_, err = e.models.GetByID(context.Background(), res.Model.ID.String())
	require.NoError(t, err)
}

func TestCreateModelRequiresCheckpointOrFiles(t *testing.T) {
	e := newEnv()
	_, err := e.svc.CreateModel(context.Background(), CreateModelInput{
		Name:      "x",
		ModelType: types.CategoryCheckpoint,
	})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCreateModelAgainstInactiveCheckpoint(t *testing.T) {
	e := newEnv()
	first := submitModel(t, e)

	_, err := e.svc.CreateModel(context.Background(), CreateModelInput{
		Name:         "another",
		ModelType:    types.CategoryCheckpoint,
		CheckpointID: first.Checkpoint.ID.String(),
	})
	assert.ErrorIs(t, err, types.ErrPrecondition)
}

func TestUpdateModelBeforeUploadCompletion(t *testing.T) {
	e := newEnv()
	res := submitModel(t, e)

	_, err := e.svc.UpdateModel(context.Background(), UpdateModelInput{
		ModelID: res.Model.ID.String(),
		Status:  types.ModelStatusCreating,
	})
	require.ErrorIs(t, err, types.ErrPrecondition)

	// No status changed, nothing invoked.
	model, err := e.models.GetByID(context.Background(), res.Model.ID.String())
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusInitial, model.Status)
	assert.Nil(t, e.executor.lastInvocation())
}

func TestUpdateModelCreatingTriggersBuild(t *testing.T) {
	e := newEnv()
	res := submitModel(t, e)
	ctx := context.Background()

	require.NoError(t, e.checkpoints.UpdateStatusByID(ctx, res.Checkpoint.ID.String(), types.CheckpointStatusActive))

	out, err := e.svc.UpdateModel(ctx, UpdateModelInput{
		ModelID: res.Model.ID.String(),
		Status:  types.ModelStatusCreating,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusCreating, out.Status)

	checkpoint, err := e.checkpoints.GetByID(ctx, res.Checkpoint.ID.String())
	require.NoError(t, err)
	assert.Equal(t, types.CheckpointStatusActive, checkpoint.Status)

	model, err := e.models.GetByID(ctx, res.Model.ID.String())
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusCreating, model.Status)

	inv := e.executor.lastInvocation()
	require.NotNil(t, inv)
	assert.Equal(t, "model-build-endpoint", inv.Endpoint)
	assert.Equal(t, res.Model.ID.String(), inv.InferenceID)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(inv.Payload, &body))
	assert.Equal(t, types.TaskCreateModel, body["task"])

	var inner map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body["db_create_model_payload"].(string)), &inner))
	assert.Equal(t, checkpoint.S3Location, inner["s3_input_path"])
	assert.Equal(t, model.OutputS3Location, inner["s3_output_path"])
	assert.Equal(t, model.ID.String(), inner["job_id"])
}

func TestUpdateModelCompletesMultipartUploads(t *testing.T) {
	e := newEnv()
	res := submitModel(t, e)
	ctx := context.Background()

	tags := map[string][]objectstore.CompletedPart{
		"model.safetensors": {{PartNumber: 1, ETag: "a"}, {PartNumber: 2, ETag: "b"}, {PartNumber: 3, ETag: "c"}},
		"model.yaml":        {{PartNumber: 1, ETag: "d"}},
	}

	out, err := e.svc.UpdateModel(ctx, UpdateModelInput{
		ModelID:       res.Model.ID.String(),
		Status:        types.ModelStatusCreating,
		MultipartTags: tags,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusCreating, out.Status)

	checkpoint, err := e.checkpoints.GetByID(ctx, res.Checkpoint.ID.String())
	require.NoError(t, err)
	assert.Equal(t, types.CheckpointStatusActive, checkpoint.Status)
	assert.Len(t, e.store.completed, 2)
}

func TestUpdateModelRejectsInitialAndUnknownActions(t *testing.T) {
	e := newEnv()
	res := submitModel(t, e)
	ctx := context.Background()

	_, err := e.svc.UpdateModel(ctx, UpdateModelInput{ModelID: res.Model.ID.String(), Status: types.ModelStatusInitial})
	assert.ErrorIs(t, err, types.ErrUnsupportedAction)

	_, err = e.svc.UpdateModel(ctx, UpdateModelInput{ModelID: res.Model.ID.String(), Status: types.ModelStatusComplete})
	assert.ErrorIs(t, err, types.ErrUnsupportedAction)
}

func TestUpdateModelSecondCreatingConflicts(t *testing.T) {
	e := newEnv()
	res := submitModel(t, e)
	ctx := context.Background()
	require.NoError(t, e.checkpoints.UpdateStatusByID(ctx, res.Checkpoint.ID.String(), types.CheckpointStatusActive))

	_, err := e.svc.UpdateModel(ctx, UpdateModelInput{ModelID: res.Model.ID.String(), Status: types.ModelStatusCreating})
	require.NoError(t, err)

	_, err = e.svc.UpdateModel(ctx, UpdateModelInput{ModelID: res.Model.ID.String(), Status: types.ModelStatusCreating})
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Len(t, e.executor.invocations, 1)
}

func creatingModel(t *testing.T, e *env) *CreateModelResult {
	t.Helper()
	res := submitModel(t, e)
	ctx := context.Background()
	require.NoError(t, e.checkpoints.UpdateStatusByID(ctx, res.Checkpoint.ID.String(), types.CheckpointStatusActive))
	_, err := e.svc.UpdateModel(ctx, UpdateModelInput{ModelID: res.Model.ID.String(), Status: types.ModelStatusCreating})
	require.NoError(t, err)
	return res
}

func successCallback(t *testing.T, e *env, modelID string, descriptor map[string]interface{}) []byte {
	t.Helper()
	outputKey := "async-output/" + modelID + ".json"
	data, err := json.Marshal(descriptor)
	require.NoError(t, err)
	require.NoError(t, e.store.Put(context.Background(), outputKey, data))

	msg, err := json.Marshal(map[string]interface{}{
		"inferenceId": modelID,
		"responseParameters": map[string]interface{}{
			"outputLocation": "s3://sd-bucket/" + outputKey,
		},
	})
	require.NoError(t, err)
	return msg
}

func TestProcessModelResultSuccess(t *testing.T) {
	e := newEnv()
	res := creatingModel(t, e)
	ctx := context.Background()
	id := res.Model.ID.String()

	msg := successCallback(t, e, id, map[string]interface{}{
		"statusCode": 200,
		"message":    map[string]interface{}{"output_name": "cat.tar"},
	})

	require.NoError(t, e.svc.ProcessModelResult(ctx, "jobs/model/success", msg))

	model, err := e.models.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusComplete, model.Status)

	resp, ok := model.Params["resp"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "cat.tar", resp["output_name"])
	assert.Equal(t, "sd-bucket/Stable-diffusion/dreambooth-cat.tar", resp["s3_output_location"])
}

func TestProcessModelResultWorkerReportedFailure(t *testing.T) {
	e := newEnv()
	res := creatingModel(t, e)
	ctx := context.Background()
	id := res.Model.ID.String()

	msg := successCallback(t, e, id, map[string]interface{}{
		"statusCode": 500,
		"message":    map[string]interface{}{"error": "oom"},
	})

	require.NoError(t, e.svc.ProcessModelResult(ctx, "jobs/model/success", msg))

	model, err := e.models.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusFail, model.Status)
}

func TestProcessModelResultErrorTopic(t *testing.T) {
	e := newEnv()
	res := creatingModel(t, e)
	ctx := context.Background()
	id := res.Model.ID.String()

	msg, err := json.Marshal(map[string]interface{}{"inferenceId": id})
	require.NoError(t, err)
	require.NoError(t, e.svc.ProcessModelResult(ctx, "jobs/model/error", msg))

	model, err := e.models.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusFail, model.Status)
}

func TestProcessModelResultUnknownModel(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	msg, err := json.Marshal(map[string]interface{}{"inferenceId": "1b6b3f44-0000-0000-0000-000000000000"})
	require.NoError(t, err)

	err = e.svc.ProcessModelResult(ctx, "jobs/model/success", msg)
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Nothing published to the user topic.
	recvCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, recvErr := e.queue.Receive(recvCtx, "jobs/user")
	assert.Error(t, recvErr)
}

func TestProcessModelResultTerminalModelConflicts(t *testing.T) {
	e := newEnv()
	res := creatingModel(t, e)
	ctx := context.Background()
	id := res.Model.ID.String()

	msg := successCallback(t, e, id, map[string]interface{}{
		"statusCode": 200,
		"message":    map[string]interface{}{},
	})
	require.NoError(t, e.svc.ProcessModelResult(ctx, "jobs/model/success", msg))

	// Replayed callback cannot move a Complete model.
	err := e.svc.ProcessModelResult(ctx, "jobs/model/error", msg)
	assert.ErrorIs(t, err, types.ErrConflict)

	model, err := e.models.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ModelStatusComplete, model.Status)
}
