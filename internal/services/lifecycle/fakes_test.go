package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sdstation/middleware/internal/config"
	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/db/repository"
	"github.com/sdstation/middleware/internal/mq"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/services/remote"
	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

func init() {
	if _, err := logger.InitLogger(&config.Config{Environment: "test"}); err != nil {
		panic(err)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		S3:          &config.S3Config{Bucket: "sd-bucket"},
		SageMaker: &config.SageMakerConfig{
			EndpointName:      "model-build-endpoint",
			TrainImageUri:     "123.dkr.ecr.us-east-1.amazonaws.com/dreambooth-training-repo",
			TrainRoleArn:      "arn:aws:iam::123:role/train",
			TrainInstanceType: "ml.g4dn.2xlarge",
			TrainVolumeSizeGB: 125,
		},
		Workflows: &config.WorkflowConfig{
			TrainingStateMachineArn: "arn:aws:states:us-east-1:123:stateMachine:training",
			EndpointStateMachineArn: "arn:aws:states:us-east-1:123:stateMachine:endpoint",
		},
		Topics: &config.TopicConfig{
			ModelSuccess: "jobs/model/success",
			ModelError:   "jobs/model/error",
			User:         "jobs/user",
		},
	}
}

type env struct {
	svc         *Service
	checkpoints *fakeCheckpointRepo
	models      *fakeModelRepo
	trainJobs   *fakeTrainJobRepo
	inferences  *fakeInferenceJobRepo
	endpoints   *fakeEndpointJobRepo
	store       *fakeStore
	executor    *fakeExecutor
	workflows   *fakeWorkflows
	queue       *mq.InMemoryMQ
}

func newEnv() *env {
	e := &env{
		checkpoints: &fakeCheckpointRepo{items: map[string]*models.Checkpoint{}},
		models:      &fakeModelRepo{items: map[string]*models.Model{}},
		trainJobs:   &fakeTrainJobRepo{items: map[string]*models.TrainJob{}},
		inferences:  &fakeInferenceJobRepo{items: map[string]*models.InferenceJob{}},
		endpoints:   &fakeEndpointJobRepo{items: map[string]*models.EndpointDeploymentJob{}},
		store:       newFakeStore(),
		executor:    &fakeExecutor{},
		workflows:   &fakeWorkflows{},
	}
	queue, err := mq.NewInMemoryMQ(100)
	if err != nil {
		panic(err)
	}
	e.queue = queue

	e.svc = NewService(Deps{
		Config:        testConfig(),
		Checkpoints:   e.checkpoints,
		Models:        e.models,
		TrainJobs:     e.trainJobs,
		InferenceJobs: e.inferences,
		EndpointJobs:  e.endpoints,
		Store:         e.store,
		Presigner:     &fakePresigner{store: e.store},
		Executor:      e.executor,
		Workflows:     e.workflows,
		Queue:         e.queue,
	})
	e.svc.nameWait = 50 * time.Millisecond
	e.svc.nameWaitTick = 5 * time.Millisecond
	return e
}

// --- repositories ---

type fakeCheckpointRepo struct {
	mu    sync.Mutex
	items map[string]*models.Checkpoint
}

var _ repository.ICheckpointRepository = (*fakeCheckpointRepo)(nil)

func (f *fakeCheckpointRepo) Create(ctx context.Context, c *models.Checkpoint) (*models.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.items[c.ID.String()] = &cp
	return c, nil
}

func (f *fakeCheckpointRepo) GetByID(ctx context.Context, id string) (*models.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", id, types.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCheckpointRepo) UpdateByID(ctx context.Context, id string, c *models.Checkpoint) (*models.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.items[id] = &cp
	return c, nil
}

func (f *fakeCheckpointRepo) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeCheckpointRepo) List(ctx context.Context, checkpointType string, status types.CheckpointStatus) ([]models.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Checkpoint
	for _, c := range f.items {
		if checkpointType != "" && c.CheckpointType != checkpointType {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCheckpointRepo) UpdateStatusByID(ctx context.Context, id string, status types.CheckpointStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return fmt.Errorf("checkpoint %s: %w", id, types.ErrNotFound)
	}
	c.Status = status
	return nil
}

func (f *fakeCheckpointRepo) UpdateParamsByID(ctx context.Context, id string, params map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return fmt.Errorf("checkpoint %s: %w", id, types.ErrNotFound)
	}
	c.Params = params
	return nil
}

type fakeModelRepo struct {
	mu    sync.Mutex
	items map[string]*models.Model
}

var _ repository.IModelRepository = (*fakeModelRepo)(nil)

func (f *fakeModelRepo) Create(ctx context.Context, m *models.Model) (*models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.items[m.ID.String()] = &cp
	return m, nil
}

func (f *fakeModelRepo) GetByID(ctx context.Context, id string) (*models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("model %s: %w", id, types.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeModelRepo) UpdateByID(ctx context.Context, id string, m *models.Model) (*models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.items[id] = &cp
	return m, nil
}

func (f *fakeModelRepo) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeModelRepo) List(ctx context.Context, modelTypes, statuses []string) ([]models.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Model
	for _, m := range f.items {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeModelRepo) UpdateStatusByID(ctx context.Context, id string, status types.ModelStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return fmt.Errorf("model %s: %w", id, types.ErrNotFound)
	}
	m.Status = status
	return nil
}

func (f *fakeModelRepo) UpdateStatusIf(ctx context.Context, id string, want, next types.ModelStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok || m.Status != want {
		return fmt.Errorf("model %s is not %s: %w", id, want, types.ErrConflict)
	}
	m.Status = next
	return nil
}

func (f *fakeModelRepo) UpdateParamsByID(ctx context.Context, id string, params map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return fmt.Errorf("model %s: %w", id, types.ErrNotFound)
	}
	m.Params = params
	return nil
}

type fakeTrainJobRepo struct {
	mu    sync.Mutex
	items map[string]*models.TrainJob
}

var _ repository.ITrainJobRepository = (*fakeTrainJobRepo)(nil)

func (f *fakeTrainJobRepo) Create(ctx context.Context, j *models.TrainJob) (*models.TrainJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.items[j.ID.String()] = &cp
	return j, nil
}

func (f *fakeTrainJobRepo) GetByID(ctx context.Context, id string) (*models.TrainJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("train job %s: %w", id, types.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (f *fakeTrainJobRepo) UpdateByID(ctx context.Context, id string, j *models.TrainJob) (*models.TrainJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.items[id] = &cp
	return j, nil
}

func (f *fakeTrainJobRepo) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeTrainJobRepo) UpdateStatusIf(ctx context.Context, id string, want, next types.TrainJobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok || j.Status != want {
		return fmt.Errorf("train job %s is not %s: %w", id, want, types.ErrConflict)
	}
	j.Status = next
	return nil
}

func (f *fakeTrainJobRepo) SetTrainName(ctx context.Context, id string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return fmt.Errorf("train job %s: %w", id, types.ErrNotFound)
	}
	j.SagemakerTrainName = name
	return nil
}

func (f *fakeTrainJobRepo) SetSfnArn(ctx context.Context, id string, arn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return fmt.Errorf("train job %s: %w", id, types.ErrNotFound)
	}
	j.SfnArn = arn
	return nil
}

type fakeInferenceJobRepo struct {
	mu    sync.Mutex
	items map[string]*models.InferenceJob
}

var _ repository.IInferenceJobRepository = (*fakeInferenceJobRepo)(nil)

func (f *fakeInferenceJobRepo) Create(ctx context.Context, j *models.InferenceJob) (*models.InferenceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.items[j.ID.String()] = &cp
	return j, nil
}

func (f *fakeInferenceJobRepo) GetByID(ctx context.Context, id string) (*models.InferenceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("inference job %s: %w", id, types.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (f *fakeInferenceJobRepo) UpdateByID(ctx context.Context, id string, j *models.InferenceJob) (*models.InferenceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.items[id] = &cp
	return j, nil
}

func (f *fakeInferenceJobRepo) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeInferenceJobRepo) List(ctx context.Context, filter repository.InferenceJobFilter) ([]models.InferenceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.InferenceJob
	for _, j := range f.items {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.TaskType != "" && j.TaskType != filter.TaskType {
			continue
		}
		if filter.Endpoint != "" && j.EndpointName != filter.Endpoint {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeInferenceJobRepo) Finalize(ctx context.Context, id string, status types.InferenceJobStatus, errText string, imageNames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok || j.Status != types.InferenceStatusInProgress {
		return fmt.Errorf("inference job %s already terminal: %w", id, types.ErrConflict)
	}
	j.Status = status
	j.Error = errText
	j.ImageNames = imageNames
	return nil
}

type fakeEndpointJobRepo struct {
	mu    sync.Mutex
	items map[string]*models.EndpointDeploymentJob
}

var _ repository.IEndpointJobRepository = (*fakeEndpointJobRepo)(nil)

func (f *fakeEndpointJobRepo) Create(ctx context.Context, j *models.EndpointDeploymentJob) (*models.EndpointDeploymentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.items[j.ID.String()] = &cp
	return j, nil
}

func (f *fakeEndpointJobRepo) GetByID(ctx context.Context, id string) (*models.EndpointDeploymentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("endpoint deployment job %s: %w", id, types.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (f *fakeEndpointJobRepo) UpdateByID(ctx context.Context, id string, j *models.EndpointDeploymentJob) (*models.EndpointDeploymentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.items[id] = &cp
	return j, nil
}

func (f *fakeEndpointJobRepo) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeEndpointJobRepo) List(ctx context.Context) ([]models.EndpointDeploymentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EndpointDeploymentJob
	for _, j := range f.items {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeEndpointJobRepo) GetByEndpointName(ctx context.Context, name string) (*models.EndpointDeploymentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.items {
		if j.EndpointName == name {
			cp := *j
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("endpoint %s: %w", name, types.ErrNotFound)
}

func (f *fakeEndpointJobRepo) MarkFailed(ctx context.Context, id string, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return fmt.Errorf("endpoint deployment job %s: %w", id, types.ErrNotFound)
	}
	j.Status = types.EndpointStatusFailed
	j.Error = errText
	return nil
}

// --- object store ---

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	completed map[string][]objectstore.CompletedPart
	getErr    error
}

var _ objectstore.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   map[string][]byte{},
		completed: map[string][]objectstore.CompletedPart{},
	}
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object at %s", key)
	}
	return data, nil
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, key)
		}
	}
	return out, nil
}

func (f *fakeStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/get/" + key, nil
}

func (f *fakeStore) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/put/" + key, nil
}

func (f *fakeStore) DeletePrefix(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(f.objects, key)
		}
	}
	return nil
}

func (f *fakeStore) MultipartInit(ctx context.Context, key string, parts int, ttl time.Duration) (*objectstore.MultipartUpload, error) {
	urls := make([]string, parts)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://signed.example/part/%s/%d", key, i+1)
	}
	return &objectstore.MultipartUpload{
		UploadID: "upload-" + key,
		Bucket:   "sd-bucket",
		Key:      key,
		PartURLs: urls,
	}, nil
}

func (f *fakeStore) MultipartComplete(ctx context.Context, key, uploadID string, parts []objectstore.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[key] = parts
	return nil
}

type fakePresigner struct {
	store *fakeStore
	err   error
}

func (f *fakePresigner) BatchMultipartInit(ctx context.Context, baseKey string, files []types.MultipartFileReq) (map[string]*objectstore.MultipartUpload, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*objectstore.MultipartUpload, len(files))
	for _, file := range files {
		parts := file.PartsNumber
		if parts <= 0 {
			parts = 1
		}
		upload, err := f.store.MultipartInit(ctx, baseKey+"/"+file.Filename, parts, time.Hour)
		if err != nil {
			return nil, err
		}
		out[file.Filename] = upload
	}
	return out, nil
}

// --- remote execution ---

type invocation struct {
	Endpoint    string
	InferenceID string
	Payload     []byte
}

type fakeExecutor struct {
	mu          sync.Mutex
	invocations []invocation
	invokeErr   error
	launchErr   error
	handle      *fakeTrainingHandle
	endpoints   []string
	listErr     error
}

var _ remote.Executor = (*fakeExecutor)(nil)

func (f *fakeExecutor) InvokeAsync(ctx context.Context, endpointName, inferenceID string, payload []byte) (*remote.AsyncInvocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	f.invocations = append(f.invocations, invocation{endpointName, inferenceID, payload})
	return &remote.AsyncInvocation{
		InferenceID:    inferenceID,
		OutputLocation: "s3://sd-bucket/async-output/" + inferenceID + ".json",
	}, nil
}

func (f *fakeExecutor) LaunchTraining(ctx context.Context, spec remote.TrainingSpec) (remote.TrainingHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	if f.handle == nil {
		f.handle = &fakeTrainingHandle{name: spec.BaseJobName + "-2026-08-28"}
	}
	f.handle.spec = spec
	return f.handle, nil
}

func (f *fakeExecutor) ListEndpoints(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.endpoints, nil
}

func (f *fakeExecutor) lastInvocation() *invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.invocations) == 0 {
		return nil
	}
	inv := f.invocations[len(f.invocations)-1]
	return &inv
}

// fakeTrainingHandle returns "" for pendingCalls calls before the name shows
// up, mimicking the registration delay.
type fakeTrainingHandle struct {
	mu           sync.Mutex
	name         string
	spec         remote.TrainingSpec
	pendingCalls int
	calls        int
	never        bool
}

func (f *fakeTrainingHandle) Name(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.never || f.calls <= f.pendingCalls {
		return "", nil
	}
	return f.name, nil
}

// --- workflows ---

type workflowStart struct {
	Arn   string
	Input interface{}
}

type fakeWorkflows struct {
	mu     sync.Mutex
	starts []workflowStart
	err    error
}

func (f *fakeWorkflows) Start(ctx context.Context, workflowArn string, input interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.starts = append(f.starts, workflowStart{workflowArn, input})
	return fmt.Sprintf("%s:execution:%d", workflowArn, len(f.starts)), nil
}
