// Package lifecycle owns the state machines for checkpoints, model builds,
// training runs, inference jobs and endpoint deployments, from submission
// through completion or failure.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sdstation/middleware/internal/config"
	"github.com/sdstation/middleware/internal/db/repository"
	"github.com/sdstation/middleware/internal/mq"
	"github.com/sdstation/middleware/internal/services/artifacts"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/services/remote"
	"github.com/sdstation/middleware/internal/services/workflowsvc"
	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

// MultipartPresigner opens one multipart upload per requested file and hands
// back per-part presigned URLs.
type MultipartPresigner interface {
	BatchMultipartInit(ctx context.Context, baseKey string, files []types.MultipartFileReq) (map[string]*objectstore.MultipartUpload, error)
}

type Deps struct {
	Config        *config.Config
	Checkpoints   repository.ICheckpointRepository
	Models        repository.IModelRepository
	TrainJobs     repository.ITrainJobRepository
	InferenceJobs repository.IInferenceJobRepository
	EndpointJobs  repository.IEndpointJobRepository
	Store         objectstore.Store
	Presigner     MultipartPresigner
	Executor      remote.Executor
	Workflows     workflowsvc.Trigger
	Queue         mq.MQ
	Resolver      *artifacts.Resolver
}

type Service struct {
	cfg           *config.Config
	checkpoints   repository.ICheckpointRepository
	models        repository.IModelRepository
	trainJobs     repository.ITrainJobRepository
	inferenceJobs repository.IInferenceJobRepository
	endpointJobs  repository.IEndpointJobRepository
	store         objectstore.Store
	presigner     MultipartPresigner
	executor      remote.Executor
	workflows     workflowsvc.Trigger
	queue         mq.MQ
	resolver      *artifacts.Resolver

	// How long StartTraining waits for the remote service to register a
	// job name before giving up.
	nameWait     time.Duration
	nameWaitTick time.Duration
}

func NewService(d Deps) *Service {
	if d.Resolver == nil {
		d.Resolver = artifacts.NewResolver(nil)
	}
	return &Service{
		cfg:           d.Config,
		checkpoints:   d.Checkpoints,
		models:        d.Models,
		trainJobs:     d.TrainJobs,
		inferenceJobs: d.InferenceJobs,
		endpointJobs:  d.EndpointJobs,
		store:         d.Store,
		presigner:     d.Presigner,
		executor:      d.Executor,
		workflows:     d.Workflows,
		queue:         d.Queue,
		resolver:      d.Resolver,
		nameWait:      60 * time.Second,
		nameWaitTick:  time.Second,
	}
}

// Storage key layout, shared with the remote worker.
func baseModelKey(modelType, name, id string) string {
	return fmt.Sprintf("%s/model/%s/%s", modelType, name, id)
}

func baseCheckpointKey(checkpointType, name, id string) string {
	return fmt.Sprintf("%s/checkpoint/%s/%s", checkpointType, name, id)
}

// Notification is what lands on the user topic.
type Notification struct {
	Subject string `msgpack:"subject"`
	Message string `msgpack:"message"`
}

// notifyUser publishes best-effort; a dropped notification never fails the
// lifecycle transition it reports on.
func (s *Service) notifyUser(ctx context.Context, subject, message string) {
	data, err := msgpack.Marshal(Notification{Subject: subject, Message: message})
	if err != nil {
		logger.Error("encoding user notification", "error", err.Error())
		return
	}
	if err := s.queue.Publish(ctx, s.cfg.Topics.User, data); err != nil {
		logger.Error("publishing user notification", "subject", subject, "error", err.Error())
	}
}
