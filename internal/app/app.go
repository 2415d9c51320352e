package app

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/sdstation/middleware/internal/config"
	"github.com/sdstation/middleware/internal/db"
	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/db/repository"
	"github.com/sdstation/middleware/internal/mq"
	"github.com/sdstation/middleware/internal/services/access"
	"github.com/sdstation/middleware/internal/services/lifecycle"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/services/remote"
	"github.com/sdstation/middleware/internal/services/statussync"
	"github.com/sdstation/middleware/internal/services/workflowsvc"
	"github.com/sdstation/middleware/pkg/logger"
)

const presignWorkers = 10

type App struct {
	mq         mq.MQ
	db         *bun.DB
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc
	store      objectstore.Store
	presigner  *objectstore.Presigner
	executor   remote.Executor
	workflows  workflowsvc.Trigger

	Logger     *zap.Logger
	Lifecycle  *lifecycle.Service
	Access     *access.Service
	StatusSync *statussync.Manager

	CheckpointRepository   repository.ICheckpointRepository
	ModelRepository        repository.IModelRepository
	TrainJobRepository     repository.ITrainJobRepository
	InferenceJobRepository repository.IInferenceJobRepository
	EndpointJobRepository  repository.IEndpointJobRepository
	UserRepository         repository.IUserRepository
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithMQ() OptionFunc {
	return func(app *App) error {
		queue, err := mq.NewMQ(app.config)
		if err != nil {
			return err
		}
		app.mq = queue
		return nil
	}
}

func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		conn, err := db.NewConnection(app.config)
		if err != nil {
			return err
		}
		app.db = conn.GetDB()

		// Ensure tables exist
		err = app.db.RunInTx(app.ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			tables := []interface{}{
				(*models.Checkpoint)(nil),
				(*models.Model)(nil),
				(*models.TrainJob)(nil),
				(*models.InferenceJob)(nil),
				(*models.EndpointDeploymentJob)(nil),
				(*models.User)(nil),
				(*models.Role)(nil),
			}

			for _, table := range tables {
				if _, err := tx.NewCreateTable().
					Model(table).
					IfNotExists().
					Exec(ctx); err != nil {
					return fmt.Errorf("failed to create table: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		app.CheckpointRepository = repository.NewCheckpointRepository(app.db)
		app.ModelRepository = repository.NewModelRepository(app.db)
		app.TrainJobRepository = repository.NewTrainJobRepository(app.db)
		app.InferenceJobRepository = repository.NewInferenceJobRepository(app.db)
		app.EndpointJobRepository = repository.NewEndpointJobRepository(app.db)
		app.UserRepository = repository.NewUserRepository(app.db)

		return nil
	}
}

func WithObjectStore() OptionFunc {
	return func(app *App) error {
		store, err := objectstore.NewS3Store(app.config)
		if err != nil {
			return err
		}
		app.store = store
		app.presigner = objectstore.NewPresigner(store, presignWorkers, objectstore.DefaultPresignTTL)
		app.StatusSync = statussync.NewManager(store)
		return nil
	}
}

func WithRemoteExecution() OptionFunc {
	return func(app *App) error {
		if app.store == nil {
			return fmt.Errorf("remote execution requires the object store")
		}

		executor, err := remote.NewSageMakerExecutor(app.ctx, app.config.S3.Region, app.store, app.config.S3.Bucket)
		if err != nil {
			return err
		}
		app.executor = executor

		trigger, err := workflowsvc.NewStepFunctionTrigger(app.ctx, app.config.S3.Region)
		if err != nil {
			return err
		}
		app.workflows = trigger
		return nil
	}
}

func WithServices() OptionFunc {
	return func(app *App) error {
		if app.db == nil || app.store == nil || app.executor == nil || app.mq == nil {
			return fmt.Errorf("services require db, object store, remote execution and mq")
		}

		app.Lifecycle = lifecycle.NewService(lifecycle.Deps{
			Config:        app.config,
			Checkpoints:   app.CheckpointRepository,
			Models:        app.ModelRepository,
			TrainJobs:     app.TrainJobRepository,
			InferenceJobs: app.InferenceJobRepository,
			EndpointJobs:  app.EndpointJobRepository,
			Store:         app.store,
			Presigner:     app.presigner,
			Executor:      app.executor,
			Workflows:     app.workflows,
			Queue:         app.mq,
		})
		app.Access = access.NewService(app.UserRepository)

		app.Lifecycle.ConsumeModelResults(app.ctx)
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	log, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		Logger:     log,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			cancel()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()

	if app.StatusSync != nil {
		app.StatusSync.StopAll()
	}
	if app.presigner != nil {
		app.presigner.Stop()
	}
	if app.mq != nil {
		app.mq.Close()
	}
	if app.db != nil {
		app.db.Close()
	}
	if app.Logger != nil {
		app.Logger.Sync()
	}
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) MQ() mq.MQ {
	return app.mq
}

func (app *App) DB() *bun.DB {
	return app.db
}

func (app *App) Store() objectstore.Store {
	return app.store
}
