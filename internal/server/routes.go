package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/api"
	"github.com/sdstation/middleware/internal/app"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Health check endpoint
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := s.ginEngine.Group("/api/v1")

	apiV1.POST("/models", handlerWrapper(app, api.CreateModel))
	apiV1.PUT("/models", handlerWrapper(app, api.UpdateModel))
	apiV1.GET("/models", handlerWrapper(app, api.ListModels))
	apiV1.GET("/models/:id", handlerWrapper(app, api.GetModel))
	apiV1.POST("/models/results", handlerWrapper(app, api.ModelResultCallback))

	apiV1.GET("/checkpoints", handlerWrapper(app, api.ListCheckpoints))
	apiV1.GET("/checkpoints/:id", handlerWrapper(app, api.GetCheckpoint))
	apiV1.POST("/checkpoints/delete", handlerWrapper(app, api.DeleteCheckpoints))
	apiV1.GET("/categories/:category", handlerWrapper(app, api.ListCategoryObjects))

	apiV1.POST("/inferences", handlerWrapper(app, api.RunInferenceUI))
	apiV1.POST("/inferences/api", handlerWrapper(app, api.RunInferenceAPI))
	apiV1.GET("/inferences", handlerWrapper(app, api.ListInferenceJobs))
	apiV1.GET("/inferences/:id", handlerWrapper(app, api.GetInferenceJob))
	apiV1.PUT("/inferences/:id", handlerWrapper(app, api.FinalizeInference))
	apiV1.GET("/inferences/:id/images", handlerWrapper(app, api.GetInferenceImages))
	apiV1.GET("/inferences/:id/params", handlerWrapper(app, api.GetInferenceParams))

	apiV1.POST("/trainings", handlerWrapper(app, api.CreateTrainJob))
	apiV1.POST("/trainings/start", handlerWrapper(app, api.StartTraining))
	apiV1.POST("/trainings/:id/sync", handlerWrapper(app, api.StartStatusSync))
	apiV1.DELETE("/trainings/:id/sync", handlerWrapper(app, api.StopStatusSync))
	apiV1.GET("/trainings/:id/status", handlerWrapper(app, api.GetStatusFlags))
	apiV1.POST("/trainings/:id/stop", handlerWrapper(app, api.RequestTrainingStop))
	apiV1.POST("/trainings/:id/save", handlerWrapper(app, api.RequestTrainingSave))

	apiV1.POST("/endpoints", handlerWrapper(app, api.DeployEndpoint))
	apiV1.GET("/endpoints", handlerWrapper(app, api.ListEndpointJobs))
	apiV1.GET("/endpoints/:id", handlerWrapper(app, api.GetEndpointJob))
	apiV1.POST("/endpoints/sweep", handlerWrapper(app, api.SweepEndpoints))

	apiV1.GET("/users/:username/roles", handlerWrapper(app, api.GetUserRoles))
	apiV1.GET("/users/:username/permissions", handlerWrapper(app, api.GetUserPermissions))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
