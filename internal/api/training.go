package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/app"
	"github.com/sdstation/middleware/internal/services/lifecycle"
)

func CreateTrainJob(c *gin.Context) {
	var in lifecycle.CreateTrainJobInput
	if err := c.BindJSON(&in); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	result, err := app.Lifecycle.CreateTrainJob(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "data": result})
}

type startTrainingRequest struct {
	TrainJobID string `json:"train_job_id"`
}

func StartTraining(c *gin.Context) {
	var req startTrainingRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}
	if req.TrainJobID == "" {
		badRequest(c, "train_job_id is required")
		return
	}

	app := c.MustGet("app").(*app.App)
	result, err := app.Lifecycle.StartTraining(c.Request.Context(), req.TrainJobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}
