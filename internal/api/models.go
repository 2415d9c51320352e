package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/app"
	"github.com/sdstation/middleware/internal/services/lifecycle"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/types"
)

func CreateModel(c *gin.Context) {
	var in lifecycle.CreateModelInput
	if err := c.BindJSON(&in); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	result, err := app.Lifecycle.CreateModel(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "data": result})
}

type updateModelRequest struct {
	ModelID string            `json:"model_id"`
	Status  types.ModelStatus `json:"status"`
	// MultipartTags carries completed-part etags keyed by filename when the
	// caller has just finished uploading checkpoint files.
	MultipartTags map[string][]objectstore.CompletedPart `json:"multi_parts_tags"`
}

func UpdateModel(c *gin.Context) {
	var req updateModelRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	result, err := app.Lifecycle.UpdateModel(c.Request.Context(), lifecycle.UpdateModelInput{
		ModelID:       req.ModelID,
		Status:        req.Status,
		MultipartTags: req.MultipartTags,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}

func GetModel(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	model, err := app.Lifecycle.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": model})
}

func ListModels(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	models, err := app.Lifecycle.ListModels(
		c.Request.Context(),
		c.QueryArray("types"),
		c.QueryArray("status"),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"models": models}})
}

type modelResultRequest struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// ModelResultCallback lets the completion webhook push a build result
// directly instead of routing through the message queue.
func ModelResultCallback(c *gin.Context) {
	var req modelResultRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)
	if err := app.Lifecycle.ProcessModelResult(c.Request.Context(), req.Topic, req.Payload); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
