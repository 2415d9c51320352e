package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/app"
	"github.com/sdstation/middleware/internal/types"
)

func GetCheckpoint(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	checkpoint, err := app.Lifecycle.GetCheckpoint(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": checkpoint})
}

func ListCheckpoints(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	checkpoints, err := app.Lifecycle.ListCheckpoints(
		c.Request.Context(),
		c.Query("type"),
		types.CheckpointStatus(c.Query("status")),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"checkpoints": checkpoints}})
}

type deleteCheckpointsRequest struct {
	CheckpointIDs []string `json:"checkpoint_id_list"`
}

func DeleteCheckpoints(c *gin.Context) {
	var req deleteCheckpointsRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}
	if len(req.CheckpointIDs) == 0 {
		badRequest(c, "checkpoint_id_list is required")
		return
	}

	app := c.MustGet("app").(*app.App)
	if err := app.Lifecycle.DeleteCheckpoints(c.Request.Context(), req.CheckpointIDs); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// ListCategoryObjects lists the bucket contents for one artifact category,
// e.g. the Stable-diffusion weights or the lora directory.
func ListCategoryObjects(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	names, err := app.Lifecycle.ListCategoryObjects(c.Request.Context(), c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"objects": names}})
}
