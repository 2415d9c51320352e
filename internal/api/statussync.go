package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/app"
	"github.com/sdstation/middleware/internal/services/statussync"
	"github.com/sdstation/middleware/internal/types"
)

// StartStatusSync begins mirroring the shared status record for a training
// job. Starting an already tracked job just returns the current flags. The
// sync loops run against the app context so they outlive this request.
func StartStatusSync(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	status := app.StatusSync.Start(app.Context(), c.Param("id"))

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": status.Snapshot()})
}

func StopStatusSync(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	app.StatusSync.Stop(c.Param("id"))

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func trackedStatus(c *gin.Context) (*statussync.Status, bool) {
	app := c.MustGet("app").(*app.App)
	status := app.StatusSync.Status(c.Param("id"))
	if status == nil {
		writeError(c, fmt.Errorf("%w: training %s is not tracked", types.ErrNotFound, c.Param("id")))
		return nil, false
	}
	return status, true
}

func GetStatusFlags(c *gin.Context) {
	status, ok := trackedStatus(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": status.Snapshot()})
}

type stopTrainingRequest struct {
	AfterSave  bool `json:"interrupt_after_save"`
	AfterEpoch bool `json:"interrupt_after_epoch"`
}

func RequestTrainingStop(c *gin.Context) {
	var req stopTrainingRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	status, ok := trackedStatus(c)
	if !ok {
		return
	}
	status.RequestStop(req.AfterSave, req.AfterEpoch)

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": status.Snapshot()})
}

type saveTrainingRequest struct {
	Model   bool `json:"save_model"`
	Samples bool `json:"save_samples"`
}

func RequestTrainingSave(c *gin.Context) {
	var req saveTrainingRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	status, ok := trackedStatus(c)
	if !ok {
		return
	}
	status.RequestSave(req.Model, req.Samples)

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": status.Snapshot()})
}
