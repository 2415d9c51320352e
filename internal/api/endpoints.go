package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/app"
	"github.com/sdstation/middleware/internal/services/lifecycle"
)

// DeployEndpoint requires the sagemaker_endpoint permission when the caller
// identifies itself via the username header; anonymous calls are left to the
// gateway in front of us.
func DeployEndpoint(c *gin.Context) {
	var in lifecycle.DeployEndpointInput
	if err := c.BindJSON(&in); err != nil {
		badRequest(c, "failed to parse request body")
		return
	}

	app := c.MustGet("app").(*app.App)

	if username := c.GetHeader("username"); username != "" {
		permissions, err := app.Access.GetPermissions(c.Request.Context(), username)
		if err != nil {
			writeError(c, err)
			return
		}
		if !hasAction(permissions["sagemaker_endpoint"], "create") {
			c.JSON(http.StatusForbidden, gin.H{"message": "not allowed to create endpoints"})
			return
		}
	}

	job, err := app.Lifecycle.DeployEndpoint(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "data": job})
}

func hasAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action || a == "all" {
			return true
		}
	}
	return false
}

func GetEndpointJob(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	job, err := app.Lifecycle.GetEndpointJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": job})
}

func ListEndpointJobs(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	jobs, err := app.Lifecycle.ListEndpointJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"endpoints": jobs}})
}

// SweepEndpoints drops deployment rows whose remote endpoint no longer
// exists, returning how many were removed.
func SweepEndpoints(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	removed, err := app.Lifecycle.SweepEndpoints(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"removed": removed}})
}
