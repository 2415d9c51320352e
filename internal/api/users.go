package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/app"
)

func GetUserRoles(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	roles, err := app.Access.GetRoles(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"roles": roles}})
}

func GetUserPermissions(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	permissions, err := app.Access.GetPermissions(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"permissions": permissions}})
}
