package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdstation/middleware/internal/types"
)

// writeError translates the service error taxonomy into HTTP statuses. The
// message always carries the wrapped chain so operators can tell a bad
// request apart from an upstream outage without reading logs.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrPrecondition),
		errors.Is(err, types.ErrUnsupportedAction):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, types.ErrTransientIO),
		errors.Is(err, types.ErrRemoteExecution):
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"message": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}
