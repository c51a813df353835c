package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/tarsy/internal/engine"
)

// writeError maps an ObserverAPI error to an HTTP response, grounded on
// the same error-to-status mapping shape as the teacher's
// mapServiceError: typed errors get a specific status, anything else
// is an internal error.
func writeError(c *gin.Context, err error) {
	var notFound *engine.AgentNotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
		return
	}

	var invalidLoc *engine.InvalidLocationError
	if errors.As(err, &invalidLoc) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidLoc.Error()})
		return
	}

	var convErr *engine.ConversationError
	if errors.As(err, &convErr) {
		c.JSON(http.StatusConflict, gin.H{"error": convErr.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
