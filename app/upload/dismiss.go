package upload

import (
	"errors"
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/uploads"

	"github.com/gin-gonic/gin"
)

// UploadDismiss removes a finished task from the registry, or cancels
// it first if it's still running
func UploadDismiss(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No task ID provided",
			"requestID": requestID,
		})
		return
	}

	t, err := d.Uploads.Get(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Task not found",
			"requestID": requestID,
		})
		return
	}

	if !ownsAggregate(c, d, userID, t.AggregateID, requestID) {
		return
	}

	if err := d.Uploads.Dismiss(taskID); err != nil {
		if errors.Is(err, uploads.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Task not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	c.Status(http.StatusNoContent)
}
