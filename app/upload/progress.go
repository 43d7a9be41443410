package upload

import (
	"errors"
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/uploads"

	"github.com/gin-gonic/gin"
)

type progressOpts struct {
	UploadedBytes int64   `json:"uploaded_bytes"`
	SpeedBps      float64 `json:"speed_bps"`
}

// UploadProgress receives progress events from a browser driving its
// own PUT against the presigned URL
func UploadProgress(c *gin.Context, d *internal.Deps) {
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

	var data progressOpts
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
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

	if err := d.Uploads.UpdateProgress(taskID, data.UploadedBytes, data.SpeedBps); err != nil {
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
