package upload

import (
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/uploads"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type confirmOpts struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

// UploadConfirm is the confirmation phase of the direct-upload
// protocol. The browser reports that its PUT completed and the task's
// item is appended to the aggregate. A confirmed task whose append
// fails leaves an orphaned object behind, which is logged with its key
func UploadConfirm(c *gin.Context, d *internal.Deps) {
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

	// Clients that can't probe their file just send an empty body
	var data confirmOpts
	c.ShouldBindJSON(&data)

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

	if t.Status != uploads.StatusUploading {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Task is not in a confirmable state",
			"requestID": requestID,
		})
		return
	}

	if t.StorageKey == "" {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Task has no storage key",
			"requestID": requestID,
		})
		return
	}

	item := uploads.BuildItem(t, t.StorageKey, &media.Metadata{
		Width:    data.Width,
		Height:   data.Height,
		Duration: data.Duration,
		Language: data.Language,
	})

	if _, err := d.Library.AppendItem(c.Request.Context(), t.AggregateID, item); err != nil {
		confErr := &uploads.ConfirmationError{Key: t.StorageKey, Err: err}
		d.Uploads.MarkStatus(taskID, uploads.StatusError, confErr)

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Upload completed but could not be recorded",
			"requestID": requestID,
		})

		zap.L().Error("Confirmation failed, object orphaned",
			zap.String("task_id", taskID),
			zap.String("orphan_key", t.StorageKey),
			zap.Error(err))
		return
	}

	d.Uploads.MarkStatus(taskID, uploads.StatusSuccess, nil)

	c.JSON(http.StatusOK, gin.H{
		"item": item,
	})
}
