package upload

import (
	"errors"
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/uploads"

	"github.com/gin-gonic/gin"
)

type failOpts struct {
	Reason string `json:"reason"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// UploadFail lets a browser report that its transfer phase failed, so
// the task ends up in the same error shapes a server-driven upload
// would produce
func UploadFail(c *gin.Context, d *internal.Deps) {
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

	var data failOpts
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

	cause := &uploads.TransportError{Status: data.Status}
	switch data.Reason {
	case "canceled":
		cause.Reason = uploads.ReasonCanceled
	case "status":
		cause.Reason = uploads.ReasonStatus
	default:
		cause.Reason = uploads.ReasonNetwork
		cause.Err = errors.New(data.Detail)
	}
	if err := d.Uploads.MarkStatus(taskID, uploads.StatusError, cause); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	c.Status(http.StatusNoContent)
}
