package upload

import (
	"net/http"

	"bitrel/media-api/internal"

	"github.com/gin-gonic/gin"
)

// UploadList returns the tasks of one aggregate, oldest first, so the
// UI can rebuild its task list after a reload
func UploadList(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	aggID := c.Query("aggregate")
	if aggID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No aggregate ID provided",
			"requestID": requestID,
		})
		return
	}

	if !ownsAggregate(c, d, userID, aggID, requestID) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": d.Uploads.ListForOwner(aggID),
	})
}
