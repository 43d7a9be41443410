package aggregate

import (
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func AggregateFetch(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	aggID := c.Param("id")
	if aggID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No aggregate ID provided",
			"requestID": requestID,
		})
		return
	}

	var agg model.Aggregate

	err := d.DB.
		Where("user_id = ? AND id = ?", userID, aggID).
		First(&agg).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Aggregate not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch aggregate from db", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, agg)
}
