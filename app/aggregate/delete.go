package aggregate

import (
	"errors"
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/library"
	"bitrel/media-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AggregateDelete cascades: every storage object referenced by the
// aggregate's items is batch-deleted, then the record goes away even if
// some objects survived
func AggregateDelete(c *gin.Context, d *internal.Deps) {
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

	// Ownership check before the cascade runs
	var owner string
	err := d.DB.
		Model(&model.Aggregate{}).
		Where("id = ?", aggID).
		Select("user_id").
		First(&owner).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
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

		zap.L().Error("Failed to check aggregate ownership", zap.Error(err))
		return
	}

	if owner != userID {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Aggregate not found. It either doesn't exist or you don't own it",
			"requestID": requestID,
		})
		return
	}

	if err := d.Library.DeleteAggregate(c.Request.Context(), aggID); err != nil {
		if errors.Is(err, library.ErrAggregateNotFound) {
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

		zap.L().Error("Failed to delete aggregate", zap.String("aggregate_id", aggID), zap.Error(err))
		return
	}

	c.Status(http.StatusNoContent)
}
