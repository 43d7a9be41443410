// Package item contains the endpoints mutating single items inside an
// aggregate
package item

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

func ItemRemove(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	aggID := c.Param("id")
	itemID := c.Param("itemID")
	if aggID == "" || itemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "ID is missing",
			"requestID": requestID,
		})
		return
	}

	if !ownsAggregate(c, d, userID, aggID, requestID) {
		return
	}

	agg, err := d.Library.RemoveItem(c.Request.Context(), aggID, itemID)
	if err != nil {
		if errors.Is(err, library.ErrItemNotFound) || errors.Is(err, library.ErrAggregateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Item not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to remove item",
			zap.String("aggregate_id", aggID),
			zap.String("item_id", itemID),
			zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, agg)
}

// ownsAggregate replies and returns false when the aggregate isn't the
// caller's
func ownsAggregate(c *gin.Context, d *internal.Deps, userID, aggID, requestID string) bool {
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
			return false
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to check aggregate ownership", zap.Error(err))
		return false
	}

	if owner != userID {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Aggregate not found. It either doesn't exist or you don't own it",
			"requestID": requestID,
		})
		return false
	}

	return true
}
