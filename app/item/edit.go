package item

import (
	"errors"
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/library"
	"bitrel/media-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type editOpts struct {
	Name *string `json:"name,omitempty"`

	Image *model.ImageMeta `json:"image,omitempty"`
	Audio *model.AudioMeta `json:"audio,omitempty"`
	Video *model.VideoMeta `json:"video,omitempty"`
	Code  *model.CodeMeta  `json:"code,omitempty"`
}

// ItemEdit is metadata-only: renames and payload updates never touch
// storage or the derived stats
func ItemEdit(c *gin.Context, d *internal.Deps) {
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

	var data editOpts
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	if data.Name == nil && data.Image == nil && data.Audio == nil && data.Video == nil && data.Code == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No edit options provided",
			"requestID": requestID,
		})
		return
	}

	if data.Name != nil && *data.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Empty name",
			"requestID": requestID,
		})
		return
	}

	if !ownsAggregate(c, d, userID, aggID, requestID) {
		return
	}

	agg, err := d.Library.UpdateItemMetadata(c.Request.Context(), aggID, itemID, func(it *model.Item) {
		if data.Name != nil {
			it.Name = *data.Name
		}
		if data.Image != nil && it.Kind == model.KindImage {
			it.Image = data.Image
		}
		if data.Audio != nil && it.Kind == model.KindAudio {
			it.Audio = data.Audio
		}
		if data.Video != nil && it.Kind == model.KindVideo {
			it.Video = data.Video
		}
		if data.Code != nil && it.Kind == model.KindCode && it.Code != nil {
			// Content stays as uploaded. Editing it would change the
			// item's size contribution behind the derived stats
			it.Code.Path = data.Code.Path
			it.Code.Language = data.Code.Language
		}
	})
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

		zap.L().Error("Failed to edit item",
			zap.String("aggregate_id", aggID),
			zap.String("item_id", itemID),
			zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, agg)
}
