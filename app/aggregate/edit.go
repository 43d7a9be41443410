package aggregate

import (
	"net/http"
	"time"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type editOpts struct {
	Title       *string `json:"title,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
	Public      *bool   `json:"public,omitempty"`
	CoverKey    *string `json:"cover_key,omitempty"`
}

func AggregateEdit(c *gin.Context, d *internal.Deps) {
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

	var data editOpts
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	updates := map[string]any{}

	if data.Title != nil {
		if *data.Title == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Empty title",
				"requestID": requestID,
			})
			return
		}
		updates["title"] = *data.Title
	}
	if data.Slug != nil {
		if *data.Slug == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Empty slug",
				"requestID": requestID,
			})
			return
		}
		updates["slug"] = *data.Slug
	}
	if data.Description != nil {
		updates["description"] = *data.Description
	}
	if data.Public != nil {
		updates["public"] = *data.Public
	}
	if data.CoverKey != nil {
		updates["cover_key"] = *data.CoverKey
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No edit options provided",
			"requestID": requestID,
		})
		return
	}

	updates["updated_at"] = time.Now().Unix()

	res := d.DB.
		Model(&model.Aggregate{}).
		Where("user_id = ? AND id = ?", userID, aggID).
		Updates(updates)
	if res.Error != nil {
		if res.Error == gorm.ErrDuplicatedKey {
			c.JSON(http.StatusConflict, gin.H{
				"error":     "An aggregate with this slug already exists",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to update aggregate", zap.Error(res.Error))
		return
	}

	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Aggregate not found. It either doesn't exist or you don't own it",
			"requestID": requestID,
		})
		return
	}

	var agg model.Aggregate
	if err := d.DB.Where("id = ?", aggID).First(&agg).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to reload aggregate", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, agg)
}
