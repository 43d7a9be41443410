// Package aggregate contains the endpoints managing owning containers
// (galleries, albums, collections, repositories)
package aggregate

import (
	"net/http"
	"strings"
	"time"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/model"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validKinds = map[model.AggregateKind]bool{
	model.AggGallery:    true,
	model.AggAlbum:      true,
	model.AggCollection: true,
	model.AggRepository: true,
}

type createOpts struct {
	Kind        model.AggregateKind `json:"kind"`
	Title       string              `json:"title"`
	Slug        string              `json:"slug"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
}

func AggregateCreate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var data createOpts
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	if !validKinds[data.Kind] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid aggregate kind",
			"requestID": requestID,
		})
		return
	}

	if strings.TrimSpace(data.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Title can't be empty",
			"requestID": requestID,
		})
		return
	}

	if data.Slug == "" {
		data.Slug = slugify(data.Title)
	}

	id, err := gonanoid.New()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate aggregate ID", zap.Error(err))
		return
	}

	agg := model.Aggregate{
		ID:          id,
		UserID:      userID,
		Kind:        data.Kind,
		Title:       data.Title,
		Slug:        data.Slug,
		Description: data.Description,
		Items:       model.ItemList{},
		Public:      data.Public,
		CreatedAt:   time.Now().Unix(),
		UpdatedAt:   time.Now().Unix(),
	}

	if err := d.DB.Create(&agg).Error; err != nil {
		if err == gorm.ErrDuplicatedKey {
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

		zap.L().Error("Failed to create aggregate", zap.Error(err))
		return
	}

	c.JSON(http.StatusCreated, agg)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	lastDash := true

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
