package item

import (
	"net/http"
	"time"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snippets above this go through the regular upload path instead
const maxInlineCodeSize = 256 << 10

type addCodeOpts struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// ItemAddCode creates a code item with its content embedded in the
// record itself. Small snippets don't justify a storage round-trip, so
// they're the one kind that can live without a blob behind it
func ItemAddCode(c *gin.Context, d *internal.Deps) {
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

	var data addCodeOpts
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	if data.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No content provided",
			"requestID": requestID,
		})
		return
	}

	if len(data.Content) > maxInlineCodeSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Content too large to embed",
			"requestID": requestID,
		})
		return
	}

	if !ownsAggregate(c, d, userID, aggID, requestID) {
		return
	}

	name := data.Name
	if name == "" {
		name = data.Path
	}

	lang := data.Language
	if lang == "" {
		lang = media.LanguageForPath(data.Path)
	}

	it := model.Item{
		ID:         uuid.NewString(),
		Name:       name,
		Kind:       model.KindCode,
		UploadedAt: time.Now().Unix(),
		Code: &model.CodeMeta{
			Path:     data.Path,
			Language: lang,
			Content:  data.Content,
		},
	}

	agg, err := d.Library.AppendItem(c.Request.Context(), aggID, it)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to append code item", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"item":      it,
		"itemCount": agg.ItemCount,
		"totalSize": agg.TotalSize,
	})
}
