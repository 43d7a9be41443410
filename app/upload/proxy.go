package upload

import (
	"errors"
	"io"
	"net/http"
	"os"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/uploads"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadProxy is the server-driven path: the file arrives as multipart
// form data, is spooled to disk and streamed to storage by the upload
// pipeline. Useful for clients that can't do presigned PUTs themselves
func UploadProxy(c *gin.Context, d *internal.Deps) {
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

	if !ownsAggregate(c, d, userID, aggID, requestID) {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file provided",
			"requestID": requestID,
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to open multipart file", zap.String("requestID", requestID), zap.Error(err))
		return
	}
	defer f.Close()

	// The Content-Type of a multipart part is whatever the client felt
	// like sending, so sniff the real one
	mime, err := mimetype.DetectReader(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to detect mime type", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to rewind multipart file", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	kind, ok := media.KindForMime(mime.String())
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Unsupported file type",
			"requestID": requestID,
		})
		return
	}

	if code, err := checkQuota(d, userID, fh.Size); err != nil {
		c.JSON(code, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	temp, err := os.CreateTemp("", "upload-*"+media.Ext(fh.Filename))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create temporary file", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	if _, err := io.Copy(temp, f); err != nil {
		temp.Close()
		os.Remove(temp.Name())

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to copy data to temporary file", zap.String("requestID", requestID), zap.Error(err))
		return
	}
	temp.Close()

	taskID, err := d.Uploads.Add(uploads.TaskSpec{
		AggregateID: aggID,
		UserID:      userID,
		FileName:    fh.Filename,
		Kind:        kind,
		MimeType:    mime.String(),
		Size:        fh.Size,
	})
	if err != nil {
		os.Remove(temp.Name())

		var vErr *media.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     vErr.Error(),
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to register upload task", zap.Error(err))
		return
	}

	// The pipeline owns the temp file from here on
	d.Pipeline.Start(c.Request.Context(), taskID, temp.Name())

	t, _ := d.Uploads.Get(taskID)

	c.JSON(http.StatusAccepted, gin.H{
		"task": t,
	})
}
