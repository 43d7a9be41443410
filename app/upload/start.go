// Package upload contains the endpoints of the direct-upload protocol
// and the server-driven proxy upload
package upload

import (
	"errors"
	"net/http"

	"bitrel/media-api/internal"
	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/model"
	"bitrel/media-api/internal/uploads"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type startOpts struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type startResponse struct {
	TaskID     string `json:"taskID"`
	UploadURL  string `json:"uploadUrl"`
	StorageKey string `json:"storageKey"`
}

// UploadStart is the credential phase of the direct-upload protocol:
// it validates the candidate, registers an upload task and hands the
// browser a presigned PUT to stream the bytes to
func UploadStart(c *gin.Context, d *internal.Deps) {
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

	var data startOpts
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	kind, ok := media.KindForMime(data.MimeType)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Unsupported file type",
			"requestID": requestID,
		})
		return
	}

	if !ownsAggregate(c, d, userID, aggID, requestID) {
		return
	}

	if code, err := checkQuota(d, userID, data.Size); err != nil {
		c.JSON(code, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	taskID, err := d.Uploads.Add(uploads.TaskSpec{
		AggregateID: aggID,
		UserID:      userID,
		FileName:    data.FileName,
		Kind:        kind,
		MimeType:    data.MimeType,
		Size:        data.Size,
	})
	if err != nil {
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

	cred, err := d.Gateway.IssueUploadCredential(c.Request.Context(), aggID, kind, data.FileName, data.MimeType, data.Size)
	if err != nil {
		d.Uploads.MarkStatus(taskID, uploads.StatusUploading, nil)
		d.Uploads.MarkStatus(taskID, uploads.StatusError, &uploads.CredentialError{Err: err})

		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Failed to issue upload credential",
			"requestID": requestID,
		})

		zap.L().Error("Credential issuance failed",
			zap.String("task_id", taskID),
			zap.Error(err))
		return
	}

	d.Uploads.SetStorageKey(taskID, cred.Key)

	// The browser starts its PUT right away
	d.Uploads.MarkStatus(taskID, uploads.StatusUploading, nil)

	c.JSON(http.StatusCreated, startResponse{
		TaskID:     taskID,
		UploadURL:  cred.UploadURL,
		StorageKey: cred.Key,
	})
}

// checkQuota rejects an upload that would push the user past their
// storage allowance. Missing stats rows mean no quota is enforced
func checkQuota(d *internal.Deps, userID string, size int64) (int, error) {
	maxStorage := viper.GetInt64("storage.max_usage")
	if maxStorage <= 0 {
		return 0, nil
	}

	var usedSpace int64
	err := d.DB.
		Model(&model.Stats{}).
		Where("user_id = ?", userID).
		Select("used_storage").
		First(&usedSpace).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return http.StatusInternalServerError, err
	}

	if usedSpace+size > maxStorage {
		return http.StatusConflict, errors.New("not enough space")
	}

	return 0, nil
}

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
