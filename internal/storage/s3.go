package storage

import (
	"context"
	"fmt"
	"time"

	a "bitrel/media-api/aws"
	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultUploadTTL   = 15 * time.Minute
	defaultDownloadTTL = 15 * time.Minute
)

type S3Gateway struct {
	S3 *a.S3Client
}

func NewS3Gateway(s *a.S3Client) *S3Gateway {
	return &S3Gateway{S3: s}
}

// makeKey builds a collision-resistant key namespaced by aggregate and
// kind, keeping the original extension for content-type sniffing
func makeKey(aggregateID string, kind model.MediaKind, fileName string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate storage key, %w", err)
	}

	return fmt.Sprintf("%s/%s/%s%s", aggregateID, kind, id, media.Ext(fileName)), nil
}

func (g *S3Gateway) IssueUploadCredential(ctx context.Context, aggregateID string, kind model.MediaKind, fileName, mimeType string, size int64) (*UploadCredential, error) {
	policy, err := media.PolicyFor(kind)
	if err != nil {
		return nil, err
	}

	if err := policy.Validate(fileName, mimeType, size); err != nil {
		return nil, err
	}

	key, err := makeKey(aggregateID, kind, fileName)
	if err != nil {
		return nil, err
	}

	ttl := viper.GetDuration("storage.upload_url_ttl")
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}

	req, err := g.S3.Presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        g.S3.Bucket,
		Key:           aws.String(key),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload, %w", err)
	}

	return &UploadCredential{
		UploadURL: req.URL,
		Key:       key,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (g *S3Gateway) IssueDownloadCredential(ctx context.Context, key string) (*DownloadCredential, error) {
	ttl := viper.GetDuration("storage.download_url_ttl")
	if ttl <= 0 {
		ttl = defaultDownloadTTL
	}

	req, err := g.S3.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: g.S3.Bucket,
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign download, %w", err)
	}

	return &DownloadCredential{
		URL:       req.URL,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (g *S3Gateway) Delete(ctx context.Context, keys []string) (deleted, failed []string) {
	if len(keys) == 0 {
		return nil, nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for i := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: &keys[i]})
	}

	resp, err := g.S3.C.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: g.S3.Bucket,
		Delete: &types.Delete{Objects: objects},
	})
	if err != nil {
		zap.L().Error("Failed to delete objects from S3", zap.Int("keys", len(keys)), zap.Error(err))
		return nil, keys
	}

	for _, v := range resp.Deleted {
		zap.L().Debug("Deleted object", zap.String("key", *v.Key))
		deleted = append(deleted, *v.Key)
	}

	for _, e := range resp.Errors {
		zap.L().Warn("Object delete rejected",
			zap.String("key", aws.ToString(e.Key)),
			zap.String("code", aws.ToString(e.Code)),
			zap.String("message", aws.ToString(e.Message)))
		failed = append(failed, aws.ToString(e.Key))
	}

	return deleted, failed
}
