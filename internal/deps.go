package internal

import (
	"bitrel/media-api/aws"
	"bitrel/media-api/internal/library"
	"bitrel/media-api/internal/playback"
	"bitrel/media-api/internal/signedurl"
	"bitrel/media-api/internal/storage"
	"bitrel/media-api/internal/uploads"

	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	S3       *aws.S3Client
	Gateway  storage.Gateway
	URLCache *signedurl.Cache
	Library  *library.Library
	Uploads  *uploads.Coordinator
	Pipeline *uploads.Pipeline
	Resolver *playback.Resolver
}
