// Package app contains all endpoints available
package app

import (
	"fmt"
	"time"

	"bitrel/media-api/app/aggregate"
	"bitrel/media-api/app/item"
	appmedia "bitrel/media-api/app/media"
	"bitrel/media-api/app/root"
	"bitrel/media-api/app/upload"
	"bitrel/media-api/aws"
	"bitrel/media-api/db"
	"bitrel/media-api/internal"
	"bitrel/media-api/internal/library"
	"bitrel/media-api/internal/media"
	"bitrel/media-api/internal/playback"
	"bitrel/media-api/internal/service"
	"bitrel/media-api/internal/signedurl"
	"bitrel/media-api/internal/storage"
	"bitrel/media-api/internal/uploads"
	"bitrel/media-api/pkg/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var store = persist.NewMemoryStore(time.Minute)

func NewRouter() (*gin.Engine, error) {
	d := &internal.Deps{}

	makeLogger()

	router := gin.New()

	database, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}
	d.DB = database

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     viper.GetStringSlice("host.cors"),
			AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Range"},
			ExposeHeaders:    []string{"Content-Length", "Content-Range"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	router.MaxMultipartMemory = 5 << 20

	rateLimit := viper.GetInt("security.rate_limit")

	jwt := middleware.NewJWTMiddleware()
	jsonBody := middleware.BodySizeLimiter(1 << 20)
	uploadBody := middleware.BodySizeLimiter(viper.GetInt64("upload.proxy_max_body"))
	rateLimiter := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: rateLimit,
		Burst:             rateLimit * 2,
		CleanupInterval:   time.Second,
	})

	m := router.Group("/api", rateLimiter)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)

		// GET /api/validate		-> Validates a JWT token
		m.GET("/validate", jwt, root.Validate)
	}

	a := m.Group("/aggregates", jwt)
	{
		// POST /api/aggregates		-> Creates a new empty aggregate
		a.POST("", jsonBody, func(c *gin.Context) { aggregate.AggregateCreate(c, d) })

		// GET /api/aggregates		-> Returns a user's aggregates in bulk
		a.GET("", func(c *gin.Context) { aggregate.AggregateFetchBulk(c, d) })

		// GET /api/aggregates/:id	-> Returns one aggregate with its items
		a.GET("/:id", cachePerUser(15), func(c *gin.Context) { aggregate.AggregateFetch(c, d) })

		// PATCH /api/aggregates/:id	-> Updates an aggregate's own fields
		a.PATCH("/:id", func(c *gin.Context) { aggregate.AggregateEdit(c, d) })

		// DELETE /api/aggregates/:id	-> Deletes an aggregate and all its stored objects
		a.DELETE("/:id", func(c *gin.Context) { aggregate.AggregateDelete(c, d) })

		// POST /api/aggregates/:id/uploads	-> Starts a direct upload, returns a presigned PUT
		a.POST("/:id/uploads", func(c *gin.Context) { upload.UploadStart(c, d) })

		// POST /api/aggregates/:id/items	-> Uploads a file through the server
		a.POST("/:id/items", uploadBody, func(c *gin.Context) { upload.UploadProxy(c, d) })

		// POST /api/aggregates/:id/items/code	-> Creates a code item with embedded content
		a.POST("/:id/items/code", jsonBody, func(c *gin.Context) { item.ItemAddCode(c, d) })

		// PATCH /api/aggregates/:id/items/:itemID	-> Updates an item's metadata
		a.PATCH("/:id/items/:itemID", func(c *gin.Context) { item.ItemEdit(c, d) })

		// DELETE /api/aggregates/:id/items/:itemID	-> Removes an item and its stored objects
		a.DELETE("/:id/items/:itemID", func(c *gin.Context) { item.ItemRemove(c, d) })
	}

	u := m.Group("/uploads", jwt)
	{
		// GET /api/uploads		-> Lists the upload tasks of an aggregate
		u.GET("", func(c *gin.Context) { upload.UploadList(c, d) })

		// POST /api/uploads/:id/progress	-> Browser-reported transfer progress
		u.POST("/:id/progress", func(c *gin.Context) { upload.UploadProgress(c, d) })

		// POST /api/uploads/:id/confirm	-> Confirms a finished transfer, appends the item
		u.POST("/:id/confirm", func(c *gin.Context) { upload.UploadConfirm(c, d) })

		// POST /api/uploads/:id/fail	-> Browser-reported transfer failure
		u.POST("/:id/fail", func(c *gin.Context) { upload.UploadFail(c, d) })

		// DELETE /api/uploads/:id	-> Dismisses a task, cancelling it if still running
		u.DELETE("/:id", func(c *gin.Context) { upload.UploadDismiss(c, d) })
	}

	mm := m.Group("/media")
	{
		// GET /api/media/urls		-> Resolves storage keys into signed URLs in bulk
		mm.GET("/urls", cacheFor(15), func(c *gin.Context) { appmedia.MediaURLs(c, d) })

		// POST /api/media/urls/refresh	-> Replaces a signed URL that stopped working
		mm.POST("/urls/refresh", func(c *gin.Context) { appmedia.MediaURLRefresh(c, d) })
	}

	s3, err := aws.NewS3()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client, %w", err)
	}
	d.S3 = s3

	d.Gateway = storage.NewS3Gateway(s3)
	d.URLCache = signedurl.New(d.Gateway, viper.GetDuration("urls.refresh_margin"))
	d.Resolver = playback.NewResolver(d.URLCache)
	d.Library = library.New(database, d.Gateway)
	d.Uploads = uploads.NewCoordinator(viper.GetDuration("uploads.remove_after"))
	d.Pipeline = uploads.NewPipeline(d.Gateway, d.Library, d.Uploads, media.ProbeExtractor{})

	// Terminal tasks nobody dismissed get swept out eventually
	service.StartTaskSweep(d.Uploads, time.Hour)

	return router, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}

// cachePerUser keys cached responses by the authenticated user on top
// of the URI, so one user's private payload is never replayed to
// another within the cache window
func cachePerUser(sec int) gin.HandlerFunc {
	return cache.Cache(store, time.Second*time.Duration(sec),
		cache.WithCacheStrategyByRequest(func(c *gin.Context) (bool, cache.Strategy) {
			return true, cache.Strategy{
				CacheKey: c.GetString("userID") + "\x00" + c.Request.RequestURI,
			}
		}),
	)
}
