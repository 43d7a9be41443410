// Package media exposes the public display endpoints that turn storage
// keys into short-lived browser-loadable URLs
package media

import (
	"net/http"
	"strings"

	"bitrel/media-api/internal"

	"github.com/gin-gonic/gin"
)

const maxBatchKeys = 100

// MediaURLs resolves a comma-separated list of storage keys into
// signed URLs in one pass. Keys that fail to resolve are simply absent
// from the response, the client falls back per-key via refresh
func MediaURLs(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	raw := c.Query("keys")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No keys provided",
			"requestID": requestID,
		})
		return
	}

	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	if len(keys) == 0 || len(keys) > maxBatchKeys {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Key count must be between 1 and 100",
			"requestID": requestID,
		})
		return
	}

	urls := d.Resolver.ResolveItems(c.Request.Context(), keys)

	c.JSON(http.StatusOK, gin.H{
		"urls": urls,
	})
}

type refreshOpts struct {
	Key string `json:"key"`
}

// MediaURLRefresh drops a cached entry and issues a fresh URL. Clients
// call this when a previously handed-out URL stops loading
func MediaURLRefresh(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data refreshOpts
	if err := c.BindJSON(&data); err != nil || data.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No key provided",
			"requestID": requestID,
		})
		return
	}

	url, err := d.Resolver.Refresh(c.Request.Context(), data.Key)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Failed to refresh URL",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url": url,
	})
}
