// Package service holds background maintenance jobs
package service

import (
	"time"

	"bitrel/media-api/internal/uploads"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartTaskSweep periodically removes terminal upload tasks that
// outlived their grace period. The coordinator normally removes
// finished tasks itself, but removal timers don't survive a snapshot
// restore, so this backstop keeps the registry from accumulating
// stale entries
func StartTaskSweep(coord *uploads.Coordinator, maxAge time.Duration) *cron.Cron {
	if maxAge <= 0 {
		maxAge = time.Minute
	}

	c := cron.New()

	c.AddFunc("@every 1m", func() {
		if n := coord.SweepTerminal(maxAge); n > 0 {
			zap.L().Debug("Swept stale upload tasks", zap.Int("removed", n))
		}
	})

	c.Start()

	zap.L().Debug("Task sweep attached", zap.Duration("max_age", maxAge))
	return c
}
