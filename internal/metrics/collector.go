package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// Nil functions are skipped.
type StatsSource struct {
	BlacklistCount  func() int
	ServerCount     func() int
	SuspiciousCount func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.BlacklistCount != nil {
		BlacklistSize.Set(float64(src.BlacklistCount()))
	}
	if src.ServerCount != nil {
		ConnectedServers.Set(float64(src.ServerCount()))
	}
	if src.SuspiciousCount != nil {
		SuspiciousUsers.Set(float64(src.SuspiciousCount()))
	}
}
