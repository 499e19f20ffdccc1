package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunLoop drives periodic inference over the live state and broadcasts
// each fresh prediction to the hub. Rate-gated ticks are skipped rather
// than re-broadcasting the cached record. Blocks until the context ends.
func RunLoop(ctx context.Context, m *Manager, hub *Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("realtime inference loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("realtime inference loop stopped")
			return
		case <-ticker.C:
			record, rateLimited, err := m.RunInference(ctx)
			if err != nil {
				log.Error().Err(err).Msg("periodic inference failed")
				continue
			}
			if rateLimited || record == nil {
				continue
			}
			hub.Broadcast(map[string]any{
				"type":   "prediction",
				"data":   record,
				"trends": m.Trends(),
			})
		}
	}
}
