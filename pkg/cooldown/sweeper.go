package cooldown

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunSweeper removes expired cooldowns every interval until ctx is done.
func RunSweeper(ctx context.Context, store *Store, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.SweepExpired(); n > 0 {
				log.Debug().
					Str("event", "cooldown.swept").
					Int("removed", n).
					Int("remaining", store.Len()).
					Msg("expired cooldowns removed")
			}
		}
	}
}
