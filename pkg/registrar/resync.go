package registrar

import (
	"context"
	"slices"
	"time"
)

// ScopedGuilds returns the sorted ids of guilds that live commands are
// explicitly scoped to.
func (r *Registrar) ScopedGuilds() []string {
	var out []string
	for _, d := range r.registry.Live() {
		if !d.Kind.Application() {
			continue
		}
		for _, g := range d.Guilds {
			if !slices.Contains(out, g) {
				out = append(out, g)
			}
		}
	}
	slices.Sort(out)
	return out
}

// Resync runs SyncAll after every burst of values on changes, once the
// channel has been quiet for the given duration. Guild scopes are the union
// of guildIDs() and ScopedGuilds(). It returns when ctx is done or changes
// is closed.
func (r *Registrar) Resync(ctx context.Context, changes <-chan any, quiet time.Duration, global bool, guildIDs func() []string) error {
	timer := time.NewTimer(quiet)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			pending = true
			timer.Reset(quiet)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			var guilds []string
			if guildIDs != nil {
				guilds = guildIDs()
			}
			for _, g := range r.ScopedGuilds() {
				if !slices.Contains(guilds, g) {
					guilds = append(guilds, g)
				}
			}
			if _, err := r.SyncAll(ctx, global, guilds); err != nil {
				r.log.Warn().Err(err).Str("event", "registrar.resync_failed").Msg("command resync incomplete")
			}
		}
	}
}
