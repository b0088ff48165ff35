// Package registrar pushes the live application commands (slash and context
// menu) to the chat platform, one bulk replace per scope.
package registrar

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/keshon/modkit/pkg/cmd"
	"github.com/keshon/modkit/pkg/events"
	"github.com/keshon/modkit/pkg/retrylimit"
)

// Scope is either global (empty GuildID) or one guild.
type Scope struct {
	GuildID string
}

func Global() Scope { return Scope{} }

func Guild(id string) Scope { return Scope{GuildID: id} }

func (s Scope) IsGlobal() bool { return s.GuildID == "" }

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "guild:" + s.GuildID
}

// Platform replaces the whole registered command set of a scope in one call.
type Platform interface {
	ReplaceCommands(ctx context.Context, scope Scope, cmds []*cmd.Descriptor) error
}

// Registered is published on events.TopicCommandsRegistered after each sync.
type Registered struct {
	Scope    Scope
	Commands []cmd.Key
	Hash     string
	// Skipped is set when the hash matched the last push and no call was made.
	Skipped bool
}

// Registrar computes the desired command set and pushes it.
type Registrar struct {
	registry  *cmd.Registry
	platform  Platform
	cache     HashCache
	limiter   *retrylimit.AdaptiveLimiter
	retry     retrylimit.RetryConfig
	bus       events.Publisher
	log       zerolog.Logger
	blacklist func(guildID string) bool
	mirror    bool
}

type Option func(*Registrar)

// WithHashCache skips pushes whose command set did not change.
func WithHashCache(c HashCache) Option { return func(r *Registrar) { r.cache = c } }

func WithLimiter(l *retrylimit.AdaptiveLimiter) Option { return func(r *Registrar) { r.limiter = l } }

func WithRetry(cfg retrylimit.RetryConfig) Option { return func(r *Registrar) { r.retry = cfg } }

func WithPublisher(p events.Publisher) Option { return func(r *Registrar) { r.bus = p } }

func WithLogger(l zerolog.Logger) Option { return func(r *Registrar) { r.log = l } }

// WithBlacklist makes blacklisted guild scopes sync to an empty set.
func WithBlacklist(fn func(guildID string) bool) Option {
	return func(r *Registrar) { r.blacklist = fn }
}

// WithGuildMirror also pushes unscoped commands to every guild scope. Useful
// in development where global commands propagate slowly.
func WithGuildMirror(on bool) Option { return func(r *Registrar) { r.mirror = on } }

func New(registry *cmd.Registry, platform Platform, opts ...Option) *Registrar {
	r := &Registrar{
		registry: registry,
		platform: platform,
		retry:    retrylimit.DefaultRetryConfig(),
		bus:      events.Nop{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Desired returns the live application commands that belong to scope, sorted
// by kind and name. The global scope takes commands without a guild list; a
// guild scope takes commands listing that guild.
func (r *Registrar) Desired(scope Scope) []*cmd.Descriptor {
	if !scope.IsGlobal() && r.blacklist != nil && r.blacklist(scope.GuildID) {
		return []*cmd.Descriptor{}
	}
	out := []*cmd.Descriptor{}
	for _, d := range r.registry.Live() {
		if !d.Kind.Application() {
			continue
		}
		switch {
		case len(d.Guilds) == 0:
			if scope.IsGlobal() || r.mirror {
				out = append(out, d)
			}
		case !scope.IsGlobal() && slices.Contains(d.Guilds, scope.GuildID):
			out = append(out, d)
		}
	}
	return out
}

// SyncOption adjusts one Sync call.
type SyncOption func(*syncConfig)

type syncConfig struct{ force bool }

// Force pushes even when the cached hash matches.
func Force() SyncOption { return func(c *syncConfig) { c.force = true } }

// Sync replaces the platform's command set for scope with Desired(scope).
func (r *Registrar) Sync(ctx context.Context, scope Scope, opts ...SyncOption) (Registered, error) {
	var cfg syncConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	desired := r.Desired(scope)
	res := Registered{Scope: scope, Hash: Hash(desired), Commands: make([]cmd.Key, 0, len(desired))}
	for _, d := range desired {
		res.Commands = append(res.Commands, d.Key())
	}
	logger := r.log.With().Str("scope", scope.String()).Logger()

	if r.cache != nil && !cfg.force {
		if prev, ok := r.cache.CommandHash(scope.String()); ok && prev == res.Hash {
			res.Skipped = true
			logger.Debug().Str("event", "registrar.unchanged").Int("commands", len(desired)).Msg("command set unchanged")
			r.bus.Publish(events.TopicCommandsRegistered, res)
			return res, nil
		}
	}

	retry := r.retry
	retry.Log = logger
	err := retrylimit.Do(ctx, r.limiter, retry, func(ctx context.Context) error {
		return r.platform.ReplaceCommands(ctx, scope, desired)
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "registrar.sync_failed").Msg("command sync failed")
		return res, fmt.Errorf("sync %s: %w", scope, err)
	}

	if r.cache != nil {
		if err := r.cache.SetCommandHash(scope.String(), res.Hash); err != nil {
			logger.Warn().Err(err).Str("event", "registrar.cache_write_failed").Msg("could not store command hash")
		}
	}
	logger.Info().Str("event", "registrar.synced").Int("commands", len(desired)).Msg("application commands registered")
	r.bus.Publish(events.TopicCommandsRegistered, res)
	return res, nil
}

// SyncAll syncs the global scope (when global is set) and every guild in
// guildIDs, continuing past failures. It returns the first error.
func (r *Registrar) SyncAll(ctx context.Context, global bool, guildIDs []string, opts ...SyncOption) ([]Registered, error) {
	var scopes []Scope
	if global {
		scopes = append(scopes, Global())
	}
	for _, id := range guildIDs {
		scopes = append(scopes, Guild(id))
	}

	var (
		out      []Registered
		firstErr error
	)
	for _, s := range scopes {
		res, err := r.Sync(ctx, s, opts...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		out = append(out, res)
	}
	return out, firstErr
}
