// Package core is the built-in module. It carries the basic commands every
// deployment wants (ping, say, pong, about and the context-menu helpers) plus
// the guild administration commands when the host provides storage.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/modkit/internal/discord"
	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/cmd"
	"github.com/keshon/modkit/pkg/module"
)

// Name is the manifest name of the module.
const Name = "core"

// Group of every command in this module. It cannot be disabled.
const Group = "core"

const defaultPongCooldown = 10 * time.Second

// Store is the host storage the administration commands need.
type Store interface {
	CommandHistory(guildID string) ([]storage.CommandHistoryRecord, error)
	DisableGroup(guildID, group string) error
	EnableGroup(guildID, group string) error
	DisabledGroups(guildID string) ([]string, error)
}

// reply and replyEmbed are swapped in tests.
var (
	reply      = discord.Reply
	replyEmbed = discord.ReplyEmbed
)

func init() {
	module.Register(Name, New)
}

// New returns a fresh definition of the core module.
func New() *module.Definition {
	return &module.Definition{
		Commands: []*cmd.Descriptor{
			pingMessage(),
			pingSlash(),
			sayMessage(),
			saySlash(),
			aboutSlash(),
			quoteMenu(),
			userInfoMenu(),
		},
		OnStart:  start,
		OnLoad:   load,
		OnUnload: unload,
	}
}

// start adds the commands that depend on settings or on host storage.
func start(_ context.Context, mc *module.Context) (bool, error) {
	cooldown := defaultPongCooldown
	if raw, ok := mc.Settings["pong_cooldown"]; ok {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return false, fmt.Errorf("pong_cooldown %q: want a non-negative duration", raw)
		}
		cooldown = d
	}
	if err := mc.AddCommand(pongSlash(cooldown)); err != nil {
		return false, err
	}

	store, ok := mc.Host.(Store)
	if !ok {
		mc.Log.Info().Str("event", "core.no_store").Msg("host has no storage, admin commands disabled")
		return true, nil
	}
	for _, d := range []*cmd.Descriptor{toggleSlash(store), historySlash(store)} {
		if err := mc.AddCommand(d); err != nil {
			return false, err
		}
	}
	return true, nil
}

func load(_ context.Context, mc *module.Context) error {
	mc.Log.Info().Str("event", "core.loaded").Int("commands", len(mc.Commands())).Msg("core module loaded")
	return nil
}

func unload(_ context.Context, mc *module.Context, reason string) error {
	mc.Log.Info().Str("event", "core.unloaded").Str("reason", reason).Msg("core module unloaded")
	return nil
}
