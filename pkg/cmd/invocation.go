package cmd

import (
	"github.com/google/uuid"
)

// Invocation carries what the host hands the pipeline for one command call:
// caller identity, guild/channel context, raw input and the permission bits
// the host computed. Data is opaque to the core; adapters put their platform
// event there (e.g. *discordgo.InteractionCreate).
type Invocation struct {
	ID        string
	CallerID  string
	GuildID   string // empty in direct messages
	ChannelID string
	Text      string // raw text after the command name, message commands only
	Input     Input

	CallerPermissions int64
	BotPermissions    int64

	Data any
}

// NewInvocation returns an invocation with a fresh id.
func NewInvocation(callerID, guildID, channelID string) *Invocation {
	return &Invocation{
		ID:        uuid.NewString(),
		CallerID:  callerID,
		GuildID:   guildID,
		ChannelID: channelID,
	}
}

// InGuild reports whether the invocation happened inside a guild.
func (inv *Invocation) InGuild() bool { return inv.GuildID != "" }
