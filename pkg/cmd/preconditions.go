package cmd

import (
	"context"
	"fmt"
)

// Built-in precondition ids.
const (
	PreconditionGuildOnly   = "guild_only"
	PreconditionPermissions = "permissions"
	PreconditionGroupAccess = "group_access"
)

// GuildOnly vetoes guild-only commands invoked outside a guild.
func GuildOnly() Precondition {
	return Precondition{
		ID: PreconditionGuildOnly,
		Check: func(_ context.Context, _ Kind, inv *Invocation, d *Descriptor) *Veto {
			if d.GuildOnly && !inv.InGuild() {
				return &Veto{Message: "You must be in a guild to use this command."}
			}
			return nil
		},
	}
}

// MissingPermissions is the veto data of the permissions precondition.
type MissingPermissions struct {
	Caller int64
	Bot    int64
}

// RequirePermissions vetoes when the caller or the bot lacks any bit the
// command requires.
func RequirePermissions() Precondition {
	return Precondition{
		ID: PreconditionPermissions,
		Check: func(_ context.Context, _ Kind, inv *Invocation, d *Descriptor) *Veto {
			missing := MissingPermissions{
				Caller: d.CallerPermissions &^ inv.CallerPermissions,
				Bot:    d.BotPermissions &^ inv.BotPermissions,
			}
			if missing.Caller == 0 && missing.Bot == 0 {
				return nil
			}
			msg := "You are missing permissions required by this command."
			if missing.Caller == 0 {
				msg = "I am missing permissions required by this command."
			}
			return &Veto{Message: msg, Data: missing}
		},
	}
}

// GroupChecker reports whether a command group is switched off in a guild.
type GroupChecker interface {
	IsGroupDisabled(guildID, group string) (bool, error)
}

// GroupAccess vetoes commands whose group is disabled for the guild. Lookup
// errors let the command through.
func GroupAccess(groups GroupChecker) Precondition {
	return Precondition{
		ID: PreconditionGroupAccess,
		Check: func(_ context.Context, _ Kind, inv *Invocation, d *Descriptor) *Veto {
			if d.Group == "" || !inv.InGuild() {
				return nil
			}
			disabled, err := groups.IsGroupDisabled(inv.GuildID, d.Group)
			if err != nil || !disabled {
				return nil
			}
			return &Veto{
				Message: fmt.Sprintf("Commands of group %q are disabled on this server.", d.Group),
				Data:    d.Group,
			}
		},
	}
}
