package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/cmd"
)

var errUnknownState = errors.New(`state must be "enable" or "disable"`)

func toggleSlash(store Store) *cmd.Descriptor {
	return cmd.Slash("cmd-toggle", "Enable or disable a group of commands").
		Group(Group).
		GuildOnly().
		CallerPermissions(discordgo.PermissionAdministrator).
		Option(cmd.Option{Name: "group", Description: "Command group to toggle", Type: cmd.TypeString, Required: true}).
		Option(cmd.Option{
			Name:        "state",
			Description: "enable or disable",
			Type:        cmd.TypeString,
			Required:    true,
			Validate: func(_ context.Context, raw string) error {
				if raw != "enable" && raw != "disable" {
					return errUnknownState
				}
				return nil
			},
		}).
		Execute(func(_ context.Context, inv *cmd.Invocation, args *cmd.Args) error {
			msg, err := toggleGroup(store, inv.GuildID, args.String("group"), args.String("state"))
			if err != nil {
				return err
			}
			return reply(inv, msg)
		}).
		MustBuild()
}

// toggleGroup applies the change and returns the confirmation for the caller.
func toggleGroup(store Store, guildID, group, state string) (string, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	switch {
	case group == Group && state == "disable":
		return "The `core` group cannot be disabled.", nil
	case state == "disable":
		if err := store.DisableGroup(guildID, group); err != nil {
			return "", fmt.Errorf("disable group %s: %w", group, err)
		}
	case state == "enable":
		if err := store.EnableGroup(guildID, group); err != nil {
			return "", fmt.Errorf("enable group %s: %w", group, err)
		}
	default:
		return "", errUnknownState
	}

	disabled, err := store.DisabledGroups(guildID)
	if err != nil {
		return "", fmt.Errorf("list disabled groups: %w", err)
	}
	slices.Sort(disabled)
	summary := "none"
	if len(disabled) > 0 {
		summary = "`" + strings.Join(disabled, "`, `") + "`"
	}
	return fmt.Sprintf("Group `%s` %sd. Disabled groups: %s.", group, state, summary), nil
}

func historySlash(store Store) *cmd.Descriptor {
	return cmd.Slash("cmd-log", "Show the latest commands used on this server").
		Group(Group).
		GuildOnly().
		CallerPermissions(discordgo.PermissionManageServer).
		Execute(func(_ context.Context, inv *cmd.Invocation, _ *cmd.Args) error {
			records, err := store.CommandHistory(inv.GuildID)
			if err != nil {
				return fmt.Errorf("command history: %w", err)
			}
			return replyEmbed(inv, &discordgo.MessageEmbed{
				Title:       "Command log",
				Description: formatHistory(records),
			})
		}).
		MustBuild()
}

func formatHistory(records []storage.CommandHistoryRecord) string {
	if len(records) == 0 {
		return "No commands recorded yet."
	}
	var b strings.Builder
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Fprintf(&b, "<t:%d:t> <@%s> `%s` in <#%s>\n", r.Datetime.Unix(), r.UserID, r.Command, r.ChannelID)
	}
	return strings.TrimRight(b.String(), "\n")
}
