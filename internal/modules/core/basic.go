package core

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modkit/internal/config"
	"github.com/keshon/modkit/internal/discord"
	"github.com/keshon/modkit/pkg/cmd"
)

func pingMessage() *cmd.Descriptor {
	return cmd.Message("ping", "Check bot latency").Group(Group).Execute(ping).MustBuild()
}

func pingSlash() *cmd.Descriptor {
	return cmd.Slash("ping", "Check bot latency").Group(Group).Execute(ping).MustBuild()
}

func ping(_ context.Context, inv *cmd.Invocation, _ *cmd.Args) error {
	desc := "Pong!"
	if ev, ok := discord.EventFrom(inv); ok && ev.Session != nil {
		desc = fmt.Sprintf("Pong! Latency: %dms", ev.Session.HeartbeatLatency().Milliseconds())
	}
	return reply(inv, desc)
}

// pongSlash answers ping's twin with a per-caller cooldown.
func pongSlash(cooldown time.Duration) *cmd.Descriptor {
	return cmd.Slash("pong", "Ping, but rate limited").
		Group(Group).
		Cooldown(cooldown).
		Execute(func(_ context.Context, inv *cmd.Invocation, _ *cmd.Args) error {
			return reply(inv, "Ping!")
		}).
		MustBuild()
}

var sayText = cmd.Option{Name: "text", Description: "What to say", Type: cmd.TypeString, Required: true, Rest: true}

func sayMessage() *cmd.Descriptor {
	return cmd.Message("say", "Repeat a message").
		Group(Group).
		Option(sayText).
		Flag(cmd.Flag{Name: "upper", Description: "Shout it", Type: cmd.TypeBoolean}).
		BotPermissions(discordgo.PermissionSendMessages).
		Execute(say).
		MustBuild()
}

func saySlash() *cmd.Descriptor {
	text := sayText
	text.Rest = false
	return cmd.Slash("say", "Repeat a message").
		Group(Group).
		Option(text).
		Option(cmd.Option{Name: "upper", Description: "Shout it", Type: cmd.TypeBoolean}).
		Execute(say).
		MustBuild()
}

func say(ctx context.Context, inv *cmd.Invocation, args *cmd.Args) error {
	text := args.String("text")
	upper, err := boolArg(ctx, args, "upper")
	if err != nil {
		return err
	}
	if upper {
		text = strings.ToUpper(text)
	}
	return reply(inv, text)
}

// boolArg reads a boolean option or flag; absent means false.
func boolArg(ctx context.Context, args *cmd.Args, name string) (bool, error) {
	var (
		v   any
		err error
	)
	if o := args.Option(name); o != nil {
		v, err = o.Value(ctx)
	} else if f := args.Flag(name); f != nil {
		v, err = f.Value(ctx)
	}
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func aboutSlash() *cmd.Descriptor {
	return cmd.Slash("about", "Discover the origin of this bot").
		Group(Group).
		Execute(func(_ context.Context, inv *cmd.Invocation, _ *cmd.Args) error {
			return replyEmbed(inv, &discordgo.MessageEmbed{
				Title:       "About modkit",
				Description: "A modular command framework for Discord bots.",
				Fields: []*discordgo.MessageEmbedField{
					{Name: "Version", Value: config.Version, Inline: true},
					{Name: "Go", Value: strings.TrimPrefix(runtime.Version(), "go"), Inline: true},
					{Name: "Repository", Value: "https://github.com/keshon/modkit"},
				},
			})
		}).
		MustBuild()
}

func quoteMenu() *cmd.Descriptor {
	return cmd.ContextMenu("Quote", cmd.TargetMessage).
		Group(Group).
		Execute(func(_ context.Context, inv *cmd.Invocation, _ *cmd.Args) error {
			ev, ok := discord.EventFrom(inv)
			if !ok || ev.Target.Message == nil {
				return fmt.Errorf("quote: no target message")
			}
			m := ev.Target.Message
			author := "unknown"
			if m.Author != nil {
				author = "<@" + m.Author.ID + ">"
			}
			return reply(inv, fmt.Sprintf("> %s\n%s", strings.ReplaceAll(m.Content, "\n", "\n> "), author))
		}).
		MustBuild()
}

func userInfoMenu() *cmd.Descriptor {
	return cmd.ContextMenu("User info", cmd.TargetUser).
		Group(Group).
		Execute(func(_ context.Context, inv *cmd.Invocation, _ *cmd.Args) error {
			ev, ok := discord.EventFrom(inv)
			if !ok || ev.Target.User == nil {
				return fmt.Errorf("user info: no target user")
			}
			u := ev.Target.User
			created, err := discordgo.SnowflakeTimestamp(u.ID)
			if err != nil {
				return fmt.Errorf("user info: %w", err)
			}
			return replyEmbed(inv, &discordgo.MessageEmbed{
				Title: u.Username,
				Fields: []*discordgo.MessageEmbedField{
					{Name: "ID", Value: u.ID, Inline: true},
					{Name: "Bot", Value: fmt.Sprint(u.Bot), Inline: true},
					{Name: "Created", Value: fmt.Sprintf("<t:%d:D>", created.Unix())},
				},
			})
		}).
		MustBuild()
}
