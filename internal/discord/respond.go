package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/modkit/pkg/cmd"
)

// EmbedColor is the accent used for every embed the bot sends.
const EmbedColor = 0xb01e66

// ResponderID is the halt handler id of Responder.
const ResponderID = "discord_responder"

var ErrNoEvent = errors.New("invocation carries no discord event")

// Reply answers an invocation where it came from: an interaction response for
// slash and context-menu commands, a message reply for prefix commands.
func Reply(inv *cmd.Invocation, content string) error {
	return send(inv, content, nil, false)
}

// ReplyEphemeral is Reply visible only to the caller. Prefix commands have no
// ephemeral form and get a normal reply.
func ReplyEphemeral(inv *cmd.Invocation, content string) error {
	return send(inv, content, nil, true)
}

func ReplyEmbed(inv *cmd.Invocation, embed *discordgo.MessageEmbed) error {
	return send(inv, "", embed, false)
}

func ReplyEmbedEphemeral(inv *cmd.Invocation, embed *discordgo.MessageEmbed) error {
	return send(inv, "", embed, true)
}

func send(inv *cmd.Invocation, content string, embed *discordgo.MessageEmbed, ephemeral bool) error {
	ev, ok := EventFrom(inv)
	if !ok || ev.Session == nil {
		return ErrNoEvent
	}
	var embeds []*discordgo.MessageEmbed
	if embed != nil {
		if embed.Color == 0 {
			embed.Color = EmbedColor
		}
		embeds = []*discordgo.MessageEmbed{embed}
	}

	switch {
	case ev.Interaction != nil:
		var flags discordgo.MessageFlags
		if ephemeral {
			flags = discordgo.MessageFlagsEphemeral
		}
		// An interaction takes one response; later replies become followups.
		if ev.responded.CompareAndSwap(false, true) {
			return ev.Session.InteractionRespond(ev.Interaction.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{Content: content, Embeds: embeds, Flags: flags},
			})
		}
		_, err := ev.Session.FollowupMessageCreate(ev.Interaction.Interaction, true, &discordgo.WebhookParams{
			Content: content,
			Embeds:  embeds,
			Flags:   flags,
		})
		return err
	case ev.Message != nil:
		_, err := ev.Session.ChannelMessageSendComplex(ev.Message.ChannelID, &discordgo.MessageSend{
			Content:   content,
			Embeds:    embeds,
			Reference: ev.Message.Reference(),
		})
		return err
	}
	return ErrNoEvent
}

// HaltMessage renders the text shown to a caller whose command did not run.
func HaltMessage(t *cmd.Trigger) string {
	switch t.Reason {
	case cmd.ReasonMissingArguments:
		return "Missing required arguments: " + strings.Join(t.Missing, ", ")
	case cmd.ReasonInvalidArguments:
		return "Invalid value for: " + strings.Join(t.Invalid, ", ")
	case cmd.ReasonCooldown:
		return fmt.Sprintf("This command is on cooldown. Try again <t:%d:R>.", t.CooldownEndsAt.Unix())
	case cmd.ReasonPreconditionTrigger:
		if t.Message != "" {
			return t.Message
		}
		return "You cannot use this command here."
	default:
		return "Something went wrong while running this command."
	}
}

// Responder is a global halt handler telling the caller why their command
// did not run. Invocations that did not come from Discord are passed on.
func Responder(log zerolog.Logger) cmd.HaltFunc {
	return func(_ context.Context, t *cmd.Trigger) (*cmd.Result, error) {
		if _, ok := EventFrom(t.Invocation); !ok {
			return nil, nil
		}
		if t.Reason == cmd.ReasonError {
			log.Error().
				Err(t.Err).
				Str("event", "discord.command_failed").
				Str("command", t.Command.Key().String()).
				Str("invocation_id", t.Invocation.ID).
				Msg("command failed")
		}

		msg := HaltMessage(t)
		if err := ReplyEmbedEphemeral(t.Invocation, &discordgo.MessageEmbed{Description: msg}); err != nil {
			return nil, fmt.Errorf("reply to %s: %w", t.Invocation.ID, err)
		}
		return cmd.Failed(msg), nil
	}
}

// Typing shows the typing indicator while a prefix command runs.
func Typing() cmd.Middleware {
	return func(next cmd.ExecuteFunc) cmd.ExecuteFunc {
		return func(ctx context.Context, inv *cmd.Invocation, args *cmd.Args) error {
			if ev, ok := EventFrom(inv); ok && ev.Message != nil && ev.Session != nil {
				_ = ev.Session.ChannelTyping(inv.ChannelID)
			}
			return next(ctx, inv, args)
		}
	}
}
