// Package discord adapts the command core to Discord: it turns gateway
// events into invocations, answers halted commands and pushes application
// commands through the bulk overwrite endpoint.
package discord

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	xlog "github.com/keshon/modkit/internal/log"
	"github.com/keshon/modkit/pkg/cmd"
)

// Dispatcher is the part of cmd.Pipeline the bot needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind cmd.Kind, name string, inv *cmd.Invocation) (*cmd.Outcome, error)
}

// Bot is a Discord bot
type Bot struct {
	session   *discordgo.Session
	pipeline  Dispatcher
	prefix    string
	log       zerolog.Logger
	blacklist func(guildID string) bool
	readyFn   func(ctx context.Context, guildIDs []string)
	developer string

	ctx context.Context
}

type BotOption func(*Bot)

// WithPrefix sets the prefix of message commands. An empty prefix disables
// them.
func WithPrefix(p string) BotOption { return func(b *Bot) { b.prefix = p } }

func WithLogger(l zerolog.Logger) BotOption { return func(b *Bot) { b.log = l } }

// WithBlacklist makes the bot leave blacklisted guilds on sight.
func WithBlacklist(fn func(guildID string) bool) BotOption {
	return func(b *Bot) { b.blacklist = fn }
}

// WithDeveloper grants every permission bit to the given user id.
func WithDeveloper(userID string) BotOption { return func(b *Bot) { b.developer = userID } }

// OnReady runs fn in its own goroutine after every gateway READY with the
// ids of the guilds the bot stays in.
func OnReady(fn func(ctx context.Context, guildIDs []string)) BotOption {
	return func(b *Bot) { b.readyFn = fn }
}

// NewSession creates a bot session with the intents message and
// application commands need.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return s, nil
}

func NewBot(s *discordgo.Session, pipeline Dispatcher, opts ...BotOption) *Bot {
	b := &Bot{
		session:  s,
		pipeline: pipeline,
		prefix:   "!",
		log:      zerolog.Nop(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bot) Session() *discordgo.Session { return b.session }

// Run opens the gateway connection and serves events until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	removers := []func(){
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onGuildCreate),
		b.session.AddHandler(b.onMessageCreate),
		b.session.AddHandler(b.onInteractionCreate),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	b.log.Info().Str("event", "discord.connected").Msg("gateway session open")

	<-ctx.Done()
	b.log.Info().Str("event", "discord.closing").Msg("closing gateway session")
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().
		Str("event", "discord.ready").
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("bot is ready")

	var ids []string
	for _, g := range r.Guilds {
		if b.leaveIfBlacklisted(s, g.ID) {
			continue
		}
		ids = append(ids, g.ID)
	}
	if b.readyFn != nil {
		go b.readyFn(b.ctx, ids)
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || b.leaveIfBlacklisted(s, g.ID) {
		return
	}
	b.log.Debug().Str("event", "discord.guild_available").Str("guild_id", g.ID).Str("guild", g.Name).Msg("guild available")
}

func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID string) bool {
	if b.blacklist == nil || !b.blacklist(guildID) {
		return false
	}
	logger := b.log.With().Str("guild_id", guildID).Logger()
	if err := s.GuildLeave(guildID); err != nil {
		logger.Error().Err(err).Str("event", "discord.guild_leave_failed").Msg("failed to leave blacklisted guild")
	} else {
		logger.Warn().Str("event", "discord.guild_left").Msg("left blacklisted guild")
	}
	return true
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State != nil && s.State.User != nil && m.Author != nil && m.Author.ID == s.State.User.ID {
		return
	}
	name, inv, ok := messageInvocation(m, b.prefix)
	if !ok {
		return
	}
	inv.Data.(*Event).Session = s
	inv.CallerPermissions = channelPermissions(s, m.Author.ID, m.ChannelID)
	if s.State != nil && s.State.User != nil {
		inv.BotPermissions = channelPermissions(s, s.State.User.ID, m.ChannelID)
	}
	_ = b.dispatch(cmd.KindMessage, name, inv)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	kind, name, inv, ok := interactionInvocation(i)
	if !ok {
		b.log.Debug().Str("event", "discord.interaction_ignored").Int("type", int(i.Type)).Msg("unhandled interaction type")
		return
	}
	inv.Data.(*Event).Session = s
	if err := b.dispatch(kind, name, inv); errors.Is(err, cmd.ErrUnknownCommand) {
		if err := ReplyEphemeral(inv, "This command is no longer available."); err != nil {
			b.log.Warn().Err(err).Str("event", "discord.reply_failed").Msg("could not answer stale interaction")
		}
	}
}

// ErrHandlerPanic is returned by dispatch when a panic escaped the pipeline,
// which only happens for halt handlers and preconditions. The failure is
// logged and left unanswered.
var ErrHandlerPanic = errors.New("command handling panicked")

func (b *Bot) dispatch(kind cmd.Kind, name string, inv *cmd.Invocation) (err error) {
	if b.developer != "" && inv.CallerID == b.developer {
		inv.CallerPermissions = discordgo.PermissionAll
	}
	ctx := xlog.ContextWithInvocationID(b.ctx, inv.ID)
	logger := xlog.WithContext(ctx, b.log).With().
		Str("command", cmd.Key{Kind: kind, Name: name}.String()).
		Str("user_id", inv.CallerID).
		Str("guild_id", inv.GuildID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("event", "discord.halt_handler_panic").
				Str("invocation_id", inv.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("command handling panicked, failure left unhandled")
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	out, err := b.pipeline.Dispatch(ctx, kind, name, inv)
	switch {
	case errors.Is(err, cmd.ErrUnknownCommand):
		logger.Debug().Str("event", "discord.unknown_command").Msg("no live command with this name")
	case err != nil:
		logger.Error().Err(err).Str("event", "discord.dispatch_failed").Msg("command dispatch failed")
	case out.Executed:
		logger.Debug().Str("event", "discord.command_executed").Msg("command executed")
	default:
		logger.Debug().Str("event", "discord.command_halted").Str("reason", string(out.Trigger.Reason)).Msg("command halted")
	}
	return err
}

// channelPermissions returns 0 when state has no data for the channel, as in
// direct messages.
func channelPermissions(s *discordgo.Session, userID, channelID string) int64 {
	if s.State == nil {
		return 0
	}
	perms, err := s.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		return 0
	}
	return perms
}
