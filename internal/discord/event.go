package discord

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modkit/pkg/cmd"
)

// Event is the platform payload the adapter stores in cmd.Invocation.Data.
// Exactly one of Message and Interaction is set.
type Event struct {
	Session     *discordgo.Session
	Message     *discordgo.MessageCreate
	Interaction *discordgo.InteractionCreate

	// Target is the user or message a context-menu command was used on.
	Target Target

	responded atomic.Bool
}

// Target of a context-menu command. User or Message is filled from the
// interaction's resolved data when Discord sent it.
type Target struct {
	ID      string
	User    *discordgo.User
	Message *discordgo.Message
}

// EventFrom extracts the Discord event of an invocation built by this package.
func EventFrom(inv *cmd.Invocation) (*Event, bool) {
	if inv == nil {
		return nil, false
	}
	ev, ok := inv.Data.(*Event)
	return ev, ok && ev != nil
}

// messageInvocation turns a prefixed chat message into a command name and
// invocation. Messages from bots or without the prefix are ignored.
func messageInvocation(m *discordgo.MessageCreate, prefix string) (string, *cmd.Invocation, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || prefix == "" {
		return "", nil, false
	}
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	rest := strings.TrimLeftFunc(content[len(prefix):], unicode.IsSpace)

	name, text := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, text = rest[:i], strings.TrimSpace(rest[i:])
	}
	if name == "" {
		return "", nil, false
	}

	inv := cmd.NewInvocation(m.Author.ID, m.GuildID, m.ChannelID)
	inv.Text = text
	inv.Data = &Event{Message: m}
	return name, inv, true
}

// interactionInvocation maps an application command interaction onto the
// command kind, name and invocation the pipeline dispatches.
func interactionInvocation(i *discordgo.InteractionCreate) (cmd.Kind, string, *cmd.Invocation, bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return 0, "", nil, false
	}
	data := i.ApplicationCommandData()

	caller, perms := i.User, int64(0)
	if i.Member != nil {
		caller, perms = i.Member.User, i.Member.Permissions
	}
	if caller == nil {
		return 0, "", nil, false
	}

	inv := cmd.NewInvocation(caller.ID, i.GuildID, i.ChannelID)
	inv.CallerPermissions = perms
	inv.BotPermissions = i.AppPermissions
	ev := &Event{Interaction: i}
	inv.Data = ev

	switch data.CommandType {
	case discordgo.ChatApplicationCommand:
		inv.Input = cmd.Input{Named: namedOptions(data.Options)}
		return cmd.KindSlash, data.Name, inv, true
	case discordgo.MessageApplicationCommand, discordgo.UserApplicationCommand:
		ev.Target = resolveTarget(data)
		return cmd.KindContextMenu, data.Name, inv, true
	}
	return 0, "", nil, false
}

func namedOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string][]string {
	named := make(map[string][]string, len(opts))
	for _, o := range opts {
		if o == nil {
			continue
		}
		named[o.Name] = append(named[o.Name], optionString(o))
	}
	return named
}

func optionString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch o.Type {
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(o.IntValue(), 10)
	case discordgo.ApplicationCommandOptionNumber:
		return strconv.FormatFloat(o.FloatValue(), 'f', -1, 64)
	case discordgo.ApplicationCommandOptionBoolean:
		return strconv.FormatBool(o.BoolValue())
	default:
		return fmt.Sprint(o.Value)
	}
}

func resolveTarget(data discordgo.ApplicationCommandInteractionData) Target {
	t := Target{ID: data.TargetID}
	if data.Resolved == nil {
		return t
	}
	if u, ok := data.Resolved.Users[data.TargetID]; ok {
		t.User = u
	}
	if m, ok := data.Resolved.Messages[data.TargetID]; ok {
		t.Message = m
	}
	return t
}
