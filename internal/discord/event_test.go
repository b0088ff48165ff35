package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/modkit/pkg/cmd"
)

func chatMessage(content string, author *discordgo.User) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    author,
	}}
}

func TestMessageInvocation(t *testing.T) {
	alice := &discordgo.User{ID: "u1", Username: "alice"}

	name, inv, ok := messageInvocation(chatMessage("!say   hello  world ", alice), "!")
	require.True(t, ok)
	assert.Equal(t, "say", name)
	assert.Equal(t, "hello  world", inv.Text)
	assert.Equal(t, "u1", inv.CallerID)
	assert.Equal(t, "g1", inv.GuildID)
	assert.Equal(t, "c1", inv.ChannelID)
	assert.NotEmpty(t, inv.ID)

	ev, ok := EventFrom(inv)
	require.True(t, ok)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.Nil(t, ev.Interaction)

	name, inv, ok = messageInvocation(chatMessage("! ping", alice), "!")
	require.True(t, ok)
	assert.Equal(t, "ping", name)
	assert.Empty(t, inv.Text)
}

func TestMessageInvocation_Ignored(t *testing.T) {
	alice := &discordgo.User{ID: "u1"}
	tests := map[string]struct {
		msg    *discordgo.MessageCreate
		prefix string
	}{
		"no prefix":    {chatMessage("ping", alice), "!"},
		"only prefix":  {chatMessage("!   ", alice), "!"},
		"bot author":   {chatMessage("!ping", &discordgo.User{ID: "b1", Bot: true}), "!"},
		"no author":    {chatMessage("!ping", nil), "!"},
		"empty prefix": {chatMessage("!ping", alice), ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, ok := messageInvocation(tt.msg, tt.prefix)
			assert.False(t, ok)
		})
	}
}

func TestInteractionInvocation_Slash(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:           discordgo.InteractionApplicationCommand,
		GuildID:        "g1",
		ChannelID:      "c1",
		AppPermissions: discordgo.PermissionSendMessages,
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: "u1"},
			Permissions: discordgo.PermissionManageMessages,
		},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:        "say",
			CommandType: discordgo.ChatApplicationCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "text", Type: discordgo.ApplicationCommandOptionString, Value: "hi there"},
				{Name: "times", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
				{Name: "loud", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
				{Name: "ratio", Type: discordgo.ApplicationCommandOptionNumber, Value: 0.5},
				{Name: "who", Type: discordgo.ApplicationCommandOptionUser, Value: "u2"},
			},
		},
	}}

	kind, name, inv, ok := interactionInvocation(i)
	require.True(t, ok)
	assert.Equal(t, cmd.KindSlash, kind)
	assert.Equal(t, "say", name)
	assert.Equal(t, "u1", inv.CallerID)
	assert.Equal(t, int64(discordgo.PermissionManageMessages), inv.CallerPermissions)
	assert.Equal(t, int64(discordgo.PermissionSendMessages), inv.BotPermissions)
	assert.Equal(t, map[string][]string{
		"text":  {"hi there"},
		"times": {"3"},
		"loud":  {"true"},
		"ratio": {"0.5"},
		"who":   {"u2"},
	}, inv.Input.Named)
}

func TestInteractionInvocation_ContextMenuInDM(t *testing.T) {
	target := &discordgo.Message{ID: "m9", Content: "quoted"}
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "dm1",
		User:      &discordgo.User{ID: "u1"},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:        "Quote",
			CommandType: discordgo.MessageApplicationCommand,
			TargetID:    "m9",
			Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
				Messages: map[string]*discordgo.Message{"m9": target},
			},
		},
	}}

	kind, name, inv, ok := interactionInvocation(i)
	require.True(t, ok)
	assert.Equal(t, cmd.KindContextMenu, kind)
	assert.Equal(t, "Quote", name)
	assert.False(t, inv.InGuild())
	assert.Zero(t, inv.CallerPermissions)

	ev, ok := EventFrom(inv)
	require.True(t, ok)
	assert.Equal(t, "m9", ev.Target.ID)
	assert.Same(t, target, ev.Target.Message)
	assert.Nil(t, ev.Target.User)
}

func TestInteractionInvocation_IgnoresComponents(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "u1"},
	}}
	_, _, _, ok := interactionInvocation(i)
	assert.False(t, ok)
}
