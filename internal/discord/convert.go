package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modkit/pkg/cmd"
)

var optionTypes = map[cmd.OptionType]discordgo.ApplicationCommandOptionType{
	cmd.TypeString:      discordgo.ApplicationCommandOptionString,
	cmd.TypeInteger:     discordgo.ApplicationCommandOptionInteger,
	cmd.TypeNumber:      discordgo.ApplicationCommandOptionNumber,
	cmd.TypeBoolean:     discordgo.ApplicationCommandOptionBoolean,
	cmd.TypeUser:        discordgo.ApplicationCommandOptionUser,
	cmd.TypeChannel:     discordgo.ApplicationCommandOptionChannel,
	cmd.TypeRole:        discordgo.ApplicationCommandOptionRole,
	cmd.TypeMentionable: discordgo.ApplicationCommandOptionMentionable,
}

// ApplicationCommand converts a slash or context-menu descriptor into the
// definition Discord expects. Message commands have no application form and
// yield nil.
func ApplicationCommand(d *cmd.Descriptor) *discordgo.ApplicationCommand {
	var ac *discordgo.ApplicationCommand
	switch d.Kind {
	case cmd.KindSlash:
		ac = &discordgo.ApplicationCommand{
			Type:        discordgo.ChatApplicationCommand,
			Name:        d.Name,
			Description: d.Description,
		}
		for _, o := range d.Options {
			ac.Options = append(ac.Options, &discordgo.ApplicationCommandOption{
				Type:        optionType(o.Type),
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			})
		}
	case cmd.KindContextMenu:
		ac = &discordgo.ApplicationCommand{
			Type: discordgo.MessageApplicationCommand,
			Name: d.Name,
		}
		if d.Target == cmd.TargetUser {
			ac.Type = discordgo.UserApplicationCommand
		}
	default:
		return nil
	}

	if d.GuildOnly {
		dm := false
		ac.DMPermission = &dm
	}
	if d.CallerPermissions != 0 {
		perms := d.CallerPermissions
		ac.DefaultMemberPermissions = &perms
	}
	return ac
}

// ApplicationCommands converts every application descriptor in ds, skipping
// message commands.
func ApplicationCommands(ds []*cmd.Descriptor) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(ds))
	for _, d := range ds {
		if ac := ApplicationCommand(d); ac != nil {
			out = append(out, ac)
		}
	}
	return out
}

func optionType(t cmd.OptionType) discordgo.ApplicationCommandOptionType {
	if ot, ok := optionTypes[t]; ok {
		return ot
	}
	return discordgo.ApplicationCommandOptionString
}
