package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/access"
)

// HasRole checks whether a member has a role. Empty roleID always returns true.
func HasRole(m *discordgo.Member, roleID string) bool {
	if roleID == "" {
		return true
	}
	return m != nil && slices.Contains(m.Roles, roleID)
}

// Actor describes the caller of an interaction. Guild administrators are
// staff even without a configured staff role.
func Actor(i *discordgo.Interaction) access.Actor {
	switch {
	case i == nil:
		return access.Actor{}
	case i.Member != nil:
		a := access.Actor{Roles: i.Member.Roles}
		if i.Member.User != nil {
			a.ID = i.Member.User.ID
		}
		a.Staff = i.Member.Permissions&discordgo.PermissionAdministrator != 0
		return a
	case i.User != nil:
		return access.Actor{ID: i.User.ID}
	}
	return access.Actor{}
}

// IsBot reports whether the interaction comes from a bot account.
func IsBot(i *discordgo.Interaction) bool {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.Bot
	case i.User != nil:
		return i.User.Bot
	}
	return false
}
