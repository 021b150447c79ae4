package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/logging"
	"github.com/oooz/oooz-bot/src/warns"
	"github.com/oooz/oooz-bot/src/xp"
)

const membersPage = 1000

// Guild manages members and their roles in the configured guild.
type Guild struct {
	s     Session
	guild func() string
	log   *slog.Logger
}

var (
	_ warns.Roles = (*Guild)(nil)
	_ xp.Roles    = (*Guild)(nil)
)

func NewGuild(s Session, guild func() string, log *slog.Logger) *Guild {
	if log == nil {
		log = slog.Default()
	}
	return &Guild{s: s, guild: guild, log: log.With("component", "discord")}
}

// member returns nil without error when the user is not in the guild.
func (g *Guild) member(user string) (*discordgo.Member, error) {
	m, err := g.s.GuildMember(g.guild(), user)
	if err != nil {
		if logging.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("discord: member %s: %w", user, err)
	}
	return m, nil
}

// SetWarnRole leaves user with role as their only role out of all.
func (g *Guild) SetWarnRole(ctx context.Context, user, role string, all []string) error {
	var grant, revoke []string
	for _, r := range all {
		if r != role {
			revoke = append(revoke, r)
		}
	}
	if role != "" {
		grant = []string{role}
	}
	return g.sync(ctx, user, grant, revoke)
}

// SyncLevelRoles gives user every role in grant and removes those in revoke.
func (g *Guild) SyncLevelRoles(ctx context.Context, user string, grant, revoke []string) error {
	return g.sync(ctx, user, grant, revoke)
}

func (g *Guild) sync(ctx context.Context, user string, grant, revoke []string) error {
	m, err := g.member(user)
	if err != nil || m == nil {
		return err
	}
	guild := g.guild()
	var errs []error
	for _, r := range revoke {
		if slices.Contains(grant, r) || !slices.Contains(m.Roles, r) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		g.log.Debug("removing role", "user", user, "role", r)
		if err := g.s.GuildMemberRoleRemove(guild, user, r); err != nil {
			errs = append(errs, fmt.Errorf("remove role %s: %w", r, err))
		}
	}
	for _, r := range grant {
		if slices.Contains(m.Roles, r) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		g.log.Debug("adding role", "user", user, "role", r)
		if err := g.s.GuildMemberRoleAdd(guild, user, r); err != nil {
			errs = append(errs, fmt.Errorf("add role %s: %w", r, err))
		}
	}
	return errors.Join(errs...)
}

// Members lists every member of the guild.
func (g *Guild) Members(ctx context.Context) ([]*discordgo.Member, error) {
	var (
		out   []*discordgo.Member
		after string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := g.s.GuildMembers(g.guild(), after, membersPage)
		if err != nil {
			return nil, fmt.Errorf("discord: list members: %w", err)
		}
		out = append(out, page...)
		if len(page) < membersPage {
			return out, nil
		}
		last := page[len(page)-1]
		if last.User == nil {
			return out, nil
		}
		after = last.User.ID
	}
}

// Humans returns the ids of members that are not bots.
func (g *Guild) Humans(ctx context.Context) ([]string, error) {
	members, err := g.Members(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.User != nil && !m.User.Bot {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

// WithAnyRole returns the ids of members holding at least one of roles.
func (g *Guild) WithAnyRole(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	members, err := g.Members(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, m := range members {
		if m.User == nil || m.User.Bot {
			continue
		}
		if slices.ContainsFunc(m.Roles, func(r string) bool { return slices.Contains(roles, r) }) {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

// DM sends a direct message to user.
func (g *Guild) DM(_ context.Context, user, content string) error {
	ch, err := g.s.UserChannelCreate(user)
	if err != nil {
		return fmt.Errorf("discord: dm %s: %w", user, err)
	}
	_, err = g.s.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{Content: content})
	return err
}
