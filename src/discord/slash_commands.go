package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	CommandSugestie = "sugestie"
	CommandWarn     = "warn"
	CommandUnwarn   = "unwarn"
	CommandWarns    = "warns"
	CommandLink     = "link"
	CommandUnlink   = "unlink"
	CommandXP       = "xp"
	CommandRules    = "rules"
	CommandAlarm    = "alarm"
	CommandPing     = "ping"

	MenuWarn         = "Zwarnuj"
	MenuWarns        = "Pokaż warny"
	MenuXP           = "Pokaż XP"
	MenuRefreshRoles = "Odśwież role"
)

var staffOnly = func() *int64 { p := int64(discordgo.PermissionManageMessages); return &p }()

func userOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func stringOption(name, desc string, maxLen int) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    true,
		MaxLength:   maxLen,
	}
}

func subcommand(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: desc,
		Options:     opts,
	}
}

func userMenu(name string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: name, Type: discordgo.UserApplicationCommand}
}

var minProposals = 0.0

var commandDefinitions = map[string]*discordgo.ApplicationCommand{
	CommandSugestie: {
		Name:        CommandSugestie,
		Description: "Komendy do sugestii",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("show", "Wyświetla sugestię"),
			subcommand("done", "Oznacza sugestię jako wykonaną", stringOption("changes", "Opis zmian", 1000)),
			subcommand("annul", "Unieważnia sugestię", stringOption("reason", "Powód", 1000)),
			subcommand("erase", "Usuwa sugestię"),
		},
	},
	CommandWarn: {
		Name:                     CommandWarn,
		Description:              "Warnuje użytkownika",
		DefaultMemberPermissions: staffOnly,
		Options: []*discordgo.ApplicationCommandOption{
			userOption("member", "Użytkownik", true),
			stringOption("reason", "Powód", 1000),
		},
	},
	CommandUnwarn: {
		Name:                     CommandUnwarn,
		Description:              "Odbiera warna użytkownikowi",
		DefaultMemberPermissions: staffOnly,
		Options:                  []*discordgo.ApplicationCommandOption{userOption("member", "Użytkownik", true)},
	},
	CommandWarns: {
		Name:        CommandWarns,
		Description: "Pokazuje warny użytkownika",
		Options:     []*discordgo.ApplicationCommandOption{userOption("user", "Użytkownik", false)},
	},
	CommandLink: {
		Name:                     CommandLink,
		Description:              "Łączy dwa konta jednego użytkownika",
		DefaultMemberPermissions: staffOnly,
		Options: []*discordgo.ApplicationCommandOption{
			userOption("user", "Pierwsze konto", true),
			userOption("other", "Drugie konto", true),
		},
	},
	CommandUnlink: {
		Name:                     CommandUnlink,
		Description:              "Odłącza konto od połączonych kont",
		DefaultMemberPermissions: staffOnly,
		Options:                  []*discordgo.ApplicationCommandOption{userOption("user", "Konto", true)},
	},
	CommandXP: {
		Name:        CommandXP,
		Description: "Komendy do XP",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("show", "Pokazuje XP użytkownika", userOption("user", "Użytkownik", false)),
			subcommand("leaderboard", "Wyświetla 10 użytkowników z najwyższym XP"),
			subcommand("roles", "Wyświetla role za XP"),
		},
	},
	CommandRules: {
		Name:        CommandRules,
		Description: "Komendy do regulaminu",
		Options: []*discordgo.ApplicationCommandOption{
			subcommand("show", "Wyświetla obowiązujący regulamin"),
			subcommand("history", "Wyświetla historyczne wersje regulaminu"),
			subcommand("resend", "Aktualizuje kanał z regulaminem"),
			subcommand("set", "Ustanawia nowy regulamin",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "text",
					Description: "Plik tekstowy z regulaminem",
					Required:    true,
				},
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "ile_sugestii",
					Description: "Z iloma sugestiami jest powiązana zmiana",
					Required:    true,
					MinValue:    &minProposals,
					MaxValue:    4,
				},
			),
		},
	},
	CommandAlarm: {
		Name:        CommandAlarm,
		Description: "Wzywa administrację po pomoc",
	},
	CommandPing: {
		Name:        CommandPing,
		Description: "Sprawdza ping bota",
	},
	MenuWarn:         userMenu(MenuWarn),
	MenuWarns:        userMenu(MenuWarns),
	MenuXP:           userMenu(MenuXP),
	MenuRefreshRoles: userMenu(MenuRefreshRoles),
}

var defaultCommandOrder = []string{
	CommandSugestie,
	CommandWarn,
	CommandUnwarn,
	CommandWarns,
	CommandLink,
	CommandUnlink,
	CommandXP,
	CommandRules,
	CommandAlarm,
	CommandPing,
	MenuWarn,
	MenuWarns,
	MenuXP,
	MenuRefreshRoles,
}

// CommandCreator registers application commands. *discordgo.Session
// satisfies it.
type CommandCreator interface {
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// RegisterSlashCommands registers the requested commands for a guild. When no
// command names are provided, all known commands are registered.
func RegisterSlashCommands(s CommandCreator, appID, guildID string, log *slog.Logger, names ...string) error {
	if guildID == "" {
		return fmt.Errorf("discord: guildID is required to register slash commands")
	}
	if log == nil {
		log = slog.Default()
	}
	if len(names) == 0 {
		names = defaultCommandOrder
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			log.Warn("unknown slash command", "command", name)
			continue
		}
		if _, err := s.ApplicationCommandCreate(appID, guildID, definition); err != nil {
			if isDuplicateCommandError(err) {
				log.Debug("slash command already registered", "command", name)
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			log.Error("failed to register command", "command", name, "error", err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		if strings.Contains(strings.ToLower(restErr.Message.Message), "already exists") {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}

// Options indexes command options by name.
type Options map[string]*discordgo.ApplicationCommandInteractionDataOption

// OptionsOf indexes opts.
func OptionsOf(opts []*discordgo.ApplicationCommandInteractionDataOption) Options {
	out := make(Options, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

// Subcommand splits a grouped command into the subcommand name and its
// options.
func Subcommand(data discordgo.ApplicationCommandInteractionData) (string, Options) {
	if len(data.Options) == 1 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Name, OptionsOf(data.Options[0].Options)
	}
	return "", OptionsOf(data.Options)
}

// String returns a string option or "".
func (o Options) String(name string) string {
	if opt, ok := o[name]; ok {
		if s, ok := opt.Value.(string); ok {
			return s
		}
	}
	return ""
}

// ID returns the snowflake of a user, channel, role or attachment option.
func (o Options) ID(name string) string { return o.String(name) }

// Int returns an integer option or 0.
func (o Options) Int(name string) int {
	if opt, ok := o[name]; ok {
		if f, ok := opt.Value.(float64); ok {
			return int(f)
		}
	}
	return 0
}
