// Package actiontest builds a Runtime with in-memory fakes of the Discord
// adapters for the action module tests.
package actiontest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/actions/core"
	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/console"
	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/scheduler"
	"github.com/oooz/oooz-bot/src/sugestie"
)

// Start is the initial time of every Clock.
var Start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Display records proposal messages.
type Display struct {
	mu    sync.Mutex
	next  int
	Views map[string]sugestie.View
}

func (d *Display) PostProposal(_ context.Context, _ string, v sugestie.View) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	id := fmt.Sprint(1000 + d.next)
	d.Views[id] = v
	return id, nil
}

func (d *Display) EditProposal(_ context.Context, _, id string, v sugestie.View) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Views[id] = v
	return nil
}

func (d *Display) DeleteProposal(_ context.Context, _, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Views, id)
	return nil
}

// Roles records the roles each user should hold.
type Roles struct {
	mu    sync.Mutex
	Warn  map[string]string
	Level map[string][]string
}

func (r *Roles) SetWarnRole(_ context.Context, user, role string, _ []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warn[user] = role
	return nil
}

func (r *Roles) SyncLevelRoles(_ context.Context, user string, grant, _ []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Level[user] = grant
	return nil
}

// Responder records interaction responses.
type Responder struct {
	mu        sync.Mutex
	Responses []*discordgo.InteractionResponse
	Edits     []string
}

func (r *Responder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responses = append(r.Responses, resp)
	return nil
}

func (r *Responder) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if edit.Content != nil {
		r.Edits = append(r.Edits, *edit.Content)
	}
	return &discordgo.Message{}, nil
}

// Last returns the most recent response.
func (r *Responder) Last() *discordgo.InteractionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Responses) == 0 {
		return nil
	}
	return r.Responses[len(r.Responses)-1]
}

// LastContent returns the text of the most recent response.
func (r *Responder) LastContent() string {
	if last := r.Last(); last != nil && last.Data != nil {
		return last.Data.Content
	}
	return ""
}

// Env is a Runtime wired to fakes.
type Env struct {
	Runtime *core.Runtime
	Clock   *Clock
	Discord *Discord
	Display *Display
	Roles   *Roles
	Config  *config.Config
}

// New builds an Env. mutate edits the configuration before the engines
// are created.
func New(t *testing.T, mutate ...func(*config.Config)) *Env {
	t.Helper()
	cfg := config.Default()
	cfg.Guild = "1"
	cfg.StaffRoles = []string{"staff"}
	cfg.Sugestie.Channel = "555"
	for _, m := range mutate {
		m(cfg)
	}
	dir := t.TempDir()
	e := &Env{
		Clock:   &Clock{t: Start},
		Display: &Display{Views: map[string]sugestie.View{}},
		Roles:   &Roles{Warn: map[string]string{}, Level: map[string][]string{}},
		Config:  cfg,
	}
	e.Discord = NewDiscord(e.Clock.Now)
	sched := scheduler.New(scheduler.Options{Now: e.Clock.Now})
	t.Cleanup(sched.Stop)
	e.Runtime = core.NewRuntime(core.Options{
		Discord:   e.Discord,
		Config:    config.NewHolder(filepath.Join(dir, "config.yaml"), cfg),
		Store:     store.New(store.Options{Path: filepath.Join(dir, "db.json"), Now: e.Clock.Now}),
		Scheduler: sched,
		Console:   console.NewRegistry(),
		Now:       e.Clock.Now,
		Display:   e.Display,
		Roles:     e.Roles,
	})
	return e
}

// Member builds the guild member an interaction comes from.
func Member(user string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: user}, Roles: roles}
}

// Command builds a slash command interaction.
func Command(id string, member *discordgo.Member, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      id,
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "1",
		Member:  member,
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

// Sub builds a subcommand option.
func Sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}
}

// Opt builds a plain option. Integers must be passed as float64.
func Opt(name string, value any) *discordgo.ApplicationCommandInteractionDataOption {
	typ := discordgo.ApplicationCommandOptionString
	if _, ok := value.(float64); ok {
		typ = discordgo.ApplicationCommandOptionInteger
	}
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: value}
}

// UserMenu builds a user context menu interaction targeting target.
func UserMenu(id string, member *discordgo.Member, name, target string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      id,
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "1",
		Member:  member,
		Data: discordgo.ApplicationCommandInteractionData{
			Name:        name,
			CommandType: discordgo.UserApplicationCommand,
			TargetID:    target,
		},
	}
}

// Component builds a button or select interaction on message.
func Component(member *discordgo.Member, message, customID string, values ...string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      "c-" + customID,
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "1",
		Member:  member,
		Message: &discordgo.Message{ID: message},
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID, Values: values},
	}
}

// ModalSubmit builds the submission of a single text input modal.
func ModalSubmit(member *discordgo.Member, customID, text string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      "m-" + customID,
		Type:    discordgo.InteractionModalSubmit,
		GuildID: "1",
		Member:  member,
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: customID,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "text", Value: text},
				}},
			},
		},
	}
}
