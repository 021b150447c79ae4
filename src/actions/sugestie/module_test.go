package sugestie

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/actions/actiontest"
	"github.com/oooz/oooz-bot/src/discord"
	engine "github.com/oooz/oooz-bot/src/sugestie"
)

var (
	authorMember = actiontest.Member("42")
	staffMember  = actiontest.Member("7", "staff")
	voterMember  = actiontest.Member("100")
)

func newModule(t *testing.T) (*Module, *actiontest.Env) {
	t.Helper()
	env := actiontest.New(t)
	m := NewModule(env.Runtime)
	m.runtimeCtx = context.Background()
	return m, env
}

func submit(t *testing.T, env *actiontest.Env) *engine.Proposal {
	t.Helper()
	p, err := env.Runtime.Sugestie.Submit(context.Background(), engine.Submission{
		Channel: "555", Author: "42", Text: "Dodajmy kanał o grafach",
	})
	require.NoError(t, err)
	return p
}

func selectMenu(t *testing.T, resp *discordgo.InteractionResponse) discordgo.SelectMenu {
	t.Helper()
	require.NotNil(t, resp.Data)
	require.NotEmpty(t, resp.Data.Components)
	row := resp.Data.Components[0].(discordgo.ActionsRow)
	return row.Components[0].(discordgo.SelectMenu)
}

func TestVoteButtons(t *testing.T) {
	m, env := newModule(t)
	p := submit(t, env)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Component(voterMember, p.ID, engine.ButtonFor))
	assert.Equal(t, "Głosowanie nad tą sugestią jeszcze się nie zaczęło. ⏱️", r.LastContent())

	env.Clock.Advance(25 * time.Hour)
	m.handle(r, actiontest.Component(voterMember, p.ID, engine.ButtonFor))
	assert.Equal(t, voteReplies[engine.For], r.LastContent())
	assert.Equal(t, discordgo.MessageFlagsEphemeral, r.Last().Data.Flags)

	m.handle(r, actiontest.Component(voterMember, p.ID, engine.ButtonFor))
	assert.Equal(t, "Już zagłosowałeś na tę opcję… 🤨", r.LastContent())

	m.handle(r, actiontest.Component(voterMember, p.ID, engine.ButtonAgainst))
	assert.Equal(t, changeReplies[engine.Against], r.LastContent())

	v := env.Display.Views[p.ID]
	assert.Equal(t, 0, v.For)
	assert.Equal(t, 1, v.Against)
}

func TestBotsCannotVote(t *testing.T) {
	m, env := newModule(t)
	p := submit(t, env)
	env.Clock.Advance(25 * time.Hour)
	r := &actiontest.Responder{}

	bot := actiontest.Member("9")
	bot.User.Bot = true
	m.handle(r, actiontest.Component(bot, p.ID, engine.ButtonFor))
	assert.Equal(t, "Boty nie mogą głosować nad sugestiami… 🤨", r.LastContent())
}

func TestCommentFlow(t *testing.T) {
	m, env := newModule(t)
	p := submit(t, env)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Component(voterMember, p.ID, engine.ButtonComment))
	require.Equal(t, discordgo.InteractionResponseModal, r.Last().Type)
	modalID := r.Last().Data.CustomID
	assert.Equal(t, "sugestie:comment:"+p.ID, modalID)

	m.handle(r, actiontest.ModalSubmit(voterMember, modalID, "Super pomysł"))
	assert.Equal(t, "Pomyślnie dodano komentarz. 🫡", r.LastContent())
	m.handle(r, actiontest.ModalSubmit(voterMember, modalID, "Jednak średni"))
	assert.Equal(t, "Pomyślnie zmieniono komentarz. 🫡", r.LastContent())

	got, err := env.Runtime.Sugestie.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"100": "Jednak średni"}, got.Comments)

	m.handle(r, actiontest.Component(voterMember, p.ID, engine.ButtonUncomment))
	assert.Equal(t, "Pomyślnie usunięto komentarz. 🫡", r.LastContent())

	env.Clock.Advance(25 * time.Hour)
	m.handle(r, actiontest.Component(voterMember, p.ID, engine.ButtonComment))
	assert.Equal(t, "Czas na komentowanie tej sugestii już minął. ⏱️", r.LastContent())
}

func TestDoneThroughSelect(t *testing.T) {
	m, env := newModule(t)
	ctx := context.Background()
	p := submit(t, env)
	r := &actiontest.Responder{}
	done := func(member *discordgo.Member) *discordgo.Interaction {
		return actiontest.Command("cmd1", member, discord.CommandSugestie,
			actiontest.Sub("done", actiontest.Opt("changes", "dodano kanał")))
	}

	m.handle(r, done(voterMember))
	assert.Equal(t, "Nie masz uprawnień do tego, tylko administracja może to robić. 😡", r.LastContent())

	m.handle(r, done(staffMember))
	assert.Equal(t, "Nie ma żadnych sugestii, które zostały jeszcze do wykonania… 🤨", r.LastContent())

	env.Clock.Advance(25 * time.Hour)
	_, err := env.Runtime.Sugestie.Vote(ctx, p.ID, discord.Actor(&discordgo.Interaction{Member: voterMember}), engine.For)
	require.NoError(t, err)
	env.Clock.Advance(25 * time.Hour)
	require.NoError(t, env.Runtime.Sugestie.Update(ctx, p.ID))

	m.handle(r, done(staffMember))
	menu := selectMenu(t, r.Last())
	assert.Equal(t, "sugestie:done:cmd1", menu.CustomID)
	require.Len(t, menu.Options, 1)
	assert.Equal(t, p.ID, menu.Options[0].Value)
	assert.Contains(t, r.LastContent(), "`dodano kanał`")

	m.handle(r, actiontest.Component(voterMember, "menu", menu.CustomID, p.ID))
	assert.Contains(t, r.LastContent(), "wygasło")

	m.handle(r, actiontest.Component(staffMember, "menu", menu.CustomID, p.ID))
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, r.Last().Type)
	assert.Contains(t, r.LastContent(), "jako wykonaną z opisem zmian `dodano kanał`! 🥳")

	got, err := env.Runtime.Sugestie.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Done)
	assert.Equal(t, "dodano kanał", got.Done.Text)
	assert.Equal(t, engine.Done, env.Display.Views[p.ID].Phase)
}

func TestAnnulRequiresReason(t *testing.T) {
	m, env := newModule(t)
	submit(t, env)
	r := &actiontest.Responder{}
	m.handle(r, actiontest.Command("cmd", staffMember, discord.CommandSugestie,
		actiontest.Sub("annul", actiontest.Opt("reason", "  "))))
	assert.Equal(t, "Treść nie może być pusta… 🤨", r.LastContent())
}

func TestEraseByAuthor(t *testing.T) {
	m, env := newModule(t)
	p := submit(t, env)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Command("cmd2", voterMember, discord.CommandSugestie, actiontest.Sub("erase")))
	assert.Equal(t, "Nie ma żadnych sugestii, które możesz usunąć… 🤨", r.LastContent())

	m.handle(r, actiontest.Command("cmd3", authorMember, discord.CommandSugestie, actiontest.Sub("erase")))
	menu := selectMenu(t, r.Last())
	m.handle(r, actiontest.Component(authorMember, "menu", menu.CustomID, p.ID))
	assert.Equal(t, "Pomyślnie usunięto sugestię. 🗑️", r.LastContent())

	assert.Empty(t, env.Runtime.Sugestie.List(context.Background(), engine.All))
	assert.NotContains(t, env.Display.Views, p.ID)
}

func TestAuthorCanEraseAnnulled(t *testing.T) {
	m, env := newModule(t)
	p := submit(t, env)
	ctx := context.Background()
	require.NoError(t, env.Runtime.Sugestie.Annul(ctx, p.ID, discord.Actor(&discordgo.Interaction{Member: staffMember}), "duplikat"))
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Command("cmd5", authorMember, discord.CommandSugestie, actiontest.Sub("erase")))
	menu := selectMenu(t, r.Last())
	require.Len(t, menu.Options, 1)
	assert.Equal(t, p.ID, menu.Options[0].Value)

	m.handle(r, actiontest.Component(authorMember, "menu", menu.CustomID, p.ID))
	assert.Equal(t, "Pomyślnie usunięto sugestię. 🗑️", r.LastContent())
	assert.Empty(t, env.Runtime.Sugestie.List(ctx, engine.All))
}

func TestShow(t *testing.T) {
	m, env := newModule(t)
	p := submit(t, env)
	r := &actiontest.Responder{}

	m.handle(r, actiontest.Command("cmd4", voterMember, discord.CommandSugestie, actiontest.Sub("show")))
	menu := selectMenu(t, r.Last())
	assert.Equal(t, "❔", menu.Options[0].Emoji.Name)
	assert.Equal(t, "Dodajmy kanał o grafach", menu.Options[0].Label)

	m.handle(r, actiontest.Component(voterMember, "menu", menu.CustomID, p.ID))
	text := r.LastContent()
	assert.Contains(t, text, "ma następującą treść:```\nDodajmy kanał o grafach```")
	assert.Contains(t, text, "Trwa **komentowanie**")
	assert.Contains(t, text, "- **Nikt** nie głosował **za**.")
}

func TestIgnoresOtherInteractions(t *testing.T) {
	m, _ := newModule(t)
	r := &actiontest.Responder{}
	m.handle(r, actiontest.Command("x", voterMember, discord.CommandPing))
	m.handle(r, actiontest.Component(voterMember, "1", "warns:unwarn:1", "x"))
	assert.Empty(t, r.Responses)
}

func TestOptionsNewestFirst(t *testing.T) {
	var ps []*engine.Proposal
	for i := 0; i < 30; i++ {
		ps = append(ps, &engine.Proposal{ID: string(rune('a' + i)), Text: "x"})
	}
	opts := options(ps, false)
	require.Len(t, opts, maxOptions)
	assert.Equal(t, ps[29].ID, opts[0].Value)
	assert.Nil(t, opts[0].Emoji)

	assert.Equal(t, "(obraz)", label(&engine.Proposal{}))
}
