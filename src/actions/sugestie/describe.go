package sugestie

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/discord"
	engine "github.com/oooz/oooz-bot/src/sugestie"
)

// maxOptions is the most options a select menu takes.
const maxOptions = 25

func statusEmoji(p *engine.Proposal) string {
	switch {
	case p.Annulled != nil:
		return "🚯"
	case p.Outcome == nil:
		return "❔"
	case !*p.Outcome:
		return "❌"
	case p.Done == nil:
		return "✔️"
	default:
		return "✅"
	}
}

func voters(set store.Set) string {
	items := set.Items()
	for i, id := range items {
		items[i] = discord.MentionUser(id)
	}
	return strings.Join(items, ", ")
}

// describe is the long form shown by /sugestie show.
func describe(guild string, p *engine.Proposal, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sugestia %s z dnia %s ma następującą treść:```\n%s```",
		discord.MessageLink(guild, p.Channel, p.ID), discord.Timestamp(p.Created, ""), discord.Debacktick(p.Text))

	if p.Annulled != nil {
		fmt.Fprintf(&b, "Sugestia **została unieważniona** %s z powodu `%s`. 🚯\n",
			discord.Timestamp(p.Annulled.Time, ""), discord.Debacktick(p.Annulled.Text))
		return b.String()
	}

	switch phase := p.Phase(now); {
	case phase == engine.Reviewing:
		fmt.Fprintf(&b, "Trwa **komentowanie**, a głosowanie zacznie się %s. 💬\n", discord.Timestamp(p.ReviewEnd, ""))
	case p.Outcome == nil:
		fmt.Fprintf(&b, "**Głosowanie jeszcze trwa** i skończy się %s. ❔\n", discord.Timestamp(p.VoteEnd, ""))
	case *p.Outcome:
		fmt.Fprintf(&b, "Głosowanie zakończyło się %s wynikiem **pozytywnym**. ✅\n", discord.Timestamp(p.VoteEnd, ""))
	default:
		fmt.Fprintf(&b, "Głosowanie zakończyło się %s wynikiem **negatywnym**. ❌\n", discord.Timestamp(p.VoteEnd, ""))
	}

	if p.For.Len() > 0 {
		fmt.Fprintf(&b, "- Głosowali **za**: %s\n", voters(p.For))
	} else {
		b.WriteString("- **Nikt** nie głosował **za**.\n")
	}
	if p.Abstain.Len() > 0 {
		fmt.Fprintf(&b, "- **Wstrzymali się** od głosu: %s\n", voters(p.Abstain))
	} else {
		b.WriteString("- **Nikt** nie **wstrzymał się** od głosu.\n")
	}
	if p.Against.Len() > 0 {
		fmt.Fprintf(&b, "- Głosowali **przeciw**: %s\n", voters(p.Against))
	} else {
		b.WriteString("- **Nikt** nie głosował **przeciw**.\n")
	}

	if p.Outcome != nil && *p.Outcome {
		if p.Done != nil {
			fmt.Fprintf(&b, "Sugestia **została wykonana** %s z opisem zmian `%s` ✅\n",
				discord.Timestamp(p.Done.Time, ""), discord.Debacktick(p.Done.Text))
		} else {
			b.WriteString("Sugestia **nie została jeszcze wykonana** przez administrację. ❓\n")
		}
	}
	return b.String()
}

func label(p *engine.Proposal) string {
	text := strings.Join(strings.Fields(p.Text), " ")
	if text == "" {
		text = "(obraz)"
	}
	return discord.LimitLen(text)
}

// options lists the newest proposals first, as many as a select menu fits.
func options(ps []*engine.Proposal, emoji bool) []discordgo.SelectMenuOption {
	out := make([]discordgo.SelectMenuOption, 0, min(len(ps), maxOptions))
	for i := len(ps) - 1; i >= 0 && len(out) < maxOptions; i-- {
		p := ps[i]
		opt := discordgo.SelectMenuOption{
			Label:       label(p),
			Value:       p.ID,
			Description: discord.FormatTime(p.Created),
		}
		if emoji {
			opt.Emoji = &discordgo.ComponentEmoji{Name: statusEmoji(p)}
		}
		out = append(out, opt)
	}
	return out
}
