package sugestie

import (
	"time"

	"github.com/oooz/oooz-bot/src/data/store"
)

// Button custom ids understood by the adapters.
const (
	ButtonFor       = "sugestia:for"
	ButtonAbstain   = "sugestia:abstain"
	ButtonAgainst   = "sugestia:against"
	ButtonComment   = "sugestia:comment"
	ButtonUncomment = "sugestia:uncomment"
)

// ButtonStyle is a platform-neutral button colour.
type ButtonStyle int

const (
	StyleSecondary ButtonStyle = iota
	StylePrimary
	StyleSuccess
	StyleDanger
)

// Button is one interactive control under the displayed message.
type Button struct {
	ID       string
	Label    string
	Style    ButtonStyle
	Count    int
	Disabled bool
}

// Comment is a rendered review comment.
type Comment struct {
	Author string
	Text   string
}

// View is everything an adapter needs to draw a proposal message.
type View struct {
	Phase     Phase
	Author    string
	Text      string
	Image     *Image
	Created   time.Time
	ReviewEnd time.Time
	VoteEnd   time.Time
	Comments  []Comment
	For       int
	Abstain   int
	Against   int
	Done      *Resolution
	Annulled  *Resolution
	Buttons   []Button
}

// Render computes the message view of p at now.
func Render(p *Proposal, now time.Time) View {
	phase := p.Phase(now)
	v := View{
		Phase:     phase,
		Author:    p.Author,
		Text:      p.Text,
		Image:     p.Image,
		Created:   p.Created,
		ReviewEnd: p.ReviewEnd,
		VoteEnd:   p.VoteEnd,
		For:       p.For.Len(),
		Abstain:   p.Abstain.Len(),
		Against:   p.Against.Len(),
		Done:      p.Done,
		Annulled:  p.Annulled,
	}
	for _, author := range store.SortedKeys(p.Comments) {
		v.Comments = append(v.Comments, Comment{Author: author, Text: p.Comments[author]})
	}

	// A proposal annulled during review keeps its (disabled) comment controls.
	if phase == Reviewing || (phase == Annulled && now.Before(p.ReviewEnd) && p.Outcome == nil) {
		v.Buttons = []Button{
			{ID: ButtonComment, Label: "Skomentuj", Style: StylePrimary, Count: len(p.Comments)},
			{ID: ButtonUncomment, Label: "Usuń komentarz", Style: StyleSecondary},
		}
	} else {
		v.Buttons = []Button{
			{ID: ButtonFor, Label: "Za", Style: StyleSuccess, Count: v.For},
			{ID: ButtonAbstain, Label: "Nie wiem", Style: StyleSecondary, Count: v.Abstain},
			{ID: ButtonAgainst, Label: "Przeciw", Style: StyleDanger, Count: v.Against},
		}
	}
	if phase.Terminal() {
		for i := range v.Buttons {
			v.Buttons[i].Disabled = true
		}
	}
	return v
}

// ButtonChoice maps a vote button id back to its choice.
func ButtonChoice(id string) (Choice, bool) {
	switch id {
	case ButtonFor:
		return For, true
	case ButtonAbstain:
		return Abstain, true
	case ButtonAgainst:
		return Against, true
	}
	return "", false
}

// Summary is the compact listing form used by the API and select menus.
type Summary struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Created   time.Time `json:"created"`
	ReviewEnd time.Time `json:"review_end"`
	VoteEnd   time.Time `json:"vote_end"`
	For       int       `json:"for"`
	Abstain   int       `json:"abstain"`
	Against   int       `json:"against"`
	Comments  int       `json:"comments"`
}

// Summarize returns the listing form of p at now.
func Summarize(p *Proposal, now time.Time) Summary {
	return Summary{
		ID:        p.ID,
		Channel:   p.Channel,
		Author:    p.Author,
		Text:      p.Text,
		Status:    p.Phase(now).String(),
		Created:   p.Created,
		ReviewEnd: p.ReviewEnd,
		VoteEnd:   p.VoteEnd,
		For:       p.For.Len(),
		Abstain:   p.Abstain.Len(),
		Against:   p.Against.Len(),
		Comments:  len(p.Comments),
	}
}
