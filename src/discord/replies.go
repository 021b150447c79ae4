package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/access"
)

// Responder answers interactions. *discordgo.Session satisfies it.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Responder = (*discordgo.Session)(nil)

// noMentions keeps replies from pinging anybody they merely reference.
var noMentions = &discordgo.MessageAllowedMentions{}

// Reply sends a public message as the interaction response.
func Reply(r Responder, i *discordgo.Interaction, content string) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, AllowedMentions: noMentions},
	})
}

// ReplyEphemeral sends a message only the caller sees.
func ReplyEphemeral(r Responder, i *discordgo.Interaction, content string) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: noMentions,
		},
	})
}

// ReplyPing sends a public message that does notify the mentioned users
// and roles.
func ReplyPing(r Responder, i *discordgo.Interaction, content string) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// ReplySelect asks the caller to pick one option. customID routes the
// choice back to the module.
func ReplySelect(r Responder, i *discordgo.Interaction, content, customID string, opts []discordgo.SelectMenuOption, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{
		Content:         content,
		AllowedMentions: noMentions,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{CustomID: customID, Options: opts},
			}},
		},
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// UpdateMessage replaces the message a component was attached to, dropping
// its components.
func UpdateMessage(r Responder, i *discordgo.Interaction, content string) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Components:      []discordgo.MessageComponent{},
			AllowedMentions: noMentions,
		},
	})
}

// Defer acknowledges a component interaction without changing anything.
func Defer(r Responder, i *discordgo.Interaction) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// DeferEphemeral acknowledges a command whose answer comes later through
// EditReply.
func DeferEphemeral(r Responder, i *discordgo.Interaction) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// EditReply replaces the content of a deferred response.
func EditReply(r Responder, i *discordgo.Interaction, content string) error {
	_, err := r.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content})
	return err
}

// Modal opens a single text input dialog.
func Modal(r Responder, i *discordgo.Interaction, customID, title, label, value string, maxLen int) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID,
			Title:    title,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "text",
						Label:     label,
						Style:     discordgo.TextInputParagraph,
						Value:     value,
						Required:  true,
						MaxLength: maxLen,
					},
				}},
			},
		},
	})
}

// ModalText returns the value of the text input opened by Modal.
func ModalText(data discordgo.ModalSubmitInteractionData) string {
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if in, ok := c.(*discordgo.TextInput); ok && in.CustomID == "text" {
				return in.Value
			}
		}
	}
	return ""
}

// deniedText maps denial reasons to the bot's replies.
var deniedText = map[access.Reason]string{
	access.NotStaff:         "Nie masz uprawnień do tego, tylko administracja może to robić. 😡",
	access.MissingRole:      "Nie masz jeszcze wymaganej roli i nie możesz tego zrobić. 😢",
	access.NotConfigured:    "Ta funkcja nie została jeszcze skonfigurowana… 🤨",
	access.NotFound:         "Nie znalazłem tego, o co prosisz… 🤨",
	access.NotAuthor:        "Tylko autor sugestii może ją usunąć. 😡",
	access.VotingNotOpen:    "Głosowanie nad tą sugestią jeszcze się nie zaczęło. ⏱️",
	access.VotingClosed:     "Głosowanie nad tą sugestią już się skończyło. ⏱️",
	access.AlreadyVoted:     "Już zagłosowałeś na tę opcję… 🤨",
	access.ReviewClosed:     "Czas na komentowanie tej sugestii już minął. ⏱️",
	access.NoComment:        "Nie masz żadnego komentarza pod tą sugestią… 🤨",
	access.AlreadyDone:      "Ta sugestia została już wykonana… 🤨",
	access.AlreadyAnnulled:  "Ta sugestia została już unieważniona… 🤨",
	access.NotPassed:        "Ta sugestia nie przeszła głosowania… 🤨",
	access.OutcomeDecided:   "Głosowanie nad tą sugestią już się rozstrzygnęło. 🤨",
	access.EmptyText:        "Treść nie może być pusta… 🤨",
	access.TooLong:          "Ta treść jest za długa. 😊",
	access.OnCooldown:       "Poczekaj chwilę, zanim spróbujesz ponownie. ⏱️",
	access.NoWarnings:       "Ten użytkownik jest grzeczny jak aniołek i nie nazbierał jeszcze żadnych warnów! 😇",
	access.AlreadyLinked:    "Te konta są już połączone… 🤨",
	access.NotLinked:        "To konto nie jest połączone z żadnym innym… 🤨",
	access.TooManyProposals: "Regulamin może odwoływać się do co najwyżej 4 sugestii. 😊",
	access.NotEligible:      "Wybrane sugestie muszą być różne i czekać na wykonanie… 🤨",
}

// ErrorText turns an engine error into a reply. ok is false for errors that
// are not denials; callers log those and show a generic message.
func ErrorText(err error) (text string, ok bool) {
	var d *access.DeniedError
	if !errors.As(err, &d) {
		return "Coś poszło nie tak… 😵", false
	}
	if t, found := deniedText[d.Reason]; found {
		return t, true
	}
	return "Nie możesz tego zrobić. 🤨", true
}
