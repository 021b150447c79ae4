package core

import (
	"log/slog"
	"reflect"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"

	"github.com/oooz/oooz-bot/src/discord"
)

// Listen adds handlers to the session and returns a function removing all
// of them. A panicking handler is logged instead of taking the process down.
// Without a session it does nothing.
func (rt *Runtime) Listen(handlers ...any) func() {
	if rt.Session == nil {
		return func() {}
	}
	removes := make([]func(), 0, len(handlers))
	for _, h := range handlers {
		removes = append(removes, rt.Session.AddHandler(rt.recovering(h)))
	}
	return func() {
		for _, remove := range removes {
			remove()
		}
	}
}

// recovering wraps an event handler func in a function of the same type
// that recovers panics, so discordgo still matches it by event type.
func (rt *Runtime) recovering(h any) any {
	v := reflect.ValueOf(h)
	if v.Kind() != reflect.Func {
		return h
	}
	return reflect.MakeFunc(v.Type(), func(args []reflect.Value) []reflect.Value {
		defer func() {
			if r := recover(); r != nil {
				rt.Logger.Error("event handler panicked", "handler", v.Type().String(), "panic", r, "stack", string(debug.Stack()))
			}
		}()
		return v.Call(args)
	}).Interface()
}

// Fail answers i with the reply for err. Errors that are not denials are
// logged.
func Fail(r discord.Responder, i *discordgo.Interaction, err error, log *slog.Logger) {
	text, denied := discord.ErrorText(err)
	if !denied {
		log.Error("interaction failed", "interaction", i.ID, "error", err)
	}
	if rerr := discord.ReplyEphemeral(r, i, text); rerr != nil {
		log.Warn("could not report failure", "interaction", i.ID, "error", rerr)
	}
}

// CommandName returns the name of a slash command or context menu, or "" for
// other interactions.
func CommandName(i *discordgo.Interaction) string {
	if i.Type != discordgo.InteractionApplicationCommand {
		return ""
	}
	return i.ApplicationCommandData().Name
}

// ComponentID returns the custom id of a component or modal interaction.
func ComponentID(i *discordgo.Interaction) string {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		return i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		return i.ModalSubmitData().CustomID
	}
	return ""
}

// UserOption returns the user picked in option name, or the target of a user
// context menu.
func UserOption(i *discordgo.Interaction, name string) string {
	data := i.ApplicationCommandData()
	if data.TargetID != "" {
		return data.TargetID
	}
	_, opts := discord.Subcommand(data)
	return opts.ID(name)
}
