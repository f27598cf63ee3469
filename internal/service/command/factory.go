package command

import (
	"github.com/sandevgo/recomate/internal/core"
)

func NewCommands(sessions SessionReader) []core.Command {
	return []core.Command{
		NewProfileCommand(sessions),
		NewHistoryCommand(sessions),
	}
}

// NewRouter registers the session commands plus /help describing them.
func NewRouter(sessions SessionReader) *Router {
	r := New(NewCommands(sessions))
	help := NewHelpCommand(r)
	r.commands[help.Name()] = help
	return r
}
