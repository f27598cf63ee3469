package command

import (
	"context"
	"fmt"
)

type HelpCommand struct {
	router *Router
	fmt    *ResponseFormatter
}

func NewHelpCommand(router *Router) *HelpCommand {
	return &HelpCommand{
		router: router,
		fmt:    NewResponseFormatter(),
	}
}

func (c *HelpCommand) Name() string { return "help" }

func (c *HelpCommand) Description() string {
	return "List available commands"
}

func (c *HelpCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	items := make([]string, 0)
	for _, cmd := range c.router.ListCommands() {
		items = append(items, fmt.Sprintf("/%s - %s", cmd.Name(), cmd.Description()))
	}
	return c.fmt.Combine(
		c.fmt.Heading("Commands"),
		c.fmt.List(items),
		c.fmt.Hint("anything else you type is a shopping question, e.g. `phones with 8gb ram under $500`"),
	), nil
}
