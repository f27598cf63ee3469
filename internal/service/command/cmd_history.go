package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/recomate/internal/core"
)

const (
	defaultHistoryTurns = 5
	maxHistoryTurns     = 20
)

type HistoryCommand struct {
	sessions SessionReader
	fmt      *ResponseFormatter
}

func NewHistoryCommand(sessions SessionReader) *HistoryCommand {
	return &HistoryCommand{
		sessions: sessions,
		fmt:      NewResponseFormatter(),
	}
}

func (c *HistoryCommand) Name() string { return "history" }

func (c *HistoryCommand) Description() string {
	return "Show the last turns of this conversation"
}

func (c *HistoryCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	n, err := countArg(args, defaultHistoryTurns)
	if err != nil {
		return c.fmt.Usage("/history [count]"), nil
	}
	n = min(n, maxHistoryTurns)

	sess, err := c.sessions.Get(ctx, sessionID)
	if errors.Is(err, core.ErrSessionNotFound) || (err == nil && len(sess.Turns) == 0) {
		return c.fmt.Heading("No turns yet"), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	turns := sess.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	items := make([]string, 0, len(turns))
	for _, t := range turns {
		items = append(items, c.fmt.Turn(t))
	}
	return c.fmt.Combine(c.fmt.Heading(fmt.Sprintf("Last %d of %d turns", len(turns), len(sess.Turns))), c.fmt.List(items)), nil
}
