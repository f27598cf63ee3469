package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

const defaultProfileTags = 10

type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*core.Session, error)
}

type ProfileCommand struct {
	sessions SessionReader
	fmt      *ResponseFormatter
}

func NewProfileCommand(sessions SessionReader) *ProfileCommand {
	return &ProfileCommand{
		sessions: sessions,
		fmt:      NewResponseFormatter(),
	}
}

func (c *ProfileCommand) Name() string { return "profile" }

func (c *ProfileCommand) Description() string {
	return "Show the preferences learned in this conversation"
}

func (c *ProfileCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	n, err := countArg(args, defaultProfileTags)
	if err != nil {
		return c.fmt.Usage("/profile [count]"), nil
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if errors.Is(err, core.ErrSessionNotFound) || (err == nil && len(sess.Profile) == 0) {
		return c.fmt.Combine(
			c.fmt.Heading("No preferences yet"),
			c.fmt.Hint("tell me what you are shopping for, e.g. `lightweight running shoes under $100`"),
		), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	var sb strings.Builder
	for _, wt := range sess.Profile.Top(n) {
		sb.WriteString(c.fmt.Preference(wt))
	}
	return c.fmt.Combine(c.fmt.Heading("Your preferences"), sb.String()), nil
}

func countArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}
	return n, nil
}
