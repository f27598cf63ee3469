package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
)

type Presenter interface {
	Present(ctx context.Context, input string, res core.TurnResult) string
}

// ReadLine is an interactive shopping chat in the terminal. Every line is a
// turn of one session; slash commands go to the command router.
type ReadLine struct {
	turns     core.TurnHandler
	router    core.CmdRouter
	presenter Presenter
	sessionID string
	rl        *readline.Instance
}

func NewReadLine(cfg *config.AppConfig, sessionID string, turns core.TurnHandler, router core.CmdRouter, presenter Presenter) (*ReadLine, error) {
	// Ensure runtime directory exists
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     filepath.Join(cfg.RuntimePath, "input_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		turns:     turns,
		router:    router,
		presenter: presenter,
		sessionID: sessionID,
		rl:        rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Str("session_id", r.sessionID).Msg("chat started. Type 'exit' to quit.")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		fmt.Fprintf(r.rl.Stdout(), "%s\n\n", r.answer(ctx, line))
	}
}

func (r *ReadLine) answer(ctx context.Context, line string) string {
	if out, handled := r.router.Execute(ctx, r.sessionID, line); handled {
		return out
	}

	res, err := r.turns.HandleTurn(ctx, r.sessionID, line)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("turn rejected")
		return fmt.Sprintf("Error: %v", err)
	}
	return r.presenter.Present(ctx, line, res)
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
