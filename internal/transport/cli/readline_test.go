package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/stretchr/testify/assert"
)

type mockTurns struct {
	handleTurnFunc func(ctx context.Context, sessionID, text string) (core.TurnResult, error)
}

func (m *mockTurns) HandleTurn(ctx context.Context, sessionID, text string) (core.TurnResult, error) {
	return m.handleTurnFunc(ctx, sessionID, text)
}

type mockRouter struct{}

func (mockRouter) Execute(ctx context.Context, sessionID, input string) (string, bool) {
	if input == "/help" {
		return "commands", true
	}
	return "", false
}

func (mockRouter) ListCommands() []core.Command { return nil }

type countPresenter struct{}

func (countPresenter) Present(ctx context.Context, input string, res core.TurnResult) string {
	return res.SessionID + ":" + input
}

func TestReadLine_Answer(t *testing.T) {
	turns := &mockTurns{handleTurnFunc: func(ctx context.Context, sessionID, text string) (core.TurnResult, error) {
		if text == "nope" {
			return core.TurnResult{}, errors.New("session id too long")
		}
		return core.TurnResult{SessionID: sessionID, Status: core.TurnResponded}, nil
	}}
	r := &ReadLine{turns: turns, router: mockRouter{}, presenter: countPresenter{}, sessionID: "cli-local"}

	assert.Equal(t, "commands", r.answer(context.Background(), "/help"))
	assert.Equal(t, "cli-local:laptops", r.answer(context.Background(), "laptops"))
	assert.Equal(t, "Error: session id too long", r.answer(context.Background(), "nope"))
}
