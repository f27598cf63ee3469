package telegram

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const baseContextKey = "base_context"

type Presenter interface {
	Present(ctx context.Context, input string, res core.TurnResult) string
}

type Bot struct {
	bot       *tele.Bot
	sender    *sender
	replier   *replier
	allowList []int64
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	turns core.TurnHandler,
	router core.CmdRouter,
	presenter Presenter,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:       b,
		sender:    newSender(b),
		replier:   &replier{turns: turns, router: router, presenter: presenter},
		allowList: cfg.AllowedChats,
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !bot.allowed(c.Chat().ID) {
				return nil
			}
			return next(c)
		}
	})

	b.Handle(tele.OnText, bot.handleMessage)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

func (b *Bot) allowed(chatID int64) bool {
	return len(b.allowList) == 0 || slices.Contains(b.allowList, chatID)
}

func (b *Bot) handleMessage(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	sessionID := SessionID(c.Chat().ID)
	ctx = log.WithComponent(ctx, "telegram")

	_ = c.Notify(tele.Typing)

	reply := b.replier.reply(ctx, sessionID, c.Text())
	return b.sender.sendMarkdown(ctx, c.Chat(), reply)
}

// SessionID maps a chat to its conversation session.
func SessionID(chatID int64) string {
	return fmt.Sprintf("telegram-%d", chatID)
}

type replier struct {
	turns     core.TurnHandler
	router    core.CmdRouter
	presenter Presenter
}

// reply answers one chat message: slash commands go to the router, anything
// else is a recommendation turn.
func (r *replier) reply(ctx context.Context, sessionID, text string) string {
	if r.router != nil {
		if out, handled := r.router.Execute(ctx, sessionID, text); handled {
			return out
		}
	}

	res, err := r.turns.HandleTurn(ctx, sessionID, text)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("turn rejected")
		return core.FailureMessage
	}
	return r.presenter.Present(ctx, text, res)
}
