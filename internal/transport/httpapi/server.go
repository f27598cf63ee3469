package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/metrics"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	shutdownTimeout  = 5 * time.Second
)

var validate = validator.New()

type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*core.Session, error)
	List(ctx context.Context, limit int) ([]core.SessionSummary, error)
}

type Presenter interface {
	Present(ctx context.Context, input string, res core.TurnResult) string
}

type Server struct {
	app       *fiber.App
	cfg       *config.HTTPConfig
	turns     core.TurnHandler
	sessions  SessionReader
	presenter Presenter
}

// New builds the HTTP API. Request handlers run with baseCtx as their
// context so they log through the process logger.
func New(baseCtx context.Context, cfg *config.HTTPConfig, turns core.TurnHandler, sessions SessionReader, presenter Presenter) *Server {
	app := fiber.New(fiber.Config{
		AppName:               core.AppName,
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:       app,
		cfg:       cfg,
		turns:     turns,
		sessions:  sessions,
		presenter: presenter,
	}

	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(baseCtx)
		return c.Next()
	})

	app.Get("/healthz", s.health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")
	v1.Post("/turns", s.createTurn)
	v1.Get("/sessions", s.listSessions)
	v1.Get("/sessions/:id", s.getSession)

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", s.cfg.Addr).Msg("starting http server")
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

func (s *Server) createTurn(c *fiber.Ctx) error {
	var req turnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	ctx := c.UserContext()
	res, err := s.turns.HandleTurn(ctx, req.SessionID, req.Text)
	if err != nil {
		return err
	}
	if s.presenter != nil {
		res.Message = s.presenter.Present(ctx, req.Text, res)
	}
	return c.JSON(newTurnResponse(res))
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
	}

	sessions, err := s.sessions.List(c.UserContext(), limit)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []core.SessionSummary{}
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (s *Server) getSession(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"

	var fe *fiber.Error
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &fe):
		code, msg = fe.Code, fe.Message
	case errors.As(err, &ve):
		code, msg = fiber.StatusBadRequest, ve.Error()
	case errors.Is(err, core.ErrInvalidInput):
		code, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrSessionNotFound):
		code, msg = fiber.StatusNotFound, "session not found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code, msg = fiber.StatusServiceUnavailable, "request cancelled"
	}

	if code >= fiber.StatusInternalServerError {
		log.FromCtx(c.UserContext()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
