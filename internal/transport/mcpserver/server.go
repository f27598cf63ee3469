package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
)

const defaultProfileSize = 10

const recommendSchema = `
{
  "type": "object",
  "properties": {
    "text": { "type": "string", "description": "What the shopper is looking for" },
    "session_id": { "type": "string", "description": "Conversation to continue; a new one is started when empty" }
  },
  "required": ["text"]
}
`

const sessionProfileSchema = `
{
  "type": "object",
  "properties": {
    "session_id": { "type": "string", "description": "Conversation to inspect" },
    "limit": { "type": "integer", "description": "Number of preferences to return (default 10)" }
  },
  "required": ["session_id"]
}
`

type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

type ToolDefinition struct {
	Description string
	Schema      string
	Handler     ToolHandler
}

type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*core.Session, error)
}

type Presenter interface {
	Present(ctx context.Context, input string, res core.TurnResult) string
}

// Server exposes recommendation turns as MCP tools over stdio.
type Server struct {
	mcp       *server.MCPServer
	turns     core.TurnHandler
	sessions  SessionReader
	presenter Presenter
	in        io.Reader
	out       io.Writer
}

func New(turns core.TurnHandler, sessions SessionReader, presenter Presenter, in io.Reader, out io.Writer) *Server {
	s := &Server{
		mcp:       server.NewMCPServer(core.AppName, core.AppVersion, server.WithToolCapabilities(false)),
		turns:     turns,
		sessions:  sessions,
		presenter: presenter,
		in:        in,
		out:       out,
	}
	for name, def := range s.GetDefinitions() {
		s.mcp.AddTool(mcp.NewToolWithRawSchema(name, def.Description, json.RawMessage(def.Schema)), toolHandler(def.Handler))
	}
	return s
}

func (s *Server) GetDefinitions() map[string]ToolDefinition {
	return map[string]ToolDefinition{
		"recommend": {
			Description: "Recommend products for a shopping request. Continues the given session so follow-ups like 'cheaper' work.",
			Schema:      recommendSchema,
			Handler:     s.Recommend,
		},
		"session_profile": {
			Description: "Show the preferences learned for a session, strongest first.",
			Schema:      sessionProfileSchema,
			Handler:     s.SessionProfile,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("serving mcp over stdio")
	err := server.NewStdioServer(s.mcp).Listen(ctx, s.in, s.out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server stopped: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return nil
}

type recommendResult struct {
	core.TurnResult
	Products []string `json:"products"`
}

func (s *Server) Recommend(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(input.Text) == "" {
		return "", fmt.Errorf("text is required")
	}

	res, err := s.turns.HandleTurn(ctx, input.SessionID, input.Text)
	if err != nil {
		return "", err
	}
	if s.presenter != nil {
		res.Message = s.presenter.Present(ctx, input.Text, res)
	}

	out, err := json.Marshal(recommendResult{TurnResult: res, Products: res.Recommendations.ProductIDs()})
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(out), nil
}

func (s *Server) SessionProfile(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		SessionID string `json:"session_id"`
		Limit     int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if input.SessionID == "" {
		return "", fmt.Errorf("session_id is required")
	}
	if input.Limit <= 0 {
		input.Limit = defaultProfileSize
	}

	sess, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	out, err := json.Marshal(struct {
		SessionID   string             `json:"session_id"`
		Version     int64              `json:"version"`
		Turns       int                `json:"turns"`
		Preferences []core.WeightedTag `json:"preferences"`
	}{
		SessionID:   sess.ID,
		Version:     sess.Version,
		Turns:       len(sess.Turns),
		Preferences: sess.Profile.Top(input.Limit),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}
	return string(out), nil
}

func toolHandler(h ToolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		out, err := h(ctx, args)
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("tool", req.Params.Name).Msg("tool call failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
