package main

import (
	"os"
	"os/signal"

	"github.com/sandevgo/recomate/internal/transport/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve recommendation tools over MCP stdio",
	Long: `Runs an MCP server on stdin/stdout exposing the recommend and
session_profile tools. Logs go to stderr.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// stdout carries the protocol
		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stderr)
		defer flushLog()

		c, err := newComponents(ctx)
		if err != nil {
			return err
		}
		defer c.close(ctx)

		go func() {
			_ = c.orch.Start(ctx)
		}()
		defer c.orch.Shutdown(ctx)

		return mcpserver.New(c.orch, c.memory, c.presenter, os.Stdin, os.Stdout).Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
