package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/sandevgo/recomate/internal/transport/cli"
	"github.com/spf13/cobra"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:          "chat",
	Short:        "Interactive recommendation chat in the terminal",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stderr)
		defer flushLog()

		c, err := newComponents(ctx)
		if err != nil {
			return err
		}
		defer c.close(ctx)

		if chatSession == "" {
			chatSession = "cli-" + uuid.NewString()
		}
		rl, err := cli.NewReadLine(c.app, chatSession, c.orch, c.router, c.presenter)
		if err != nil {
			return fmt.Errorf("failed to start chat: %w", err)
		}
		defer rl.Shutdown(ctx)

		return rl.Start(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id to continue")
	rootCmd.AddCommand(chatCmd)
}
