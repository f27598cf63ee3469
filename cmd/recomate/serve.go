package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/transport/httpapi"
	"github.com/sandevgo/recomate/internal/transport/telegram"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/srv"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the Telegram bot",
	Long:  `Initializes storage, agents and the configured transports and runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stdout)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting recomate")

		c, err := newComponents(ctx)
		if err != nil {
			return err
		}

		services := []srv.Service{c.orch}
		if c.app.EnableHTTP {
			services = append(services, httpapi.New(ctx, config.NewHTTPConfig(ctx), c.orch, c.memory, c.presenter))
		}
		if c.app.EnableTelegram {
			bot, err := telegram.NewBot(log.WithComponent(ctx, "telegram"), config.NewTelegramConfig(ctx), c.orch, c.router, c.presenter)
			if err != nil {
				return err
			}
			services = append(services, bot)
		}
		services = append(services, c.cleanups...)

		// Start services
		srv.StartServices(ctx, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("recomate has been shut down gracefully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
