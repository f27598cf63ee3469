package main

import (
	"os"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/service/installer"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:           "init",
	Short:         "Create the runtime directory and its .env interactively",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Setup logger
		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stderr)
		defer flushLog()

		logger := log.FromCtx(ctx)
		runtimePath := config.GetRuntimePath()

		if _, err := installer.RunWizard(runtimePath); err != nil {
			return err
		}

		logger.Info().Msgf("initialized runtime directory at: %s", runtimePath)
		logger.Info().Msg("Setup complete! Load a catalog with 'recomate ingest' and run 'recomate serve'.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
