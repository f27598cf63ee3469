package main

import (
	"fmt"
	"os"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/pkg/env"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:          "config",
	Short:        "Print the effective configuration as .env lines",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stderr)
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}

		configs := []any{
			config.NewAppConfig(ctx),
			config.NewTurnConfig(ctx),
			config.NewFusionConfig(ctx),
			config.NewLLMConfig(ctx),
			config.NewEmbeddingConfig(ctx),
			config.NewHTTPConfig(ctx),
			config.NewTracingConfig(ctx),
			config.NewRedisConfig(ctx),
			config.NewPostgresConfig(ctx),
		}
		out, err := env.MarshalEnv(configs...)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
