package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/internal/service/presenter"
	"github.com/sandevgo/recomate/internal/service/ui"
	"github.com/spf13/cobra"
)

var (
	askSession string
	askPhrase  bool
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Run one recommendation turn",
	Long: `Runs one turn of a session and prints the recommendations. Reuse
--session to continue a conversation; without it a new session is started.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stderr)
		defer flushLog()

		c, err := newComponents(ctx)
		if err != nil {
			return err
		}
		defer c.close(ctx)

		text := strings.Join(args, " ")
		res, err := c.orch.HandleTurn(ctx, askSession, text)
		if err != nil {
			return err
		}

		// The model phrases the answer only with --phrase.
		var gen core.Generator
		if askPhrase {
			gen = c.generator
		}
		res.Message = presenter.New(c.catalog, gen, c.llm.PhraseTimeout).Present(ctx, text, res)

		out := cmd.OutOrStdout()
		if askJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		fmt.Fprintln(out, ui.DescStyle.Render(fmt.Sprintf("session %s · turn %d", res.SessionID, res.Seq)))
		if res.Status == core.TurnFailed {
			fmt.Fprintln(out, ui.ErrorStyle.Render(res.Message))
			return nil
		}
		fmt.Fprintln(out, res.Message)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id to continue")
	askCmd.Flags().BoolVar(&askPhrase, "phrase", false, "phrase the answer with the generation model")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw turn result as JSON")
	rootCmd.AddCommand(askCmd)
}
