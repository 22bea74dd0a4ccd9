package main

import (
	"os"
	"os/signal"

	"story-weaver/internal/cli"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play an interactive story in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := newController()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return cli.NewSession(ctrl, cli.NewPrompter(), os.Stdout, cfg.ImageMaxBytes, log).Run(ctx)
	},
}
