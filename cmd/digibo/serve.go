package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/digibo/backoffice/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authentication backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		srv, err := server.New(cfg, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}
