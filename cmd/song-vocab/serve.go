package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/song-vocab/pkg/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.NewServer(s)

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return srv.ListenAndServe(ctx)
			})
			eg.Go(func() error {
				<-ctx.Done()
				log.Info().Msg("received shutdown signal")
				return nil
			})

			if err := eg.Wait(); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}
