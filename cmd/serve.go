package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/katelyatv/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if port := int(cmd.Int("port")); port > 0 {
		r.config.Server.Port = port
	}

	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	if err := store.Ping(ctx); err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Config:   r.config,
		Storage:  store,
		Logger:   r.logger,
		Registry: r.registry,
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	r.logger.Info("starting server", "addr", srv.Addr(), "storage", r.config.Storage.Type, "owner", r.config.Auth.OwnerName)
	if r.config.Auth.OwnerPassword == "" {
		r.logger.Warn("PASSWORD not set, the owner account cannot log in")
	}
	return srv.ListenAndServe(ctx)
}
