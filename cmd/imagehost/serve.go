package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/itchan-dev/imagehost/internal/config"
	"github.com/itchan-dev/imagehost/internal/logger"
	"github.com/itchan-dev/imagehost/internal/router"
	"github.com/itchan-dev/imagehost/internal/setup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFolder, _ := cmd.Flags().GetString("config_folder")
		cfg, err := config.Load(configFolder)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Public.HTTP.Addr, _ = cmd.Flags().GetString("addr")
		}
		logger.Initialize(cfg.Public.Log.Level, cfg.Public.Log.JSON)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on, overrides http.addr")
}

// serve runs the server until ctx is cancelled, then drains in-flight
// requests within the shutdown timeout.
func serve(ctx context.Context, cfg *config.Config) error {
	deps, err := setup.SetupDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer deps.Close()

	httpCfg := cfg.Public.HTTP
	srv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", httpCfg.Addr, "driver", cfg.Public.Storage.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", httpCfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
