package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"satnorm/internal/config"
	"satnorm/internal/server"
	"satnorm/pkg/logger"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload/download service",
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(v, cmd.Flags(), map[string]string{
				"host":  "SERVER_HOST",
				"port":  "SERVER_PORT",
				"store": "APP_STORE",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}
	cmd.Flags().String("host", "", "listen host")
	cmd.Flags().String("port", "", "listen port")
	cmd.Flags().String("store", "", `results store: "local" or "s3"`)
	return cmd
}

func runServe(v *viper.Viper) error {
	log, err := logger.NewSugared(v.GetString("LOG_LEVEL"))
	if err != nil {
		os.Stderr.WriteString("CRITICAL: Failed to initialize logger: " + err.Error() + "\n")
		return err
	}
	defer log.Sync()

	cfg, err := config.LoadFrom(v)
	if err != nil {
		log.Error("Failed to load config: ", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, log.Desugar())
	if err != nil {
		log.Error("Failed to create server: ", err)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed: ", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	log.Info("Server exited")
	return nil
}
