package cmd

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
	"github.com/spf13/viper"

	"github.com/cityfix/cityfix/internal/api"
	uipkg "github.com/cityfix/cityfix/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the map UI and REST API server",
	Long: `Start an HTTP server with the embedded Leaflet map UI and the
REST API it talks to. By default it listens on port 8080; use --port
to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
}

func serveRun() error {
	a, err := getApp()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	uiHandler, err := uipkg.Handler()
	if err != nil {
		return fmt.Errorf("initialize UI handler: %w", err)
	}

	apiServer := api.NewServer(a.store, a.engine, a.workflow, a.client)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Router())
	mux.Handle("/", uiHandler)

	port := viper.GetInt("serve.port")
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
