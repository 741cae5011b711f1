package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hferr/grabvid/internal/backend"
	"github.com/hferr/grabvid/internal/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download API proxy",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := proxy.NewRateLimiter(rate.Limit(cfg.RatePerMin/60.0), cfg.RateBurst)
	defer limiter.Stop()

	s := &proxy.Server{
		Backend: backend.New(cfg.APIBaseURL, cfg.APIKey),
		Limiter: limiter,
		Logger:  slog.Default(),
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.Routes(),
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down proxy")
		srv.Shutdown(context.Background())
	}()

	slog.Info("proxy starting", "addr", cfg.ListenAddr, "backend", cfg.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
