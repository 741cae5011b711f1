// Package main implements the grabvid CLI.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hferr/grabvid/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "grabvid",
	Short: "Download TikTok, Instagram, and Sora videos through the grabvid backend",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cfg.LogLevel)
	},
}

func main() {
	cfg = config.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(levelName string) {
	level := slog.LevelInfo
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
