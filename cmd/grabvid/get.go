package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hferr/grabvid/internal/backend"
	"github.com/hferr/grabvid/internal/expiry"
	"github.com/hferr/grabvid/internal/history"
	"github.com/hferr/grabvid/internal/model"
	"github.com/hferr/grabvid/internal/session"
)

var (
	getQuality string
	getOutDir  string
	getNoSave  bool
)

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Download a video: create a session, wait for it, save the file",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getQuality, "quality", "q", "high", "Video quality: high, medium, or low")
	getCmd.Flags().StringVarP(&getOutDir, "out", "o", ".", "Directory to save the video into")
	getCmd.Flags().BoolVar(&getNoSave, "no-history", false, "Do not record this download in the history")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := backend.New(cfg.APIBaseURL, cfg.APIKey)
	ctrl := session.New(client, cfg.PollInterval, slog.Default())
	defer ctrl.Cancel()

	updates := make(chan model.Session, 64)
	ctrl.OnChange = func(s model.Session) {
		select {
		case updates <- s:
		default:
		}
	}

	sess, err := ctrl.Begin(ctx, args[0], getQuality)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s created (%s, %s)\n", sess.ID, sess.Platform, sess.Quality)

	final, err := waitForTerminal(ctx, ctrl, updates, cmd)
	if err != nil {
		return err
	}

	switch final.Status {
	case model.StatusCompleted:
	case model.StatusFailed:
		return fmt.Errorf("download failed: %s", final.ErrorMessage)
	case model.StatusExpired:
		return fmt.Errorf("session expired: %s", final.ErrorMessage)
	default:
		return fmt.Errorf("session ended in unexpected state %s: %s", final.Status, final.ErrorMessage)
	}

	if formatted, urgency, ok := ctrl.Countdown(); ok {
		note := ""
		if urgency != expiry.Normal {
			note = " -- hurry"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "file ready, link valid for %s%s\n", formatted, note)
	}

	art, err := ctrl.Download(ctx, func(p int) {
		fmt.Fprintf(cmd.OutOrStdout(), "\rdownloading %3d%%", p)
	})
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	path := filepath.Join(getOutDir, saveName(final, art.Filename))
	if err := os.WriteFile(path, art.Data, 0644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", path, len(art.Data))

	if !getNoSave {
		recordHistory(final, art.Filename, int64(len(art.Data)))
	}
	return nil
}

func waitForTerminal(ctx context.Context, ctrl *session.Controller, updates <-chan model.Session, cmd *cobra.Command) (model.Session, error) {
	// OnChange drops updates under backpressure, so a terminal update can be
	// missed on the channel; the ticker re-checks the snapshot directly.
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			ctrl.Cancel()
			return model.Session{}, ctx.Err()
		case <-tick.C:
			if s := ctrl.Snapshot(); s.Status.Terminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "\r%-10s %s\n", s.Status, s.DisplayProgress())
				return s, nil
			}
		case s := <-updates:
			fmt.Fprintf(cmd.OutOrStdout(), "\r%-10s %s", s.Status, s.DisplayProgress())
			if qerr := ctrl.LastQueryError(); qerr != nil {
				slog.Debug("poll degraded", "error", qerr)
			}
			if s.Status.Terminal() {
				fmt.Fprintln(cmd.OutOrStdout())
				return s, nil
			}
		}
	}
}

// saveName prefers the backend's filename, falls back to one derived from the
// session, and strips path separators either way.
func saveName(s model.Session, artifactName string) string {
	name := artifactName
	if name == "" {
		name = s.Filename
	}
	if name == "" {
		name = fmt.Sprintf("%s-%s.mp4", s.Platform, s.ID)
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = fmt.Sprintf("grabvid-%d.mp4", time.Now().Unix())
	}
	return name
}

func recordHistory(s model.Session, filename string, size int64) {
	store, err := history.Open(cfg.DataDir)
	if err != nil {
		slog.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	if filename == "" {
		filename = s.Filename
	}
	err = store.Add(&history.Entry{
		SourceURL:     s.SourceURL,
		Platform:      s.Platform,
		Quality:       string(s.Quality),
		Filename:      filename,
		FileSizeBytes: size,
		Status:        string(s.Status),
	})
	if err != nil {
		slog.Warn("record history", "error", err)
		return
	}
	if _, err := store.Prune(cfg.HistoryKeep); err != nil {
		slog.Warn("prune history", "error", err)
	}
}
