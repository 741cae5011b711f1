// Package session owns the download-session lifecycle: create, poll to a
// terminal state, expire, download. It is the only surface the CLI and tests
// talk to; the poller, clock, and downloader hang off it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hferr/grabvid/internal/backend"
	"github.com/hferr/grabvid/internal/expiry"
	"github.com/hferr/grabvid/internal/fetch"
	"github.com/hferr/grabvid/internal/model"
	"github.com/hferr/grabvid/internal/platform"
	"github.com/hferr/grabvid/internal/poller"
)

var (
	// ErrNotCompleted guards download() against sessions that have not
	// reached Completed.
	ErrNotCompleted = errors.New("session: download not available, session not completed")
	// ErrExpired is returned when the artifact's availability window closed.
	ErrExpired = errors.New("session: download link expired")
)

// ValidationError reports an input rejected before any network call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Backend is everything the controller needs from the API client.
type Backend interface {
	CreateDownload(ctx context.Context, videoURL, platform, quality string) (*backend.StatusResponse, error)
	GetStatus(ctx context.Context, sessionID string) (*backend.StatusResponse, error)
	FetchFile(ctx context.Context, sessionID string) (*backend.FileStream, error)
}

// Controller runs one download session at a time. Begin supersedes any
// previous session; callbacks from superseded components are discarded by
// generation checks rather than by trying to stop them synchronously.
type Controller struct {
	backend      Backend
	pollInterval time.Duration
	logger       *slog.Logger

	// OnChange, when set before Begin, observes every session mutation.
	OnChange func(model.Session)

	mu         sync.Mutex
	sess       model.Session
	generation int
	pol        *poller.Poller
	clock      *expiry.Clock
	lastQuery  error
}

func New(b Backend, pollInterval time.Duration, logger *slog.Logger) *Controller {
	if pollInterval <= 0 {
		pollInterval = poller.DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{backend: b, pollInterval: pollInterval, logger: logger}
}

// Begin validates the URL and quality, creates a backend session, and starts
// polling. Validation failures return before any network call. The returned
// snapshot reflects the session right after creation.
func (c *Controller) Begin(ctx context.Context, rawURL, quality string) (model.Session, error) {
	plat, err := platform.Detect(rawURL)
	if err != nil {
		return model.Session{}, &ValidationError{Field: "url", Value: rawURL, Reason: "not a supported video URL"}
	}
	q, err := model.ParseQuality(quality)
	if err != nil {
		return model.Session{}, &ValidationError{Field: "quality", Value: quality, Reason: "must be high, medium, or low"}
	}

	resp, err := c.backend.CreateDownload(ctx, rawURL, string(plat), string(q))
	if err != nil {
		return model.Session{}, err
	}

	c.mu.Lock()
	c.teardownLocked()
	c.generation++
	gen := c.generation

	c.sess = model.Session{
		ID:        resp.SessionID,
		SourceURL: rawURL,
		Platform:  string(plat),
		Quality:   q,
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}
	c.applyLocked(gen, poller.Update{
		Status:       model.ParseStatus(resp.Status),
		Progress:     resp.Progress,
		ErrorMessage: resp.Error,
		Filename:     resp.Filename,
		ExpiresAt:    resp.ExpiresAtTime(),
	})
	snap := c.sess

	if !c.sess.Status.Terminal() {
		p := &poller.Poller{Client: c.backend, Interval: c.pollInterval, Logger: c.logger}
		c.pol = p
		p.Start(ctx, c.sess.ID,
			func(u poller.Update) { c.onPollUpdate(gen, u) },
			func(u poller.Update) { c.onPollUpdate(gen, u) })
	}
	c.mu.Unlock()

	c.notify(snap)
	return snap, nil
}

func (c *Controller) onPollUpdate(gen int, u poller.Update) {
	c.mu.Lock()
	if gen != c.generation {
		// A cancelled or superseded session; its in-flight result is dropped.
		c.logger.Warn("discarding update for torn-down session", "session", c.sess.ID)
		c.mu.Unlock()
		return
	}
	c.applyLocked(gen, u)
	snap := c.sess
	c.mu.Unlock()

	c.notify(snap)
}

// applyLocked folds one poller observation into the session. The poller only
// ever writes while the session is non-terminal; the Completed -> Expired
// transition is the clock's alone.
func (c *Controller) applyLocked(gen int, u poller.Update) {
	if u.QueryErr != nil {
		c.lastQuery = u.QueryErr
		if errors.Is(u.QueryErr, poller.ErrBackendUnreachable) {
			// The poller has exhausted its failure budget and stopped; the
			// session must still reach a terminal state the caller can see.
			if err := c.sess.ApplyStatus(model.StatusFailed); err == nil {
				c.sess.ErrorMessage = "Lost contact with the backend. Try again later."
				c.logger.Error("backend unreachable, failing session",
					"session", c.sess.ID, "error", u.QueryErr)
			}
			return
		}
		if u.Simulated {
			c.sess.ApplyProgress(u.Progress)
		}
		return
	}
	c.lastQuery = nil

	if c.sess.Status.Terminal() {
		return
	}

	if err := c.sess.ApplyStatus(u.Status); err != nil {
		// A backward report from the backend; keep the current state.
		c.logger.Warn("ignoring backend status regression",
			"session", c.sess.ID, "have", c.sess.Status, "got", u.Status)
		return
	}
	c.sess.ApplyProgress(u.Progress)
	if u.ErrorMessage != "" {
		c.sess.ErrorMessage = u.ErrorMessage
	}
	if u.Filename != "" {
		c.sess.Filename = u.Filename
	}
	if !u.ExpiresAt.IsZero() {
		c.sess.SetExpiresAt(u.ExpiresAt)
	}
	if c.sess.Status == model.StatusUnknown && c.sess.ErrorMessage == "" {
		c.sess.ErrorMessage = "The backend reported an unrecognized status."
	}

	if c.sess.Status == model.StatusCompleted && !c.sess.ExpiresAt.IsZero() && c.clock == nil {
		clock := &expiry.Clock{}
		c.clock = clock
		clock.Start(c.sess.ExpiresAt, false, func() { c.onExpired(gen) })
	}
}

func (c *Controller) onExpired(gen int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if err := c.sess.ApplyStatus(model.StatusExpired); err != nil {
		c.mu.Unlock()
		return
	}
	c.sess.ErrorMessage = "Download link expired. Start a new download."
	snap := c.sess
	c.mu.Unlock()

	c.logger.Info("session expired", "session", snap.ID)
	c.notify(snap)
}

// Download streams the artifact for a completed, unexpired session.
func (c *Controller) Download(ctx context.Context, onProgress func(int)) (*fetch.Artifact, error) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	switch sess.Status {
	case model.StatusCompleted:
	case model.StatusExpired:
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w (status %s)", ErrNotCompleted, sess.Status)
	}

	d := &fetch.Downloader{Client: c.backend, Logger: c.logger}
	art, err := d.Fetch(ctx, sess.ID, onProgress)
	if err != nil {
		return nil, err
	}
	if art.Filename == "" {
		art.Filename = sess.Filename
	}
	return art, nil
}

// Countdown reports the remaining artifact availability as a display string
// plus its urgency bucket. ok is false when no deadline applies.
func (c *Controller) Countdown() (formatted string, urgency expiry.Urgency, ok bool) {
	c.mu.Lock()
	clock := c.clock
	c.mu.Unlock()

	if clock == nil {
		return "", expiry.Normal, false
	}
	r := clock.Remaining()
	return expiry.Format(r), expiry.Classify(r), true
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// LastQueryError exposes the most recent poll transport failure, nil when the
// last poll succeeded.
func (c *Controller) LastQueryError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuery
}

// Cancel stops the poller and the clock and invalidates any in-flight
// callbacks. Idempotent and safe to call from teardown at any time.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.generation++
	pol, clock := c.pol, c.clock
	c.pol, c.clock = nil, nil
	c.mu.Unlock()

	// Stop outside the lock: both wait for their goroutine, which may be
	// blocked trying to deliver a (now discarded) callback.
	if pol != nil {
		pol.Stop()
	}
	if clock != nil {
		clock.Stop()
	}
}

func (c *Controller) teardownLocked() {
	if c.pol != nil {
		go c.pol.Stop()
		c.pol = nil
	}
	if c.clock != nil {
		go c.clock.Stop()
		c.clock = nil
	}
}

func (c *Controller) notify(s model.Session) {
	if c.OnChange != nil {
		c.OnChange(s)
	}
}
