// Package poller drives a download session toward a terminal status by
// querying the backend on a fixed cadence. The next query is only scheduled
// after the previous response has resolved, so at most one query is ever in
// flight and updates are delivered strictly in order.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hferr/grabvid/internal/backend"
	"github.com/hferr/grabvid/internal/model"
)

const (
	DefaultInterval = 2 * time.Second

	// After this many consecutive query failures the poller starts emitting
	// simulated progress instead of going silent.
	defaultSimulateAfter = 3
	// After this many consecutive query failures it gives up entirely.
	defaultMaxFailures = 15

	simulatedStep = 5
	simulatedCap  = 95
)

// ErrBackendUnreachable is delivered in the final update when the query
// failure budget is exhausted.
var ErrBackendUnreachable = errors.New("poller: backend unreachable, giving up")

// StatusClient is the slice of the backend the poller needs.
type StatusClient interface {
	GetStatus(ctx context.Context, sessionID string) (*backend.StatusResponse, error)
}

// Update is one observation delivered to the caller. Either QueryErr is set
// (the poll itself failed; the session is NOT failed) or the status fields
// are.
type Update struct {
	Status       model.Status
	Progress     int
	ErrorMessage string
	Filename     string
	ExpiresAt    time.Time

	// QueryErr reports a transport-level failure to reach the backend.
	QueryErr error
	// Simulated marks locally fabricated progress emitted while the backend
	// is unreachable. Simulated progress never reaches 100 and never carries
	// a terminal status.
	Simulated bool
}

// Poller polls one session. Zero value fields fall back to defaults; set
// Client before Start.
type Poller struct {
	Client   StatusClient
	Interval time.Duration
	Logger   *slog.Logger

	SimulateAfter int
	MaxFailures   int

	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the poll loop. An immediate query is issued, then one per
// interval, each scheduled only after the previous response resolves. onUpdate
// receives every observation in order; onTerminal receives the final one
// (terminal backend status, or a give-up update with QueryErr set). No
// callback fires after Stop returns.
func (p *Poller) Start(ctx context.Context, sessionID string, onUpdate, onTerminal func(Update)) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx, sessionID, onUpdate, onTerminal)
}

// Stop cancels the loop and waits for it to finish, guaranteeing no further
// callbacks. Safe to call more than once.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Poller) loop(ctx context.Context, sessionID string, onUpdate, onTerminal func(Update)) {
	defer close(p.done)

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	simulateAfter := p.SimulateAfter
	if simulateAfter <= 0 {
		simulateAfter = defaultSimulateAfter
	}
	maxFailures := p.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	failures := 0
	simProgress := 0

	for {
		resp, err := p.Client.GetStatus(ctx, sessionID)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			failures++
			log.Warn("status query failed", "session", sessionID, "attempt", failures, "error", err)

			if failures >= maxFailures {
				onTerminal(Update{QueryErr: errors.Join(ErrBackendUnreachable, err)})
				return
			}

			u := Update{QueryErr: err}
			if failures >= simulateAfter {
				// Degraded mode: fabricate bounded progress so the caller can
				// keep a bar moving, but never a completion.
				if simProgress+simulatedStep <= simulatedCap {
					simProgress += simulatedStep
				}
				u.Simulated = true
				u.Status = model.StatusProcessing
				u.Progress = simProgress
				log.Warn("emitting simulated progress", "session", sessionID, "progress", simProgress)
			}
			onUpdate(u)
		} else {
			failures = 0
			u := Update{
				Status:       model.ParseStatus(resp.Status),
				Progress:     resp.Progress,
				ErrorMessage: resp.Error,
				Filename:     resp.Filename,
				ExpiresAt:    resp.ExpiresAtTime(),
			}
			if u.Status == model.StatusExpired && u.ErrorMessage == "" {
				u.ErrorMessage = "Download link expired. Start a new download."
			}
			if u.Progress > simProgress {
				simProgress = u.Progress
			}

			if u.Status.Terminal() {
				onTerminal(u)
				return
			}
			onUpdate(u)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
