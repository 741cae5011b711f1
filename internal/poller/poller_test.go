package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hferr/grabvid/internal/backend"
	"github.com/hferr/grabvid/internal/model"
	"github.com/hferr/grabvid/internal/poller"
)

// scriptClient returns a fixed sequence of responses, then keeps repeating
// the last one.
type scriptClient struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	resp *backend.StatusResponse
	err  error
}

func (c *scriptClient) GetStatus(ctx context.Context, sessionID string) (*backend.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.steps) {
		i = len(c.steps) - 1
	}
	return c.steps[i].resp, c.steps[i].err
}

func (c *scriptClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func resp(status string, progress int) step {
	return step{resp: &backend.StatusResponse{SessionID: "s1", Status: status, Progress: progress}}
}

func collect(t *testing.T, p *poller.Poller, timeout time.Duration) ([]poller.Update, poller.Update) {
	t.Helper()
	var (
		mu      sync.Mutex
		updates []poller.Update
		final   poller.Update
	)
	done := make(chan struct{})
	p.Start(context.Background(), "s1",
		func(u poller.Update) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		},
		func(u poller.Update) {
			final = u
			close(done)
		})
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("poller did not reach a terminal update in time")
	}
	p.Stop()
	return updates, final
}

func TestDrivesSessionToCompleted(t *testing.T) {
	client := &scriptClient{steps: []step{
		resp("pending", 0),
		resp("processing", 40),
		resp("processing", 80),
		resp("completed", 100),
	}}
	p := &poller.Poller{Client: client, Interval: 5 * time.Millisecond}

	updates, final := collect(t, p, 2*time.Second)

	wantStatuses := []model.Status{model.StatusPending, model.StatusProcessing, model.StatusProcessing}
	wantProgress := []int{0, 40, 80}
	if len(updates) != len(wantStatuses) {
		t.Fatalf("got %d non-terminal updates, want %d", len(updates), len(wantStatuses))
	}
	for i := range updates {
		if updates[i].Status != wantStatuses[i] {
			t.Errorf("update %d status = %s, want %s", i, updates[i].Status, wantStatuses[i])
		}
		if updates[i].Progress != wantProgress[i] {
			t.Errorf("update %d progress = %d, want %d", i, updates[i].Progress, wantProgress[i])
		}
	}
	if final.Status != model.StatusCompleted || final.Progress != 100 {
		t.Errorf("final = %+v, want completed/100", final)
	}

	// No further queries after the terminal response.
	n := client.callCount()
	if n != 4 {
		t.Errorf("query count = %d, want 4", n)
	}
	time.Sleep(30 * time.Millisecond)
	if client.callCount() != n {
		t.Error("poller kept querying after terminal status")
	}
}

// blockingClient parks every call until released and counts how many are in
// flight at once.
type blockingClient struct {
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (c *blockingClient) GetStatus(ctx context.Context, sessionID string) (*backend.StatusResponse, error) {
	n := c.inFlight.Add(1)
	if m := c.maxSeen.Load(); n > m {
		c.maxSeen.Store(n)
	}
	defer c.inFlight.Add(-1)
	c.calls.Add(1)

	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &backend.StatusResponse{SessionID: "s1", Status: "completed", Progress: 100}, nil
}

func TestNoOverlappingQueries(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	p := &poller.Poller{Client: client, Interval: time.Millisecond}

	done := make(chan struct{})
	p.Start(context.Background(), "s1",
		func(poller.Update) {},
		func(poller.Update) { close(done) })

	// The interval elapses many times over while the first query hangs; the
	// poller must not stack a second request.
	time.Sleep(50 * time.Millisecond)
	if n := client.calls.Load(); n != 1 {
		t.Fatalf("issued %d queries while the first was pending, want 1", n)
	}

	close(client.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("terminal update never arrived")
	}
	p.Stop()

	if m := client.maxSeen.Load(); m != 1 {
		t.Errorf("max concurrent queries = %d, want 1", m)
	}
}

func TestQueryErrorsSurfaceThenSimulate(t *testing.T) {
	boom := errors.New("connection refused")
	client := &scriptClient{steps: []step{{err: boom}}}
	p := &poller.Poller{
		Client:        client,
		Interval:      time.Millisecond,
		SimulateAfter: 3,
		MaxFailures:   8,
	}

	updates, final := collect(t, p, 2*time.Second)

	if len(updates) != 7 {
		t.Fatalf("got %d updates before give-up, want 7", len(updates))
	}
	for i, u := range updates {
		if u.QueryErr == nil {
			t.Errorf("update %d missing QueryErr", i)
		}
		if i < 2 && u.Simulated {
			t.Errorf("update %d simulated too early", i)
		}
		if i >= 2 && !u.Simulated {
			t.Errorf("update %d not simulated, want degraded mode after threshold", i)
		}
		if u.Simulated {
			if u.Progress >= 100 {
				t.Errorf("simulated progress %d reached 100", u.Progress)
			}
			if u.Status == model.StatusCompleted {
				t.Error("simulated update fabricated a completed status")
			}
		}
	}
	if !errors.Is(final.QueryErr, poller.ErrBackendUnreachable) {
		t.Errorf("final.QueryErr = %v, want ErrBackendUnreachable", final.QueryErr)
	}
}

func TestSimulatedProgressMonotonicAndBounded(t *testing.T) {
	client := &scriptClient{steps: []step{{err: errors.New("down")}}}
	p := &poller.Poller{
		Client:        client,
		Interval:      time.Millisecond,
		SimulateAfter: 1,
		MaxFailures:   40,
	}

	updates, _ := collect(t, p, 5*time.Second)

	last := -1
	for _, u := range updates {
		if !u.Simulated {
			continue
		}
		if u.Progress < last {
			t.Fatalf("simulated progress regressed: %d after %d", u.Progress, last)
		}
		if u.Progress > 95 {
			t.Fatalf("simulated progress %d exceeded cap", u.Progress)
		}
		last = u.Progress
	}
	if last != 95 {
		t.Errorf("simulated progress plateaued at %d, want cap 95", last)
	}
}

func TestStopHaltsCallbacks(t *testing.T) {
	client := &scriptClient{steps: []step{resp("processing", 10)}}
	p := &poller.Poller{Client: client, Interval: time.Millisecond}

	var count atomic.Int32
	p.Start(context.Background(), "s1",
		func(poller.Update) { count.Add(1) },
		func(poller.Update) {})

	time.Sleep(10 * time.Millisecond)
	p.Stop()
	after := count.Load()

	time.Sleep(20 * time.Millisecond)
	if count.Load() != after {
		t.Error("callbacks fired after Stop returned")
	}
}

func TestExpiredReportCarriesFixedMessage(t *testing.T) {
	client := &scriptClient{steps: []step{resp("expired", 0)}}
	p := &poller.Poller{Client: client, Interval: time.Millisecond}

	_, final := collect(t, p, time.Second)
	if final.Status != model.StatusExpired {
		t.Fatalf("final status = %s, want expired", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Error("expired update missing user-facing message")
	}
}

func TestUnknownStatusIsTerminal(t *testing.T) {
	client := &scriptClient{steps: []step{resp("exploded", 50)}}
	p := &poller.Poller{Client: client, Interval: time.Millisecond}

	_, final := collect(t, p, time.Second)
	if final.Status != model.StatusUnknown {
		t.Fatalf("final status = %s, want unknown", final.Status)
	}
	if n := client.callCount(); n != 1 {
		t.Errorf("query count = %d after unknown status, want 1", n)
	}
}
