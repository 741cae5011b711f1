// Package fetch streams a completed session's artifact and reports fractional
// progress. Progress is real when the backend declares a Content-Length and
// simulated in fixed steps when it does not; either way the callback sees
// exactly one 100, after the stream has fully drained.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hferr/grabvid/internal/backend"
)

const (
	DefaultContentType = "video/mp4"

	chunkSize = 32 << 10

	// Simulated progress advances +10 every interval, capped below 100 until
	// the stream actually finishes.
	simStep     = 10
	simCap      = 90
	simInterval = 500 * time.Millisecond
)

// ErrStreamUnavailable reports a response whose body was missing or unreadable.
var ErrStreamUnavailable = errors.New("fetch: stream unavailable")

// FileClient is the slice of the backend the downloader needs.
type FileClient interface {
	FetchFile(ctx context.Context, sessionID string) (*backend.FileStream, error)
}

// Artifact is the fully buffered download, ready to hand to a save path.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
}

type Downloader struct {
	Client FileClient
	Logger *slog.Logger

	// SimInterval overrides the simulated progress cadence, for tests.
	SimInterval time.Duration
}

// Fetch downloads the artifact for a session. onProgress, when non-nil, is
// invoked with values in [0,100]; the final call is always exactly 100 and no
// earlier call ever reports 100.
func (d *Downloader) Fetch(ctx context.Context, sessionID string, onProgress func(int)) (*Artifact, error) {
	fs, err := d.Client.FetchFile(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fs.Body == nil {
		return nil, ErrStreamUnavailable
	}
	defer fs.Body.Close()

	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	hasLength := fs.ContentLength > 0

	// Without a declared length the only progress signal is fabricated: a
	// ticker walks 10..90 while the read loop runs.
	var stopSim chan struct{}
	var simDone chan struct{}
	if !hasLength && onProgress != nil {
		log.Debug("no content length, simulating download progress", "session", sessionID)
		stopSim = make(chan struct{})
		simDone = make(chan struct{})
		go simulate(onProgress, d.simInterval(), stopSim, simDone)
	}

	var buf bytes.Buffer
	if hasLength {
		buf.Grow(int(fs.ContentLength))
	}

	chunk := make([]byte, chunkSize)
	var received int64
	for {
		if err := ctx.Err(); err != nil {
			stopSimulation(stopSim, simDone)
			return nil, fmt.Errorf("fetch %s: %w", sessionID, err)
		}

		n, readErr := fs.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			received += int64(n)
			if hasLength && onProgress != nil {
				p := int(received * 100 / fs.ContentLength)
				// The single 100 is reserved for the end of the stream.
				if p > 99 {
					p = 99
				}
				onProgress(p)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			stopSimulation(stopSim, simDone)
			return nil, fmt.Errorf("%w: %v", ErrStreamUnavailable, readErr)
		}
	}

	// Shut the simulator down before the final report so 100 is emitted once,
	// last.
	stopSimulation(stopSim, simDone)
	if onProgress != nil {
		onProgress(100)
	}

	contentType := fs.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	log.Debug("download complete", "session", sessionID, "bytes", received)
	return &Artifact{
		Data:        buf.Bytes(),
		ContentType: contentType,
		Filename:    fs.Filename,
	}, nil
}

func (d *Downloader) simInterval() time.Duration {
	if d.SimInterval > 0 {
		return d.SimInterval
	}
	return simInterval
}

func simulate(onProgress func(int), interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	progress := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if progress+simStep > simCap {
				return
			}
			progress += simStep
			onProgress(progress)
		}
	}
}

func stopSimulation(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
