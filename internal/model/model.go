package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a download session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"

	// StatusUnknown is assigned when the backend reports a value outside the
	// known set. It is treated as terminal so the poller never keeps running
	// on a state it cannot interpret.
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a raw backend status string onto the closed Status set.
// Anything unrecognized becomes StatusUnknown, never an error.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending
	case "processing":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "expired":
		return StatusExpired
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further automatic transitions may occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusUnknown:
		return true
	}
	return false
}

// InFlight reports whether the session is still being worked on by the backend.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

// Quality is the requested video quality, sent lowercase on the wire.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

var ErrInvalidQuality = errors.New("model: invalid quality")

// ParseQuality accepts the quality in any case ("HIGH", "high", ...).
// An empty value defaults to high.
func ParseQuality(raw string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "high":
		return QualityHigh, nil
	case "medium":
		return QualityMedium, nil
	case "low":
		return QualityLow, nil
	}
	return "", ErrInvalidQuality
}

// ErrIllegalTransition is returned when a status change would move a session
// backward or out of a terminal state.
var ErrIllegalTransition = errors.New("model: illegal status transition")

// CanTransition reports whether a session may move from one status to another.
// Self-transitions are allowed (a backend re-reporting the same state is not
// an error). Expired is reachable from any live state because the backend may
// declare a session expired at any poll.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed || to == StatusExpired
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusExpired
	case StatusCompleted:
		return to == StatusExpired
	}
	// Failed, Expired, Unknown: sticky.
	return false
}

// Session is one user-initiated download attempt.
type Session struct {
	ID            string
	SourceURL     string
	Platform      string
	Quality       Quality
	Status        Status
	Progress      int
	ErrorMessage  string
	ExpiresAt     time.Time // zero until the backend reports one
	Filename      string
	FileSizeBytes int64
	CreatedAt     time.Time
}

// ApplyStatus moves the session to the given status, enforcing the transition
// rules. A Completed session pins progress at 100.
func (s *Session) ApplyStatus(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, to)
	}
	s.Status = to
	if to == StatusCompleted {
		s.Progress = 100
	}
	return nil
}

// ApplyProgress updates progress while the session is in flight. Values are
// clamped to [0,100] and regressions are ignored, keeping progress monotonic.
func (s *Session) ApplyProgress(p int) {
	if !s.Status.InFlight() {
		return
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p > s.Progress {
		s.Progress = p
	}
}

// SetExpiresAt records the expiry deadline. It is immutable once set.
func (s *Session) SetExpiresAt(t time.Time) {
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = t
	}
}

// DisplayProgress renders the progress for UIs. A session that failed,
// expired, or came back unknown has no meaningful progress to show.
func (s *Session) DisplayProgress() string {
	switch s.Status {
	case StatusFailed, StatusExpired, StatusUnknown:
		return "—"
	}
	return fmt.Sprintf("%d%%", s.Progress)
}
