package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hferr/grabvid/internal/model"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]model.Status{
		"pending":    model.StatusPending,
		"PROCESSING": model.StatusProcessing,
		" completed": model.StatusCompleted,
		"failed":     model.StatusFailed,
		"expired":    model.StatusExpired,
		"queued":     model.StatusUnknown,
		"":           model.StatusUnknown,
	}
	for raw, want := range cases {
		if got := model.ParseStatus(raw); got != want {
			t.Errorf("ParseStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	terminals := []model.Status{model.StatusCompleted, model.StatusFailed, model.StatusExpired, model.StatusUnknown}
	all := []model.Status{
		model.StatusPending, model.StatusProcessing, model.StatusCompleted,
		model.StatusFailed, model.StatusExpired, model.StatusUnknown,
	}
	for _, from := range terminals {
		if !from.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", from)
		}
		for _, to := range all {
			if from == to {
				continue
			}
			// Completed may still expire; everything else is frozen.
			if from == model.StatusCompleted && to == model.StatusExpired {
				continue
			}
			if model.CanTransition(from, to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", from, to)
			}
		}
	}
}

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to model.Status }{
		{model.StatusPending, model.StatusProcessing},
		{model.StatusPending, model.StatusCompleted},
		{model.StatusPending, model.StatusFailed},
		{model.StatusPending, model.StatusExpired},
		{model.StatusProcessing, model.StatusCompleted},
		{model.StatusProcessing, model.StatusFailed},
		{model.StatusProcessing, model.StatusExpired},
		{model.StatusCompleted, model.StatusExpired},
		{model.StatusProcessing, model.StatusProcessing},
	}
	for _, c := range allowed {
		if !model.CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", c.from, c.to)
		}
	}
	if model.CanTransition(model.StatusProcessing, model.StatusPending) {
		t.Error("processing -> pending must be illegal")
	}
	if model.CanTransition(model.StatusCompleted, model.StatusProcessing) {
		t.Error("completed -> processing must be illegal")
	}
}

func TestApplyStatusRejectsBackwardMove(t *testing.T) {
	s := &model.Session{Status: model.StatusCompleted}
	err := s.ApplyStatus(model.StatusProcessing)
	if !errors.Is(err, model.ErrIllegalTransition) {
		t.Fatalf("ApplyStatus error = %v, want ErrIllegalTransition", err)
	}
	if s.Status != model.StatusCompleted {
		t.Errorf("status mutated to %s on rejected transition", s.Status)
	}
}

func TestApplyStatusCompletedPinsProgress(t *testing.T) {
	s := &model.Session{Status: model.StatusProcessing, Progress: 80}
	if err := s.ApplyStatus(model.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if s.Progress != 100 {
		t.Errorf("progress = %d after completion, want 100", s.Progress)
	}
}

func TestApplyProgressMonotonic(t *testing.T) {
	s := &model.Session{Status: model.StatusProcessing}
	for _, p := range []int{10, 40, 35, 40, 140, -5} {
		s.ApplyProgress(p)
	}
	if s.Progress != 100 {
		t.Errorf("progress = %d, want 100 (clamped)", s.Progress)
	}

	s = &model.Session{Status: model.StatusProcessing, Progress: 60}
	s.ApplyProgress(20)
	if s.Progress != 60 {
		t.Errorf("progress regressed to %d", s.Progress)
	}

	s = &model.Session{Status: model.StatusFailed, Progress: 30}
	s.ApplyProgress(90)
	if s.Progress != 30 {
		t.Error("progress must not change once terminal")
	}
}

func TestSetExpiresAtImmutable(t *testing.T) {
	first := time.Unix(1000, 0)
	second := time.Unix(2000, 0)
	s := &model.Session{}
	s.SetExpiresAt(first)
	s.SetExpiresAt(second)
	if !s.ExpiresAt.Equal(first) {
		t.Errorf("ExpiresAt = %v, want first value %v", s.ExpiresAt, first)
	}
}

func TestDisplayProgress(t *testing.T) {
	s := &model.Session{Status: model.StatusProcessing, Progress: 40}
	if got := s.DisplayProgress(); got != "40%" {
		t.Errorf("DisplayProgress() = %q, want 40%%", got)
	}
	s.Status = model.StatusFailed
	if got := s.DisplayProgress(); got != "—" {
		t.Errorf("DisplayProgress() = %q for failed session", got)
	}
}

func TestParseQuality(t *testing.T) {
	if q, err := model.ParseQuality("HIGH"); err != nil || q != model.QualityHigh {
		t.Errorf("ParseQuality(HIGH) = %q, %v", q, err)
	}
	if q, err := model.ParseQuality(""); err != nil || q != model.QualityHigh {
		t.Errorf("ParseQuality(\"\") = %q, %v, want default high", q, err)
	}
	if _, err := model.ParseQuality("ultra"); !errors.Is(err, model.ErrInvalidQuality) {
		t.Errorf("ParseQuality(ultra) error = %v, want ErrInvalidQuality", err)
	}
}
