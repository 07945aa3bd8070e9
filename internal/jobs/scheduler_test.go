package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAfterRunsOnceAfterDelay(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	var calls atomic.Int32
	done := make(chan struct{})
	s.After(10*time.Millisecond, "test", func() error {
		calls.Add(1)
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("deferred task did not run")
	}
	s.Stop(context.Background())
	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending tasks, got %d", s.Pending())
	}
}

func TestAfterErrorIsSwallowed(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	done := make(chan struct{})
	s.After(time.Millisecond, "failing", func() error {
		defer close(done)
		return errors.New("disk gone")
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("deferred task did not run")
	}
	s.Stop(context.Background())
}

func TestStopFlushesPendingTasks(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	var ran atomic.Bool
	s.After(time.Hour, "cleanup", func() error {
		ran.Store(true)
		return nil
	})
	if s.Pending() != 1 {
		t.Fatalf("expected one pending task, got %d", s.Pending())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if !ran.Load() {
		t.Fatalf("expected pending task to run on stop")
	}

	var late atomic.Bool
	s.After(time.Hour, "late", func() error {
		late.Store(true)
		return nil
	})
	if !late.Load() {
		t.Fatalf("expected task scheduled after stop to run immediately")
	}
}

func TestEveryRejectsBadSpec(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	if err := s.Every("not a spec", "bad", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected invalid spec to be rejected")
	}
	if err := s.Every("@hourly", "sweep", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
