package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"hexorsite/internal/metrics"
)

// Scheduler runs periodic maintenance on cron specs and one-shot deferred
// cleanups. Both are best effort: failures are logged and counted, never
// returned to whoever scheduled them.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*deferred
	stopped bool
	wg      sync.WaitGroup
}

type deferred struct {
	name  string
	timer *time.Timer
	fn    func() error
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     log,
		pending: map[uint64]*deferred{},
	}
}

// Every registers fn on a standard cron spec (descriptors such as @hourly are
// accepted). A run that panics is recovered and logged.
func (s *Scheduler) Every(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runLogged(name, func() error { return fn(context.Background()) })
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// After runs fn once, delay from now. Tasks still pending when Stop is called
// run immediately so temporary files are not left behind.
func (s *Scheduler) After(delay time.Duration, name string, fn func() error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.runLogged(name, fn)
		return
	}
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	d := &deferred{name: name, fn: fn}
	s.wg.Add(1)
	d.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		_, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if ok {
			s.runLogged(name, fn)
		}
	})
	s.pending[id] = d
}

// Pending reports how many deferred tasks have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) Stop(ctx context.Context) {
	cronCtx := s.cron.Stop()

	s.mu.Lock()
	s.stopped = true
	flush := make([]*deferred, 0, len(s.pending))
	for id, d := range s.pending {
		// A timer that already fired is left for its callback to run.
		if d.timer.Stop() {
			s.wg.Done()
			flush = append(flush, d)
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()

	for _, d := range flush {
		s.runLogged(d.name, d.fn)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with tasks still running")
	}
}

func (s *Scheduler) runLogged(name string, fn func() error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDeferred(name, "panic")
			s.log.Error().Interface("panic", r).Str("task", name).Msg("scheduled task panicked")
		}
	}()
	if err := fn(); err != nil {
		metrics.RecordDeferred(name, "error")
		s.log.Warn().Err(err).Str("task", name).Dur("duration", time.Since(start)).Msg("scheduled task failed")
		return
	}
	metrics.RecordDeferred(name, "ok")
	s.log.Debug().Str("task", name).Dur("duration", time.Since(start)).Msg("scheduled task done")
}
