// Package scheduler runs keyed, cancellable background tasks. Scheduling a
// task under a key that is already pending cancels the old task first.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oooz/oooz-bot/src/metrics"
)

var ErrStopped = errors.New("scheduler: stopped")

// Func is the body of a task. ctx is cancelled when the task is cancelled or
// the scheduler stops.
type Func func(ctx context.Context)

type task struct {
	key    string
	cancel context.CancelFunc
}

// Scheduler owns every timer and background goroutine of the bot.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	wg      sync.WaitGroup
	ctx     context.Context
	stop    context.CancelFunc
	stopped bool

	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Options configures a Scheduler.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// New returns a running scheduler.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:   map[string]*task{},
		ctx:     ctx,
		stop:    cancel,
		log:     opts.Logger.With("component", "scheduler"),
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// At runs fn at when under key. A time in the past runs fn immediately.
func (s *Scheduler) At(key string, when time.Time, fn Func) error {
	return s.After(key, when.Sub(s.now()), fn)
}

// After runs fn once after d under key.
func (s *Scheduler) After(key string, d time.Duration, fn Func) error {
	t, ctx, err := s.register(key)
	if err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		defer t.cancel()
		if d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.forget(t)
				return
			case <-timer.C:
			}
		}
		// Forget before running so fn may reschedule under its own key.
		if !s.forget(t) {
			return
		}
		s.safeRun(ctx, key, fn)
	}()
	return nil
}

// Every runs fn repeatedly under key, waiting interval() between the end of
// one run and the start of the next.
func (s *Scheduler) Every(key string, interval func() time.Duration, fn Func) error {
	t, ctx, err := s.register(key)
	if err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		defer t.cancel()
		defer s.forget(t)
		for {
			timer := time.NewTimer(interval())
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			s.safeRun(ctx, key, fn)
		}
	}()
	return nil
}

// Go runs fn in the background once. It is not keyed and cannot be
// cancelled individually, but Stop cancels its context and waits for it.
func (s *Scheduler) Go(name string, fn Func) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		s.safeRun(s.ctx, name, fn)
	}()
}

// Cancel stops the task under key and reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	delete(s.tasks, key)
	t.cancel()
	return true
}

// CancelPrefix cancels every task whose key starts with prefix.
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, t := range s.tasks {
		if strings.HasPrefix(key, prefix) {
			delete(s.tasks, key)
			t.cancel()
			n++
		}
	}
	return n
}

// Pending reports whether a task is scheduled under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Keys lists the pending task keys in order.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for k := range s.tasks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stop cancels everything and waits for running tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, t := range s.tasks {
		t.cancel()
		delete(s.tasks, key)
	}
	s.mu.Unlock()
	s.stop()
	s.wg.Wait()
}

func (s *Scheduler) register(key string) (*task, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, nil, ErrStopped
	}
	if old, ok := s.tasks[key]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{key: key, cancel: cancel}
	s.tasks[key] = t
	s.wg.Add(1)
	return t, ctx, nil
}

// forget drops t if it is still the task registered under its key.
func (s *Scheduler) forget(t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[t.key] != t {
		return false
	}
	delete(s.tasks, t.key)
	return true
}

func (s *Scheduler) safeRun(ctx context.Context, key string, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SchedulerPanic()
			s.log.Error("task panicked", "task", key, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(ctx)
}
