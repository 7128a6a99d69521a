// Package supervisor runs named background goroutines bound to one context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "cronwait/pkg/logx"
)

// Supervisor owns a cancelable context and every goroutine started on it.
// Goroutines are panic-safe; the first failure is kept and, with
// WithCancelOnError, cancels the whole group.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	wg       sync.WaitGroup
	running  atomic.Int64
	launched atomic.Uint64

	errMu    sync.Mutex
	firstErr error

	statsMu sync.Mutex
	stats   map[string]*GoroutineStats
}

type Option func(*Supervisor)

type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

// GoroutineStats aggregates every run recorded under one name.
type GoroutineStats struct {
	Name        string    `json:"name"`
	Active      int64     `json:"active"`
	Started     uint64    `json:"started"`
	Panics      uint64    `json:"panics"`
	Restarts    uint64    `json:"restarts"`
	LastStartAt time.Time `json:"last_start_at"`
	LastStopAt  time.Time `json:"last_stop_at"`
	LastErr     string    `json:"last_err,omitempty"`
}

type Snapshot struct {
	Counters   Counters         `json:"counters"`
	FirstError string           `json:"first_error,omitempty"`
	Goroutines []GoroutineStats `json:"goroutines"`
}

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the supervisor context on the first failure.
func WithCancelOnError(on bool) Option { return func(s *Supervisor) { s.cancelOnErr = on } }

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{stats: make(map[string]*GoroutineStats)}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, opt := range opts {
		opt(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded failure, if any.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

func (s *Supervisor) Counters() Counters {
	return Counters{Active: s.running.Load(), Started: s.launched.Load()}
}

// Snapshot lists per-name stats, running names first.
func (s *Supervisor) Snapshot() Snapshot {
	out := Snapshot{Counters: s.Counters()}
	if err := s.Err(); err != nil {
		out.FirstError = err.Error()
	}

	s.statsMu.Lock()
	out.Goroutines = make([]GoroutineStats, 0, len(s.stats))
	for _, st := range s.stats {
		out.Goroutines = append(out.Goroutines, *st)
	}
	s.statsMu.Unlock()

	sort.Slice(out.Goroutines, func(i, j int) bool {
		a, b := out.Goroutines[i], out.Goroutines[j]
		if a.Active != b.Active {
			return a.Active > b.Active
		}
		return a.Name < b.Name
	})
	return out
}

// record mutates the stats entry for name under the stats lock.
func (s *Supervisor) record(name string, fn func(st *GoroutineStats)) {
	s.statsMu.Lock()
	st, ok := s.stats[name]
	if !ok {
		st = &GoroutineStats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.statsMu.Unlock()
}

func (s *Supervisor) began(name string, restart bool) time.Time {
	at := time.Now()
	s.record(name, func(st *GoroutineStats) {
		st.Started++
		st.Active++
		st.LastStartAt = at
		if restart {
			st.Restarts++
		}
	})
	return at
}

func (s *Supervisor) ended(name string, err error, panicked bool) {
	s.record(name, func(st *GoroutineStats) {
		if st.Active > 0 {
			st.Active--
		}
		st.LastStopAt = time.Now()
		if panicked {
			st.Panics++
		}
		if err != nil {
			st.LastErr = err.Error()
		}
	})
}

// call runs fn, converting a panic into an error.
func (s *Supervisor) call(name string, fn func(context.Context) error) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked",
				logx.String("name", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			panicked, err = true, fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return false, fn(s.ctx)
}

// Go runs fn on its own goroutine. A non-nil error other than
// context.Canceled counts as a failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.launched.Add(1)
	s.running.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)

		s.began(name, false)
		s.log.Debug("goroutine started", logx.String("name", name))

		panicked, err := s.call(name, fn)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil && !panicked {
			err = fmt.Errorf("%s: %w", name, err)
		}
		s.ended(name, err, panicked)
		if err != nil {
			s.fail(err)
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	min, max    time.Duration
	maxRestarts int // 0: unlimited
	publish     bool
}

// WithRestartBackoff sets the backoff bounds; it doubles from min to max.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if min > 0 {
			p.min = min
		}
		if max > 0 {
			p.max = max
		}
	}
}

// WithMaxRestarts gives up after n restarts. The first run is not a restart.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.maxRestarts = n } }

// WithPublishFirstError records the first failed run as the supervisor error
// even though the loop keeps restarting.
func WithPublishFirstError(on bool) RestartOption { return func(p *restartPolicy) { p.publish = on } }

// healthyRun is how long a run must last to reset the backoff.
const healthyRun = 30 * time.Second

// GoRestart runs fn in a loop, restarting it after an error or panic until
// it returns nil, returns context.Canceled, or the context ends. Stats are
// recorded under name; the loop itself runs as name+".restart".
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, opt := range opts {
		opt(&p)
	}
	p.max = max(p.max, p.min)

	s.Go(name+".restart", func(ctx context.Context) error {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		delay := p.min
		for run := 0; ctx.Err() == nil; run++ {
			at := s.began(name, run > 0)
			panicked, err := s.call(name, fn)

			if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				s.ended(name, nil, panicked)
				return nil
			}
			err = fmt.Errorf("%s: %w", name, err)
			s.ended(name, err, panicked)
			if p.publish {
				s.setErr(err)
			}

			if p.maxRestarts > 0 && run >= p.maxRestarts {
				s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", run), logx.Err(err))
				return err
			}
			if time.Since(at) >= healthyRun {
				delay = p.min
			}
			wait := delay + time.Duration(rng.Int63n(int64(delay)/5+1))
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			delay = min(delay*2, p.max)
		}
		return nil
	})
}

// Stop cancels the context and waits for every goroutine.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until all goroutines have returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.errMu.Unlock()
}
