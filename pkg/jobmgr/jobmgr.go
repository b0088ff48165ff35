// Package jobmgr runs named background jobs under one parent context, with
// cancellation, lifecycle logging and a way to wait for all of them.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, logger)
//	_ = jm.StartAsync("cooldown-sweeper", func(ctx context.Context) error {
//	    return cooldown.RunSweeper(ctx, store, time.Minute)
//	})
//	...
//	jm.StopAll()
//	jm.Wait()
//
// Jobs run in separate goroutines and are removed on completion. There is
// no retry and no persistence.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrRunning    = errors.New("job already running")
	ErrNotRunning = errors.New("job not running")
	ErrStopped    = errors.New("job manager stopped")
)

// Job represents a running unit of work.
type Job struct {
	Name    string
	Started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// Runner is the body of a job. It should return once ctx is done.
type Runner func(ctx context.Context) error

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	wg      sync.WaitGroup
	errs    []error
	stopped bool
}

// NewManager creates a Manager whose jobs are cancelled together with parent.
func NewManager(parent context.Context, log zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		jobs:   make(map[string]*Job),
	}
}

// StartSync runs a job in the current goroutine and blocks until completion.
func (m *Manager) StartSync(name string, run Runner) error {
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	m.log.Debug().Str("event", "job.running").Str("job", name).Msg("job started")
	err := run(ctx)
	m.finished(name, err)
	return err
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// Starting a name that is still running fails with ErrRunning.
func (m *Manager) StartAsync(name string, run Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	}
	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("start %s: %w", name, ErrRunning)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	job := &Job{Name: name, Started: time.Now(), cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = job
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()

		m.log.Debug().Str("event", "job.running").Str("job", name).Msg("job started")
		err := run(ctx)

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
		m.finished(name, err)
	}()
	return nil
}

func (m *Manager) finished(name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		m.log.Debug().Str("event", "job.done").Str("job", name).Msg("job finished")
		return
	}
	m.log.Error().Err(err).Str("event", "job.failed").Str("job", name).Msg("job failed")
	m.mu.Lock()
	m.errs = append(m.errs, fmt.Errorf("%s: %w", name, err))
	m.mu.Unlock()
}

// Stop cancels a running job by name and waits for it to return or for ctx
// to end.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("stop %s: %w", name, ErrNotRunning)
	}

	job.cancel()
	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll cancels every job; no new job can start afterwards.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.cancel()
}

// Wait blocks until every async job returned and reports their failures.
// Cancellation is not a failure.
func (m *Manager) Wait() error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.errs...)
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary of active jobs, such as
// "Running jobs: metrics, watcher".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}
