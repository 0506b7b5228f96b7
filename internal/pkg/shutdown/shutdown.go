// Package shutdown runs cleanup steps when the process is asked to stop.
package shutdown

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"trendmaker/internal/pkg/logger"
)

// DefaultTimeout bounds the whole cleanup run.
const DefaultTimeout = 30 * time.Second

// Manager runs registered steps in reverse registration order, so whatever
// was started last is stopped first.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []Step
	once  sync.Once
	err   error
	done  chan struct{}
}

// Step is one named cleanup action.
type Step struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		log:     log,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown step", "name", name)
}

// RegisterSimple adds a step that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until SIGINT/SIGTERM/SIGHUP arrives or ctx is done, then
// runs the cleanup steps.
func (m *Manager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, shutting down")
	case <-m.done:
		return m.err
	}
	return m.Shutdown()
}

// Shutdown runs every step once. Later calls return the first result.
// Steps still running when the timeout fires see a canceled context; the
// remaining steps are skipped.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.err = m.run()
		close(m.done)
	})
	return m.err
}

func (m *Manager) run() error {
	m.mu.Lock()
	steps := make([]Step, len(m.steps))
	copy(steps, m.steps)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "steps", len(steps), "timeout", m.timeout.String())

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if ctx.Err() != nil {
			m.log.Warn("shutdown timeout exceeded, skipping step", "name", s.Name)
			errs = append(errs, ctx.Err())
			continue
		}

		start := time.Now()
		if err := s.Cleanup(ctx); err != nil {
			m.log.Error("shutdown step failed",
				"name", s.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			errs = append(errs, err)
			continue
		}
		m.log.Debug("shutdown step completed",
			"name", s.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if len(errs) == 0 {
		m.log.Info("graceful shutdown completed")
	}
	return stderrors.Join(errs...)
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
