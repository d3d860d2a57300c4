// Package shutdown runs the daemon's ordered teardown exactly once, no
// matter how many signals or requests race to trigger it.
package shutdown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"conductor/internal/logging"
)

// Phase tracks teardown progress.
type Phase string

const (
	PhaseRunning    Phase = "running"
	PhaseRequested  Phase = "requested"
	PhaseInProgress Phase = "in_progress"
	PhaseComplete   Phase = "complete"
)

// Step is one named teardown action. Steps run in registration order; a
// failing step is logged and the remaining steps still run.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Coordinator owns the teardown sequence.
type Coordinator struct {
	logger *slog.Logger

	mu    sync.Mutex
	phase Phase
	steps []Step

	once sync.Once
	done chan struct{}
}

// New builds a coordinator in the Running phase.
func New(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger: logging.NewComponentLogger(logger, "shutdown"),
		phase:  PhaseRunning,
		done:   make(chan struct{}),
	}
}

// Register appends a teardown step. Registration after shutdown begins is
// ignored.
func (c *Coordinator) Register(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseRunning {
		return
	}
	c.steps = append(c.steps, Step{Name: name, Fn: fn})
}

// Phase returns the current teardown phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Done is closed when teardown completes.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Shutdown runs the registered steps exactly once and returns when they
// have all completed. Concurrent and repeated calls wait for the single
// run to finish.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.phase == PhaseRunning {
		c.phase = PhaseRequested
	}
	c.mu.Unlock()

	c.once.Do(func() {
		c.mu.Lock()
		c.phase = PhaseInProgress
		steps := c.steps
		c.mu.Unlock()

		c.logger.Info("shutdown started",
			logging.String(logging.FieldEventType, "shutdown_started"),
			logging.Int("steps", len(steps)),
		)
		started := time.Now()

		for _, step := range steps {
			stepStart := time.Now()
			if err := step.Fn(ctx); err != nil {
				c.logger.Warn("shutdown step failed; continuing",
					logging.Error(err),
					logging.String(logging.FieldEventType, "shutdown_step_failed"),
					logging.String("step", step.Name),
				)
				continue
			}
			c.logger.Debug("shutdown step complete",
				logging.String("step", step.Name),
				logging.Duration("elapsed", time.Since(stepStart)),
			)
		}

		c.mu.Lock()
		c.phase = PhaseComplete
		c.mu.Unlock()
		close(c.done)

		c.logger.Info("shutdown complete",
			logging.String(logging.FieldEventType, "shutdown_complete"),
			logging.Duration("elapsed", time.Since(started)),
		)
	})

	<-c.done
}
