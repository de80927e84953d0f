// Package orchestrator fans a plan out over a device list with a bounded
// worker pool and gathers exactly one Outcome per device.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrej220/confaudit/internal/executor"
	"github.com/andrej220/confaudit/internal/lg"
	ex "github.com/andrej220/confaudit/pkg/executor"
	"github.com/andrej220/confaudit/pkg/plan"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
	"github.com/andrej220/confaudit/pkg/workerpool"
)

var ErrNoDevices = errors.New("device list is empty")

// ProgressFunc is told about every outcome as it lands. Calls never overlap.
type ProgressFunc func(dm.Outcome)

// TaskFactory builds the worker for one device.
type TaskFactory func(dev dm.Device, p *plan.Plan, creds ex.Credentials, timeouts ex.Timeouts, logger lg.Logger) ex.Task[dm.Outcome]

type Orchestrator struct {
	transport ex.Transport
	workers   int
	progress  ProgressFunc
	logger    lg.Logger
	newTask   TaskFactory
	runID     string
}

type Option func(*Orchestrator)

func WithWorkers(n int) Option { return func(o *Orchestrator) { o.workers = n } }

func WithProgress(fn ProgressFunc) Option { return func(o *Orchestrator) { o.progress = fn } }

func WithLogger(l lg.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithTaskFactory(f TaskFactory) Option { return func(o *Orchestrator) { o.newTask = f } }

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option { return func(o *Orchestrator) { o.runID = id } }

func New(transport ex.Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport: transport,
		workers:   1,
		logger:    lg.Discard,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.newTask == nil {
		o.newTask = func(dev dm.Device, p *plan.Plan, creds ex.Credentials, timeouts ex.Timeouts, logger lg.Logger) ex.Task[dm.Outcome] {
			return executor.NewDeviceTask(dev, p, creds, timeouts, o.transport, logger)
		}
	}
	return o
}

// RunID returns the identifier of the last run, or the fixed one.
func (o *Orchestrator) RunID() string { return o.runID }

// Run executes p against every device and blocks until all of them have an
// Outcome. Cancelling ctx interrupts the run: queued devices finish
// immediately as interrupted and running ones stop after their current step.
// The returned set is sealed.
func (o *Orchestrator) Run(ctx context.Context, devices []dm.Device, p *plan.Plan, creds ex.Credentials, timeouts ex.Timeouts) (*dm.ResultSet, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	logger := o.logger.With(lg.String("run_id", o.runID), lg.String("mode", string(p.Mode)))
	ctx = lg.Attach(ctx, logger)

	workers := min(o.workers, len(devices))
	logger.Info("run started", lg.Int("devices", len(devices)), lg.Int("workers", workers))
	start := time.Now()

	rs := dm.NewResultSet(p.Mode, len(devices))
	var mu sync.Mutex
	record := func(out dm.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if err := rs.Add(out); err != nil {
			logger.Error("outcome dropped", lg.String("host", out.Host), lg.Err(err))
			return
		}
		if o.progress != nil {
			o.safeProgress(logger, out)
		}
	}

	pool := workerpool.NewPool[dm.Device](workers)
	for _, dev := range devices {
		var recorded bool
		pool.Submit(workerpool.Job[dm.Device]{
			Payload: dev,
			Ctx:     ctx,
			Fn: func(ctx context.Context, dev dm.Device) error {
				task := o.newTask(dev, p, creds, timeouts, logger)
				out := task.Execute(ctx)
				recorded = true
				record(out)
				return nil
			},
			OnError: func(dev dm.Device, err error) {
				if recorded {
					return
				}
				record(dm.Outcome{Host: dev.Host, Error: fmt.Sprintf("internal error: %v", err)})
			},
		})
	}
	pool.Wait()
	rs.Seal()

	logger.Info("run finished", lg.Int("outcomes", rs.Len()), lg.Duration("elapsed", time.Since(start)))
	if rs.Len() != len(devices) {
		return rs, fmt.Errorf("collected %d outcomes for %d devices", rs.Len(), len(devices))
	}
	return rs, nil
}

func (o *Orchestrator) safeProgress(logger lg.Logger, out dm.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("progress callback panicked", lg.String("host", out.Host), lg.Any("panic", r))
		}
	}()
	o.progress(out)
}
