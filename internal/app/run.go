// Package app wires one audit or remediation run from inputs to reports.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andrej220/confaudit/internal/executor"
	"github.com/andrej220/confaudit/internal/inventory"
	"github.com/andrej220/confaudit/internal/lg"
	"github.com/andrej220/confaudit/internal/orchestrator"
	"github.com/andrej220/confaudit/internal/report"
	"github.com/andrej220/confaudit/pkg/config"
	ex "github.com/andrej220/confaudit/pkg/executor"
	"github.com/andrej220/confaudit/pkg/plan"
	"github.com/andrej220/confaudit/pkg/publisher"
	"github.com/andrej220/confaudit/pkg/resultstore"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

// Request names what to run and where the results go. Config already holds
// flag overrides.
type Request struct {
	Mode        dm.Mode
	DevicesPath string
	Paths       report.Paths
	Config      config.RunConfig
}

// CredentialsFunc returns ex.ErrInterrupted when ctx is cancelled while it
// waits for input.
type CredentialsFunc func(ctx context.Context) (ex.Credentials, error)

type TransportFunc func(cfg config.RunConfig, logger lg.Logger) (ex.Transport, error)

type SinksFunc func(cfg config.RunConfig, logger lg.Logger) ([]report.Sink, error)

type App struct {
	Credentials CredentialsFunc
	Transport   TransportFunc
	Sinks       SinksFunc
	Stdout      io.Writer
	Logger      lg.Logger
}

func New(creds CredentialsFunc, logger lg.Logger) *App {
	return &App{
		Credentials: creds,
		Transport:   NewSSHTransport,
		Sinks:       NewSinks,
		Stdout:      os.Stdout,
		Logger:      logger,
	}
}

func NewSSHTransport(cfg config.RunConfig, logger lg.Logger) (ex.Transport, error) {
	prompt, err := cfg.Dialect.PromptRegexp()
	if err != nil {
		return nil, fmt.Errorf("dialect %s prompt: %w", cfg.Dialect.Name, err)
	}
	return executor.NewSSHTransport(cfg.SSH, prompt, logger)
}

// NewSinks opens the configured result sinks. Connection problems surface
// here, before any device is touched.
func NewSinks(cfg config.RunConfig, logger lg.Logger) ([]report.Sink, error) {
	var sinks []report.Sink
	if k := cfg.Sinks.Kafka; k != nil {
		sinks = append(sinks, publisher.NewKafkaProducer(k.Brokers, k.Topic, k.WriteTimeout, logger))
	}
	if m := cfg.Sinks.Mongo; m != nil {
		store, err := resultstore.New(m.URI, m.DBName, m.CollName, logger)
		if err != nil {
			_ = report.CloseAll(sinks)
			return nil, err
		}
		sinks = append(sinks, store)
	}
	return sinks, nil
}

// BuildPlan renders the plan of a run mode from the configuration.
func BuildPlan(mode dm.Mode, cfg config.RunConfig) (*plan.Plan, error) {
	var p *plan.Plan
	switch mode {
	case dm.ModeAudit:
		p = plan.NewAuditPlan(cfg.Dialect, cfg.Audit.Command, cfg.Audit.Target)
	case dm.ModeRemediate:
		p = plan.NewRemediationPlan(cfg.Dialect, cfg.Remediation.Lines, cfg.Remediation.VerifyCommand)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if err := plan.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Run executes one run. It returns ex.ErrInterrupted when ctx was cancelled
// while devices were in flight; no reports are written in that case.
func (a *App) Run(ctx context.Context, req Request) error {
	logger := a.Logger
	if logger == nil {
		logger = lg.Discard
	}

	devices, err := inventory.LoadHosts(req.DevicesPath)
	if err != nil {
		return err
	}
	if err := config.Validate(&req.Config); err != nil {
		return err
	}
	p, err := BuildPlan(req.Mode, req.Config)
	if err != nil {
		return err
	}
	transport, err := a.Transport(req.Config, logger)
	if err != nil {
		return err
	}
	sinks, err := a.Sinks(req.Config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := report.CloseAll(sinks); err != nil {
			logger.Warn("closing sinks", lg.Err(err))
		}
	}()

	creds, err := a.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	if ctx.Err() != nil {
		return ex.ErrInterrupted
	}

	console := report.NewConsole(a.Stdout)
	orch := orchestrator.New(transport,
		orchestrator.WithWorkers(req.Config.Workers(req.Mode)),
		orchestrator.WithProgress(console.Progress),
		orchestrator.WithLogger(logger),
	)
	console.Printf("Running %s on %d devices with %d workers\n", req.Mode, len(devices), min(req.Config.Workers(req.Mode), len(devices)))

	rs, err := orch.Run(ctx, devices, p, creds, req.Config.Timeouts(req.Mode))
	if ctx.Err() != nil {
		return ex.ErrInterrupted
	}
	if err != nil {
		return err
	}

	console.Summary(rs)
	written, err := report.Write(rs, orch.RunID(), req.Paths)
	for _, f := range written {
		console.Printf("Wrote %s\n", f)
	}
	if err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}

	if err := report.PublishAll(ctx, sinks, orch.RunID(), rs, logger); err != nil {
		// reports are on disk; a sink outage does not fail the run
		logger.Warn("publishing outcomes", lg.Err(err))
	}
	return nil
}

func IsInterrupted(err error) bool {
	return errors.Is(err, ex.ErrInterrupted)
}
