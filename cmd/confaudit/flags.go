package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/andrej220/confaudit/internal/app"
	"github.com/andrej220/confaudit/internal/report"
	"github.com/andrej220/confaudit/pkg/config"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

// runFlags are shared by audit and remediate. Only flags set on the command
// line override the configuration file.
type runFlags struct {
	devices string
	out     string
	jsonOut string
	workers int

	connectTimeout   time.Duration
	authTimeout      time.Duration
	bannerTimeout    time.Duration
	operationTimeout time.Duration

	port        int
	dialRetries uint64
	connectRate float64
	knownHosts  string
}

func addRunFlags(cmd *cobra.Command, rf *runFlags, mode dm.Mode, devicesDefault, outDefault string) {
	d := config.Defaults()
	to := d.Timeouts(mode)

	f := cmd.Flags()
	f.StringVar(&rf.devices, "devices", devicesDefault, "Host list file, one address per line")
	f.StringVar(&rf.out, "out", outDefault, "CSV report path")
	f.StringVar(&rf.jsonOut, "json", "", "Also write a JSON report to this path")
	f.IntVar(&rf.workers, "workers", d.Workers(mode), "Concurrent device sessions")
	f.DurationVar(&rf.connectTimeout, "connect-timeout", to.Connect, "TCP connect timeout")
	f.DurationVar(&rf.authTimeout, "auth-timeout", to.Auth, "SSH authentication timeout")
	f.DurationVar(&rf.bannerTimeout, "banner-timeout", to.Banner, "SSH banner exchange timeout")
	f.DurationVar(&rf.operationTimeout, "operation-timeout", to.Operation, "Timeout of each command")
	f.IntVar(&rf.port, "port", d.SSH.Port, "SSH port")
	f.Uint64Var(&rf.dialRetries, "dial-retries", d.SSH.DialRetries, "Extra connection attempts per device")
	f.Float64Var(&rf.connectRate, "connect-rate", d.SSH.ConnectRate, "Maximum new connections per second (0 = unlimited)")
	f.StringVar(&rf.knownHosts, "known-hosts", "", "Verify host keys against this known_hosts file")
}

func (rf *runFlags) apply(cmd *cobra.Command, cfg *config.RunConfig, mode dm.Mode) {
	changed := cmd.Flags().Changed

	workers, timeouts := &cfg.Audit.Workers, &cfg.Audit.Timeouts
	if mode == dm.ModeRemediate {
		workers, timeouts = &cfg.Remediation.Workers, &cfg.Remediation.Timeouts
	}
	if changed("workers") {
		*workers = rf.workers
	}
	if changed("connect-timeout") {
		timeouts.Connect = rf.connectTimeout
	}
	if changed("auth-timeout") {
		timeouts.Auth = rf.authTimeout
	}
	if changed("banner-timeout") {
		timeouts.Banner = rf.bannerTimeout
	}
	if changed("operation-timeout") {
		timeouts.Operation = rf.operationTimeout
	}
	if changed("port") {
		cfg.SSH.Port = rf.port
	}
	if changed("dial-retries") {
		cfg.SSH.DialRetries = rf.dialRetries
	}
	if changed("connect-rate") {
		cfg.SSH.ConnectRate = rf.connectRate
	}
	if changed("known-hosts") {
		cfg.SSH.KnownHostsFile = rf.knownHosts
	}
}

func (rf *runFlags) request(mode dm.Mode, cfg config.RunConfig) app.Request {
	return app.Request{
		Mode:        mode,
		DevicesPath: rf.devices,
		Paths:       report.Paths{CSV: rf.out, JSON: rf.jsonOut},
		Config:      cfg,
	}
}

// runApp is swapped in tests.
var runApp = func(cmd *cobra.Command, root *rootFlags, req app.Request) error {
	p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	a := app.New(p.Credentials, root.log())
	a.Stdout = cmd.OutOrStdout()
	return a.Run(cmd.Context(), req)
}
