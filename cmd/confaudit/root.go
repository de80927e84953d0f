package main

import (
	"github.com/spf13/cobra"

	"github.com/andrej220/confaudit/internal/lg"
	"github.com/andrej220/confaudit/pkg/config"
)

const serviceName = "confaudit"

type rootFlags struct {
	debug      bool
	logFormat  string
	configPath string

	logger lg.Logger
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "confaudit",
		Short:         "Audit and remediate configuration across a fleet of network devices over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			flags.logger = lg.New(&lg.Config{
				ServiceName: serviceName,
				Debug:       flags.debug,
				Format:      flags.logFormat,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if flags.logger != nil {
				_ = flags.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "console", "Log encoding: console or json")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML run configuration file")

	cmd.AddCommand(newAuditCmd(flags))
	cmd.AddCommand(newRemediateCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (f *rootFlags) loadConfig() (config.RunConfig, error) {
	return config.Load(f.configPath)
}

func (f *rootFlags) log() lg.Logger {
	if f.logger == nil {
		return lg.Discard
	}
	return f.logger
}
