package main

import (
	"github.com/spf13/cobra"

	"github.com/andrej220/confaudit/pkg/config"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

func newAuditCmd(root *rootFlags) *cobra.Command {
	rf := &runFlags{}
	var (
		target, command string
		have, missing   string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Count devices whose configuration contains a target line",
		Example: `  confaudit audit --devices devices.txt --out reports/audit.csv
  confaudit audit --devices devices.txt --out audit.csv --target "set snmp community" --workers 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			rf.apply(cmd, &cfg, dm.ModeAudit)
			if cmd.Flags().Changed("target") {
				cfg.Audit.Target = target
			}
			if cmd.Flags().Changed("command") {
				cfg.Audit.Command = command
			}

			req := rf.request(dm.ModeAudit, cfg)
			req.Paths.Have, req.Paths.Missing = have, missing
			return runApp(cmd, root, req)
		},
	}

	addRunFlags(cmd, rf, dm.ModeAudit, "", "")
	d := config.Defaults()
	cmd.Flags().StringVar(&target, "target", d.Audit.Target, "Configuration line to look for")
	cmd.Flags().StringVar(&command, "command", d.Audit.Command, "Command that prints the configuration")
	cmd.Flags().StringVar(&have, "have", "", "Hosts carrying the target (default <out>_have.txt)")
	cmd.Flags().StringVar(&missing, "missing", "", "Reachable hosts without the target (default <out>_missing.txt)")
	_ = cmd.MarkFlagRequired("devices")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
