package main

import (
	"github.com/spf13/cobra"

	"github.com/andrej220/confaudit/pkg/config"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

func newRemediateCmd(root *rootFlags) *cobra.Command {
	rf := &runFlags{}
	var (
		lines         []string
		verifyCommand string
	)

	cmd := &cobra.Command{
		Use:   "remediate",
		Short: "Push configuration lines, commit, and verify they landed",
		Example: `  confaudit remediate --devices devices.txt
  confaudit remediate --line "set snmp community ro authorization read-only" --workers 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			rf.apply(cmd, &cfg, dm.ModeRemediate)
			if cmd.Flags().Changed("line") {
				cfg.Remediation.Lines = lines
			}
			if cmd.Flags().Changed("verify-command") {
				cfg.Remediation.VerifyCommand = verifyCommand
			}
			return runApp(cmd, root, rf.request(dm.ModeRemediate, cfg))
		},
	}

	addRunFlags(cmd, rf, dm.ModeRemediate, "devices.txt", "remediation_results.csv")
	d := config.Defaults()
	cmd.Flags().StringArrayVar(&lines, "line", d.Remediation.Lines, "Configuration line to push (repeatable)")
	cmd.Flags().StringVar(&verifyCommand, "verify-command", d.Remediation.VerifyCommand, "Command run after commit to re-read the configuration")

	return cmd
}
