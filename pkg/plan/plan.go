// Package plan describes what a single device session does: an ordered list
// of steps rendered for one CLI dialect. Audit and remediation runs are both
// plans; only their steps differ.
package plan

import (
	"fmt"

	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

type Kind string

const (
	KindSendRaw         Kind = "send_raw"
	KindEnterConfigMode Kind = "enter_config"
	KindPushLines       Kind = "push_lines"
	KindCommit          Kind = "commit"
	KindExitConfigMode  Kind = "exit_config"
	KindCapture         Kind = "capture"
)

// Step is one unit of work in a plan. BestEffort steps have their result
// discarded: they can neither fail the plan nor change the outcome.
type Step struct {
	Kind       Kind     `yaml:"kind" json:"kind" validate:"required,stepKind"`
	Command    string   `yaml:"command,omitempty" json:"command,omitempty"`
	Lines      []string `yaml:"lines,omitempty" json:"lines,omitempty" validate:"required_if=Kind push_lines,dive,required"`
	Target     string   `yaml:"target,omitempty" json:"target,omitempty"`
	Expect     []string `yaml:"expect,omitempty" json:"expect,omitempty" validate:"dive,required"`
	BestEffort bool     `yaml:"bestEffort,omitempty" json:"bestEffort,omitempty"`
}

func (s Step) String() string {
	switch s.Kind {
	case KindPushLines:
		return fmt.Sprintf("%s(%d lines)", s.Kind, len(s.Lines))
	case KindSendRaw, KindCapture:
		return fmt.Sprintf("%s(%q)", s.Kind, s.Command)
	default:
		return string(s.Kind)
	}
}

// Plan is immutable once built and is shared by all device workers.
type Plan struct {
	Name    string  `yaml:"name" json:"name" validate:"required"`
	Mode    dm.Mode `yaml:"mode" json:"mode" validate:"oneof=audit remediate"`
	Dialect Dialect `yaml:"dialect" json:"dialect"`
	Steps   []Step  `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
}

// NewAuditPlan reads command once and counts lines containing target.
func NewAuditPlan(d Dialect, command, target string) *Plan {
	return &Plan{
		Name:    "audit",
		Mode:    dm.ModeAudit,
		Dialect: d,
		Steps: append(pagingSteps(d),
			Step{Kind: KindCapture, Command: command, Target: target},
		),
	}
}

// NewRemediationPlan stages lines in configuration mode, commits, and
// re-reads verifyCommand to confirm every line landed.
func NewRemediationPlan(d Dialect, lines []string, verifyCommand string) *Plan {
	staged := append([]string(nil), lines...)
	return &Plan{
		Name:    "remediate",
		Mode:    dm.ModeRemediate,
		Dialect: d,
		Steps: append(pagingSteps(d),
			Step{Kind: KindEnterConfigMode, Command: d.EnterConfig},
			Step{Kind: KindPushLines, Lines: staged},
			Step{Kind: KindCommit, Command: d.Commit},
			Step{Kind: KindCapture, Command: verifyCommand, Expect: staged},
			Step{Kind: KindExitConfigMode, Command: d.ExitConfig, BestEffort: true},
		),
	}
}

func pagingSteps(d Dialect) []Step {
	if d.DisablePaging == "" {
		return nil
	}
	return []Step{{Kind: KindSendRaw, Command: d.DisablePaging, BestEffort: true}}
}
