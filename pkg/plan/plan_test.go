package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

const showFirewall = "show configuration firewall family inet | display set | no-more"

func TestNewAuditPlan(t *testing.T) {
	p := NewAuditPlan(Junos(), showFirewall, "set firewall family inet filter controlplane-filter")
	require.NoError(t, Validate(p))

	assert.Equal(t, dm.ModeAudit, p.Mode)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, KindSendRaw, p.Steps[0].Kind)
	assert.True(t, p.Steps[0].BestEffort)
	assert.Equal(t, KindCapture, p.Steps[1].Kind)
	assert.False(t, p.Steps[1].BestEffort)
}

func TestNewRemediationPlan(t *testing.T) {
	lines := []string{"set a", "set b"}
	p := NewRemediationPlan(Junos(), lines, "run "+showFirewall)
	require.NoError(t, Validate(p))

	kinds := make([]Kind, 0, len(p.Steps))
	for _, s := range p.Steps {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []Kind{
		KindSendRaw, KindEnterConfigMode, KindPushLines, KindCommit, KindCapture, KindExitConfigMode,
	}, kinds)
	assert.Equal(t, lines, p.Steps[4].Expect)
	assert.True(t, p.Steps[5].BestEffort)

	lines[0] = "mutated"
	assert.Equal(t, "set a", p.Steps[2].Lines[0], "plan must not alias caller lines")
}

func TestPlanWithoutPagingCommand(t *testing.T) {
	d := Junos()
	d.DisablePaging = ""
	p := NewAuditPlan(d, showFirewall, "x")
	require.Len(t, p.Steps, 1)
	assert.Equal(t, KindCapture, p.Steps[0].Kind)
}

func TestValidate(t *testing.T) {
	d := Junos()
	tests := []struct {
		name string
		plan *Plan
	}{
		{name: "nil plan", plan: nil},
		{name: "no steps", plan: &Plan{Name: "x", Mode: dm.ModeAudit, Dialect: d}},
		{name: "unknown kind", plan: &Plan{Name: "x", Mode: dm.ModeAudit, Dialect: d, Steps: []Step{{Kind: "reboot", Command: "x"}}}},
		{name: "bad mode", plan: &Plan{Name: "x", Mode: "other", Dialect: d, Steps: []Step{{Kind: KindSendRaw, Command: "x"}}}},
		{name: "audit without target", plan: NewAuditPlan(d, showFirewall, "  ")},
		{name: "capture without command", plan: NewAuditPlan(d, "", "x")},
		{name: "remediation without lines", plan: NewRemediationPlan(d, nil, showFirewall)},
		{
			name: "commit outside config mode",
			plan: &Plan{Name: "x", Mode: dm.ModeRemediate, Dialect: d, Steps: []Step{{Kind: KindCommit, Command: "commit"}}},
		},
		{
			name: "capture with target and expect",
			plan: &Plan{Name: "x", Mode: dm.ModeAudit, Dialect: d, Steps: []Step{
				{Kind: KindCapture, Command: "show", Target: "a", Expect: []string{"b"}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.plan))
		})
	}
}

func TestDialect(t *testing.T) {
	d := Junos()
	require.NoError(t, ValidateDialect(d))

	assert.True(t, d.Confirmed("commit complete\r\n"))
	assert.True(t, d.Confirmed("COMMIT COMPLETE"))
	assert.False(t, d.Confirmed("error: configuration check-out failed"))

	line, rejected := d.Rejected("set foo bar\n       ^\nsyntax error.\n")
	assert.True(t, rejected)
	assert.Equal(t, "syntax error.", line)

	_, rejected = d.Rejected("[edit]\n")
	assert.False(t, rejected)

	re, err := d.PromptRegexp()
	require.NoError(t, err)
	assert.True(t, re.MatchString("admin@r1> "))
	assert.True(t, re.MatchString("admin@r1# "))
	assert.True(t, re.MatchString("user@core-01.lab>"))
	assert.False(t, re.MatchString("set firewall family inet filter controlplane-filter"))

	bad := d
	bad.Prompt = "(["
	assert.Error(t, ValidateDialect(bad))
}
