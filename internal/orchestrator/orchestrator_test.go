package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/confaudit/internal/lg"
	"github.com/andrej220/confaudit/internal/orchestrator"
	ex "github.com/andrej220/confaudit/pkg/executor"
	"github.com/andrej220/confaudit/pkg/plan"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

const (
	showCmd = "show configuration firewall family inet | display set | no-more"
	target  = "set firewall family inet filter controlplane-filter term snmp_allow_in"
)

// scriptedTransport answers the audit command per host. Hosts listed in down
// refuse the connection; hosts in broken drop the session mid-read.
type scriptedTransport struct {
	configs map[string]string
	down    map[string]bool
	broken  map[string]bool
	delay   time.Duration

	open, peak int32
	mu         sync.Mutex
	opened     []string
}

type scriptedSession struct {
	t      *scriptedTransport
	host   string
	closed int32
}

func (s *scriptedTransport) Open(_ context.Context, host string, _ ex.Credentials, _ ex.Timeouts) (ex.Session, error) {
	s.mu.Lock()
	s.opened = append(s.opened, host)
	s.mu.Unlock()
	if s.down[host] {
		return nil, &ex.TransportError{Op: "connect", Host: host, Err: errors.New("connection refused")}
	}
	n := atomic.AddInt32(&s.open, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	return &scriptedSession{t: s, host: host}, nil
}

func (s *scriptedSession) Send(_ context.Context, command string) (string, error) {
	time.Sleep(s.t.delay)
	if command != showCmd {
		return "", nil
	}
	if s.t.broken[s.host] {
		return "", &ex.TransportError{Op: "read", Host: s.host, Err: ex.ErrSessionClosed}
	}
	return s.t.configs[s.host], nil
}

func (s *scriptedSession) Close() error {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		atomic.AddInt32(&s.t.open, -1)
	}
	return nil
}

func devices(hosts ...string) []dm.Device {
	out := make([]dm.Device, len(hosts))
	for i, h := range hosts {
		out[i] = dm.Device{Host: h, Index: i}
	}
	return out
}

func auditPlan() *plan.Plan { return plan.NewAuditPlan(plan.Junos(), showCmd, target) }

func TestRunEmptyDeviceList(t *testing.T) {
	tr := &scriptedTransport{}
	rs, err := orchestrator.New(tr).Run(context.Background(), nil, auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.ErrorIs(t, err, orchestrator.ErrNoDevices)
	assert.Nil(t, rs)
	assert.Empty(t, tr.opened)
}

func TestRunScenarioA(t *testing.T) {
	tr := &scriptedTransport{
		configs: map[string]string{
			"r1": target + " from source-address 10.0.0.0/24",
			"r2": "set system host-name r2",
		},
		down: map[string]bool{"r3": true},
	}

	var progress []string
	o := orchestrator.New(tr,
		orchestrator.WithWorkers(2),
		orchestrator.WithProgress(func(out dm.Outcome) { progress = append(progress, out.Host) }),
		orchestrator.WithLogger(lg.Discard),
	)
	rs, err := o.Run(context.Background(), devices("r1", "r2", "r3"), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	require.True(t, rs.Sealed())
	require.Equal(t, 3, rs.Len())
	assert.NotEmpty(t, o.RunID())

	got := rs.Sorted()
	assert.Equal(t, "r1", got[0].Host)
	assert.True(t, got[0].Reachable)
	assert.True(t, got[0].OperationSucceeded)
	assert.Equal(t, 1, got[0].MatchCount)

	assert.True(t, got[1].Reachable)
	assert.False(t, got[1].OperationSucceeded)
	assert.Empty(t, got[1].Error)

	assert.False(t, got[2].Reachable)
	assert.Contains(t, got[2].Error, "connection refused")

	sort.Strings(progress)
	assert.Equal(t, []string{"r1", "r2", "r3"}, progress)
	assert.Zero(t, atomic.LoadInt32(&tr.open), "every session closed")
}

func TestRunKeepsDuplicates(t *testing.T) {
	tr := &scriptedTransport{configs: map[string]string{"r1": target}}
	rs, err := orchestrator.New(tr, orchestrator.WithWorkers(4)).
		Run(context.Background(), devices("r1", "r1", "r1"), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Len())
	assert.Len(t, tr.opened, 3)
}

func TestRunIsolatesFaults(t *testing.T) {
	hosts := make([]string, 20)
	configs := map[string]string{}
	for i := range hosts {
		hosts[i] = fmt.Sprintf("r%02d", i)
		configs[hosts[i]] = target
	}
	clean := &scriptedTransport{configs: configs}
	faulty := &scriptedTransport{configs: configs, broken: map[string]bool{"r05": true}}

	want, err := orchestrator.New(clean, orchestrator.WithWorkers(5)).
		Run(context.Background(), devices(hosts...), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	got, err := orchestrator.New(faulty, orchestrator.WithWorkers(5)).
		Run(context.Background(), devices(hosts...), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)

	w, g := want.Sorted(), got.Sorted()
	require.Len(t, g, len(w))
	for i := range w {
		w[i].Elapsed, g[i].Elapsed = 0, 0
		if w[i].Host == "r05" {
			assert.False(t, g[i].Reachable)
			assert.Zero(t, g[i].MatchCount)
			assert.NotEmpty(t, g[i].Error)
			continue
		}
		assert.Equal(t, w[i], g[i])
	}
}

func TestRunBoundsOpenSessions(t *testing.T) {
	hosts := make([]string, 12)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("r%02d", i)
	}
	tr := &scriptedTransport{delay: 2 * time.Millisecond}

	rs, err := orchestrator.New(tr, orchestrator.WithWorkers(3)).
		Run(context.Background(), devices(hosts...), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	assert.Equal(t, 12, rs.Len())
	assert.LessOrEqual(t, atomic.LoadInt32(&tr.peak), int32(3))
}

type panickyTask struct{}

func (panickyTask) Execute(context.Context) dm.Outcome { panic("worker bug") }

func TestRunConvertsPanics(t *testing.T) {
	tr := &scriptedTransport{configs: map[string]string{"r1": target}}
	var calls int32
	factory := func(dev dm.Device, _ *plan.Plan, _ ex.Credentials, _ ex.Timeouts, _ lg.Logger) ex.Task[dm.Outcome] {
		atomic.AddInt32(&calls, 1)
		if dev.Host == "r2" {
			return panickyTask{}
		}
		return staticTask{dm.Outcome{Host: dev.Host, Reachable: true, OperationSucceeded: true, MatchCount: 1}}
	}

	rs, err := orchestrator.New(tr, orchestrator.WithWorkers(2), orchestrator.WithTaskFactory(factory)).
		Run(context.Background(), devices("r1", "r2", "r3"), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	require.Equal(t, 3, rs.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	got := rs.Sorted()
	assert.Equal(t, "r2", got[1].Host)
	assert.False(t, got[1].Reachable)
	assert.Contains(t, got[1].Error, "worker bug")
}

type staticTask struct{ out dm.Outcome }

func (s staticTask) Execute(context.Context) dm.Outcome { return s.out }

func TestRunInterruptedStillAccountsForEveryDevice(t *testing.T) {
	tr := &scriptedTransport{configs: map[string]string{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs, err := orchestrator.New(tr, orchestrator.WithWorkers(2)).
		Run(ctx, devices("r1", "r2", "r3", "r4"), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	assert.Equal(t, 4, rs.Len())
	assert.Empty(t, tr.opened)
	for _, out := range rs.Outcomes() {
		assert.Contains(t, out.Error, "interrupted")
	}
}

func TestRunProgressPanicDoesNotLoseOutcome(t *testing.T) {
	tr := &scriptedTransport{configs: map[string]string{"r1": target}}
	rs, err := orchestrator.New(tr, orchestrator.WithProgress(func(dm.Outcome) { panic("console gone") })).
		Run(context.Background(), devices("r1", "r2"), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
}

func TestRunFixedRunID(t *testing.T) {
	o := orchestrator.New(&scriptedTransport{}, orchestrator.WithRunID("run-42"))
	_, err := o.Run(context.Background(), devices("r1"), auditPlan(), ex.Credentials{}, ex.AuditTimeouts())
	require.NoError(t, err)
	assert.Equal(t, "run-42", o.RunID())
}
