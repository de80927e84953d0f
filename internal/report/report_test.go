package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/confaudit/internal/lg"
	"github.com/andrej220/confaudit/internal/report"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

func resultSet(mode dm.Mode, outcomes ...dm.Outcome) *dm.ResultSet {
	rs := dm.NewResultSet(mode, len(outcomes))
	for _, o := range outcomes {
		_ = rs.Add(o)
	}
	rs.Seal()
	return rs
}

func scenarioA() *dm.ResultSet {
	return resultSet(dm.ModeAudit,
		dm.Outcome{Host: "r2", Reachable: true},
		dm.Outcome{Host: "r1", Reachable: true, OperationSucceeded: true, MatchCount: 1},
	)
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestDeriveListPaths(t *testing.T) {
	have, missing := report.DeriveListPaths("out/audit.csv")
	assert.Equal(t, "out/audit_have.txt", have)
	assert.Equal(t, "out/audit_missing.txt", missing)

	have, _ = report.DeriveListPaths("results")
	assert.Equal(t, "results_have.txt", have)
}

func TestWriteScenarioA(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "reports", "audit.csv")

	written, err := report.Write(scenarioA(), "run-1", report.Paths{CSV: csvPath})
	require.NoError(t, err)
	assert.Len(t, written, 3)

	assert.Equal(t,
		"host,reachable,found,matches,error\nr1,true,true,1,\nr2,true,false,0,\n",
		read(t, csvPath))
	assert.Equal(t, "r1\n", read(t, filepath.Join(dir, "reports", "audit_have.txt")))
	assert.Equal(t, "r2\n", read(t, filepath.Join(dir, "reports", "audit_missing.txt")))
}

func TestWriteScenarioB(t *testing.T) {
	dir := t.TempDir()
	rs := resultSet(dm.ModeAudit, dm.Outcome{Host: "r3", Error: "connect r3: i/o timeout"})

	_, err := report.Write(rs, "run-1", report.Paths{
		CSV:     filepath.Join(dir, "a.csv"),
		Have:    filepath.Join(dir, "have.txt"),
		Missing: filepath.Join(dir, "missing.txt"),
	})
	require.NoError(t, err)

	assert.Equal(t, "host,reachable,found,matches,error\nr3,false,false,0,connect r3: i/o timeout\n", read(t, filepath.Join(dir, "a.csv")))
	assert.Empty(t, read(t, filepath.Join(dir, "have.txt")))
	assert.Empty(t, read(t, filepath.Join(dir, "missing.txt")))

	var out bytes.Buffer
	report.WriteSummary(&out, rs)
	assert.Contains(t, out.String(), "Unreachable: 1")
	assert.Contains(t, out.String(), "Unreachable:\n  r3\n")
	assert.NotContains(t, out.String(), "Missing target")
}

func TestRemediationRowsAndSummary(t *testing.T) {
	rs := resultSet(dm.ModeRemediate,
		dm.Outcome{Host: "r6", Reachable: true, OperationSucceeded: true, Verified: false, Missing: []string{"set x"}},
		dm.Outcome{Host: "r4", Reachable: true, OperationSucceeded: true, Verified: true},
		dm.Outcome{Host: "r5", Reachable: true},
		dm.Outcome{Host: "r7", Error: "auth r7: authentication failed"},
	)

	assert.Equal(t, [][]string{
		{"host", "reachable", "committed", "verified", "error"},
		{"r4", "true", "true", "true", ""},
		{"r5", "true", "false", "false", ""},
		{"r6", "true", "true", "false", ""},
		{"r7", "false", "false", "false", "auth r7: authentication failed"},
	}, report.Rows(rs))

	var out bytes.Buffer
	report.WriteSummary(&out, rs)
	s := out.String()
	assert.Contains(t, s, "Committed:   2")
	assert.Contains(t, s, "Verified:    1")
	assert.Contains(t, s, "Failed:\n  r5\n")
	assert.Contains(t, s, "Committed but not verified:\n  r6\n")
	assert.Contains(t, s, "Unreachable:\n  r7\n")
}

func TestRemediationWritesNoLists(t *testing.T) {
	dir := t.TempDir()
	rs := resultSet(dm.ModeRemediate, dm.Outcome{Host: "r4", Reachable: true, OperationSucceeded: true, Verified: true})

	written, err := report.Write(rs, "run-1", report.Paths{CSV: filepath.Join(dir, "remediation.csv")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "remediation.csv")}, written)
}

func TestWriteJSONDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	_, err := report.Write(scenarioA(), "run-7", report.Paths{JSON: path, Have: "", Missing: ""})
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(read(t, path)), &doc))
	assert.Equal(t, "run-7", doc.RunID)
	assert.Equal(t, dm.ModeAudit, doc.Mode)
	require.Len(t, doc.Outcomes, 2)
	assert.Equal(t, "r1", doc.Outcomes[0].Host)
	assert.Equal(t, 2, doc.Summary.Total)
}

func TestWriteRefusesOpenSet(t *testing.T) {
	rs := dm.NewResultSet(dm.ModeAudit, 1)
	_ = rs.Add(dm.Outcome{Host: "r1"})
	_, err := report.Write(rs, "run-1", report.Paths{CSV: filepath.Join(t.TempDir(), "a.csv")})
	assert.ErrorIs(t, err, report.ErrNotSealed)
}

func TestHostListsDeduplicate(t *testing.T) {
	rs := resultSet(dm.ModeAudit,
		dm.Outcome{Host: "r1", Reachable: true, OperationSucceeded: true},
		dm.Outcome{Host: "r1", Reachable: true, OperationSucceeded: true},
		dm.Outcome{Host: "r0", Reachable: true},
	)
	have, missing := report.HostLists(rs)
	assert.Equal(t, []string{"r1"}, have)
	assert.Equal(t, []string{"r0"}, missing)
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	c := report.NewConsole(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Progress(dm.Outcome{Host: "r1", Reachable: true})
			c.Progress(dm.Outcome{Host: "r2", Error: "read r2:\n  session closed"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 100)
	for _, l := range lines {
		assert.Contains(t, []string{"[r1] OK", "[r2] FAIL - read r2: session closed"}, l)
	}
}

type recordingSink struct {
	name  string
	err   error
	delay time.Duration

	mu    sync.Mutex
	got   []dm.Outcome
	ctxOK bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, _ string, _ dm.Mode, outcomes []dm.Outcome) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = outcomes
	s.ctxOK = ctx.Err() == nil
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestPublishAll(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}

	err := report.PublishAll(context.Background(), []report.Sink{good, bad}, "run-1", scenarioA(), lg.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: broker down")
	assert.Len(t, good.got, 2)
	assert.Len(t, bad.got, 2)

	assert.NoError(t, report.PublishAll(context.Background(), nil, "run-1", scenarioA(), lg.Discard))
	assert.NoError(t, report.CloseAll([]report.Sink{good, bad}))
}

func TestPublishAllFailureDoesNotCancelOtherSinks(t *testing.T) {
	slow := &recordingSink{name: "slow", delay: 50 * time.Millisecond}
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}
	worse := &recordingSink{name: "worse", err: errors.New("auth failed")}

	err := report.PublishAll(context.Background(), []report.Sink{bad, slow, worse}, "run-1", scenarioA(), lg.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: broker down")
	assert.Contains(t, err.Error(), "worse: auth failed")
	assert.True(t, slow.ctxOK, "a failing sink leaves the others' context alone")
	assert.Len(t, slow.got, 2)
}
