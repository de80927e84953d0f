package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

// Console serializes operator output so lines from concurrent workers never
// interleave.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// Progress prints one line per finished device.
func (c *Console) Progress(o dm.Outcome) {
	if o.Error == "" {
		c.Printf("[%s] OK\n", o.Host)
		return
	}
	c.Printf("[%s] FAIL - %s\n", o.Host, oneLine(o.Error))
}

// Summary prints the totals and the host lists that need attention.
func (c *Console) Summary(rs *dm.ResultSet) {
	var b strings.Builder
	WriteSummary(&b, rs)
	c.Printf("%s", b.String())
}

func WriteSummary(w io.Writer, rs *dm.ResultSet) {
	s := rs.Summarize()
	if rs.Mode() == dm.ModeRemediate {
		fmt.Fprintln(w, "\nRemediation summary")
		fmt.Fprintf(w, "  Total:       %d\n", s.Total)
		fmt.Fprintf(w, "  Reachable:   %d\n", s.Reachable)
		fmt.Fprintf(w, "  Unreachable: %d\n", s.Unreachable)
		fmt.Fprintf(w, "  Committed:   %d\n", s.Succeeded)
		fmt.Fprintf(w, "  Verified:    %d\n", s.Verified)
		fmt.Fprintf(w, "  Failed:      %d\n", len(s.Failed))
		hostList(w, "Failed", s.Failed)
		hostList(w, "Committed but not verified", s.Unverified)
		hostList(w, "Unreachable", s.Down)
		return
	}
	fmt.Fprintln(w, "\nAudit summary")
	fmt.Fprintf(w, "  Total:       %d\n", s.Total)
	fmt.Fprintf(w, "  Reachable:   %d\n", s.Reachable)
	fmt.Fprintf(w, "  Unreachable: %d\n", s.Unreachable)
	fmt.Fprintf(w, "  Found:       %d\n", s.Succeeded)
	fmt.Fprintf(w, "  Missing:     %d\n", len(s.Missing))
	hostList(w, "Missing target", s.Missing)
	hostList(w, "Unreachable", s.Down)
}

func hostList(w io.Writer, title string, hosts []string) {
	if len(hosts) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, h := range hosts {
		fmt.Fprintf(w, "  %s\n", h)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
