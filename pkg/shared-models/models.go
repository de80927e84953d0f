package datamodels

import (
	"errors"
	"sort"
	"sync"
	"time"
)

type Mode string

const (
	ModeAudit     Mode = "audit"
	ModeRemediate Mode = "remediate"
)

var ErrSealed = errors.New("result set is sealed")

// Device is one entry of the host list. Index is the position in that list,
// which keeps repeated hosts distinguishable.
type Device struct {
	Host  string `json:"host"`
	Index int    `json:"index"`
}

// Outcome is the result of one device execution. It is built once by the
// device worker and never modified afterwards.
type Outcome struct {
	Host               string        `json:"host" bson:"host"`
	Reachable          bool          `json:"reachable" bson:"reachable"`
	OperationSucceeded bool          `json:"operationSucceeded" bson:"operationSucceeded"`
	Verified           bool          `json:"verified" bson:"verified"`
	MatchCount         int           `json:"matchCount" bson:"matchCount"`
	Error              string        `json:"error,omitempty" bson:"error,omitempty"`
	Missing            []string      `json:"missing,omitempty" bson:"missing,omitempty"`
	Elapsed            time.Duration `json:"elapsed" bson:"elapsed"`
}

// Failed reports whether the outcome needs operator attention in the given mode.
func (o Outcome) Failed(mode Mode) bool {
	if !o.Reachable || !o.OperationSucceeded {
		return true
	}
	return mode == ModeRemediate && !o.Verified
}

// ResultSet collects outcomes as workers complete. Add may be called from
// many goroutines; after Seal the set is read-only.
type ResultSet struct {
	mu       sync.Mutex
	mode     Mode
	outcomes []Outcome
	sealed   bool
}

func NewResultSet(mode Mode, capacity int) *ResultSet {
	return &ResultSet{mode: mode, outcomes: make([]Outcome, 0, capacity)}
}

func (rs *ResultSet) Mode() Mode { return rs.mode }

func (rs *ResultSet) Add(o Outcome) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.sealed {
		return ErrSealed
	}
	rs.outcomes = append(rs.outcomes, o)
	return nil
}

func (rs *ResultSet) Seal() {
	rs.mu.Lock()
	rs.sealed = true
	rs.mu.Unlock()
}

func (rs *ResultSet) Sealed() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.sealed
}

func (rs *ResultSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.outcomes)
}

// Outcomes returns a copy in completion order.
func (rs *ResultSet) Outcomes() []Outcome {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]Outcome, len(rs.outcomes))
	copy(out, rs.outcomes)
	return out
}

// Sorted returns a copy ordered by host name. Repeated hosts keep their
// completion order.
func (rs *ResultSet) Sorted() []Outcome {
	out := rs.Outcomes()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// Summary holds the totals shown to the operator.
type Summary struct {
	Total       int
	Reachable   int
	Unreachable int
	Succeeded   int // found (audit) or committed (remediate)
	Verified    int
	Missing     []string // reachable, target absent (audit)
	Failed      []string // reachable, commit not confirmed or step failed (remediate)
	Unverified  []string // committed but verification re-read incomplete (remediate)
	Down        []string // unreachable
}

func (rs *ResultSet) Summarize() Summary {
	var s Summary
	for _, o := range rs.Sorted() {
		s.Total++
		if !o.Reachable {
			s.Unreachable++
			s.Down = append(s.Down, o.Host)
			continue
		}
		s.Reachable++
		if o.OperationSucceeded {
			s.Succeeded++
		}
		if o.Verified {
			s.Verified++
		}
		switch rs.mode {
		case ModeAudit:
			if !o.OperationSucceeded {
				s.Missing = append(s.Missing, o.Host)
			}
		case ModeRemediate:
			if !o.OperationSucceeded {
				s.Failed = append(s.Failed, o.Host)
			} else if !o.Verified {
				s.Unverified = append(s.Unverified, o.Host)
			}
		}
	}
	return s
}
