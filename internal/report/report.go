// Package report turns a sealed result set into the artifacts an operator
// reads: the CSV report, the audit host lists, an optional JSON document,
// and the console summary.
package report

import (
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andrej220/confaudit/pkg/persistence"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

var ErrNotSealed = errors.New("result set is still being written")

var (
	auditHeader       = []string{"host", "reachable", "found", "matches", "error"}
	remediationHeader = []string{"host", "reachable", "committed", "verified", "error"}
)

// Paths lists the files a run writes. Empty entries are skipped, except
// that audit lists default to names derived from CSV.
type Paths struct {
	CSV     string
	Have    string
	Missing string
	JSON    string
}

// DeriveListPaths places <stem>_have.txt and <stem>_missing.txt next to the
// CSV report.
func DeriveListPaths(csvPath string) (have, missing string) {
	stem := strings.TrimSuffix(csvPath, filepath.Ext(csvPath))
	return stem + "_have.txt", stem + "_missing.txt"
}

// Rows renders the CSV report, header first, devices sorted by host.
func Rows(rs *dm.ResultSet) [][]string {
	outcomes := rs.Sorted()
	rows := make([][]string, 0, len(outcomes)+1)
	if rs.Mode() == dm.ModeRemediate {
		rows = append(rows, remediationHeader)
		for _, o := range outcomes {
			rows = append(rows, []string{
				o.Host,
				strconv.FormatBool(o.Reachable),
				strconv.FormatBool(o.OperationSucceeded),
				strconv.FormatBool(o.Verified),
				o.Error,
			})
		}
		return rows
	}
	rows = append(rows, auditHeader)
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.Host,
			strconv.FormatBool(o.Reachable),
			strconv.FormatBool(o.OperationSucceeded),
			strconv.Itoa(o.MatchCount),
			o.Error,
		})
	}
	return rows
}

// HostLists splits reachable audit hosts into those carrying the target and
// those without it. Unreachable hosts appear in neither list.
func HostLists(rs *dm.ResultSet) (have, missing []string) {
	seenHave, seenMissing := map[string]bool{}, map[string]bool{}
	for _, o := range rs.Sorted() {
		if !o.Reachable {
			continue
		}
		if o.OperationSucceeded {
			if !seenHave[o.Host] {
				seenHave[o.Host] = true
				have = append(have, o.Host)
			}
			continue
		}
		if !seenMissing[o.Host] {
			seenMissing[o.Host] = true
			missing = append(missing, o.Host)
		}
	}
	sort.Strings(have)
	sort.Strings(missing)
	return have, missing
}

// Document is the JSON form of a run.
type Document struct {
	RunID    string       `json:"runId"`
	Mode     dm.Mode      `json:"mode"`
	Written  time.Time    `json:"written"`
	Summary  dm.Summary   `json:"summary"`
	Outcomes []dm.Outcome `json:"outcomes"`
}

func NewDocument(runID string, rs *dm.ResultSet) Document {
	return Document{
		RunID:    runID,
		Mode:     rs.Mode(),
		Written:  time.Now().UTC(),
		Summary:  rs.Summarize(),
		Outcomes: rs.Sorted(),
	}
}

// Write produces every artifact named in paths and returns the files
// written, in order. It refuses a set that is not sealed.
func Write(rs *dm.ResultSet, runID string, paths Paths) ([]string, error) {
	if !rs.Sealed() {
		return nil, ErrNotSealed
	}
	var written []string
	if paths.CSV != "" {
		if err := persistence.WriteCSV(Rows(rs), paths.CSV); err != nil {
			return written, err
		}
		written = append(written, paths.CSV)
	}

	if rs.Mode() == dm.ModeAudit {
		havePath, missingPath := paths.Have, paths.Missing
		if paths.CSV != "" {
			dh, dmiss := DeriveListPaths(paths.CSV)
			if havePath == "" {
				havePath = dh
			}
			if missingPath == "" {
				missingPath = dmiss
			}
		}
		have, missing := HostLists(rs)
		for _, f := range []struct {
			path  string
			hosts []string
		}{{havePath, have}, {missingPath, missing}} {
			if f.path == "" {
				continue
			}
			if err := persistence.WriteLines(f.hosts, f.path); err != nil {
				return written, err
			}
			written = append(written, f.path)
		}
	}

	if paths.JSON != "" {
		if err := persistence.WriteJSON(NewDocument(runID, rs), paths.JSON); err != nil {
			return written, err
		}
		written = append(written, paths.JSON)
	}
	return written, nil
}
