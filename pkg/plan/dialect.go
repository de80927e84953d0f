package plan

import (
	"regexp"
	"strings"
)

// Dialect holds the CLI strings of one network OS.
type Dialect struct {
	Name           string   `yaml:"name" json:"name" validate:"required"`
	DisablePaging  string   `yaml:"disablePaging" json:"disablePaging"`
	EnterConfig    string   `yaml:"enterConfig" json:"enterConfig" validate:"required"`
	ExitConfig     string   `yaml:"exitConfig" json:"exitConfig" validate:"required"`
	Commit         string   `yaml:"commit" json:"commit" validate:"required"`
	CommitMarker   string   `yaml:"commitMarker" json:"commitMarker" validate:"required"`
	DiscardChanges string   `yaml:"discardChanges" json:"discardChanges"`
	RejectMarkers  []string `yaml:"rejectMarkers" json:"rejectMarkers" validate:"dive,required"`
	Prompt         string   `yaml:"prompt" json:"prompt" validate:"required,regexp"`
}

// Junos is the default dialect.
func Junos() Dialect {
	return Dialect{
		Name:           "junos",
		DisablePaging:  "set cli screen-length 0",
		EnterConfig:    "configure",
		ExitConfig:     "exit configuration-mode",
		Commit:         "commit",
		CommitMarker:   "commit complete",
		DiscardChanges: "rollback 0",
		RejectMarkers:  []string{"syntax error", "unknown command", "error:"},
		Prompt:         `(?m)^[\w.\-@()/:~\[\] ]*[>#%] ?$`,
	}
}

// PromptRegexp compiles the prompt pattern. Dialects are validated before
// use, so the error only surfaces for hand-built values.
func (d Dialect) PromptRegexp() (*regexp.Regexp, error) {
	return regexp.Compile(d.Prompt)
}

// Confirmed reports whether a commit response carries the commit marker.
func (d Dialect) Confirmed(response string) bool {
	return strings.Contains(strings.ToLower(response), strings.ToLower(d.CommitMarker))
}

// Rejected returns the first response line carrying a reject marker.
func (d Dialect) Rejected(response string) (string, bool) {
	for _, line := range strings.Split(response, "\n") {
		lower := strings.ToLower(line)
		for _, m := range d.RejectMarkers {
			if strings.Contains(lower, strings.ToLower(m)) {
				return strings.TrimSpace(line), true
			}
		}
	}
	return "", false
}
