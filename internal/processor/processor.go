// Package processor provides a modular framework for processing captured
// CLI output with configurable processor chains, plus the line matching
// used to classify audit and verification captures.
package processor

import (
	"fmt"
	"strings"
)

const (
	ProcessorTypeTrim          string = "trim"
	ProcessorTypeCollapseSpace string = "collapse_space"
	ProcessorTypeDropEmpty     string = "drop_empty"
	ProcessorTypeStripCR       string = "strip_cr"
)

// Processor defines the interface for processing string slices.
type Processor interface {
	// Process applies the processor's logic to the input lines.
	Process([]string) ([]string, error)
	Name() string
}

// ProcessorChain manages a collection of processors and applies them in sequence.
type ProcessorChain struct {
	processors        map[string]Processor
	allowEmptyResults bool
}

func NewProcessorChain() *ProcessorChain {
	pc := &ProcessorChain{
		processors:        make(map[string]Processor),
		allowEmptyResults: true,
	}
	pc.registerDefaults()
	return pc
}

func (pc *ProcessorChain) registerDefaults() {
	pc.Register(&TrimProcessor{})
	pc.Register(&CollapseSpaceProcessor{})
	pc.Register(&DropEmptyProcessor{})
	pc.Register(&StripCRProcessor{})
}

// Register adds a processor to the chain.
func (pc *ProcessorChain) Register(p Processor) {
	pc.processors[p.Name()] = p
}

// Process applies the named processors to the input lines in order.
func (pc *ProcessorChain) Process(lines []string, processorNames ...string) ([]string, error) {
	for _, name := range processorNames {
		if _, exists := pc.processors[name]; !exists {
			return nil, fmt.Errorf("processor %q not registered", name)
		}
	}
	if len(lines) == 0 {
		return lines, nil
	}
	result := lines
	for _, name := range processorNames {
		var err error
		result, err = pc.processors[name].Process(result)
		if err != nil {
			return nil, fmt.Errorf("%s processor failed: %w", name, err)
		}
		if len(result) == 0 && !pc.allowEmptyResults {
			break
		}
	}
	return result, nil
}

// TrimProcessor trims whitespace from each line in the input.
type TrimProcessor struct{}

func (p *TrimProcessor) Name() string { return ProcessorTypeTrim }
func (p *TrimProcessor) Process(lines []string) ([]string, error) {
	trimmed := make([]string, len(lines))
	for i, line := range lines {
		trimmed[i] = strings.TrimSpace(line)
	}
	return trimmed, nil
}

// CollapseSpaceProcessor replaces every whitespace run with a single space
// and trims the ends.
type CollapseSpaceProcessor struct{}

func (p *CollapseSpaceProcessor) Name() string { return ProcessorTypeCollapseSpace }
func (p *CollapseSpaceProcessor) Process(lines []string) ([]string, error) {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Normalize(line)
	}
	return out, nil
}

// DropEmptyProcessor removes blank lines.
type DropEmptyProcessor struct{}

func (p *DropEmptyProcessor) Name() string { return ProcessorTypeDropEmpty }
func (p *DropEmptyProcessor) Process(lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// StripCRProcessor removes carriage returns left by PTY output.
type StripCRProcessor struct{}

func (p *StripCRProcessor) Name() string { return ProcessorTypeStripCR }
func (p *StripCRProcessor) Process(lines []string) ([]string, error) {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.ReplaceAll(line, "\r", "")
	}
	return out, nil
}
