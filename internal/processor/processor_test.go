package processor

import (
	"reflect"
	"testing"
)

func TestTrimProcessor(t *testing.T) {
	p := &TrimProcessor{}
	input := []string{"  hello    ", " world "}
	expected := []string{"hello", "world"}
	result, err := p.Process(input)
	if err != nil {
		t.Fatalf("TrimProcessor failed: %v", err)
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("TrimProcessor: got %v, want %v", result, expected)
	}
}

func TestCollapseSpaceProcessor(t *testing.T) {
	p := &CollapseSpaceProcessor{}
	input := []string{"set  firewall\tfamily   inet ", ""}
	expected := []string{"set firewall family inet", ""}
	result, err := p.Process(input)
	if err != nil {
		t.Fatalf("CollapseSpaceProcessor failed: %v", err)
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("CollapseSpaceProcessor: got %v, want %v", result, expected)
	}
}

func TestProcessorChain(t *testing.T) {
	pc := NewProcessorChain()
	input := []string{"line one\r", "   ", "  line   two  "}
	expected := []string{"line one", "line two"}
	result, err := pc.Process(input, ProcessorTypeStripCR, ProcessorTypeCollapseSpace, ProcessorTypeDropEmpty)
	if err != nil {
		t.Fatalf("ProcessorChain failed: %v", err)
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("ProcessorChain: got %v, want %v", result, expected)
	}
}

func TestProcessorChainEdgeCases(t *testing.T) {
	pc := NewProcessorChain()

	t.Run("unknown processor", func(t *testing.T) {
		if _, err := pc.Process([]string{"x"}, "nope"); err == nil {
			t.Fatal("expected error for unregistered processor")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		result, err := pc.Process([]string{}, ProcessorTypeTrim)
		if err != nil {
			t.Fatalf("ProcessorChain failed: %v", err)
		}
		if len(result) != 0 {
			t.Errorf("expected empty result, got %v", result)
		}
	})
}
