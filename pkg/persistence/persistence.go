// Package persistence writes run artifacts to disk, with the encoding kept
// separate from the destination.
package persistence

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	indent = "    " // Default indentation for JSON output (4 spaces)
	prefix = ""     // Default prefix for JSON output
)

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	b, err := json.MarshalIndent(data, s.Prefix, s.Indent)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// CSVSerializer encodes a [][]string, header row first.
type CSVSerializer struct{}

func (CSVSerializer) Marshal(data any) ([]byte, error) {
	rows, ok := data.([][]string)
	if !ok {
		return nil, fmt.Errorf("csv: expected [][]string, got %T", data)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LinesSerializer encodes a []string as newline-terminated lines.
type LinesSerializer struct{}

func (LinesSerializer) Marshal(data any) ([]byte, error) {
	lines, ok := data.([]string)
	if !ok {
		return nil, fmt.Errorf("lines: expected []string, got %T", data)
	}
	if len(lines) == 0 {
		return []byte{}, nil
	}
	return []byte(strings.Join(lines, "\n") + "\n"), nil
}

// FileWriter creates missing parent directories and replaces the target
// through a rename so readers never see a half-written file.
type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// WriteToFile persists data to a destination using the provided Serializer and Writer.
func WriteToFile(data any, filename string, serializer Serializer, writer Writer) error {
	if filename == "" {
		return fmt.Errorf("invalid filename: %w", os.ErrInvalid)
	}

	b, err := serializer.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := writer.Write(filename, b); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// WriteJSON persists data as JSON to a file with default settings (overwrite enabled, 4-space indent).
func WriteJSON(data any, filename string) error {
	return WriteToFile(data, filename, JSONSerializer{Prefix: prefix, Indent: indent}, FileWriter{Overwrite: true})
}

func WriteCSV(rows [][]string, filename string) error {
	return WriteToFile(rows, filename, CSVSerializer{}, FileWriter{Overwrite: true})
}

func WriteLines(lines []string, filename string) error {
	return WriteToFile(lines, filename, LinesSerializer{}, FileWriter{Overwrite: true})
}
