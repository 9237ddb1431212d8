// Package output renders CLI results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents the output format type.
type Format string

const (
	// FormatTable outputs data in a formatted table.
	FormatTable Format = "table"
	// FormatJSON outputs data as JSON.
	FormatJSON Format = "json"
	// FormatYAML outputs data as YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat parses a string into a Format, returning an error if invalid.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Printer writes results in one format.
type Printer struct {
	out    io.Writer
	format Format
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer, format Format) *Printer {
	return &Printer{out: out, format: format}
}

// Format returns the printer's output format.
func (p *Printer) Format() Format {
	return p.format
}

// Print writes data. Tables are drawn from table; JSON and YAML marshal
// data itself, so machine output keeps every field the table leaves out.
func (p *Printer) Print(data any, table TableRenderer) error {
	switch p.format {
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	case FormatTable:
		if table == nil {
			return PrintJSON(p.out, data)
		}
		return PrintTable(p.out, table)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// PrintList is Print for collections: an empty table prints emptyMsg.
func (p *Printer) PrintList(data any, n int, emptyMsg string, table TableRenderer) error {
	if n == 0 && p.format == FormatTable {
		_, err := fmt.Fprintln(p.out, emptyMsg)
		return err
	}
	return p.Print(data, table)
}

// Message prints msg in table mode only, so JSON and YAML stay parseable.
func (p *Printer) Message(format string, args ...any) {
	if p.format == FormatTable {
		_, _ = fmt.Fprintf(p.out, format+"\n", args...)
	}
}

// PrintJSON writes data as indented JSON.
func PrintJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// PrintYAML writes data as YAML. Values go through their JSON encoding
// first so field names and enum spellings match the API.
func PrintYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(generic)
}
