// Package output renders markwell CLI results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Formatter writes command results in one format
type Formatter struct {
	Format    Format
	NoHeaders bool
	Writer    io.Writer
}

// NewFormatter creates a formatter writing to stdout
func NewFormatter(format Format, noHeaders bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Writer:    os.Stdout,
	}
}

// Print writes data as JSON or YAML. Table mode has no generic layout and
// falls back to JSON.
func (f *Formatter) Print(data interface{}) error {
	if f.Format == FormatYAML {
		encoder := yaml.NewEncoder(f.Writer)
		encoder.SetIndent(2)
		defer func() { _ = encoder.Close() }()
		return encoder.Encode(data)
	}

	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Table is tabular output; in JSON and YAML modes it becomes a list of
// objects keyed by header
type Table struct {
	Headers []string
	Rows    [][]string
}

// PrintTable renders t
func (f *Formatter) PrintTable(t Table) error {
	if f.Format != FormatTable {
		rows := make([]map[string]string, 0, len(t.Rows))
		for _, row := range t.Rows {
			m := make(map[string]string, len(row))
			for j, cell := range row {
				if j < len(t.Headers) {
					m[strings.ToLower(t.Headers[j])] = cell
				}
			}
			rows = append(rows, m)
		}
		return f.Print(rows)
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(t.Headers) > 0 {
		table.SetHeader(t.Headers)
	}

	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(t.Rows)
	table.Render()
	return nil
}

// Field is one line of a key/value report
type Field struct {
	Key   string
	Value string
}

// PrintFields renders an ordered key/value report, as "key: value" lines in
// table mode and as a single object otherwise
func (f *Formatter) PrintFields(fields []Field) error {
	if f.Format != FormatTable {
		m := make(map[string]string, len(fields))
		for _, fl := range fields {
			m[fl.Key] = fl.Value
		}
		return f.Print(m)
	}

	width := 0
	for _, fl := range fields {
		if len(fl.Key) > width {
			width = len(fl.Key)
		}
	}
	for _, fl := range fields {
		if _, err := fmt.Fprintf(f.Writer, "%-*s  %s\n", width+1, fl.Key+":", fl.Value); err != nil {
			return err
		}
	}
	return nil
}

// PrintSuccess prints a one-line confirmation in table mode only
func (f *Formatter) PrintSuccess(message string) {
	if f.Format == FormatTable {
		_, _ = fmt.Fprintln(f.Writer, message)
	}
}
