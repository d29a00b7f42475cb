// Package output provides output formatting for the inspectpack CLI.
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
	FormatTSV   Format = "tsv"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "text", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "tsv":
		return FormatTSV, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml, tsv)", s)
	}
}

// Structured reports whether the format serializes whole values rather than rows
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Formatter formats output in various formats
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewFormatter creates a new formatter writing to stdout
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Print outputs a value. Table and tsv formats fall back to JSON for values without rows.
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	switch f.Format {
	case FormatYAML:
		return f.printYAML(data)
	default:
		return f.printJSON(data)
	}
}

func (f *Formatter) printJSON(data interface{}) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// PrintTable prints rows in the configured format
func (f *Formatter) PrintTable(data TableData) error {
	if f.Quiet {
		return nil
	}

	switch f.Format {
	case FormatJSON, FormatYAML:
		return f.Print(data.records())
	case FormatTSV:
		return f.printTSV(data)
	}

	if data.Title != "" {
		if _, err := fmt.Fprintf(f.Writer, "\n%s\n", data.Title); err != nil {
			return err
		}
	}
	if len(data.Rows) == 0 {
		_, err := fmt.Fprintln(f.Writer, "  (none)")
		return err
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
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

	table.AppendBulk(data.Rows)
	table.Render()
	return nil
}

// printTSV writes one line per row; tabs and newlines inside cells become spaces
func (f *Formatter) printTSV(data TableData) error {
	var b strings.Builder
	if !f.NoHeaders && len(data.Headers) > 0 {
		writeTSVLine(&b, data.Headers)
	}
	for _, row := range data.Rows {
		writeTSVLine(&b, row)
	}
	_, err := io.WriteString(f.Writer, b.String())
	return err
}

var tsvEscaper = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

func writeTSVLine(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(tsvEscaper.Replace(cell))
	}
	b.WriteByte('\n')
}

// records converts rows to header-keyed maps
func (data TableData) records() []map[string]string {
	rows := make([]map[string]string, len(data.Rows))
	for i, row := range data.Rows {
		rowMap := make(map[string]string, len(row))
		for j, cell := range row {
			if j < len(data.Headers) {
				rowMap[data.Headers[j]] = cell
			}
		}
		rows[i] = rowMap
	}
	return rows
}

// PrintInfo prints an informational line
func (f *Formatter) PrintInfo(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintWarning prints a warning to ErrWriter
func (f *Formatter) PrintWarning(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.ErrWriter, "Warning:", message)
}
