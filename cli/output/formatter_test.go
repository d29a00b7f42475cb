package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"tsv", FormatTSV, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func sample() TableData {
	return TableData{
		Title:   "Modules",
		Headers: []string{"ID", "FILE"},
		Rows: [][]string{
			{"0", "./src/index.js"},
			{"1", "./src/a\tb.js"},
		},
	}
}

func newBufferFormatter(format Format) (*Formatter, *bytes.Buffer) {
	var buf bytes.Buffer
	f := NewFormatter(format, false, false)
	f.Writer = &buf
	f.ErrWriter = &bytes.Buffer{}
	return f, &buf
}

func TestPrintTable_TSV(t *testing.T) {
	f, buf := newBufferFormatter(FormatTSV)
	require.NoError(t, f.PrintTable(sample()))
	assert.Equal(t, "ID\tFILE\n0\t./src/index.js\n1\t./src/a b.js\n", buf.String())

	f.NoHeaders = true
	buf.Reset()
	require.NoError(t, f.PrintTable(sample()))
	assert.Equal(t, "0\t./src/index.js\n1\t./src/a b.js\n", buf.String())
}

func TestPrintTable_Table(t *testing.T) {
	f, buf := newBufferFormatter(FormatTable)
	require.NoError(t, f.PrintTable(sample()))
	out := buf.String()
	assert.Contains(t, out, "Modules")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "./src/index.js")

	buf.Reset()
	require.NoError(t, f.PrintTable(TableData{Title: "Duplicates", Headers: []string{"A"}}))
	assert.Contains(t, buf.String(), "(none)")
}

func TestPrintTable_Structured(t *testing.T) {
	f, buf := newBufferFormatter(FormatJSON)
	require.NoError(t, f.PrintTable(sample()))

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "./src/index.js", rows[0]["FILE"])

	f, buf = newBufferFormatter(FormatYAML)
	require.NoError(t, f.PrintTable(sample()))
	rows = nil
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, "0", rows[0]["ID"])
}

func TestQuiet(t *testing.T) {
	f, buf := newBufferFormatter(FormatTable)
	f.Quiet = true
	require.NoError(t, f.PrintTable(sample()))
	require.NoError(t, f.Print(map[string]int{"a": 1}))
	f.PrintInfo("hello")
	f.PrintWarning("careful")
	assert.Empty(t, buf.String())
}

func TestPrintWarning(t *testing.T) {
	f, buf := newBufferFormatter(FormatTSV)
	var errBuf bytes.Buffer
	f.ErrWriter = &errBuf

	f.PrintWarning("no modules found")
	assert.Empty(t, buf.String())
	assert.Equal(t, "Warning: no modules found\n", errBuf.String())
}
