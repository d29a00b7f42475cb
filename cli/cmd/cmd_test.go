package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranesandcaff/inspectpack/internal/engine"
)

const textBundle = "/* 0 */\n/***/ function(module, exports) {\nmodule.exports = 1;\n/***/ },\n/* 1 */\n/***/ function(module, exports) {\nconsole.log(\"hi\");\n/***/ }\n"

const yamlManifest = `modules:
  - id: 1
    identifier: ./node_modules/a/node_modules/one/index.js
    size: 19
    source: "module.exports = 1;"
  - id: 2
    identifier: ./node_modules/b/node_modules/one/index.js
    size: 19
    source: "module.exports = 1;"
  - id: 3
    identifier: ./src/index.js
    size: 15
    source: "require('one');"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSizes_TSV(t *testing.T) {
	bundlePath := writeFile(t, "bundle.js", textBundle)

	out, err := run(t, "sizes", bundlePath, "-o", "tsv", "--no-headers")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0\t0\t-\tcode\t19", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1\t1\t-\tcode\t"))
}

func TestDuplicates_YAMLManifestToJSON(t *testing.T) {
	manifestPath := writeFile(t, "stats.yaml", yamlManifest)

	out, err := run(t, "duplicates", "--manifest", manifestPath, "-o", "json")
	require.NoError(t, err)

	var res engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, engine.KindDuplicates, res.Kind)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, []string{"1", "2"}, res.Duplicates[0].Members)
	assert.Equal(t, int64(19), res.Meta.WastedBytes)
}

func TestAnalyze_TableSummary(t *testing.T) {
	manifestPath := writeFile(t, "stats.yaml", yamlManifest)

	out, err := run(t, "analyze", "--manifest", manifestPath, "--gzip")
	require.NoError(t, err)
	assert.Contains(t, out, "Modules")
	assert.Contains(t, out, "Duplicates")
	assert.Contains(t, out, "Bundle Analysis (combined)")
	assert.Contains(t, out, "Gzipped:")
}

func TestAnalyze_CacheRoundTrip(t *testing.T) {
	bundlePath := writeFile(t, "bundle.js", textBundle)
	cachePath := filepath.Join(t.TempDir(), "results.ipkc")

	first, err := run(t, "analyze", bundlePath, "--cache", cachePath, "-o", "json")
	require.NoError(t, err)
	second, err := run(t, "analyze", bundlePath, "--cache", cachePath, "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, first, second)

	out, err := run(t, "cache", "stats", "--cache", cachePath, "-o", "json")
	require.NoError(t, err)
	var stats CacheStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "file", stats.Driver)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, cachePath, stats.Path)

	out, err = run(t, "cache", "compact", "--cache", cachePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Compacted 1 entries")
}

func TestPattern(t *testing.T) {
	bundlePath := writeFile(t, "bundle.js", textBundle)

	out, err := run(t, "pattern", bundlePath, "-e", `console\.log`, "-o", "tsv")
	require.NoError(t, err)
	assert.Contains(t, out, "MODULE\tFILE\tPATTERN\tLINE\tSNIPPET")
	assert.Contains(t, out, "1\t1\tconsole\\.log\t1\tconsole.log(\"hi\");")

	_, err = run(t, "pattern", bundlePath)
	var oerr *engine.OptionError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, "suspectPatterns", oerr.Option)
}

func TestAnalysis_InputErrors(t *testing.T) {
	_, err := run(t, "sizes")
	assert.ErrorContains(t, err, "--manifest is required")

	_, err = run(t, "sizes", filepath.Join(t.TempDir(), "missing.js"))
	assert.ErrorContains(t, err, "missing.js")

	bundlePath := writeFile(t, "bundle.js", textBundle)
	_, err = run(t, "sizes", bundlePath, "-o", "xml")
	assert.ErrorContains(t, err, "invalid output format")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "inspectpack dev")
}

func TestSizes_NoModulesWarns(t *testing.T) {
	bundlePath := writeFile(t, "plain.js", "console.log('no markers here');\n")

	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"sizes", bundlePath, "-o", "tsv", "--no-headers"})

	require.NoError(t, root.Execute())
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Warning: no modules found")
}
