package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/duplicates"
	"github.com/cranesandcaff/inspectpack/internal/engine"
	"github.com/cranesandcaff/inspectpack/internal/versions"
)

func int64p(n int64) *int64 { return &n }

func combinedResult() *engine.Result {
	return &engine.Result{
		Kind: engine.KindCombined,
		Meta: engine.Meta{
			NumModules:             3,
			NumCode:                2,
			NumSynthetic:           1,
			TotalSize:              2048,
			TotalGzipSize:          int64p(512),
			NumDuplicateGroups:     1,
			NumDuplicateModules:    2,
			NumFilesWithDuplicates: 1,
			WastedBytes:            1000,
		},
		Sizes: []*bundle.Module{
			{ID: "0", FileName: "./node_modules/a/node_modules/one/index.js", PackageName: "one", Type: bundle.TypeDuplicate, Size: 1000, GzipSize: int64p(250)},
			{ID: "1", FileName: "./node_modules/b/node_modules/one/index.js", PackageName: "one", PackageVersion: "1.0.0", Type: bundle.TypeDuplicate, Size: 1000, GzipSize: int64p(250)},
			{ID: "2", FileName: "./src/lazy sync recursive", Type: bundle.TypeSynthetic, Size: 48, GzipSize: int64p(12)},
		},
		Duplicates: []duplicates.Group{
			{BaseName: "one/index.js", Members: []string{"0", "1"}, Count: 2, Size: 1000, WastedBytes: 1000},
		},
	}
}

func TestTables_Combined(t *testing.T) {
	tables := Tables(combinedResult(), Options{})
	require.Len(t, tables, 2)

	sizes := tables[0]
	assert.Equal(t, []string{"ID", "FILE", "PACKAGE", "TYPE", "SIZE", "GZIP"}, sizes.Headers)
	require.Len(t, sizes.Rows, 3)
	assert.Equal(t, []string{"0", "./node_modules/a/node_modules/one/index.js", "one", "duplicate", "1000", "250"}, sizes.Rows[0])
	assert.Equal(t, "one@1.0.0", sizes.Rows[1][2])
	assert.Equal(t, "-", sizes.Rows[2][2])

	dups := tables[1]
	require.Len(t, dups.Rows, 1)
	assert.Equal(t, []string{"one/index.js", "2", "1000", "1000", "0,1"}, dups.Rows[0])
}

func TestTables_HumanAndLimit(t *testing.T) {
	tables := Tables(combinedResult(), Options{Human: true, Limit: 1})
	require.Len(t, tables[0].Rows, 1)
	assert.Equal(t, "1000 B", tables[0].Rows[0][4])
	assert.Equal(t, "1000 B", tables[1].Rows[0][3])
}

func TestTables_PerKind(t *testing.T) {
	tests := []struct {
		kind   engine.Kind
		titles []string
	}{
		{engine.KindSizes, []string{"Modules"}},
		{engine.KindDuplicates, []string{"Duplicates"}},
		{engine.KindCombined, []string{"Modules", "Duplicates"}},
		{engine.KindPattern, []string{"Pattern matches"}},
		{engine.KindFiles, []string{"File matches"}},
		{engine.KindVersions, []string{"Version skew"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var titles []string
			for _, table := range Tables(&engine.Result{Kind: tt.kind}, Options{}) {
				titles = append(titles, table.Title)
			}
			assert.Equal(t, tt.titles, titles)
		})
	}
}

func TestVersionsTable(t *testing.T) {
	res := &engine.Result{Kind: engine.KindVersions, Versions: []versions.Package{{
		Name: "lodash",
		Installs: []versions.Install{
			{Version: "3.10.1", Path: "node_modules/legacy/node_modules/lodash", Modules: []string{"4"}},
			{Version: "4.17.21", Path: "node_modules/lodash", Modules: []string{"1", "2"}},
		},
	}}}

	table := VersionsTable(res, Options{})
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"lodash", "4.17.21", "node_modules/lodash", "2"}, table.Rows[1])
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, combinedResult())
	out := buf.String()

	assert.Contains(t, out, "Bundle Analysis (combined)")
	assert.Contains(t, out, "3 (2 code, 1 synthetic)")
	assert.Contains(t, out, "Total size:      2.0 KB")
	assert.Contains(t, out, "Gzipped:         512 B (25.0%)")
	assert.Contains(t, out, "Duplicate files: 1 (1 groups, 2 modules)")
	assert.NotContains(t, out, "Minified")
}
