package duplicates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/sizes"
)

func modules(t *testing.T, nodes ...bundle.ModuleNode) []*bundle.Module {
	t.Helper()
	mods, err := bundle.FlattenManifest(&bundle.Manifest{Modules: nodes}, bundle.FlattenOptions{})
	require.NoError(t, err)
	require.NoError(t, sizes.NewEstimator().Estimate(mods, sizes.Options{}))
	return mods
}

func code(identifier, source string) bundle.ModuleNode {
	return bundle.ModuleNode{Identifier: identifier, Source: &source}
}

func TestFind_ModuleExportsScenario(t *testing.T) {
	mods := modules(t,
		code("./node_modules/one/node_modules/dep/index.js", "module.exports = 1;"),
		code("./node_modules/two/node_modules/dep/index.js", "module.exports = 1;"),
	)

	report := Find(mods)

	require.Len(t, report.Groups, 1)
	g := report.Groups[0]
	assert.Equal(t, "dep/index.js", g.BaseName)
	assert.Equal(t, []string{"0", "1"}, g.Members)
	assert.Equal(t, 2, g.Count)
	assert.Equal(t, int64(len("module.exports = 1;")), g.Size)
	assert.Equal(t, g.Size, g.WastedBytes)
	assert.Equal(t, 1, report.NumFilesWithDuplicates)
	assert.Equal(t, 2, report.NumDuplicateModules)
	for _, m := range mods {
		assert.Equal(t, bundle.TypeDuplicate, m.Type)
	}
}

func TestFind_WhitespaceInsensitive(t *testing.T) {
	mods := modules(t,
		code("./node_modules/a/node_modules/x/lib.js", "var x = 1;\nmodule.exports = x;"),
		code("./node_modules/b/node_modules/x/lib.js", "var  x = 1;   module.exports =\tx;\n\n"),
	)

	report := Find(mods)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, Hash("var x = 1; module.exports = x;"), report.Groups[0].Hash)
}

func TestFind_RequiresEqualBaseName(t *testing.T) {
	mods := modules(t,
		code("./src/a.js", "module.exports = 1;"),
		code("./src/b.js", "module.exports = 1;"),
	)

	report := Find(mods)
	assert.Empty(t, report.Groups)
	for _, m := range mods {
		assert.Equal(t, bundle.TypeCode, m.Type)
	}
}

func TestFind_EmptyAndSyntheticNeverGroup(t *testing.T) {
	mods := modules(t,
		code("./node_modules/a/node_modules/stub/index.js", ""),
		code("./node_modules/b/node_modules/stub/index.js", "  \n\t "),
		bundle.ModuleNode{Identifier: "./node_modules/a/node_modules/ctx/index.js", Size: 10},
		bundle.ModuleNode{Identifier: "./node_modules/b/node_modules/ctx/index.js", Size: 10},
	)

	report := Find(mods)
	assert.Empty(t, report.Groups)
	assert.Equal(t, 0, report.NumFilesWithDuplicates)
	assert.Equal(t, bundle.TypeSynthetic, mods[2].Type)
}

func TestFind_EquivalenceWithinGroups(t *testing.T) {
	mods := modules(t,
		code("./node_modules/p1/node_modules/u/index.js", "a()"),
		code("./node_modules/p2/node_modules/u/index.js", "b()"),
		code("./node_modules/p3/node_modules/u/index.js", "a()"),
		code("./node_modules/p4/node_modules/u/index.js", "a( )"),
		code("./node_modules/p5/node_modules/u/index.js", "b()"),
		code("./node_modules/p6/node_modules/u/index.js", "a()"),
	)

	report := Find(mods)

	groupOf := make(map[string]int)
	for i, g := range report.Groups {
		for _, id := range g.Members {
			_, seen := groupOf[id]
			require.False(t, seen, "module %s appears in two groups", id)
			groupOf[id] = i
		}
	}

	same := func(a, b string) bool {
		ga, okA := groupOf[a]
		gb, okB := groupOf[b]
		return okA && okB && ga == gb
	}

	for _, a := range []string{"0", "1", "2", "3", "4", "5"} {
		for _, b := range []string{"0", "1", "2", "3", "4", "5"} {
			assert.Equal(t, same(a, b), same(b, a), "symmetry %s/%s", a, b)
			for _, c := range []string{"0", "1", "2", "3", "4", "5"} {
				if same(a, b) && same(b, c) {
					assert.True(t, same(a, c), "transitivity %s/%s/%s", a, b, c)
				}
			}
		}
	}

	require.Len(t, report.Groups, 2)
	assert.Equal(t, []string{"0", "2", "5"}, report.Groups[0].Members)
	assert.Equal(t, []string{"1", "4"}, report.Groups[1].Members)
	assert.Equal(t, int64(6), report.Groups[0].WastedBytes)
}

func TestFind_FilesCountDistinctBaseNames(t *testing.T) {
	mods := modules(t,
		code("./node_modules/a/node_modules/lodash/get.js", "get(1)"),
		code("./node_modules/b/node_modules/lodash/get.js", "get(1)"),
		code("./node_modules/c/node_modules/lodash/get.js", "get(2)"),
		code("./node_modules/d/node_modules/lodash/get.js", "get(2)"),
		code("./node_modules/a/node_modules/lodash/set.js", "set(1)"),
		code("./node_modules/b/node_modules/lodash/set.js", "set(1)"),
	)

	report := Find(mods)

	assert.Len(t, report.Groups, 3)
	assert.Equal(t, 6, report.NumDuplicateModules)
	assert.Equal(t, 2, report.NumFilesWithDuplicates)
	assert.Equal(t, int64(18), report.WastedBytes)
}
