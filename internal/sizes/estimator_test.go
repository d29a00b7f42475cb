package sizes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
)

func flatten(t *testing.T, nodes ...bundle.ModuleNode) []*bundle.Module {
	t.Helper()
	mods, err := bundle.FlattenManifest(&bundle.Manifest{Modules: nodes}, bundle.FlattenOptions{})
	require.NoError(t, err)
	return mods
}

func src(identifier, source string) bundle.ModuleNode {
	return bundle.ModuleNode{Identifier: identifier, Source: &source}
}

func TestEstimate_RawOnly(t *testing.T) {
	mods := flatten(t,
		src("./a.js", strings.Repeat("x", 10)),
		bundle.ModuleNode{Identifier: "./lookup", Size: 77},
	)

	require.NoError(t, NewEstimator().Estimate(mods, Options{}))

	assert.Equal(t, int64(10), mods[0].Size)
	assert.Equal(t, int64(77), mods[1].Size)
	for _, m := range mods {
		assert.Nil(t, m.MinifiedSize)
		assert.Nil(t, m.GzipSize)
	}
}

func TestEstimate_Minified(t *testing.T) {
	code := `
function add(first, second) {
    // sum two numbers
    return first   +   second;
}
module.exports = add;
`
	mods := flatten(t, src("./add.js", code))

	require.NoError(t, NewEstimator().Estimate(mods, Options{Minified: true}))

	require.NotNil(t, mods[0].MinifiedSize)
	assert.Greater(t, *mods[0].MinifiedSize, int64(0))
	assert.Less(t, *mods[0].MinifiedSize, mods[0].Size)
	assert.Nil(t, mods[0].GzipSize)
}

func TestEstimate_SyntheticClaimsNoSavings(t *testing.T) {
	mods := flatten(t, bundle.ModuleNode{Identifier: "./src/dynamic sync recursive", Size: 160})

	require.NoError(t, NewEstimator().Estimate(mods, Options{Minified: true, Gzip: true}))

	m := mods[0]
	assert.Equal(t, bundle.TypeSynthetic, m.Type)
	require.NotNil(t, m.MinifiedSize)
	assert.Equal(t, m.Size, *m.MinifiedSize)

	empty, err := gzipLen("", DefaultGzipLevel)
	require.NoError(t, err)
	require.NotNil(t, m.GzipSize)
	assert.Equal(t, empty, *m.GzipSize)
}

func TestMinifiedSize_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "object literal module", source: `{ "name":   "inspectpack",   "private":   true }`},
		{name: "unparseable fragment", source: `}{ not javascript (`},
		{name: "empty", source: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mods := flatten(t, src("./x.js", tt.source))
			n := MinifiedSize(mods[0])
			assert.LessOrEqual(t, n, RawSize(mods[0]))
			assert.GreaterOrEqual(t, n, int64(0))
		})
	}

	mods := flatten(t, src("./broken.js", `}{ not javascript (`))
	assert.Equal(t, RawSize(mods[0]), MinifiedSize(mods[0]))
}

func TestEstimate_GzipLevels(t *testing.T) {
	code := strings.Repeat("module.exports = function () { return 'abcdefghij'; };\n", 200)

	fast := flatten(t, src("./a.js", code))
	best := flatten(t, src("./a.js", code))

	require.NoError(t, NewEstimator().Estimate(fast, Options{Gzip: true, GzipLevel: 1}))
	require.NoError(t, NewEstimator().Estimate(best, Options{Gzip: true}))

	require.NotNil(t, fast[0].GzipSize)
	require.NotNil(t, best[0].GzipSize)
	assert.Less(t, *best[0].GzipSize, best[0].Size)
	assert.LessOrEqual(t, *best[0].GzipSize, *fast[0].GzipSize)
}

func TestEstimate_InvalidGzipLevel(t *testing.T) {
	mods := flatten(t, src("./a.js", "a"))
	err := NewEstimator().Estimate(mods, Options{Gzip: true, GzipLevel: 12})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestEstimate_Idempotent(t *testing.T) {
	mods := flatten(t, src("./a.js", "var a = 1;"), src("./b.js", "var b = 2;"))
	e := &Estimator{Workers: 1}

	require.NoError(t, e.Estimate(mods, Options{Minified: true, Gzip: true}))
	first := *mods[1].GzipSize
	require.NoError(t, e.Estimate(mods, Options{}))
	assert.Nil(t, mods[1].GzipSize)
	require.NoError(t, e.Estimate(mods, Options{Gzip: true}))
	assert.Equal(t, first, *mods[1].GzipSize)
}
