package bundle

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func leaf(id, identifier, source string) ModuleNode {
	return ModuleNode{ID: FlexID(id), Identifier: identifier, Size: int64(len(source)), Source: strPtr(source)}
}

func ids(mods []*Module) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.ID
	}
	return out
}

func TestFlattenManifest_ContainerIsNotEmitted(t *testing.T) {
	m := &Manifest{Modules: []ModuleNode{{
		Identifier: "./src/locales sync ^\\.\\/.*$",
		Modules: []ModuleNode{
			leaf("", "./src/locales/de.js", strings.Repeat("a", 10)),
			leaf("", "./src/locales/en.js", strings.Repeat("b", 20)),
			leaf("", "./src/locales/fr.js", strings.Repeat("c", 30)),
		},
	}}}

	mods, err := FlattenManifest(m, FlattenOptions{})
	require.NoError(t, err)
	require.Len(t, mods, 3)

	assert.Equal(t, []string{"0", "1", "2"}, ids(mods))
	assert.Equal(t, "src/locales/de.js", mods[0].BaseName)
	for _, mod := range mods {
		assert.Equal(t, TypeCode, mod.Type)
	}
}

func TestFlattenManifest_Deterministic(t *testing.T) {
	m := &Manifest{Modules: []ModuleNode{
		leaf("9", "./a.js", "a()"),
		{Identifier: "ctx", Modules: []ModuleNode{
			leaf("", "./b.js", "b()"),
			{Identifier: "nested", Modules: []ModuleNode{leaf("x1", "./c.js", "c()")}},
		}},
		{Identifier: "./lookup", Size: 42},
	}}

	first, err := FlattenManifest(m, FlattenOptions{})
	require.NoError(t, err)
	second, err := FlattenManifest(m, FlattenOptions{})
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, []string{"9", "1", "x1", "3"}, ids(first))
}

func TestFlattenManifest_PreservesManifestOrder(t *testing.T) {
	m := &Manifest{Modules: []ModuleNode{
		leaf("7", "./a.js", "a"),
		leaf("3", "./b.js", "b"),
		leaf("12", "./c.js", "c"),
	}}

	mods, err := FlattenManifest(m, FlattenOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "3", "12"}, ids(mods))
}

func TestFlattenManifest_Synthetic(t *testing.T) {
	m := &Manifest{Modules: []ModuleNode{{Identifier: "./src/dynamic sync recursive", Size: 160}}}

	mods, err := FlattenManifest(m, FlattenOptions{})
	require.NoError(t, err)
	require.Len(t, mods, 1)

	assert.Equal(t, TypeSynthetic, mods[0].Type)
	assert.False(t, mods[0].HasSource())
	assert.Equal(t, int64(160), mods[0].Size)
	assert.Empty(t, mods[0].Source)
}

func TestFlattenManifest_IdentifierFallsBackToName(t *testing.T) {
	m := &Manifest{Modules: []ModuleNode{{Name: "./src/app.js", Source: strPtr("x")}}}

	mods, err := FlattenManifest(m, FlattenOptions{})
	require.NoError(t, err)
	assert.Equal(t, "./src/app.js", mods[0].Identifier)
	assert.Equal(t, "src/app.js", mods[0].BaseName)
}

func TestFlattenManifest_Errors(t *testing.T) {
	nest := func(depth int) ModuleNode {
		n := leaf("", "./deep.js", "x")
		for i := 0; i < depth; i++ {
			n = ModuleNode{Identifier: "ctx", Modules: []ModuleNode{n}}
		}
		return n
	}

	tests := []struct {
		name     string
		manifest *Manifest
		opts     FlattenOptions
		path     string
		reason   string
	}{
		{
			name: "source and modules",
			manifest: &Manifest{Modules: []ModuleNode{
				leaf("", "./ok.js", "ok"),
				{Identifier: "./bad.js", Source: strPtr("x"), Modules: []ModuleNode{}},
			}},
			path:   "modules[1]",
			reason: "both source and modules",
		},
		{
			name:     "too deep",
			manifest: &Manifest{Modules: []ModuleNode{nest(4)}},
			opts:     FlattenOptions{MaxDepth: 3},
			path:     "modules[0].modules[0].modules[0].modules[0]",
			reason:   "deeper than 3 levels",
		},
		{
			name: "duplicate id",
			manifest: &Manifest{Modules: []ModuleNode{
				leaf("1", "./a.js", "a"),
				{Identifier: "ctx", Modules: []ModuleNode{leaf("1", "./b.js", "b")}},
			}},
			path:   "modules[1].modules[0]",
			reason: "duplicate module id",
		},
		{
			name:     "negative size",
			manifest: &Manifest{Modules: []ModuleNode{{Identifier: "./s", Size: -4}}},
			path:     "modules[0]",
			reason:   "negative size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FlattenManifest(tt.manifest, tt.opts)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.path, perr.Path)
			assert.Equal(t, int64(-1), perr.Offset)
			assert.Contains(t, perr.Error(), tt.reason)
		})
	}
}

func TestFlattenManifest_DefaultDepthAllowsModerateNesting(t *testing.T) {
	n := leaf("", "./deep.js", "x")
	for i := 0; i < DefaultMaxDepth-1; i++ {
		n = ModuleNode{Identifier: "ctx", Modules: []ModuleNode{n}}
	}

	mods, err := FlattenManifest(&Manifest{Modules: []ModuleNode{n}}, FlattenOptions{})
	require.NoError(t, err)
	assert.Len(t, mods, 1)
}

func TestFlatten_DetectsForm(t *testing.T) {
	t.Run("explicit manifest wins over code", func(t *testing.T) {
		out, err := Flatten(Input{
			Code:     "/* 0 */\nfoo();\n",
			Manifest: &Manifest{Modules: []ModuleNode{leaf("", "./a.js", "a"), leaf("", "./b.js", "b")}},
		}, FlattenOptions{})
		require.NoError(t, err)
		assert.Equal(t, FormManifest, out.Form)
		assert.Len(t, out.Modules, 2)
	})

	t.Run("json code is decoded as manifest", func(t *testing.T) {
		code := "\n  {\"assets\":[{\"name\":\"main.js\",\"size\":4,\"chunks\":[0]}]," +
			"\"modules\":[{\"id\":5,\"identifier\":\"./a.js\",\"size\":1,\"source\":\"a\"}," +
			"{\"identifier\":\"./b.js\",\"size\":1,\"source\":\"b\"}]}"
		out, err := Flatten(Input{Code: code}, FlattenOptions{})
		require.NoError(t, err)
		assert.Equal(t, FormManifest, out.Form)
		assert.Equal(t, []string{"5", "1"}, ids(out.Modules))
		require.Len(t, out.Assets, 1)
		assert.Equal(t, "main.js", out.Assets[0].Name)
		assert.Equal(t, []FlexID{"0"}, out.Assets[0].Chunks)
	})

	t.Run("plain text is scanned", func(t *testing.T) {
		out, err := Flatten(Input{Code: "/* 0 */\nfoo();\n/* 1 */\nbar();\n"}, FlattenOptions{})
		require.NoError(t, err)
		assert.Equal(t, FormText, out.Form)
		assert.Equal(t, []string{"0", "1"}, ids(out.Modules))
	})

	t.Run("empty input has zero modules", func(t *testing.T) {
		out, err := Flatten(Input{}, FlattenOptions{})
		require.NoError(t, err)
		assert.Empty(t, out.Modules)
	})
}

func TestFlatten_InvalidJSONReportsOffset(t *testing.T) {
	_, err := Flatten(Input{Code: `{"modules": [ {"identifier": } ]}`}, FlattenOptions{})
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Greater(t, perr.Offset, int64(0))
	assert.Contains(t, perr.Reason, "invalid manifest")
	assert.NotEmpty(t, perr.Fragment)
}

func TestParseManifest_RejectsBadID(t *testing.T) {
	_, err := ParseManifest([]byte(`{"modules":[{"id":true,"identifier":"./a.js","source":"a"}]}`))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
}
