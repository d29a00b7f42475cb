package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cranesandcaff/inspectpack/internal/engine"
)

func TestFingerprint(t *testing.T) {
	base := engine.Request{Code: "/* 0 */\nfoo();\n"}

	with := func(mutate func(*engine.Request)) engine.Request {
		req := base
		mutate(&req)
		return req
	}
	gzipAt := func(level int) engine.Request {
		req := base
		req.Options.Gzip = true
		req.Options.GzipLevel = level
		return req
	}

	tests := []struct {
		name  string
		kindA engine.Kind
		reqA  engine.Request
		kindB engine.Kind
		reqB  engine.Request
		equal bool
	}{
		{
			name:  "format is ignored",
			kindA: engine.KindSizes, reqA: with(func(r *engine.Request) { r.Options.Format = "json" }),
			kindB: engine.KindSizes, reqB: with(func(r *engine.Request) { r.Options.Format = "yaml" }),
			equal: true,
		},
		{
			name:  "gzip level without gzip is ignored",
			kindA: engine.KindSizes, reqA: with(func(r *engine.Request) { r.Options.GzipLevel = 3 }),
			kindB: engine.KindSizes, reqB: base,
			equal: true,
		},
		{
			name:  "default gzip level equals explicit level 9",
			kindA: engine.KindSizes, reqA: gzipAt(0),
			kindB: engine.KindSizes, reqB: gzipAt(9),
			equal: true,
		},
		{
			name:  "gzip level changes the result",
			kindA: engine.KindSizes, reqA: gzipAt(1),
			kindB: engine.KindSizes, reqB: gzipAt(0),
		},
		{
			name:  "minified changes the result",
			kindA: engine.KindSizes, reqA: with(func(r *engine.Request) { r.Options.Minified = true }),
			kindB: engine.KindSizes, reqB: base,
		},
		{
			name:  "kind participates",
			kindA: engine.KindSizes, reqA: base,
			kindB: engine.KindCombined, reqB: base,
		},
		{
			name:  "pattern order and repeats are ignored",
			kindA: engine.KindPattern, reqA: with(func(r *engine.Request) { r.Options.SuspectPatterns = []string{"b", "a", "b"} }),
			kindB: engine.KindPattern, reqB: with(func(r *engine.Request) { r.Options.SuspectPatterns = []string{"a", "b"} }),
			equal: true,
		},
		{
			name:  "patterns are ignored by sizes",
			kindA: engine.KindSizes, reqA: with(func(r *engine.Request) { r.Options.SuspectPatterns = []string{"a"} }),
			kindB: engine.KindSizes, reqB: base,
			equal: true,
		},
		{
			name:  "root is cleaned",
			kindA: engine.KindVersions, reqA: with(func(r *engine.Request) { r.Options.Root = "/work/app/" }),
			kindB: engine.KindVersions, reqB: with(func(r *engine.Request) { r.Options.Root = "/work/./app" }),
			equal: true,
		},
		{
			name:  "code participates",
			kindA: engine.KindSizes, reqA: base,
			kindB: engine.KindSizes, reqB: with(func(r *engine.Request) { r.Code += "bar();\n" }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Fingerprint(tt.kindA, tt.reqA)
			require.NoError(t, err)
			b, err := Fingerprint(tt.kindB, tt.reqB)
			require.NoError(t, err)

			assert.Len(t, a, 64)
			if tt.equal {
				assert.Equal(t, a, b)
			} else {
				assert.NotEqual(t, a, b)
			}
		})
	}
}

func TestFingerprint_DoesNotMutatePatterns(t *testing.T) {
	patterns := []string{"z", "a"}
	_, err := Fingerprint(engine.KindPattern, engine.Request{Options: engine.Options{SuspectPatterns: patterns}})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, patterns)
}
