package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cranesandcaff/inspectpack/internal/engine"
	"github.com/cranesandcaff/inspectpack/internal/sizes"
)

// schemaTag changes whenever the encoding of a cached Result changes
const schemaTag = "inspectpack.result.v1"

// fingerprintInput is msgpack-encoded in field order, which keeps the digest stable
type fingerprintInput struct {
	Schema    string   `msgpack:"schema"`
	Kind      string   `msgpack:"kind"`
	Code      string   `msgpack:"code"`
	Manifest  []byte   `msgpack:"manifest"`
	Minified  bool     `msgpack:"minified"`
	Gzip      bool     `msgpack:"gzip"`
	GzipLevel int      `msgpack:"gzip_level"`
	Patterns  []string `msgpack:"patterns"`
	Root      string   `msgpack:"root"`
}

// Fingerprint identifies the result of analyzing req as kind.
// Options that cannot change the result (the output format, a gzip level without gzip) are left out.
func Fingerprint(kind engine.Kind, req engine.Request) (string, error) {
	in := fingerprintInput{
		Schema:   schemaTag,
		Kind:     string(kind),
		Code:     req.Code,
		Minified: req.Options.Minified,
		Gzip:     req.Options.Gzip,
	}

	if req.Manifest != nil {
		data, err := json.Marshal(req.Manifest)
		if err != nil {
			return "", fmt.Errorf("encode manifest for fingerprint: %w", err)
		}
		in.Manifest = data
	}

	if in.Gzip {
		in.GzipLevel = req.Options.GzipLevel
		if in.GzipLevel == 0 {
			in.GzipLevel = sizes.DefaultGzipLevel
		}
	}

	switch kind {
	case engine.KindPattern:
		in.Patterns = normalizePatterns(req.Options.SuspectPatterns)
	case engine.KindFiles:
		in.Patterns = normalizePatterns(req.Options.SuspectFiles)
	case engine.KindVersions:
		in.Root = filepath.Clean(req.Options.Root)
	}

	data, err := msgpack.Marshal(&in)
	if err != nil {
		return "", fmt.Errorf("encode fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func normalizePatterns(patterns []string) []string {
	out := slices.Clone(patterns)
	slices.Sort(out)
	return slices.Compact(out)
}
