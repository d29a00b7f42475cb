package engine

import (
	"fmt"
	"strings"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/duplicates"
	"github.com/cranesandcaff/inspectpack/internal/suspect"
	"github.com/cranesandcaff/inspectpack/internal/versions"
)

// Kind selects which analysis stages run
type Kind string

const (
	KindSizes      Kind = "sizes"
	KindDuplicates Kind = "duplicates"
	KindCombined   Kind = "combined"
	KindPattern    Kind = "pattern"
	KindFiles      Kind = "files"
	KindVersions   Kind = "versions"
)

// Kinds lists every supported analysis kind
func Kinds() []Kind {
	return []Kind{KindSizes, KindDuplicates, KindCombined, KindPattern, KindFiles, KindVersions}
}

// ParseKind converts a string to a Kind. The returned Kind is always one of the
// package constants and never aliases s.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return known, nil
		}
	}
	return "", &OptionError{Option: "kind", Reason: fmt.Sprintf("unknown analysis kind %q", s)}
}

func (k Kind) groupsDuplicates() bool {
	return k == KindDuplicates || k == KindCombined
}

// Options configures one analysis. Format is only consumed by output rendering.
type Options struct {
	Format          string   `json:"format,omitempty" yaml:"format,omitempty"`
	Minified        bool     `json:"minified,omitempty" yaml:"minified,omitempty"`
	Gzip            bool     `json:"gzip,omitempty" yaml:"gzip,omitempty"`
	GzipLevel       int      `json:"gzipLevel,omitempty" yaml:"gzipLevel,omitempty"`
	Root            string   `json:"root,omitempty" yaml:"root,omitempty"`
	SuspectPatterns []string `json:"suspectPatterns,omitempty" yaml:"suspectPatterns,omitempty"`
	SuspectFiles    []string `json:"suspectFiles,omitempty" yaml:"suspectFiles,omitempty"`
}

// Request is the input of one analysis
type Request struct {
	Code     string           `json:"code"`
	Manifest *bundle.Manifest `json:"manifest,omitempty"`
	Options  Options          `json:"options"`
}

// Meta holds the counters and totals of a result
type Meta struct {
	NumModules             int    `json:"numModules" yaml:"numModules" msgpack:"num_modules"`
	NumCode                int    `json:"numCode" yaml:"numCode" msgpack:"num_code"`
	NumSynthetic           int    `json:"numSynthetic" yaml:"numSynthetic" msgpack:"num_synthetic"`
	NumAssets              int    `json:"numAssets" yaml:"numAssets" msgpack:"num_assets"`
	TotalSize              int64  `json:"totalSize" yaml:"totalSize" msgpack:"total_size"`
	TotalMinifiedSize      *int64 `json:"totalMinifiedSize,omitempty" yaml:"totalMinifiedSize,omitempty" msgpack:"total_minified_size,omitempty"`
	TotalGzipSize          *int64 `json:"totalGzipSize,omitempty" yaml:"totalGzipSize,omitempty" msgpack:"total_gzip_size,omitempty"`
	NumDuplicateGroups     int    `json:"numDuplicateGroups" yaml:"numDuplicateGroups" msgpack:"num_duplicate_groups"`
	NumDuplicateModules    int    `json:"numDuplicateModules" yaml:"numDuplicateModules" msgpack:"num_duplicate_modules"`
	NumFilesWithDuplicates int    `json:"numFilesWithDuplicates" yaml:"numFilesWithDuplicates" msgpack:"num_files_with_duplicates"`
	WastedBytes            int64  `json:"wastedBytes" yaml:"wastedBytes" msgpack:"wasted_bytes"`
}

// Result is the outcome of one analysis. Sizes keeps flattening order.
type Result struct {
	Kind       Kind               `json:"kind" yaml:"kind" msgpack:"kind"`
	Meta       Meta               `json:"meta" yaml:"meta" msgpack:"meta"`
	Sizes      []*bundle.Module   `json:"sizes" yaml:"sizes" msgpack:"sizes"`
	Duplicates []duplicates.Group `json:"duplicates,omitempty" yaml:"duplicates,omitempty" msgpack:"duplicates,omitempty"`
	Patterns   []suspect.Match    `json:"patterns,omitempty" yaml:"patterns,omitempty" msgpack:"patterns,omitempty"`
	Files      []suspect.Match    `json:"files,omitempty" yaml:"files,omitempty" msgpack:"files,omitempty"`
	Versions   []versions.Package `json:"versions,omitempty" yaml:"versions,omitempty" msgpack:"versions,omitempty"`
}

// Module looks up a module of the result by id
func (r *Result) Module(id string) (*bundle.Module, bool) {
	for _, m := range r.Sizes {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// OptionError reports an unsupported or contradictory option
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Option, e.Reason)
}
