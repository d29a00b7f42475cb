// Package engine runs the analysis pipeline: flatten, size, then the stages the kind asks for.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/duplicates"
	"github.com/cranesandcaff/inspectpack/internal/observability"
	"github.com/cranesandcaff/inspectpack/internal/sizes"
	"github.com/cranesandcaff/inspectpack/internal/suspect"
	"github.com/cranesandcaff/inspectpack/internal/versions"
)

// Config tunes an Engine
type Config struct {
	MaxDepth int
	Workers  int
	// OpenRoot opens the project root of a versions analysis; defaults to os.DirFS
	OpenRoot func(root string) fs.FS
}

// Engine is stateless between calls and safe for concurrent use
type Engine struct {
	maxDepth  int
	estimator *sizes.Estimator
	openRoot  func(root string) fs.FS
}

// New creates an analysis engine
func New(cfg Config) *Engine {
	openRoot := cfg.OpenRoot
	if openRoot == nil {
		openRoot = func(root string) fs.FS { return os.DirFS(root) }
	}
	return &Engine{
		maxDepth:  cfg.MaxDepth,
		estimator: &sizes.Estimator{Workers: cfg.Workers},
		openRoot:  openRoot,
	}
}

type plan struct {
	kind     Kind
	patterns []*regexp.Regexp
	files    []*regexp.Regexp
}

// Validate checks the options of a request for the given kind without running it
func Validate(kind Kind, opts Options) error {
	_, err := newPlan(kind, opts)
	return err
}

func newPlan(kind Kind, opts Options) (*plan, error) {
	kind, err := ParseKind(string(kind))
	if err != nil {
		return nil, err
	}
	if !sizes.ValidGzipLevel(opts.GzipLevel) {
		return nil, &OptionError{Option: "gzipLevel", Reason: fmt.Sprintf("%d is outside 1..9", opts.GzipLevel)}
	}

	p := &plan{kind: kind}
	switch kind {
	case KindPattern:
		if p.patterns, err = compile("suspectPatterns", opts.SuspectPatterns); err != nil {
			return nil, err
		}
	case KindFiles:
		if p.files, err = compile("suspectFiles", opts.SuspectFiles); err != nil {
			return nil, err
		}
	case KindVersions:
		if opts.Root == "" {
			return nil, &OptionError{Option: "root", Reason: "versions analysis needs a project root"}
		}
	}
	return p, nil
}

func compile(option string, patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, &OptionError{Option: option, Reason: "at least one pattern is required"}
	}
	res, err := suspect.Compile(patterns)
	if err != nil {
		return nil, &OptionError{Option: option, Reason: err.Error()}
	}
	return res, nil
}

// Analyze runs one analysis. ctx only carries tracing; an admitted analysis runs to completion.
func (e *Engine) Analyze(ctx context.Context, kind Kind, req Request) (result *Result, err error) {
	ctx, span := observability.StartStageSpan(ctx, "analyze", string(kind))
	defer func() { observability.EndSpan(span, err) }()

	p, err := newPlan(kind, req.Options)
	if err != nil {
		return nil, err
	}

	flat, err := e.flatten(ctx, p.kind, req)
	if err != nil {
		return nil, err
	}
	mods := flat.Modules

	opts := req.Options
	if opts.Minified || opts.Gzip {
		if err := requireSource(mods, opts); err != nil {
			return nil, err
		}
	}

	if err := e.stage(ctx, "sizes", p.kind, func() error {
		return e.estimator.Estimate(mods, sizes.Options{Minified: opts.Minified, Gzip: opts.Gzip, GzipLevel: opts.GzipLevel})
	}); err != nil {
		return nil, err
	}

	res := &Result{Kind: p.kind, Sizes: mods}
	var report duplicates.Report

	if p.kind.groupsDuplicates() {
		e.step(ctx, "duplicates", p.kind, func() {
			report = duplicates.Find(mods)
			res.Duplicates = report.Groups
		})
	}

	switch p.kind {
	case KindPattern:
		e.step(ctx, "pattern", p.kind, func() {
			res.Patterns = suspect.Sources(mods, p.patterns)
		})
	case KindFiles:
		e.step(ctx, "files", p.kind, func() {
			res.Files = suspect.Files(mods, p.files)
		})
	case KindVersions:
		if err := e.stage(ctx, "versions", p.kind, func() error {
			pkgs, err := versions.Skew(e.openRoot(filepath.Clean(opts.Root)), mods)
			if err != nil {
				return fmt.Errorf("read package versions: %w", err)
			}
			res.Versions = pkgs
			return nil
		}); err != nil {
			return nil, err
		}
	}

	res.Meta = buildMeta(mods, len(flat.Assets), opts, report)

	for _, m := range mods {
		m.Source = ""
	}

	observability.SetSpanAttributes(ctx,
		attribute.Int("analysis.modules", res.Meta.NumModules),
		attribute.Int("analysis.duplicate_groups", res.Meta.NumDuplicateGroups),
	)
	log.Debug().
		Str("kind", string(p.kind)).
		Str("form", string(flat.Form)).
		Int("modules", res.Meta.NumModules).
		Int64("total_size", res.Meta.TotalSize).
		Msg("Analysis complete")

	return res, nil
}

// Sizes runs a sizes analysis
func (e *Engine) Sizes(ctx context.Context, req Request) (*Result, error) {
	return e.Analyze(ctx, KindSizes, req)
}

// Duplicates runs a duplicates analysis
func (e *Engine) Duplicates(ctx context.Context, req Request) (*Result, error) {
	return e.Analyze(ctx, KindDuplicates, req)
}

// Combined runs sizes and duplicates in one pass
func (e *Engine) Combined(ctx context.Context, req Request) (*Result, error) {
	return e.Analyze(ctx, KindCombined, req)
}

func (e *Engine) flatten(ctx context.Context, kind Kind, req Request) (flat *bundle.Flattened, err error) {
	err = e.stage(ctx, "flatten", kind, func() error {
		flat, err = bundle.Flatten(
			bundle.Input{Code: req.Code, Manifest: req.Manifest},
			bundle.FlattenOptions{MaxDepth: e.maxDepth},
		)
		return err
	})
	return flat, err
}

func (e *Engine) stage(ctx context.Context, name string, kind Kind, fn func() error) error {
	_, span := observability.StartStageSpan(ctx, name, string(kind))
	err := fn()
	observability.EndSpan(span, err)
	return err
}

// step traces a stage that cannot fail
func (e *Engine) step(ctx context.Context, name string, kind Kind, fn func()) {
	_, span := observability.StartStageSpan(ctx, name, string(kind))
	fn()
	observability.EndSpan(span, nil)
}

// requireSource rejects minified/gzip sizing of an input made only of synthetic entries
func requireSource(mods []*bundle.Module, opts Options) error {
	if len(mods) == 0 {
		return nil
	}
	for _, m := range mods {
		if m.HasSource() {
			return nil
		}
	}
	option := "gzip"
	if opts.Minified {
		option = "minified"
	}
	return &OptionError{Option: option, Reason: "no module in the input carries source to measure"}
}

func buildMeta(mods []*bundle.Module, numAssets int, opts Options, report duplicates.Report) Meta {
	meta := Meta{
		NumModules:             len(mods),
		NumAssets:              numAssets,
		NumDuplicateGroups:     len(report.Groups),
		NumDuplicateModules:    report.NumDuplicateModules,
		NumFilesWithDuplicates: report.NumFilesWithDuplicates,
		WastedBytes:            report.WastedBytes,
	}

	var minified, gzipped int64
	for _, m := range mods {
		if m.HasSource() {
			meta.NumCode++
		} else {
			meta.NumSynthetic++
		}
		meta.TotalSize += m.Size
		if m.MinifiedSize != nil {
			minified += *m.MinifiedSize
		}
		if m.GzipSize != nil {
			gzipped += *m.GzipSize
		}
	}
	if opts.Minified {
		meta.TotalMinifiedSize = &minified
	}
	if opts.Gzip {
		meta.TotalGzipSize = &gzipped
	}
	return meta
}
