package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cranesandcaff/inspectpack/cli/output"
	"github.com/cranesandcaff/inspectpack/cli/report"
	"github.com/cranesandcaff/inspectpack/cli/util"
	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/cache"
	"github.com/cranesandcaff/inspectpack/internal/cache/store"
	"github.com/cranesandcaff/inspectpack/internal/engine"
)

// analysisFlags holds the flags of one analysis command
type analysisFlags struct {
	patterns []string
	files    []string
	root     string
}

func (a *app) analysisCommands() []*cobra.Command {
	sizesCmd := a.analysisCommand(engine.KindSizes, &cobra.Command{
		Use:   "sizes [bundle]",
		Short: "Report per-module sizes",
		Long: `Report the raw size of every module, plus minified and gzipped sizes on request.

Examples:
  inspectpack sizes dist/bundle.js
  inspectpack sizes dist/bundle.js --minified --gzip
  cat dist/bundle.js | inspectpack sizes - -o tsv`,
	}, nil)

	duplicatesCmd := a.analysisCommand(engine.KindDuplicates, &cobra.Command{
		Use:     "duplicates [bundle]",
		Aliases: []string{"dupes"},
		Short:   "Find modules bundled more than once",
		Long: `Group modules that share a base name and identical code after whitespace
normalization, and report the bytes wasted by the extra copies.

Examples:
  inspectpack duplicates dist/bundle.js
  inspectpack duplicates --manifest stats.json -o json`,
	}, nil)

	combinedCmd := a.analysisCommand(engine.KindCombined, &cobra.Command{
		Use:   "analyze [bundle]",
		Short: "Report sizes and duplicates in one pass",
		Long: `Run the sizes and duplicates analyses over one flattening of the bundle.

Examples:
  inspectpack analyze dist/bundle.js --gzip
  inspectpack analyze dist/bundle.js --cache ~/.cache/inspectpack/results.ipkc`,
	}, nil)

	patternCmd := a.analysisCommand(engine.KindPattern, &cobra.Command{
		Use:   "pattern [bundle]",
		Short: "Find module sources matching suspicious patterns",
		Long: `Match regular expressions against module sources and report the first matching
line per module and pattern.

Examples:
  inspectpack pattern dist/bundle.js -e 'eval\(' -e 'new Function'`,
	}, func(cmd *cobra.Command, f *analysisFlags) {
		cmd.Flags().StringArrayVarP(&f.patterns, "pattern", "e", nil, "regular expression to match against module sources (repeatable)")
	})

	filesCmd := a.analysisCommand(engine.KindFiles, &cobra.Command{
		Use:   "files [bundle]",
		Short: "Find modules whose paths match suspicious patterns",
		Long: `Match regular expressions against module identifiers.

Examples:
  inspectpack files dist/bundle.js -m 'moment/locale/'`,
	}, func(cmd *cobra.Command, f *analysisFlags) {
		cmd.Flags().StringArrayVarP(&f.files, "match", "m", nil, "regular expression to match against module paths (repeatable)")
	})

	versionsCmd := a.analysisCommand(engine.KindVersions, &cobra.Command{
		Use:   "versions [bundle]",
		Short: "Find packages bundled from more than one install",
		Long: `Read package.json files below the project root for every bundled package and
report packages installed at more than one path.

Examples:
  inspectpack versions --manifest stats.json --root .`,
	}, func(cmd *cobra.Command, f *analysisFlags) {
		cmd.Flags().StringVar(&f.root, "root", ".", "project root holding node_modules")
	})

	return []*cobra.Command{sizesCmd, duplicatesCmd, combinedCmd, patternCmd, filesCmd, versionsCmd}
}

// analysisCommand adds the shared input flags and the run function to cmd
func (a *app) analysisCommand(kind engine.Kind, cmd *cobra.Command, extra func(*cobra.Command, *analysisFlags)) *cobra.Command {
	f := &analysisFlags{}

	cmd.Args = cobra.MaximumNArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.runAnalysis(cmd, kind, f, args)
	}

	cmd.Flags().StringVar(&a.manifestPath, "manifest", "", "stats manifest (JSON or YAML) describing the bundle's modules")
	cmd.Flags().BoolVar(&a.minified, "minified", false, "estimate minified sizes")
	cmd.Flags().BoolVar(&a.gzip, "gzip", false, "estimate gzipped sizes")
	cmd.Flags().IntVar(&a.gzipLevel, "gzip-level", 0, "gzip level 1-9 (default from analysis.gzip_level)")
	cmd.Flags().IntVar(&a.limit, "limit", 0, "show at most this many modules in tables (0 = all)")

	if extra != nil {
		extra(cmd, f)
	}
	return cmd
}

func (a *app) runAnalysis(cmd *cobra.Command, kind engine.Kind, f *analysisFlags, args []string) error {
	req, err := a.buildRequest(args)
	if err != nil {
		return err
	}
	req.Options.SuspectPatterns = f.patterns
	req.Options.SuspectFiles = f.files
	if kind == engine.KindVersions {
		req.Options.Root = f.root
	}

	analyzer, closeFn, err := a.analyzer()
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := analyzer.Analyze(cmd.Context(), kind, req)
	if err != nil {
		return err
	}
	if res.Meta.NumModules == 0 {
		a.formatter.PrintWarning("no modules found; expected a webpack development build or a stats manifest")
	}
	return a.render(res)
}

// buildRequest reads the bundle argument and the manifest flag
func (a *app) buildRequest(args []string) (engine.Request, error) {
	var req engine.Request

	if len(args) == 0 && a.manifestPath == "" {
		return req, errors.New("a bundle path (or - for stdin) or --manifest is required")
	}

	if len(args) == 1 {
		data, err := util.ReadSource(args[0])
		if err != nil {
			return req, err
		}
		req.Code = string(data)
	}

	if a.manifestPath != "" {
		m, err := readManifest(a.manifestPath)
		if err != nil {
			return req, err
		}
		req.Manifest = m
	}

	req.Options = engine.Options{
		Format:   a.outputFmt,
		Minified: a.minified,
		Gzip:     a.gzip,
	}
	if a.gzip {
		req.Options.GzipLevel = a.gzipLevel
		if req.Options.GzipLevel == 0 {
			req.Options.GzipLevel = a.config.Analysis.GzipLevel
		}
	}
	return req, nil
}

func readManifest(path string) (*bundle.Manifest, error) {
	data, err := util.ReadSource(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var m bundle.Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
		return &m, nil
	default:
		return bundle.ParseManifest(data)
	}
}

// analyzer returns the engine, wrapped in a file-backed result cache when --cache is set
func (a *app) analyzer() (cache.Analyzer, func(), error) {
	eng := engine.New(engine.Config{
		MaxDepth: a.config.Analysis.MaxDepth,
		Workers:  a.config.Analysis.Workers,
	})
	if a.cachePath == "" {
		return eng, func() {}, nil
	}

	st, err := store.OpenFileStore(a.cachePath, store.FileOptions{SyncWrites: a.config.Cache.SyncWrites})
	if err != nil {
		return nil, nil, err
	}
	rc, err := cache.New(eng, st, cache.Options{MemoryEntries: a.config.Cache.MemoryEntries})
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return rc, func() { _ = rc.Close() }, nil
}

func (a *app) render(res *engine.Result) error {
	if a.formatter.Format.Structured() {
		return a.formatter.Print(res)
	}

	opts := report.Options{Human: a.formatter.Format == output.FormatTable, Limit: a.limit}
	for _, table := range report.Tables(res, opts) {
		if err := a.formatter.PrintTable(table); err != nil {
			return err
		}
	}
	if opts.Human && !a.quiet {
		report.Summary(a.formatter.Writer, res)
	}
	return nil
}
