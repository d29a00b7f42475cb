// Package sizes fills raw, minified and compressed byte counts on flattened modules.
package sizes

import (
	"fmt"
	"runtime"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
)

// DefaultGzipLevel matches `gzip -9`
const DefaultGzipLevel = gzip.BestCompression

// Options selects the optional size fields
type Options struct {
	Minified  bool
	Gzip      bool
	GzipLevel int
}

func (o Options) gzipLevel() int {
	if o.GzipLevel == 0 {
		return DefaultGzipLevel
	}
	return o.GzipLevel
}

// ValidGzipLevel reports whether level is usable; zero selects the default
func ValidGzipLevel(level int) bool {
	return level == 0 || (level >= gzip.BestSpeed && level <= gzip.BestCompression)
}

// Estimator computes module sizes. The zero value is ready to use.
type Estimator struct {
	// Workers bounds concurrent minify/gzip work; zero means GOMAXPROCS
	Workers int
}

// NewEstimator creates an estimator sized to the machine
func NewEstimator() *Estimator {
	return &Estimator{Workers: runtime.GOMAXPROCS(0)}
}

// Estimate sets Size on every module and MinifiedSize/GzipSize when requested.
// Modules are updated in place; no totals are kept.
func (e *Estimator) Estimate(mods []*bundle.Module, opts Options) error {
	if !ValidGzipLevel(opts.GzipLevel) {
		return fmt.Errorf("gzip level %d out of range %d..%d", opts.GzipLevel, gzip.BestSpeed, gzip.BestCompression)
	}

	for _, m := range mods {
		m.Size = RawSize(m)
		m.MinifiedSize = nil
		m.GzipSize = nil
	}
	if !opts.Minified && !opts.Gzip {
		return nil
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, m := range mods {
		g.Go(func() error {
			if opts.Minified {
				n := MinifiedSize(m)
				m.MinifiedSize = &n
			}
			if opts.Gzip {
				n, err := GzipSize(m, opts.gzipLevel())
				if err != nil {
					return fmt.Errorf("gzip module %s: %w", m.ID, err)
				}
				m.GzipSize = &n
			}
			return nil
		})
	}
	return g.Wait()
}

// RawSize is the source length of code modules and the declared size of synthetic ones
func RawSize(m *bundle.Module) int64 {
	if !m.HasSource() {
		return m.Size
	}
	return int64(len(m.Source))
}

// MinifiedSize never exceeds the raw size; synthetic modules report their raw size
func MinifiedSize(m *bundle.Module) int64 {
	size := RawSize(m)
	if !m.HasSource() {
		return size
	}
	n, ok := minifiedLen(m.Source)
	if !ok || n > size {
		return size
	}
	return n
}

// GzipSize compresses the source, or an empty payload for synthetic modules
func GzipSize(m *bundle.Module, level int) (int64, error) {
	if !m.HasSource() {
		return gzipLen("", level)
	}
	return gzipLen(m.Source, level)
}

var transformOptions = api.TransformOptions{
	Loader:            api.LoaderJS,
	Target:            api.ESNext,
	MinifyWhitespace:  true,
	MinifyIdentifiers: true,
	MinifySyntax:      true,
	LogLevel:          api.LogLevelSilent,
}

// minifiedLen minifies a module body. Fragments that only parse as an expression (bare object
// literals from JSON modules) are retried wrapped in parentheses.
func minifiedLen(src string) (int64, bool) {
	if src == "" {
		return 0, true
	}
	result := api.Transform(src, transformOptions)
	if len(result.Errors) == 0 {
		return int64(len(result.Code)), true
	}
	result = api.Transform("("+src+")", transformOptions)
	if len(result.Errors) == 0 {
		return int64(len(result.Code)), true
	}
	return 0, false
}

type countWriter struct{ n int64 }

func (w *countWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func gzipLen(src string, level int) (int64, error) {
	var cw countWriter
	zw, err := gzip.NewWriterLevel(&cw, level)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write([]byte(src)); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}
