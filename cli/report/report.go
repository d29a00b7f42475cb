// Package report turns analysis results into tables and a human summary.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cranesandcaff/inspectpack/cli/output"
	"github.com/cranesandcaff/inspectpack/cli/util"
	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/engine"
)

const (
	maxPathWidth    = 60
	maxSnippetWidth = 80
)

// Options controls how cells are rendered
type Options struct {
	// Human renders sizes as "1.5 KB" and shortens long paths; otherwise raw numbers and full paths
	Human bool
	// Limit caps the number of module rows (0 = all)
	Limit int
}

// Tables returns the tables for the stages the result's kind ran, in display order
func Tables(res *engine.Result, opts Options) []output.TableData {
	switch res.Kind {
	case engine.KindSizes:
		return []output.TableData{SizesTable(res, opts)}
	case engine.KindDuplicates:
		return []output.TableData{DuplicatesTable(res, opts)}
	case engine.KindCombined:
		return []output.TableData{SizesTable(res, opts), DuplicatesTable(res, opts)}
	case engine.KindPattern:
		return []output.TableData{PatternsTable(res, opts)}
	case engine.KindFiles:
		return []output.TableData{FilesTable(res, opts)}
	case engine.KindVersions:
		return []output.TableData{VersionsTable(res, opts)}
	default:
		return nil
	}
}

// SizesTable lists modules in bundle order
func SizesTable(res *engine.Result, opts Options) output.TableData {
	headers := []string{"ID", "FILE", "PACKAGE", "TYPE", "SIZE"}
	if res.Meta.TotalMinifiedSize != nil {
		headers = append(headers, "MINIFIED")
	}
	if res.Meta.TotalGzipSize != nil {
		headers = append(headers, "GZIP")
	}

	mods := res.Sizes
	if opts.Limit > 0 && len(mods) > opts.Limit {
		mods = mods[:opts.Limit]
	}

	data := output.TableData{Title: "Modules", Headers: headers, Rows: make([][]string, 0, len(mods))}
	for _, m := range mods {
		row := make([]string, 0, len(headers))
		row = append(row, m.ID, path(m.FileName, opts), packageLabel(m), string(m.Type), size(m.Size, opts))
		if res.Meta.TotalMinifiedSize != nil {
			row = append(row, optionalSize(m.MinifiedSize, opts))
		}
		if res.Meta.TotalGzipSize != nil {
			row = append(row, optionalSize(m.GzipSize, opts))
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// DuplicatesTable lists duplicate groups in first-occurrence order
func DuplicatesTable(res *engine.Result, opts Options) output.TableData {
	data := output.TableData{
		Title:   "Duplicates",
		Headers: []string{"FILE", "COPIES", "SIZE", "WASTED", "MODULES"},
		Rows:    make([][]string, 0, len(res.Duplicates)),
	}
	for _, g := range res.Duplicates {
		data.Rows = append(data.Rows, []string{
			path(g.BaseName, opts),
			strconv.Itoa(g.Count),
			size(g.Size, opts),
			size(g.WastedBytes, opts),
			strings.Join(g.Members, ","),
		})
	}
	return data
}

// PatternsTable lists suspicious source matches
func PatternsTable(res *engine.Result, opts Options) output.TableData {
	data := output.TableData{
		Title:   "Pattern matches",
		Headers: []string{"MODULE", "FILE", "PATTERN", "LINE", "SNIPPET"},
		Rows:    make([][]string, 0, len(res.Patterns)),
	}
	for _, m := range res.Patterns {
		data.Rows = append(data.Rows, []string{
			m.ModuleID,
			path(m.Identifier, opts),
			m.Pattern,
			strconv.Itoa(m.Line),
			snippet(m.Snippet, opts),
		})
	}
	return data
}

// FilesTable lists modules whose identifiers match a suspect file pattern
func FilesTable(res *engine.Result, opts Options) output.TableData {
	data := output.TableData{
		Title:   "File matches",
		Headers: []string{"MODULE", "FILE", "PATTERN"},
		Rows:    make([][]string, 0, len(res.Files)),
	}
	for _, m := range res.Files {
		data.Rows = append(data.Rows, []string{m.ModuleID, path(m.Identifier, opts), m.Pattern})
	}
	return data
}

// VersionsTable lists every install of packages bundled from more than one place
func VersionsTable(res *engine.Result, opts Options) output.TableData {
	data := output.TableData{
		Title:   "Version skew",
		Headers: []string{"PACKAGE", "VERSION", "PATH", "MODULES"},
	}
	for _, pkg := range res.Versions {
		for _, inst := range pkg.Installs {
			version := inst.Version
			if version == "" {
				version = "-"
			}
			data.Rows = append(data.Rows, []string{
				pkg.Name,
				version,
				path(inst.Path, opts),
				strconv.Itoa(len(inst.Modules)),
			})
		}
	}
	return data
}

// Summary prints the totals of a result
func Summary(w io.Writer, res *engine.Result) {
	meta := res.Meta
	_, _ = fmt.Fprintf(w, "\n=== Bundle Analysis (%s) ===\n", res.Kind)
	_, _ = fmt.Fprintf(w, "Modules:         %d (%d code, %d synthetic)\n", meta.NumModules, meta.NumCode, meta.NumSynthetic)
	if meta.NumAssets > 0 {
		_, _ = fmt.Fprintf(w, "Assets:          %d\n", meta.NumAssets)
	}
	_, _ = fmt.Fprintf(w, "Total size:      %s\n", util.FormatBytes(meta.TotalSize))
	if meta.TotalMinifiedSize != nil {
		_, _ = fmt.Fprintf(w, "Minified:        %s%s\n", util.FormatBytes(*meta.TotalMinifiedSize), ratio(*meta.TotalMinifiedSize, meta.TotalSize))
	}
	if meta.TotalGzipSize != nil {
		_, _ = fmt.Fprintf(w, "Gzipped:         %s%s\n", util.FormatBytes(*meta.TotalGzipSize), ratio(*meta.TotalGzipSize, meta.TotalSize))
	}

	switch res.Kind {
	case engine.KindDuplicates, engine.KindCombined:
		_, _ = fmt.Fprintf(w, "Duplicate files: %d (%d groups, %d modules)\n", meta.NumFilesWithDuplicates, meta.NumDuplicateGroups, meta.NumDuplicateModules)
		_, _ = fmt.Fprintf(w, "Wasted bytes:    %s\n", util.FormatBytes(meta.WastedBytes))
	case engine.KindPattern:
		_, _ = fmt.Fprintf(w, "Pattern matches: %d\n", len(res.Patterns))
	case engine.KindFiles:
		_, _ = fmt.Fprintf(w, "File matches:    %d\n", len(res.Files))
	case engine.KindVersions:
		_, _ = fmt.Fprintf(w, "Skewed packages: %d\n", len(res.Versions))
	}
	_, _ = fmt.Fprintln(w)
}

func ratio(part, whole int64) string {
	if whole == 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1f%%)", float64(part)/float64(whole)*100)
}

func packageLabel(m *bundle.Module) string {
	switch {
	case m.PackageName == "":
		return "-"
	case m.PackageVersion != "":
		return m.PackageName + "@" + m.PackageVersion
	default:
		return m.PackageName
	}
}

func path(p string, opts Options) string {
	if opts.Human {
		return util.TruncatePath(p, maxPathWidth)
	}
	return p
}

func size(n int64, opts Options) string {
	if opts.Human {
		return util.FormatBytes(n)
	}
	return strconv.FormatInt(n, 10)
}

func optionalSize(n *int64, opts Options) string {
	if n == nil {
		return "-"
	}
	return size(*n, opts)
}

func snippet(s string, opts Options) string {
	if opts.Human {
		return util.TruncateString(s, maxSnippetWidth)
	}
	return s
}
