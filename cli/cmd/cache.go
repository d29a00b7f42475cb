package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cranesandcaff/inspectpack/cli/output"
	"github.com/cranesandcaff/inspectpack/cli/util"
	"github.com/cranesandcaff/inspectpack/internal/cache/store"
	"github.com/cranesandcaff/inspectpack/internal/config"
)

func (a *app) cacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
		Long: `Inspect and maintain the result cache. The store is --cache when given, otherwise the
cache section of the configuration.`,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entry count and size of the result cache",
		Long: `Show entry count and size of the result cache.

Examples:
  inspectpack cache stats
  inspectpack cache stats --cache ./results.ipkc -o json`,
		Args: cobra.NoArgs,
		RunE: a.runCacheStats,
	}

	compactCmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the cache file without superseded records",
		Long: `Rewrite the cache file without superseded records.

Examples:
  inspectpack cache compact --cache ./results.ipkc`,
		Args: cobra.NoArgs,
		RunE: a.runCacheCompact,
	}

	cacheCmd.AddCommand(statsCmd, compactCmd)
	return cacheCmd
}

// CacheStats is the output of cache stats
type CacheStats struct {
	Driver  string `json:"driver" yaml:"driver"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Entries int    `json:"entries" yaml:"entries"`
	Bytes   int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
}

func (a *app) openStore() (store.Store, config.CacheConfig, error) {
	cc := a.config.Cache
	if a.cachePath != "" {
		cc.Driver = "file"
		cc.Path = a.cachePath
	}
	st, err := store.New(&cc)
	return st, cc, err
}

func (a *app) runCacheStats(cmd *cobra.Command, args []string) error {
	st, cc, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	stats := CacheStats{Driver: cc.Driver, Entries: st.Len()}
	if fs, ok := st.(*store.FileStore); ok {
		stats.Path = fs.Path()
		stats.Bytes = fs.Size()
	}

	if a.formatter.Format.Structured() {
		return a.formatter.Print(stats)
	}
	return a.formatter.PrintTable(output.TableData{
		Headers: []string{"DRIVER", "PATH", "ENTRIES", "SIZE"},
		Rows: [][]string{{
			stats.Driver,
			stats.Path,
			strconv.Itoa(stats.Entries),
			a.bytes(stats.Bytes),
		}},
	})
}

func (a *app) runCacheCompact(cmd *cobra.Command, args []string) error {
	st, cc, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	compactor, ok := st.(store.Compactor)
	if !ok {
		return errors.New("the " + cc.Driver + " cache driver does not support compaction")
	}

	stats, err := compactor.Compact(cmd.Context())
	if err != nil {
		return err
	}

	if a.formatter.Format.Structured() {
		return a.formatter.Print(stats)
	}
	a.formatter.PrintInfo(fmt.Sprintf("Compacted %d entries: %s -> %s",
		stats.Entries, a.bytes(stats.BytesBefore), a.bytes(stats.BytesAfter)))
	return nil
}

func (a *app) bytes(n int64) string {
	if a.formatter.Format == output.FormatTable {
		return util.FormatBytes(n)
	}
	return strconv.FormatInt(n, 10)
}
