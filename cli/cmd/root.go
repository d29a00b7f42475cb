// Package cmd provides the Cobra commands for the inspectpack CLI.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cranesandcaff/inspectpack/cli/output"
	"github.com/cranesandcaff/inspectpack/internal/config"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// app carries the global flags and the state shared across commands
type app struct {
	cfgFile      string
	outputFmt    string
	noHeaders    bool
	quiet        bool
	debug        bool
	cachePath    string
	manifestPath string
	minified     bool
	gzip         bool
	gzipLevel    int
	limit        int

	v         *viper.Viper
	config    *config.Config
	formatter *output.Formatter
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "inspectpack",
		Short: "Inspect webpack bundles for size, duplication and version skew",
		Long: `inspectpack analyzes webpack bundles, from the development build output or from a
stats-shaped manifest.

Analyses:
  sizes       Per-module raw, minified and gzipped sizes
  duplicates  Modules bundled more than once with identical code
  analyze     Sizes and duplicates in one pass
  pattern     Module sources matching suspicious patterns
  files       Modules whose paths match suspicious patterns
  versions    Packages bundled from more than one install

Get started:
  inspectpack sizes dist/bundle.js --gzip
  inspectpack duplicates --manifest stats.json -o json`,
		SilenceUsage: true,
		// main prints the error once and picks the exit code
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./inspectpack.yaml)")
	pf.StringVarP(&a.outputFmt, "output", "o", "table", "output format: table, json, yaml, tsv")
	pf.BoolVar(&a.noHeaders, "no-headers", false, "hide table headers")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "minimal output")
	pf.BoolVar(&a.debug, "debug", false, "enable debug output")
	pf.StringVar(&a.cachePath, "cache", "", "result cache file; analyses are memoized when set")

	_ = a.v.BindPFlag("debug", pf.Lookup("debug"))

	rootCmd.AddCommand(a.analysisCommands()...)
	rootCmd.AddCommand(a.cacheCommand())
	rootCmd.AddCommand(versionCommand())

	return rootCmd
}

// Execute runs the CLI
func Execute() error {
	return NewRootCmd().Execute()
}

// initialize sets up logging, configuration and the formatter
func (a *app) initialize(cmd *cobra.Command) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if a.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	a.config = cfg

	format, err := output.ParseFormat(a.outputFmt)
	if err != nil {
		return err
	}
	a.formatter = output.NewFormatter(format, a.noHeaders, a.quiet)
	a.formatter.Writer = cmd.OutOrStdout()
	a.formatter.ErrWriter = cmd.ErrOrStderr()

	return nil
}
