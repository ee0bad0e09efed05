package cmd

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/internal/config"
	"github.com/OpenTraceLab/OpenTraceExport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceExport/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceExport/internal/version"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/pcb"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	v        = config.New()
	log      = zap.NewNop()
	registry = prometheus.NewRegistry()
	meter    *metrics.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "otx",
	Short: "OpenTraceExport - KiCad board export to MCAD and fabrication formats",
	Long: `OpenTraceExport (otx) converts KiCad boards (.kicad_pcb) into:
  - solid model assemblies: STEP, IGES, glTF, BREP and XAO
  - ODB++ fabrication jobs, as a directory, .tgz or .zip

Settings come from otx.toml (or .yaml/.json) in the current directory or
$HOME/.config/otx, OTX_* environment variables and flags.

Examples:
  otx export step board.kicad_pcb              # board.step next to the board
  otx export glb board.kicad_pcb -o board.glb  # binary glTF
  otx odb board.kicad_pcb -o out --compress tgz
  otx info board.kicad_pcb                     # stackup, nets and counts
  otx preview board.kicad_pcb -o board.svg`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		defer log.Sync() //nolint:errcheck
		if path := v.GetString(config.MetricsTextfile); path != "" {
			if err := metrics.WriteTextfile(path, registry); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default otx.toml in . or $HOME/.config/otx)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("metrics-file", "", "write Prometheus metrics to this file when done")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console or json")
	bindFlags(rootCmd, map[string]string{
		"metrics-file": config.MetricsTextfile,
		"log-format":   config.LogFormat,
	})
}

// setup loads the configuration and builds the logger and metrics shared
// by every command
func setup(cmd *cobra.Command, args []string) error {
	if err := config.Read(v, cfgFile); err != nil {
		return err
	}
	lc := config.Logging(v)
	if verbose {
		lc.Level = "debug"
	}
	l, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	log = l
	meter = metrics.New(registry)
	if f := v.ConfigFileUsed(); f != "" {
		log.Debug("config loaded", zap.String("file", f))
	}
	return nil
}

// bindFlags ties flags of cmd to setting keys. A flag set on the command
// line wins over the file and the environment.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for name, key := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// loadBoard parses a board file with the shared logger
func loadBoard(path string) (*board.Board, error) {
	b, err := pcb.NewParser(log).ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing board: %w", err)
	}
	log.Debug("board loaded",
		zap.String("file", path),
		zap.Int("footprints", len(b.Footprints)),
		zap.Int("tracks", len(b.Tracks)),
		zap.Int("vias", len(b.Vias)),
		zap.Int("zones", len(b.Zones)))
	return b, nil
}
