package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceExport/internal/config"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/odb"
)

var odbOutput string

var odbCmd = &cobra.Command{
	Use:   "odb <board_file>",
	Short: "Export a board as an ODB++ job",
	Long: `Writes the layer matrix, features, drill tools, components, eda data and
netlist of a board as an ODB++ job below the output directory, optionally
packed as .tgz or .zip.`,
	Args: cobra.ExactArgs(1),
	RunE: runODB,
}

func init() {
	rootCmd.AddCommand(odbCmd)
	f := odbCmd.Flags()
	f.StringVarP(&odbOutput, "output", "o", "", "output directory (default: next to the board)")
	f.String("units", "mm", "units: mm or inch")
	f.Int("precision", odb.DefaultPrecision, fmt.Sprintf("coordinate decimals, %d to %d", odb.MinPrecision, odb.MaxPrecision))
	f.String("compress", "none", "packaging: none, tgz or zip")
	f.String("job-name", "", "job name (default: board name)")
	bindFlags(odbCmd, map[string]string{
		"units":     config.ODBUnits,
		"precision": config.ODBPrecision,
		"compress":  config.ODBCompress,
		"job-name":  config.ODBJobName,
	})
}

func runODB(cmd *cobra.Command, args []string) error {
	cfg, err := config.ODB(v)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	b, err := loadBoard(args[0])
	if err != nil {
		return err
	}

	dir := odbOutput
	if dir == "" {
		dir = filepath.Dir(args[0])
	}
	out, st, err := odb.NewExporter(cfg, log, meter).ExportStats(b, dir)
	if err != nil {
		return fmt.Errorf("odb++ export: %w", err)
	}

	fmt.Printf("✓ Wrote %s\n", out)
	fmt.Printf("  Layers: %d\n", st.Layers)
	fmt.Printf("  Features: %d\n", st.Features)
	fmt.Printf("  Nets: %d\n", st.Nets)
	fmt.Printf("  Packages: %d\n", st.Packages)
	fmt.Printf("  Components: %d\n", st.Components)
	if st.Skipped > 0 {
		fmt.Printf("  Skipped items: %d (see log)\n", st.Skipped)
	}
	return nil
}
