package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceExport/internal/preview"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
)

var (
	previewOutput string
	previewBack   bool
	previewBare   bool
)

var previewCmd = &cobra.Command{
	Use:   "preview <board_file>",
	Short: "Draw the board as an SVG picture",
	Long: `Renders the outline, copper, pads, vias and drills of one board side to a
millimetre scaled SVG file. Useful to check the outline the exporters found.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringVarP(&previewOutput, "output", "o", "", "output SVG (default: board name with .svg)")
	previewCmd.Flags().BoolVar(&previewBack, "back", false, "look at the back side, mirrored")
	previewCmd.Flags().BoolVar(&previewBare, "bare", false, "leave tracks and zones out")
}

func runPreview(cmd *cobra.Command, args []string) error {
	b, err := loadBoard(args[0])
	if err != nil {
		return err
	}
	opt := preview.DefaultOptions()
	if previewBack {
		opt.Side = board.Back
	}
	if previewBare {
		opt.Tracks, opt.Zones = false, false
	}

	out := previewOutput
	if out == "" {
		out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".svg"
	}
	if err := preview.WriteFile(out, b, opt); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	meter.File("svg")
	fmt.Printf("✓ Wrote %s\n", out)
	return nil
}
