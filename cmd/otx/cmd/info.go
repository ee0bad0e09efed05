package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

var infoCmd = &cobra.Command{
	Use:   "info <board_file> [net_name]",
	Short: "Show board, stackup and net information",
	Long: `Display what the exporters will see in a board file.

Without net_name: board size, stackup and all nets with pad/track/via counts
With net_name: the pads, tracks and vias of that net`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	b, err := loadBoard(args[0])
	if err != nil {
		return err
	}
	if len(args) >= 2 {
		return showNet(b, args[1])
	}

	fmt.Printf("Board: %s\n", b.Name)
	if b.Title.Title != "" {
		fmt.Printf("  Title: %s rev %s\n", b.Title.Title, b.Title.Revision)
	}
	fmt.Printf("  Copper layers: %d\n", b.CopperSet().Len())
	fmt.Printf("  Thickness: %.3f mm\n", geom.ToMM(b.Stackup.Thickness()))
	if r := b.Outline.Bounds(); !r.Empty() {
		fmt.Printf("  Outline: %d contour(s), %.2f x %.2f mm\n", len(b.Outline), geom.ToMM(r.Width()), geom.ToMM(r.Height()))
	} else {
		fmt.Printf("  Outline: none (no closed Edge.Cuts contour)\n")
	}
	fmt.Printf("  Footprints: %d\n", len(b.Footprints))
	fmt.Printf("  Tracks: %d\n", len(b.Tracks))
	fmt.Printf("  Vias: %d\n", len(b.Vias))
	fmt.Printf("  Zones: %d\n", len(b.Zones))

	fmt.Printf("\nStackup:\n")
	for _, it := range b.Stackup.Items {
		name := it.Name
		if it.Type == board.StackupDielectric {
			name = fmt.Sprintf("%s (%s)", it.Name, it.DielectricType)
		}
		fmt.Printf("  %-12s %-28s %8.4f mm\n", it.Type, name, geom.ToMM(it.TotalThickness()))
	}

	listNets(b)
	return nil
}

type netCounts struct {
	pads, tracks, vias int
}

func countNets(b *board.Board) map[int]*netCounts {
	counts := map[int]*netCounts{}
	get := func(code int) *netCounts {
		c, ok := counts[code]
		if !ok {
			c = &netCounts{}
			counts[code] = c
		}
		return c
	}
	for _, p := range b.Pads() {
		get(p.Net).pads++
	}
	for _, t := range b.Tracks {
		get(t.Net).tracks++
	}
	for _, v := range b.Vias {
		get(v.Net).vias++
	}
	return counts
}

func listNets(b *board.Board) {
	counts := countNets(b)
	nets := append([]board.Net(nil), b.Nets...)
	sort.Slice(nets, func(i, j int) bool { return nets[i].Name < nets[j].Name })

	fmt.Printf("\nNets: %d\n\n", len(nets))
	fmt.Printf("%-30s %6s %6s %6s\n", "Net Name", "Pads", "Tracks", "Vias")
	fmt.Println("─────────────────────────────────────────────────────────")
	for _, n := range nets {
		if n.Code == 0 {
			continue
		}
		c := counts[n.Code]
		if c == nil {
			c = &netCounts{}
		}
		fmt.Printf("%-30s %6d %6d %6d\n", n.Name, c.pads, c.tracks, c.vias)
	}
}

func showNet(b *board.Board, name string) error {
	code := -1
	for _, n := range b.Nets {
		if n.Name == name {
			code = n.Code
			break
		}
	}
	if code < 0 {
		return fmt.Errorf("net '%s' not found", name)
	}
	fmt.Printf("Net: %s (number %d)\n\n", name, code)

	var pads []*board.Pad
	for _, p := range b.Pads() {
		if p.Net == code {
			pads = append(pads, p)
		}
	}
	fmt.Printf("Pads (%d):\n", len(pads))
	for _, p := range pads {
		pos := p.Pos
		fmt.Printf("  %s-%-4s: %s %.2f×%.2f mm at (%.2f, %.2f)\n",
			p.Footprint, p.Number, p.Shape,
			geom.ToMM(p.Size.X), geom.ToMM(p.Size.Y),
			geom.ToMM(pos.X), geom.ToMM(pos.Y))
	}

	fmt.Printf("\nTracks:\n")
	i := 0
	for _, t := range b.Tracks {
		if t.Net != code {
			continue
		}
		i++
		fmt.Printf("  Track %d: %.2f mm wide on %s from (%.2f, %.2f) to (%.2f, %.2f)\n",
			i, geom.ToMM(t.Width), t.Layer,
			geom.ToMM(t.Start.X), geom.ToMM(t.Start.Y),
			geom.ToMM(t.End.X), geom.ToMM(t.End.Y))
	}

	fmt.Printf("\nVias:\n")
	i = 0
	for _, via := range b.Vias {
		if via.Net != code {
			continue
		}
		i++
		fmt.Printf("  Via %d: %.2f mm diameter, %.2f mm drill at (%.2f, %.2f), %s-%s\n",
			i, geom.ToMM(via.Diameter), geom.ToMM(via.Drill),
			geom.ToMM(via.Pos.X), geom.ToMM(via.Pos.Y), via.Top, via.Bottom)
	}
	return nil
}
