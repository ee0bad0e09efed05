package prism

import (
	"bufio"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// BREPHeader opens every native file
const BREPHeader = "PRISM-BREP 1"

// WriteBREP writes s in the kernel's text format: unplaced prisms keep
// their outline and height range, everything else is written as world
// space facets.
//
//	PRISM-BREP 1
//	prism <z0> <z1> <loops>
//	loop <n>
//	<x> <y>
//	polyhedron <faces>
//	face <loops>
//	loop <n>
//	<x> <y> <z>
func (k *Kernel) WriteBREP(w io.Writer, s brep.Shape) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, BREPHeader)

	k.solids(s, mgl64.Ident4(), func(leaf brep.Shape, m mgl64.Mat4) {
		if p, ok := leaf.(*Prism); ok && m.ApproxEqual(mgl64.Ident4()) {
			fmt.Fprintf(bw, "prism %s %s %d\n", brepReal(p.Z0), brepReal(p.Z1), 1+len(p.Holes))
			writeLoop2(bw, p.Outer)
			for _, h := range p.Holes {
				writeLoop2(bw, h)
			}
			return
		}
		fs := k.facets(leaf, m)
		fmt.Fprintf(bw, "polyhedron %d\n", len(fs))
		for _, f := range fs {
			fmt.Fprintf(bw, "face %d\n", 1+len(f.Holes))
			writeLoop3(bw, f.Outer)
			for _, h := range f.Holes {
				writeLoop3(bw, h)
			}
		}
	})
	return bw.Flush()
}

func writeLoop2(w *bufio.Writer, pts []r2.Vec) {
	fmt.Fprintf(w, "loop %d\n", len(pts))
	for _, p := range pts {
		fmt.Fprintf(w, "%s %s\n", brepReal(p.X), brepReal(p.Y))
	}
}

func writeLoop3(w *bufio.Writer, pts []mgl64.Vec3) {
	fmt.Fprintf(w, "loop %d\n", len(pts))
	for _, p := range pts {
		fmt.Fprintf(w, "%s %s %s\n", brepReal(p.X()), brepReal(p.Y()), brepReal(p.Z()))
	}
}

func brepReal(v float64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("%.9g", v)
}
