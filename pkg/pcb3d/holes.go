package pcb3d

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// BoxSorter answers "which boxes touch this one" over a fixed set of boxes.
// The XY extent of a global box is split into a uniform grid; each box is
// registered in the cells it covers and a query only looks at the boxes
// of the cells it covers itself.
type BoxSorter struct {
	global brep.Box
	boxes  []brep.Box
	n      int
	cells  [][]int
	cw, ch float64
}

// NewBoxSorter indexes boxes inside global, which must enclose all of
// them
func NewBoxSorter(global brep.Box, boxes []brep.Box) *BoxSorter {
	n := int(math.Ceil(math.Sqrt(float64(len(boxes)))))
	n = min(max(n, 1), 256)
	s := &BoxSorter{
		global: global,
		boxes:  boxes,
		n:      n,
		cells:  make([][]int, n*n),
		cw:     (global.Max.X - global.Min.X) / float64(n),
		ch:     (global.Max.Y - global.Min.Y) / float64(n),
	}
	for i, b := range boxes {
		if brep.IsVoid(b) {
			continue
		}
		x0, y0, x1, y1 := s.span(b)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				s.cells[y*n+x] = append(s.cells[y*n+x], i)
			}
		}
	}
	return s
}

// span returns the grid cells covered by b, clamped to the grid
func (s *BoxSorter) span(b brep.Box) (x0, y0, x1, y1 int) {
	cell := func(v, origin, size float64) int {
		if size <= 0 {
			return 0
		}
		return min(max(int(math.Floor((v-origin)/size)), 0), s.n-1)
	}
	x0 = cell(b.Min.X, s.global.Min.X, s.cw)
	x1 = cell(b.Max.X, s.global.Min.X, s.cw)
	y0 = cell(b.Min.Y, s.global.Min.Y, s.ch)
	y1 = cell(b.Max.Y, s.global.Min.Y, s.ch)
	return
}

// Compare returns, in ascending order, the indices of every indexed box
// that overlaps q
func (s *BoxSorter) Compare(q brep.Box) []int {
	if brep.IsVoid(q) || !brep.Overlaps(q, s.global) {
		return nil
	}
	seen := map[int]bool{}
	var out []int
	x0, y0, x1, y1 := s.span(q)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			for _, i := range s.cells[y*s.n+x] {
				if seen[i] {
					continue
				}
				seen[i] = true
				if brep.Overlaps(q, s.boxes[i]) {
					out = append(out, i)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// HoleResult is the outcome of SubtractHoles
type HoleResult struct {
	Items []Item
	// Cuts counts the boolean operations issued, Degraded those that
	// reported errors or warnings
	Cuts     int
	Degraded int
}

// SubtractHoles removes from every target the cutouts whose bounding box
// overlaps its own, with one cut per target. A cut that reports errors or
// warnings is logged with the target box and its result is still used.
func SubtractHoles(k brep.Kernel, what string, targets []Item, cutouts []brep.Shape, log *zap.Logger) HoleResult {
	res := HoleResult{Items: targets}
	if len(targets) == 0 || len(cutouts) == 0 {
		return res
	}

	global := brep.EmptyBox()
	tboxes := make([]brep.Box, len(targets))
	for i, t := range targets {
		tboxes[i] = k.Bounds(t.Shape)
		global = brep.Merge(global, tboxes[i])
	}
	cboxes := make([]brep.Box, len(cutouts))
	for i, c := range cutouts {
		cboxes[i] = k.Bounds(c)
		global = brep.Merge(global, cboxes[i])
	}
	sorter := NewBoxSorter(global, cboxes)

	out := make([]Item, len(targets))
	copy(out, targets)
	for i, t := range targets {
		idx := sorter.Compare(tboxes[i])
		if len(idx) == 0 {
			continue
		}
		tools := make([]brep.Shape, len(idx))
		for j, ci := range idx {
			tools[j] = cutouts[ci]
		}

		shape, rep := cut(k, t.Shape, tools)
		res.Cuts++
		if !rep.OK() {
			res.Degraded++
			log.Warn("hole subtraction reported problems",
				zap.String("what", what),
				zap.String("item", t.Source),
				zap.String("bbox", brep.FormatBox(tboxes[i])),
				zap.Int("tools", len(tools)),
				zap.Strings("errors", rep.Errors),
				zap.Strings("warnings", rep.Warnings))
		}
		if shape != nil {
			out[i].Shape = shape
		}
	}
	res.Items = out
	return res
}

func cut(k brep.Kernel, target brep.Shape, tools []brep.Shape) (res brep.Shape, rep brep.Report) {
	defer func() {
		if r := recover(); r != nil {
			res = target
			rep.Errorf("%v: %v", ErrKernelPanic, r)
		}
	}()
	return k.Cut(target, tools, brep.BooleanOptions{Parallel: true})
}
