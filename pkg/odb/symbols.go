package odb

import (
	"fmt"
	"io"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// SymbolTable interns standard symbol names. Identical dimension strings
// share one index.
type SymbolTable struct {
	f     Formatter
	index map[string]int
	names []string
}

// NewSymbolTable returns an empty table formatting sizes with f
func NewSymbolTable(f Formatter) *SymbolTable {
	return &SymbolTable{f: f, index: map[string]int{}}
}

// Intern returns the index of name, adding it when new
func (t *SymbolTable) Intern(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	i := len(t.names)
	t.index[name] = i
	t.names = append(t.names, name)
	return i
}

// Len returns the number of symbols
func (t *SymbolTable) Len() int { return len(t.names) }

// Names returns the symbols in index order
func (t *SymbolTable) Names() []string { return t.names }

// Round returns the index of a circle of diameter d
func (t *SymbolTable) Round(d int64) int {
	return t.Intern("r" + t.f.Size(d))
}

// Rect returns the index of a w x h rectangle
func (t *SymbolTable) Rect(w, h int64) int {
	return t.Intern("rect" + t.f.Size(w) + "x" + t.f.Size(h))
}

// Oval returns the index of a w x h oval, or a circle when w == h
func (t *SymbolTable) Oval(w, h int64) int {
	if w == h {
		return t.Round(w)
	}
	return t.Intern("oval" + t.f.Size(w) + "x" + t.f.Size(h))
}

// RoundRect returns the index of a rectangle with rounded corners
func (t *SymbolTable) RoundRect(w, h, radius int64) int {
	if radius <= 0 {
		return t.Rect(w, h)
	}
	return t.Intern("rect" + t.f.Size(w) + "x" + t.f.Size(h) + "xr" + t.f.Size(radius))
}

// ChamferedRect returns the index of a rectangle with chamfered corners.
// corners is a geom.Chamfer* mask; all four corners leave the list out.
func (t *SymbolTable) ChamferedRect(w, h, chamfer int64, corners int) int {
	if chamfer <= 0 || corners == 0 {
		return t.Rect(w, h)
	}
	return t.Intern("rect" + t.f.Size(w) + "x" + t.f.Size(h) + "xc" + t.f.Size(chamfer) + cornerList(corners))
}

// cornerList numbers corners counter-clockwise from the top right
func cornerList(corners int) string {
	order := []int{geom.ChamferTopRight, geom.ChamferTopLeft, geom.ChamferBottomLeft, geom.ChamferBottomRight}
	var b strings.Builder
	n := 0
	for i, c := range order {
		if corners&c != 0 {
			b.WriteByte(byte('1' + i))
			n++
		}
	}
	if n == len(order) {
		return ""
	}
	return "x" + b.String()
}

// PadSymbol returns the symbol of a pad inflated by margin on each side.
// ok is false for shapes that have no standard symbol; those are written as
// surfaces.
func (t *SymbolTable) PadSymbol(p *board.Pad, margin int64) (sym int, ok bool) {
	w, h := p.Size.X+2*margin, p.Size.Y+2*margin
	if w <= 0 || h <= 0 {
		return 0, false
	}
	switch p.Shape {
	case board.PadCircle:
		return t.Round(w), true
	case board.PadOval:
		return t.Oval(w, h), true
	case board.PadRect:
		return t.Rect(w, h), true
	case board.PadRoundRect:
		return t.RoundRect(w, h, max(p.CornerRadius()+margin, 0)), true
	case board.PadChamferedRect:
		if p.CornerRadius() > 0 {
			return 0, false
		}
		return t.ChamferedRect(w, h, p.ChamferSize(), p.Chamfer), true
	}
	return 0, false
}

// WriteTo writes the "$n name" lines
func (t *SymbolTable) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for i, name := range t.names {
		m, err := fmt.Fprintf(w, "$%d %s\n", i, name)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
