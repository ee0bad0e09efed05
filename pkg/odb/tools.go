package odb

import (
	"fmt"
	"io"
	"strings"
)

// ToolType is the TYPE of a drill tool
type ToolType string

const (
	ToolPlated    ToolType = "PLATED"
	ToolNonPlated ToolType = "NON_PLATED"
	ToolVia       ToolType = "VIA"
)

// Tool is one drill size of a drill layer
type Tool struct {
	Num      int
	Diameter int64
	Plated   int
	NPlated  int
	Vias     int
}

// Type returns VIA when every hit is a via, NON_PLATED when no hit is
// plated, PLATED otherwise
func (t *Tool) Type() ToolType {
	switch {
	case t.Vias > 0 && t.Plated == 0 && t.NPlated == 0:
		return ToolVia
	case t.Plated == 0 && t.Vias == 0:
		return ToolNonPlated
	}
	return ToolPlated
}

// ToolTable accumulates the drill tools of a layer keyed by formatted
// diameter
type ToolTable struct {
	f     Formatter
	tools []*Tool
	index map[string]*Tool
}

// NewToolTable returns an empty table
func NewToolTable(f Formatter) *ToolTable {
	return &ToolTable{f: f, index: map[string]*Tool{}}
}

// Add counts a hit of diameter d. via and plated select the counter.
func (t *ToolTable) Add(d int64, plated, via bool) *Tool {
	key := t.f.Size(d)
	tool, ok := t.index[key]
	if !ok {
		tool = &Tool{Num: len(t.tools) + 1, Diameter: d}
		t.tools = append(t.tools, tool)
		t.index[key] = tool
	}
	switch {
	case via:
		tool.Vias++
	case plated:
		tool.Plated++
	default:
		tool.NPlated++
	}
	return tool
}

// Tools returns the tools in numbering order
func (t *ToolTable) Tools() []*Tool { return t.tools }

// WriteTo writes the tools file
func (t *ToolTable) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "UNITS=%s\n", t.f.Units)
	b.WriteString("THICKNESS=0\nUSER_PARAMS=\n")
	for _, tool := range t.tools {
		size := t.f.Size(tool.Diameter)
		b.WriteString("TOOLS {\n")
		fmt.Fprintf(&b, "   NUM=%d\n", tool.Num)
		fmt.Fprintf(&b, "   TYPE=%s\n", tool.Type())
		b.WriteString("   TYPE2=STANDARD\n")
		b.WriteString("   MIN_TOL=0\n   MAX_TOL=0\n   BIT=\n")
		fmt.Fprintf(&b, "   FINISH_SIZE=%s\n", size)
		fmt.Fprintf(&b, "   DRILL_SIZE=%s\n", size)
		b.WriteString("}\n\n")
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
