package odb

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
)

// LayerType is the matrix TYPE of a layer
type LayerType string

const (
	TypeSignal      LayerType = "SIGNAL"
	TypePowerGround LayerType = "POWER_GROUND"
	TypeSolderMask  LayerType = "SOLDER_MASK"
	TypeSolderPaste LayerType = "SOLDER_PASTE"
	TypeSilkScreen  LayerType = "SILK_SCREEN"
	TypeDrill       LayerType = "DRILL"
	TypeComponent   LayerType = "COMPONENT"
	TypeDielectric  LayerType = "DIELECTRIC"
	TypeDocument    LayerType = "DOCUMENT"
)

// Component layer names
const (
	CompTop    = "comp_+_top"
	CompBottom = "comp_+_bot"
)

// Layer is one row of the matrix
type Layer struct {
	Name string
	Type LayerType
	// Context is BOARD for fabrication layers, MISC otherwise
	Context string
	// Board is the source layer, board.UndefinedLayer for drill,
	// component and dielectric rows
	Board board.LayerID
	// Start and End name the copper span of drill layers
	Start, End     string
	DielectricType string
	Features       *FeaturesManager
}

// Matrix is the ordered layer list of a step
type Matrix struct {
	Step   string
	Layers []*Layer
	byName map[string]*Layer
}

// NewMatrix returns an empty matrix for step
func NewMatrix(step string) *Matrix {
	return &Matrix{Step: step, byName: map[string]*Layer{}}
}

// Add appends a layer. Adding an existing name returns the existing row.
func (m *Matrix) Add(l *Layer) *Layer {
	if old, ok := m.byName[l.Name]; ok {
		return old
	}
	if l.Context == "" {
		l.Context = "BOARD"
	}
	m.Layers = append(m.Layers, l)
	m.byName[l.Name] = l
	return l
}

// Layer returns the row called name
func (m *Matrix) Layer(name string) (*Layer, bool) {
	l, ok := m.byName[name]
	return l, ok
}

// LayerName returns the job name of a board layer, e.g. "f.cu"
func LayerName(l board.LayerID) string {
	return LegalEntityName(l.Name())
}

// DrillLayerName names the drill layer spanning top to bottom
func DrillLayerName(top, bottom board.LayerID, plated bool) string {
	if plated {
		return "drill_" + LayerName(top) + "-" + LayerName(bottom)
	}
	return "drill_npth_" + LayerName(top) + "-" + LayerName(bottom)
}

// buildMatrix lays out the rows of b from the front side to the back side
func buildMatrix(b *board.Board, f Formatter, step string) *Matrix {
	m := NewMatrix(step)
	newLayer := func(name string, t LayerType, id board.LayerID) *Layer {
		return m.Add(&Layer{Name: name, Type: t, Board: id, Features: NewFeaturesManager(f)})
	}
	enabled := b.Enabled
	tech := func(id board.LayerID, t LayerType) {
		if enabled == 0 || enabled.Has(id) {
			newLayer(LayerName(id), t, id)
		}
	}

	newLayer(CompTop, TypeComponent, board.UndefinedLayer)
	tech(board.FPaste, TypeSolderPaste)
	tech(board.FSilkS, TypeSilkScreen)
	tech(board.FMask, TypeSolderMask)

	dielectrics := dielectricTypes(b.Stackup)
	copper := b.CopperSet().Layers()
	for i, id := range copper {
		newLayer(LayerName(id), copperType(b, id), id)
		if i < len(copper)-1 {
			dt := board.DielectricCore
			if i < len(dielectrics) {
				dt = dielectrics[i]
			}
			l := newLayer(fmt.Sprintf("dielectric_%d", i+1), TypeDielectric, board.UndefinedLayer)
			l.DielectricType = dt
		}
	}

	tech(board.BMask, TypeSolderMask)
	tech(board.BSilkS, TypeSilkScreen)
	tech(board.BPaste, TypeSolderPaste)
	newLayer(CompBottom, TypeComponent, board.UndefinedLayer)
	return m
}

// addDrill returns the drill layer of a span, adding it at the end of the
// matrix when new
func (m *Matrix) addDrill(f Formatter, top, bottom board.LayerID, plated bool) *Layer {
	name := DrillLayerName(top, bottom, plated)
	if l, ok := m.byName[name]; ok {
		return l
	}
	return m.Add(&Layer{
		Name:     name,
		Type:     TypeDrill,
		Board:    board.UndefinedLayer,
		Start:    LayerName(top),
		End:      LayerName(bottom),
		Features: NewFeaturesManager(f),
	})
}

// dielectricTypes lists the dielectric kind between consecutive copper
// layers of the stackup
func dielectricTypes(s board.Stackup) []string {
	var out []string
	seenCopper := false
	for _, it := range s.Items {
		switch it.Type {
		case board.StackupCopper:
			seenCopper = true
		case board.StackupDielectric:
			if seenCopper {
				out = append(out, it.DielectricType)
			}
		}
	}
	return out
}

// copperType is POWER_GROUND when zone fills cover more than half of the
// board area on that layer
func copperType(b *board.Board, id board.LayerID) LayerType {
	boardArea := 0.0
	for _, p := range b.Outline {
		boardArea += polygonArea(p.Outline, p.Holes)
	}
	if boardArea == 0 {
		return TypeSignal
	}
	fill := 0.0
	for _, z := range b.Zones {
		if z.Keepout {
			continue
		}
		for _, p := range z.Fills[id] {
			fill += polygonArea(p.Outline, p.Holes)
		}
	}
	if fill > boardArea/2 {
		return TypePowerGround
	}
	return TypeSignal
}

// WriteTo writes the matrix file
func (m *Matrix) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "STEP {\n   COL=1\n   NAME=%s\n}\n\n", strings.ToUpper(m.Step))
	for i, l := range m.Layers {
		fmt.Fprintf(&b, "LAYER {\n")
		fmt.Fprintf(&b, "   ROW=%d\n", i+1)
		fmt.Fprintf(&b, "   CONTEXT=%s\n", l.Context)
		fmt.Fprintf(&b, "   TYPE=%s\n", l.Type)
		fmt.Fprintf(&b, "   NAME=%s\n", strings.ToUpper(l.Name))
		fmt.Fprintf(&b, "   OLD_NAME=\n")
		fmt.Fprintf(&b, "   POLARITY=POSITIVE\n")
		if l.Type == TypeDielectric {
			fmt.Fprintf(&b, "   DIELECTRIC_TYPE=%s\n", strings.ToUpper(l.DielectricType))
		} else {
			fmt.Fprintf(&b, "   DIELECTRIC_TYPE=NONE\n")
		}
		fmt.Fprintf(&b, "   DIELECTRIC_NAME=\n")
		fmt.Fprintf(&b, "   START_NAME=%s\n", strings.ToUpper(l.Start))
		fmt.Fprintf(&b, "   END_NAME=%s\n", strings.ToUpper(l.End))
		fmt.Fprintf(&b, "   COLOR=0\n")
		fmt.Fprintf(&b, "   ID=%d\n", i+1)
		fmt.Fprintf(&b, "}\n\n")
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// layerAttrs returns the attrlist file of l
func layerAttrs(l *Layer, st board.Stackup) string {
	var b strings.Builder
	if l.Board.IsCopper() {
		if it, ok := st.Find(l.Board); ok && it.Thickness > 0 {
			// 1 oz/ft2 is 34.79 um
			oz := float64(it.Thickness) / 34_790
			fmt.Fprintf(&b, ".copper_weight=%s\n", Double2String(math.Round(oz*100)/100, 2))
		}
	}
	return b.String()
}
