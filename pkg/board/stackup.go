package board

import "fmt"

// StackupItemType classifies stackup entries
type StackupItemType int

const (
	StackupCopper StackupItemType = iota
	StackupDielectric
	StackupSolderMask
	StackupSilkScreen
	StackupSolderPaste
)

func (t StackupItemType) String() string {
	switch t {
	case StackupCopper:
		return "copper"
	case StackupDielectric:
		return "dielectric"
	case StackupSolderMask:
		return "soldermask"
	case StackupSilkScreen:
		return "silkscreen"
	case StackupSolderPaste:
		return "solderpaste"
	}
	return "unknown"
}

// Dielectric type names
const (
	DielectricCore    = "core"
	DielectricPrepreg = "prepreg"
)

// Sublayer is one physical layer of a dielectric entry
type Sublayer struct {
	Thickness   int64
	Material    string
	EpsilonR    float64
	LossTangent float64
}

// StackupItem is one entry of the board cross-section
type StackupItem struct {
	Type StackupItemType
	// Layer is the board layer for copper, mask, silk and paste entries
	Layer LayerID
	Name  string
	// DielectricType is "core" or "prepreg" for dielectric entries
	DielectricType string
	Thickness      int64
	// Sublayers holds extra dielectric layers after the first one
	Sublayers []Sublayer
	Material  string
	Color     string
}

// SublayerCount returns the number of physical layers of the entry
func (it StackupItem) SublayerCount() int {
	return 1 + len(it.Sublayers)
}

// SublayerThickness returns the thickness of physical layer idx
func (it StackupItem) SublayerThickness(idx int) int64 {
	if idx == 0 {
		return it.Thickness
	}
	return it.Sublayers[idx-1].Thickness
}

// TotalThickness sums every sublayer
func (it StackupItem) TotalThickness() int64 {
	t := int64(0)
	for i := 0; i < it.SublayerCount(); i++ {
		t += it.SublayerThickness(i)
	}
	return t
}

// Stackup is the ordered board cross-section, front side first
type Stackup struct {
	Items []StackupItem
}

// Default thicknesses, board units
const (
	DefaultCopperThickness = 35_000
	DefaultMaskThickness   = 10_000
	DefaultBoardThickness  = 1_600_000

	// DefaultHolePlatingThickness is the barrel thickness when the board
	// file does not set one
	DefaultHolePlatingThickness = 25_000
)

// DefaultStackup builds the stackup used when the board file has none:
// copper layers separated by dielectrics sharing what is left of the board
// thickness, prepreg and core alternating from the outside in. A single
// sided board is F.Cu on one core.
func DefaultStackup(copperCount int, boardThickness int64) Stackup {
	copperCount = min(max(copperCount, 1), 32)
	if boardThickness <= 0 {
		boardThickness = DefaultBoardThickness
	}

	var st Stackup
	st.Items = append(st.Items,
		StackupItem{Type: StackupSilkScreen, Layer: FSilkS, Name: "F.SilkS"},
		StackupItem{Type: StackupSolderPaste, Layer: FPaste, Name: "F.Paste"},
		StackupItem{Type: StackupSolderMask, Layer: FMask, Name: "F.Mask", Thickness: DefaultMaskThickness},
	)

	copper := CopperLayers(copperCount).Layers()
	dielectrics := max(len(copper)-1, 1)
	remaining := boardThickness - int64(len(copper))*DefaultCopperThickness
	if remaining < 0 {
		remaining = 0
	}
	each := remaining / int64(dielectrics)

	for i, l := range copper {
		st.Items = append(st.Items, StackupItem{
			Type:      StackupCopper,
			Layer:     l,
			Name:      l.Name(),
			Thickness: DefaultCopperThickness,
		})
		if i == len(copper)-1 && len(copper) > 1 {
			break
		}
		kind := DielectricCore
		if i%2 == 0 && len(copper) > 2 {
			kind = DielectricPrepreg
		}
		st.Items = append(st.Items, StackupItem{
			Type:           StackupDielectric,
			Layer:          UndefinedLayer,
			Name:           fmt.Sprintf("dielectric %d", i+1),
			DielectricType: kind,
			Thickness:      each,
			Material:       "FR4",
		})
	}

	st.Items = append(st.Items,
		StackupItem{Type: StackupSolderMask, Layer: BMask, Name: "B.Mask", Thickness: DefaultMaskThickness},
		StackupItem{Type: StackupSolderPaste, Layer: BPaste, Name: "B.Paste"},
		StackupItem{Type: StackupSilkScreen, Layer: BSilkS, Name: "B.SilkS"},
	)
	return st
}

// Copper returns the copper entries, front to back
func (s Stackup) Copper() []StackupItem {
	var out []StackupItem
	for _, it := range s.Items {
		if it.Type == StackupCopper {
			out = append(out, it)
		}
	}
	return out
}

// Find returns the entry for a board layer
func (s Stackup) Find(l LayerID) (StackupItem, bool) {
	for _, it := range s.Items {
		if it.Type != StackupDielectric && it.Layer == l {
			return it, true
		}
	}
	return StackupItem{}, false
}

// Thickness sums copper and dielectric entries
func (s Stackup) Thickness() int64 {
	t := int64(0)
	for _, it := range s.Items {
		if it.Type == StackupCopper || it.Type == StackupDielectric {
			t += it.TotalThickness()
		}
	}
	return t
}
