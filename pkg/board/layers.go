package board

import (
	"math/bits"
	"strconv"
	"strings"
)

// LayerID identifies a board layer. Values follow the KiCad layer ordering:
// F.Cu first, then inner copper, then B.Cu and the technical layers.
type LayerID int

const (
	UndefinedLayer LayerID = -1

	FCu  LayerID = 0
	In1  LayerID = 1
	In30 LayerID = 30
	BCu  LayerID = 31

	BAdhes   LayerID = 32
	FAdhes   LayerID = 33
	BPaste   LayerID = 34
	FPaste   LayerID = 35
	BSilkS   LayerID = 36
	FSilkS   LayerID = 37
	BMask    LayerID = 38
	FMask    LayerID = 39
	DwgsUser LayerID = 40
	CmtsUser LayerID = 41
	Eco1User LayerID = 42
	Eco2User LayerID = 43
	EdgeCuts LayerID = 44
	Margin   LayerID = 45
	BCrtYd   LayerID = 46
	FCrtYd   LayerID = 47
	BFab     LayerID = 48
	FFab     LayerID = 49

	LayerCount = 50
)

var technicalNames = map[LayerID]string{
	BAdhes:   "B.Adhes",
	FAdhes:   "F.Adhes",
	BPaste:   "B.Paste",
	FPaste:   "F.Paste",
	BSilkS:   "B.SilkS",
	FSilkS:   "F.SilkS",
	BMask:    "B.Mask",
	FMask:    "F.Mask",
	DwgsUser: "Dwgs.User",
	CmtsUser: "Cmts.User",
	Eco1User: "Eco1.User",
	Eco2User: "Eco2.User",
	EdgeCuts: "Edge.Cuts",
	Margin:   "Margin",
	BCrtYd:   "B.CrtYd",
	FCrtYd:   "F.CrtYd",
	BFab:     "B.Fab",
	FFab:     "F.Fab",
}

// aliases accepted in board files besides the canonical names
var layerAliases = map[string]LayerID{
	"B.Adhesive":    BAdhes,
	"F.Adhesive":    FAdhes,
	"B.Silkscreen":  BSilkS,
	"F.Silkscreen":  FSilkS,
	"B.Courtyard":   BCrtYd,
	"F.Courtyard":   FCrtYd,
	"User.Drawings": DwgsUser,
	"User.Comments": CmtsUser,
	"User.Eco1":     Eco1User,
	"User.Eco2":     Eco2User,
}

// Name returns the canonical layer name, e.g. "F.Cu" or "In2.Cu"
func (l LayerID) Name() string {
	switch {
	case l == FCu:
		return "F.Cu"
	case l == BCu:
		return "B.Cu"
	case l >= In1 && l <= In30:
		return "In" + strconv.Itoa(int(l)) + ".Cu"
	}
	if n, ok := technicalNames[l]; ok {
		return n
	}
	return "Undefined"
}

func (l LayerID) String() string { return l.Name() }

// IsCopper reports whether l is a copper layer
func (l LayerID) IsCopper() bool {
	return l >= FCu && l <= BCu
}

// IsFront reports whether l belongs to the front side
func (l LayerID) IsFront() bool {
	switch l {
	case FCu, FAdhes, FPaste, FSilkS, FMask, FCrtYd, FFab:
		return true
	}
	return false
}

// IsBack reports whether l belongs to the back side
func (l LayerID) IsBack() bool {
	switch l {
	case BCu, BAdhes, BPaste, BSilkS, BMask, BCrtYd, BFab:
		return true
	}
	return false
}

// Flip returns the matching layer on the opposite side
func (l LayerID) Flip() LayerID {
	switch l {
	case FCu:
		return BCu
	case BCu:
		return FCu
	case FAdhes, FPaste, FSilkS, FMask:
		return l - 1
	case BAdhes, BPaste, BSilkS, BMask:
		return l + 1
	case FCrtYd, FFab:
		return l - 1
	case BCrtYd, BFab:
		return l + 1
	}
	return l
}

// LayerByName resolves a layer name. Inner copper layers are named In<n>.Cu.
func LayerByName(name string) (LayerID, bool) {
	switch name {
	case "F.Cu":
		return FCu, true
	case "B.Cu":
		return BCu, true
	}
	if strings.HasPrefix(name, "In") && strings.HasSuffix(name, ".Cu") {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "In"), ".Cu"))
		if err == nil && n >= 1 && n <= 30 {
			return LayerID(n), true
		}
		return UndefinedLayer, false
	}
	for id, n := range technicalNames {
		if n == name {
			return id, true
		}
	}
	if id, ok := layerAliases[name]; ok {
		return id, true
	}
	return UndefinedLayer, false
}

// LayerSet is a bit set of layers
type LayerSet uint64

// NewLayerSet returns a set holding the given layers
func NewLayerSet(layers ...LayerID) LayerSet {
	var s LayerSet
	for _, l := range layers {
		s = s.With(l)
	}
	return s
}

// CopperLayers returns the set of copper layers used by a board with n copper
// layers: F.Cu, In1..In(n-2), B.Cu
func CopperLayers(n int) LayerSet {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return NewLayerSet(FCu)
	}
	s := NewLayerSet(FCu, BCu)
	for i := 1; i <= n-2 && i <= 30; i++ {
		s = s.With(LayerID(i))
	}
	return s
}

// AllCopper holds every copper layer
var AllCopper = func() LayerSet {
	var s LayerSet
	for l := FCu; l <= BCu; l++ {
		s = s.With(l)
	}
	return s
}()

func (s LayerSet) With(l LayerID) LayerSet {
	if l < 0 || l >= LayerCount {
		return s
	}
	return s | 1<<uint(l)
}

func (s LayerSet) Without(l LayerID) LayerSet {
	if l < 0 || l >= LayerCount {
		return s
	}
	return s &^ (1 << uint(l))
}

// Has reports whether l is in the set
func (s LayerSet) Has(l LayerID) bool {
	return l >= 0 && l < LayerCount && s&(1<<uint(l)) != 0
}

// Len returns the number of layers in the set
func (s LayerSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Copper returns the copper part of the set
func (s LayerSet) Copper() LayerSet {
	return s & AllCopper
}

// Layers returns the layers of the set in ID order, which for copper is
// front to back
func (s LayerSet) Layers() []LayerID {
	var out []LayerID
	for l := LayerID(0); l < LayerCount; l++ {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

func (s LayerSet) String() string {
	names := make([]string, 0, s.Len())
	for _, l := range s.Layers() {
		names = append(names, l.Name())
	}
	return strings.Join(names, ",")
}

// ExpandLayerPattern resolves layer names found in pad and zone layer lists,
// including the wildcard forms "*.Cu", "*.Mask", "F&B.Cu" and friends.
// enabled limits "*.Cu" to the copper layers the board actually has.
func ExpandLayerPattern(name string, enabled LayerSet) LayerSet {
	switch name {
	case "*.Cu":
		if enabled.Copper() != 0 {
			return enabled.Copper()
		}
		return AllCopper
	case "*In.Cu":
		return (enabled.Copper()).Without(FCu).Without(BCu)
	case "F&B.Cu":
		return NewLayerSet(FCu, BCu)
	}
	if strings.HasPrefix(name, "*.") || strings.HasPrefix(name, "F&B.") {
		suffix := name[strings.Index(name, ".")+1:]
		var s LayerSet
		if f, ok := LayerByName("F." + suffix); ok {
			s = s.With(f)
		}
		if b, ok := LayerByName("B." + suffix); ok {
			s = s.With(b)
		}
		return s
	}
	if l, ok := LayerByName(name); ok {
		return NewLayerSet(l)
	}
	return 0
}
