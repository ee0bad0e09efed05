// Package pcb3d converts a board into a solid model assembly and writes
// it as STEP, IGES, glTF, BREP or XAO.
//
// An export runs in one pass on a Session: the Shape Accumulator turns
// board items into solids filed in typed buckets, holes are subtracted,
// component models are resolved and placed, and the resulting assembly is
// handed to one of the writers. Single items that fail to convert are
// logged and skipped; only a missing board outline, a broken stackup or a
// failed file write abort the export.
package pcb3d

import (
	"fmt"
	"path"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// Fixed model constants, millimetres
const (
	// BoardOffset lifts component models off the board surface
	BoardOffset = 0.05
	// HoleMargin extends hole cutouts past the board faces
	HoleMargin = 0.01
	// PadSurfaceOffset thickens outer-layer pads so their top face stays
	// separate from tracks and zones
	PadSurfaceOffset = 0.01
	// SilkOffset and MaskOffset place the flat silkscreen and soldermask
	// faces above the outer copper
	SilkOffset = 0.04
	MaskOffset = 0.015

	// DefaultMinDistance is the distance under which points merge
	DefaultMinDistance = 0.001

	// GLTFLinearDeflection and GLTFAngularDeflection control meshing
	GLTFLinearDeflection  = 0.14
	GLTFAngularDeflection = 30.0 // degrees
)

// OriginMode selects the point of the board mapped to the model origin
type OriginMode int

const (
	OriginAbsolute OriginMode = iota
	OriginBoardCenter
	OriginAux
	OriginGrid
	OriginUser
)

var originNames = map[string]OriginMode{
	"absolute": OriginAbsolute,
	"center":   OriginBoardCenter,
	"aux":      OriginAux,
	"grid":     OriginGrid,
	"user":     OriginUser,
}

// ParseOrigin resolves an origin mode name
func ParseOrigin(s string) (OriginMode, error) {
	if m, ok := originNames[strings.ToLower(s)]; ok {
		return m, nil
	}
	return OriginAbsolute, fmt.Errorf("unknown origin %q", s)
}

// Config holds the options of one export run. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// MinDistance is the merge distance in millimetres. Segments shorter
	// than this collapse to a circle.
	MinDistance float64

	// FuseShapes merges every copper shape into a single body
	FuseShapes bool
	// PushBoardBody adds the board body to the assembly
	PushBoardBody bool
	// SubstituteModels replaces VRML models by a STEP or IGES sibling
	SubstituteModels bool
	// SimplifyShapes replaces polygon runs by arcs before building faces
	SimplifyShapes bool
	// BoardOnly skips every component model
	BoardOnly bool

	IncludeTracks      bool
	IncludeZones       bool
	IncludePads        bool
	IncludeInnerCopper bool
	IncludeSilkscreen  bool
	IncludeSoldermask  bool

	ExcludeDNP         bool
	ExcludeUnspecified bool
	// ComponentFilter lists reference glob patterns. When non-empty only
	// matching components get a model.
	ComponentFilter []string

	Origin OriginMode
	// UserOrigin is used with OriginUser, in millimetres
	UserOrigin [2]float64

	BoardColor  brep.Color
	CopperColor brep.Color
	PadColor    brep.Color
	SilkColor   brep.Color
	MaskColor   brep.Color

	// ModelAliases maps path variables to directories, on top of the
	// process environment
	ModelAliases map[string]string

	// Author and Organization fill the STEP and IGES headers
	Author       string
	Organization string

	Arc geom.ArcTolerance
}

// DefaultConfig returns the options used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		MinDistance:        DefaultMinDistance,
		PushBoardBody:      true,
		SubstituteModels:   true,
		SimplifyShapes:     true,
		IncludeTracks:      true,
		IncludeZones:       true,
		IncludePads:        true,
		IncludeInnerCopper: true,
		BoardColor:         brep.Color{R: 0.2, G: 0.2, B: 0.2},
		CopperColor:        brep.Color{R: 0.7, G: 0.61, B: 0.0},
		PadColor:           brep.Color{R: 0.9, G: 0.9, B: 0.9},
		SilkColor:          brep.Color{R: 0.9, G: 0.9, B: 0.9},
		MaskColor:          brep.Color{R: 0.08, G: 0.2, B: 0.14},
		Author:             "Pcbnew",
		Arc:                geom.DefaultArcTolerance(),
	}
}

// minDistanceUnits is MinDistance in board units
func (c Config) minDistanceUnits() int64 {
	return max(geom.FromMM(c.MinDistance), 1)
}

// wantsComponent applies the DNP, attribute and reference filters
func (c Config) wantsComponent(ref string, dnp, unspecified bool) bool {
	if c.BoardOnly {
		return false
	}
	if c.ExcludeDNP && dnp {
		return false
	}
	if c.ExcludeUnspecified && unspecified {
		return false
	}
	if len(c.ComponentFilter) == 0 {
		return true
	}
	for _, pat := range c.ComponentFilter {
		if ok, _ := path.Match(pat, ref); ok {
			return true
		}
	}
	return false
}
