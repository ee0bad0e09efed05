package prism

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// ErrNoGeometry is returned for exchange files without any solid
var ErrNoGeometry = errors.New("no solid geometry found")

// ReadSTEP loads the faceted geometry of a STEP file, one label per
// product. Curved edges are replaced by the chord between their vertices
// and assembly placements are ignored: products are expected in world
// coordinates.
func (k *Kernel) ReadSTEP(r io.Reader) (*brep.Document, error) {
	f, err := part21Parser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("parse STEP: %w", err)
	}

	rd := &stepReader{ents: map[int]*part21Entity{}, faceOwner: map[int]faceRef{}}
	for _, in := range f.Data {
		id, err := strconv.Atoi(strings.TrimPrefix(in.ID, "#"))
		if err != nil {
			return nil, fmt.Errorf("bad instance id %q: %w", in.ID, err)
		}
		if in.Simple != nil {
			rd.ents[id] = in.Simple
			rd.order = append(rd.order, id)
		}
	}

	name := "model"
	for _, h := range f.Header {
		if h.Name == "FILE_NAME" && len(h.Params) > 0 {
			if s := paramString(h.Params[0]); s != "" {
				name = s
			}
		}
	}
	return rd.document(name)
}

type stepReader struct {
	ents  map[int]*part21Entity
	order []int
	// faceOwner maps face entities to the label face index they became
	faceOwner map[int]faceRef
}

type faceRef struct {
	label *brep.Label
	index int
}

type stepPart struct {
	name  string
	items []int
}

func (rd *stepReader) document(name string) (*brep.Document, error) {
	doc := brep.NewDocument(name)

	parts := rd.products()
	used := map[int]bool{}
	for _, p := range parts {
		for _, it := range p.items {
			used[it] = true
		}
	}
	var loose []int
	for _, id := range rd.order {
		if isSolidItem(rd.ents[id].Name) && !used[id] {
			loose = append(loose, id)
		}
	}
	if len(loose) > 0 {
		parts = append(parts, stepPart{name: name, items: loose})
	}

	solidOwner := map[int]*brep.Label{}
	for _, p := range parts {
		var shapes []brep.Shape
		var ids []int
		faceBase := 0
		var pending []struct {
			face, idx int
		}
		for _, it := range p.items {
			poly, faces := rd.solid(it)
			if poly == nil {
				continue
			}
			shapes = append(shapes, poly)
			ids = append(ids, it)
			for i, fid := range faces {
				pending = append(pending, struct{ face, idx int }{fid, faceBase + i})
			}
			faceBase += len(faces)
		}
		if len(shapes) == 0 {
			continue
		}
		var shape brep.Shape = shapes[0]
		if len(shapes) > 1 {
			shape = &Compound{Children: shapes}
		}
		l := doc.AddShape(p.name, shape, nil)
		for _, id := range ids {
			solidOwner[id] = l
		}
		for _, pf := range pending {
			rd.faceOwner[pf.face] = faceRef{label: l, index: pf.idx}
		}
	}
	if len(doc.Root.Components) == 0 {
		return nil, ErrNoGeometry
	}

	rd.applyColors(solidOwner)
	return doc, nil
}

func isSolidItem(name string) bool {
	switch name {
	case "MANIFOLD_SOLID_BREP", "FACETED_BREP", "BREP_WITH_VOIDS", "SHELL_BASED_SURFACE_MODEL":
		return true
	}
	return false
}

// products pairs every product name with the solid items of its shape
// representations
func (rd *stepReader) products() []stepPart {
	// representation relationships link product representations to the
	// representations holding the geometry
	linked := map[int][]int{}
	for _, id := range rd.order {
		e := rd.ents[id]
		if e.Name != "SHAPE_REPRESENTATION_RELATIONSHIP" || len(e.Params) < 4 {
			continue
		}
		a, b := paramRef(e.Params[2]), paramRef(e.Params[3])
		linked[a] = append(linked[a], b)
		linked[b] = append(linked[b], a)
	}

	var out []stepPart
	for _, id := range rd.order {
		e := rd.ents[id]
		if e.Name != "SHAPE_DEFINITION_REPRESENTATION" || len(e.Params) < 2 {
			continue
		}
		name := rd.productName(paramRef(e.Params[0]))
		seen := map[int]bool{}
		var items []int
		var walk func(rep int)
		walk = func(rep int) {
			if seen[rep] {
				return
			}
			seen[rep] = true
			re := rd.ents[rep]
			if re == nil || len(re.Params) < 2 {
				return
			}
			for _, it := range paramRefs(re.Params[1]) {
				if ie := rd.ents[it]; ie != nil && isSolidItem(ie.Name) {
					items = append(items, it)
				}
			}
			for _, next := range linked[rep] {
				walk(next)
			}
		}
		walk(paramRef(e.Params[1]))
		if len(items) > 0 {
			out = append(out, stepPart{name: name, items: items})
		}
	}
	return out
}

// productName follows product definition shape → definition → formation
// → product
func (rd *stepReader) productName(pds int) string {
	chain := []int{2, 2, 2}
	id := pds
	for _, idx := range chain {
		e := rd.ents[id]
		if e == nil || len(e.Params) <= idx {
			return "part"
		}
		id = paramRef(e.Params[idx])
	}
	e := rd.ents[id]
	if e == nil || e.Name != "PRODUCT" || len(e.Params) < 2 {
		return "part"
	}
	if n := paramString(e.Params[1]); n != "" {
		return n
	}
	return paramString(e.Params[0])
}

// solid returns the polyhedron of a solid item and its face entity ids
func (rd *stepReader) solid(id int) (*Polyhedron, []int) {
	e := rd.ents[id]
	if e == nil || len(e.Params) < 2 {
		return nil, nil
	}
	var shells []int
	switch e.Name {
	case "SHELL_BASED_SURFACE_MODEL":
		shells = paramRefs(e.Params[1])
	case "BREP_WITH_VOIDS":
		shells = []int{paramRef(e.Params[1])}
		if len(e.Params) > 2 {
			shells = append(shells, paramRefs(e.Params[2])...)
		}
	default:
		shells = []int{paramRef(e.Params[1])}
	}
	p := &Polyhedron{}
	var ids []int
	for _, sh := range shells {
		se := rd.ents[sh]
		if se == nil || len(se.Params) < 2 {
			continue
		}
		for _, fid := range paramRefs(se.Params[1]) {
			if f := rd.face(fid); f != nil {
				p.Faces = append(p.Faces, f)
				ids = append(ids, fid)
			}
		}
	}
	if len(p.Faces) == 0 {
		return nil, nil
	}
	return p, ids
}

func (rd *stepReader) face(id int) *Facet {
	e := rd.ents[id]
	if e == nil || len(e.Params) < 2 {
		return nil
	}
	flip := e.Name == "ADVANCED_FACE" && len(e.Params) > 3 && paramEnum(e.Params[3]) == "F"
	f := &Facet{}
	for _, bid := range paramRefs(e.Params[1]) {
		be := rd.ents[bid]
		if be == nil || len(be.Params) < 3 {
			continue
		}
		loop := rd.loop(paramRef(be.Params[1]))
		if len(loop) < 3 {
			continue
		}
		if (paramEnum(be.Params[2]) == "F") != flip {
			loop = reversed3(loop)
		}
		if be.Name == "FACE_OUTER_BOUND" && f.Outer == nil {
			f.Outer = loop
			continue
		}
		f.Holes = append(f.Holes, loop)
	}
	if f.Outer == nil {
		if len(f.Holes) == 0 {
			return nil
		}
		f.Outer, f.Holes = f.Holes[0], f.Holes[1:]
	}
	return f
}

func reversed3(pts []mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func (rd *stepReader) loop(id int) []mgl64.Vec3 {
	e := rd.ents[id]
	if e == nil || len(e.Params) < 2 {
		return nil
	}
	var out []mgl64.Vec3
	switch e.Name {
	case "POLY_LOOP":
		for _, pid := range paramRefs(e.Params[1]) {
			if p, ok := rd.point(pid); ok {
				out = append(out, p)
			}
		}
	case "EDGE_LOOP":
		for _, oid := range paramRefs(e.Params[1]) {
			oe := rd.ents[oid]
			if oe == nil || len(oe.Params) < 5 {
				continue
			}
			ec := rd.ents[paramRef(oe.Params[3])]
			if ec == nil || len(ec.Params) < 3 {
				continue
			}
			v := paramRef(ec.Params[1])
			if paramEnum(oe.Params[4]) == "F" {
				v = paramRef(ec.Params[2])
			}
			ve := rd.ents[v]
			if ve == nil || len(ve.Params) < 2 {
				continue
			}
			if p, ok := rd.point(paramRef(ve.Params[1])); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

func (rd *stepReader) point(id int) (mgl64.Vec3, bool) {
	e := rd.ents[id]
	if e == nil || e.Name != "CARTESIAN_POINT" || len(e.Params) < 2 {
		return mgl64.Vec3{}, false
	}
	var v mgl64.Vec3
	for i, n := range paramNumbers(e.Params[1]) {
		if i < 3 {
			v[i] = n
		}
	}
	return v, true
}

// applyColors resolves styled items to solid and face colours
func (rd *stepReader) applyColors(solidOwner map[int]*brep.Label) {
	for _, id := range rd.order {
		e := rd.ents[id]
		if (e.Name != "STYLED_ITEM" && e.Name != "OVER_RIDING_STYLED_ITEM") || len(e.Params) < 3 {
			continue
		}
		c, ok := rd.color(paramRefs(e.Params[1]), 0)
		if !ok {
			continue
		}
		item := paramRef(e.Params[2])
		if fr, ok := rd.faceOwner[item]; ok {
			if fr.label.FaceColors == nil {
				fr.label.FaceColors = map[int]brep.Color{}
			}
			fr.label.FaceColors[fr.index] = c
			continue
		}
		if l, ok := solidOwner[item]; ok {
			cc := c
			l.SolidColor = &cc
		}
	}
}

// color searches a style graph for the first RGB or predefined colour
func (rd *stepReader) color(ids []int, depth int) (brep.Color, bool) {
	if depth > 10 {
		return brep.Color{}, false
	}
	for _, id := range ids {
		e := rd.ents[id]
		if e == nil {
			continue
		}
		switch e.Name {
		case "COLOUR_RGB":
			if len(e.Params) < 4 {
				continue
			}
			var rgb [3]float64
			for i := 0; i < 3; i++ {
				if e.Params[i+1].Number != nil {
					rgb[i] = *e.Params[i+1].Number
				}
			}
			return brep.Color{R: rgb[0], G: rgb[1], B: rgb[2]}, true
		case "DRAUGHTING_PRE_DEFINED_COLOUR":
			if len(e.Params) > 0 {
				if c, ok := predefinedColours[paramString(e.Params[0])]; ok {
					return c, true
				}
			}
			continue
		}
		var next []int
		for _, p := range e.Params {
			next = append(next, paramRefs(p)...)
			if r := paramRef(p); r > 0 {
				next = append(next, r)
			}
		}
		if c, ok := rd.color(next, depth+1); ok {
			return c, true
		}
	}
	return brep.Color{}, false
}

var predefinedColours = map[string]brep.Color{
	"black":   {R: 0, G: 0, B: 0},
	"red":     {R: 1, G: 0, B: 0},
	"green":   {R: 0, G: 1, B: 0},
	"blue":    {R: 0, G: 0, B: 1},
	"yellow":  {R: 1, G: 1, B: 0},
	"magenta": {R: 1, G: 0, B: 1},
	"cyan":    {R: 0, G: 1, B: 1},
	"white":   {R: 1, G: 1, B: 1},
}

func paramRef(p *part21Param) int {
	if p == nil || p.Ref == nil {
		return 0
	}
	id, _ := strconv.Atoi(strings.TrimPrefix(*p.Ref, "#"))
	return id
}

func paramRefs(p *part21Param) []int {
	if p == nil || p.List == nil {
		return nil
	}
	var out []int
	for _, it := range p.List.Items {
		if id := paramRef(it); id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func paramNumbers(p *part21Param) []float64 {
	if p == nil || p.List == nil {
		return nil
	}
	var out []float64
	for _, it := range p.List.Items {
		if it.Number != nil {
			out = append(out, *it.Number)
		}
	}
	return out
}

func paramEnum(p *part21Param) string {
	if p == nil || p.Enum == nil {
		return ""
	}
	return strings.Trim(*p.Enum, ".")
}

func paramString(p *part21Param) string {
	if p == nil || p.String == nil {
		return ""
	}
	return decodeString(*p.String)
}

// decodeString strips the quotes of a Part 21 string and expands its
// escapes
func decodeString(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "'"), "'")
	s = strings.ReplaceAll(s, "''", "'")
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, `\\`):
			b.WriteByte('\\')
			i++
		case strings.HasPrefix(rest, `\X2\`):
			end := strings.Index(rest, `\X0\`)
			if end < 0 {
				b.WriteString(rest)
				return b.String()
			}
			hex := rest[4:end]
			for j := 0; j+4 <= len(hex); j += 4 {
				if v, err := strconv.ParseUint(hex[j:j+4], 16, 32); err == nil {
					b.WriteRune(rune(v))
				}
			}
			i += end + 3
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
