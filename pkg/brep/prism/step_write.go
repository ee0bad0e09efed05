package prism

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// stepWriter numbers and emits Part 21 entity instances
type stepWriter struct {
	w    *bufio.Writer
	next int
}

func (s *stepWriter) add(format string, args ...any) int {
	id := s.next
	s.next++
	fmt.Fprintf(s.w, "#%d=", id)
	fmt.Fprintf(s.w, format, args...)
	s.w.WriteString(";\n")
	return id
}

func ref(id int) string {
	return "#" + strconv.Itoa(id)
}

func refs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = ref(id)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// stepReal formats a float the way Part 21 requires: always with a point
func stepReal(v float64) string {
	if v == 0 {
		return "0."
	}
	s := strconv.FormatFloat(v, 'G', 15, 64)
	if !strings.ContainsAny(s, ".E") {
		return s + "."
	}
	if i := strings.Index(s, "E"); i >= 0 && !strings.Contains(s[:i], ".") {
		return s[:i] + "." + s[i:]
	}
	return s
}

// str quotes a Part 21 string, encoding non-ASCII runes as \X2\
func str(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch {
		case r == '\'':
			b.WriteString("''")
		case r == '\\':
			b.WriteString(`\\`)
		case r < 0x20 || r > 0x7e:
			if r > 0xffff {
				r = '?'
			}
			fmt.Fprintf(&b, `\X2\%04X\X0\`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func point(v mgl64.Vec3) string {
	return "(" + stepReal(v.X()) + "," + stepReal(v.Y()) + "," + stepReal(v.Z()) + ")"
}

// WriteSTEP writes doc as an AP214 assembly. Each leaf instance becomes a
// product under the root product with its geometry in world coordinates.
func (k *Kernel) WriteSTEP(w io.Writer, doc *brep.Document, h brep.Header) error {
	bw := bufio.NewWriter(w)
	ts := h.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	system := h.System
	if system == "" {
		system = "OpenTraceExport"
	}

	fmt.Fprintf(bw, "ISO-10303-21;\nHEADER;\n")
	fmt.Fprintf(bw, "FILE_DESCRIPTION((%s),'2;1');\n", str(h.Description))
	fmt.Fprintf(bw, "FILE_NAME(%s,%s,(%s),(%s),%s,%s,'');\n",
		str(h.FileName), str(ts.UTC().Format("2006-01-02T15:04:05")),
		str(h.Author), str(h.Organization), str(system), str(system))
	fmt.Fprintf(bw, "FILE_SCHEMA(('AUTOMOTIVE_DESIGN { 1 0 10303 214 1 1 1 1 }'));\nENDSEC;\nDATA;\n")

	s := &stepWriter{w: bw, next: 1}
	appCtx := s.add("APPLICATION_CONTEXT('core data for automotive mechanical design processes')")
	s.add("APPLICATION_PROTOCOL_DEFINITION('international standard','automotive_design',2000,%s)", ref(appCtx))
	prodCtx := s.add("PRODUCT_CONTEXT('',%s,'mechanical')", ref(appCtx))
	defCtx := s.add("PRODUCT_DEFINITION_CONTEXT('part definition',%s,'design')", ref(appCtx))
	length := s.add("(LENGTH_UNIT()NAMED_UNIT(*)SI_UNIT(.MILLI.,.METRE.))")
	plane := s.add("(NAMED_UNIT(*)PLANE_ANGLE_UNIT()SI_UNIT($,.RADIAN.))")
	solid := s.add("(NAMED_UNIT(*)SI_UNIT($,.STERADIAN.)SOLID_ANGLE_UNIT())")
	unc := s.add("UNCERTAINTY_MEASURE_WITH_UNIT(LENGTH_MEASURE(%s),%s,'distance_accuracy_value','confusion accuracy')",
		stepReal(k.opts.Tolerance), ref(length))
	ctx := s.add("(GEOMETRIC_REPRESENTATION_CONTEXT(3)GLOBAL_UNCERTAINTY_ASSIGNED_CONTEXT((%s))"+
		"GLOBAL_UNIT_ASSIGNED_CONTEXT((%s,%s,%s))REPRESENTATION_CONTEXT('Context #1','3D Context with UNIT and UNCERTAINTY'))",
		ref(unc), ref(length), ref(plane), ref(solid))
	origin := s.add("CARTESIAN_POINT('',(0.,0.,0.))")
	zdir := s.add("DIRECTION('',(0.,0.,1.))")
	xdir := s.add("DIRECTION('',(1.,0.,0.))")
	axis := s.add("AXIS2_PLACEMENT_3D('',%s,%s,%s)", ref(origin), ref(zdir), ref(xdir))

	product := func(name string, items []int) (pd, sr int) {
		p := s.add("PRODUCT(%s,%s,'',(%s))", str(name), str(name), ref(prodCtx))
		s.add("PRODUCT_RELATED_PRODUCT_CATEGORY('part',$,(%s))", ref(p))
		pdf := s.add("PRODUCT_DEFINITION_FORMATION('','',%s)", ref(p))
		pd = s.add("PRODUCT_DEFINITION('design','',%s,%s)", ref(pdf), ref(defCtx))
		pds := s.add("PRODUCT_DEFINITION_SHAPE('','',%s)", ref(pd))
		sr = s.add("SHAPE_REPRESENTATION(%s,%s,%s)", str(name), refs(append([]int{axis}, items...)), ref(ctx))
		s.add("SHAPE_DEFINITION_REPRESENTATION(%s,%s)", ref(pds), ref(sr))
		return pd, sr
	}

	rootPD, rootSR := product(doc.Name, nil)
	styles := &stepStyles{s: s, cache: map[brep.Color]int{}}

	for i, in := range doc.Instances() {
		items := k.writeStepShape(s, styles, in)
		name := in.Label.Name
		pd, sr := product(name, items)
		nauo := s.add("NEXT_ASSEMBLY_USAGE_OCCURRENCE(%s,%s,'',%s,%s,$)",
			str(strconv.Itoa(i+1)), str(name), ref(rootPD), ref(pd))
		pds := s.add("PRODUCT_DEFINITION_SHAPE('','',%s)", ref(nauo))
		idt := s.add("ITEM_DEFINED_TRANSFORMATION('','',%s,%s)", ref(axis), ref(axis))
		rr := s.add("(REPRESENTATION_RELATIONSHIP('','',%s,%s)REPRESENTATION_RELATIONSHIP_WITH_TRANSFORMATION(%s)SHAPE_REPRESENTATION_RELATIONSHIP())",
			ref(sr), ref(rootSR), ref(idt))
		s.add("CONTEXT_DEPENDENT_SHAPE_REPRESENTATION(%s,%s)", ref(rr), ref(pds))
	}
	if len(styles.styled) > 0 {
		s.add("MECHANICAL_DESIGN_GEOMETRIC_PRESENTATION_REPRESENTATION('',%s,%s)", refs(styles.styled), ref(ctx))
	}

	bw.WriteString("ENDSEC;\nEND-ISO-10303-21;\n")
	return bw.Flush()
}

// writeStepShape emits the faceted geometry of one instance and returns
// the representation items
func (k *Kernel) writeStepShape(s *stepWriter, st *stepStyles, in brep.Instance) []int {
	var items []int
	faceIdx := 0
	k.solids(in.Label.Shape, in.Location, func(leaf brep.Shape, m mgl64.Mat4) {
		fs := k.facets(leaf, m)
		faces := make([]int, 0, len(fs))
		for _, f := range fs {
			id := writeStepFace(s, f)
			faces = append(faces, id)
			if c, ok := in.Label.FaceColors[faceIdx]; ok {
				st.apply(id, c)
			}
			faceIdx++
		}
		var item int
		if leaf.Kind() == brep.KindSolid {
			shell := s.add("CLOSED_SHELL('',%s)", refs(faces))
			item = s.add("FACETED_BREP(%s,%s)", str(in.Label.Name), ref(shell))
		} else {
			shell := s.add("OPEN_SHELL('',%s)", refs(faces))
			item = s.add("SHELL_BASED_SURFACE_MODEL(%s,(%s))", str(in.Label.Name), ref(shell))
		}
		if c, ok := in.Label.EffectiveColor(); ok {
			st.apply(item, c)
		}
		items = append(items, item)
	})
	return items
}

func writeStepFace(s *stepWriter, f *Facet) int {
	loop := func(pts []mgl64.Vec3) int {
		ids := make([]int, len(pts))
		for i, p := range pts {
			ids[i] = s.add("CARTESIAN_POINT('',%s)", point(p))
		}
		return s.add("POLY_LOOP('',%s)", refs(ids))
	}
	bounds := []int{s.add("FACE_OUTER_BOUND('',%s,.T.)", ref(loop(f.Outer)))}
	for _, h := range f.Holes {
		bounds = append(bounds, s.add("FACE_BOUND('',%s,.T.)", ref(loop(h))))
	}

	n := f.Normal()
	u, _ := planeAxes(n)
	loc := s.add("CARTESIAN_POINT('',%s)", point(f.Outer[0]))
	axis := s.add("DIRECTION('',%s)", point(n))
	refDir := s.add("DIRECTION('',%s)", point(u))
	place := s.add("AXIS2_PLACEMENT_3D('',%s,%s,%s)", ref(loc), ref(axis), ref(refDir))
	pl := s.add("PLANE('',%s)", ref(place))
	return s.add("FACE_SURFACE('',%s,%s,.T.)", refs(bounds), ref(pl))
}

// stepStyles shares one presentation style per colour
type stepStyles struct {
	s      *stepWriter
	cache  map[brep.Color]int
	styled []int
}

func (st *stepStyles) apply(item int, c brep.Color) {
	psa, ok := st.cache[c]
	if !ok {
		s := st.s
		col := s.add("COLOUR_RGB('',%s,%s,%s)", stepReal(c.R), stepReal(c.G), stepReal(c.B))
		fasc := s.add("FILL_AREA_STYLE_COLOUR('',%s)", ref(col))
		fas := s.add("FILL_AREA_STYLE('',(%s))", ref(fasc))
		ssfa := s.add("SURFACE_STYLE_FILL_AREA(%s)", ref(fas))
		sss := s.add("SURFACE_SIDE_STYLE('',(%s))", ref(ssfa))
		ssu := s.add("SURFACE_STYLE_USAGE(.BOTH.,%s)", ref(sss))
		psa = s.add("PRESENTATION_STYLE_ASSIGNMENT((%s))", ref(ssu))
		st.cache[c] = psa
	}
	st.styled = append(st.styled, st.s.add("STYLED_ITEM('color',(%s),%s)", ref(psa), ref(item)))
}
