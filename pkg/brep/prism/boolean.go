package prism

import (
	"fmt"
	"math"
	"sort"

	polyclip "github.com/akavel/polyclip-go"
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// Cut subtracts tools from every prism of target. A tool applies when it
// spans the full height of the prism it overlaps; tools that only reach
// partway are kept as residual and reported.
func (k *Kernel) Cut(target brep.Shape, tools []brep.Shape, opt brep.BooleanOptions) (brep.Shape, brep.Report) {
	var rep brep.Report
	tol := k.fuzzy(opt)

	var cutters []*Prism
	for _, t := range flatten(tools) {
		p, ok := t.(*Prism)
		if !ok {
			rep.Warnf("tool of kind %s cannot be cut with, skipped", t.Kind())
			continue
		}
		cutters = append(cutters, p)
	}

	var out []brep.Shape
	for _, s := range flatten([]brep.Shape{target}) {
		p, ok := s.(*Prism)
		if !ok {
			rep.Warnf("target of kind %s cannot be cut, kept as is", s.Kind())
			out = append(out, s)
			continue
		}
		res, r := k.cutPrism(p, cutters, tol)
		rep.Merge(r)
		out = append(out, res...)
	}
	return k.pack(out), rep
}

func (k *Kernel) fuzzy(opt brep.BooleanOptions) float64 {
	if opt.Fuzzy > 0 {
		return opt.Fuzzy
	}
	return k.opts.Tolerance
}

func (k *Kernel) pack(shapes []brep.Shape) brep.Shape {
	if len(shapes) == 1 {
		return shapes[0]
	}
	return &Compound{Children: shapes}
}

func (k *Kernel) cutPrism(target *Prism, tools []*Prism, tol float64) ([]brep.Shape, brep.Report) {
	var rep brep.Report
	res := target.clone()
	lo, hi := res.bounds2()

	var pending polyclip.Polygon
	for _, t := range tools {
		tlo, thi := t.bounds2()
		if !boxesOverlap(lo, hi, tlo, thi) {
			continue
		}
		if t.Z1 < res.Z0-tol || t.Z0 > res.Z1+tol {
			continue
		}
		if t.Z0 > res.Z0+tol || t.Z1 < res.Z1-tol {
			rep.Warnf("tool at z %.4f..%.4f does not cross the body at z %.4f..%.4f", t.Z0, t.Z1, res.Z0, res.Z1)
			res.residual = append(res.residual, t)
			continue
		}
		if k.insertHole(res, t.Outer, tlo, thi) {
			continue
		}
		pending = append(pending, toContour(t.Outer))
	}
	if len(pending) == 0 {
		return []brep.Shape{res}, rep
	}

	polys, err := construct(toPolygon(res), polyclip.DIFFERENCE, pending)
	if err != nil {
		rep.Errorf("cut failed: %v", err)
		return []brep.Shape{res}, rep
	}
	if len(polys) == 0 {
		rep.Errorf("cut removed the whole body at z %.4f..%.4f", res.Z0, res.Z1)
		return []brep.Shape{res}, rep
	}
	out := make([]brep.Shape, 0, len(polys))
	for _, pg := range polys {
		p := &Prism{Outer: pg.outer, Holes: pg.holes, Z0: res.Z0, Z1: res.Z1, residual: res.residual}
		out = append(out, p)
	}
	return out, rep
}

// insertHole adds tool as a new hole when it lies strictly inside the
// outline and clear of every existing hole
func (k *Kernel) insertHole(p *Prism, tool []r2.Vec, tlo, thi r2.Vec) bool {
	lo, hi := p.bounds2()
	if !boxInside(tlo, thi, lo, hi) {
		return false
	}
	for _, h := range p.Holes {
		hlo, hhi := bounds2(h)
		if boxesOverlap(tlo, thi, hlo, hhi) {
			return false
		}
	}
	for _, q := range tool {
		if !insidePolygon(q, p.Outer) {
			return false
		}
	}
	if loopsCross(tool, p.Outer) {
		return false
	}
	p.Holes = append(p.Holes, orient(tool, false))
	return true
}

// Fuse unions overlapping prisms that share the same height range.
// Prisms at different heights and non-prism shapes are grouped untouched.
func (k *Kernel) Fuse(shapes []brep.Shape, opt brep.BooleanOptions) (brep.Shape, brep.Report) {
	var rep brep.Report
	tol := k.fuzzy(opt)

	type slab struct {
		z0, z1 float64
		items  []*Prism
	}
	var slabs []*slab
	var others []brep.Shape
	for _, s := range flatten(shapes) {
		p, ok := s.(*Prism)
		if !ok {
			others = append(others, s)
			continue
		}
		var dst *slab
		for _, sl := range slabs {
			if math.Abs(sl.z0-p.Z0) <= tol && math.Abs(sl.z1-p.Z1) <= tol {
				dst = sl
				break
			}
		}
		if dst == nil {
			dst = &slab{z0: p.Z0, z1: p.Z1}
			slabs = append(slabs, dst)
		}
		dst.items = append(dst.items, p)
	}

	var out []brep.Shape
	for _, sl := range slabs {
		for _, group := range overlapGroups(sl.items) {
			if len(group) == 1 {
				out = append(out, group[0])
				continue
			}
			polys, err := unionAll(group)
			if err != nil {
				rep.Errorf("fuse of %d shapes at z %.4f failed: %v", len(group), sl.z0, err)
				for _, p := range group {
					out = append(out, p)
				}
				continue
			}
			for _, pg := range polys {
				outer, holes := pg.outer, pg.holes
				if opt.Simplify {
					outer = simplify(outer, tol)
					for i := range holes {
						holes[i] = simplify(holes[i], tol)
					}
				}
				out = append(out, &Prism{Outer: outer, Holes: holes, Z0: sl.z0, Z1: sl.z1})
			}
		}
	}
	out = append(out, others...)
	if len(out) == 0 {
		rep.Errorf("nothing to fuse")
		return &Compound{}, rep
	}
	return k.pack(out), rep
}

// overlapGroups clusters prisms whose bounding boxes chain together
func overlapGroups(items []*Prism) [][]*Prism {
	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	type box struct{ lo, hi r2.Vec }
	boxes := make([]box, len(items))
	order := make([]int, len(items))
	for i, p := range items {
		boxes[i].lo, boxes[i].hi = p.bounds2()
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return boxes[order[a]].lo.X < boxes[order[b]].lo.X })

	// sweep along X so only boxes sharing an X span are compared
	for a := 0; a < len(order); a++ {
		i := order[a]
		for b := a + 1; b < len(order); b++ {
			j := order[b]
			if boxes[j].lo.X > boxes[i].hi.X {
				break
			}
			if boxesOverlap(boxes[i].lo, boxes[i].hi, boxes[j].lo, boxes[j].hi) {
				parent[find(i)] = find(j)
			}
		}
	}

	idx := map[int]int{}
	var groups [][]*Prism
	for i, p := range items {
		r := find(i)
		g, ok := idx[r]
		if !ok {
			g = len(groups)
			idx[r] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], p)
	}
	return groups
}

func unionAll(group []*Prism) ([]ring2, error) {
	parts := make([]polyclip.Polygon, len(group))
	for i, p := range group {
		parts[i] = toPolygon(p)
	}
	// pairwise reduction keeps the operands balanced
	for len(parts) > 1 {
		var next []polyclip.Polygon
		for i := 0; i < len(parts); i += 2 {
			if i+1 == len(parts) {
				next = append(next, parts[i])
				continue
			}
			u, err := clip(parts[i], polyclip.UNION, parts[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, u)
		}
		parts = next
	}
	return nest(parts[0]), nil
}

// ring2 is an outline with its holes
type ring2 struct {
	outer []r2.Vec
	holes [][]r2.Vec
}

func construct(subject polyclip.Polygon, op polyclip.Op, c polyclip.Polygon) ([]ring2, error) {
	res, err := clip(subject, op, c)
	if err != nil {
		return nil, err
	}
	return nest(res), nil
}

// clip runs a polyclip operation, turning its panics on degenerate input
// into errors
func clip(subject polyclip.Polygon, op polyclip.Op, c polyclip.Polygon) (res polyclip.Polygon, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("polygon clipper: %v", r)
		}
	}()
	return subject.Construct(op, c), nil
}

func toContour(pts []r2.Vec) polyclip.Contour {
	c := make(polyclip.Contour, len(pts))
	for i, p := range pts {
		c[i] = polyclip.Point{X: p.X, Y: p.Y}
	}
	return c
}

func toPolygon(p *Prism) polyclip.Polygon {
	pg := polyclip.Polygon{toContour(p.Outer)}
	for _, h := range p.Holes {
		pg = append(pg, toContour(h))
	}
	return pg
}

// nest sorts clipper output contours into outlines and holes by
// containment depth
func nest(pg polyclip.Polygon) []ring2 {
	type entry struct {
		pts  []r2.Vec
		area float64
	}
	var es []entry
	for _, c := range pg {
		if len(c) < 3 {
			continue
		}
		pts := make([]r2.Vec, len(c))
		for i, q := range c {
			pts[i] = r2.Vec{X: q.X, Y: q.Y}
		}
		a := math.Abs(signedArea(pts))
		if a <= 1e-12 {
			continue
		}
		es = append(es, entry{pts: pts, area: a})
	}
	sort.SliceStable(es, func(i, j int) bool { return es[i].area > es[j].area })

	var out []ring2
	owner := make([]int, len(es))
	depth := make([]int, len(es))
	for i := range es {
		owner[i] = -1
		probe := interiorProbe(es[i].pts)
		for j := i - 1; j >= 0; j-- {
			if insidePolygon(probe, es[j].pts) {
				depth[i] = depth[j] + 1
				owner[i] = j
				break
			}
		}
	}
	slot := map[int]int{}
	for i, e := range es {
		if depth[i]%2 == 0 {
			slot[i] = len(out)
			out = append(out, ring2{outer: orient(e.pts, true)})
			continue
		}
		if s, ok := slot[owner[i]]; ok {
			out[s].holes = append(out[s].holes, orient(e.pts, false))
		}
	}
	return out
}

// interiorProbe returns a point just inside the contour near its first
// convex corner
func interiorProbe(pts []r2.Vec) r2.Vec {
	ccw := signedArea(pts) > 0
	n := len(pts)
	for i := range pts {
		a, b, c := pts[(i+n-1)%n], pts[i], pts[(i+1)%n]
		cr := r2.Cross(r2.Sub(b, a), r2.Sub(c, b))
		if (cr > 0) == ccw && cr != 0 {
			cen := r2.Scale(1.0/3, r2.Add(r2.Add(a, b), c))
			return r2.Add(b, r2.Scale(0.01, r2.Sub(cen, b)))
		}
	}
	return pts[0]
}

// simplify drops vertices lying on the line through their neighbours
func simplify(pts []r2.Vec, tol float64) []r2.Vec {
	if len(pts) <= 3 {
		return pts
	}
	out := make([]r2.Vec, 0, len(pts))
	n := len(pts)
	for i, b := range pts {
		a, c := pts[(i+n-1)%n], pts[(i+1)%n]
		ac := r2.Sub(c, a)
		l := r2.Norm(ac)
		if l > 0 && math.Abs(r2.Cross(ac, r2.Sub(b, a)))/l <= tol {
			continue
		}
		out = append(out, b)
	}
	if len(out) < 3 {
		return pts
	}
	return out
}

// Distance returns the distance from p to the nearest face of s
func (k *Kernel) Distance(s brep.Shape, p mgl64.Vec3) float64 {
	best := math.Inf(1)
	for _, f := range k.facets(s, mgl64.Ident4()) {
		best = math.Min(best, facetDistance(f, p))
	}
	return best
}
