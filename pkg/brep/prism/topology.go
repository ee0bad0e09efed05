package prism

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// Explore lists the sub-shapes of s in world coordinates. Vertices are
// merged when they coincide; edges are shared between adjacent faces.
func (k *Kernel) Explore(s brep.Shape) brep.Topology {
	var t brep.Topology
	vidx := map[[3]int64]int{}
	eidx := map[[2]int]int{}
	q := func(v float64) int64 { return int64(math.Round(v / k.opts.Tolerance)) }

	vertex := func(p mgl64.Vec3) int {
		key := [3]int64{q(p.X()), q(p.Y()), q(p.Z())}
		if i, ok := vidx[key]; ok {
			return i
		}
		vidx[key] = len(t.Vertices)
		t.Vertices = append(t.Vertices, p)
		return len(t.Vertices) - 1
	}
	edge := func(a, b int) {
		if a == b {
			return
		}
		key := [2]int{min(a, b), max(a, b)}
		if _, ok := eidx[key]; ok {
			return
		}
		eidx[key] = len(t.Edges)
		t.Edges = append(t.Edges, key)
	}
	loop := func(pts []mgl64.Vec3) {
		first, prev := -1, -1
		for _, p := range pts {
			v := vertex(p)
			if prev >= 0 {
				edge(prev, v)
			} else {
				first = v
			}
			prev = v
		}
		if first >= 0 {
			edge(prev, first)
		}
	}

	k.solids(s, mgl64.Ident4(), func(leaf brep.Shape, m mgl64.Mat4) {
		fs := k.facets(leaf, m)
		if leaf.Kind() == brep.KindSolid {
			t.Solids = append(t.Solids, k.Transform(leaf, m))
		}
		for _, f := range fs {
			loop(f.Outer)
			for _, h := range f.Holes {
				loop(h)
			}
			t.Faces = append(t.Faces, f)
		}
	})
	return t
}

// IsPlanar reports whether every vertex of the face lies on its plane
func (k *Kernel) IsPlanar(face brep.Shape) bool {
	f, ok := face.(*Facet)
	if !ok {
		p, ok := face.(*Prism)
		return ok && p.IsFace()
	}
	if len(f.Outer) < 3 {
		return false
	}
	n := f.Normal()
	d := n.Dot(f.Outer[0])
	check := func(loop []mgl64.Vec3) bool {
		for _, p := range loop {
			if math.Abs(n.Dot(p)-d) > k.opts.Tolerance*1000 {
				return false
			}
		}
		return true
	}
	if !check(f.Outer) {
		return false
	}
	for _, h := range f.Holes {
		if !check(h) {
			return false
		}
	}
	return true
}

// facetDistance returns the distance between p and the planar facet
func facetDistance(f *Facet, p mgl64.Vec3) float64 {
	if len(f.Outer) == 0 {
		return math.Inf(1)
	}
	n := f.Normal()
	plane := n.Dot(p.Sub(f.Outer[0]))
	proj := p.Sub(n.Mul(plane))

	u, v := planeAxes(n)
	flat := func(loop []mgl64.Vec3) [][2]float64 {
		out := make([][2]float64, len(loop))
		for i, q := range loop {
			out[i] = [2]float64{q.Dot(u), q.Dot(v)}
		}
		return out
	}
	pp := [2]float64{proj.Dot(u), proj.Dot(v)}
	inside := inside2(pp, flat(f.Outer))
	for _, h := range f.Holes {
		if inside2(pp, flat(h)) {
			inside = false
		}
	}
	if inside {
		return math.Abs(plane)
	}

	best := math.Inf(1)
	edges := func(loop []mgl64.Vec3) {
		for i, a := range loop {
			b := loop[(i+1)%len(loop)]
			best = math.Min(best, segmentDistance(p, a, b))
		}
	}
	edges(f.Outer)
	for _, h := range f.Holes {
		edges(h)
	}
	return best
}

func segmentDistance(p, a, b mgl64.Vec3) float64 {
	ab := b.Sub(a)
	l2 := ab.LenSqr()
	if l2 == 0 {
		return p.Sub(a).Len()
	}
	t := math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/l2))
	return p.Sub(a.Add(ab.Mul(t))).Len()
}

// planeAxes returns two unit vectors spanning the plane with normal n
func planeAxes(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	ref := mgl64.Vec3{1, 0, 0}
	if math.Abs(n.X()) > 0.9 {
		ref = mgl64.Vec3{0, 1, 0}
	}
	u := n.Cross(ref).Normalize()
	return u, n.Cross(u)
}

func inside2(p [2]float64, poly [][2]float64) bool {
	in := false
	j := len(poly) - 1
	for i := range poly {
		a, b := poly[i], poly[j]
		if (a[1] > p[1]) != (b[1] > p[1]) && p[0] < (b[0]-a[0])*(p[1]-a[1])/(b[1]-a[1])+a[0] {
			in = !in
		}
		j = i
	}
	return in
}
