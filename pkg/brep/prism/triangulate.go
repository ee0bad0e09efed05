package prism

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// Triangulate meshes every face of s. Curved geometry is already
// flattened at ChordError when faces are built, so the deflection
// arguments only matter for kernels with true curves.
func (k *Kernel) Triangulate(s brep.Shape, linear, angular float64) (brep.Mesh, error) {
	var m brep.Mesh
	for _, f := range k.facets(s, mgl64.Ident4()) {
		m.FaceStart = append(m.FaceStart, len(m.Indices))
		n := f.Normal()
		u, v := planeAxes(n)
		flat := func(loop []mgl64.Vec3) [][2]float64 {
			out := make([][2]float64, len(loop))
			for i, q := range loop {
				out[i] = [2]float64{q.Dot(u), q.Dot(v)}
			}
			return out
		}

		pts := append([]mgl64.Vec3(nil), f.Outer...)
		outer := flat(f.Outer)
		var holes [][][2]float64
		for _, h := range f.Holes {
			pts = append(pts, h...)
			holes = append(holes, flat(h))
		}

		base := uint32(len(m.Positions))
		for _, p := range pts {
			m.Positions = append(m.Positions, p)
			m.Normals = append(m.Normals, n)
		}
		for _, t := range earcut(outer, holes) {
			m.Indices = append(m.Indices, base+uint32(t[0]), base+uint32(t[1]), base+uint32(t[2]))
		}
	}
	return m, nil
}

// earcut triangulates a counter-clockwise outline with holes. Returned
// indices number the outline points first, then each hole in order.
func earcut(outer [][2]float64, holes [][][2]float64) [][3]int {
	pts := append([][2]float64(nil), outer...)
	for _, h := range holes {
		pts = append(pts, h...)
	}
	poly := make([]int, len(outer))
	for i := range outer {
		poly[i] = i
	}
	if area2(outer) < 0 {
		for i, j := 0, len(poly)-1; i < j; i, j = i+1, j-1 {
			poly[i], poly[j] = poly[j], poly[i]
		}
	}
	return clipEars(pts, bridgeHoles(pts, poly, holes, len(outer)))
}

func area2(loop [][2]float64) float64 {
	a := 0.0
	for i, p := range loop {
		q := loop[(i+1)%len(loop)]
		a += p[0]*q[1] - q[0]*p[1]
	}
	return a
}

func cross3(a, b, c [2]float64) float64 {
	return (b[0]-a[0])*(c[1]-b[1]) - (b[1]-a[1])*(c[0]-b[0])
}

func isLeft(a, b, p [2]float64) bool {
	return (b[0]-a[0])*(p[1]-a[1])-(b[1]-a[1])*(p[0]-a[0]) > 0
}

func properCross(a, b, c, d [2]float64) bool {
	o := func(p, q, r [2]float64) float64 {
		return (q[0]-p[0])*(r[1]-p[1]) - (q[1]-p[1])*(r[0]-p[0])
	}
	d1, d2 := o(a, b, c), o(a, b, d)
	d3, d4 := o(c, d, a), o(c, d, b)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// bridgeHoles splices every hole into poly through a zero-width channel,
// rightmost hole first
func bridgeHoles(pts [][2]float64, poly []int, holes [][][2]float64, offset int) []int {
	hs := make([]holeRing, 0, len(holes))
	for _, h := range holes {
		if len(h) < 3 {
			offset += len(h)
			continue
		}
		idx := make([]int, len(h))
		for i := range h {
			idx[i] = offset + i
		}
		if area2(h) > 0 {
			for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
		best := 0
		for i, id := range idx {
			if h[id-offset][0] > h[idx[best]-offset][0] {
				best = i
			}
		}
		hs = append(hs, holeRing{idx: idx, maxX: h[idx[best]-offset][0], m: best})
		offset += len(h)
	}
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].maxX > hs[j].maxX })

	for hi, h := range hs {
		mIdx := h.idx[h.m]
		mp := pts[mIdx]

		cand := make([]int, len(poly))
		for i := range poly {
			cand[i] = i
		}
		sort.Slice(cand, func(a, b int) bool {
			return dist2(pts[poly[cand[a]]], mp) < dist2(pts[poly[cand[b]]], mp)
		})

		at := -1
		for _, c := range cand {
			p := pts[poly[c]]
			a := pts[poly[(c+len(poly)-1)%len(poly)]]
			b := pts[poly[(c+1)%len(poly)]]
			inCone := false
			if cross3(a, p, b) > 0 {
				inCone = isLeft(a, p, mp) && isLeft(p, b, mp)
			} else {
				inCone = isLeft(a, p, mp) || isLeft(p, b, mp)
			}
			if !inCone || !visible(pts, poly, hs[hi:], p, mp) {
				continue
			}
			at = c
			break
		}
		if at < 0 {
			at = cand[0]
		}

		spliced := make([]int, 0, len(poly)+len(h.idx)+2)
		spliced = append(spliced, poly[:at+1]...)
		for i := 0; i <= len(h.idx); i++ {
			spliced = append(spliced, h.idx[(h.m+i)%len(h.idx)])
		}
		spliced = append(spliced, poly[at])
		spliced = append(spliced, poly[at+1:]...)
		poly = spliced
	}
	return poly
}

// holeRing is a clockwise hole with the position of its rightmost vertex
type holeRing struct {
	idx  []int
	maxX float64
	m    int
}

func visible(pts [][2]float64, poly []int, holes []holeRing, p, m [2]float64) bool {
	for i := range poly {
		a, b := pts[poly[i]], pts[poly[(i+1)%len(poly)]]
		if properCross(p, m, a, b) {
			return false
		}
	}
	for _, h := range holes {
		for i := range h.idx {
			a, b := pts[h.idx[i]], pts[h.idx[(i+1)%len(h.idx)]]
			if properCross(p, m, a, b) {
				return false
			}
		}
	}
	return true
}

func dist2(a, b [2]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

// clipEars triangulates a simple counter-clockwise polygon given as
// indices into pts
func clipEars(pts [][2]float64, poly []int) [][3]int {
	var out [][3]int
	ring := append([]int(nil), poly...)
	const eps = 1e-12

	for len(ring) > 3 {
		n := len(ring)
		clipped := false
		for i := 0; i < n; i++ {
			ia, ib, ic := ring[(i+n-1)%n], ring[i], ring[(i+1)%n]
			a, b, c := pts[ia], pts[ib], pts[ic]
			cr := cross3(a, b, c)
			if math.Abs(cr) <= eps {
				// collinear or doubled vertex, drop it
				ring = append(ring[:i], ring[i+1:]...)
				clipped = true
				break
			}
			if cr < 0 || !isEar(pts, ring, a, b, c) {
				continue
			}
			out = append(out, [3]int{ia, ib, ic})
			ring = append(ring[:i], ring[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			// numerically stuck: take the most convex corner
			best, bestCr := 0, math.Inf(-1)
			for i := 0; i < n; i++ {
				cr := cross3(pts[ring[(i+n-1)%n]], pts[ring[i]], pts[ring[(i+1)%n]])
				if cr > bestCr {
					best, bestCr = i, cr
				}
			}
			out = append(out, [3]int{ring[(best+n-1)%n], ring[best], ring[(best+1)%n]})
			ring = append(ring[:best], ring[best+1:]...)
		}
	}
	if len(ring) == 3 && math.Abs(cross3(pts[ring[0]], pts[ring[1]], pts[ring[2]])) > eps {
		out = append(out, [3]int{ring[0], ring[1], ring[2]})
	}
	return out
}

func isEar(pts [][2]float64, ring []int, a, b, c [2]float64) bool {
	for _, id := range ring {
		p := pts[id]
		if p == a || p == b || p == c {
			continue
		}
		if cross3(a, b, p) >= 0 && cross3(b, c, p) >= 0 && cross3(c, a, p) >= 0 {
			return false
		}
	}
	return true
}
