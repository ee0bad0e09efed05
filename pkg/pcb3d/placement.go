package pcb3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ModelLocation returns the transform placing a component model on the
// board. pos is the footprint position in board millimetres (Y down),
// rotation the footprint angle and orientation the model rotation, both in
// radians. top and bottom are the heights of the board faces.
//
// Applied to the model, in order: the model orientation is undone about
// X, Y and Z; the offset is added, lifted by BoardOffset and the board
// face height; back side models are flipped about X; the footprint
// rotation turns about Z; finally the model moves to (x, -y).
func ModelLocation(bottom bool, pos mgl64.Vec2, rotation float64, offset, orientation mgl64.Vec3, top, bottomZ float64) mgl64.Mat4 {
	m := mgl64.Translate3D(pos.X(), -pos.Y(), 0)

	offset = mgl64.Vec3{offset.X(), offset.Y(), offset.Z() + BoardOffset}
	if bottom {
		offset[2] -= bottomZ
		m = m.Mul4(mgl64.HomogRotate3DZ(rotation))
		m = m.Mul4(mgl64.HomogRotate3DX(math.Pi))
	} else {
		offset[2] += top
		m = m.Mul4(mgl64.HomogRotate3DZ(rotation))
	}

	m = m.Mul4(mgl64.Translate3D(offset.X(), offset.Y(), offset.Z()))
	m = m.Mul4(mgl64.HomogRotate3DZ(-orientation.Z()))
	m = m.Mul4(mgl64.HomogRotate3DY(-orientation.Y()))
	m = m.Mul4(mgl64.HomogRotate3DX(-orientation.X()))
	return m
}
