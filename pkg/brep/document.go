package brep

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Color is a linear RGB colour with components in [0, 1]
type Color struct {
	R, G, B float64
}

func (c Color) String() string {
	return fmt.Sprintf("rgb(%.3f, %.3f, %.3f)", c.R, c.G, c.B)
}

// Label is a node of an assembly document. A leaf label holds a shape; an
// assembly label holds components, each referencing another label with a
// placement.
//
// Colours are resolved by priority: a face colour wins over the solid
// colour, which wins over the generic label colour.
type Label struct {
	Name  string
	Shape Shape
	// Color is the generic colour of the label
	Color *Color
	// SolidColor overrides Color for every solid of Shape
	SolidColor *Color
	// FaceColors overrides the solid colour per face index, numbered in
	// the order Kernel.Explore lists faces
	FaceColors map[int]Color

	Components []*Component
}

// Component places a referenced label inside an assembly
type Component struct {
	Name     string
	Ref      *Label
	Location mgl64.Mat4
}

// IsAssembly reports whether the label groups components
func (l *Label) IsAssembly() bool {
	return len(l.Components) > 0
}

// EffectiveColor returns the colour the label's shape displays with when
// no face colour applies
func (l *Label) EffectiveColor() (Color, bool) {
	if l.SolidColor != nil {
		return *l.SolidColor, true
	}
	if l.Color != nil {
		return *l.Color, true
	}
	return Color{}, false
}

// FaceColor returns the displayed colour of face idx
func (l *Label) FaceColor(idx int) (Color, bool) {
	if c, ok := l.FaceColors[idx]; ok {
		return c, true
	}
	return l.EffectiveColor()
}

// AddComponent places ref inside l
func (l *Label) AddComponent(name string, ref *Label, loc mgl64.Mat4) *Component {
	c := &Component{Name: name, Ref: ref, Location: loc}
	l.Components = append(l.Components, c)
	return c
}

// Document is an assembly of labelled shapes. Root collects the top-level
// components; Labels owns every label of the document, shared parts
// included, in creation order.
type Document struct {
	Name   string
	Root   *Label
	Labels []*Label
}

// NewDocument returns an empty document whose root assembly is named name
func NewDocument(name string) *Document {
	root := &Label{Name: name}
	return &Document{Name: name, Root: root, Labels: []*Label{root}}
}

// NewShape registers a leaf label holding s
func (d *Document) NewShape(name string, s Shape, c *Color) *Label {
	l := &Label{Name: name, Shape: s, Color: c}
	d.Labels = append(d.Labels, l)
	return l
}

// NewAssembly registers an empty assembly label
func (d *Document) NewAssembly(name string) *Label {
	l := &Label{Name: name}
	d.Labels = append(d.Labels, l)
	return l
}

// AddShape registers a leaf label and places it at the root with an
// identity location
func (d *Document) AddShape(name string, s Shape, c *Color) *Label {
	l := d.NewShape(name, s, c)
	d.Root.AddComponent(name, l, mgl64.Ident4())
	return l
}

// Find returns the first label called name
func (d *Document) Find(name string) *Label {
	for _, l := range d.Labels {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Instance is a leaf label resolved to its world placement
type Instance struct {
	// Path joins the component names from the root down to the leaf
	Path     string
	Label    *Label
	Location mgl64.Mat4
}

// Instances walks the assembly tree and returns every leaf placement.
// Leaf labels never placed under Root are not returned.
func (d *Document) Instances() []Instance {
	var out []Instance
	var walk func(l *Label, path string, loc mgl64.Mat4, depth int)
	walk = func(l *Label, path string, loc mgl64.Mat4, depth int) {
		if depth > 64 {
			return
		}
		if l.Shape != nil {
			out = append(out, Instance{Path: path, Label: l, Location: loc})
		}
		for _, c := range l.Components {
			p := c.Name
			if path != "" {
				p = path + "/" + c.Name
			}
			walk(c.Ref, p, loc.Mul4(c.Location), depth+1)
		}
	}
	walk(d.Root, "", mgl64.Ident4(), 0)
	return out
}

// Shapes returns the located shape of every instance
func (d *Document) Shapes(k Kernel) []Shape {
	inst := d.Instances()
	out := make([]Shape, 0, len(inst))
	for _, in := range inst {
		out = append(out, k.Transform(in.Label.Shape, in.Location))
	}
	return out
}
