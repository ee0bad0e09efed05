// Package breptest provides a brep.Kernel wrapper that records calls, for
// tests that assert how often the exporter reaches into the kernel.
package breptest

import (
	"io"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// Recorder forwards to a kernel and counts calls per method name
type Recorder struct {
	brep.Kernel

	mu    sync.Mutex
	calls map[string]int
	// FailFuse makes Fuse return an error report with the input as compound
	FailFuse bool
}

// New wraps k
func New(k brep.Kernel) *Recorder {
	return &Recorder{Kernel: k, calls: map[string]int{}}
}

func (r *Recorder) record(name string) {
	r.mu.Lock()
	r.calls[name]++
	r.mu.Unlock()
}

// Calls returns how many times method name was called
func (r *Recorder) Calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *Recorder) MakeFace(outer brep.Wire, holes []brep.Wire, z float64) (brep.Shape, error) {
	r.record("MakeFace")
	return r.Kernel.MakeFace(outer, holes, z)
}

func (r *Recorder) Extrude(face brep.Shape, height float64) (brep.Shape, error) {
	r.record("Extrude")
	return r.Kernel.Extrude(face, height)
}

func (r *Recorder) Cut(target brep.Shape, tools []brep.Shape, opt brep.BooleanOptions) (brep.Shape, brep.Report) {
	r.record("Cut")
	return r.Kernel.Cut(target, tools, opt)
}

func (r *Recorder) Fuse(shapes []brep.Shape, opt brep.BooleanOptions) (brep.Shape, brep.Report) {
	r.record("Fuse")
	if r.FailFuse {
		var rep brep.Report
		rep.Errorf("fuse disabled")
		return r.Kernel.Compound(shapes), rep
	}
	return r.Kernel.Fuse(shapes, opt)
}

func (r *Recorder) Transform(s brep.Shape, m mgl64.Mat4) brep.Shape {
	r.record("Transform")
	return r.Kernel.Transform(s, m)
}

func (r *Recorder) WriteSTEP(w io.Writer, doc *brep.Document, h brep.Header) error {
	r.record("WriteSTEP")
	return r.Kernel.WriteSTEP(w, doc, h)
}

func (r *Recorder) ReadSTEP(rd io.Reader) (*brep.Document, error) {
	r.record("ReadSTEP")
	return r.Kernel.ReadSTEP(rd)
}

func (r *Recorder) ReadIGES(rd io.Reader) (*brep.Document, error) {
	r.record("ReadIGES")
	return r.Kernel.ReadIGES(rd)
}
