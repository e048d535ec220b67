// Package overlay draws debug visualizations on top of a finished frame.
//
// Overlays run after the composite pass. They only read images that are
// already in a shader-readable layout and draw into the target in its color
// attachment layout; they never transition anything.
package overlay

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/binding"
	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/pass"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
)

// ErrNotReady is returned when an image the overlay needs is not in the
// state the frame should already have left it in.
var ErrNotReady = fmt.Errorf("%w: overlay input not ready", gpuerr.ErrOrdering)

// Rect is a rectangle in target-relative units: Offset is the top-left
// corner and Scale the size, both as fractions of the target extent.
type Rect struct {
	Scale  [2]float32
	Offset [2]float32
}

// CornerRect returns a size x size pixel rectangle in the top-left corner of
// a width x height target. It is clamped to the target.
func CornerRect(size, width, height uint32) Rect {
	frac := func(n uint32) float32 {
		if n == 0 || size >= n {
			return 1
		}
		return float32(size) / float32(n)
	}
	return Rect{Scale: [2]float32{frac(width), frac(height)}}
}

// Pixels maps r onto img's extent.
func (r Rect) Pixels(img *resource.Image) pass.Rect {
	e := img.Extent()
	w, h := float32(e.Width), float32(e.Height)
	return pass.Rect{
		X:      r.Offset[0] * w,
		Y:      r.Offset[1] * h,
		Width:  r.Scale[0] * w,
		Height: r.Scale[1] * h,
	}
}

// Widget records an overlay into enc over target.
type Widget interface {
	Record(enc hal.CommandEncoder, target *resource.Image, table *resource.Table, rect Rect) error
}

// Quad shows a depth image, normally the shadow map, inside rect.
type Quad struct {
	prog      *program.Program
	assembler *binding.Assembler
	source    *resource.Image
}

// NewQuad returns a quad sampling source. Descriptor sets are built with
// assembler and live until its next Reset.
func NewQuad(reg *program.Registry, assembler *binding.Assembler, source *resource.Image) (*Quad, error) {
	prog, err := reg.Lookup(program.Quad)
	if err != nil {
		return nil, err
	}
	return &Quad{prog: prog, assembler: assembler, source: source}, nil
}

// Record draws the source image into rect.
func (q *Quad) Record(enc hal.CommandEncoder, target *resource.Image, table *resource.Table, rect Rect) (err error) {
	if err := ready(table, target, resource.LayoutColorAttachment); err != nil {
		return err
	}
	if err := ready(table, q.source, resource.LayoutShaderReadOnly); err != nil {
		return err
	}

	r, err := pass.NewRecorder(enc, table, q.prog, pass.Overlay(target, rect.Pixels(target)))
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			r.Abort()
		}
	}()

	if err := r.Barriers(); err != nil {
		return err
	}
	if err := r.BeginTargets(); err != nil {
		return err
	}
	set, err := q.assembler.Build(q.prog, q.prog.SetIndex(), []binding.Binding{
		binding.ImageBinding(0, q.source, resource.LayoutShaderReadOnly, nil),
	})
	if err != nil {
		return err
	}
	if err := r.BindResources(set); err != nil {
		return err
	}
	if err := r.DrawFullscreen(); err != nil {
		return err
	}
	return r.End()
}

func ready(table *resource.Table, img *resource.Image, layout resource.Layout) error {
	if !table.Owns(img) {
		return fmt.Errorf("overlay: %w", resource.ErrForeignImage)
	}
	if got := table.State(img).Layout; got != layout || table.Pending(img) {
		return fmt.Errorf("overlay: %v is %v, want %v: %w", img, got, layout, ErrNotReady)
	}
	return nil
}
