package pass

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
)

// Shape identifies which constructor built a Descriptor.
type Shape uint8

const (
	ShapeShadow Shape = iota
	ShapeVarianceShadow
	ShapeBlur
	ShapeGBuffer
	ShapeComposite
	ShapeOverlay
	ShapeCompute
)

func (s Shape) String() string {
	switch s {
	case ShapeShadow:
		return "shadow"
	case ShapeVarianceShadow:
		return "variance_shadow"
	case ShapeBlur:
		return "blur"
	case ShapeGBuffer:
		return "gbuffer"
	case ShapeComposite:
		return "composite"
	case ShapeOverlay:
		return "overlay"
	case ShapeCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Rect is a viewport rectangle in pixels.
type Rect struct {
	X, Y, Width, Height float32
}

// FullRect covers the whole extent of img.
func FullRect(img *resource.Image) Rect {
	e := img.Extent()
	return Rect{Width: float32(e.Width), Height: float32(e.Height)}
}

// Target is a color attachment.
type Target struct {
	Image *resource.Image
	// Load is LoadOpClear or LoadOpLoad.
	Load  gputypes.LoadOp
	Clear gputypes.Color
	// Blend is nil for no blending.
	Blend     *gputypes.BlendState
	WriteMask gputypes.ColorWriteMask
}

// DepthTarget is the depth attachment.
type DepthTarget struct {
	Image *resource.Image
	Load  gputypes.LoadOp
	Clear float32
}

// Descriptor is the immutable description of one pass: the program it runs,
// the images it renders into and its viewport. Compute passes have no
// targets; their viewport is the dispatch extent.
type Descriptor struct {
	label    string
	shape    Shape
	program  string
	colors   []Target
	depth    *DepthTarget
	viewport Rect
}

func (d Descriptor) Label() string   { return d.label }
func (d Descriptor) Shape() Shape    { return d.shape }
func (d Descriptor) Program() string { return d.program }
func (d Descriptor) Viewport() Rect  { return d.viewport }

// Compute reports whether the pass is a compute dispatch.
func (d Descriptor) Compute() bool { return d.shape == ShapeBlur || d.shape == ShapeCompute }

// Colors returns a copy of the color targets.
func (d Descriptor) Colors() []Target { return append([]Target(nil), d.colors...) }

// Depth returns the depth target, or nil.
func (d Descriptor) Depth() *DepthTarget {
	if d.depth == nil {
		return nil
	}
	dt := *d.depth
	return &dt
}

func clearDepth(img *resource.Image) *DepthTarget {
	return &DepthTarget{Image: img, Load: gputypes.LoadOpClear, Clear: 1}
}

// Shadow is the depth-only shadow pass.
func Shadow(depth *resource.Image) Descriptor {
	return Descriptor{
		label:    "shadow",
		shape:    ShapeShadow,
		program:  program.Shadow,
		depth:    clearDepth(depth),
		viewport: FullRect(depth),
	}
}

// VarianceShadow renders depth and squared depth into moments, with depth
// testing against the shadow depth image.
func VarianceShadow(moments, depth *resource.Image) Descriptor {
	return Descriptor{
		label:   "variance_shadow",
		shape:   ShapeVarianceShadow,
		program: program.VarianceShadow,
		colors: []Target{{
			Image:     moments,
			Load:      gputypes.LoadOpClear,
			Clear:     gputypes.Color{R: 1, G: 1, B: 0, A: 0},
			WriteMask: gputypes.ColorWriteMaskAll,
		}},
		depth:    clearDepth(depth),
		viewport: FullRect(moments),
	}
}

// Blur is the compute pass filtering the squared-depth image into dst. Its
// dispatch covers dst's extent.
func Blur(dst *resource.Image) Descriptor {
	return Descriptor{
		label:    "variance_blur",
		shape:    ShapeBlur,
		program:  program.VarianceBlur,
		viewport: FullRect(dst),
	}
}

// GBuffer writes normal and albedo data targets plus the main depth.
// Both color targets are pure data: no blending and a full write mask.
func GBuffer(normal, albedo, depth *resource.Image) Descriptor {
	data := func(img *resource.Image) Target {
		return Target{Image: img, Load: gputypes.LoadOpClear, Blend: nil, WriteMask: gputypes.ColorWriteMaskAll}
	}
	return Descriptor{
		label:    "gbuffer",
		shape:    ShapeGBuffer,
		program:  program.GBuffer,
		colors:   []Target{data(normal), data(albedo)},
		depth:    clearDepth(depth),
		viewport: FullRect(depth),
	}
}

// Composite writes the final color into target. depth is the main depth
// image for forward programs and nil for full-screen lighting programs.
func Composite(prog string, target, depth *resource.Image, clear gputypes.Color) Descriptor {
	d := Descriptor{
		label:   "composite",
		shape:   ShapeComposite,
		program: prog,
		colors: []Target{{
			Image:     target,
			Load:      gputypes.LoadOpClear,
			Clear:     clear,
			WriteMask: gputypes.ColorWriteMaskAll,
		}},
		viewport: FullRect(target),
	}
	if depth != nil {
		d.depth = clearDepth(depth)
	}
	return d
}

// Overlay draws on top of target's existing contents inside rect.
func Overlay(target *resource.Image, rect Rect) Descriptor {
	return Descriptor{
		label:   "overlay",
		shape:   ShapeOverlay,
		program: program.Quad,
		colors: []Target{{
			Image:     target,
			Load:      gputypes.LoadOpLoad,
			WriteMask: gputypes.ColorWriteMaskAll,
		}},
		viewport: rect,
	}
}

// Dispatch is a standalone compute pass running prog over a width x height
// domain.
func Dispatch(label, prog string, width, height uint32) Descriptor {
	return Descriptor{
		label:    label,
		shape:    ShapeCompute,
		program:  prog,
		viewport: Rect{Width: float32(width), Height: float32(height)},
	}
}
