// Package pass records one logical GPU pass into a command encoder.
//
// A Recorder walks four stages in strict order:
//
//	Idle      -> Barriers()      -> Barriers
//	Barriers  -> BeginTargets()  -> Targets
//	Targets   -> BindResources() -> Resources
//	Resources -> DrawScene() / DrawFullscreen() / Dispatch() -> Work
//	Work      -> End()           -> Ended
//
// Calling a stage out of order returns an error wrapping gpuerr.ErrOrdering.
// Nothing is recovered; the frame that owns the recorder must be dropped.
package pass

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/binding"
	"github.com/gogpu/shadowmap/internal/draw"
	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
)

var (
	// ErrOutOfOrder is returned when a stage is entered out of order.
	ErrOutOfOrder = fmt.Errorf("%w: pass stage out of order", gpuerr.ErrOrdering)

	// ErrUnflushed is returned when targets are bound while barriers are
	// still pending.
	ErrUnflushed = fmt.Errorf("%w: targets bound before barriers were flushed", gpuerr.ErrOrdering)

	// ErrAttachmentLayout is returned when an attachment is not in its
	// attachment layout at target-bind time.
	ErrAttachmentLayout = fmt.Errorf("%w: attachment not in attachment layout", gpuerr.ErrOrdering)

	// ErrUnreadableLayout is returned for a shader read transition into a
	// layout shaders cannot read from.
	ErrUnreadableLayout = fmt.Errorf("%w: shader read from an unreadable layout", gpuerr.ErrConfiguration)

	// ErrProgramMismatch is returned when the program does not fit the pass.
	ErrProgramMismatch = fmt.Errorf("%w: program does not match pass", gpuerr.ErrConfiguration)
)

// TileSize is the edge of the square image tile one compute workgroup
// covers.
const TileSize = 32

// Groups returns the workgroup counts covering a width x height image.
func Groups(width, height uint32) (x, y uint32) {
	return (width + TileSize - 1) / TileSize, (height + TileSize - 1) / TileSize
}

// Stage is the recorder's position in the pass state machine.
type Stage uint8

const (
	StageIdle Stage = iota
	StageBarriers
	StageTargets
	StageResources
	StageWork
	StageEnded
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageBarriers:
		return "barriers"
	case StageTargets:
		return "targets"
	case StageResources:
		return "resources"
	case StageWork:
		return "work"
	case StageEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Transition is one state change a pass requests in its barrier stage.
// The image's default aspect is used.
type Transition struct {
	Image  *resource.Image
	Stage  resource.Stage
	Access resource.Access
	Layout resource.Layout
}

// Recorder records one pass. It borrows the encoder and table for the
// duration of the pass only.
type Recorder struct {
	desc  Descriptor
	prog  *program.Program
	enc   hal.CommandEncoder
	table *resource.Table

	stage Stage
	rp    hal.RenderPassEncoder
	cp    hal.ComputePassEncoder
}

// NewRecorder starts a pass described by desc running prog.
func NewRecorder(enc hal.CommandEncoder, table *resource.Table, prog *program.Program, desc Descriptor) (*Recorder, error) {
	if prog == nil {
		return nil, fmt.Errorf("pass %s: %w", desc.Label(), program.ErrUnknownProgram)
	}
	if prog.Name() != desc.Program() {
		return nil, fmt.Errorf("pass %s wants %s, got %s: %w", desc.Label(), desc.Program(), prog.Name(), ErrProgramMismatch)
	}
	want := program.KindRender
	if desc.Compute() {
		want = program.KindCompute
	}
	if err := prog.CheckKind(want); err != nil {
		return nil, fmt.Errorf("pass %s: %w", desc.Label(), err)
	}
	return &Recorder{desc: desc, prog: prog, enc: enc, table: table}, nil
}

// Stage returns the current stage.
func (r *Recorder) Stage() Stage { return r.stage }

// Descriptor returns the pass descriptor.
func (r *Recorder) Descriptor() Descriptor { return r.desc }

func (r *Recorder) advance(from, to Stage) error {
	if r.stage != from {
		return fmt.Errorf("pass %s: %v called in stage %v: %w", r.desc.Label(), to, r.stage, ErrOutOfOrder)
	}
	r.stage = to
	return nil
}

// Barriers applies the pass's transitions to the table and flushes them
// into the encoder.
func (r *Recorder) Barriers(transitions ...Transition) error {
	if err := r.advance(StageIdle, StageBarriers); err != nil {
		return err
	}
	for _, t := range transitions {
		if t.Access&resource.AccessShaderRead != 0 && !t.Layout.Readable() {
			return fmt.Errorf("pass %s: %s in %v: %w", r.desc.Label(), t.Image.Label(), t.Layout, ErrUnreadableLayout)
		}
	}
	for _, t := range transitions {
		if err := r.table.Transition(t.Image, t.Stage, t.Access, t.Layout, t.Image.Aspect()); err != nil {
			return fmt.Errorf("pass %s: %w", r.desc.Label(), err)
		}
	}
	r.table.Flush(r.enc)
	return nil
}

// BeginTargets begins the render pass over the descriptor's attachments, or
// the compute pass.
func (r *Recorder) BeginTargets() error {
	if r.stage != StageBarriers {
		return fmt.Errorf("pass %s: targets bound in stage %v: %w", r.desc.Label(), r.stage, ErrOutOfOrder)
	}
	if n := r.table.PendingCount(); n != 0 {
		return fmt.Errorf("pass %s: %d pending: %w", r.desc.Label(), n, ErrUnflushed)
	}

	if r.desc.Compute() {
		r.cp = r.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: r.desc.Label()})
		r.stage = StageTargets
		return nil
	}

	colors := make([]hal.RenderPassColorAttachment, 0, len(r.desc.colors))
	for _, t := range r.desc.colors {
		if err := r.checkAttachment(t.Image, resource.LayoutColorAttachment); err != nil {
			return err
		}
		colors = append(colors, hal.RenderPassColorAttachment{
			View:       t.Image.View(),
			LoadOp:     t.Load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: t.Clear,
		})
	}
	rpDesc := &hal.RenderPassDescriptor{
		Label:            r.desc.Label(),
		ColorAttachments: colors,
	}
	if d := r.desc.depth; d != nil {
		if err := r.checkAttachment(d.Image, resource.LayoutDepthStencilAttachment); err != nil {
			return err
		}
		rpDesc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            d.Image.View(),
			DepthLoadOp:     d.Load,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: d.Clear,
		}
	}

	r.rp = r.enc.BeginRenderPass(rpDesc)
	vp := r.desc.viewport
	r.rp.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, 0, 1)
	r.stage = StageTargets
	return nil
}

func (r *Recorder) checkAttachment(img *resource.Image, want resource.Layout) error {
	if got := r.table.State(img).Layout; got != want {
		return fmt.Errorf("pass %s: %v is %v, want %v: %w", r.desc.Label(), img, got, want, ErrAttachmentLayout)
	}
	return nil
}

// BindResources binds the pipeline and the descriptor sets. Passes whose
// program only reads draw constants bind no sets.
func (r *Recorder) BindResources(sets ...*binding.DescriptorSet) error {
	if err := r.advance(StageTargets, StageResources); err != nil {
		return err
	}
	for _, s := range sets {
		if s.Program() != r.prog {
			return fmt.Errorf("pass %s: set built for %s: %w", r.desc.Label(), s.Program().Name(), ErrProgramMismatch)
		}
	}
	if r.cp != nil {
		r.cp.SetPipeline(r.prog.Compute())
		for _, s := range sets {
			r.cp.SetBindGroup(s.Index(), s.Group(), nil)
		}
		return nil
	}
	r.rp.SetPipeline(r.prog.Render())
	for _, s := range sets {
		r.rp.SetBindGroup(s.Index(), s.Group(), nil)
	}
	return nil
}

// DrawScene draws every scene instance through w.
func (r *Recorder) DrawScene(w *draw.Walker, projView mgl32.Mat4, kind draw.PayloadKind) error {
	if err := r.advance(StageResources, StageWork); err != nil {
		return err
	}
	if r.rp == nil || !r.prog.UsesSceneVertices() {
		return fmt.Errorf("pass %s: %s cannot draw the scene: %w", r.desc.Label(), r.prog.Name(), ErrProgramMismatch)
	}
	return w.Draw(r.rp, projView, kind)
}

// DrawFullscreen draws one full-screen triangle.
func (r *Recorder) DrawFullscreen() error {
	if err := r.advance(StageResources, StageWork); err != nil {
		return err
	}
	if r.rp == nil || r.prog.UsesSceneVertices() {
		return fmt.Errorf("pass %s: %s is not a full-screen program: %w", r.desc.Label(), r.prog.Name(), ErrProgramMismatch)
	}
	r.rp.Draw(3, 1, 0, 0)
	return nil
}

// Dispatch covers a width x height image in TileSize tiles.
func (r *Recorder) Dispatch(width, height uint32) error {
	if err := r.advance(StageResources, StageWork); err != nil {
		return err
	}
	if r.cp == nil {
		return fmt.Errorf("pass %s: dispatch in a render pass: %w", r.desc.Label(), ErrProgramMismatch)
	}
	x, y := Groups(width, height)
	r.cp.Dispatch(x, y, 1)
	return nil
}

// End closes the pass.
func (r *Recorder) End() error {
	if err := r.advance(StageWork, StageEnded); err != nil {
		return err
	}
	r.closePass()
	return nil
}

// Abort closes a pass left open by an error so the encoder can be
// discarded.
func (r *Recorder) Abort() {
	r.closePass()
	r.stage = StageEnded
}

func (r *Recorder) closePass() {
	if r.rp != nil {
		r.rp.End()
		r.rp = nil
	}
	if r.cp != nil {
		r.cp.End()
		r.cp = nil
	}
}
