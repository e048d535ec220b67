// Package frame sequences the passes of one frame.
//
// An Orchestrator owns the frame graph images it allocated from a resource
// table and a Plan built once from the configuration. RecordFrame walks the
// plan into a single command encoder and leaves the target in the present
// layout. Any failure discards the whole encoder; a frame is never
// partially recorded.
package frame

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/binding"
	"github.com/gogpu/shadowmap/internal/draw"
	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/overlay"
	"github.com/gogpu/shadowmap/internal/pass"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
)

// ErrUniformsNotWritten is returned when a frame is recorded before its
// uniforms were written.
var ErrUniformsNotWritten = fmt.Errorf("%w: frame uniforms not written before recording", gpuerr.ErrOrdering)

// Labels of the resources an Orchestrator allocates.
const (
	LabelMainDepth      = "main_view_depth"
	LabelShadow         = "shadow_map"
	LabelTempVariance   = "temp_variance_shadow_map"
	LabelVariance       = "variance_shadow_map"
	LabelNormal         = "gbuffer_normal"
	LabelAlbedo         = "gbuffer_albedo"
	LabelConstants      = "constants"
	LabelDrawConstants  = "draw_constants"
	LabelDefaultSampler = "default_sampler"
	LabelShadowSampler  = "shadow_sampler"
)

// DefaultOverlaySize is the edge in pixels of the debug overlay quad.
const DefaultOverlaySize = 512

// Config describes the frame graph.
type Config struct {
	Plan PlanConfig

	// ShadowSize is the edge of the square shadow images.
	ShadowSize uint32
	// Width and Height are the main viewport extent.
	Width, Height uint32

	// Validate enables layout checks when descriptor sets are built.
	Validate bool

	ClearColor gputypes.Color

	// OverlaySize is the overlay quad edge; zero means DefaultOverlaySize.
	OverlaySize uint32
}

// usage is the state a pass needs an image in.
type usage struct {
	stage  resource.Stage
	access resource.Access
	layout resource.Layout
}

var (
	depthWrite   = usage{resource.StageDepthTests, resource.AccessDepthStencilWrite, resource.LayoutDepthStencilAttachment}
	colorWrite   = usage{resource.StageColorAttachmentOutput, resource.AccessColorAttachmentWrite, resource.LayoutColorAttachment}
	fragmentRead = usage{resource.StageFragmentShader, resource.AccessShaderRead, resource.LayoutShaderReadOnly}
	computeRead  = usage{resource.StageComputeShader, resource.AccessShaderRead, resource.LayoutShaderReadOnly}
	computeWrite = usage{resource.StageComputeShader, resource.AccessShaderWrite, resource.LayoutGeneral}
	present      = usage{resource.StageBottomOfPipe, resource.AccessNone, resource.LayoutPresent}
)

func to(img *resource.Image, u usage) pass.Transition {
	return pass.Transition{Image: img, Stage: u.stage, Access: u.access, Layout: u.layout}
}

// Orchestrator records frames. It is not safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	device hal.Device
	queue  hal.Queue
	table  *resource.Table
	reg    *program.Registry
	scene  draw.Scene
	plan   Plan

	images        Images
	constants     *resource.Buffer
	shadowSampler *resource.Sampler
	pointSampler  *resource.Sampler

	arena     *draw.Arena
	walker    *draw.Walker
	assembler *binding.Assembler
	overlay   overlay.Widget

	uniforms      Uniforms
	uniformsReady bool
	compositeSet  *binding.DescriptorSet
}

// NewOrchestrator allocates the frame graph resources for cfg from table
// and builds the plan. Resources stay owned by table; on error the caller
// closes it.
func NewOrchestrator(device hal.Device, queue hal.Queue, table *resource.Table, reg *program.Registry,
	scene draw.Scene, cfg Config) (_ *Orchestrator, err error) {
	if cfg.ShadowSize == 0 || cfg.Width == 0 || cfg.Height == 0 {
		return nil, gpuerr.Configf("frame: zero extent (shadow %d, viewport %dx%d)", cfg.ShadowSize, cfg.Width, cfg.Height)
	}
	if cfg.OverlaySize == 0 {
		cfg.OverlaySize = DefaultOverlaySize
	}
	o := &Orchestrator{cfg: cfg, device: device, queue: queue, table: table, reg: reg, scene: scene}
	defer func() {
		if err != nil {
			o.Close()
		}
	}()

	slots := ScenePasses(cfg.Plan) * draw.SlotsPerPass(scene)
	alloc, err := table.Allocate(frameBatch(cfg, max(slots, 1)))
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	o.images = Images{
		Shadow:       alloc.Image(LabelShadow),
		TempVariance: alloc.Image(LabelTempVariance),
		Variance:     alloc.Image(LabelVariance),
		Normal:       alloc.Image(LabelNormal),
		Albedo:       alloc.Image(LabelAlbedo),
		MainDepth:    alloc.Image(LabelMainDepth),
	}
	o.constants = alloc.Buffer(LabelConstants)
	o.shadowSampler = alloc.Sampler(LabelShadowSampler)
	o.pointSampler = alloc.Sampler(LabelDefaultSampler)
	o.plan = BuildPlan(cfg.Plan, o.images)

	for _, step := range o.plan.Steps {
		if _, err := reg.Lookup(step.Program); err != nil {
			return nil, fmt.Errorf("frame: %v step: %w", step.Kind, err)
		}
	}

	o.arena = draw.NewArena(alloc.Buffer(LabelDrawConstants))
	o.walker, err = draw.NewWalker(device, reg.DrawLayout(), scene, o.arena)
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	o.assembler = binding.NewAssembler(table, cfg.Validate)
	if cfg.Plan.Overlay {
		if o.overlay, err = overlay.NewQuad(reg, o.assembler, o.images.Shadow); err != nil {
			return nil, fmt.Errorf("frame: %w", err)
		}
	}

	slogger().Info("frame: orchestrator ready",
		"steps", len(o.plan.Steps), "variance", cfg.Plan.Variance, "deferred", cfg.Plan.Deferred,
		"arena_slots", o.arena.Capacity())
	return o, nil
}

// frameBatch lists the resources cfg needs. Variance and G-buffer images
// are only allocated when their passes run.
func frameBatch(cfg Config, drawSlots int) resource.Batch {
	const (
		attachSampled = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
		uniform       = gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	)
	shadow := func(label string, format gputypes.TextureFormat, u gputypes.TextureUsage) resource.ImageDesc {
		return resource.ImageDesc{Label: label, Width: cfg.ShadowSize, Height: cfg.ShadowSize, Format: format, Usage: u}
	}
	view := func(label string, format gputypes.TextureFormat) resource.ImageDesc {
		return resource.ImageDesc{Label: label, Width: cfg.Width, Height: cfg.Height, Format: format, Usage: attachSampled}
	}

	b := resource.Batch{
		Images: []resource.ImageDesc{
			view(LabelMainDepth, program.MainDepthFormat),
			shadow(LabelShadow, program.ShadowDepthFormat, attachSampled),
		},
		Buffers: []resource.BufferDesc{
			{Label: LabelConstants, Size: draw.SlotAlign, Usage: uniform},
			{Label: LabelDrawConstants, Size: uint64(drawSlots) * draw.SlotAlign, Usage: uniform},
		},
		Samplers: []resource.SamplerDesc{
			{Label: LabelDefaultSampler, Filter: gputypes.FilterModeNearest},
			{Label: LabelShadowSampler, Compare: gputypes.CompareFunctionLessEqual},
		},
	}
	if cfg.Plan.Variance {
		storage := attachSampled | gputypes.TextureUsageStorageBinding
		b.Images = append(b.Images,
			shadow(LabelTempVariance, program.VarianceFormat, storage),
			shadow(LabelVariance, program.VarianceFormat, storage),
		)
	}
	if cfg.Plan.Deferred {
		b.Images = append(b.Images, view(LabelNormal, program.NormalFormat), view(LabelAlbedo, program.AlbedoFormat))
	}
	return b
}

// Plan returns the pass list the orchestrator records.
func (o *Orchestrator) Plan() Plan { return o.plan }

// Images returns the frame graph images.
func (o *Orchestrator) Images() Images { return o.images }

// Table returns the resource table.
func (o *Orchestrator) Table() *resource.Table { return o.table }

// Arena returns the draw-constants arena.
func (o *Orchestrator) Arena() *draw.Arena { return o.arena }

// CompositeSet returns the descriptor set the last recorded composite pass
// bound, or nil.
func (o *Orchestrator) CompositeSet() *binding.DescriptorSet { return o.compositeSet }

// WriteUniforms uploads u into the constants buffer. It must be called
// before every RecordFrame.
func (o *Orchestrator) WriteUniforms(u Uniforms) error {
	if err := o.constants.Write(o.queue, 0, u.Encode()); err != nil {
		return fmt.Errorf("frame: uniforms: %w", err)
	}
	o.uniforms = u
	o.uniformsReady = true
	return nil
}

// RecordFrame records every pass of the plan into a new command encoder and
// returns the closed command buffer. The target must be an image imported
// into the orchestrator's table; it is left in the present layout.
//
// Descriptor sets of the previous frame are destroyed first, so the GPU
// must be done with that frame.
func (o *Orchestrator) RecordFrame(target *resource.Image) (_ hal.CommandBuffer, err error) {
	if !o.table.Owns(target) {
		return nil, fmt.Errorf("frame: target: %w", resource.ErrForeignImage)
	}
	if !o.uniformsReady {
		return nil, ErrUniformsNotWritten
	}

	o.assembler.Reset()
	o.table.ResetHistory()
	o.compositeSet = nil
	if err := o.arena.Reserve(o.plan.SceneWalks() * draw.SlotsPerPass(o.scene)); err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}

	enc, err := o.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return nil, gpuerr.Device("create command encoder", err)
	}
	if err := enc.BeginEncoding("frame"); err != nil {
		return nil, gpuerr.Device("begin encoding", err)
	}
	cp := o.table.Checkpoint()
	defer func() {
		if err != nil {
			enc.DiscardEncoding()
			o.table.Rollback(cp)
			slogger().Warn("frame: abandoned", "err", err)
		}
	}()

	for _, step := range o.plan.Steps {
		if err := o.recordStep(enc, step, target); err != nil {
			return nil, fmt.Errorf("frame: %v: %w", step.Kind, err)
		}
	}

	if err := o.table.Transition(target, present.stage, present.access, present.layout, target.Aspect()); err != nil {
		return nil, fmt.Errorf("frame: present: %w", err)
	}
	o.table.Flush(enc)
	if err := o.arena.Upload(o.queue); err != nil {
		return nil, fmt.Errorf("frame: draw constants: %w", err)
	}

	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, gpuerr.Device("end encoding", err)
	}
	o.uniformsReady = false
	slogger().Debug("frame: recorded", "steps", len(o.plan.Steps), "draw_slots", o.arena.Used())
	return cmd, nil
}

func (o *Orchestrator) recordStep(enc hal.CommandEncoder, step Step, target *resource.Image) error {
	imgs := o.images
	switch step.Kind {
	case StepShadowDepth:
		return o.recordScene(enc, step.Descriptor, o.uniforms.LightMatrix, draw.PayloadForward,
			to(imgs.Shadow, depthWrite))
	case StepShadowVariance:
		return o.recordScene(enc, step.Descriptor, o.uniforms.LightMatrix, draw.PayloadForward,
			to(imgs.TempVariance, colorWrite), to(imgs.Shadow, depthWrite))
	case StepBlur:
		return o.recordBlur(enc, step.Descriptor)
	case StepGBuffer:
		return o.recordScene(enc, step.Descriptor, o.uniforms.CameraProjView, draw.PayloadDeferred,
			to(imgs.Normal, colorWrite), to(imgs.Albedo, colorWrite), to(imgs.MainDepth, depthWrite))
	case StepComposite:
		return o.recordComposite(enc, step.Program, target)
	case StepOverlay:
		e := target.Extent()
		return o.overlay.Record(enc, target, o.table, overlay.CornerRect(o.cfg.OverlaySize, e.Width, e.Height))
	default:
		return gpuerr.Configf("unknown step %v", step.Kind)
	}
}

func (o *Orchestrator) recordScene(enc hal.CommandEncoder, desc pass.Descriptor, projView mgl32.Mat4,
	kind draw.PayloadKind, transitions ...pass.Transition) error {
	return o.record(enc, desc, transitions, nil, func(r *pass.Recorder) error {
		return r.DrawScene(o.walker, projView, kind)
	})
}

// recordBlur runs the write, compute read/write, shader read chain's middle
// link: the squared-depth image becomes a compute input and the filtered
// image a storage output. The composite pass moves the filtered image on
// to shader read.
func (o *Orchestrator) recordBlur(enc hal.CommandEncoder, desc pass.Descriptor) error {
	src, dst := o.images.TempVariance, o.images.Variance
	transitions := []pass.Transition{to(src, computeRead), to(dst, computeWrite)}
	bindings := []binding.Binding{
		binding.ImageBinding(0, src, computeRead.layout, nil),
		binding.ImageBinding(1, dst, computeWrite.layout, nil),
	}
	return o.record(enc, desc, transitions, bindings, func(r *pass.Recorder) error {
		e := dst.Extent()
		return r.Dispatch(e.Width, e.Height)
	})
}

func (o *Orchestrator) recordComposite(enc hal.CommandEncoder, prog string, target *resource.Image) error {
	cfg := o.plan.Config
	imgs := o.images

	transitions := []pass.Transition{to(imgs.Shadow, fragmentRead)}
	bindings := []binding.Binding{
		binding.BufferBinding(program.SlotConstants, o.constants),
		binding.ImageBinding(program.SlotShadowMap, imgs.Shadow, fragmentRead.layout, o.shadowSampler),
	}
	if cfg.Variance {
		transitions = append(transitions, to(imgs.Variance, fragmentRead))
		bindings = append(bindings,
			binding.ImageBinding(program.SlotVarianceMap, imgs.Variance, fragmentRead.layout, o.pointSampler))
	}

	var depth *resource.Image
	if cfg.Deferred {
		transitions = append(transitions,
			to(imgs.Normal, fragmentRead), to(imgs.Albedo, fragmentRead), to(imgs.MainDepth, fragmentRead))
		bindings = append(bindings,
			binding.ImageBinding(program.SlotGBufferNormal, imgs.Normal, fragmentRead.layout, nil),
			binding.ImageBinding(program.SlotGBufferAlbedo, imgs.Albedo, fragmentRead.layout, nil),
			binding.ImageBinding(program.SlotGBufferDepth, imgs.MainDepth, fragmentRead.layout, nil),
		)
	} else {
		depth = imgs.MainDepth
		transitions = append(transitions, to(imgs.MainDepth, depthWrite))
	}
	transitions = append(transitions, to(target, colorWrite))

	desc := pass.Composite(prog, target, depth, o.cfg.ClearColor)
	return o.record(enc, desc, transitions, bindings, func(r *pass.Recorder) error {
		if cfg.Deferred {
			return r.DrawFullscreen()
		}
		return r.DrawScene(o.walker, o.uniforms.CameraProjView, draw.PayloadForward)
	})
}

// record drives one pass through its stages. bindings, when non-nil, are
// assembled into the pass's resource set after the targets are bound.
func (o *Orchestrator) record(enc hal.CommandEncoder, desc pass.Descriptor, transitions []pass.Transition,
	bindings []binding.Binding, work func(*pass.Recorder) error) (err error) {
	prog, err := o.reg.Lookup(desc.Program())
	if err != nil {
		return err
	}
	r, err := pass.NewRecorder(enc, o.table, prog, desc)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			r.Abort()
		}
	}()

	slogger().Debug("frame: pass begin", "pass", desc.Label(), "program", prog.Name())
	if err := r.Barriers(transitions...); err != nil {
		return err
	}
	if err := r.BeginTargets(); err != nil {
		return err
	}
	var sets []*binding.DescriptorSet
	if bindings != nil {
		set, err := o.assembler.Build(prog, prog.SetIndex(), bindings)
		if err != nil {
			return err
		}
		sets = append(sets, set)
		if desc.Shape() == pass.ShapeComposite {
			o.compositeSet = set
		}
	}
	if err := r.BindResources(sets...); err != nil {
		return err
	}
	if err := work(r); err != nil {
		return err
	}
	return r.End()
}

// Close destroys the orchestrator's descriptor sets and draw bind group.
// The images and buffers belong to the table.
func (o *Orchestrator) Close() {
	if o.assembler != nil {
		o.assembler.Reset()
	}
	if o.walker != nil {
		o.walker.Close()
		o.walker = nil
	}
}
