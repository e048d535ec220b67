package shadowmap

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/frame"
	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
	"github.com/gogpu/shadowmap/model"
)

// ErrClosed is returned by every Renderer method called after Close.
var ErrClosed = fmt.Errorf("%w: renderer closed", gpuerr.ErrOrdering)

// Renderer records and submits shadow-mapped frames of one scene.
//
// A Renderer owns every frame graph image it renders with. Frame targets
// are registered with ImportTarget or CreateTarget and stay owned by the
// caller or the Renderer respectively.
//
// Renderer is not safe for concurrent use.
type Renderer struct {
	cfg    Config
	device hal.Device
	queue  hal.Queue

	table    *resource.Table
	reg      *program.Registry
	orch     *frame.Orchestrator
	scene    *model.Scene
	ownScene bool
	targets  []*Target

	start  time.Time
	frames uint64
	closed bool
}

// NewRenderer creates the programs and frame graph resources for cfg on
// device. A nil scene renders model.DemoScene. Scenes that were not
// uploaded yet are uploaded and released with the Renderer.
func NewRenderer(device hal.Device, queue hal.Queue, cfg Config, scene *model.Scene) (_ *Renderer, err error) {
	if device == nil || queue == nil {
		return nil, gpuerr.Configf("shadowmap: nil device or queue")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("shadowmap: %w", err)
	}
	r := &Renderer{
		cfg:    cfg,
		device: device,
		queue:  queue,
		table:  resource.NewTable(device),
		start:  time.Now(),
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	if scene == nil {
		scene = model.DemoScene()
	}
	r.scene = scene
	if scene.VertexBuffer() == nil {
		if err := scene.Upload(device, queue); err != nil {
			return nil, fmt.Errorf("shadowmap: scene: %w", err)
		}
		r.ownScene = true
	}

	fc := cfg.frame()
	r.reg, err = program.NewRegistry(device, program.Options{
		TargetFormat: cfg.TargetFormat,
		VertexLayout: model.VertexLayout(),
		Precompile:   cfg.PrecompiledShaders,
		Only:         frame.Programs(fc.Plan),
	})
	if err != nil {
		return nil, fmt.Errorf("shadowmap: %w", err)
	}
	r.orch, err = frame.NewOrchestrator(device, queue, r.table, r.reg, scene, fc)
	if err != nil {
		return nil, fmt.Errorf("shadowmap: %w", err)
	}

	Logger().Info("shadowmap: renderer created",
		"shadow", cfg.Shadow, "shading", cfg.Shading, "overlay", cfg.DebugOverlay,
		"viewport", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "shadow_resolution", cfg.ShadowResolution,
		"instances", scene.InstanceCount())
	return r, nil
}

// NewRendererFromProvider creates a Renderer on the device of a host
// application such as gogpu. The provider must also expose its hal device
// and queue through HalDevice() any and HalQueue() any. When the provider
// has a surface, its format replaces cfg.TargetFormat.
func NewRendererFromProvider(provider gpucontext.DeviceProvider, cfg Config, scene *model.Scene) (*Renderer, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, gpuerr.Configf("shadowmap: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, gpuerr.Configf("shadowmap: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, gpuerr.Configf("shadowmap: provider HalQueue is not hal.Queue")
	}
	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		cfg.TargetFormat = f
	}
	return NewRenderer(device, queue, cfg, scene)
}

// Config returns the configuration the Renderer was created with.
func (r *Renderer) Config() Config { return r.cfg }

// Frames returns the number of frames submitted by RenderFrame.
func (r *Renderer) Frames() uint64 { return r.frames }

// Passes returns the names of the passes every frame records, in order.
func (r *Renderer) Passes() []string {
	kinds := r.orch.Plan().Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

// Uniforms returns the frame constants for the current camera, light and
// elapsed time.
func (r *Renderer) Uniforms() frame.Uniforms {
	cfg := r.cfg
	return frame.Uniforms{
		CameraProjView: cfg.Camera.ProjView(float32(cfg.Width) / float32(cfg.Height)),
		LightMatrix:    cfg.Light.ProjView(cfg.Camera.LookAt),
		LightDir:       cfg.Light.Dir(),
		Time:           float32(time.Since(r.start).Seconds()),
		ScreenSize:     [2]float32{float32(cfg.Width), float32(cfg.Height)},
		Variance:       cfg.Shadow == ShadowVariance,
		Deferred:       cfg.Shading == ShadingDeferred,
		ClearColor:     cfg.ClearColor,
	}
}

// RecordFrame writes the frame constants and records one frame into t. The
// returned command buffer leaves t in the present layout. The previous
// frame must have finished executing on the GPU.
func (r *Renderer) RecordFrame(t *Target) (hal.CommandBuffer, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if t == nil || t.img == nil {
		return nil, gpuerr.Configf("shadowmap: nil target")
	}
	if err := r.orch.WriteUniforms(r.Uniforms()); err != nil {
		return nil, fmt.Errorf("shadowmap: %w", err)
	}
	cmd, err := r.orch.RecordFrame(t.img)
	if err != nil {
		return nil, fmt.Errorf("shadowmap: %w", err)
	}
	return cmd, nil
}

// RenderFrame records one frame into t, submits it and waits until the GPU
// has executed it.
func (r *Renderer) RenderFrame(t *Target) error {
	cmd, err := r.RecordFrame(t)
	if err != nil {
		return err
	}
	defer r.device.FreeCommandBuffer(cmd)
	if err := r.submit(cmd); err != nil {
		return fmt.Errorf("shadowmap: %w", err)
	}
	r.frames++
	return nil
}

// submit submits cmd and blocks until it completed.
func (r *Renderer) submit(cmd hal.CommandBuffer) error {
	idx, err := r.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return gpuerr.Device("submit", err)
	}
	if r.queue.PollCompleted() < idx {
		if err := r.device.WaitIdle(); err != nil {
			return gpuerr.Device("wait idle", err)
		}
	}
	return nil
}

// Close waits for the device and releases everything the Renderer created,
// including targets made by CreateTarget. Imported targets are forgotten but
// not destroyed. Close is safe to call more than once.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if err := r.device.WaitIdle(); err != nil {
		Logger().Warn("shadowmap: wait idle on close", "err", err)
	}
	for _, t := range r.targets {
		t.destroy(r.device)
	}
	r.targets = nil
	if r.orch != nil {
		r.orch.Close()
	}
	r.table.Close()
	if r.reg != nil {
		r.reg.Close()
	}
	if r.ownScene {
		r.scene.Release(r.device)
	}
}
