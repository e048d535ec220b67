package program

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
)

// ErrUnknownProgram is returned for a program identity the registry does not
// know.
var ErrUnknownProgram = fmt.Errorf("%w: unknown program", gpuerr.ErrConfiguration)

// Options configures a Registry.
type Options struct {
	// TargetFormat is the format of the presentable color target.
	TargetFormat gputypes.TextureFormat
	// VertexLayout is the scene vertex stream consumed by scene programs.
	VertexLayout gputypes.VertexBufferLayout
	// Precompile compiles WGSL to SPIR-V with naga before handing it to hal.
	Precompile bool
	// Only restricts the registry to the named programs. Empty builds all.
	Only []string
}

// Registry owns the compiled programs and the shared draw-constants layout.
type Registry struct {
	device     hal.Device
	opts       Options
	drawLayout hal.BindGroupLayout
	programs   map[string]*Program
	order      []*Program
}

// NewRegistry builds the requested programs. On failure everything created
// so far is destroyed before the error is returned.
func NewRegistry(device hal.Device, opts Options) (*Registry, error) {
	if opts.TargetFormat == gputypes.TextureFormatUndefined {
		opts.TargetFormat = gputypes.TextureFormatBGRA8Unorm
	}
	r := &Registry{
		device:   device,
		opts:     opts,
		programs: make(map[string]*Program),
	}

	names := opts.Only
	if len(names) == 0 {
		names = Names()
	}
	defs := make([]definition, 0, len(names))
	for _, name := range names {
		d, ok := lookupDefinition(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, name)
		}
		defs = append(defs, d)
	}

	drawLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "draw_constants_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: vertexFragment,
				Buffer: &gputypes.BufferBindingLayout{
					Type:             gputypes.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   PassConstantsSize,
				},
			},
			{
				Binding:    1,
				Visibility: vertexFragment,
				Buffer: &gputypes.BufferBindingLayout{
					Type:             gputypes.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   DrawConstantsSize,
				},
			},
		},
	})
	if err != nil {
		return nil, gpuerr.Device("create draw constants layout", err)
	}
	r.drawLayout = drawLayout

	for _, d := range defs {
		p, err := r.createProgram(d)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.programs[p.name] = p
		r.order = append(r.order, p)
	}
	return r, nil
}

// Lookup resolves a program identity.
func (r *Registry) Lookup(name string) (*Program, error) {
	p, ok := r.programs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, name)
	}
	return p, nil
}

// DrawLayout returns the layout of bind group 0 shared by scene programs.
func (r *Registry) DrawLayout() hal.BindGroupLayout { return r.drawLayout }

// Close destroys every program in reverse creation order. It is safe to
// call more than once.
func (r *Registry) Close() {
	for i := len(r.order) - 1; i >= 0; i-- {
		r.order[i].destroy(r.device)
	}
	r.order = nil
	r.programs = make(map[string]*Program)
	if r.drawLayout != nil {
		r.device.DestroyBindGroupLayout(r.drawLayout)
		r.drawLayout = nil
	}
}

// createProgram compiles the shader of d and creates its layouts and
// pipeline. A partially built program is destroyed on failure.
func (r *Registry) createProgram(d definition) (_ *Program, err error) { //nolint:funlen // GPU pipeline descriptors are inherently verbose
	p := &Program{
		name:          d.name,
		kind:          d.kind,
		schema:        d.schema,
		drawConstants: d.drawConstants,
		sceneVertices: d.sceneVertices,
	}
	defer func() {
		if err != nil {
			p.destroy(r.device)
		}
	}()

	src, err := shaderSource(d.name, r.opts.Precompile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gpuerr.ErrConfiguration, err)
	}
	p.shader, err = r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  d.name + "_shader",
		Source: src,
	})
	if err != nil {
		return nil, gpuerr.Device("compile "+d.name+" shader", err)
	}

	// Resource set layout, when the program reads anything besides the
	// draw constants.
	var layouts []hal.BindGroupLayout
	if d.drawConstants {
		layouts = append(layouts, r.drawLayout)
	}
	if len(d.schema) > 0 {
		p.setLayout, err = r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   d.name + "_set_layout",
			Entries: layoutEntries(d.schema),
		})
		if err != nil {
			return nil, gpuerr.Device("create "+d.name+" set layout", err)
		}
		layouts = append(layouts, p.setLayout)
	}

	p.pipelineLayout, err = r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            d.name + "_pipe_layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, gpuerr.Device("create "+d.name+" pipeline layout", err)
	}

	if d.kind == KindCompute {
		p.compute, err = r.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  d.name + "_pipeline",
			Layout: p.pipelineLayout,
			Compute: hal.ComputeState{
				Module:     p.shader,
				EntryPoint: "cs_main",
			},
		})
		if err != nil {
			return nil, gpuerr.Device("create "+d.name+" pipeline", err)
		}
		return p, nil
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  d.name + "_pipeline",
		Layout: p.pipelineLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
		},
		// Triangle list, counter-clockwise front faces, no culling.
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.DefaultMultisampleState(),
	}
	if d.sceneVertices {
		desc.Vertex.Buffers = []gputypes.VertexBufferLayout{r.opts.VertexLayout}
	}
	if d.fragment {
		// Color targets are pure data or opaque output: no blending and a
		// full write mask.
		targets := make([]gputypes.ColorTargetState, len(d.colorFormats))
		for i, f := range d.colorFormats {
			if f == colorTarget {
				f = r.opts.TargetFormat
			}
			targets[i] = gputypes.ColorTargetState{
				Format:    f,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		desc.Fragment = &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets:    targets,
		}
	}
	if d.hasDepth() {
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            d.depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
		}
	}
	p.render, err = r.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, gpuerr.Device("create "+d.name+" pipeline", err)
	}
	return p, nil
}
