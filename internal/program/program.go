// Package program resolves program identities to compiled pipelines and the
// binding schema of their resource set.
//
// Every scene-drawing program shares bind group 0, the draw-constants group
// that carries the pass-wide projection-view matrix and the per-draw payload
// through dynamic offsets. Such programs bind their resource set at group 1;
// all other programs bind it at group 0.
package program

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
)

// Program identities.
const (
	Shadow                   = "simple_shadow"
	VarianceShadow           = "vsm_frag"
	VarianceBlur             = "vsm_compute_blur"
	ForwardMaterial          = "simple_material"
	VarianceMaterial         = "vsm_material"
	GBuffer                  = "deferred_gbuffer"
	DeferredLighting         = "deferred_lighting"
	DeferredLightingVariance = "deferred_lighting_vsm"
	Quad                     = "quad"
	Filter                   = "simple_compute"
)

// Formats of the images the programs render into.
const (
	ShadowDepthFormat = gputypes.TextureFormatDepth16Unorm
	VarianceFormat    = gputypes.TextureFormatRG32Float
	MainDepthFormat   = gputypes.TextureFormatDepth32Float
	NormalFormat      = gputypes.TextureFormatRGBA16Float
	AlbedoFormat      = gputypes.TextureFormatRGBA8Unorm
)

// Draw-constants group layout.
const (
	// DrawGroup is the bind group index of the draw constants.
	DrawGroup = 0
	// PassConstantsSize is the size of the pass-wide block (projView).
	PassConstantsSize = 64
	// DrawConstantsSize is the size of the per-draw block (model + id).
	DrawConstantsSize = 80
)

// SamplerBindingBase is added to a slot index to get the hal binding of the
// sampler that accompanies a sampled image in that slot.
const SamplerBindingBase = 16

// Kind distinguishes render and compute programs.
type Kind uint8

const (
	KindRender Kind = iota
	KindCompute
)

func (k Kind) String() string {
	if k == KindCompute {
		return "compute"
	}
	return "render"
}

// SlotKind is the resource type a slot accepts.
type SlotKind uint8

const (
	SlotUniform SlotKind = iota
	SlotStorageRead
	SlotStorageReadWrite
	SlotTexture
	SlotUnfilterableTexture
	SlotDepthTexture
	SlotStorageTexture
)

// IsBuffer reports whether the slot takes a buffer.
func (k SlotKind) IsBuffer() bool {
	return k == SlotUniform || k == SlotStorageRead || k == SlotStorageReadWrite
}

func (k SlotKind) String() string {
	switch k {
	case SlotUniform:
		return "uniform"
	case SlotStorageRead:
		return "storage-read"
	case SlotStorageReadWrite:
		return "storage"
	case SlotTexture:
		return "texture"
	case SlotUnfilterableTexture:
		return "unfilterable-texture"
	case SlotDepthTexture:
		return "depth-texture"
	case SlotStorageTexture:
		return "storage-texture"
	default:
		return fmt.Sprintf("SlotKind(%d)", uint8(k))
	}
}

// SamplerKind is the sampler that accompanies a sampled image slot.
type SamplerKind uint8

const (
	SamplerNone SamplerKind = iota
	SamplerFiltering
	SamplerNonFiltering
	SamplerComparison
)

// Slot is one entry of a program's resource set.
type Slot struct {
	Index      uint32
	Name       string
	Kind       SlotKind
	Sampler    SamplerKind
	Visibility gputypes.ShaderStages
	// Format is the storage texture format for SlotStorageTexture.
	Format gputypes.TextureFormat
}

// Program is a compiled pipeline with its layouts.
type Program struct {
	name          string
	kind          Kind
	schema        []Slot
	drawConstants bool
	sceneVertices bool

	shader         hal.ShaderModule
	setLayout      hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	render         hal.RenderPipeline
	compute        hal.ComputePipeline
}

func (p *Program) Name() string { return p.name }
func (p *Program) Kind() Kind   { return p.kind }

// Schema returns the slots of the program's resource set.
func (p *Program) Schema() []Slot { return p.schema }

// Slot returns the schema entry with the given index.
func (p *Program) Slot(index uint32) (Slot, bool) {
	for _, s := range p.schema {
		if s.Index == index {
			return s, true
		}
	}
	return Slot{}, false
}

// UsesDrawConstants reports whether the program reads group 0 draw constants.
func (p *Program) UsesDrawConstants() bool { return p.drawConstants }

// UsesSceneVertices reports whether the program consumes the scene vertex
// stream.
func (p *Program) UsesSceneVertices() bool { return p.sceneVertices }

// SetIndex returns the bind group index of the resource set.
func (p *Program) SetIndex() uint32 {
	if p.drawConstants {
		return DrawGroup + 1
	}
	return 0
}

// SetLayout returns the descriptor layout for the given binding set, or nil
// when the program has no resource set at that index.
func (p *Program) SetLayout(set uint32) hal.BindGroupLayout {
	if set != p.SetIndex() {
		return nil
	}
	return p.setLayout
}

func (p *Program) PipelineLayout() hal.PipelineLayout { return p.pipelineLayout }
func (p *Program) Render() hal.RenderPipeline         { return p.render }
func (p *Program) Compute() hal.ComputePipeline       { return p.compute }

func (p *Program) String() string { return p.name }

// CheckKind returns a configuration error if p is not of kind k.
func (p *Program) CheckKind(k Kind) error {
	if p.kind != k {
		return gpuerr.Configf("program %q is a %v program, want %v", p.name, p.kind, k)
	}
	return nil
}

func (p *Program) destroy(device hal.Device) {
	if p.render != nil {
		device.DestroyRenderPipeline(p.render)
		p.render = nil
	}
	if p.compute != nil {
		device.DestroyComputePipeline(p.compute)
		p.compute = nil
	}
	if p.pipelineLayout != nil {
		device.DestroyPipelineLayout(p.pipelineLayout)
		p.pipelineLayout = nil
	}
	if p.setLayout != nil {
		device.DestroyBindGroupLayout(p.setLayout)
		p.setLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// layoutEntries expands a schema into hal layout entries. Sampled image
// slots get a companion sampler entry at SamplerBindingBase+Index.
func layoutEntries(schema []Slot) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(schema)*2)
	for _, s := range schema {
		e := gputypes.BindGroupLayoutEntry{Binding: s.Index, Visibility: s.Visibility}
		switch s.Kind {
		case SlotUniform:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case SlotStorageRead:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case SlotStorageReadWrite:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case SlotTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case SlotUnfilterableTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case SlotDepthTexture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeDepth,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case SlotStorageTexture:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        s.Format,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		}
		entries = append(entries, e)

		if s.Sampler == SamplerNone {
			continue
		}
		var st gputypes.SamplerBindingType
		switch s.Sampler {
		case SamplerFiltering:
			st = gputypes.SamplerBindingTypeFiltering
		case SamplerNonFiltering:
			st = gputypes.SamplerBindingTypeNonFiltering
		case SamplerComparison:
			st = gputypes.SamplerBindingTypeComparison
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    SamplerBindingBase + s.Index,
			Visibility: s.Visibility,
			Sampler:    &gputypes.SamplerBindingLayout{Type: st},
		})
	}
	return entries
}
