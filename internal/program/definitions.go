package program

import "github.com/gogpu/gputypes"

const (
	vertexFragment = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	fragment       = gputypes.ShaderStageFragment
	compute        = gputypes.ShaderStageCompute
)

// colorTarget marks a definition's color output as the presentable target
// format, resolved at registry creation.
const colorTarget = gputypes.TextureFormatUndefined

// definition describes how to build one program.
type definition struct {
	name          string
	kind          Kind
	schema        []Slot
	drawConstants bool
	sceneVertices bool

	// Render programs. No fragment entry means a depth-only pipeline.
	fragment     bool
	colorFormats []gputypes.TextureFormat
	depthFormat  gputypes.TextureFormat
}

func (d definition) hasDepth() bool { return d.depthFormat != gputypes.TextureFormatUndefined }

var (
	frameSlot        = Slot{Index: 0, Name: "constants", Kind: SlotUniform, Visibility: vertexFragment}
	shadowDepthSlot  = Slot{Index: 1, Name: "shadow_map", Kind: SlotDepthTexture, Sampler: SamplerComparison, Visibility: fragment}
	varianceSlot     = Slot{Index: 2, Name: "variance_shadow_map", Kind: SlotUnfilterableTexture, Sampler: SamplerNonFiltering, Visibility: fragment}
	gbufferNormal    = Slot{Index: 3, Name: "gbuffer_normal", Kind: SlotTexture, Visibility: fragment}
	gbufferAlbedo    = Slot{Index: 4, Name: "gbuffer_albedo", Kind: SlotTexture, Visibility: fragment}
	gbufferDepthSlot = Slot{Index: 5, Name: "main_view_depth", Kind: SlotDepthTexture, Visibility: fragment}
)

// Slot indices shared by the composite programs.
const (
	SlotConstants     = 0
	SlotShadowMap     = 1
	SlotVarianceMap   = 2
	SlotGBufferNormal = 3
	SlotGBufferAlbedo = 4
	SlotGBufferDepth  = 5
)

// definitions lists every program the registry can build, in creation order.
var definitions = []definition{
	{
		name:          Shadow,
		kind:          KindRender,
		drawConstants: true,
		sceneVertices: true,
		depthFormat:   ShadowDepthFormat,
	},
	{
		name:          VarianceShadow,
		kind:          KindRender,
		drawConstants: true,
		sceneVertices: true,
		fragment:      true,
		colorFormats:  []gputypes.TextureFormat{VarianceFormat},
		depthFormat:   ShadowDepthFormat,
	},
	{
		name: VarianceBlur,
		kind: KindCompute,
		schema: []Slot{
			{Index: 0, Name: "temp_variance_shadow_map", Kind: SlotUnfilterableTexture, Visibility: compute},
			{Index: 1, Name: "variance_shadow_map", Kind: SlotStorageTexture, Visibility: compute, Format: VarianceFormat},
		},
	},
	{
		name:          ForwardMaterial,
		kind:          KindRender,
		schema:        []Slot{frameSlot, shadowDepthSlot},
		drawConstants: true,
		sceneVertices: true,
		fragment:      true,
		colorFormats:  []gputypes.TextureFormat{colorTarget},
		depthFormat:   MainDepthFormat,
	},
	{
		name:          VarianceMaterial,
		kind:          KindRender,
		schema:        []Slot{frameSlot, shadowDepthSlot, varianceSlot},
		drawConstants: true,
		sceneVertices: true,
		fragment:      true,
		colorFormats:  []gputypes.TextureFormat{colorTarget},
		depthFormat:   MainDepthFormat,
	},
	{
		name:          GBuffer,
		kind:          KindRender,
		drawConstants: true,
		sceneVertices: true,
		fragment:      true,
		colorFormats:  []gputypes.TextureFormat{NormalFormat, AlbedoFormat},
		depthFormat:   MainDepthFormat,
	},
	{
		name:         DeferredLighting,
		kind:         KindRender,
		schema:       []Slot{frameSlot, shadowDepthSlot, gbufferNormal, gbufferAlbedo, gbufferDepthSlot},
		fragment:     true,
		colorFormats: []gputypes.TextureFormat{colorTarget},
	},
	{
		name:         DeferredLightingVariance,
		kind:         KindRender,
		schema:       []Slot{frameSlot, shadowDepthSlot, varianceSlot, gbufferNormal, gbufferAlbedo, gbufferDepthSlot},
		fragment:     true,
		colorFormats: []gputypes.TextureFormat{colorTarget},
	},
	{
		name:         Quad,
		kind:         KindRender,
		schema:       []Slot{{Index: 0, Name: "source", Kind: SlotDepthTexture, Visibility: fragment}},
		fragment:     true,
		colorFormats: []gputypes.TextureFormat{colorTarget},
	},
	{
		name: Filter,
		kind: KindCompute,
		schema: []Slot{
			{Index: 0, Name: "values", Kind: SlotStorageRead, Visibility: compute},
			{Index: 1, Name: "result", Kind: SlotStorageReadWrite, Visibility: compute},
			{Index: 2, Name: "params", Kind: SlotUniform, Visibility: compute},
		},
	},
}

func lookupDefinition(name string) (definition, bool) {
	for _, d := range definitions {
		if d.name == name {
			return d, true
		}
	}
	return definition{}, false
}

// Names returns every program identity the registry knows, in creation order.
func Names() []string {
	names := make([]string, len(definitions))
	for i, d := range definitions {
		names[i] = d.name
	}
	return names
}
