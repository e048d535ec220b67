package program

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded WGSL shader sources.

//go:embed shaders/simple_shadow.wgsl
var shadowShaderSource string

//go:embed shaders/vsm_frag.wgsl
var varianceShadowShaderSource string

//go:embed shaders/vsm_compute_blur.wgsl
var varianceBlurShaderSource string

//go:embed shaders/simple_material.wgsl
var forwardMaterialShaderSource string

//go:embed shaders/vsm_material.wgsl
var varianceMaterialShaderSource string

//go:embed shaders/deferred_gbuffer.wgsl
var gbufferShaderSource string

//go:embed shaders/deferred_lighting.wgsl
var deferredLightingShaderSource string

//go:embed shaders/deferred_lighting_vsm.wgsl
var deferredLightingVarianceShaderSource string

//go:embed shaders/quad.wgsl
var quadShaderSource string

//go:embed shaders/simple_compute.wgsl
var filterShaderSource string

// Source returns the WGSL source of a program, or "" if the name is unknown.
func Source(name string) string {
	switch name {
	case Shadow:
		return shadowShaderSource
	case VarianceShadow:
		return varianceShadowShaderSource
	case VarianceBlur:
		return varianceBlurShaderSource
	case ForwardMaterial:
		return forwardMaterialShaderSource
	case VarianceMaterial:
		return varianceMaterialShaderSource
	case GBuffer:
		return gbufferShaderSource
	case DeferredLighting:
		return deferredLightingShaderSource
	case DeferredLightingVariance:
		return deferredLightingVarianceShaderSource
	case Quad:
		return quadShaderSource
	case Filter:
		return filterShaderSource
	default:
		return ""
	}
}

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// shaderSource returns the hal source for a program: SPIR-V compiled by
// naga when precompile is set, the WGSL text otherwise.
func shaderSource(name string, precompile bool) (hal.ShaderSource, error) {
	src := Source(name)
	if src == "" {
		return hal.ShaderSource{}, fmt.Errorf("%w: %q", ErrUnknownProgram, name)
	}
	if !precompile {
		return hal.ShaderSource{WGSL: src}, nil
	}
	code, err := CompileWGSL(src)
	if err != nil {
		return hal.ShaderSource{}, fmt.Errorf("%s: %w", name, err)
	}
	return hal.ShaderSource{SPIRV: code}, nil
}
