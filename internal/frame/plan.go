package frame

import (
	"github.com/gogpu/shadowmap/internal/pass"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/internal/resource"
)

// StepKind tags one entry of a frame plan.
type StepKind uint8

const (
	StepShadowDepth StepKind = iota
	StepShadowVariance
	StepBlur
	StepGBuffer
	StepComposite
	StepOverlay
)

func (k StepKind) String() string {
	switch k {
	case StepShadowDepth:
		return "shadow_depth"
	case StepShadowVariance:
		return "shadow_variance"
	case StepBlur:
		return "blur"
	case StepGBuffer:
		return "gbuffer"
	case StepComposite:
		return "composite"
	case StepOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// PlanConfig selects the frame variant.
type PlanConfig struct {
	// Variance selects variance shadow mapping over a plain depth shadow map.
	Variance bool
	// Deferred selects deferred shading over forward shading.
	Deferred bool
	// Overlay adds the debug overlay after the composite pass.
	Overlay bool
}

// Images are the frame graph images a plan refers to. Variance images are
// only needed with PlanConfig.Variance, G-buffer images only with
// PlanConfig.Deferred.
type Images struct {
	Shadow       *resource.Image
	TempVariance *resource.Image
	Variance     *resource.Image
	Normal       *resource.Image
	Albedo       *resource.Image
	MainDepth    *resource.Image
}

// Step is one pass of a frame. Descriptor is set for steps whose targets
// are fixed; composite and overlay steps render into the frame target and
// build their descriptor at record time.
type Step struct {
	Kind       StepKind
	Program    string
	Descriptor pass.Descriptor
}

// WalksScene reports whether a step of kind k draws every scene instance
// under cfg.
func (k StepKind) WalksScene(cfg PlanConfig) bool {
	switch k {
	case StepShadowDepth, StepShadowVariance, StepGBuffer:
		return true
	case StepComposite:
		return !cfg.Deferred
	default:
		return false
	}
}

// Plan is the ordered pass list of one frame variant.
type Plan struct {
	Config PlanConfig
	Steps  []Step
}

// Kinds returns the step kinds in order.
func (p Plan) Kinds() []StepKind {
	kinds := make([]StepKind, len(p.Steps))
	for i, s := range p.Steps {
		kinds[i] = s.Kind
	}
	return kinds
}

// SceneWalks returns how many steps draw the whole scene.
func (p Plan) SceneWalks() int {
	n := 0
	for _, s := range p.Steps {
		if s.Kind.WalksScene(p.Config) {
			n++
		}
	}
	return n
}

// ScenePasses returns how many passes of the cfg variant draw the whole
// scene.
func ScenePasses(cfg PlanConfig) int {
	n := 0
	for _, k := range stepKinds(cfg) {
		if k.WalksScene(cfg) {
			n++
		}
	}
	return n
}

// stepKinds is the pass sequence of cfg.
func stepKinds(cfg PlanConfig) []StepKind {
	var kinds []StepKind
	if cfg.Variance {
		kinds = append(kinds, StepShadowVariance, StepBlur)
	} else {
		kinds = append(kinds, StepShadowDepth)
	}
	if cfg.Deferred {
		kinds = append(kinds, StepGBuffer)
	}
	kinds = append(kinds, StepComposite)
	if cfg.Overlay {
		kinds = append(kinds, StepOverlay)
	}
	return kinds
}

// BuildPlan returns the pass list for cfg. It has no side effects.
func BuildPlan(cfg PlanConfig, imgs Images) Plan {
	kinds := stepKinds(cfg)
	steps := make([]Step, len(kinds))
	for i, k := range kinds {
		switch k {
		case StepShadowDepth:
			steps[i] = fixed(k, pass.Shadow(imgs.Shadow))
		case StepShadowVariance:
			steps[i] = fixed(k, pass.VarianceShadow(imgs.TempVariance, imgs.Shadow))
		case StepBlur:
			steps[i] = fixed(k, pass.Blur(imgs.Variance))
		case StepGBuffer:
			steps[i] = fixed(k, pass.GBuffer(imgs.Normal, imgs.Albedo, imgs.MainDepth))
		case StepComposite:
			steps[i] = Step{Kind: k, Program: CompositeProgram(cfg)}
		case StepOverlay:
			steps[i] = Step{Kind: k, Program: program.Quad}
		}
	}
	return Plan{Config: cfg, Steps: steps}
}

func fixed(kind StepKind, d pass.Descriptor) Step {
	return Step{Kind: kind, Program: d.Program(), Descriptor: d}
}

// Programs returns the programs the cfg variant records with, in pass
// order.
func Programs(cfg PlanConfig) []string {
	kinds := stepKinds(cfg)
	names := make([]string, len(kinds))
	for i, k := range kinds {
		switch k {
		case StepShadowDepth:
			names[i] = program.Shadow
		case StepShadowVariance:
			names[i] = program.VarianceShadow
		case StepBlur:
			names[i] = program.VarianceBlur
		case StepGBuffer:
			names[i] = program.GBuffer
		case StepComposite:
			names[i] = CompositeProgram(cfg)
		case StepOverlay:
			names[i] = program.Quad
		}
	}
	return names
}

// CompositeProgram returns the program of the composite pass for cfg.
func CompositeProgram(cfg PlanConfig) string {
	switch {
	case cfg.Deferred && cfg.Variance:
		return program.DeferredLightingVariance
	case cfg.Deferred:
		return program.DeferredLighting
	case cfg.Variance:
		return program.VarianceMaterial
	default:
		return program.ForwardMaterial
	}
}

// CompositeSchema returns the slots of the composite pass's binding set for
// cfg, in binding order.
func CompositeSchema(cfg PlanConfig) []uint32 {
	slots := []uint32{program.SlotConstants, program.SlotShadowMap}
	if cfg.Variance {
		slots = append(slots, program.SlotVarianceMap)
	}
	if cfg.Deferred {
		slots = append(slots, program.SlotGBufferNormal, program.SlotGBufferAlbedo, program.SlotGBufferDepth)
	}
	return slots
}
