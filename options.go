package shadowmap

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/shadowmap/internal/frame"
	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/model"
)

// ShadowMode selects how the light's view is stored and filtered.
type ShadowMode uint8

const (
	// ShadowSimple renders a depth shadow map sampled with a comparison
	// sampler.
	ShadowSimple ShadowMode = iota
	// ShadowVariance renders depth moments, blurs them in a compute pass
	// and shades with Chebyshev's inequality.
	ShadowVariance
)

func (m ShadowMode) String() string {
	switch m {
	case ShadowSimple:
		return "simple"
	case ShadowVariance:
		return "variance"
	default:
		return fmt.Sprintf("ShadowMode(%d)", uint8(m))
	}
}

// ShadingMode selects forward or deferred shading.
type ShadingMode uint8

const (
	// ShadingForward shades every instance in the composite pass.
	ShadingForward ShadingMode = iota
	// ShadingDeferred fills a G-buffer and shades in one full-screen pass.
	ShadingDeferred
)

func (m ShadingMode) String() string {
	switch m {
	case ShadingForward:
		return "forward"
	case ShadingDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("ShadingMode(%d)", uint8(m))
	}
}

// Defaults used by NewConfig.
const (
	DefaultShadowResolution = 2048
	DefaultWidth            = 1280
	DefaultHeight           = 720
)

// Config is the renderer configuration. Build it with NewConfig.
type Config struct {
	ShadowResolution uint32
	Width, Height    uint32

	Shadow  ShadowMode
	Shading ShadingMode

	// Validation checks image layouts against binding schemas when
	// descriptor sets are built.
	Validation bool
	// DebugOverlay draws the shadow map into the top-left corner.
	DebugOverlay bool

	TargetFormat gputypes.TextureFormat
	// PrecompiledShaders translates WGSL to SPIR-V with naga before the
	// programs are created.
	PrecompiledShaders bool

	Camera     model.Camera
	Light      model.DirectionalLight
	ClearColor gputypes.Color
}

// Option configures a Config.
//
// Example:
//
//	cfg := shadowmap.NewConfig(
//	    shadowmap.WithShadowMode(shadowmap.ShadowVariance),
//	    shadowmap.WithViewport(1920, 1080),
//	)
type Option func(*Config)

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		ShadowResolution: DefaultShadowResolution,
		Width:            DefaultWidth,
		Height:           DefaultHeight,
		Validation:       true,
		TargetFormat:     gputypes.TextureFormatBGRA8Unorm,
		Camera:           model.DefaultCamera(),
		Light:            model.DefaultLight(),
		ClearColor:       gputypes.Color{A: 1},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithShadowResolution sets the edge of the square shadow map.
func WithShadowResolution(n uint32) Option {
	return func(c *Config) { c.ShadowResolution = n }
}

// WithViewport sets the extent of the frame target.
func WithViewport(width, height uint32) Option {
	return func(c *Config) { c.Width, c.Height = width, height }
}

// WithShadowMode selects simple or variance shadow mapping.
func WithShadowMode(m ShadowMode) Option {
	return func(c *Config) { c.Shadow = m }
}

// WithShadingMode selects forward or deferred shading.
func WithShadingMode(m ShadingMode) Option {
	return func(c *Config) { c.Shading = m }
}

// WithValidation toggles descriptor set layout validation.
func WithValidation(on bool) Option {
	return func(c *Config) { c.Validation = on }
}

// WithDebugOverlay toggles the shadow map overlay.
func WithDebugOverlay(on bool) Option {
	return func(c *Config) { c.DebugOverlay = on }
}

// WithTargetFormat sets the format of the frame target.
func WithTargetFormat(f gputypes.TextureFormat) Option {
	return func(c *Config) { c.TargetFormat = f }
}

// WithPrecompiledShaders toggles naga WGSL to SPIR-V translation.
func WithPrecompiledShaders(on bool) Option {
	return func(c *Config) { c.PrecompiledShaders = on }
}

// WithCamera replaces the default camera.
func WithCamera(cam model.Camera) Option {
	return func(c *Config) { c.Camera = cam }
}

// WithLight sets the direction the light shines in.
func WithLight(dir mgl32.Vec3) Option {
	return func(c *Config) { c.Light.Direction = dir }
}

// WithClearColor sets the color the composite pass clears to.
func WithClearColor(color gputypes.Color) Option {
	return func(c *Config) { c.ClearColor = color }
}

// Validate reports the first problem with c as an ErrConfiguration.
func (c Config) Validate() error {
	switch {
	case c.ShadowResolution == 0:
		return gpuerr.Configf("zero shadow resolution")
	case c.Width == 0 || c.Height == 0:
		return gpuerr.Configf("zero viewport %dx%d", c.Width, c.Height)
	case c.Shadow > ShadowVariance:
		return gpuerr.Configf("unknown shadow mode %v", c.Shadow)
	case c.Shading > ShadingDeferred:
		return gpuerr.Configf("unknown shading mode %v", c.Shading)
	case c.TargetFormat == gputypes.TextureFormatUndefined || c.TargetFormat.HasDepth():
		return gpuerr.Configf("target format %v is not a color format", c.TargetFormat)
	case c.Light.Direction.Len() == 0:
		return gpuerr.Configf("zero light direction")
	case c.Camera.FarPlane <= 0:
		return gpuerr.Configf("camera far plane %v", c.Camera.FarPlane)
	}
	return nil
}

func (c Config) frame() frame.Config {
	return frame.Config{
		Plan: frame.PlanConfig{
			Variance: c.Shadow == ShadowVariance,
			Deferred: c.Shading == ShadingDeferred,
			Overlay:  c.DebugOverlay,
		},
		ShadowSize: c.ShadowResolution,
		Width:      c.Width,
		Height:     c.Height,
		Validate:   c.Validation,
		ClearColor: c.ClearColor,
	}
}
