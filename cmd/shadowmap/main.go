// Command shadowmap renders the demo scene headless and optionally writes
// the last frame to a BMP file.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"
	"golang.org/x/image/bmp"

	"github.com/gogpu/shadowmap"
)

func main() {
	var (
		backend    = flag.String("backend", "vulkan", "hal backend: vulkan or noop")
		width      = flag.Uint("width", shadowmap.DefaultWidth, "viewport width")
		height     = flag.Uint("height", shadowmap.DefaultHeight, "viewport height")
		resolution = flag.Uint("shadow-resolution", shadowmap.DefaultShadowResolution, "shadow map edge")
		shadow     = flag.String("shadow", "simple", "shadow mode: simple or variance")
		shading    = flag.String("shading", "forward", "shading mode: forward or deferred")
		overlay    = flag.Bool("overlay", false, "draw the shadow map overlay")
		precompile = flag.Bool("precompile", false, "translate shaders to SPIR-V with naga")
		validate   = flag.Bool("validate", true, "validate descriptor set layouts")
		light      = flag.String("light", "", "light direction as x,y,z")
		frames     = flag.Int("frames", 1, "frames to render")
		snapshot   = flag.String("snapshot", "", "write the last frame to this BMP file")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		shadowmap.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	opts := []shadowmap.Option{
		shadowmap.WithViewport(uint32(*width), uint32(*height)),
		shadowmap.WithShadowResolution(uint32(*resolution)),
		shadowmap.WithDebugOverlay(*overlay),
		shadowmap.WithPrecompiledShaders(*precompile),
		shadowmap.WithValidation(*validate),
	}
	switch *shadow {
	case "simple":
		opts = append(opts, shadowmap.WithShadowMode(shadowmap.ShadowSimple))
	case "variance", "vsm":
		opts = append(opts, shadowmap.WithShadowMode(shadowmap.ShadowVariance))
	default:
		log.Fatalf("Unknown shadow mode %q", *shadow)
	}
	switch *shading {
	case "forward":
		opts = append(opts, shadowmap.WithShadingMode(shadowmap.ShadingForward))
	case "deferred":
		opts = append(opts, shadowmap.WithShadingMode(shadowmap.ShadingDeferred))
	default:
		log.Fatalf("Unknown shading mode %q", *shading)
	}
	if *light != "" {
		dir, err := parseVec3(*light)
		if err != nil {
			log.Fatalf("Bad -light: %v", err)
		}
		opts = append(opts, shadowmap.WithLight(dir))
	}

	dev, err := shadowmap.OpenDevice(parseBackend(*backend))
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Close()

	r, err := shadowmap.NewRenderer(dev.Device, dev.Queue, shadowmap.NewConfig(opts...), nil)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer r.Close()

	target, err := r.CreateTarget()
	if err != nil {
		log.Fatalf("Failed to create target: %v", err)
	}

	start := time.Now()
	for range *frames {
		if err := r.RenderFrame(target); err != nil {
			log.Fatalf("Frame %d failed: %v", r.Frames(), err)
		}
	}
	elapsed := time.Since(start)
	log.Printf("Rendered %d frames on %s (%s) in %v: %s\n",
		r.Frames(), dev.Adapter.Name, *backend, elapsed, strings.Join(r.Passes(), " -> "))

	if *snapshot == "" {
		return
	}
	img, err := r.Snapshot(target)
	if err != nil {
		log.Fatalf("Snapshot failed: %v", err)
	}
	f, err := os.Create(*snapshot)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *snapshot, err)
	}
	defer f.Close()
	if err := bmp.Encode(f, img); err != nil {
		log.Fatalf("Failed to encode %s: %v", *snapshot, err)
	}
	log.Printf("Snapshot saved to %s (%dx%d)\n", *snapshot, img.Bounds().Dx(), img.Bounds().Dy())
}

func parseBackend(name string) gputypes.Backend {
	switch name {
	case "vulkan":
		return gputypes.BackendVulkan
	case "noop":
		return gputypes.BackendEmpty
	default:
		log.Fatalf("Unknown backend %q", name)
		return gputypes.BackendEmpty
	}
}
