// Package shadowmap renders a scene lit by a directional light with shadow
// mapping, on top of the gogpu/wgpu hal.
//
// # Overview
//
// Every frame is a fixed list of passes chosen once from the configuration:
//
//	shadow       depth (or depth moments with variance shadows) from the light
//	blur         compute blur of the moments, variance shadows only
//	gbuffer      normals, albedo and depth, deferred shading only
//	composite    forward shading of every instance, or one full-screen
//	             deferred lighting pass
//	overlay      the shadow map in the top-left corner, optional
//
// The renderer tracks the layout and access of every image it touches and
// emits the barriers between passes itself. A recorded frame leaves its
// target in the present layout.
//
// # Quick Start
//
//	dev, err := shadowmap.OpenDevice(gputypes.BackendVulkan)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	r, err := shadowmap.NewRenderer(dev.Device, dev.Queue,
//	    shadowmap.NewConfig(shadowmap.WithShadowMode(shadowmap.ShadowVariance)), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	target, _ := r.CreateTarget()
//	if err := r.RenderFrame(target); err != nil {
//	    log.Fatal(err)
//	}
//	img, _ := r.Snapshot(target)
//
// # Errors
//
// Errors wrap one of ErrConfiguration, ErrDevice or ErrOrdering. Any error
// while recording discards the whole frame.
//
// # Logging
//
// Nothing is logged until SetLogger installs a logger.
package shadowmap
