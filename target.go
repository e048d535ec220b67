package shadowmap

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/resource"
)

// Target is an image frames are rendered into: a swapchain texture
// registered with ImportTarget, or an offscreen texture from CreateTarget.
// A rendered Target is left in the present layout.
type Target struct {
	img *resource.Image

	// Set for targets the Renderer created.
	texture hal.Texture
	view    hal.TextureView
}

// Width returns the target width in pixels.
func (t *Target) Width() uint32 { return t.img.Extent().Width }

// Height returns the target height in pixels.
func (t *Target) Height() uint32 { return t.img.Extent().Height }

// Format returns the target texture format.
func (t *Target) Format() gputypes.TextureFormat { return t.img.Format() }

// Owned reports whether the Renderer created the target.
func (t *Target) Owned() bool { return t.texture != nil }

func (t *Target) destroy(device hal.Device) {
	if t.view != nil {
		device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		device.DestroyTexture(t.texture)
		t.texture = nil
	}
}

// ImportTarget registers a texture the caller owns, typically the current
// swapchain image, as a frame target of the configured viewport size and
// target format. usage is the usage the texture was created with; zero
// means render attachment only, which rules out Snapshot.
func (r *Renderer) ImportTarget(tex hal.Texture, view hal.TextureView, usage gputypes.TextureUsage) (*Target, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if usage == 0 {
		usage = gputypes.TextureUsageRenderAttachment
	}
	img, err := r.table.Import(resource.ImportDesc{
		Label:   "frame_target",
		Texture: tex,
		View:    view,
		Format:  r.cfg.TargetFormat,
		Usage:   usage,
		Width:   r.cfg.Width,
		Height:  r.cfg.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("shadowmap: %w", err)
	}
	return &Target{img: img}, nil
}

// CreateTarget creates an offscreen target that can be snapshotted. It is
// destroyed by ReleaseTarget or Close.
func (r *Renderer) CreateTarget() (_ *Target, err error) {
	if r.closed {
		return nil, ErrClosed
	}
	const usage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc
	t := &Target{}
	defer func() {
		if err != nil {
			t.destroy(r.device)
		}
	}()
	t.texture, err = r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen_target",
		Size:          hal.Extent3D{Width: r.cfg.Width, Height: r.cfg.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        r.cfg.TargetFormat,
		Usage:         usage,
	})
	if err != nil {
		return nil, gpuerr.Device("create target texture", err)
	}
	t.view, err = r.device.CreateTextureView(t.texture, &hal.TextureViewDescriptor{Label: "offscreen_target"})
	if err != nil {
		return nil, gpuerr.Device("create target view", err)
	}
	imported, err := r.ImportTarget(t.texture, t.view, usage)
	if err != nil {
		return nil, err
	}
	t.img = imported.img
	r.targets = append(r.targets, t)
	return t, nil
}

// ReleaseTarget forgets t and destroys it if the Renderer created it. The
// GPU must be done with t.
func (r *Renderer) ReleaseTarget(t *Target) {
	if t == nil || t.img == nil {
		return
	}
	r.table.Release(t.img)
	t.img = nil
	for i, owned := range r.targets {
		if owned == t {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			t.destroy(r.device)
			break
		}
	}
}
