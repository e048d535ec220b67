package shadowmap

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/resource"
)

// ErrNotRendered is returned by Snapshot for a target no frame was rendered
// into.
var ErrNotRendered = fmt.Errorf("%w: target holds no rendered frame", gpuerr.ErrOrdering)

// copyRowAlign is the row pitch alignment of texture to buffer copies.
const copyRowAlign = 256

// Snapshot copies the last frame rendered into t back to the host. t must
// have been created with CopySrc usage, as CreateTarget does, and must be in
// the present layout. It is returned to that layout afterwards.
func (r *Renderer) Snapshot(t *Target) (_ *image.RGBA, err error) {
	if r.closed {
		return nil, ErrClosed
	}
	if t == nil || t.img == nil {
		return nil, gpuerr.Configf("shadowmap: nil target")
	}
	img := t.img
	if !img.Usage().Contains(gputypes.TextureUsageCopySrc) {
		return nil, gpuerr.Configf("shadowmap: snapshot of %v: missing CopySrc usage", img)
	}
	if r.table.State(img).Layout != resource.LayoutPresent {
		return nil, ErrNotRendered
	}
	var swapRB bool
	switch img.Format() {
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		swapRB = true
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
	default:
		return nil, gpuerr.Configf("shadowmap: snapshot of %v format is not supported", img.Format())
	}

	w, h := t.Width(), t.Height()
	pitch := (w*4 + copyRowAlign - 1) / copyRowAlign * copyRowAlign
	readback := resource.NewTable(r.device)
	defer readback.Close()
	alloc, err := readback.Allocate(resource.Batch{Buffers: []resource.BufferDesc{{
		Label:       "snapshot",
		Size:        uint64(pitch) * uint64(h),
		Usage:       gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		HostVisible: true,
	}}})
	if err != nil {
		return nil, fmt.Errorf("shadowmap: snapshot: %w", err)
	}
	buf := alloc.Buffer("snapshot")

	enc, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "snapshot"})
	if err != nil {
		return nil, gpuerr.Device("create command encoder", err)
	}
	if err := enc.BeginEncoding("snapshot"); err != nil {
		return nil, gpuerr.Device("begin encoding", err)
	}
	cp := r.table.Checkpoint()
	defer func() {
		if err != nil {
			enc.DiscardEncoding()
			r.table.Rollback(cp)
		}
	}()

	if err := r.table.Transition(img, resource.StageTransfer, resource.AccessTransferRead,
		resource.LayoutTransferSrc, img.Aspect()); err != nil {
		return nil, fmt.Errorf("shadowmap: snapshot: %w", err)
	}
	r.table.Flush(enc)
	enc.CopyTextureToBuffer(img.Texture(), buf.Raw(), []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: img.Texture(), Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	if err := r.table.Transition(img, resource.StageBottomOfPipe, resource.AccessNone,
		resource.LayoutPresent, img.Aspect()); err != nil {
		return nil, fmt.Errorf("shadowmap: snapshot: %w", err)
	}
	r.table.Flush(enc)

	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, gpuerr.Device("end encoding", err)
	}
	defer r.device.FreeCommandBuffer(cmd)
	if err := r.submit(cmd); err != nil {
		return nil, fmt.Errorf("shadowmap: snapshot: %w", err)
	}
	return decodeRows(buf.Mapped(), int(w), int(h), int(pitch), swapRB), nil
}

// decodeRows copies pitched 8-bit RGBA or BGRA rows into an image.
func decodeRows(data []byte, w, h, pitch int, swapRB bool) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		src := data[y*pitch : y*pitch+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		copy(dst, src)
		if swapRB {
			for x := 0; x < len(dst); x += 4 {
				dst[x], dst[x+2] = dst[x+2], dst[x]
			}
		}
	}
	return out
}
