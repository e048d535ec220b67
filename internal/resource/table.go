// Package resource owns the GPU images and buffers shared by the passes of a
// frame and tracks the pipeline state each image was last transitioned to.
//
// State changes are requested with Table.Transition and take effect in the
// table immediately. The matching hal barriers are accumulated and emitted in
// program order by Table.Flush, collapsing repeated transitions of one image
// into a single barrier to its final state.
package resource

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
)

var (
	// ErrLayoutUsage is returned when a layout is requested that the image's
	// declared usage or format cannot support.
	ErrLayoutUsage = fmt.Errorf("%w: layout incompatible with image usage", gpuerr.ErrConfiguration)

	// ErrForeignImage is returned for an image that is not owned by the table.
	ErrForeignImage = fmt.Errorf("%w: image not registered in this table", gpuerr.ErrConfiguration)

	// ErrTableClosed is returned by operations on a closed table.
	ErrTableClosed = errors.New("resource: table closed")
)

// Image is a GPU texture together with its recorded state.
// Images are created by Table.Allocate or registered with Table.Import and
// must only be transitioned through the table that owns them.
type Image struct {
	table    *Table
	label    string
	extent   hal.Extent3D
	format   gputypes.TextureFormat
	usage    gputypes.TextureUsage
	aspect   Aspect
	texture  hal.Texture
	view     hal.TextureView
	imported bool

	state    State
	halUsage gputypes.TextureUsage
}

func (img *Image) Label() string                  { return img.label }
func (img *Image) Extent() hal.Extent3D           { return img.extent }
func (img *Image) Format() gputypes.TextureFormat { return img.format }
func (img *Image) Usage() gputypes.TextureUsage   { return img.usage }
func (img *Image) Aspect() Aspect                 { return img.aspect }
func (img *Image) Texture() hal.Texture           { return img.texture }
func (img *Image) View() hal.TextureView          { return img.view }

// Imported reports whether the image was registered with Import, in which
// case the table never destroys it.
func (img *Image) Imported() bool { return img.imported }

func (img *Image) String() string { return img.label }

// Record is one entry of the transition history.
type Record struct {
	Image *Image
	State State
}

type pendingBarrier struct {
	img     *Image
	from    gputypes.TextureUsage
	flushed State
}

// Table is the exclusive owner of the frame's images, buffers and samplers.
// A Table is not safe for concurrent use.
type Table struct {
	device hal.Device

	images   []*Image
	buffers  []*Buffer
	samplers []*Sampler

	pending []pendingBarrier
	history []Record
	closed  bool
}

// NewTable creates an empty table allocating from device.
func NewTable(device hal.Device) *Table {
	return &Table{device: device}
}

// Device returns the device the table allocates from.
func (t *Table) Device() hal.Device { return t.device }

// Owns reports whether img is registered in t.
func (t *Table) Owns(img *Image) bool { return img != nil && img.table == t }

// State returns the state img was last transitioned to.
func (t *Table) State(img *Image) State { return img.state }

// Pending reports whether img has a transition that has not been flushed.
func (t *Table) Pending(img *Image) bool {
	return t.pendingIndex(img) >= 0
}

// PendingCount returns the number of images waiting for a barrier.
func (t *Table) PendingCount() int { return len(t.pending) }

// Transition records that img must be in the given state before the next
// operation that depends on it. The recorded state changes immediately; the
// barrier is emitted by the next Flush.
//
// Transitioning an image to the state it is already in is a no-op.
func (t *Table) Transition(img *Image, stage Stage, access Access, layout Layout, aspect Aspect) error {
	if t.closed {
		return ErrTableClosed
	}
	if img == nil || img.table != t {
		return fmt.Errorf("transition %v: %w", img, ErrForeignImage)
	}
	if err := checkLayout(img, access, layout, aspect); err != nil {
		return err
	}

	next := State{Stage: stage, Access: access, Layout: layout, Aspect: aspect}
	if next == img.state {
		return nil
	}
	if t.pendingIndex(img) < 0 {
		t.pending = append(t.pending, pendingBarrier{
			img:     img,
			from:    img.halUsage,
			flushed: img.state,
		})
	}
	img.state = next
	t.history = append(t.history, Record{Image: img, State: next})
	return nil
}

// Flush emits every pending barrier into enc with one TransitionTextures
// call, in the order the images were first transitioned, and returns the
// number of barriers emitted. Images whose net state did not change since
// the previous flush are skipped.
func (t *Table) Flush(enc hal.CommandEncoder) int {
	if len(t.pending) == 0 {
		return 0
	}
	barriers := make([]hal.TextureBarrier, 0, len(t.pending))
	for _, p := range t.pending {
		img := p.img
		if img.state == p.flushed {
			continue
		}
		usage, ok := img.state.Layout.textureUsage()
		if !ok {
			// Present: ownership passes to the swapchain.
			continue
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: img.texture,
			Range:   hal.TextureRange{Aspect: img.state.Aspect.textureAspect()},
			Usage: hal.TextureUsageTransition{
				OldUsage: p.from,
				NewUsage: usage,
			},
		})
		img.halUsage = usage
	}
	t.pending = t.pending[:0]
	if len(barriers) > 0 {
		enc.TransitionTextures(barriers)
	}
	slogger().Debug("resource: flushed barriers", "count", len(barriers))
	return len(barriers)
}

// History returns the states img was transitioned to since the last
// ResetHistory, in program order.
func (t *Table) History(img *Image) []State {
	var states []State
	for _, r := range t.history {
		if r.Image == img {
			states = append(states, r.State)
		}
	}
	return states
}

// Records returns the full transition history in program order.
func (t *Table) Records() []Record { return slices.Clone(t.history) }

// ResetHistory forgets the recorded transition history.
func (t *Table) ResetHistory() { t.history = t.history[:0] }

// Checkpoint is a saved copy of every image's recorded state.
type Checkpoint struct {
	images  []imageState
	history int
}

type imageState struct {
	img      *Image
	state    State
	halUsage gputypes.TextureUsage
}

// Checkpoint saves the recorded state of every image. Take one before
// recording work that may be discarded.
func (t *Table) Checkpoint() Checkpoint {
	cp := Checkpoint{images: make([]imageState, len(t.images)), history: len(t.history)}
	for i, img := range t.images {
		cp.images[i] = imageState{img: img, state: img.state, halUsage: img.halUsage}
	}
	return cp
}

// Rollback restores the states saved by cp and drops pending barriers. It
// must be called when the command buffer the transitions since cp were
// recorded into is never submitted.
func (t *Table) Rollback(cp Checkpoint) {
	for _, s := range cp.images {
		if s.img.table != t {
			continue
		}
		s.img.state = s.state
		s.img.halUsage = s.halUsage
	}
	t.pending = t.pending[:0]
	if cp.history <= len(t.history) {
		t.history = t.history[:cp.history]
	}
}

// ImportDesc describes an externally owned image, typically a presentable
// target.
type ImportDesc struct {
	Label   string
	Texture hal.Texture
	View    hal.TextureView
	Format  gputypes.TextureFormat
	Usage   gputypes.TextureUsage
	Width   uint32
	Height  uint32
}

// Import registers an image the table does not own. Its initial state is
// undefined.
func (t *Table) Import(desc ImportDesc) (*Image, error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	if desc.Texture == nil || desc.View == nil {
		return nil, gpuerr.Configf("import %q: texture and view are required", desc.Label)
	}
	img := &Image{
		table:    t,
		label:    desc.Label,
		extent:   hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		format:   desc.Format,
		usage:    desc.Usage,
		aspect:   AspectOf(desc.Format),
		texture:  desc.Texture,
		view:     desc.View,
		imported: true,
		state:    State{Stage: StageTopOfPipe, Layout: LayoutUndefined, Aspect: AspectOf(desc.Format)},
	}
	t.images = append(t.images, img)
	return img, nil
}

// Release forgets an imported image. Owned images are released by Close.
func (t *Table) Release(img *Image) {
	if img == nil || img.table != t || !img.imported {
		return
	}
	t.images = slices.DeleteFunc(t.images, func(i *Image) bool { return i == img })
	t.pending = slices.DeleteFunc(t.pending, func(p pendingBarrier) bool { return p.img == img })
	img.table = nil
}

// Close destroys every owned resource in reverse creation order.
func (t *Table) Close() {
	if t.closed {
		return
	}
	t.closed = true
	for i := len(t.samplers) - 1; i >= 0; i-- {
		t.samplers[i].destroy(t.device)
	}
	for i := len(t.buffers) - 1; i >= 0; i-- {
		t.buffers[i].destroy(t.device)
	}
	for i := len(t.images) - 1; i >= 0; i-- {
		if !t.images[i].imported {
			t.images[i].destroy(t.device)
		}
	}
	t.images, t.buffers, t.samplers, t.pending = nil, nil, nil, nil
}

func (t *Table) pendingIndex(img *Image) int {
	for i := range t.pending {
		if t.pending[i].img == img {
			return i
		}
	}
	return -1
}

func (img *Image) destroy(device hal.Device) {
	if img.view != nil {
		device.DestroyTextureView(img.view)
		img.view = nil
	}
	if img.texture != nil {
		device.DestroyTexture(img.texture)
		img.texture = nil
	}
}

// checkLayout validates a requested state against the image's declared
// usage and format.
func checkLayout(img *Image, access Access, layout Layout, aspect Aspect) error {
	depth := img.format.HasDepth()
	fail := func(reason string) error {
		return fmt.Errorf("%w: %s to %v: %s", ErrLayoutUsage, img.label, layout, reason)
	}
	if aspect != img.aspect {
		return fail(fmt.Sprintf("aspect %v does not match format %v", aspect, img.format))
	}
	switch layout {
	case LayoutUndefined:
		return fail("undefined is not a valid target layout")
	case LayoutColorAttachment:
		if depth {
			return fail("depth format cannot be a color attachment")
		}
		if !img.usage.Contains(gputypes.TextureUsageRenderAttachment) {
			return fail("missing RenderAttachment usage")
		}
	case LayoutDepthStencilAttachment, LayoutDepthStencilReadOnly:
		if !depth {
			return fail("color format cannot be a depth attachment")
		}
		if !img.usage.Contains(gputypes.TextureUsageRenderAttachment) {
			return fail("missing RenderAttachment usage")
		}
	case LayoutShaderReadOnly:
		if !img.usage.Contains(gputypes.TextureUsageTextureBinding) {
			return fail("missing TextureBinding usage")
		}
		if access.Writes() {
			return fail("read-only layout with write access")
		}
	case LayoutGeneral:
		if !img.usage.Contains(gputypes.TextureUsageStorageBinding) {
			return fail("missing StorageBinding usage")
		}
	case LayoutTransferSrc:
		if !img.usage.Contains(gputypes.TextureUsageCopySrc) {
			return fail("missing CopySrc usage")
		}
	case LayoutTransferDst:
		if !img.usage.Contains(gputypes.TextureUsageCopyDst) {
			return fail("missing CopyDst usage")
		}
	case LayoutPresent:
		if !img.imported {
			return fail("only imported images can be presented")
		}
		if access != AccessNone {
			return fail("present layout takes no access")
		}
	default:
		return fail("unknown layout")
	}
	return nil
}
