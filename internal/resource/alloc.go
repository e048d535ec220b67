package resource

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
)

// Buffer is a GPU buffer owned by a Table.
type Buffer struct {
	label       string
	size        uint64
	usage       gputypes.BufferUsage
	hostVisible bool
	buffer      hal.Buffer
	mapped      []byte
}

func (b *Buffer) Label() string               { return b.label }
func (b *Buffer) Size() uint64                { return b.size }
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }
func (b *Buffer) HostVisible() bool           { return b.hostVisible }
func (b *Buffer) Raw() hal.Buffer             { return b.buffer }

// Mapped returns the persistent host mapping of a host-visible buffer, or
// nil for device-local buffers.
func (b *Buffer) Mapped() []byte { return b.mapped }

// Write overwrites size bytes at offset. Host-visible buffers are written
// through their persistent mapping; others go through the queue.
func (b *Buffer) Write(queue hal.Queue, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.size {
		return gpuerr.Configf("write %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, b.label, b.size)
	}
	if b.mapped != nil {
		copy(b.mapped[offset:], data)
		return nil
	}
	if err := queue.WriteBuffer(b.buffer, offset, data); err != nil {
		return gpuerr.Device("write buffer "+b.label, err)
	}
	return nil
}

func (b *Buffer) destroy(device hal.Device) {
	if b.buffer == nil {
		return
	}
	if b.mapped != nil {
		if err := device.UnmapBuffer(b.buffer); err != nil {
			slogger().Warn("resource: unmap failed", "buffer", b.label, "err", err)
		}
		b.mapped = nil
	}
	device.DestroyBuffer(b.buffer)
	b.buffer = nil
}

// Sampler is a sampler owned by a Table.
type Sampler struct {
	label   string
	sampler hal.Sampler
}

func (s *Sampler) Label() string    { return s.label }
func (s *Sampler) Raw() hal.Sampler { return s.sampler }

func (s *Sampler) destroy(device hal.Device) {
	if s.sampler != nil {
		device.DestroySampler(s.sampler)
		s.sampler = nil
	}
}

// ImageDesc describes an image to allocate.
type ImageDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// BufferDesc describes a buffer to allocate. HostVisible buffers are mapped
// once at creation and stay mapped until the table is closed.
type BufferDesc struct {
	Label       string
	Size        uint64
	Usage       gputypes.BufferUsage
	HostVisible bool
}

// SamplerDesc describes a sampler to allocate.
type SamplerDesc struct {
	Label   string
	Filter  gputypes.FilterMode
	Compare gputypes.CompareFunction
}

// Batch is a set of resources allocated together: either every resource is
// created or none is.
type Batch struct {
	Images   []ImageDesc
	Buffers  []BufferDesc
	Samplers []SamplerDesc
}

// Allocation holds the resources created from a Batch, in descriptor order.
type Allocation struct {
	Images   []*Image
	Buffers  []*Buffer
	Samplers []*Sampler
}

// Image returns the allocated image with the given label, or nil.
func (a *Allocation) Image(label string) *Image {
	for _, img := range a.Images {
		if img.label == label {
			return img
		}
	}
	return nil
}

// Buffer returns the allocated buffer with the given label, or nil.
func (a *Allocation) Buffer(label string) *Buffer {
	for _, b := range a.Buffers {
		if b.label == label {
			return b
		}
	}
	return nil
}

// Sampler returns the allocated sampler with the given label, or nil.
func (a *Allocation) Sampler(label string) *Sampler {
	for _, s := range a.Samplers {
		if s.label == label {
			return s
		}
	}
	return nil
}

// Allocate creates every resource of batch in order. If any creation fails,
// the resources already created for the batch are destroyed in reverse
// order before the error is returned, and the table is left unchanged.
func (t *Table) Allocate(batch Batch) (*Allocation, error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	var (
		alloc    Allocation
		rollback []func()
	)
	fail := func(err error) (*Allocation, error) {
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		slogger().Warn("resource: allocation rolled back", "created", len(rollback), "err", err)
		return nil, err
	}

	for _, d := range batch.Images {
		img, err := t.createImage(d)
		if err != nil {
			return fail(err)
		}
		rollback = append(rollback, func() { img.destroy(t.device) })
		alloc.Images = append(alloc.Images, img)
	}
	for _, d := range batch.Buffers {
		b, err := t.createBuffer(d)
		if err != nil {
			return fail(err)
		}
		rollback = append(rollback, func() { b.destroy(t.device) })
		alloc.Buffers = append(alloc.Buffers, b)
	}
	for _, d := range batch.Samplers {
		s, err := t.createSampler(d)
		if err != nil {
			return fail(err)
		}
		rollback = append(rollback, func() { s.destroy(t.device) })
		alloc.Samplers = append(alloc.Samplers, s)
	}

	t.images = append(t.images, alloc.Images...)
	t.buffers = append(t.buffers, alloc.Buffers...)
	t.samplers = append(t.samplers, alloc.Samplers...)
	slogger().Info("resource: allocated",
		"images", len(alloc.Images), "buffers", len(alloc.Buffers), "samplers", len(alloc.Samplers))
	return &alloc, nil
}

func (t *Table) createImage(d ImageDesc) (*Image, error) {
	if d.Width == 0 || d.Height == 0 {
		return nil, gpuerr.Configf("image %q has zero extent", d.Label)
	}
	aspect := AspectOf(d.Format)
	size := hal.Extent3D{Width: d.Width, Height: d.Height, DepthOrArrayLayers: 1}
	tex, err := t.device.CreateTexture(&hal.TextureDescriptor{
		Label:         d.Label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        d.Format,
		Usage:         d.Usage,
	})
	if err != nil {
		return nil, gpuerr.Device(fmt.Sprintf("create texture %q", d.Label), err)
	}
	view, err := t.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         d.Label + "_view",
		Format:        d.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        aspect.textureAspect(),
		MipLevelCount: 1,
	})
	if err != nil {
		t.device.DestroyTexture(tex)
		return nil, gpuerr.Device(fmt.Sprintf("create view %q", d.Label), err)
	}
	return &Image{
		table:   t,
		label:   d.Label,
		extent:  size,
		format:  d.Format,
		usage:   d.Usage,
		aspect:  aspect,
		texture: tex,
		view:    view,
		state:   State{Stage: StageTopOfPipe, Layout: LayoutUndefined, Aspect: aspect},
	}, nil
}

func (t *Table) createBuffer(d BufferDesc) (*Buffer, error) {
	if d.Size == 0 {
		return nil, gpuerr.Configf("buffer %q has zero size", d.Label)
	}
	raw, err := t.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.Label,
		Size:  d.Size,
		Usage: d.Usage,
	})
	if err != nil {
		return nil, gpuerr.Device(fmt.Sprintf("create buffer %q", d.Label), err)
	}
	b := &Buffer{
		label:       d.Label,
		size:        d.Size,
		usage:       d.Usage,
		hostVisible: d.HostVisible,
		buffer:      raw,
	}
	if d.HostVisible {
		m, err := t.device.MapBuffer(raw, 0, d.Size)
		if err != nil {
			t.device.DestroyBuffer(raw)
			return nil, gpuerr.Device(fmt.Sprintf("map buffer %q", d.Label), err)
		}
		b.mapped = unsafe.Slice((*byte)(m.Ptr), d.Size)
	}
	return b, nil
}

func (t *Table) createSampler(d SamplerDesc) (*Sampler, error) {
	filter := d.Filter
	if filter == gputypes.FilterModeUndefined {
		filter = gputypes.FilterModeLinear
	}
	raw, err := t.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        d.Label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Compare:      d.Compare,
		Anisotropy:   1,
	})
	if err != nil {
		return nil, gpuerr.Device(fmt.Sprintf("create sampler %q", d.Label), err)
	}
	return &Sampler{label: d.Label, sampler: raw}, nil
}
