// Package gputest provides hal test doubles built on the noop backend.
//
// Encoder records every command the frame recording packages issue, so tests
// can assert on barrier order, bind groups and draw parameters without a GPU.
// Device fails a chosen creation call, for rollback tests.
package gputest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// NoopDevice opens a device and queue on the noop backend.
func NoopDevice(t testing.TB) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("no noop adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// Op names a recorded command.
type Op string

const (
	OpBegin           Op = "begin"
	OpEnd             Op = "end"
	OpDiscard         Op = "discard"
	OpBarriers        Op = "barriers"
	OpBeginRender     Op = "begin_render"
	OpBeginCompute    Op = "begin_compute"
	OpEndPass         Op = "end_pass"
	OpSetPipeline     Op = "set_pipeline"
	OpSetBindGroup    Op = "set_bind_group"
	OpSetVertexBuffer Op = "set_vertex_buffer"
	OpSetIndexBuffer  Op = "set_index_buffer"
	OpSetViewport     Op = "set_viewport"
	OpDraw            Op = "draw"
	OpDrawIndexed     Op = "draw_indexed"
	OpDispatch        Op = "dispatch"
	OpCopyToBuffer    Op = "copy_texture_to_buffer"
	OpCopyBuffer      Op = "copy_buffer_to_buffer"
)

// Event is one recorded command.
type Event struct {
	Op Op

	Barriers    []hal.TextureBarrier
	RenderPass  *hal.RenderPassDescriptor
	Label       string
	GroupIndex  uint32
	Group       hal.BindGroup
	Offsets     []uint32
	IndexFormat gputypes.IndexFormat

	// DrawIndexed / Draw arguments.
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	VertexCount   uint32

	// Dispatch arguments.
	X, Y, Z uint32

	// CopySize is the byte count of a buffer copy.
	CopySize uint64
}

// Encoder is a hal.CommandEncoder that records the commands issued to it and
// to the pass encoders it creates.
type Encoder struct {
	noop.CommandEncoder

	mu     sync.Mutex
	events []Event

	// FailEnd makes EndEncoding return an error.
	FailEnd bool
}

// NewEncoder returns an empty recording encoder.
func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) record(ev Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (e *Encoder) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

// Filter returns the recorded events with the given op.
func (e *Encoder) Filter(op Op) []Event {
	var out []Event
	for _, ev := range e.Events() {
		if ev.Op == op {
			out = append(out, ev)
		}
	}
	return out
}

// Ops returns the op of every recorded event, in order.
func (e *Encoder) Ops() []Op {
	events := e.Events()
	ops := make([]Op, len(events))
	for i, ev := range events {
		ops[i] = ev.Op
	}
	return ops
}

func (e *Encoder) BeginEncoding(label string) error {
	e.record(Event{Op: OpBegin, Label: label})
	return nil
}

// ErrEnd is returned by EndEncoding when FailEnd is set.
var ErrEnd = errors.New("gputest: end encoding failed")

func (e *Encoder) EndEncoding() (hal.CommandBuffer, error) {
	if e.FailEnd {
		return nil, ErrEnd
	}
	e.record(Event{Op: OpEnd})
	return e.CommandEncoder.EndEncoding()
}

func (e *Encoder) DiscardEncoding() { e.record(Event{Op: OpDiscard}) }

func (e *Encoder) TransitionTextures(barriers []hal.TextureBarrier) {
	e.record(Event{Op: OpBarriers, Barriers: append([]hal.TextureBarrier(nil), barriers...)})
}

func (e *Encoder) CopyBufferToBuffer(_, _ hal.Buffer, regions []hal.BufferCopy) {
	var size uint64
	for _, r := range regions {
		size += r.Size
	}
	e.record(Event{Op: OpCopyBuffer, CopySize: size})
}

func (e *Encoder) CopyTextureToBuffer(_ hal.Texture, _ hal.Buffer, _ []hal.BufferTextureCopy) {
	e.record(Event{Op: OpCopyToBuffer})
}

func (e *Encoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	d := *desc
	e.record(Event{Op: OpBeginRender, RenderPass: &d, Label: desc.Label})
	return &RenderPass{enc: e}
}

func (e *Encoder) BeginComputePass(desc *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	e.record(Event{Op: OpBeginCompute, Label: desc.Label})
	return &ComputePass{enc: e}
}

// RenderPass records render pass commands into its Encoder.
type RenderPass struct {
	noop.RenderPassEncoder
	enc *Encoder
}

func (r *RenderPass) End() { r.enc.record(Event{Op: OpEndPass}) }

func (r *RenderPass) SetPipeline(_ hal.RenderPipeline) { r.enc.record(Event{Op: OpSetPipeline}) }

func (r *RenderPass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	r.enc.record(Event{Op: OpSetBindGroup, GroupIndex: index, Group: group, Offsets: append([]uint32(nil), offsets...)})
}

func (r *RenderPass) SetVertexBuffer(_ uint32, _ hal.Buffer, _ uint64) {
	r.enc.record(Event{Op: OpSetVertexBuffer})
}

func (r *RenderPass) SetIndexBuffer(_ hal.Buffer, format gputypes.IndexFormat, _ uint64) {
	r.enc.record(Event{Op: OpSetIndexBuffer, IndexFormat: format})
}

func (r *RenderPass) SetViewport(_, _, _, _, _, _ float32) { r.enc.record(Event{Op: OpSetViewport}) }

func (r *RenderPass) Draw(vertexCount, instanceCount, _, _ uint32) {
	r.enc.record(Event{Op: OpDraw, VertexCount: vertexCount, InstanceCount: instanceCount})
}

func (r *RenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, _ uint32) {
	r.enc.record(Event{
		Op:            OpDrawIndexed,
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
	})
}

// ComputePass records compute pass commands into its Encoder.
type ComputePass struct {
	noop.ComputePassEncoder
	enc *Encoder
}

func (c *ComputePass) End() { c.enc.record(Event{Op: OpEndPass}) }

func (c *ComputePass) SetPipeline(_ hal.ComputePipeline) { c.enc.record(Event{Op: OpSetPipeline}) }

func (c *ComputePass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	c.enc.record(Event{Op: OpSetBindGroup, GroupIndex: index, Group: group, Offsets: append([]uint32(nil), offsets...)})
}

func (c *ComputePass) Dispatch(x, y, z uint32) {
	c.enc.record(Event{Op: OpDispatch, X: x, Y: y, Z: z})
}

// ErrInjected is the error returned by a Device creation call chosen to fail.
var ErrInjected = errors.New("gputest: injected device failure")

// Device is a noop device that hands out recording encoders and can fail
// the Nth resource creation.
type Device struct {
	noop.Device

	mu sync.Mutex
	// FailAt makes the FailAt-th creation call (1-based, counting textures,
	// views, buffers, samplers and bind groups) fail. Zero disables it.
	FailAt int
	// FailEncoder makes CreateCommandEncoder fail.
	FailEncoder bool
	// FailEnd is copied into every encoder the device creates.
	FailEnd bool

	created   int
	destroyed int
	encoders  []*Encoder
}

// NewDevice returns a Device that never fails.
func NewDevice() *Device { return &Device{} }

func (d *Device) step(what string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created++
	if d.FailAt > 0 && d.created == d.FailAt {
		return fmt.Errorf("%s: %w", what, ErrInjected)
	}
	return nil
}

func (d *Device) release() {
	d.mu.Lock()
	d.destroyed++
	d.mu.Unlock()
}

// Created returns the number of successful and failed creation calls.
func (d *Device) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// Destroyed returns the number of destroy calls.
func (d *Device) Destroyed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// Live returns the number of created objects not yet destroyed, excluding
// the failed call.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.created - d.destroyed
	if d.FailAt > 0 && d.created >= d.FailAt {
		n--
	}
	return n
}

// Encoders returns the encoders created so far.
func (d *Device) Encoders() []*Encoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Encoder(nil), d.encoders...)
}

// LastEncoder returns the most recently created encoder, or nil.
func (d *Device) LastEncoder() *Encoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.encoders) == 0 {
		return nil
	}
	return d.encoders[len(d.encoders)-1]
}

func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if err := d.step("texture " + desc.Label); err != nil {
		return nil, err
	}
	return d.Device.CreateTexture(desc)
}

func (d *Device) DestroyTexture(hal.Texture) { d.release() }

func (d *Device) CreateTextureView(tex hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	if err := d.step("view " + desc.Label); err != nil {
		return nil, err
	}
	return d.Device.CreateTextureView(tex, desc)
}

func (d *Device) DestroyTextureView(hal.TextureView) { d.release() }

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if err := d.step("buffer " + desc.Label); err != nil {
		return nil, err
	}
	return d.Device.CreateBuffer(desc)
}

func (d *Device) DestroyBuffer(hal.Buffer) { d.release() }

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	if err := d.step("sampler " + desc.Label); err != nil {
		return nil, err
	}
	return d.Device.CreateSampler(desc)
}

func (d *Device) DestroySampler(hal.Sampler) { d.release() }

func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	if err := d.step("bind group " + desc.Label); err != nil {
		return nil, err
	}
	return d.Device.CreateBindGroup(desc)
}

func (d *Device) DestroyBindGroup(hal.BindGroup) { d.release() }

func (d *Device) CreateCommandEncoder(_ *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	if d.FailEncoder {
		return nil, fmt.Errorf("command encoder: %w", ErrInjected)
	}
	enc := NewEncoder()
	d.mu.Lock()
	enc.FailEnd = d.FailEnd
	d.encoders = append(d.encoders, enc)
	d.mu.Unlock()
	return enc, nil
}
