// Package draw walks the scene instance list and issues one indexed draw per
// instance.
//
// hal has no push-constant command, so per-pass and per-draw payloads are
// written into slots of a uniform arena and selected with the two dynamic
// offsets of bind group 0.
package draw

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
	"github.com/gogpu/shadowmap/internal/program"
	"github.com/gogpu/shadowmap/model"
)

// Scene is the read-only view of the scene the walker draws.
type Scene interface {
	InstanceCount() int
	InstanceInfo(i int) model.Instance
	MeshInfo(id model.MeshID) model.MeshInfo
	VertexBuffer() hal.Buffer
	IndexBuffer() hal.Buffer
}

// SlotsPerPass returns the arena slots one walk over scene consumes.
func SlotsPerPass(scene Scene) int { return 1 + scene.InstanceCount() }

// Walker draws every instance of a scene, in declaration order.
type Walker struct {
	device hal.Device
	scene  Scene
	arena  *Arena
	group  hal.BindGroup
}

// NewWalker creates the draw-constants bind group over the arena buffer.
// layout is the shared group 0 layout of the program registry.
func NewWalker(device hal.Device, layout hal.BindGroupLayout, scene Scene, arena *Arena) (*Walker, error) {
	handle := arena.Buffer().Raw().NativeHandle()
	group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "draw_constants",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: handle, Offset: 0, Size: program.PassConstantsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: handle, Offset: 0, Size: program.DrawConstantsSize}},
		},
	})
	if err != nil {
		return nil, gpuerr.Device("create draw constants bind group", err)
	}
	return &Walker{device: device, scene: scene, arena: arena, group: group}, nil
}

// Scene returns the scene being drawn.
func (w *Walker) Scene() Scene { return w.scene }

// Draw writes the pass constants, binds the scene streams and issues one
// DrawIndexed per instance with the payload selected by kind. The pipeline
// must already be bound to rp.
func (w *Walker) Draw(rp hal.RenderPassEncoder, projView mgl32.Mat4, kind PayloadKind) error {
	n := w.scene.InstanceCount()
	if w.arena.Remaining() < 1+n {
		return fmt.Errorf("walk of %d instances: %d slots left: %w", n, w.arena.Remaining(), ErrArenaExhausted)
	}

	passOff, err := w.arena.Push(PassConstants{ProjView: projView}.Encode())
	if err != nil {
		return err
	}
	rp.SetVertexBuffer(0, w.scene.VertexBuffer(), 0)
	rp.SetIndexBuffer(w.scene.IndexBuffer(), gputypes.IndexFormatUint32, 0)

	for i := range n {
		inst := w.scene.InstanceInfo(i)
		var payload []byte
		switch kind {
		case PayloadDeferred:
			payload = DeferredPushConstants{Model: inst.Transform, AlbedoID: uint32(i)}.Encode()
		default:
			payload = ForwardPushConstants{Model: inst.Transform, InstanceIndex: uint32(i)}.Encode()
		}
		drawOff, err := w.arena.Push(payload)
		if err != nil {
			return err
		}
		mesh := w.scene.MeshInfo(inst.MeshID)
		rp.SetBindGroup(program.DrawGroup, w.group, []uint32{passOff, drawOff})
		rp.DrawIndexed(mesh.IndexCount, 1, mesh.IndexOffset, int32(mesh.VertexOffset), 0)
	}
	return nil
}

// Close destroys the draw-constants bind group.
func (w *Walker) Close() {
	if w.group != nil {
		w.device.DestroyBindGroup(w.group)
		w.group = nil
	}
}
