// Package model holds the scene data the renderer draws: meshes packed into
// one shared vertex and index stream, the instance list, the camera and the
// directional light.
package model

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shadowmap/internal/gpuerr"
)

// ErrUnknownMesh is returned when an instance refers to a mesh the scene
// does not have.
var ErrUnknownMesh = fmt.Errorf("%w: unknown mesh", gpuerr.ErrConfiguration)

// VertexStride is the byte size of one Vertex in the vertex stream.
const VertexStride = 24

// Vertex is one entry of the vertex stream.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
}

// VertexLayout returns the vertex buffer layout of the scene stream:
// position at location 0 and normal at location 1.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: VertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		},
	}
}

// MeshID identifies a mesh within a Scene.
type MeshID int

// MeshInfo locates a mesh in the shared streams.
type MeshInfo struct {
	IndexCount   uint32
	IndexOffset  uint32
	VertexOffset uint32
}

// Instance places a mesh in the world.
type Instance struct {
	MeshID    MeshID
	Transform mgl32.Mat4
}

// Scene is a set of meshes and the instances that draw them, in declaration
// order. Indices are 32-bit and relative to the mesh's vertex offset.
type Scene struct {
	meshes    []MeshInfo
	instances []Instance
	vertices  []Vertex
	indices   []uint32

	vbuf hal.Buffer
	ibuf hal.Buffer
}

// NewScene returns an empty scene.
func NewScene() *Scene { return &Scene{} }

// AddMesh appends a mesh to the shared streams and returns its id.
func (s *Scene) AddMesh(vertices []Vertex, indices []uint32) MeshID {
	s.meshes = append(s.meshes, MeshInfo{
		IndexCount:   uint32(len(indices)),
		IndexOffset:  uint32(len(s.indices)),
		VertexOffset: uint32(len(s.vertices)),
	})
	s.vertices = append(s.vertices, vertices...)
	s.indices = append(s.indices, indices...)
	return MeshID(len(s.meshes) - 1)
}

// AddInstance appends an instance of mesh id.
func (s *Scene) AddInstance(id MeshID, transform mgl32.Mat4) error {
	if id < 0 || int(id) >= len(s.meshes) {
		return fmt.Errorf("instance of mesh %d: %w", id, ErrUnknownMesh)
	}
	s.instances = append(s.instances, Instance{MeshID: id, Transform: transform})
	return nil
}

func (s *Scene) MeshCount() int     { return len(s.meshes) }
func (s *Scene) InstanceCount() int { return len(s.instances) }

// InstanceInfo returns instance i in declaration order.
func (s *Scene) InstanceInfo(i int) Instance { return s.instances[i] }

// MeshInfo returns the stream location of mesh id.
func (s *Scene) MeshInfo(id MeshID) MeshInfo { return s.meshes[id] }

// VertexBuffer returns the uploaded vertex stream, or nil before Upload.
func (s *Scene) VertexBuffer() hal.Buffer { return s.vbuf }

// IndexBuffer returns the uploaded index stream, or nil before Upload.
func (s *Scene) IndexBuffer() hal.Buffer { return s.ibuf }

// VertexData returns the vertex stream encoded as the GPU reads it.
func (s *Scene) VertexData() []byte {
	buf := make([]byte, len(s.vertices)*VertexStride)
	for i, v := range s.vertices {
		o := buf[i*VertexStride:]
		for j := range 3 {
			binary.LittleEndian.PutUint32(o[j*4:], math.Float32bits(v.Position[j]))
			binary.LittleEndian.PutUint32(o[12+j*4:], math.Float32bits(v.Normal[j]))
		}
	}
	return buf
}

// IndexData returns the index stream encoded as uint32 little-endian.
func (s *Scene) IndexData() []byte {
	buf := make([]byte, len(s.indices)*4)
	for i, idx := range s.indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// Upload creates the vertex and index buffers and writes the streams.
// Calling Upload again replaces the buffers.
func (s *Scene) Upload(device hal.Device, queue hal.Queue) error {
	if len(s.vertices) == 0 || len(s.indices) == 0 {
		return fmt.Errorf("%w: scene has no geometry", gpuerr.ErrConfiguration)
	}
	s.Release(device)

	vdata, idata := s.VertexData(), s.IndexData()
	vbuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "scene_vertices",
		Size:  uint64(len(vdata)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpuerr.Device("create vertex buffer", err)
	}
	ibuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "scene_indices",
		Size:  uint64(len(idata)),
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		device.DestroyBuffer(vbuf)
		return gpuerr.Device("create index buffer", err)
	}
	if err := queue.WriteBuffer(vbuf, 0, vdata); err != nil {
		device.DestroyBuffer(ibuf)
		device.DestroyBuffer(vbuf)
		return gpuerr.Device("write vertex buffer", err)
	}
	if err := queue.WriteBuffer(ibuf, 0, idata); err != nil {
		device.DestroyBuffer(ibuf)
		device.DestroyBuffer(vbuf)
		return gpuerr.Device("write index buffer", err)
	}
	s.vbuf, s.ibuf = vbuf, ibuf
	return nil
}

// Release destroys the uploaded buffers.
func (s *Scene) Release(device hal.Device) {
	if s.ibuf != nil {
		device.DestroyBuffer(s.ibuf)
		s.ibuf = nil
	}
	if s.vbuf != nil {
		device.DestroyBuffer(s.vbuf)
		s.vbuf = nil
	}
}
