package draw

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/shadowmap/internal/program"
)

// PayloadKind selects the per-draw payload a walk writes.
type PayloadKind uint8

const (
	// PayloadForward writes ForwardPushConstants: model matrix and instance
	// index. Used by shadow and forward material passes.
	PayloadForward PayloadKind = iota
	// PayloadDeferred writes DeferredPushConstants: model matrix and albedo
	// id. Used by the G-buffer pass.
	PayloadDeferred
)

func (k PayloadKind) String() string {
	if k == PayloadDeferred {
		return "deferred"
	}
	return "forward"
}

// PassConstants is written once per pass.
type PassConstants struct {
	ProjView mgl32.Mat4
}

// Encode returns the std140 bytes of c.
func (c PassConstants) Encode() []byte {
	buf := make([]byte, program.PassConstantsSize)
	putMat4(buf, c.ProjView)
	return buf
}

// ForwardPushConstants is the per-instance payload of forward passes.
type ForwardPushConstants struct {
	Model         mgl32.Mat4
	InstanceIndex uint32
}

// Encode returns the std140 bytes of c.
func (c ForwardPushConstants) Encode() []byte {
	buf := make([]byte, program.DrawConstantsSize)
	putMat4(buf, c.Model)
	binary.LittleEndian.PutUint32(buf[64:], c.InstanceIndex)
	return buf
}

// DeferredPushConstants is the per-instance payload of the G-buffer pass.
type DeferredPushConstants struct {
	Model    mgl32.Mat4
	AlbedoID uint32
}

// Encode returns the std140 bytes of c.
func (c DeferredPushConstants) Encode() []byte {
	buf := make([]byte, program.DrawConstantsSize)
	putMat4(buf, c.Model)
	binary.LittleEndian.PutUint32(buf[64:], c.AlbedoID)
	return buf
}

// putMat4 writes m column-major, as WGSL mat4x4<f32> expects.
func putMat4(buf []byte, m mgl32.Mat4) {
	for i, f := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
}
