package frame

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// UniformsSize is the encoded size of Uniforms.
const UniformsSize = 240

// Flags packed into the w component of the screen vector.
const (
	FlagVariance = 1 << iota
	FlagDeferred
)

// Uniforms is the per-frame constant block the composite programs read
// through slot 0. It is written by the host before recording starts.
type Uniforms struct {
	CameraProjView mgl32.Mat4
	LightMatrix    mgl32.Mat4
	LightDir       mgl32.Vec3
	Time           float32
	ScreenSize     [2]float32
	Variance       bool
	Deferred       bool
	ClearColor     gputypes.Color
}

// Flags returns the packed mode flags.
func (u Uniforms) Flags() uint32 {
	var f uint32
	if u.Variance {
		f |= FlagVariance
	}
	if u.Deferred {
		f |= FlagDeferred
	}
	return f
}

// Encode lays u out as the FrameUniforms block of the shaders:
//
//	camera_proj_view, inv_camera_proj_view, light_matrix  mat4x4<f32>
//	light_dir   vec4 (xyz, 0)
//	screen      vec4 (width, height, time, flags)
//	clear_color vec4
func (u Uniforms) Encode() []byte {
	buf := make([]byte, UniformsSize)
	off := 0
	put := func(vs ...float32) {
		for _, v := range vs {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
			off += 4
		}
	}
	put(u.CameraProjView[:]...)
	inv := u.CameraProjView.Inv()
	put(inv[:]...)
	put(u.LightMatrix[:]...)
	put(u.LightDir[0], u.LightDir[1], u.LightDir[2], 0)
	put(u.ScreenSize[0], u.ScreenSize[1], u.Time, float32(u.Flags()))
	c := u.ClearColor
	put(float32(c.R), float32(c.G), float32(c.B), float32(c.A))
	return buf
}
