package model

import "github.com/go-gl/mathgl/mgl32"

// clipCorrection maps OpenGL clip depth [-1, 1] to the [0, 1] range hal
// backends expect.
var clipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Camera is a perspective camera. FOV is the vertical field of view in
// degrees.
type Camera struct {
	FOV       float32
	Position  mgl32.Vec3
	Up        mgl32.Vec3
	LookAt    mgl32.Vec3
	NearPlane float32
	FarPlane  float32
}

// DefaultCamera returns the camera of the demo scene.
func DefaultCamera() Camera {
	return Camera{
		FOV:       45,
		Position:  mgl32.Vec3{0, 8, 14},
		Up:        mgl32.Vec3{0, 1, 0},
		LookAt:    mgl32.Vec3{0, 0, 0},
		NearPlane: 0.1,
		FarPlane:  100,
	}
}

// View returns the world-to-view matrix.
func (c Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.LookAt, c.Up)
}

// ProjView returns the projection-view matrix for the given aspect ratio.
func (c Camera) ProjView(aspect float32) mgl32.Mat4 {
	near := c.NearPlane
	if near <= 0 {
		near = 0.1
	}
	proj := mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, near, c.FarPlane)
	return clipCorrection.Mul4(proj).Mul4(c.View())
}

// DirectionalLight is a light at infinity covered by an orthographic shadow
// frustum of half-size Extent.
type DirectionalLight struct {
	Direction mgl32.Vec3
	Extent    float32
	Near      float32
	Far       float32
}

// DefaultLight returns the light of the demo scene.
func DefaultLight() DirectionalLight {
	return DirectionalLight{
		Direction: mgl32.Vec3{-0.4, -1, -0.3},
		Extent:    40,
		Near:      0.1,
		Far:       200,
	}
}

// Dir returns the normalized light direction.
func (l DirectionalLight) Dir() mgl32.Vec3 { return l.Direction.Normalize() }

// ProjView returns the light's projection-view matrix, looking at center
// from half the far plane away.
func (l DirectionalLight) ProjView(center mgl32.Vec3) mgl32.Mat4 {
	dir := l.Dir()
	eye := center.Sub(dir.Mul(l.Far * 0.5))
	up := mgl32.Vec3{0, 1, 0}
	if abs(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(eye, center, up)
	proj := mgl32.Ortho(-l.Extent, l.Extent, -l.Extent, l.Extent, l.Near, l.Far)
	return clipCorrection.Mul4(proj).Mul4(view)
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
