package model

import "github.com/go-gl/mathgl/mgl32"

// Cube returns an axis-aligned cube of the given edge length centered at the
// origin: 24 vertices (four per face, flat normals) and 36 indices.
func Cube(size float32) ([]Vertex, []uint32) {
	h := size / 2
	faces := []struct {
		normal mgl32.Vec3
		u, v   mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices))
		c := f.normal.Mul(h)
		u, v := f.u.Mul(h), f.v.Mul(h)
		vertices = append(vertices,
			Vertex{Position: c.Sub(u).Sub(v), Normal: f.normal},
			Vertex{Position: c.Add(u).Sub(v), Normal: f.normal},
			Vertex{Position: c.Add(u).Add(v), Normal: f.normal},
			Vertex{Position: c.Sub(u).Add(v), Normal: f.normal},
		)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

// Plane returns a square in the XZ plane facing +Y: 4 vertices, 6 indices.
func Plane(size float32) ([]Vertex, []uint32) {
	h := size / 2
	up := mgl32.Vec3{0, 1, 0}
	vertices := []Vertex{
		{Position: mgl32.Vec3{-h, 0, h}, Normal: up},
		{Position: mgl32.Vec3{h, 0, h}, Normal: up},
		{Position: mgl32.Vec3{h, 0, -h}, Normal: up},
		{Position: mgl32.Vec3{-h, 0, -h}, Normal: up},
	}
	return vertices, []uint32{0, 1, 2, 0, 2, 3}
}

// DemoScene builds the default scene: a ground plane and a cube resting on
// it. The cube is declared first, so its mesh occupies the start of both
// streams.
func DemoScene() *Scene {
	s := NewScene()
	cube := s.AddMesh(Cube(2))
	plane := s.AddMesh(Plane(40))
	_ = s.AddInstance(cube, mgl32.Translate3D(0, 1, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(30))))
	_ = s.AddInstance(plane, mgl32.Ident4())
	return s
}
