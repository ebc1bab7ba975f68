// Package mesh holds the static geometry drawn by the renderer.
package mesh

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex matches the vertex shader inputs: location 0 is the position, location 1 the color.
type Vertex struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Square returns the built-in colored quad.
func Square() *Mesh {
	return &Mesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
			{Position: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
			{Position: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
			{Position: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// IndexCount is the number of indices one draw of the mesh consumes.
func (m *Mesh) IndexCount() int {
	return len(m.Indices)
}

// IndexWidth is the size in bytes of one index in the buffer produced by IndexData.
func (m *Mesh) IndexWidth() int {
	return indexWidthFor(len(m.Vertices))
}

// IndexData returns the indices as []uint16 when every vertex is addressable with 16 bits and
// as []uint32 otherwise.
func (m *Mesh) IndexData() any {
	if m.IndexWidth() == 4 {
		return m.Indices
	}

	narrow := make([]uint16, len(m.Indices))
	for i, idx := range m.Indices {
		narrow[i] = uint16(idx)
	}
	return narrow
}

func indexWidthFor(vertexCount int) int {
	if vertexCount > math.MaxUint16+1 {
		return 4
	}
	return 2
}

// Validate reports indices that point past the vertex list.
func (m *Mesh) Validate() error {
	if len(m.Indices) == 0 {
		return errors.New("mesh has no indices")
	}
	if len(m.Indices)%3 != 0 {
		return errors.Newf("mesh index count %d is not a triangle list", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return errors.Newf("index %d at position %d is out of range for %d vertices", idx, i, len(m.Vertices))
		}
	}
	return nil
}

type vertexKey struct {
	position int
	material string
}

// LoadOBJ decodes an OBJ mesh, flattening it onto the XY plane. Faces are triangulated as fans
// and take the diffuse color of their material, or white. mtl may be nil.
func LoadOBJ(objFile, mtl io.Reader) (*Mesh, error) {
	if mtl == nil {
		mtl = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(objFile, mtl)
	if err != nil {
		return nil, errors.Wrap(err, "decoding obj")
	}

	m := &Mesh{}
	unique := make(map[vertexKey]uint32)

	addVertex := func(face obj.Face, faceIndex int) error {
		vertInd := face.Vertices[faceIndex]
		if vertInd < 0 || vertInd*3+2 >= len(decoder.Vertices) {
			return errors.Newf("face references missing vertex %d", vertInd)
		}

		key := vertexKey{position: vertInd, material: face.Material}
		index, exists := unique[key]
		if !exists {
			vert := Vertex{
				Position: mgl32.Vec2{decoder.Vertices[vertInd*3], decoder.Vertices[vertInd*3+1]},
				Color:    mgl32.Vec3{1, 1, 1},
			}
			if mat, ok := decoder.Materials[face.Material]; ok && mat != nil {
				vert.Color = mgl32.Vec3{mat.Diffuse.R, mat.Diffuse.G, mat.Diffuse.B}
			}

			index = uint32(len(m.Vertices))
			m.Vertices = append(m.Vertices, vert)
			unique[key] = index
		}

		m.Indices = append(m.Indices, index)
		return nil
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					if err := addVertex(face, corner); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "decoding obj")
	}
	return m, nil
}

// LoadOBJFile reads path and, when present, the .mtl file next to it with the same base name.
func LoadOBJFile(path string) (*Mesh, error) {
	objFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening mesh %s", path)
	}
	defer objFile.Close()

	var mtl io.Reader
	mtlPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
	if mtlFile, err := os.Open(mtlPath); err == nil {
		defer mtlFile.Close()
		mtl = mtlFile
	}

	m, err := LoadOBJ(objFile, mtl)
	if err != nil {
		return nil, errors.Wrapf(err, "loading mesh %s", path)
	}
	return m, nil
}
