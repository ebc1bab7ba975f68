package mesh

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSquare(t *testing.T) {
	sq := Square()
	if err := sq.Validate(); err != nil {
		t.Fatal(err)
	}
	if sq.IndexCount() != 6 {
		t.Errorf("IndexCount() = %d, want 6", sq.IndexCount())
	}
	if sq.IndexWidth() != 2 {
		t.Errorf("IndexWidth() = %d, want 2", sq.IndexWidth())
	}

	data, ok := sq.IndexData().([]uint16)
	if !ok {
		t.Fatalf("IndexData() = %T, want []uint16", sq.IndexData())
	}
	want := []uint16{0, 1, 2, 2, 3, 0}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("index %d = %d, want %d", i, data[i], want[i])
		}
	}
}

func TestIndexWidthFor(t *testing.T) {
	tests := []struct {
		vertices int
		want     int
	}{
		{0, 2},
		{4, 2},
		{math.MaxUint16 + 1, 2},
		{math.MaxUint16 + 2, 4},
	}
	for _, tt := range tests {
		if got := indexWidthFor(tt.vertices); got != tt.want {
			t.Errorf("indexWidthFor(%d) = %d, want %d", tt.vertices, got, tt.want)
		}
	}
}

func TestWideIndexData(t *testing.T) {
	m := &Mesh{
		Vertices: make([]Vertex, math.MaxUint16+2),
		Indices:  []uint32{0, 1, math.MaxUint16 + 1},
	}
	if _, ok := m.IndexData().([]uint32); !ok {
		t.Errorf("IndexData() = %T, want []uint32", m.IndexData())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mesh Mesh
	}{
		{"no indices", Mesh{Vertices: make([]Vertex, 3)}},
		{"not a triangle list", Mesh{Vertices: make([]Vertex, 3), Indices: []uint32{0, 1}}},
		{"out of range", Mesh{Vertices: make([]Vertex, 3), Indices: []uint32{0, 1, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.mesh.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

const quadOBJ = `o quad
v -0.5 -0.5 0
v 0.5 -0.5 0
v 0.5 0.5 0
v -0.5 0.5 0
f 1 2 3 4
`

func TestLoadOBJTriangulatesFaces(t *testing.T) {
	m, err := LoadOBJ(strings.NewReader(quadOBJ), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Vertices) != 4 {
		t.Errorf("vertices = %d, want 4", len(m.Vertices))
	}
	if m.IndexCount() != 6 {
		t.Errorf("IndexCount() = %d, want 6", m.IndexCount())
	}
	if got := m.Vertices[2].Position; got[0] != 0.5 || got[1] != 0.5 {
		t.Errorf("vertex 2 position = %v, want [0.5 0.5]", got)
	}
}

func TestLoadOBJFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.obj")
	if err := os.WriteFile(path, []byte(quadOBJ), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := LoadOBJFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.IndexCount() != 6 {
		t.Errorf("IndexCount() = %d, want 6", m.IndexCount())
	}

	if _, err := LoadOBJFile(filepath.Join(t.TempDir(), "missing.obj")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
