package mesh

import (
	"testing"

	gmesh "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/utils"
	"github.com/notargets/PAKernel/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMeshFile(t *testing.T) {
	tests := []struct {
		file     string
		geom     element.ElementGeometry
		elements int
		vertices int
		faces    int
		volume   float64
	}{
		// six Kuhn tets of the unit cube, a boundary triangle is dropped
		{"testdata/cube_tets.msh", element.Tet, 6, 8, 18, 1},
		// two stacked unit hexes, a boundary quad is dropped
		{"testdata/two_hex.msh", element.Hex, 2, 12, 11, 2},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			m, err := ReadMeshFile(tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.geom, m.Geom)
			assert.Equal(t, 3, m.Dim)
			assert.Equal(t, tt.elements, m.NumElements)
			assert.Equal(t, tt.vertices, m.NumVertices)
			assert.Equal(t, tt.faces, m.NumFaces)
			assert.False(t, m.IsStructured())
			vol, err := m.Volume()
			require.NoError(t, err)
			assert.InDelta(t, tt.volume, vol, 1.e-13)
			for e := 0; e < m.NumElements; e++ {
				tr, err := m.Transformation(e)
				require.NoError(t, err)
				assert.Greater(t, tr.Measure(), 0.0, "element %d orientation", e)
			}
			_, err = NewFESpace(m, 1)
			require.NoError(t, err)
		})
	}

	_, err := ReadMeshFile("testdata/missing.vtk")
	assert.Error(t, err)
}

func TestFromGocfd(t *testing.T) {
	verts := [][]float64{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 1},
	}
	msh := &gmesh.Mesh{
		Vertices:     verts,
		EtoV:         [][]int{{0, 1, 2}, {0, 1, 2, 3}, {1, 2, 3, 4}},
		ElementTypes: []utils.ElementType{utils.Triangle, utils.Tet, utils.Tet},
	}
	m, err := FromGocfd(msh)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumElements)
	assert.Equal(t, 5, m.NumVertices)
	assert.Contains(t, m.EToE[0], 1)

	msh.ElementTypes[0] = utils.Hex
	_, err = FromGocfd(msh)
	assert.Error(t, err, "mixed tets and hexes")

	_, err = FromGocfd(&gmesh.Mesh{
		Vertices:     verts,
		EtoV:         [][]int{{0, 1, 2}},
		ElementTypes: []utils.ElementType{utils.Triangle},
	})
	assert.Error(t, err, "no volume elements")

	_, err = FromGocfd(&gmesh.Mesh{
		Vertices:     verts,
		EtoV:         [][]int{{0, 1, 2, 9}},
		ElementTypes: []utils.ElementType{utils.Tet},
	})
	assert.Error(t, err, "vertex out of range")
}
