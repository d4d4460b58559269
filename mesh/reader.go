package mesh

import (
	"fmt"

	gmesh "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/utils"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/notargets/PAKernel/element"
)

// ReadMeshFile reads a Gmsh (.msh), Gambit neutral (.neu) or SU2 (.su2)
// file and keeps its volume elements
func ReadMeshFile(filename string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", filename, err)
	}
	return FromGocfd(msh)
}

// FromGocfd converts a tetrahedral or hexahedral gocfd mesh. Boundary
// elements are dropped and vertices renumbered to the ones in use.
func FromGocfd(msh *gmesh.Mesh) (*Mesh, error) {
	var tets, hexes []int
	for e, et := range msh.ElementTypes {
		switch et {
		case utils.Tet:
			tets = append(tets, e)
		case utils.Hex:
			hexes = append(hexes, e)
		case utils.Prism, utils.Pyramid:
			return nil, fmt.Errorf("element %d: unsupported %v", e, et)
		}
	}
	var (
		geom  element.ElementGeometry
		elems []int
	)
	switch {
	case len(tets) > 0 && len(hexes) > 0:
		return nil, fmt.Errorf("mixed mesh with %d tets and %d hexes", len(tets), len(hexes))
	case len(tets) > 0:
		geom, elems = element.Tet, tets
	case len(hexes) > 0:
		geom, elems = element.Hex, hexes
	default:
		return nil, fmt.Errorf("mesh has no tetrahedra or hexahedra")
	}

	m := &Mesh{Geom: geom, Dim: 3}
	renumber := make(map[int]int)
	nv := geom.NumVertices()
	for _, e := range elems {
		src := msh.EtoV[e]
		if len(src) != nv {
			return nil, fmt.Errorf("element %d has %d vertices, %v needs %d", e, len(src), geom, nv)
		}
		verts := make([]int, nv)
		for i, v := range src {
			if v < 0 || v >= len(msh.Vertices) {
				return nil, fmt.Errorf("element %d references vertex %d of %d", e, v, len(msh.Vertices))
			}
			id, ok := renumber[v]
			if !ok {
				id = len(m.Vertices)
				renumber[v] = id
				var x [3]float64
				copy(x[:], msh.Vertices[v])
				m.Vertices = append(m.Vertices, x)
			}
			verts[i] = id
		}
		m.EToV = append(m.EToV, verts)
		m.NumElements++
	}
	m.NumVertices = len(m.Vertices)
	m.fixOrientation()
	m.BuildConnectivity()
	return m, nil
}
