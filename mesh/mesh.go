package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/PAKernel/element"
)

// Face represents a face of an element
type Face struct {
	Vertices []int // Sorted vertex indices
	Element  int   // Parent element
	LocalID  int   // Local face ID within element
}

// Mesh is a single-geometry mesh with vertex coordinates, element to
// vertex lists and face connectivity
type Mesh struct {
	Geom     element.ElementGeometry
	Dim      int
	Vertices [][3]float64
	EToV     [][]int

	// Connectivity (built by BuildConnectivity)
	EToE    [][]int // Element to element, -1 on the boundary
	EToF    [][]int
	Faces   []Face
	FaceMap map[string]int

	NumElements int
	NumVertices int
	NumFaces    int

	// Box meshes remember the lattice: Divisions per direction and the
	// cell each element was cut from
	Divisions []int
	Cells     [][3]int
}

// BuildConnectivity matches element faces by their sorted vertex lists
func (m *Mesh) BuildConnectivity() {
	m.EToE = make([][]int, m.NumElements)
	m.EToF = make([][]int, m.NumElements)
	m.Faces = m.Faces[:0]
	m.FaceMap = make(map[string]int)

	for elemID := 0; elemID < m.NumElements; elemID++ {
		faceVertices := ElementFaces(m.Geom, m.EToV[elemID])
		m.EToE[elemID] = make([]int, len(faceVertices))
		m.EToF[elemID] = make([]int, len(faceVertices))
		for i := range m.EToE[elemID] {
			m.EToE[elemID][i] = -1
			m.EToF[elemID][i] = -1
		}
		for localFaceID, faceVerts := range faceVertices {
			sorted := append([]int(nil), faceVerts...)
			sort.Ints(sorted)
			key := fmt.Sprintf("%v", sorted)

			if faceID, exists := m.FaceMap[key]; exists {
				face := &m.Faces[faceID]
				m.EToE[elemID][localFaceID] = face.Element
				m.EToE[face.Element][face.LocalID] = elemID
				m.EToF[elemID][localFaceID] = faceID
			} else {
				faceID := len(m.Faces)
				m.Faces = append(m.Faces, Face{
					Vertices: sorted,
					Element:  elemID,
					LocalID:  localFaceID,
				})
				m.FaceMap[key] = faceID
				m.EToF[elemID][localFaceID] = faceID
			}
		}
	}
	m.NumFaces = len(m.Faces)
}

// ElementFaces returns the face vertex lists of an element
func ElementFaces(geom element.ElementGeometry, v []int) [][]int {
	switch geom {
	case element.Line:
		return [][]int{{v[0]}, {v[1]}}
	case element.Tri:
		return [][]int{{v[0], v[1]}, {v[1], v[2]}, {v[2], v[0]}}
	case element.Rectangle:
		return [][]int{{v[0], v[1]}, {v[1], v[2]}, {v[2], v[3]}, {v[3], v[0]}}
	case element.Tet:
		return [][]int{
			{v[0], v[2], v[1]},
			{v[0], v[1], v[3]},
			{v[1], v[2], v[3]},
			{v[0], v[3], v[2]},
		}
	case element.Hex:
		return [][]int{
			{v[0], v[3], v[2], v[1]}, // bottom
			{v[4], v[5], v[6], v[7]}, // top
			{v[0], v[1], v[5], v[4]},
			{v[1], v[2], v[6], v[5]},
			{v[2], v[3], v[7], v[6]},
			{v[3], v[0], v[4], v[7]},
		}
	}
	return nil
}

// IsStructured reports whether elements carry lattice cell positions
func (m *Mesh) IsStructured() bool { return m.Divisions != nil }

// Volume is the sum of element measures, from the vertex transformation
func (m *Mesh) Volume() (float64, error) {
	var vol float64
	for e := 0; e < m.NumElements; e++ {
		tr, err := m.Transformation(e)
		if err != nil {
			return 0, err
		}
		vol += tr.Measure()
	}
	return vol, nil
}
