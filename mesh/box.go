package mesh

import (
	"fmt"

	"github.com/notargets/PAKernel/element"
	"gonum.org/v1/gonum/mat"
)

// NewBoxMesh builds a structured mesh of [0,L_0]x..x[0,L_{d-1}] with n[d]
// cells per direction. Tensor geometries get one element per cell,
// triangles two per cell and tetrahedra six (Kuhn split). Vertices and
// cells are numbered lexicographically with x slowest.
func NewBoxMesh(geom element.ElementGeometry, n []int, lengths []float64) (*Mesh, error) {
	dim := int(geom.Dimensions())
	if len(n) != dim || len(lengths) != dim {
		return nil, fmt.Errorf("box mesh for %v needs %d divisions and lengths, got %v and %v",
			geom, dim, n, lengths)
	}
	for d := 0; d < dim; d++ {
		if n[d] < 1 {
			return nil, fmt.Errorf("box mesh needs at least one cell per direction, got %v", n)
		}
		if lengths[d] <= 0 {
			return nil, fmt.Errorf("box mesh lengths must be positive, got %v", lengths)
		}
	}
	var nn [3]int
	for d := 0; d < 3; d++ {
		nn[d] = 1
		if d < dim {
			nn[d] = n[d] + 1
		}
	}
	m := &Mesh{
		Geom:      geom,
		Dim:       dim,
		Divisions: append([]int(nil), n...),
	}
	for i := 0; i < nn[0]; i++ {
		for j := 0; j < nn[1]; j++ {
			for k := 0; k < nn[2]; k++ {
				var x [3]float64
				idx := [3]int{i, j, k}
				for d := 0; d < dim; d++ {
					x[d] = lengths[d] * float64(idx[d]) / float64(n[d])
				}
				m.Vertices = append(m.Vertices, x)
			}
		}
	}
	vid := func(i, j, k int) int { return (i*nn[1]+j)*nn[2] + k }

	var nc [3]int
	for d := 0; d < 3; d++ {
		nc[d] = 1
		if d < dim {
			nc[d] = n[d]
		}
	}
	for i := 0; i < nc[0]; i++ {
		for j := 0; j < nc[1]; j++ {
			for k := 0; k < nc[2]; k++ {
				cell := [3]int{i, j, k}
				switch geom {
				case element.Line:
					m.addElement(cell, []int{vid(i, 0, 0), vid(i+1, 0, 0)})
				case element.Rectangle, element.Tri:
					q := []int{vid(i, j, 0), vid(i+1, j, 0), vid(i+1, j+1, 0), vid(i, j+1, 0)}
					if geom == element.Rectangle {
						m.addElement(cell, q)
					} else {
						m.addElement(cell, []int{q[0], q[1], q[2]})
						m.addElement(cell, []int{q[0], q[2], q[3]})
					}
				case element.Hex:
					m.addElement(cell, []int{
						vid(i, j, k), vid(i+1, j, k), vid(i+1, j+1, k), vid(i, j+1, k),
						vid(i, j, k+1), vid(i+1, j, k+1), vid(i+1, j+1, k+1), vid(i, j+1, k+1),
					})
				case element.Tet:
					for _, perm := range kuhnPermutations {
						c := [3]int{i, j, k}
						tet := []int{vid(c[0], c[1], c[2])}
						for _, axis := range perm {
							c[axis]++
							tet = append(tet, vid(c[0], c[1], c[2]))
						}
						m.addElement(cell, tet)
					}
				default:
					return nil, fmt.Errorf("no box mesh for geometry %v", geom)
				}
			}
		}
	}
	m.NumVertices = len(m.Vertices)
	m.fixOrientation()
	m.BuildConnectivity()
	return m, nil
}

var kuhnPermutations = [][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

func (m *Mesh) addElement(cell [3]int, verts []int) {
	m.EToV = append(m.EToV, verts)
	m.Cells = append(m.Cells, cell)
	m.NumElements++
}

// fixOrientation swaps the last two vertices of negatively oriented
// simplices
func (m *Mesh) fixOrientation() {
	if m.Geom != element.Tri && m.Geom != element.Tet {
		return
	}
	J := mat.NewDense(m.Dim, m.Dim, nil)
	for e, verts := range m.EToV {
		x0 := m.Vertices[verts[0]]
		for c := 1; c <= m.Dim; c++ {
			xc := m.Vertices[verts[c]]
			for r := 0; r < m.Dim; r++ {
				J.Set(r, c-1, xc[r]-x0[r])
			}
		}
		if mat.Det(J) < 0 {
			last := len(verts) - 1
			m.EToV[e][last-1], m.EToV[e][last] = verts[last], verts[last-1]
		}
	}
}

// Distort maps every vertex through x -> A x + b
func (m *Mesh) Distort(A mat.Matrix, b []float64) error {
	r, c := A.Dims()
	if r != m.Dim || c != m.Dim || len(b) != m.Dim {
		return fmt.Errorf("distortion must be %dx%d with a length %d shift", m.Dim, m.Dim, m.Dim)
	}
	for v := range m.Vertices {
		var y [3]float64
		for i := 0; i < m.Dim; i++ {
			y[i] = b[i]
			for j := 0; j < m.Dim; j++ {
				y[i] += A.At(i, j) * m.Vertices[v][j]
			}
		}
		m.Vertices[v] = y
	}
	return nil
}
