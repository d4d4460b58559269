package mesh

import (
	"fmt"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/element/library/lagrange"
)

// FESpace attaches one finite element to every mesh element and numbers
// the global DOFs
type FESpace struct {
	Mesh       *Mesh
	FE         element.FiniteElement
	NDofs      int
	Continuous bool
	elemDofs   [][]int // element -> native local DOF -> global DOF
}

// NewFESpace builds an H1 space of the given order. Structured tensor
// meshes and order one simplex meshes get continuous numbering, every
// other combination is numbered element by element.
func NewFESpace(m *Mesh, order int) (*FESpace, error) {
	fe, err := lagrange.New(m.Geom, order)
	if err != nil {
		return nil, err
	}
	fs := &FESpace{Mesh: m, FE: fe}
	switch {
	case m.Geom.IsTensor() && m.IsStructured() && order > 0:
		fs.numberLattice(fe.(*lagrange.TensorElement))
	case !m.Geom.IsTensor() && order == 1:
		fs.numberVertices()
	default:
		fs.numberDiscontinuous()
	}
	return fs, nil
}

func (fs *FESpace) numberLattice(te *lagrange.TensorElement) {
	m, p := fs.Mesh, te.Order()
	var nn [3]int
	for d := 0; d < 3; d++ {
		nn[d] = 1
		if d < m.Dim {
			nn[d] = m.Divisions[d]*p + 1
		}
	}
	fs.NDofs = nn[0] * nn[1] * nn[2]
	fs.Continuous = true

	dofMap := te.DofMap()
	fs.elemDofs = make([][]int, m.NumElements)
	for e := 0; e < m.NumElements; e++ {
		dofs := make([]int, te.Np())
		for t, native := range dofMap {
			var g [3]int
			for d, i := range te.TensorIndex(t) {
				g[d] = m.Cells[e][d]*p + i
			}
			dofs[native] = (g[0]*nn[1]+g[1])*nn[2] + g[2]
		}
		fs.elemDofs[e] = dofs
	}
}

func (fs *FESpace) numberVertices() {
	fs.NDofs = fs.Mesh.NumVertices
	fs.Continuous = true
	fs.elemDofs = make([][]int, fs.Mesh.NumElements)
	for e, verts := range fs.Mesh.EToV {
		fs.elemDofs[e] = append([]int(nil), verts...)
	}
}

func (fs *FESpace) numberDiscontinuous() {
	np := fs.FE.Np()
	fs.NDofs = fs.Mesh.NumElements * np
	fs.elemDofs = make([][]int, fs.Mesh.NumElements)
	for e := range fs.elemDofs {
		dofs := make([]int, np)
		for i := range dofs {
			dofs[i] = e*np + i
		}
		fs.elemDofs[e] = dofs
	}
}

func (fs *FESpace) NumElements() int { return fs.Mesh.NumElements }
func (fs *FESpace) Dim() int         { return fs.Mesh.Dim }

// ElementDofs returns the global DOF of every native local DOF of e
func (fs *FESpace) ElementDofs(e int) []int { return fs.elemDofs[e] }

// ElementVectorSize is the length of an element-local vector
func (fs *FESpace) ElementVectorSize() int { return fs.Mesh.NumElements * fs.FE.Np() }

// Gather copies global values into an element-local vector laid out as
// local[e*Np + native]
func (fs *FESpace) Gather(global, local []float64) error {
	np := fs.FE.Np()
	if len(global) != fs.NDofs || len(local) != fs.ElementVectorSize() {
		return fmt.Errorf("gather: global %d (want %d), local %d (want %d)",
			len(global), fs.NDofs, len(local), fs.ElementVectorSize())
	}
	for e, dofs := range fs.elemDofs {
		for i, g := range dofs {
			local[e*np+i] = global[g]
		}
	}
	return nil
}

// ScatterAdd sums an element-local vector into global values
func (fs *FESpace) ScatterAdd(local, global []float64) error {
	np := fs.FE.Np()
	if len(global) != fs.NDofs || len(local) != fs.ElementVectorSize() {
		return fmt.Errorf("scatter: global %d (want %d), local %d (want %d)",
			len(global), fs.NDofs, len(local), fs.ElementVectorSize())
	}
	for e, dofs := range fs.elemDofs {
		for i, g := range dofs {
			global[g] += local[e*np+i]
		}
	}
	return nil
}
