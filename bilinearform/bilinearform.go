package bilinearform

import (
	"errors"
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/notargets/PAKernel/integrator"
	"github.com/notargets/PAKernel/mesh"
)

var ErrMultipleIntegrators = errors.New("element matrices need exactly one domain integrator")

// BilinearForm sums domain integrators over one finite element space
type BilinearForm struct {
	space       *mesh.FESpace
	integrators []integrator.Integrator
	localX      []float64
	localY      []float64
}

func New(space *mesh.FESpace) *BilinearForm {
	return &BilinearForm{space: space}
}

func (bf *BilinearForm) Space() *mesh.FESpace { return bf.space }

func (bf *BilinearForm) Integrators() []integrator.Integrator { return bf.integrators }

func (bf *BilinearForm) AddDomainIntegrator(in integrator.Integrator) {
	bf.integrators = append(bf.integrators, in)
}

// Assemble runs Setup and partial assembly on every integrator
func (bf *BilinearForm) Assemble() error {
	if len(bf.integrators) == 0 {
		return fmt.Errorf("bilinear form has no integrators")
	}
	for _, in := range bf.integrators {
		if in.State() == integrator.Uninitialized {
			if err := in.Setup(); err != nil {
				return err
			}
		}
		if err := in.BatchedPartialAssemble(); err != nil {
			return err
		}
	}
	return nil
}

// AssembleElementMatrices fills out from the single registered integrator
func (bf *BilinearForm) AssembleElementMatrices(out *integrator.ElementMatrices) error {
	if len(bf.integrators) != 1 {
		return fmt.Errorf("%d integrators: %w", len(bf.integrators), ErrMultipleIntegrators)
	}
	if err := bf.Assemble(); err != nil {
		return err
	}
	return bf.integrators[0].BatchedAssembleElementMatrices(out)
}

// MultAdd is y += A x on element-local vectors
func (bf *BilinearForm) MultAdd(x, y []float64) error {
	for _, in := range bf.integrators {
		if err := in.MultAdd(x, y); err != nil {
			return err
		}
	}
	return nil
}

// Mult is y = A x on global vectors, through gather and scatter
func (bf *BilinearForm) Mult(x, y []float64) error {
	n := bf.space.ElementVectorSize()
	if len(bf.localX) != n {
		bf.localX, bf.localY = make([]float64, n), make([]float64, n)
	}
	if err := bf.space.Gather(x, bf.localX); err != nil {
		return err
	}
	for i := range bf.localY {
		bf.localY[i] = 0
	}
	if err := bf.MultAdd(bf.localX, bf.localY); err != nil {
		return err
	}
	for i := range y {
		y[i] = 0
	}
	return bf.space.ScatterAdd(bf.localY, y)
}

// SparseMatrix assembles the global matrix from every integrator's
// element matrices
func (bf *BilinearForm) SparseMatrix() (*sparse.CSR, error) {
	if err := bf.Assemble(); err != nil {
		return nil, err
	}
	fs := bf.space
	nd := fs.FE.Np()
	dok := sparse.NewDOK(fs.NDofs, fs.NDofs)
	for _, in := range bf.integrators {
		em := integrator.NewElementMatrices(in.NumDofs(), in.NumElements())
		if err := in.BatchedAssembleElementMatrices(em); err != nil {
			return nil, err
		}
		for e := 0; e < em.NElem; e++ {
			dofs := fs.ElementDofs(e)
			for i := 0; i < nd; i++ {
				for j := 0; j < nd; j++ {
					gi, gj := dofs[i], dofs[j]
					dok.Set(gi, gj, dok.At(gi, gj)+em.At(i, j, e))
				}
			}
		}
	}
	return dok.ToCSR(), nil
}

// MulVec computes y = A x for an assembled CSR matrix
func MulVec(A *sparse.CSR, x, y []float64) error {
	r, c := A.Dims()
	if len(x) != c || len(y) != r {
		return fmt.Errorf("MulVec: %dx%d matrix with x of %d and y of %d", r, c, len(x), len(y))
	}
	for i := range y {
		y[i] = 0
	}
	A.MulVecTo(y, false, x)
	return nil
}

func (bf *BilinearForm) Free() {
	for _, in := range bf.integrators {
		in.Free()
	}
}
