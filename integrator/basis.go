package integrator

import (
	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/tensor"
	"gonum.org/v1/gonum/mat"
)

// BasisTable holds the 1D basis values B(k,i) and derivatives G(k,i) at
// the 1D quadrature points, in tensor DOF order, with the 1D weights
type BasisTable struct {
	B, G *tensor.Tensor
	W1D  []float64
}

// NewBasisTable evaluates fe1D at every point of rule1D. Native order
// (v0, v1, interior...) is rewritten to tensor order (v0, interior..., v1)
// through the element's DOF map.
func NewBasisTable(fe1D element.FiniteElement, rule1D element.IntegrationRule) *BasisTable {
	nD, nQ := fe1D.Np(), len(rule1D)
	bt := &BasisTable{
		B:   tensor.New(nQ, nD),
		G:   tensor.New(nQ, nD),
		W1D: rule1D.Weights(),
	}
	dofMap := fe1D.DofMap()
	shape := make([]float64, nD)
	dshape := mat.NewDense(nD, 1, nil)
	for k, ip := range rule1D {
		fe1D.CalcShape(ip, shape)
		fe1D.CalcDShape(ip, dshape)
		for t := 0; t < nD; t++ {
			native := t
			if dofMap != nil {
				native = dofMap[t]
			}
			bt.B.Set(shape[native], k, t)
			bt.G.Set(dshape.At(native, 0), k, t)
		}
	}
	return bt
}

// TensorWeights is the rank-dim product of the 1D weights
func (bt *BasisTable) TensorWeights(dim int) *tensor.Tensor {
	n := len(bt.W1D)
	dims := make([]int, dim)
	for d := range dims {
		dims[d] = n
	}
	W := tensor.New(dims...)
	data := W.Data()
	for k := range data {
		w, r := 1.0, k
		for d := 0; d < dim; d++ {
			w *= bt.W1D[r%n]
			r /= n
		}
		data[k] = w
	}
	return W
}

// SimplexTable holds full basis values B(k,i) and reference gradients
// G(k,i,d) for bases that do not factor
type SimplexTable struct {
	B, G *tensor.Tensor
	W    *tensor.Tensor
}

func NewSimplexTable(fe element.FiniteElement, rule element.IntegrationRule) *SimplexTable {
	nD, nQ, dim := fe.Np(), len(rule), int(fe.Dimensions())
	st := &SimplexTable{
		B: tensor.New(nQ, nD),
		G: tensor.New(nQ, nD, dim),
		W: tensor.FromSlice(rule.Weights(), nQ),
	}
	shape := make([]float64, nD)
	dshape := mat.NewDense(nD, dim, nil)
	for k, ip := range rule {
		fe.CalcShape(ip, shape)
		fe.CalcDShape(ip, dshape)
		for i := 0; i < nD; i++ {
			st.B.Set(shape[i], k, i)
			for d := 0; d < dim; d++ {
				st.G.Set(dshape.At(i, d), k, i, d)
			}
		}
	}
	return st
}

// BuildBtilde forms, per direction d, Btil_d(m,n,k,i,j): the product of
// the 1D factors of dphi_i/dxi_m and dphi_j/dxi_n along direction d
func BuildBtilde(B, G *tensor.Tensor, dim int) []*tensor.Tensor {
	nQ, nD := B.Dim(0), B.Dim(1)
	out := make([]*tensor.Tensor, dim)
	for d := 0; d < dim; d++ {
		bt := tensor.New(dim, dim, nQ, nD, nD)
		for m := 0; m < dim; m++ {
			left := B
			if m == d {
				left = G
			}
			for n := 0; n < dim; n++ {
				right := B
				if n == d {
					right = G
				}
				for k := 0; k < nQ; k++ {
					for i := 0; i < nD; i++ {
						for j := 0; j < nD; j++ {
							bt.Set(left.At(k, i)*right.At(k, j), m, n, k, i, j)
						}
					}
				}
			}
		}
		out[d] = bt
	}
	return out
}
