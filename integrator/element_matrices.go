package integrator

import (
	"gonum.org/v1/gonum/mat"
)

// ElementMatrices is a caller-owned stack of dense element matrices,
// element e occupying Data[e*NDof*NDof:(e+1)*NDof*NDof] in row-major order
type ElementMatrices struct {
	NDof  int
	NElem int
	Data  []float64
}

func NewElementMatrices(nDof, nElem int) *ElementMatrices {
	return &ElementMatrices{
		NDof:  nDof,
		NElem: nElem,
		Data:  make([]float64, nDof*nDof*nElem),
	}
}

// At returns entry (i,j) of element e's matrix
func (em *ElementMatrices) At(i, j, e int) float64 {
	return em.Data[(e*em.NDof+i)*em.NDof+j]
}

// Matrix is a view of element e's matrix
func (em *ElementMatrices) Matrix(e int) *mat.Dense {
	n2 := em.NDof * em.NDof
	return mat.NewDense(em.NDof, em.NDof, em.Data[e*n2:(e+1)*n2])
}
