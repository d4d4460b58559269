package mesh

import (
	"fmt"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/element/library/lagrange"
	"github.com/notargets/PAKernel/element/library/quadrature"
	"gonum.org/v1/gonum/mat"
)

// Transformation maps the reference cell onto one element through the
// vertex (order one) Lagrange basis
type Transformation struct {
	Element int
	dim     int
	geom    element.ElementGeometry
	verts   [][3]float64
	fe      element.FiniteElement

	shape  []float64
	dshape *mat.Dense
}

func (m *Mesh) Transformation(e int) (*Transformation, error) {
	if e < 0 || e >= m.NumElements {
		return nil, fmt.Errorf("element %d out of range [0,%d)", e, m.NumElements)
	}
	fe, err := lagrange.New(m.Geom, 1)
	if err != nil {
		return nil, err
	}
	verts := make([][3]float64, len(m.EToV[e]))
	for i, v := range m.EToV[e] {
		verts[i] = m.Vertices[v]
	}
	return &Transformation{
		Element: e,
		dim:     m.Dim,
		geom:    m.Geom,
		verts:   verts,
		fe:      fe,
		shape:   make([]float64, fe.Np()),
		dshape:  mat.NewDense(fe.Np(), m.Dim, nil),
	}, nil
}

// Jacobian fills J(m,n) = dx_m/dxi_n at ip
func (tr *Transformation) Jacobian(ip element.IntegrationPoint, J *mat.Dense) {
	tr.fe.CalcDShape(ip, tr.dshape)
	J.Zero()
	for v, x := range tr.verts {
		for m := 0; m < tr.dim; m++ {
			for n := 0; n < tr.dim; n++ {
				J.Set(m, n, J.At(m, n)+x[m]*tr.dshape.At(v, n))
			}
		}
	}
}

// Transform returns the physical coordinates of ip
func (tr *Transformation) Transform(ip element.IntegrationPoint) []float64 {
	tr.fe.CalcShape(ip, tr.shape)
	x := make([]float64, tr.dim)
	for v, xv := range tr.verts {
		for m := 0; m < tr.dim; m++ {
			x[m] += xv[m] * tr.shape[v]
		}
	}
	return x
}

// Measure is the element length, area or volume
func (tr *Transformation) Measure() float64 {
	J := mat.NewDense(tr.dim, tr.dim, nil)
	var vol float64
	for _, ip := range quadrature.ForGeometry(tr.geom, 2*tr.dim) {
		tr.Jacobian(ip, J)
		vol += ip.Weight * mat.Det(J)
	}
	return vol
}
