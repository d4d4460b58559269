package lagrange

import (
	"fmt"
	"math"

	"github.com/notargets/PAKernel/element"
	"gonum.org/v1/gonum/mat"
)

// SimplexElement is an H1 Lagrange element on the unit triangle or
// tetrahedron with equispaced lattice nodes. The nodal basis comes from
// inverting the monomial Vandermonde matrix.
type SimplexElement struct {
	geom   element.ElementGeometry
	dim    int
	order  int
	nodes  [][3]float64
	powers [][3]int
	coeff  *mat.Dense // coeff(m, i): monomial m coefficient of basis i
}

func NewTriangle(order int) (*SimplexElement, error) {
	return newSimplexElement(element.Tri, order)
}

func NewTetrahedron(order int) (*SimplexElement, error) {
	return newSimplexElement(element.Tet, order)
}

func newSimplexElement(geom element.ElementGeometry, order int) (*SimplexElement, error) {
	if order < 0 {
		return nil, fmt.Errorf("negative element order %d", order)
	}
	se := &SimplexElement{
		geom:  geom,
		dim:   int(geom.Dimensions()),
		order: order,
	}
	se.powers = simplexPowers(se.dim, order)
	se.nodes = simplexNodes(se.dim, order)

	np := len(se.nodes)
	V := mat.NewDense(np, np, nil)
	for i, x := range se.nodes {
		for m, pw := range se.powers {
			V.Set(i, m, monomial(x, pw))
		}
	}
	// basis i at node j is delta_ij, so coeff = inv(V)
	se.coeff = mat.NewDense(np, np, nil)
	if err := se.coeff.Inverse(V); err != nil {
		return nil, fmt.Errorf("lagrange %s order %d: singular vandermonde: %w",
			geom, order, err)
	}
	return se, nil
}

func (se *SimplexElement) Name() string {
	return fmt.Sprintf("H1_%s_P%d", se.geom, se.order)
}
func (se *SimplexElement) GeometryType() element.ElementGeometry { return se.geom }
func (se *SimplexElement) Dimensions() element.Dimensionality  { return se.geom.Dimensions() }
func (se *SimplexElement) Order() int                           { return se.order }
func (se *SimplexElement) Np() int                              { return len(se.nodes) }
func (se *SimplexElement) BasisType() element.BasisKind         { return element.SimplexBasis }
func (se *SimplexElement) DofMap() []int                        { return nil }

// Node returns the reference coordinates of native node i
func (se *SimplexElement) Node(i int) [3]float64 { return se.nodes[i] }

func (se *SimplexElement) CalcShape(ip element.IntegrationPoint, shape []float64) {
	x := [3]float64{ip.X, ip.Y, ip.Z}
	np := len(se.nodes)
	for i := 0; i < np; i++ {
		shape[i] = 0
	}
	for m, pw := range se.powers {
		v := monomial(x, pw)
		for i := 0; i < np; i++ {
			shape[i] += se.coeff.At(m, i) * v
		}
	}
}

func (se *SimplexElement) CalcDShape(ip element.IntegrationPoint, dshape *mat.Dense) {
	x := [3]float64{ip.X, ip.Y, ip.Z}
	np := len(se.nodes)
	dshape.Zero()
	for m, pw := range se.powers {
		for d := 0; d < se.dim; d++ {
			if pw[d] == 0 {
				continue
			}
			dp := pw
			dp[d]--
			v := float64(pw[d]) * monomial(x, dp)
			for i := 0; i < np; i++ {
				dshape.Set(i, d, dshape.At(i, d)+se.coeff.At(m, i)*v)
			}
		}
	}
}

func monomial(x [3]float64, pw [3]int) float64 {
	v := 1.0
	for d, p := range pw {
		if p > 0 {
			v *= math.Pow(x[d], float64(p))
		}
	}
	return v
}

func simplexPowers(dim, order int) [][3]int {
	var out [][3]int
	switch dim {
	case 2:
		for a := 0; a <= order; a++ {
			for b := 0; a+b <= order; b++ {
				out = append(out, [3]int{a, b, 0})
			}
		}
	case 3:
		for a := 0; a <= order; a++ {
			for b := 0; a+b <= order; b++ {
				for c := 0; a+b+c <= order; c++ {
					out = append(out, [3]int{a, b, c})
				}
			}
		}
	}
	return out
}

// simplexNodes lists the vertices first, in reference order, followed by
// the remaining lattice points
func simplexNodes(dim, order int) [][3]float64 {
	if order == 0 {
		c := 1. / float64(dim+1)
		return [][3]float64{{c, c, float64(dim-2) * c}}
	}
	p := float64(order)
	isVertex := func(pw [3]int) bool {
		nonzero := 0
		for _, v := range pw {
			if v != 0 {
				if v != order {
					return false
				}
				nonzero++
			}
		}
		return nonzero <= 1
	}
	var nodes [][3]float64
	nodes = append(nodes, [3]float64{})
	for d := 0; d < dim; d++ {
		var v [3]float64
		v[d] = 1
		nodes = append(nodes, v)
	}
	for _, pw := range simplexPowers(dim, order) {
		if isVertex(pw) {
			continue
		}
		nodes = append(nodes, [3]float64{
			float64(pw[0]) / p, float64(pw[1]) / p, float64(pw[2]) / p})
	}
	return nodes
}
