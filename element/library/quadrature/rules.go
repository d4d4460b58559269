package quadrature

import (
	"fmt"

	"github.com/notargets/PAKernel/element"
)

// GaussLegendre returns n Gauss points and weights on [0,1]
func GaussLegendre(n int) (x, w []float64) {
	if n < 1 {
		panic(fmt.Sprintf("GaussLegendre needs at least one point, got %d", n))
	}
	r, wr := JacobiGQ(0, 0, n-1)
	x, w = make([]float64, n), make([]float64, n)
	for i := range r {
		x[i] = 0.5 * (r[i] + 1)
		w[i] = 0.5 * wr[i]
	}
	return
}

// GaussLobatto returns n Gauss-Lobatto points and weights on [0,1],
// endpoints included
func GaussLobatto(n int) (x, w []float64) {
	switch {
	case n < 1:
		panic(fmt.Sprintf("GaussLobatto needs at least one point, got %d", n))
	case n == 1:
		return []float64{0.5}, []float64{1}
	}
	N := n - 1
	r := JacobiGL(0, 0, N)
	x, w = make([]float64, n), make([]float64, n)
	for i := range r {
		p, _ := Legendre(N, r[i])
		x[i] = 0.5 * (r[i] + 1)
		// 2/(N(N+1)P_N^2) on [-1,1], halved for [0,1]
		w[i] = 1. / (float64(N*(N+1)) * p * p)
	}
	return
}

// SegmentRule is the Gauss-Legendre rule on [0,1] exact for polynomials
// of the given order
func SegmentRule(order int) element.IntegrationRule {
	if order < 0 {
		order = 0
	}
	x, w := GaussLegendre(order/2 + 1)
	rule := make(element.IntegrationRule, len(x))
	for i := range x {
		rule[i] = element.IntegrationPoint{X: x[i], Weight: w[i]}
	}
	return rule
}

// TensorRule builds the dim-fold product of a 1D rule. The point index is
// k = (k1*n + k2)*n + k3 with k1 running along x, slowest.
func TensorRule(rule1D element.IntegrationRule, dim int) element.IntegrationRule {
	n := len(rule1D)
	switch dim {
	case 1:
		out := make(element.IntegrationRule, n)
		copy(out, rule1D)
		return out
	case 2:
		out := make(element.IntegrationRule, 0, n*n)
		for _, a := range rule1D {
			for _, b := range rule1D {
				out = append(out, element.IntegrationPoint{
					X: a.X, Y: b.X, Weight: a.Weight * b.Weight})
			}
		}
		return out
	case 3:
		out := make(element.IntegrationRule, 0, n*n*n)
		for _, a := range rule1D {
			for _, b := range rule1D {
				for _, c := range rule1D {
					out = append(out, element.IntegrationPoint{
						X: a.X, Y: b.X, Z: c.X,
						Weight: a.Weight * b.Weight * c.Weight})
				}
			}
		}
		return out
	}
	panic(fmt.Sprintf("tensor rule dimension %d not in [1,3]", dim))
}

// jacobiOnUnit maps the Gauss-Jacobi (alpha,0) rule to [0,1]; the weight
// (1-a)^alpha is absorbed into the returned weights
func jacobiOnUnit(alpha float64, n int) (x, w []float64) {
	r, wr := JacobiGQ(alpha, 0, n-1)
	scale := 1.0
	for i := 0; i < int(alpha)+1; i++ {
		scale *= 0.5
	}
	x, w = make([]float64, n), make([]float64, n)
	for i := range r {
		x[i] = 0.5 * (r[i] + 1)
		w[i] = scale * wr[i]
	}
	return
}

// TriangleRule is a collapsed (Duffy) product rule on the unit triangle
// (0,0),(1,0),(0,1), exact for polynomials of the given order
func TriangleRule(order int) element.IntegrationRule {
	if order < 0 {
		order = 0
	}
	n := order/2 + 1
	a, wa := jacobiOnUnit(1, n)
	b, wb := jacobiOnUnit(0, n)
	rule := make(element.IntegrationRule, 0, n*n)
	for i := range a {
		for j := range b {
			rule = append(rule, element.IntegrationPoint{
				X:      a[i],
				Y:      b[j] * (1 - a[i]),
				Weight: wa[i] * wb[j],
			})
		}
	}
	return rule
}

// TetrahedronRule is the collapsed product rule on the unit tetrahedron
func TetrahedronRule(order int) element.IntegrationRule {
	if order < 0 {
		order = 0
	}
	n := order/2 + 1
	a, wa := jacobiOnUnit(2, n)
	b, wb := jacobiOnUnit(1, n)
	c, wc := jacobiOnUnit(0, n)
	rule := make(element.IntegrationRule, 0, n*n*n)
	for i := range a {
		for j := range b {
			for k := range c {
				rule = append(rule, element.IntegrationPoint{
					X:      a[i],
					Y:      b[j] * (1 - a[i]),
					Z:      c[k] * (1 - a[i]) * (1 - b[j]),
					Weight: wa[i] * wb[j] * wc[k],
				})
			}
		}
	}
	return rule
}

// ForGeometry returns a rule on the reference cell of geom exact for the
// given polynomial order
func ForGeometry(geom element.ElementGeometry, order int) element.IntegrationRule {
	switch geom {
	case element.Line:
		return SegmentRule(order)
	case element.Rectangle:
		return TensorRule(SegmentRule(order), 2)
	case element.Hex:
		return TensorRule(SegmentRule(order), 3)
	case element.Tri:
		return TriangleRule(order)
	case element.Tet:
		return TetrahedronRule(order)
	}
	panic(fmt.Sprintf("no integration rule for geometry %v", geom))
}
