package element

import "gonum.org/v1/gonum/mat"

type Dimensionality uint8

const (
	D1 Dimensionality = iota + 1
	D2
	D3
)

type ElementGeometry uint8

const (
	Line ElementGeometry = iota
	Tri
	Rectangle
	Tet
	Hex
)

func (g ElementGeometry) String() string {
	switch g {
	case Line:
		return "Line"
	case Tri:
		return "Tri"
	case Rectangle:
		return "Rectangle"
	case Tet:
		return "Tet"
	case Hex:
		return "Hex"
	}
	return "Unknown"
}

// Dimensions of the reference cell
func (g ElementGeometry) Dimensions() Dimensionality {
	switch g {
	case Line:
		return D1
	case Tri, Rectangle:
		return D2
	}
	return D3
}

// NumVertices of the reference cell
func (g ElementGeometry) NumVertices() int {
	switch g {
	case Line:
		return 2
	case Tri:
		return 3
	case Rectangle, Tet:
		return 4
	}
	return 8
}

// IsTensor reports whether the reference cell is a tensor product of segments
func (g ElementGeometry) IsTensor() bool {
	return g == Line || g == Rectangle || g == Hex
}

// BasisKind distinguishes sum-factorizable tensor-product bases from
// simplex bases that have to be treated with full (non-factored) tables.
type BasisKind uint8

const (
	TensorBasis BasisKind = iota
	SimplexBasis
)

func (b BasisKind) String() string {
	if b == TensorBasis {
		return "tensor"
	}
	return "simplex"
}

// IntegrationPoint is a reference-space point with its quadrature weight.
// Unused coordinates are zero.
type IntegrationPoint struct {
	X, Y, Z float64
	Weight  float64
}

// Coord returns coordinate d of the point
func (ip IntegrationPoint) Coord(d int) float64 {
	switch d {
	case 0:
		return ip.X
	case 1:
		return ip.Y
	}
	return ip.Z
}

type IntegrationRule []IntegrationPoint

func (r IntegrationRule) NumPoints() int { return len(r) }

// Weights returns the rule weights in point order
func (r IntegrationRule) Weights() []float64 {
	w := make([]float64, len(r))
	for i, ip := range r {
		w[i] = ip.Weight
	}
	return w
}

// FiniteElement is the contract the partial assembly kernels need from a
// reference element: shape values and reference gradients at a point.
type FiniteElement interface {
	Name() string
	GeometryType() ElementGeometry
	Dimensions() Dimensionality
	Order() int
	Np() int
	BasisType() BasisKind

	// DofMap maps tensor (lexicographic) indices to native indices.
	// A nil map means the two orderings coincide.
	DofMap() []int

	// CalcShape fills shape[i] with basis function i (native order) at ip
	CalcShape(ip IntegrationPoint, shape []float64)
	// CalcDShape fills dshape(i, d) with the derivative of basis i along
	// reference direction d at ip
	CalcDShape(ip IntegrationPoint, dshape *mat.Dense)
}
