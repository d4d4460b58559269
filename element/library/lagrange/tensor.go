package lagrange

import (
	"fmt"
	"sort"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/element/library/quadrature"
	"gonum.org/v1/gonum/mat"
)

// TensorElement is an H1 Lagrange element on [0,1]^d with Gauss-Lobatto
// nodes. Native numbering lists vertex DOFs first, then edge, face and
// interior DOFs; tensor numbering is lexicographic with x slowest.
type TensorElement struct {
	geom   element.ElementGeometry
	dim    int
	order  int
	nodes  []float64 // 1D nodes in ascending order
	dofMap []int     // tensor index -> native index
}

// NewSegment, NewQuadrilateral and NewHexahedron build the tensor elements
func NewSegment(order int) *TensorElement       { return newTensorElement(element.Line, order) }
func NewQuadrilateral(order int) *TensorElement { return newTensorElement(element.Rectangle, order) }
func NewHexahedron(order int) *TensorElement    { return newTensorElement(element.Hex, order) }

func newTensorElement(geom element.ElementGeometry, order int) *TensorElement {
	if order < 0 {
		panic(fmt.Sprintf("negative element order %d", order))
	}
	te := &TensorElement{
		geom:  geom,
		dim:   int(geom.Dimensions()),
		order: order,
	}
	te.nodes, _ = quadrature.GaussLobatto(order + 1)
	te.dofMap = tensorDofMap(te.dim, order)
	return te
}

func (te *TensorElement) Name() string {
	return fmt.Sprintf("H1_%s_P%d", te.geom, te.order)
}
func (te *TensorElement) GeometryType() element.ElementGeometry { return te.geom }
func (te *TensorElement) Dimensions() element.Dimensionality  { return te.geom.Dimensions() }
func (te *TensorElement) Order() int                           { return te.order }
func (te *TensorElement) BasisType() element.BasisKind         { return element.TensorBasis }
func (te *TensorElement) DofMap() []int                        { return te.dofMap }
func (te *TensorElement) Nodes1D() []float64                   { return te.nodes }

func (te *TensorElement) Np() int {
	n := 1
	for d := 0; d < te.dim; d++ {
		n *= te.order + 1
	}
	return n
}

// TensorIndex splits a tensor index into per-direction 1D indices
func (te *TensorElement) TensorIndex(t int) []int {
	return splitIndex(t, te.dim, te.order+1)
}

func (te *TensorElement) CalcShape(ip element.IntegrationPoint, shape []float64) {
	vals := te.directional(ip)
	np := te.Np()
	for t := 0; t < np; t++ {
		idx := splitIndex(t, te.dim, te.order+1)
		v := 1.0
		for d, i := range idx {
			v *= vals[d][0][i]
		}
		shape[te.dofMap[t]] = v
	}
}

func (te *TensorElement) CalcDShape(ip element.IntegrationPoint, dshape *mat.Dense) {
	vals := te.directional(ip)
	np := te.Np()
	for t := 0; t < np; t++ {
		idx := splitIndex(t, te.dim, te.order+1)
		for dd := 0; dd < te.dim; dd++ {
			v := 1.0
			for d, i := range idx {
				if d == dd {
					v *= vals[d][1][i]
				} else {
					v *= vals[d][0][i]
				}
			}
			dshape.Set(te.dofMap[t], dd, v)
		}
	}
}

// directional returns, per direction, the 1D values [0] and derivatives [1]
func (te *TensorElement) directional(ip element.IntegrationPoint) [][2][]float64 {
	out := make([][2][]float64, te.dim)
	for d := 0; d < te.dim; d++ {
		out[d][0], out[d][1] = Basis1D(te.nodes, ip.Coord(d))
	}
	return out
}

// Basis1D evaluates the Lagrange polynomials through nodes, and their
// derivatives, at x
func Basis1D(nodes []float64, x float64) (vals, ders []float64) {
	n := len(nodes)
	vals, ders = make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		v := 1.0
		for j := 0; j < n; j++ {
			if j != i {
				v *= (x - nodes[j]) / (nodes[i] - nodes[j])
			}
		}
		vals[i] = v
		var dv float64
		for m := 0; m < n; m++ {
			if m == i {
				continue
			}
			p := 1. / (nodes[i] - nodes[m])
			for j := 0; j < n; j++ {
				if j != i && j != m {
					p *= (x - nodes[j]) / (nodes[i] - nodes[j])
				}
			}
			dv += p
		}
		ders[i] = dv
	}
	return
}

func splitIndex(t, dim, n int) []int {
	idx := make([]int, dim)
	for d := dim - 1; d >= 0; d-- {
		idx[d] = t % n
		t /= n
	}
	return idx
}

// Vertex patterns in native vertex order: 0 means the low end of a
// direction, 1 the high end. Counter-clockwise bottom, then top.
var vertexPatterns = map[int][][]int{
	1: {{0}, {1}},
	2: {{0, 0}, {1, 0}, {1, 1}, {0, 1}},
	3: {{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
}

// tensorDofMap orders tensor nodes by entity: vertices, edges, faces,
// interior. Within an entity class nodes keep their lexicographic order.
func tensorDofMap(dim, order int) []int {
	n := order + 1
	np := 1
	for d := 0; d < dim; d++ {
		np *= n
	}
	if order == 0 {
		dm := make([]int, np)
		for i := range dm {
			dm[i] = i
		}
		return dm
	}
	type key struct {
		entityDim int
		entity    int
		t         int
	}
	vertexRank := make(map[int]int)
	for r, pat := range vertexPatterns[dim] {
		code := 0
		for _, p := range pat {
			code = code*2 + p
		}
		vertexRank[code] = r
	}
	keys := make([]key, np)
	for t := 0; t < np; t++ {
		idx := splitIndex(t, dim, n)
		var k key
		k.t = t
		code, vcode := 0, 0
		for _, i := range idx {
			class := 2
			switch i {
			case 0:
				class = 0
			case order:
				class = 1
			default:
				k.entityDim++
			}
			code = code*3 + class
			vcode = vcode*2 + class%2
		}
		if k.entityDim == 0 {
			k.entity = vertexRank[vcode]
		} else {
			k.entity = code
		}
		keys[t] = k
	}
	sorted := make([]key, np)
	copy(sorted, keys)
	sort.Slice(sorted, func(a, b int) bool {
		ka, kb := sorted[a], sorted[b]
		if ka.entityDim != kb.entityDim {
			return ka.entityDim < kb.entityDim
		}
		if ka.entity != kb.entity {
			return ka.entity < kb.entity
		}
		return ka.t < kb.t
	})
	dm := make([]int, np)
	for native, k := range sorted {
		dm[k.t] = native
	}
	return dm
}
