package lagrange

import (
	"fmt"

	"github.com/notargets/PAKernel/element"
)

// New returns the H1 Lagrange element of the given order on geom
func New(geom element.ElementGeometry, order int) (element.FiniteElement, error) {
	if order < 0 {
		return nil, fmt.Errorf("negative element order %d", order)
	}
	switch geom {
	case element.Line, element.Rectangle, element.Hex:
		return newTensorElement(geom, order), nil
	case element.Tri, element.Tet:
		return newSimplexElement(geom, order)
	}
	return nil, fmt.Errorf("no lagrange element for geometry %v", geom)
}
