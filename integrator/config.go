package integrator

import (
	"errors"
	"fmt"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/element/library/lagrange"
	"github.com/notargets/PAKernel/element/library/quadrature"
	"github.com/notargets/PAKernel/mesh"
	"github.com/notargets/PAKernel/partition"
	"github.com/notargets/PAKernel/tensor"
)

var (
	ErrUnsupportedDimension = errors.New("spatial dimension must be 1, 2 or 3")
	ErrSimplexApply         = errors.New("matrix-free apply needs a tensor-product basis")
	ErrDegenerateGeometry   = errors.New("degenerate element geometry")
	ErrNotSetup             = errors.New("integrator used before Setup")
)

// DefaultMinDet is the smallest accepted Jacobian determinant
const DefaultMinDet = 1.e-14

// Coefficient is a scalar field evaluated at physical points
type Coefficient interface {
	Eval(x []float64) float64
}

type ConstantCoefficient float64

func (c ConstantCoefficient) Eval([]float64) float64 { return float64(c) }

type FunctionCoefficient func(x []float64) float64

func (f FunctionCoefficient) Eval(x []float64) float64 { return f(x) }

// Config is everything an integrator needs, fixed at construction
type Config struct {
	Space       *mesh.FESpace
	Engine      *tensor.Engine    // nil selects the CPU interpreter
	Coefficient Coefficient       // nil means 1
	Layout      *partition.Layout // nil keeps the natural element order
	RuleOrder   int               // a positive value overrides the default rule
	MinDet      float64           // zero selects DefaultMinDet
}

// setup is the immutable description shared by all phases of one
// integrator, derived once from Config
type setup struct {
	dim      int
	order    int
	nDof     int
	nDof1D   int
	nQuad    int
	nQuad1D  int
	nElem    int
	basis    element.BasisKind
	onDevice bool

	fe       element.FiniteElement
	fe1D     element.FiniteElement
	dofMap   []int // tensor index -> native index
	rule     element.IntegrationRule
	rule1D   element.IntegrationRule
	elements []int // batch position -> element

	space  *mesh.FESpace
	engine *tensor.Engine
	coeff  Coefficient
	minDet float64
}

// ruleOrderFunc picks the default quadrature order for an element
type ruleOrderFunc func(dim, order int, basis element.BasisKind) int

func newSetup(cfg Config, defaultOrder ruleOrderFunc) (s setup, err error) {
	if cfg.Space == nil || cfg.Space.FE == nil || cfg.Space.Mesh == nil {
		return s, fmt.Errorf("integrator config needs a finite element space")
	}
	fe := cfg.Space.FE
	s.dim = int(fe.Dimensions())
	if s.dim < 1 || s.dim > 3 {
		return s, fmt.Errorf("%s has dimension %d: %w", fe.Name(), s.dim, ErrUnsupportedDimension)
	}
	s.fe = fe
	s.order = fe.Order()
	s.nDof = fe.Np()
	s.basis = fe.BasisType()
	s.nElem = cfg.Space.NumElements()
	s.space = cfg.Space

	s.engine = cfg.Engine
	if s.engine == nil {
		s.engine = tensor.NewEngine(nil)
	}
	s.onDevice = s.engine.OnDevice()

	s.coeff = cfg.Coefficient
	if s.coeff == nil {
		s.coeff = ConstantCoefficient(1)
	}
	s.minDet = cfg.MinDet
	if s.minDet == 0 {
		s.minDet = DefaultMinDet
	}

	if cfg.Layout != nil {
		if err = cfg.Layout.Validate(); err != nil {
			return s, err
		}
		if cfg.Layout.TotalElements() != s.nElem {
			return s, fmt.Errorf("layout covers %d elements, space has %d",
				cfg.Layout.TotalElements(), s.nElem)
		}
		s.elements = append([]int(nil), cfg.Layout.Order...)
	} else {
		s.elements = make([]int, s.nElem)
		for e := range s.elements {
			s.elements[e] = e
		}
	}

	ruleOrder := cfg.RuleOrder
	if ruleOrder <= 0 {
		ruleOrder = defaultOrder(s.dim, s.order, s.basis)
	}
	s.dofMap = fe.DofMap()
	if s.dofMap == nil {
		s.dofMap = make([]int, s.nDof)
		for i := range s.dofMap {
			s.dofMap[i] = i
		}
	}

	switch s.basis {
	case element.TensorBasis:
		if s.fe1D, err = lagrange.New(element.Line, s.order); err != nil {
			return s, err
		}
		s.nDof1D = s.order + 1
		s.rule1D = quadrature.SegmentRule(ruleOrder)
		s.nQuad1D = len(s.rule1D)
		s.rule = quadrature.TensorRule(s.rule1D, s.dim)
	default:
		s.rule = quadrature.ForGeometry(fe.GeometryType(), ruleOrder)
	}
	s.nQuad = len(s.rule)
	return s, nil
}

// quadDims are the per-element quadrature extents: dim copies of nQuad1D
// for tensor bases, a single flat extent for simplices
func (s *setup) quadDims() []int {
	if s.basis == element.SimplexBasis {
		return []int{s.nQuad}
	}
	q := make([]int, s.dim)
	for d := range q {
		q[d] = s.nQuad1D
	}
	return q
}

// dofDims are the per-element DOF extents in tensor order
func (s *setup) dofDims() []int {
	if s.basis == element.SimplexBasis {
		return []int{s.nDof}
	}
	n := make([]int, s.dim)
	for d := range n {
		n[d] = s.nDof1D
	}
	return n
}
