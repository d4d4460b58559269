package integrator

import (
	"fmt"
	"strings"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/tensor"
)

// State tracks how far an integrator has been built
type State int

const (
	Uninitialized State = iota
	BasisBuilt
	CoefficientBuilt
	ElementMatricesBuilt
)

func (st State) String() string {
	return [...]string{"Uninitialized", "BasisBuilt", "CoefficientBuilt", "ElementMatricesBuilt"}[st]
}

// Integrator is a batched partial assembly bilinear form integrator
type Integrator interface {
	Name() string
	State() State
	// Setup builds basis tables and compiles every contraction
	Setup() error
	// BatchedPartialAssemble builds the quadrature data D; repeat calls
	// are no-ops
	BatchedPartialAssemble() error
	Assemble() error
	// BatchedAssembleElementMatrices fills out with one dense matrix per
	// element, rows and columns in native DOF order
	BatchedAssembleElementMatrices(out *ElementMatrices) error
	// MultAdd computes y += A x on element-local vectors laid out as
	// v[e*NumDofs() + native]
	MultAdd(x, y []float64) error
	Apply(x, y []float64) error
	NumDofs() int
	NumElements() int
	Free()
}

// program lists the contractions of one integrator for one basis kind and
// dimension. Tensor names in the expressions are workspace keys.
type program struct {
	assemble string
	elmat    string
	apply    []string
	// workspace tensors allocated at Setup, with extents spelled as
	// e=elements d=1D dofs q=1D points D=dimension n=dofs k=points
	temps map[string]string
}

func (p program) expressions() []string {
	exprs := []string{p.assemble, p.elmat}
	return append(exprs, p.apply...)
}

// paKernel carries the machinery shared by the mass and diffusion
// integrators; they differ in their program tables and geometry needs
type paKernel struct {
	name         string
	cfg          Config
	table        map[element.BasisKind]map[int]program
	needInverse  bool
	defaultOrder ruleOrderFunc
	elmatName    string
	// prepareElmat builds tensors only element matrices need
	prepareElmat func() error

	s        setup
	state    State
	prog     program
	ws       map[string]*tensor.Tensor
	compiled map[string]*tensor.Contraction
	geo      *GeometryFactors
}

func (pk *paKernel) Name() string  { return pk.name }
func (pk *paKernel) State() State  { return pk.state }
func (pk *paKernel) NumDofs() int  { return pk.s.nDof }
func (pk *paKernel) NumElements() int {
	return pk.s.nElem
}

// Workspace returns a named tensor (B, G, W, D, ...) after Setup
func (pk *paKernel) Workspace(name string) *tensor.Tensor { return pk.ws[name] }

func (pk *paKernel) extents(shape string) []int {
	s := &pk.s
	var dims []int
	for _, f := range strings.Fields(shape) {
		switch f {
		case "e":
			dims = append(dims, s.nElem)
		case "d":
			dims = append(dims, s.nDof1D)
		case "q":
			dims = append(dims, s.nQuad1D)
		case "D":
			dims = append(dims, s.dim)
		case "n":
			dims = append(dims, s.nDof)
		case "k":
			dims = append(dims, s.nQuad)
		default:
			panic(fmt.Sprintf("unknown extent %q in %q", f, shape))
		}
	}
	return dims
}

func (pk *paKernel) Setup() error {
	if pk.state != Uninitialized {
		pk.Free()
	}
	s, err := newSetup(pk.cfg, pk.defaultOrder)
	if err != nil {
		return fmt.Errorf("%s setup: %w", pk.name, err)
	}
	prog, ok := pk.table[s.basis][s.dim]
	if !ok {
		return fmt.Errorf("%s setup: %v basis in %dD: %w",
			pk.name, s.basis, s.dim, ErrUnsupportedDimension)
	}
	pk.s, pk.prog = s, prog
	pk.ws = make(map[string]*tensor.Tensor)
	pk.compiled = make(map[string]*tensor.Contraction)

	var constants []string
	switch s.basis {
	case element.TensorBasis:
		bt := NewBasisTable(s.fe1D, s.rule1D)
		pk.ws["B"], pk.ws["G"], pk.ws["W"] = bt.B, bt.G, bt.TensorWeights(s.dim)
	default:
		st := NewSimplexTable(s.fe, s.rule)
		pk.ws["B"], pk.ws["G"], pk.ws["W"] = st.B, st.G, st.W
	}
	constants = append(constants, "B", "G", "W")

	var temps []string
	for name, shape := range prog.temps {
		pk.ws[name] = tensor.New(pk.extents(shape)...)
		temps = append(temps, name)
	}
	for _, name := range []string{"U", "Z"} {
		if t, ok := pk.ws[name]; ok {
			for d := 0; d < s.dim; d++ {
				pk.ws[fmt.Sprintf("%s%d", name, d+1)] = t.Slice(d)
			}
		}
	}

	for _, expr := range prog.expressions() {
		if expr == "" {
			continue
		}
		if pk.compiled[expr], err = s.engine.Compile(expr); err != nil {
			return fmt.Errorf("%s setup: %w", pk.name, err)
		}
	}

	if s.onDevice {
		alloc := s.engine.Allocator()
		for _, name := range constants {
			if err = pk.ws[name].MapToDevice(alloc); err != nil {
				return err
			}
		}
		for _, name := range temps {
			if err = pk.ws[name].SwitchToDevice(alloc); err != nil {
				return err
			}
		}
	}
	pk.state = BasisBuilt
	return nil
}

// run executes a compiled expression on the workspace tensors it names
func (pk *paKernel) run(expr string) error {
	c, ok := pk.compiled[expr]
	if !ok {
		return fmt.Errorf("%s: %q was not compiled at setup", pk.name, expr)
	}
	out := pk.ws[c.Out.Name]
	inputs := make([]*tensor.Tensor, len(c.Inputs))
	for i, op := range c.Inputs {
		if inputs[i] = pk.ws[op.Name]; inputs[i] == nil {
			return fmt.Errorf("%s: no tensor %s for %q", pk.name, op.Name, expr)
		}
	}
	return pk.s.engine.Run(c, out, inputs...)
}

func (pk *paKernel) BatchedPartialAssemble() error {
	switch {
	case pk.state == Uninitialized:
		return fmt.Errorf("%s: %w", pk.name, ErrNotSetup)
	case pk.state >= CoefficientBuilt:
		return nil
	}
	geo, err := ComputeGeometry(&pk.s, pk.needInverse)
	if err != nil {
		return fmt.Errorf("%s: %w", pk.name, err)
	}
	pk.geo = geo
	pk.ws["Jdet"], pk.ws["C"] = geo.Jdet, geo.C
	if pk.needInverse {
		pk.ws["Jinv"] = geo.Jinv
	}
	if err = pk.run(pk.prog.assemble); err != nil {
		return fmt.Errorf("%s partial assembly: %w", pk.name, err)
	}
	pk.state = CoefficientBuilt
	return nil
}

func (pk *paKernel) Assemble() error { return pk.BatchedPartialAssemble() }

func (pk *paKernel) BatchedAssembleElementMatrices(out *ElementMatrices) error {
	s := &pk.s
	if pk.state == Uninitialized {
		return fmt.Errorf("%s: %w", pk.name, ErrNotSetup)
	}
	if out == nil || out.NDof != s.nDof || out.NElem != s.nElem {
		return fmt.Errorf("%s: element matrices must be %d x %d x %d",
			pk.name, s.nDof, s.nDof, s.nElem)
	}
	if err := pk.BatchedPartialAssemble(); err != nil {
		return err
	}
	M := pk.ws[pk.elmatName]
	if pk.state < ElementMatricesBuilt {
		if pk.prepareElmat != nil {
			if err := pk.prepareElmat(); err != nil {
				return err
			}
		}
		if err := pk.run(pk.prog.elmat); err != nil {
			return fmt.Errorf("%s element matrices: %w", pk.name, err)
		}
		if s.onDevice {
			if err := M.MoveFromDevice(); err != nil {
				return err
			}
		}
		pk.state = ElementMatricesBuilt
	}

	nD2 := s.nDof * s.nDof
	data := M.Data()
	for b, e := range s.elements {
		for i := 0; i < s.nDof; i++ {
			ni := s.dofMap[i]
			for j := 0; j < s.nDof; j++ {
				out.Data[e*nD2+ni*s.nDof+s.dofMap[j]] = data[b*nD2+i*s.nDof+j]
			}
		}
	}
	return nil
}

func (pk *paKernel) Apply(x, y []float64) error { return pk.MultAdd(x, y) }

func (pk *paKernel) MultAdd(x, y []float64) error {
	s := &pk.s
	if pk.state == Uninitialized {
		return fmt.Errorf("%s: %w", pk.name, ErrNotSetup)
	}
	if s.basis != element.TensorBasis {
		return fmt.Errorf("%s on %s: %w", pk.name, s.fe.Name(), ErrSimplexApply)
	}
	n := s.nElem * s.nDof
	if len(x) != n || len(y) != n {
		return fmt.Errorf("%s: vectors must have length %d, got %d and %d",
			pk.name, n, len(x), len(y))
	}
	if err := pk.BatchedPartialAssemble(); err != nil {
		return err
	}

	X, Y := pk.ws["X"], pk.ws["Y"]
	xd := X.Data()
	for b, e := range s.elements {
		for t := 0; t < s.nDof; t++ {
			xd[b*s.nDof+t] = x[e*s.nDof+s.dofMap[t]]
		}
	}
	Y.Zero()
	if s.onDevice {
		if err := X.MoveToDevice(); err != nil {
			return err
		}
		if err := Y.MoveToDevice(); err != nil {
			return err
		}
	}

	en := s.engine
	en.BeginMultiKernelLaunch()
	for _, expr := range pk.prog.apply {
		if err := pk.run(expr); err != nil {
			_ = en.EndMultiKernelLaunch()
			return fmt.Errorf("%s apply: %w", pk.name, err)
		}
	}
	if err := en.EndMultiKernelLaunch(); err != nil {
		return fmt.Errorf("%s apply: %w", pk.name, err)
	}
	if s.onDevice {
		if err := Y.MoveFromDevice(); err != nil {
			return err
		}
	}

	yd := Y.Data()
	for b, e := range s.elements {
		for t := 0; t < s.nDof; t++ {
			y[e*s.nDof+s.dofMap[t]] += yd[b*s.nDof+t]
		}
	}
	return nil
}

// Free releases device memory and drops back to Uninitialized
func (pk *paKernel) Free() {
	for _, t := range pk.ws {
		t.FreeDevice()
	}
	if pk.geo != nil {
		pk.geo.Free()
		pk.geo = nil
	}
	pk.state = Uninitialized
}
