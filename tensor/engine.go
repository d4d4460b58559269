package tensor

import (
	"fmt"
)

// Engine parses, caches and executes contractions on one executor. It is
// not safe for concurrent use; a single host thread drives it.
type Engine struct {
	exec  Executor
	cache map[string]*Contraction
	scope int
}

// NewEngine builds an engine over exec; nil selects the CPU interpreter
func NewEngine(exec Executor) *Engine {
	if exec == nil {
		exec = NewCPUInterpreted()
	}
	return &Engine{
		exec:  exec,
		cache: make(map[string]*Contraction),
	}
}

func (en *Engine) Executor() Executor   { return en.exec }
func (en *Engine) Allocator() Allocator { return en.exec.Allocator() }

// OnDevice reports whether operands have to be device resident
func (en *Engine) OnDevice() bool { return en.exec.Allocator() != nil }

// Compile parses expr once; later calls return the cached contraction
func (en *Engine) Compile(expr string) (*Contraction, error) {
	if c, ok := en.cache[expr]; ok {
		return c, nil
	}
	c, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	en.cache[expr] = c
	return c, nil
}

// Contract compiles (or fetches) expr and runs it
func (en *Engine) Contract(expr string, out *Tensor, inputs ...*Tensor) error {
	c, err := en.Compile(expr)
	if err != nil {
		return err
	}
	return en.Run(c, out, inputs...)
}

// Run executes a compiled contraction on concrete operands
func (en *Engine) Run(c *Contraction, out *Tensor, inputs ...*Tensor) error {
	b, err := Bind(c, out, inputs...)
	if err != nil {
		return err
	}
	if err = en.checkResidency(c.Expr, append([]*Tensor{out}, inputs...)...); err != nil {
		return err
	}
	return en.exec.Contract(b)
}

func (en *Engine) checkResidency(what string, ts ...*Tensor) error {
	onDevice := en.OnDevice()
	for _, t := range ts {
		if t.IsOnDevice() != onDevice {
			where := "host"
			if t.IsOnDevice() {
				where = "device"
			}
			return fmt.Errorf("%s: %v is %s resident on a %s executor: %w",
				what, t.Dims(), where, en.exec.Name(), ErrResidency)
		}
	}
	return nil
}

func matrixBatch(what string, a *Tensor) (int, error) {
	r := a.Rank()
	if r < 2 {
		return 0, &ShapeError{Expr: what, Msg: fmt.Sprintf("need rank >= 2, got %v", a.Dims())}
	}
	n := a.Dim(r - 1)
	if a.Dim(r-2) != n {
		return 0, &ShapeError{Expr: what, Msg: fmt.Sprintf("trailing dims %v are not square", a.Dims())}
	}
	if n < 1 || n > 3 {
		return 0, &ShapeError{Expr: what, Msg: fmt.Sprintf("matrix size %d not in [1,3]", n)}
	}
	return n, nil
}

func sameDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BatchMatrixDet computes det over the trailing n x n block of a.
// det has the dims of a without the last two.
func (en *Engine) BatchMatrixDet(det, a *Tensor) error {
	const what = "BatchMatrixDet"
	if _, err := matrixBatch(what, a); err != nil {
		return err
	}
	if !sameDims(det.Dims(), a.Dims()[:a.Rank()-2]) {
		return &ShapeError{Expr: what, Msg: fmt.Sprintf("det dims %v for matrices %v", det.Dims(), a.Dims())}
	}
	if det.Overlaps(a) {
		return fmt.Errorf("%s: %w", what, ErrAliased)
	}
	if err := en.checkResidency(what, det, a); err != nil {
		return err
	}
	return en.exec.Det(det, a)
}

// BatchMatrixInvDet computes inverse and determinant of every trailing
// n x n block of a
func (en *Engine) BatchMatrixInvDet(inv, det, a *Tensor) error {
	const what = "BatchMatrixInvDet"
	if _, err := matrixBatch(what, a); err != nil {
		return err
	}
	if !sameDims(det.Dims(), a.Dims()[:a.Rank()-2]) || !sameDims(inv.Dims(), a.Dims()) {
		return &ShapeError{Expr: what,
			Msg: fmt.Sprintf("inv %v, det %v for matrices %v", inv.Dims(), det.Dims(), a.Dims())}
	}
	if inv.Overlaps(a) || det.Overlaps(a) || inv.Overlaps(det) {
		return fmt.Errorf("%s: %w", what, ErrAliased)
	}
	if err := en.checkResidency(what, inv, det, a); err != nil {
		return err
	}
	return en.exec.InvDet(inv, det, a)
}

// BeginMultiKernelLaunch opens a scope in which device executors may
// queue launches and synchronize once at the end. Scopes nest.
func (en *Engine) BeginMultiKernelLaunch() {
	if en.scope == 0 {
		en.exec.BeginBatch()
	}
	en.scope++
}

// EndMultiKernelLaunch closes the scope, flushing queued work when the
// outermost scope ends
func (en *Engine) EndMultiKernelLaunch() error {
	if en.scope == 0 {
		return fmt.Errorf("end without begin: %w", ErrScope)
	}
	en.scope--
	if en.scope == 0 {
		return en.exec.EndBatch()
	}
	return nil
}
