package tensor

import (
	"fmt"
	"strings"
)

// BatchLabel marks the element (batch) index in expressions
const BatchLabel = "e"

// Operand is one named tensor in an expression with its index labels
type Operand struct {
	Name   string
	Labels []string
}

func (op Operand) String() string {
	if len(op.Labels) == 0 {
		return op.Name
	}
	return op.Name + "_" + strings.Join(op.Labels, "_")
}

// Contraction is a parsed expression of the form
//
//	OUT_i_j [+]= A_i_k B_k_j ...
//
// Labels absent from the output are summed over. A Contraction holds no
// shapes; those are bound per call.
type Contraction struct {
	Expr       string
	Out        Operand
	Inputs     []Operand
	Accumulate bool

	// Loop labels: output labels in output order, then summed labels in
	// order of first appearance
	Labels    []string
	NumOutput int
}

// SumLabels are the contracted labels
func (c *Contraction) SumLabels() []string { return c.Labels[c.NumOutput:] }

// LabelIndex returns the loop position of label, -1 if absent
func (c *Contraction) LabelIndex(label string) int {
	for i, l := range c.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Parse compiles an expression without caching
func Parse(expr string) (*Contraction, error) {
	perr := func(msg string) error { return &ParseError{Expr: expr, Msg: msg} }

	var (
		lhs, rhs   string
		accumulate bool
	)
	if i := strings.Index(expr, "+="); i >= 0 {
		lhs, rhs, accumulate = expr[:i], expr[i+2:], true
	} else if i := strings.Index(expr, "="); i >= 0 {
		lhs, rhs = expr[:i], expr[i+1:]
	} else {
		return nil, perr("missing '=' or '+='")
	}
	if strings.Contains(rhs, "=") {
		return nil, perr("more than one assignment")
	}
	lhsTokens := strings.Fields(lhs)
	if len(lhsTokens) != 1 {
		return nil, perr("left side must be a single tensor")
	}
	rhsTokens := strings.Fields(rhs)
	if len(rhsTokens) == 0 {
		return nil, perr("no input tensors")
	}

	c := &Contraction{Expr: expr, Accumulate: accumulate}
	var err error
	if c.Out, err = parseOperand(lhsTokens[0]); err != nil {
		return nil, perr(err.Error())
	}
	seen := make(map[string]bool)
	var sum []string
	for _, tok := range rhsTokens {
		op, err := parseOperand(tok)
		if err != nil {
			return nil, perr(err.Error())
		}
		c.Inputs = append(c.Inputs, op)
		for _, l := range op.Labels {
			if !seen[l] {
				seen[l] = true
				if !contains(c.Out.Labels, l) {
					sum = append(sum, l)
				}
			}
		}
	}
	for _, l := range c.Out.Labels {
		if !seen[l] {
			return nil, perr("output label " + l + " does not appear in any input")
		}
	}
	c.Labels = append(append([]string{}, c.Out.Labels...), sum...)
	c.NumOutput = len(c.Out.Labels)
	return c, nil
}

type labelError string

func (e labelError) Error() string { return string(e) }

func parseOperand(tok string) (Operand, error) {
	parts := strings.Split(tok, "_")
	op := Operand{Name: parts[0]}
	if !isIdent(op.Name) {
		return op, labelError("bad tensor name in " + tok)
	}
	for _, l := range parts[1:] {
		if !isIdent(l) {
			return op, labelError("bad index label in " + tok)
		}
		if contains(op.Labels, l) {
			return op, labelError("repeated label " + l + " in " + tok)
		}
		op.Labels = append(op.Labels, l)
	}
	return op, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Binding is a contraction bound to concrete operands: the extent of each
// loop label and every operand's stride along it (zero when the operand
// does not carry that label).
type Binding struct {
	C          *Contraction
	Out        *Tensor
	Inputs     []*Tensor
	Extents    []int
	OutStrides []int
	InStrides  [][]int
}

// BatchAxis is the loop position of the batch label, -1 when absent
func (b *Binding) BatchAxis() int { return b.C.LabelIndex(BatchLabel) }

// Bind checks operand count, ranks and index extents against c
func Bind(c *Contraction, out *Tensor, inputs ...*Tensor) (*Binding, error) {
	serr := func(format string, args ...interface{}) error {
		return &ShapeError{Expr: c.Expr, Msg: fmt.Sprintf(format, args...)}
	}
	if len(inputs) != len(c.Inputs) {
		return nil, serr("expected %d inputs, got %d", len(c.Inputs), len(inputs))
	}
	b := &Binding{
		C:          c,
		Out:        out,
		Inputs:     inputs,
		Extents:    make([]int, len(c.Labels)),
		OutStrides: make([]int, len(c.Labels)),
		InStrides:  make([][]int, len(inputs)),
	}
	for i := range b.Extents {
		b.Extents[i] = -1
	}
	bindOne := func(op Operand, t *Tensor, strides []int) error {
		if t == nil {
			return serr("%s is nil", op.Name)
		}
		if t.Rank() != len(op.Labels) {
			return serr("%s has rank %d, expression uses %d indices",
				op, t.Rank(), len(op.Labels))
		}
		for k, l := range op.Labels {
			li := c.LabelIndex(l)
			ext := t.Dim(k)
			if b.Extents[li] >= 0 && b.Extents[li] != ext {
				return serr("index %s bound to %d and %d (at %s)",
					l, b.Extents[li], ext, op)
			}
			b.Extents[li] = ext
			strides[li] = t.Strides()[k]
		}
		return nil
	}
	for j, op := range c.Inputs {
		b.InStrides[j] = make([]int, len(c.Labels))
		if err := bindOne(op, inputs[j], b.InStrides[j]); err != nil {
			return nil, err
		}
	}
	if err := bindOne(c.Out, out, b.OutStrides); err != nil {
		return nil, err
	}
	for j, in := range inputs {
		if out.Overlaps(in) {
			return nil, fmt.Errorf("contraction %q: %s overlaps input %s: %w",
				c.Expr, c.Out.Name, c.Inputs[j].Name, ErrAliased)
		}
	}
	return b, nil
}
