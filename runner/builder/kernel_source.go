package builder

import (
	"fmt"
	"strings"
)

// Access is how one operand is addressed: a base offset plus a stride per
// loop label, zero where the operand does not carry the label
type Access struct {
	Offset  int
	Strides []int
}

// ContractionSpec is a bound contraction in loop form. Extents run over
// the output labels first; Batch is the position of the element label or -1.
type ContractionSpec struct {
	Extents    []int
	NumOutput  int
	Batch      int
	Out        Access
	Inputs     []Access
	Accumulate bool
}

// Parallel reports whether the batch label can be spread over
// partitions: it must be an output label spanning every element
func (kb *Builder) Parallel(cs ContractionSpec) bool {
	return cs.Batch >= 0 && cs.Batch < cs.NumOutput &&
		cs.Extents[cs.Batch] == kb.GetTotalElements()
}

// Signature is the argument list shared by the contraction kernels
func (cs ContractionSpec) Signature() string {
	params := []string{"const int_t *K", "const int_t *Koffset", "real_t *OUT"}
	for j := range cs.Inputs {
		params = append(params, fmt.Sprintf("const real_t *IN%d", j))
	}
	return strings.Join(params, ",\n\t")
}

func loopVar(l int) string { return fmt.Sprintf("L%d", l) }

func indexExpr(a Access, batch int, parallel bool) string {
	terms := []string{fmt.Sprintf("%d", a.Offset)}
	for l, s := range a.Strides {
		if s == 0 {
			continue
		}
		v := loopVar(l)
		if parallel && l == batch {
			v = "e"
		}
		terms = append(terms, fmt.Sprintf("%d*%s", s, v))
	}
	return strings.Join(terms, " + ")
}

// openThreads writes the @outer/@inner pair. Parallel kernels give every
// element its own thread; serial ones run on a single thread.
func openThreads(sb *strings.Builder, parallel bool) string {
	if !parallel {
		sb.WriteString("  for (int part = 0; part < 1; ++part; @outer) {\n")
		sb.WriteString("    for (int elem = 0; elem < 1; ++elem; @inner) {\n")
		return "      "
	}
	sb.WriteString("  for (int part = 0; part < NPART; ++part; @outer) {\n")
	sb.WriteString("    for (int elem = 0; elem < KpartMax; ++elem; @inner) {\n")
	sb.WriteString("      if (elem < K[part]) {\n")
	sb.WriteString("        const int_t e = Koffset[part] + elem;\n")
	return "        "
}

func closeThreads(sb *strings.Builder, parallel bool) {
	if parallel {
		sb.WriteString("      }\n")
	}
	sb.WriteString("    }\n  }\n}\n")
}

// ContractionKernel emits the OKL source of one contraction
func (kb *Builder) ContractionKernel(name string, cs ContractionSpec) string {
	var sb strings.Builder
	parallel := kb.Parallel(cs)
	sb.WriteString(fmt.Sprintf("@kernel void %s(%s) {\n", name, cs.Signature()))
	indent := openThreads(&sb, parallel)

	depth := 0
	open := func(l int) {
		sb.WriteString(fmt.Sprintf("%sfor (int_t %s = 0; %s < %d; ++%s) {\n",
			indent+strings.Repeat("  ", depth), loopVar(l), loopVar(l), cs.Extents[l], loopVar(l)))
		depth++
	}
	for l := 0; l < cs.NumOutput; l++ {
		if parallel && l == cs.Batch {
			continue
		}
		open(l)
	}
	outDepth := depth
	pad := func() string { return indent + strings.Repeat("  ", depth) }
	sb.WriteString(pad() + "real_t acc = REAL_ZERO;\n")
	for l := cs.NumOutput; l < len(cs.Extents); l++ {
		open(l)
	}
	factors := make([]string, len(cs.Inputs))
	for j, in := range cs.Inputs {
		factors[j] = fmt.Sprintf("IN%d[%s]", j, indexExpr(in, cs.Batch, parallel))
	}
	if len(factors) == 0 {
		factors = []string{"REAL_ONE"}
	}
	sb.WriteString(pad() + "acc += " + strings.Join(factors, " * ") + ";\n")
	for depth > outDepth {
		depth--
		sb.WriteString(pad() + "}\n")
	}
	op := "="
	if cs.Accumulate {
		op = "+="
	}
	sb.WriteString(fmt.Sprintf("%sOUT[%s] %s acc;\n", pad(), indexExpr(cs.Out, cs.Batch, parallel), op))
	for depth > 0 {
		depth--
		sb.WriteString(pad() + "}\n")
	}
	closeThreads(&sb, parallel)
	return sb.String()
}

// MatrixSpec describes a batch of row-major n x n matrices
type MatrixSpec struct {
	N         int
	Count     int
	AOffset   int
	DetOffset int
	InvOffset int
	Inverse   bool
}

// MatrixKernel emits the determinant (and inverse) kernel for a batch of
// small matrices. Batches that split evenly over the elements run one
// thread per element.
func (kb *Builder) MatrixKernel(name string, ms MatrixSpec) string {
	var sb strings.Builder
	total := kb.GetTotalElements()
	parallel := total > 0 && ms.Count%total == 0
	params := "const int_t *K, const int_t *Koffset, real_t *DET"
	if ms.Inverse {
		params += ", real_t *INV"
	}
	params += ", const real_t *A"
	sb.WriteString(fmt.Sprintf("@kernel void %s(%s) {\n", name, params))
	indent := openThreads(&sb, parallel)

	nn := ms.N * ms.N
	if parallel {
		per := ms.Count / total
		sb.WriteString(fmt.Sprintf("%sfor (int_t q = 0; q < %d; ++q) {\n", indent, per))
		sb.WriteString(fmt.Sprintf("%s  const int_t b = e*%d + q;\n", indent, per))
	} else {
		sb.WriteString(fmt.Sprintf("%sfor (int_t b = 0; b < %d; ++b) {\n", indent, ms.Count))
	}
	body := indent + "  "
	sb.WriteString(fmt.Sprintf("%sconst real_t *m = A + %d + b*%d;\n", body, ms.AOffset, nn))
	sb.WriteString(fmt.Sprintf("%sconst real_t det = %s;\n", body, detExpr(ms.N)))
	sb.WriteString(fmt.Sprintf("%sDET[%d + b] = det;\n", body, ms.DetOffset))
	if ms.Inverse {
		sb.WriteString(fmt.Sprintf("%sreal_t *inv = INV + %d + b*%d;\n", body, ms.InvOffset, nn))
		for i, cof := range inverseCofactors(ms.N) {
			sb.WriteString(fmt.Sprintf("%sinv[%d] = (%s) / det;\n", body, i, cof))
		}
	}
	sb.WriteString(indent + "}\n")
	closeThreads(&sb, parallel)
	return sb.String()
}

func detExpr(n int) string {
	switch n {
	case 1:
		return "m[0]"
	case 2:
		return "m[0]*m[3] - m[1]*m[2]"
	case 3:
		return "m[0]*(m[4]*m[8] - m[5]*m[7]) - m[1]*(m[3]*m[8] - m[5]*m[6]) + m[2]*(m[3]*m[7] - m[4]*m[6])"
	}
	panic(fmt.Sprintf("determinant of %dx%d matrix not supported", n, n))
}

// inverseCofactors are the adjugate entries in row-major order
func inverseCofactors(n int) []string {
	switch n {
	case 1:
		return []string{"REAL_ONE"}
	case 2:
		return []string{"m[3]", "-m[1]", "-m[2]", "m[0]"}
	case 3:
		return []string{
			"m[4]*m[8] - m[5]*m[7]", "m[2]*m[7] - m[1]*m[8]", "m[1]*m[5] - m[2]*m[4]",
			"m[5]*m[6] - m[3]*m[8]", "m[0]*m[8] - m[2]*m[6]", "m[2]*m[3] - m[0]*m[5]",
			"m[3]*m[7] - m[4]*m[6]", "m[1]*m[6] - m[0]*m[7]", "m[0]*m[4] - m[1]*m[3]",
		}
	}
	panic(fmt.Sprintf("inverse of %dx%d matrix not supported", n, n))
}
