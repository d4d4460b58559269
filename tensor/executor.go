package tensor

import (
	"fmt"
)

// Executor runs bound contractions and batched small-matrix kernels.
// The engine validates shapes and residency before calling in.
type Executor interface {
	Name() string
	// Allocator is nil for host-only executors
	Allocator() Allocator
	Contract(b *Binding) error
	Det(det, a *Tensor) error
	InvDet(inv, det, a *Tensor) error
	// BeginBatch and EndBatch bracket a multi-kernel launch scope
	BeginBatch()
	EndBatch() error
}

// CPUInterpreted evaluates contractions directly on host memory by
// walking the full label space of each binding
type CPUInterpreted struct{}

func NewCPUInterpreted() *CPUInterpreted { return &CPUInterpreted{} }

func (cpu *CPUInterpreted) Name() string         { return "cpu-interpreted" }
func (cpu *CPUInterpreted) Allocator() Allocator { return nil }
func (cpu *CPUInterpreted) BeginBatch()          {}
func (cpu *CPUInterpreted) EndBatch() error      { return nil }

func (cpu *CPUInterpreted) Contract(b *Binding) error {
	if !b.C.Accumulate {
		b.Out.Zero()
	}
	nL := len(b.Extents)
	for _, ext := range b.Extents {
		if ext == 0 {
			return nil
		}
	}
	nIn := len(b.Inputs)
	data := make([][]float64, nIn)
	offs := make([]int, nIn)
	for j, in := range b.Inputs {
		data[j] = in.Storage()
		offs[j] = in.Offset()
	}
	out := b.Out.Storage()
	outOff := b.Out.Offset()
	idx := make([]int, nL)
	for {
		prod := 1.0
		for j := 0; j < nIn; j++ {
			prod *= data[j][offs[j]]
		}
		out[outOff] += prod

		l := nL - 1
		for ; l >= 0; l-- {
			idx[l]++
			outOff += b.OutStrides[l]
			for j := 0; j < nIn; j++ {
				offs[j] += b.InStrides[j][l]
			}
			if idx[l] < b.Extents[l] {
				break
			}
			outOff -= b.OutStrides[l] * b.Extents[l]
			for j := 0; j < nIn; j++ {
				offs[j] -= b.InStrides[j][l] * b.Extents[l]
			}
			idx[l] = 0
		}
		if l < 0 {
			return nil
		}
	}
}

func (cpu *CPUInterpreted) Det(det, a *Tensor) error {
	n := a.Dim(a.Rank() - 1)
	ad, dd := a.Data(), det.Data()
	for b := range dd {
		m := ad[b*n*n : (b+1)*n*n]
		dd[b] = Det(n, m)
	}
	return nil
}

func (cpu *CPUInterpreted) InvDet(inv, det, a *Tensor) error {
	n := a.Dim(a.Rank() - 1)
	ad, id, dd := a.Data(), inv.Data(), det.Data()
	for b := range dd {
		dd[b] = InvDet(n, ad[b*n*n:(b+1)*n*n], id[b*n*n:(b+1)*n*n])
	}
	return nil
}

// Det is the determinant of the row-major n x n matrix m, n in [1,3]
func Det(n int, m []float64) float64 {
	switch n {
	case 1:
		return m[0]
	case 2:
		return m[0]*m[3] - m[1]*m[2]
	case 3:
		return m[0]*(m[4]*m[8]-m[5]*m[7]) -
			m[1]*(m[3]*m[8]-m[5]*m[6]) +
			m[2]*(m[3]*m[7]-m[4]*m[6])
	}
	panic(fmt.Sprintf("determinant of %dx%d matrix not supported", n, n))
}

// InvDet writes the inverse of m into inv and returns det(m)
func InvDet(n int, m, inv []float64) float64 {
	det := Det(n, m)
	switch n {
	case 1:
		inv[0] = 1. / det
	case 2:
		inv[0] = m[3] / det
		inv[1] = -m[1] / det
		inv[2] = -m[2] / det
		inv[3] = m[0] / det
	case 3:
		inv[0] = (m[4]*m[8] - m[5]*m[7]) / det
		inv[1] = (m[2]*m[7] - m[1]*m[8]) / det
		inv[2] = (m[1]*m[5] - m[2]*m[4]) / det
		inv[3] = (m[5]*m[6] - m[3]*m[8]) / det
		inv[4] = (m[0]*m[8] - m[2]*m[6]) / det
		inv[5] = (m[2]*m[3] - m[0]*m[5]) / det
		inv[6] = (m[3]*m[7] - m[4]*m[6]) / det
		inv[7] = (m[1]*m[6] - m[0]*m[7]) / det
		inv[8] = (m[0]*m[4] - m[1]*m[3]) / det
	}
	return det
}
