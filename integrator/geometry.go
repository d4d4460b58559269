package integrator

import (
	"fmt"

	"github.com/notargets/PAKernel/tensor"
	"gonum.org/v1/gonum/mat"
)

// GeometryFactors are the per element, per quadrature point Jacobians
// J(m,n) = dx_m/dxi_n with their determinants and, when requested, their
// inverses. Dims are (nElem, q..., dim, dim) and (nElem, q...).
type GeometryFactors struct {
	J    *tensor.Tensor
	Jdet *tensor.Tensor
	Jinv *tensor.Tensor
	// C is the coefficient at every quadrature point, dims of Jdet
	C *tensor.Tensor
}

func withDims(lead int, mid []int, tail ...int) []int {
	dims := append([]int{lead}, mid...)
	return append(dims, tail...)
}

// ComputeGeometry evaluates the mesh transformation at every quadrature
// point of every element in batch order, then batches the determinant
// (and inverse) through the engine. Determinants at or below the
// configured floor are rejected. Device memory is released on failure.
func ComputeGeometry(s *setup, withInverse bool) (_ *GeometryFactors, err error) {
	qDims := s.quadDims()
	gf := &GeometryFactors{
		J:    tensor.New(withDims(s.nElem, qDims, s.dim, s.dim)...),
		Jdet: tensor.New(withDims(s.nElem, qDims)...),
		C:    tensor.New(withDims(s.nElem, qDims)...),
	}
	if withInverse {
		gf.Jinv = tensor.New(withDims(s.nElem, qDims, s.dim, s.dim)...)
	}
	defer func() {
		if err != nil {
			gf.Free()
		}
	}()

	dd := s.dim * s.dim
	Jm := mat.NewDense(s.dim, s.dim, nil)
	jData, cData := gf.J.Data(), gf.C.Data()
	for b, e := range s.elements {
		tr, err := s.space.Mesh.Transformation(e)
		if err != nil {
			return nil, err
		}
		for k, ip := range s.rule {
			tr.Jacobian(ip, Jm)
			off := (b*s.nQuad + k) * dd
			for m := 0; m < s.dim; m++ {
				for n := 0; n < s.dim; n++ {
					jData[off+m*s.dim+n] = Jm.At(m, n)
				}
			}
			cData[b*s.nQuad+k] = s.coeff.Eval(tr.Transform(ip))
		}
	}

	en := s.engine
	if s.onDevice {
		alloc := en.Allocator()
		for _, t := range []*tensor.Tensor{gf.J, gf.C} {
			if err := t.MapToDevice(alloc); err != nil {
				return nil, err
			}
		}
		if err := gf.Jdet.SwitchToDevice(alloc); err != nil {
			return nil, err
		}
		if withInverse {
			if err := gf.Jinv.SwitchToDevice(alloc); err != nil {
				return nil, err
			}
		}
	}
	if withInverse {
		err = en.BatchMatrixInvDet(gf.Jinv, gf.Jdet, gf.J)
	} else {
		err = en.BatchMatrixDet(gf.Jdet, gf.J)
	}
	if err != nil {
		return nil, fmt.Errorf("geometry factors: %w", err)
	}
	if s.onDevice {
		if err = gf.Jdet.MoveFromDevice(); err != nil {
			return nil, err
		}
	}
	for i, det := range gf.Jdet.Data() {
		if det <= s.minDet {
			b, k := i/s.nQuad, i%s.nQuad
			return nil, fmt.Errorf("element %d, quadrature point %d: det J = %g: %w",
				s.elements[b], k, det, ErrDegenerateGeometry)
		}
	}
	return gf, nil
}

// Free releases device memory held by the factors
func (gf *GeometryFactors) Free() {
	for _, t := range []*tensor.Tensor{gf.J, gf.Jdet, gf.Jinv, gf.C} {
		if t != nil {
			t.FreeDevice()
		}
	}
}
