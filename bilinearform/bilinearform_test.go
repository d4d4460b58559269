package bilinearform

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/integrator"
	"github.com/notargets/PAKernel/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func newSpace(t *testing.T, geom element.ElementGeometry, order int, n []int, lengths []float64) *mesh.FESpace {
	m, err := mesh.NewBoxMesh(geom, n, lengths)
	require.NoError(t, err)
	fs, err := mesh.NewFESpace(m, order)
	require.NoError(t, err)
	return fs
}

func TestMassSumsToVolume(t *testing.T) {
	for _, tt := range []struct {
		geom    element.ElementGeometry
		n       []int
		lengths []float64
	}{
		{element.Line, []int{5}, []float64{3}},
		{element.Rectangle, []int{3, 2}, []float64{2, 1.5}},
		{element.Hex, []int{2, 2, 2}, []float64{1, 2, 0.5}},
		{element.Tri, []int{2, 3}, []float64{1, 1}},
	} {
		t.Run(tt.geom.String(), func(t *testing.T) {
			fs := newSpace(t, tt.geom, 1, tt.n, tt.lengths)
			bf := New(fs)
			bf.AddDomainIntegrator(integrator.NewMass(integrator.Config{Space: fs}))
			A, err := bf.SparseMatrix()
			require.NoError(t, err)
			r, c := A.Dims()
			require.Equal(t, fs.NDofs, r)
			require.Equal(t, fs.NDofs, c)
			vol := 1.
			for _, l := range tt.lengths {
				vol *= l
			}
			assert.InDelta(t, vol, floats.Sum(A.RawMatrix().Data), 1.e-12)
		})
	}
}

func TestSparseMatchesMatrixFree(t *testing.T) {
	fs := newSpace(t, element.Rectangle, 3, []int{3, 2}, []float64{1, 1})
	bf := New(fs)
	bf.AddDomainIntegrator(integrator.NewMass(integrator.Config{Space: fs}))
	bf.AddDomainIntegrator(integrator.NewDiffusion(integrator.Config{Space: fs}))
	A, err := bf.SparseMatrix()
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	x := make([]float64, fs.NDofs)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	want := make([]float64, fs.NDofs)
	require.NoError(t, MulVec(A, x, want))
	got := make([]float64, fs.NDofs)
	require.NoError(t, bf.Mult(x, got))
	assert.InDeltaSlice(t, want, got, 1.e-10)

	// symmetric positive definite
	assert.Greater(t, floats.Dot(x, got), 0.)
	for i := 0; i < fs.NDofs; i++ {
		for j := 0; j < i; j++ {
			assert.InDelta(t, A.At(i, j), A.At(j, i), 1.e-13)
		}
	}
}

func TestMulVecOverwrites(t *testing.T) {
	fs := newSpace(t, element.Rectangle, 2, []int{2, 2}, []float64{1, 1})
	bf := New(fs)
	bf.AddDomainIntegrator(integrator.NewMass(integrator.Config{Space: fs}))
	A, err := bf.SparseMatrix()
	require.NoError(t, err)

	x := make([]float64, fs.NDofs)
	for i := range x {
		x[i] = float64(i%3) - 1
	}
	want := make([]float64, fs.NDofs)
	for i := range want {
		for j := range x {
			want[i] += A.At(i, j) * x[j]
		}
	}
	y := make([]float64, fs.NDofs)
	for i := range y {
		y[i] = 100
	}
	require.NoError(t, MulVec(A, x, y))
	assert.InDeltaSlice(t, want, y, 1.e-14)

	assert.Error(t, MulVec(A, x[1:], y))
	assert.Error(t, MulVec(A, x, y[1:]))
}

func TestElementMatricesNeedOneIntegrator(t *testing.T) {
	fs := newSpace(t, element.Rectangle, 1, []int{1, 1}, []float64{1, 1})
	bf := New(fs)
	out := integrator.NewElementMatrices(4, 1)
	assert.True(t, errors.Is(bf.AssembleElementMatrices(out), ErrMultipleIntegrators))
	bf.AddDomainIntegrator(integrator.NewMass(integrator.Config{Space: fs}))
	require.NoError(t, bf.AssembleElementMatrices(out))
	bf.AddDomainIntegrator(integrator.NewDiffusion(integrator.Config{Space: fs}))
	assert.True(t, errors.Is(bf.AssembleElementMatrices(out), ErrMultipleIntegrators))
	bf.Free()
}
