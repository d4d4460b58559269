package integrator

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/element/library/lagrange"
	"github.com/notargets/PAKernel/element/library/quadrature"
	"github.com/notargets/PAKernel/mesh"
	"github.com/notargets/PAKernel/partition"
	"github.com/notargets/PAKernel/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newSpace(t *testing.T, geom element.ElementGeometry, order int, n ...int) *mesh.FESpace {
	t.Helper()
	lengths := make([]float64, len(n))
	for i := range lengths {
		lengths[i] = 1
	}
	m, err := mesh.NewBoxMesh(geom, n, lengths)
	require.NoError(t, err)
	fs, err := mesh.NewFESpace(m, order)
	require.NoError(t, err)
	return fs
}

// skew returns a well conditioned affine distortion for dim
func skew(dim int) *mat.Dense {
	switch dim {
	case 1:
		return mat.NewDense(1, 1, []float64{1.7})
	case 2:
		return mat.NewDense(2, 2, []float64{1.2, 0.3, -0.2, 0.9})
	}
	return mat.NewDense(3, 3, []float64{
		1.1, 0.2, 0.0,
		-0.1, 0.8, 0.3,
		0.2, 0.0, 1.3,
	})
}

// directMatrices integrates the element matrices point by point with a
// rule well above the integrand degree, rows and columns in native order
func directMatrices(t *testing.T, fs *mesh.FESpace, diffusion bool, coeff Coefficient) *ElementMatrices {
	t.Helper()
	fe := fs.FE
	dim, np, p := int(fe.Dimensions()), fe.Np(), fe.Order()
	var rule element.IntegrationRule
	if fe.BasisType() == element.TensorBasis {
		rule = quadrature.TensorRule(quadrature.SegmentRule(2*p+4), dim)
	} else {
		rule = quadrature.ForGeometry(fe.GeometryType(), 2*p+2)
	}
	if coeff == nil {
		coeff = ConstantCoefficient(1)
	}
	out := NewElementMatrices(np, fs.NumElements())
	shape := make([]float64, np)
	dshape := mat.NewDense(np, dim, nil)
	J := mat.NewDense(dim, dim, nil)
	var Jinv, grad mat.Dense
	for e := 0; e < fs.NumElements(); e++ {
		tr, err := fs.Mesh.Transformation(e)
		require.NoError(t, err)
		M := out.Matrix(e)
		for _, ip := range rule {
			tr.Jacobian(ip, J)
			w := ip.Weight * mat.Det(J) * coeff.Eval(tr.Transform(ip))
			if diffusion {
				require.NoError(t, Jinv.Inverse(J))
				fe.CalcDShape(ip, dshape)
				grad.Mul(dshape, &Jinv)
				for i := 0; i < np; i++ {
					for j := 0; j < np; j++ {
						var s float64
						for d := 0; d < dim; d++ {
							s += grad.At(i, d) * grad.At(j, d)
						}
						M.Set(i, j, M.At(i, j)+w*s)
					}
				}
				continue
			}
			fe.CalcShape(ip, shape)
			for i := 0; i < np; i++ {
				for j := 0; j < np; j++ {
					M.Set(i, j, M.At(i, j)+w*shape[i]*shape[j])
				}
			}
		}
	}
	return out
}

func assertMatricesClose(t *testing.T, want, got *ElementMatrices, tol float64) {
	t.Helper()
	require.Equal(t, len(want.Data), len(got.Data))
	scale := 0.
	for _, v := range want.Data {
		scale = math.Max(scale, math.Abs(v))
	}
	for i := range want.Data {
		if !assert.InDeltaf(t, want.Data[i], got.Data[i], tol*scale, "entry %d", i) {
			return
		}
	}
}

func TestBasisTableIsNodalAtLobattoPoints(t *testing.T) {
	x, w := quadrature.GaussLobatto(3)
	rule := make(element.IntegrationRule, len(x))
	for i := range x {
		rule[i] = element.IntegrationPoint{X: x[i], Weight: w[i]}
	}
	fe1D := lagrange.NewSegment(2)
	bt := NewBasisTable(fe1D, rule)
	nodes := fe1D.Nodes1D()
	for k := range rule {
		for i := range nodes {
			want := 0.
			if math.Abs(x[k]-nodes[i]) < 1.e-12 {
				want = 1
			}
			assert.InDelta(t, want, bt.B.At(k, i), 1.e-12)
		}
	}
	// derivatives of a partition of unity sum to zero
	for k := range rule {
		var s float64
		for i := range nodes {
			s += bt.G.At(k, i)
		}
		assert.InDelta(t, 0, s, 1.e-12)
	}
	W := bt.TensorWeights(2)
	var total float64
	for _, v := range W.Data() {
		total += v
	}
	assert.InDelta(t, 1, total, 1.e-14)
}

func TestBilinearMassClosedForm(t *testing.T) {
	fs := newSpace(t, element.Rectangle, 1, 1, 1)
	mi := NewMass(Config{Space: fs})
	require.NoError(t, mi.Setup())
	out := NewElementMatrices(4, 1)
	require.NoError(t, mi.BatchedAssembleElementMatrices(out))
	assert.Equal(t, ElementMatricesBuilt, mi.State())
	// vertices are counter clockwise, so i and i+2 are opposite
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 1. / 18
			switch (j - i + 4) % 4 {
			case 0:
				want = 1. / 9
			case 2:
				want = 1. / 36
			}
			assert.InDelta(t, want, out.At(i, j, 0), 1.e-14, "M(%d,%d)", i, j)
		}
	}
}

func TestElementMatricesMatchDirectQuadrature(t *testing.T) {
	tests := []struct {
		name  string
		geom  element.ElementGeometry
		order int
		n     []int
	}{
		{"segment", element.Line, 3, []int{3}},
		{"quad", element.Rectangle, 2, []int{2, 3}},
		{"hex", element.Hex, 2, []int{2, 1, 2}},
		{"triangle", element.Tri, 2, []int{2, 2}},
		{"tet", element.Tet, 2, []int{1, 1, 1}},
	}
	for _, tt := range tests {
		for _, distort := range []bool{false, true} {
			fs := newSpace(t, tt.geom, tt.order, tt.n...)
			if distort {
				dim := len(tt.n)
				require.NoError(t, fs.Mesh.Distort(skew(dim), make([]float64, dim)))
			}
			for _, name := range Names() {
				t.Run(tt.name+"/"+name, func(t *testing.T) {
					in, err := New(name, Config{Space: fs})
					require.NoError(t, err)
					require.NoError(t, in.Setup())
					got := NewElementMatrices(in.NumDofs(), in.NumElements())
					require.NoError(t, in.BatchedAssembleElementMatrices(got))
					want := directMatrices(t, fs, name == "diffusion", nil)
					assertMatricesClose(t, want, got, 1.e-11)
				})
			}
		}
	}
}

func TestMultAddMatchesElementMatrices(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, tt := range []struct {
		geom  element.ElementGeometry
		order int
		n     []int
	}{
		{element.Line, 4, []int{3}},
		{element.Rectangle, 3, []int{2, 2}},
		{element.Hex, 2, []int{2, 2, 1}},
	} {
		fs := newSpace(t, tt.geom, tt.order, tt.n...)
		dim := len(tt.n)
		require.NoError(t, fs.Mesh.Distort(skew(dim), make([]float64, dim)))
		for _, name := range Names() {
			t.Run(tt.geom.String()+"/"+name, func(t *testing.T) {
				in, err := New(name, Config{Space: fs})
				require.NoError(t, err)
				require.NoError(t, in.Setup())
				nd, ne := in.NumDofs(), in.NumElements()
				em := NewElementMatrices(nd, ne)
				require.NoError(t, in.BatchedAssembleElementMatrices(em))

				x := make([]float64, nd*ne)
				for i := range x {
					x[i] = rng.Float64() - 0.5
				}
				y := make([]float64, nd*ne)
				y[0] = 1
				require.NoError(t, in.MultAdd(x, y))

				for e := 0; e < ne; e++ {
					xe := mat.NewVecDense(nd, x[e*nd:(e+1)*nd])
					var want mat.VecDense
					want.MulVec(em.Matrix(e), xe)
					if e == 0 {
						want.SetVec(0, want.AtVec(0)+1)
					}
					for i := 0; i < nd; i++ {
						assert.InDelta(t, want.AtVec(i), y[e*nd+i], 1.e-10*(1+math.Abs(want.AtVec(i))))
					}
				}
			})
		}
	}
}

func TestMultAddUnitVectorsGiveColumns(t *testing.T) {
	fs := newSpace(t, element.Rectangle, 2, 1, 1)
	in := NewDiffusion(Config{Space: fs})
	require.NoError(t, in.Setup())
	nd := in.NumDofs()
	em := NewElementMatrices(nd, 1)
	require.NoError(t, in.BatchedAssembleElementMatrices(em))
	for j := 0; j < nd; j++ {
		x := make([]float64, nd)
		x[j] = 1
		y := make([]float64, nd)
		require.NoError(t, in.MultAdd(x, y))
		for i := 0; i < nd; i++ {
			assert.InDelta(t, em.At(i, j, 0), y[i], 1.e-12)
		}
	}
	// constants are in the kernel of the stiffness matrix
	ones := make([]float64, nd)
	for i := range ones {
		ones[i] = 1
	}
	y := make([]float64, nd)
	require.NoError(t, in.MultAdd(ones, y))
	for _, v := range y {
		assert.InDelta(t, 0, v, 1.e-12)
	}
}

func TestSimplexApplyUnsupported(t *testing.T) {
	fs := newSpace(t, element.Tri, 1, 1, 1)
	in := NewMass(Config{Space: fs})
	require.NoError(t, in.Setup())
	n := in.NumDofs() * in.NumElements()
	err := in.MultAdd(make([]float64, n), make([]float64, n))
	assert.True(t, errors.Is(err, ErrSimplexApply), "got %v", err)
}

func TestDegenerateGeometry(t *testing.T) {
	for name, A := range map[string]*mat.Dense{
		"singular": mat.NewDense(2, 2, []float64{1, 1, 1, 1}),
		"inverted": mat.NewDense(2, 2, []float64{-1, 0, 0, 1}),
	} {
		t.Run(name, func(t *testing.T) {
			fs := newSpace(t, element.Rectangle, 1, 2, 2)
			require.NoError(t, fs.Mesh.Distort(A, []float64{0, 0}))
			in := NewDiffusion(Config{Space: fs})
			require.NoError(t, in.Setup())
			err := in.BatchedPartialAssemble()
			assert.True(t, errors.Is(err, ErrDegenerateGeometry), "got %v", err)
			assert.Equal(t, BasisBuilt, in.State())
		})
	}
}

type fourDimElement struct{ element.FiniteElement }

func (fourDimElement) Dimensions() element.Dimensionality { return 4 }
func (fourDimElement) Name() string                       { return "H1_4D" }

func TestUnsupportedDimension(t *testing.T) {
	fs := newSpace(t, element.Hex, 1, 1, 1, 1)
	fake := &mesh.FESpace{Mesh: fs.Mesh, FE: fourDimElement{fs.FE}}
	for _, name := range Names() {
		in, err := New(name, Config{Space: fake})
		require.NoError(t, err)
		err = in.Setup()
		assert.True(t, errors.Is(err, ErrUnsupportedDimension), "got %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	fs := newSpace(t, element.Rectangle, 2, 2, 2)
	in := NewMass(Config{Space: fs})
	assert.Equal(t, Uninitialized, in.State())
	assert.True(t, errors.Is(in.BatchedPartialAssemble(), ErrNotSetup))
	n := fs.ElementVectorSize()
	assert.True(t, errors.Is(in.MultAdd(make([]float64, n), make([]float64, n)), ErrNotSetup))
	assert.True(t, errors.Is(in.Assemble(), ErrNotSetup))
	assert.True(t, errors.Is(in.Apply(make([]float64, n), make([]float64, n)), ErrNotSetup))

	require.NoError(t, in.Setup())
	assert.Equal(t, BasisBuilt, in.State())
	require.NoError(t, in.Assemble())
	assert.Equal(t, CoefficientBuilt, in.State())
	D := append([]float64(nil), in.Workspace("D").Data()...)
	require.NoError(t, in.BatchedPartialAssemble())
	assert.Equal(t, D, in.Workspace("D").Data())
	assert.Equal(t, CoefficientBuilt, in.State())

	assert.Error(t, in.MultAdd(make([]float64, n-1), make([]float64, n)))
	assert.Error(t, in.BatchedAssembleElementMatrices(NewElementMatrices(3, 4)))

	in.Free()
	assert.Equal(t, Uninitialized, in.State())
	_, err := New("advection", Config{Space: fs})
	assert.Error(t, err)
}

func TestLayoutDoesNotChangeResults(t *testing.T) {
	fs := newSpace(t, element.Rectangle, 2, 3, 3)
	plain := NewDiffusion(Config{Space: fs})
	require.NoError(t, plain.Setup())
	want := NewElementMatrices(plain.NumDofs(), plain.NumElements())
	require.NoError(t, plain.BatchedAssembleElementMatrices(want))

	layout, err := partition.NewBuilder(fs.Mesh, 3, partition.RoundRobin).Build()
	require.NoError(t, err)
	split := NewDiffusion(Config{Space: fs, Layout: layout})
	require.NoError(t, split.Setup())
	got := NewElementMatrices(split.NumDofs(), split.NumElements())
	require.NoError(t, split.BatchedAssembleElementMatrices(got))
	assertMatricesClose(t, want, got, 1.e-13)
}

func TestLayoutDoesNotChangeMultAdd(t *testing.T) {
	fs := newSpace(t, element.Hex, 2, 2, 2, 3)
	require.NoError(t, fs.Mesh.Distort(skew(3), []float64{0, 0, 0}))
	layout, err := partition.NewBuilder(fs.Mesh, 5, partition.RoundRobin).Build()
	require.NoError(t, err)
	// round robin over 12 elements is a real permutation of the batch order
	require.NotEqual(t, []int{0, 1, 2}, layout.Order[:3])

	rng := rand.New(rand.NewSource(17))
	n := fs.ElementVectorSize()
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64() - 0.5
	}
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			plain, err := New(name, Config{Space: fs})
			require.NoError(t, err)
			require.NoError(t, plain.Setup())
			want := make([]float64, n)
			require.NoError(t, plain.MultAdd(x, want))

			split, err := New(name, Config{Space: fs, Layout: layout})
			require.NoError(t, err)
			require.NoError(t, split.Setup())
			got := make([]float64, n)
			require.NoError(t, split.Apply(x, got))
			assert.InDeltaSlice(t, want, got, 1.e-13)
		})
	}
}

// hostDevice keeps "device" buffers in host memory and counts the live ones
type hostDevice struct {
	cpu  *tensor.CPUInterpreted
	live int
}

type hostBuffer struct {
	data []float64
	dev  *hostDevice
}

func (b *hostBuffer) Len() int { return len(b.data) }
func (b *hostBuffer) Upload(src []float64, offset int) error {
	copy(b.data[offset:], src)
	return nil
}
func (b *hostBuffer) Download(dst []float64, offset int) error {
	copy(dst, b.data[offset:])
	return nil
}
func (b *hostBuffer) Free() { b.dev.live-- }

func (d *hostDevice) Allocate(n int) (tensor.DeviceBuffer, error) {
	d.live++
	return &hostBuffer{data: make([]float64, n), dev: d}, nil
}

func (d *hostDevice) Name() string                     { return "host-device" }
func (d *hostDevice) Allocator() tensor.Allocator      { return d }
func (d *hostDevice) BeginBatch()                      {}
func (d *hostDevice) EndBatch() error                  { return nil }
func (d *hostDevice) Contract(b *tensor.Binding) error { return errors.New("no contractions") }

func (d *hostDevice) Det(det, a *tensor.Tensor) error {
	if err := a.MoveFromDevice(); err != nil {
		return err
	}
	if err := d.cpu.Det(det, a); err != nil {
		return err
	}
	return det.MoveToDevice()
}

func (d *hostDevice) InvDet(inv, det, a *tensor.Tensor) error {
	if err := a.MoveFromDevice(); err != nil {
		return err
	}
	if err := d.cpu.InvDet(inv, det, a); err != nil {
		return err
	}
	if err := inv.MoveToDevice(); err != nil {
		return err
	}
	return det.MoveToDevice()
}

func TestDegenerateGeometryReleasesDeviceMemory(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			fs := newSpace(t, element.Rectangle, 1, 2, 2)
			require.NoError(t, fs.Mesh.Distort(mat.NewDense(2, 2, []float64{1, 1, 1, 1}), []float64{0, 0}))
			dev := &hostDevice{cpu: tensor.NewCPUInterpreted()}
			in, err := New(name, Config{Space: fs, Engine: tensor.NewEngine(dev)})
			require.NoError(t, err)
			require.NoError(t, in.Setup())
			afterSetup := dev.live
			assert.Greater(t, afterSetup, 0)

			err = in.BatchedPartialAssemble()
			assert.True(t, errors.Is(err, ErrDegenerateGeometry), "got %v", err)
			assert.Equal(t, afterSetup, dev.live)

			in.Free()
			assert.Equal(t, 0, dev.live)
		})
	}
}

func TestVariableCoefficient(t *testing.T) {
	coeff := FunctionCoefficient(func(x []float64) float64 { return 1 + x[0] + 2*x[1] })
	fs := newSpace(t, element.Rectangle, 2, 2, 2)
	for _, name := range Names() {
		in, err := New(name, Config{Space: fs, Coefficient: coeff, RuleOrder: 8})
		require.NoError(t, err)
		require.NoError(t, in.Setup())
		got := NewElementMatrices(in.NumDofs(), in.NumElements())
		require.NoError(t, in.BatchedAssembleElementMatrices(got))
		assertMatricesClose(t, directMatrices(t, fs, name == "diffusion", coeff), got, 1.e-11)
	}
}
