package runner

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/integrator"
	"github.com/notargets/PAKernel/mesh"
	"github.com/notargets/PAKernel/partition"
	"github.com/notargets/PAKernel/runner/builder"
	"github.com/notargets/PAKernel/tensor"
	"github.com/notargets/PAKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Creation(t *testing.T) {
	t.Run("NilDevice", func(t *testing.T) {
		assert.Panics(t, func() { NewRunner(nil, builder.Config{K: []int{10}}) })
	})
	t.Run("EmptyKArray", func(t *testing.T) {
		device := utils.CreateTestDevice()
		defer device.Free()
		assert.Panics(t, func() { NewRunner(device, builder.Config{K: []int{}}) })
	})
	t.Run("Partitions", func(t *testing.T) {
		device := utils.CreateTestDevice()
		defer device.Free()
		kr := NewRunner(device, builder.Config{K: []int{3, 5, 2}, IntType: builder.INT32})
		defer kr.Free()
		assert.Equal(t, 3, kr.NumPartitions)
		assert.Equal(t, 5, kr.KpartMax)
		assert.Equal(t, []int{0, 3, 8}, kr.Koffset)
		assert.Equal(t, 10, kr.GetTotalElements())
		assert.Contains(t, kr.KernelPreamble, "#define NPART 3")
		assert.Contains(t, kr.KernelPreamble, "typedef int int_t;")
	})
}

func TestKernelSource(t *testing.T) {
	kb := builder.NewBuilder(builder.Config{K: []int{2, 2}})
	// Y_e_i += B_k_i X_e_k with e of extent 4
	cs := builder.ContractionSpec{
		Extents:   []int{4, 3, 5},
		NumOutput: 2,
		Batch:     0,
		Out:       builder.Access{Strides: []int{3, 1, 0}},
		Inputs: []builder.Access{
			{Strides: []int{0, 1, 3}},
			{Offset: 7, Strides: []int{5, 0, 1}},
		},
		Accumulate: true,
	}
	src := kb.ContractionKernel("k", cs)
	assert.True(t, kb.Parallel(cs))
	assert.Contains(t, src, "@outer")
	assert.Contains(t, src, "const int_t e = Koffset[part] + elem;")
	assert.Contains(t, src, "IN1[7 + 5*e + 1*L2]")
	assert.Contains(t, src, "OUT[0 + 3*e + 1*L1] += acc;")
	assert.NotContains(t, src, "for (int_t L0")

	cs.Extents[0] = 3
	assert.False(t, kb.Parallel(cs))

	ms := kb.MatrixKernel("m", builder.MatrixSpec{N: 3, Count: 12, Inverse: true})
	assert.Contains(t, ms, "for (int_t q = 0; q < 3; ++q)")
	assert.Equal(t, 9, strings.Count(ms, "inv["))
}

func randomTensor(rng *rand.Rand, dims ...int) *tensor.Tensor {
	t := tensor.New(dims...)
	for i := range t.Data() {
		t.Data()[i] = rng.Float64() - 0.5
	}
	return t
}

func TestContractMatchesCPU(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()
	kr := NewRunner(device, builder.Config{K: []int{3, 1, 2}})
	defer kr.Free()
	gpu := tensor.NewEngine(kr)
	cpu := tensor.NewEngine(nil)
	rng := rand.New(rand.NewSource(11))

	B := randomTensor(rng, 4, 3)
	X := randomTensor(rng, 6, 3, 3)
	D := randomTensor(rng, 6, 4, 4)
	exprs := []struct {
		expr   string
		out    []int
		inputs []*tensor.Tensor
	}{
		{"T_e_k1_j2 = B_k1_j1 X_e_j1_j2", []int{6, 4, 3}, []*tensor.Tensor{B, X}},
		{"S_e_k1_k2 = D_e_k1_k2 B_k1_j1 B_k2_j2 X_e_j1_j2", []int{6, 4, 4}, []*tensor.Tensor{D, B, B, X}},
		{"N_k = B_k_i B_k_i", []int{4}, []*tensor.Tensor{B, B}},
		{"F_i = X_e_i_j", []int{3}, []*tensor.Tensor{X}},
	}
	// host references first: mapped operands are refused by the CPU engine
	wants := make([]*tensor.Tensor, len(exprs))
	for i, tt := range exprs {
		wants[i] = tensor.New(tt.out...)
		require.NoError(t, cpu.Contract(tt.expr, wants[i], tt.inputs...))
	}
	for i, tt := range exprs {
		want := wants[i]
		t.Run(tt.expr, func(t *testing.T) {
			got := tensor.New(tt.out...)
			require.NoError(t, got.SwitchToDevice(kr))
			for _, in := range tt.inputs {
				require.NoError(t, in.MapToDevice(kr))
			}
			require.NoError(t, gpu.Contract(tt.expr, got, tt.inputs...))
			require.NoError(t, got.MoveFromDevice())
			assert.InDeltaSlice(t, want.Data(), got.Data(), 1.e-13)
		})
	}

	// accumulation into a slice of a device tensor
	Y := tensor.New(2, 6, 3, 3)
	require.NoError(t, Y.MapToDevice(kr))
	y1 := Y.Slice(1)
	require.NoError(t, gpu.Contract("Y_e_i_j += X_e_i_j", y1, X))
	require.NoError(t, gpu.Contract("Y_e_i_j += X_e_i_j", y1, X))
	require.NoError(t, Y.MoveFromDevice())
	for i, v := range X.Data() {
		assert.InDelta(t, 2*v, y1.Data()[i], 1.e-14)
		assert.Equal(t, 0., Y.Slice(0).Data()[i])
	}
}

func TestBatchMatrixInvDetMatchesCPU(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()
	kr := NewRunner(device, builder.Config{K: []int{2, 3}})
	defer kr.Free()
	gpu := tensor.NewEngine(kr)
	cpu := tensor.NewEngine(nil)
	rng := rand.New(rand.NewSource(5))

	for n := 1; n <= 3; n++ {
		A := randomTensor(rng, 5, 4, n, n)
		for b := 0; b < 20; b++ {
			for i := 0; i < n; i++ {
				A.Data()[(b*n+i)*n+i] += 3
			}
		}
		wantDet, wantInv := tensor.New(5, 4), tensor.New(5, 4, n, n)
		require.NoError(t, cpu.BatchMatrixInvDet(wantInv, wantDet, A))

		det, inv := tensor.New(5, 4), tensor.New(5, 4, n, n)
		require.NoError(t, A.MapToDevice(kr))
		require.NoError(t, det.SwitchToDevice(kr))
		require.NoError(t, inv.SwitchToDevice(kr))
		require.NoError(t, gpu.BatchMatrixInvDet(inv, det, A))
		require.NoError(t, det.MoveFromDevice())
		require.NoError(t, inv.MoveFromDevice())
		assert.InDeltaSlice(t, wantDet.Data(), det.Data(), 1.e-12)
		assert.InDeltaSlice(t, wantInv.Data(), inv.Data(), 1.e-12)

		only := tensor.New(5, 4)
		require.NoError(t, only.SwitchToDevice(kr))
		require.NoError(t, gpu.BatchMatrixDet(only, A))
		require.NoError(t, only.MoveFromDevice())
		assert.InDeltaSlice(t, wantDet.Data(), only.Data(), 1.e-12)
	}
}

func TestHostOperandRejected(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()
	kr := NewRunner(device, builder.Config{K: []int{4}})
	defer kr.Free()
	gpu := tensor.NewEngine(kr)
	out := tensor.New(4)
	require.NoError(t, out.SwitchToDevice(kr))
	err := gpu.Contract("O_e = I_e", out, tensor.New(4))
	assert.True(t, errors.Is(err, tensor.ErrResidency), "got %v", err)

	// batch extent must match the partitioned elements
	in := tensor.New(3)
	short := tensor.New(3)
	require.NoError(t, in.MapToDevice(kr))
	require.NoError(t, short.SwitchToDevice(kr))
	assert.Error(t, gpu.Contract("O_e = I_e", short, in))
}

func TestIntegratorOnDeviceMatchesCPU(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()
	m, err := mesh.NewBoxMesh(element.Hex, []int{2, 2, 2}, []float64{1, 2, 1})
	require.NoError(t, err)
	fs, err := mesh.NewFESpace(m, 2)
	require.NoError(t, err)
	layout, err := partition.NewBuilder(m, 3, partition.BlockPartition).Build()
	require.NoError(t, err)
	kr := NewRunner(device, builder.Config{K: layout.K})
	defer kr.Free()

	rng := rand.New(rand.NewSource(9))
	n := fs.ElementVectorSize()
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64()
	}
	for _, name := range integrator.Names() {
		t.Run(name, func(t *testing.T) {
			host, err := integrator.New(name, integrator.Config{Space: fs})
			require.NoError(t, err)
			require.NoError(t, host.Setup())
			want := make([]float64, n)
			require.NoError(t, host.MultAdd(x, want))

			dev, err := integrator.New(name, integrator.Config{
				Space: fs, Engine: tensor.NewEngine(kr), Layout: layout,
			})
			require.NoError(t, err)
			require.NoError(t, dev.Setup())
			defer dev.Free()
			got := make([]float64, n)
			require.NoError(t, dev.MultAdd(x, got))
			assert.InDeltaSlice(t, want, got, 1.e-11)

			wantM := integrator.NewElementMatrices(host.NumDofs(), host.NumElements())
			require.NoError(t, host.BatchedAssembleElementMatrices(wantM))
			gotM := integrator.NewElementMatrices(dev.NumDofs(), dev.NumElements())
			require.NoError(t, dev.BatchedAssembleElementMatrices(gotM))
			assert.InDeltaSlice(t, wantM.Data, gotM.Data, 1.e-11)
		})
	}
}

func TestCopyPartitionToHost(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()
	kr := NewRunner(device, builder.Config{K: []int{2, 1, 3}})
	defer kr.Free()
	gpu := tensor.NewEngine(kr)

	X := tensor.New(6, 2)
	for i := range X.Data() {
		X.Data()[i] = float64(i)
	}
	Y := tensor.New(6, 2)
	require.NoError(t, X.MapToDevice(kr))
	require.NoError(t, Y.SwitchToDevice(kr))
	require.NoError(t, gpu.Contract("Y_e_i = X_e_i", Y, X))

	part, err := kr.CopyPartitionToHost(Y, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 7, 8, 9, 10, 11}, part)
	_, err = kr.CopyPartitionToHost(Y, 3)
	assert.Error(t, err)

	require.NoError(t, kr.CopyArrayToHost(Y))
	assert.Equal(t, X.Data(), Y.Data())
}
