package runner

import (
	"fmt"
	"hash/fnv"
	"unsafe"

	"github.com/notargets/PAKernel/runner/builder"
	"github.com/notargets/PAKernel/tensor"
	"github.com/notargets/gocca"
)

// Runner executes contractions as generated OCCA kernels. It satisfies
// tensor.Executor and tensor.Allocator, so an engine built on it keeps
// every operand in device memory.
type Runner struct {
	*builder.Builder
	Device       *gocca.OCCADevice
	Kernels      map[string]*gocca.OCCAKernel // keyed by kernel source
	PooledMemory map[string]*gocca.OCCAMemory
	batching     bool
	pending      int
}

// NewRunner creates a new Runner instance
func NewRunner(device *gocca.OCCADevice, Config builder.Config) (kr *Runner) {
	if device == nil {
		panic("runner needs a device")
	}
	bld := builder.NewBuilder(Config)

	if bld.KpartMax > 1048576 { // 2^20 elements
		panic(fmt.Sprintf("KpartMax exceeds 2^20 (1048576), usually caused by unbalanced workloads.\n"+
			"Found KpartMax=%d. Please balance K values or increase partition count.\n"+
			"Current K values: %v\n", bld.KpartMax, bld.K))
	}
	bld.GeneratePreamble()

	kr = &Runner{
		Builder:      bld,
		Device:       device,
		Kernels:      make(map[string]*gocca.OCCAKernel),
		PooledMemory: make(map[string]*gocca.OCCAMemory),
	}
	k, koffset := bld.PartitionTables()
	kr.PooledMemory["K"] = mallocInts(device, k)
	kr.PooledMemory["Koffset"] = mallocInts(device, koffset)
	return
}

func mallocInts(device *gocca.OCCADevice, ints interface{}) *gocca.OCCAMemory {
	switch v := ints.(type) {
	case []int32:
		return device.Malloc(int64(len(v)*4), unsafe.Pointer(&v[0]), nil)
	case []int64:
		return device.Malloc(int64(len(v)*8), unsafe.Pointer(&v[0]), nil)
	}
	panic(fmt.Sprintf("unsupported partition table type %T", ints))
}

func (kr *Runner) Name() string { return "occa-" + kr.Device.Mode() }

func (kr *Runner) Allocator() tensor.Allocator { return kr }

// BuildKernel compiles a kernel against the runner preamble, reusing an
// earlier build of the same source
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	if kernel, ok := kr.Kernels[kernelSource]; ok {
		return kernel, nil
	}
	fullSource := kr.KernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error
	if kr.Device.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	kr.Kernels[kernelSource] = kernel
	return kernel, nil
}

func (kr *Runner) memoryOf(what string, t *tensor.Tensor) (*gocca.OCCAMemory, error) {
	db, ok := t.DeviceBuffer().(*deviceBuffer)
	if !ok || db.mem == nil {
		return nil, fmt.Errorf("%s: operand %v is not in this runner's memory: %w",
			what, t.Dims(), tensor.ErrResidency)
	}
	return db.mem, nil
}

// launch runs a kernel; outside a multi-kernel scope it waits for it
func (kr *Runner) launch(kernel *gocca.OCCAKernel, args ...interface{}) error {
	all := append([]interface{}{kr.PooledMemory["K"], kr.PooledMemory["Koffset"]}, args...)
	if err := kernel.RunWithArgs(all...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	if kr.batching {
		kr.pending++
		return nil
	}
	kr.Device.Finish()
	return nil
}

func (kr *Runner) Contract(b *tensor.Binding) error {
	c := b.C
	cs := builder.ContractionSpec{
		Extents:    b.Extents,
		NumOutput:  c.NumOutput,
		Batch:      b.BatchAxis(),
		Out:        builder.Access{Offset: b.Out.Offset(), Strides: b.OutStrides},
		Inputs:     make([]builder.Access, len(b.Inputs)),
		Accumulate: c.Accumulate,
	}
	if cs.Batch >= 0 && cs.Batch < cs.NumOutput && !kr.Parallel(cs) {
		return fmt.Errorf("%q: batch extent %d does not match the %d partitioned elements",
			c.Expr, b.Extents[cs.Batch], kr.GetTotalElements())
	}
	args := make([]interface{}, 0, len(b.Inputs)+1)
	out, err := kr.memoryOf(c.Expr, b.Out)
	if err != nil {
		return err
	}
	args = append(args, out)
	for j, in := range b.Inputs {
		cs.Inputs[j] = builder.Access{Offset: in.Offset(), Strides: b.InStrides[j]}
		mem, err := kr.memoryOf(c.Expr, in)
		if err != nil {
			return err
		}
		args = append(args, mem)
	}
	kernel, err := kr.buildNamed(func(name string) string { return kr.ContractionKernel(name, cs) })
	if err != nil {
		return fmt.Errorf("%q: %w", c.Expr, err)
	}
	return kr.launch(kernel, args...)
}

// buildNamed generates a kernel under a name derived from its own text,
// so identical bindings share one compiled kernel
func (kr *Runner) buildNamed(gen func(name string) string) (*gocca.OCCAKernel, error) {
	h := fnv.New64a()
	h.Write([]byte(gen("pa")))
	name := fmt.Sprintf("pa_%016x", h.Sum64())
	return kr.BuildKernel(gen(name), name)
}

func (kr *Runner) matrixKernel(det, inv, a *tensor.Tensor) error {
	n := a.Dim(a.Rank() - 1)
	ms := builder.MatrixSpec{
		N:         n,
		Count:     det.Size(),
		AOffset:   a.Offset(),
		DetOffset: det.Offset(),
		Inverse:   inv != nil,
	}
	if ms.Count == 0 {
		return nil
	}
	what := "BatchMatrixDet"
	args := make([]interface{}, 0, 3)
	dm, err := kr.memoryOf(what, det)
	if err != nil {
		return err
	}
	args = append(args, dm)
	if inv != nil {
		what = "BatchMatrixInvDet"
		ms.InvOffset = inv.Offset()
		im, err := kr.memoryOf(what, inv)
		if err != nil {
			return err
		}
		args = append(args, im)
	}
	am, err := kr.memoryOf(what, a)
	if err != nil {
		return err
	}
	args = append(args, am)

	kernel, err := kr.buildNamed(func(name string) string { return kr.MatrixKernel(name, ms) })
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return kr.launch(kernel, args...)
}

func (kr *Runner) Det(det, a *tensor.Tensor) error { return kr.matrixKernel(det, nil, a) }

func (kr *Runner) InvDet(inv, det, a *tensor.Tensor) error { return kr.matrixKernel(det, inv, a) }

func (kr *Runner) BeginBatch() {
	kr.batching = true
	kr.pending = 0
}

// EndBatch waits once for every launch queued since BeginBatch
func (kr *Runner) EndBatch() error {
	kr.batching = false
	if kr.pending > 0 {
		kr.Device.Finish()
	}
	kr.pending = 0
	return nil
}

// Free releases all resources
func (kr *Runner) Free() {
	for _, kernel := range kr.Kernels {
		kernel.Free()
	}
	for _, mem := range kr.PooledMemory {
		mem.Free()
	}
	kr.Kernels = make(map[string]*gocca.OCCAKernel)
	kr.PooledMemory = make(map[string]*gocca.OCCAMemory)
}

var _ tensor.Executor = (*Runner)(nil)
