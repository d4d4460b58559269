package tensor

import (
	"fmt"
)

// storage is shared between a tensor and the views sliced out of it
type storage struct {
	host     []float64
	buf      DeviceBuffer
	onDevice bool
}

// Tensor is a dense row-major (last index fastest) array of float64.
// Views produced by Slice share storage, and device residency, with
// their parent.
type Tensor struct {
	dims    []int
	strides []int
	offset  int
	size    int
	st      *storage
}

// New allocates a zeroed tensor. No dims gives a scalar.
func New(dims ...int) *Tensor {
	size := 1
	for _, d := range dims {
		if d < 0 {
			panic(fmt.Sprintf("negative tensor extent in %v", dims))
		}
		size *= d
	}
	return &Tensor{
		dims:    append([]int(nil), dims...),
		strides: rowMajorStrides(dims),
		size:    size,
		st:      &storage{host: make([]float64, size)},
	}
}

// FromSlice wraps data, which must hold exactly prod(dims) values
func FromSlice(data []float64, dims ...int) *Tensor {
	size := 1
	for _, d := range dims {
		size *= d
	}
	if len(data) != size {
		panic(fmt.Sprintf("data length %d does not match dims %v", len(data), dims))
	}
	return &Tensor{
		dims:    append([]int(nil), dims...),
		strides: rowMajorStrides(dims),
		size:    size,
		st:      &storage{host: data},
	}
}

func rowMajorStrides(dims []int) []int {
	strides := make([]int, len(dims))
	s := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = s
		s *= dims[i]
	}
	return strides
}

func (t *Tensor) Dims() []int    { return t.dims }
func (t *Tensor) Strides() []int { return t.strides }
func (t *Tensor) Rank() int      { return len(t.dims) }
func (t *Tensor) Size() int      { return t.size }

// Offset is the position of the first value within the shared storage
func (t *Tensor) Offset() int { return t.offset }

// Dim returns extent i
func (t *Tensor) Dim(i int) int { return t.dims[i] }

// Data is the host view of this tensor's values
func (t *Tensor) Data() []float64 {
	return t.st.host[t.offset : t.offset+t.size]
}

// Storage is the full host array shared with parent and sibling views
func (t *Tensor) Storage() []float64 { return t.st.host }

func (t *Tensor) index(idx []int) int {
	if len(idx) != len(t.dims) {
		panic(fmt.Sprintf("index rank %d, tensor rank %d", len(idx), len(t.dims)))
	}
	off := t.offset
	for i, v := range idx {
		if v < 0 || v >= t.dims[i] {
			panic(fmt.Sprintf("index %v out of range for dims %v", idx, t.dims))
		}
		off += v * t.strides[i]
	}
	return off
}

func (t *Tensor) At(idx ...int) float64 { return t.st.host[t.index(idx)] }

func (t *Tensor) Set(v float64, idx ...int) { t.st.host[t.index(idx)] = v }

func (t *Tensor) Add(v float64, idx ...int) { t.st.host[t.index(idx)] += v }

// Zero clears the host values
func (t *Tensor) Zero() {
	data := t.Data()
	for i := range data {
		data[i] = 0
	}
}

// Slice returns sub-tensor i along the leading dimension, sharing storage
func (t *Tensor) Slice(i int) *Tensor {
	if len(t.dims) == 0 {
		panic("cannot slice a scalar")
	}
	if i < 0 || i >= t.dims[0] {
		panic(fmt.Sprintf("slice %d out of range [0,%d)", i, t.dims[0]))
	}
	return &Tensor{
		dims:    t.dims[1:],
		strides: t.strides[1:],
		offset:  t.offset + i*t.strides[0],
		size:    t.size / t.dims[0],
		st:      t.st,
	}
}

// Reshape returns a view with new dims over the same values
func (t *Tensor) Reshape(dims ...int) *Tensor {
	size := 1
	for _, d := range dims {
		size *= d
	}
	if size != t.size {
		panic(fmt.Sprintf("cannot reshape %v to %v", t.dims, dims))
	}
	return &Tensor{
		dims:    append([]int(nil), dims...),
		strides: rowMajorStrides(dims),
		offset:  t.offset,
		size:    size,
		st:      t.st,
	}
}

// Overlaps reports whether two tensors share any storage location
func (t *Tensor) Overlaps(o *Tensor) bool {
	if t.st != o.st || t.size == 0 || o.size == 0 {
		return false
	}
	return t.offset < o.offset+o.size && o.offset < t.offset+t.size
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.dims)
}
