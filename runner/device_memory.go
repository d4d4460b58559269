package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/PAKernel/tensor"
	"github.com/notargets/gocca"
)

const realSize = 8

// deviceBuffer is float64 storage in OCCA device memory
type deviceBuffer struct {
	mem *gocca.OCCAMemory
	n   int
}

// Allocate hands out device memory for n values
func (kr *Runner) Allocate(n int) (tensor.DeviceBuffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot allocate %d values", n)
	}
	bytes := int64(n) * realSize
	if bytes == 0 {
		bytes = realSize
	}
	mem := kr.Device.Malloc(bytes, nil, nil)
	if mem == nil {
		return nil, fmt.Errorf("device allocation of %d bytes failed", bytes)
	}
	return &deviceBuffer{mem: mem, n: n}, nil
}

func (db *deviceBuffer) Len() int { return db.n }

func (db *deviceBuffer) check(what string, count, offset int) error {
	if db.mem == nil {
		return fmt.Errorf("%s on freed device memory: %w", what, tensor.ErrResidency)
	}
	if offset < 0 || offset+count > db.n {
		return fmt.Errorf("%s of %d values at offset %d overruns %d", what, count, offset, db.n)
	}
	return nil
}

func (db *deviceBuffer) Upload(src []float64, offset int) error {
	if err := db.check("upload", len(src), offset); err != nil {
		return err
	}
	if len(src) == 0 {
		return nil
	}
	bytes := int64(len(src)) * realSize
	if offset == 0 {
		db.mem.CopyFrom(unsafe.Pointer(&src[0]), bytes)
	} else {
		db.mem.CopyFromWithOffset(unsafe.Pointer(&src[0]), bytes, int64(offset)*realSize)
	}
	return nil
}

func (db *deviceBuffer) Download(dst []float64, offset int) error {
	if err := db.check("download", len(dst), offset); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	bytes := int64(len(dst)) * realSize
	if offset == 0 {
		db.mem.CopyTo(unsafe.Pointer(&dst[0]), bytes)
	} else {
		db.mem.CopyToWithOffset(unsafe.Pointer(&dst[0]), bytes, int64(offset)*realSize)
	}
	return nil
}

func (db *deviceBuffer) Free() {
	if db.mem != nil {
		db.mem.Free()
		db.mem = nil
	}
}
