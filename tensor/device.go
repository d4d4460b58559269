package tensor

import "fmt"

// DeviceBuffer is device memory backing a tensor's storage. Offsets and
// lengths are in values, not bytes.
type DeviceBuffer interface {
	Len() int
	Upload(src []float64, offset int) error
	Download(dst []float64, offset int) error
	Free()
}

// Allocator hands out device buffers
type Allocator interface {
	Allocate(n int) (DeviceBuffer, error)
}

// IsOnDevice reports whether the authoritative copy lives in device memory
func (t *Tensor) IsOnDevice() bool { return t.st.onDevice }

// DeviceBuffer returns the device memory of the shared storage, nil if
// nothing has been allocated
func (t *Tensor) DeviceBuffer() DeviceBuffer { return t.st.buf }

func (t *Tensor) allocate(alloc Allocator) error {
	if t.st.buf != nil {
		return nil
	}
	if alloc == nil {
		return fmt.Errorf("%w: no device allocator", ErrResidency)
	}
	buf, err := alloc.Allocate(len(t.st.host))
	if err != nil {
		return fmt.Errorf("allocating %v on device: %w", t.dims, err)
	}
	t.st.buf = buf
	return nil
}

// MapToDevice allocates device memory for the storage and uploads the
// current host values
func (t *Tensor) MapToDevice(alloc Allocator) error {
	if err := t.allocate(alloc); err != nil {
		return err
	}
	t.st.onDevice = true
	return t.st.buf.Upload(t.st.host, 0)
}

// SwitchToDevice allocates device memory without copying; used for
// tensors that are written on the device before being read
func (t *Tensor) SwitchToDevice(alloc Allocator) error {
	if err := t.allocate(alloc); err != nil {
		return err
	}
	t.st.onDevice = true
	return nil
}

// MoveToDevice copies this tensor's host values to the device
func (t *Tensor) MoveToDevice() error {
	if t.st.buf == nil {
		return fmt.Errorf("%w: %v has no device memory", ErrResidency, t.dims)
	}
	return t.st.buf.Upload(t.Data(), t.offset)
}

// MoveFromDevice copies this tensor's device values back to the host
func (t *Tensor) MoveFromDevice() error {
	if t.st.buf == nil {
		return fmt.Errorf("%w: %v has no device memory", ErrResidency, t.dims)
	}
	return t.st.buf.Download(t.Data(), t.offset)
}

// FreeDevice releases device memory; the host copy becomes authoritative
func (t *Tensor) FreeDevice() {
	if t.st.buf != nil {
		t.st.buf.Free()
		t.st.buf = nil
	}
	t.st.onDevice = false
}
