package runner

import (
	"fmt"

	"github.com/notargets/PAKernel/tensor"
)

// CopyPartitionToHost copies one partition's elements of a device tensor
// batched along its leading dimension
func (kr *Runner) CopyPartitionToHost(t *tensor.Tensor, partitionID int) ([]float64, error) {
	if partitionID < 0 || partitionID >= kr.NumPartitions {
		return nil, fmt.Errorf("invalid partition ID: %d", partitionID)
	}
	if t.Rank() == 0 || t.Dim(0) != kr.GetTotalElements() {
		return nil, fmt.Errorf("tensor %v is not batched over %d elements", t.Dims(), kr.GetTotalElements())
	}
	buf := t.DeviceBuffer()
	if buf == nil {
		return nil, fmt.Errorf("tensor %v has no device memory: %w", t.Dims(), tensor.ErrResidency)
	}
	per := t.Size() / t.Dim(0)
	result := make([]float64, kr.K[partitionID]*per)
	offset := t.Offset() + kr.Koffset[partitionID]*per
	if err := buf.Download(result, offset); err != nil {
		return nil, err
	}
	return result, nil
}

// CopyArrayToHost copies every partition of a device tensor back into its
// host storage, one partition at a time
func (kr *Runner) CopyArrayToHost(t *tensor.Tensor) error {
	data := t.Data()
	for p := 0; p < kr.NumPartitions; p++ {
		part, err := kr.CopyPartitionToHost(t, p)
		if err != nil {
			return err
		}
		per := t.Size() / t.Dim(0)
		copy(data[kr.Koffset[p]*per:], part)
	}
	return nil
}
