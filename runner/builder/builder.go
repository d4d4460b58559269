package builder

import (
	"fmt"
	"strings"
)

// DataType selects the integer width used for partition tables on the device
type DataType int

const (
	INT32 DataType = iota + 1
	INT64
)

// Builder generates partition-parallel kernel source for one element
// decomposition
type Builder struct {
	// Partition configuration
	NumPartitions int
	K             []int
	KpartMax      int   // Maximum K value across all partitions
	Koffset       []int // first batch position of each partition

	IntType DataType

	// Generated code
	KernelPreamble string
}

// Config holds configuration for creating a Builder
type Config struct {
	K       []int
	IntType DataType
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	if len(cfg.K) == 0 {
		panic("K array cannot be empty")
	}
	kpartMax := 0
	koffset := make([]int, len(cfg.K))
	total := 0
	for p, k := range cfg.K {
		if k < 0 {
			panic(fmt.Sprintf("negative partition size K[%d] = %d", p, k))
		}
		koffset[p] = total
		total += k
		if k > kpartMax {
			kpartMax = k
		}
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}
	kb := &Builder{
		NumPartitions: len(cfg.K),
		K:             make([]int, len(cfg.K)),
		KpartMax:      kpartMax,
		Koffset:       koffset,
		IntType:       intType,
	}
	copy(kb.K, cfg.K)
	return kb
}

// GetTotalElements returns the sum of all K values
func (kb *Builder) GetTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// GetIntSize returns the size of the integer type in bytes
func (kb *Builder) GetIntSize() int {
	if kb.IntType == INT32 {
		return 4
	}
	return 8
}

// GeneratePreamble generates the type definitions and partition constants
// every kernel is compiled with
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder
	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}
	sb.WriteString("typedef double real_t;\n")
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", intTypeStr))
	sb.WriteString("#define REAL_ZERO 0.0\n")
	sb.WriteString("#define REAL_ONE 1.0\n")
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))
	sb.WriteString(fmt.Sprintf("#define NELEM %d\n", kb.GetTotalElements()))
	sb.WriteString("\n")
	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// PartitionTables returns K and Koffset in the device integer width
func (kb *Builder) PartitionTables() (k, koffset interface{}) {
	if kb.IntType == INT32 {
		k32, o32 := make([]int32, kb.NumPartitions), make([]int32, kb.NumPartitions)
		for p := range kb.K {
			k32[p], o32[p] = int32(kb.K[p]), int32(kb.Koffset[p])
		}
		return k32, o32
	}
	k64, o64 := make([]int64, kb.NumPartitions), make([]int64, kb.NumPartitions)
	for p := range kb.K {
		k64[p], o64[p] = int64(kb.K[p]), int64(kb.Koffset[p])
	}
	return k64, o64
}
