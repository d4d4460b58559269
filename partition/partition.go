package partition

import (
	"fmt"
)

// Strategy defines how elements are grouped
type Strategy int

const (
	BlockPartition Strategy = iota // Consecutive elements
	RoundRobin                     // Distribute cyclically
	GraphPartition                 // METIS k-way on the face graph
)

func (s Strategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case GraphPartition:
		return "metis"
	}
	return "unknown"
}

// ParseStrategy maps a strategy name to its value
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{BlockPartition, RoundRobin, GraphPartition} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// Layout is the element decomposition used for batched execution. Batch
// position b holds element Order[b]; partition p owns batch positions
// [Offsets[p], Offsets[p+1]), K[p] of them.
type Layout struct {
	NumPartitions int
	K             []int
	KpartMax      int // max(K), the @inner extent on the device
	EToP          []int
	Order         []int
	Offsets       []int
}

// TotalElements returns the sum of all K values
func (l *Layout) TotalElements() int {
	total := 0
	for _, k := range l.K {
		total += k
	}
	return total
}

// GetPartition returns the partition containing element k
func (l *Layout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(l.EToP) {
		return -1
	}
	return l.EToP[elementID]
}

// Validate checks partition consistency
func (l *Layout) Validate() error {
	if l.NumPartitions != len(l.K) || len(l.Offsets) != l.NumPartitions+1 {
		return fmt.Errorf("partition count %d, %d K values, %d offsets",
			l.NumPartitions, len(l.K), len(l.Offsets))
	}
	actualMax := 0
	for p, k := range l.K {
		if k > actualMax {
			actualMax = k
		}
		if l.Offsets[p+1]-l.Offsets[p] != k {
			return fmt.Errorf("partition %d: offsets span %d elements, K=%d",
				p, l.Offsets[p+1]-l.Offsets[p], k)
		}
	}
	if actualMax != l.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, l.KpartMax)
	}
	n := l.TotalElements()
	if len(l.Order) != n || len(l.EToP) != n {
		return fmt.Errorf("%d elements in partitions, order has %d, EToP has %d",
			n, len(l.Order), len(l.EToP))
	}
	seen := make([]bool, n)
	for b, e := range l.Order {
		if e < 0 || e >= n || seen[e] {
			return fmt.Errorf("element order is not a permutation at position %d", b)
		}
		seen[e] = true
		p := l.partitionOf(b)
		if l.EToP[e] != p {
			return fmt.Errorf("element %d at batch position %d is in partition %d, EToP says %d",
				e, b, p, l.EToP[e])
		}
	}
	return nil
}

func (l *Layout) partitionOf(b int) int {
	for p := 0; p < l.NumPartitions; p++ {
		if b < l.Offsets[p+1] {
			return p
		}
	}
	return -1
}

// Single is the trivial layout: one partition, natural element order
func Single(numElements int) *Layout {
	eToP := make([]int, numElements)
	return FromEToP(eToP, 1)
}

// FromEToP builds a layout from an element to partition assignment.
// Elements keep their relative order inside a partition.
func FromEToP(eToP []int, numPartitions int) *Layout {
	l := &Layout{
		NumPartitions: numPartitions,
		K:             make([]int, numPartitions),
		EToP:          append([]int(nil), eToP...),
		Offsets:       make([]int, numPartitions+1),
	}
	for _, p := range eToP {
		l.K[p]++
	}
	for p, k := range l.K {
		l.Offsets[p+1] = l.Offsets[p] + k
		if k > l.KpartMax {
			l.KpartMax = k
		}
	}
	l.Order = make([]int, len(eToP))
	next := append([]int(nil), l.Offsets[:numPartitions]...)
	for e, p := range eToP {
		l.Order[next[p]] = e
		next[p]++
	}
	return l
}
