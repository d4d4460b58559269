package partition

import (
	"fmt"
	"log"

	metis "github.com/notargets/go-metis"
	"github.com/notargets/PAKernel/mesh"
)

// Builder constructs partition layouts from mesh connectivity
type Builder struct {
	Mesh            *mesh.Mesh
	NumPartitions   int
	Strategy        Strategy
	ImbalanceFactor float32 // METIS only, e.g. 1.05 for 5%
}

// NewBuilder returns a builder with the default imbalance tolerance
func NewBuilder(m *mesh.Mesh, numPartitions int, strategy Strategy) *Builder {
	return &Builder{
		Mesh:            m,
		NumPartitions:   numPartitions,
		Strategy:        strategy,
		ImbalanceFactor: 1.05,
	}
}

// Build partitions the mesh elements and validates the layout
func (pb *Builder) Build() (*Layout, error) {
	ne := pb.Mesh.NumElements
	if pb.NumPartitions < 1 || pb.NumPartitions > ne {
		return nil, fmt.Errorf("cannot split %d elements into %d partitions",
			ne, pb.NumPartitions)
	}
	var (
		eToP []int
		err  error
	)
	switch pb.Strategy {
	case BlockPartition:
		eToP = pb.blockPartition()
	case RoundRobin:
		eToP = make([]int, ne)
		for e := range eToP {
			eToP[e] = e % pb.NumPartitions
		}
	case GraphPartition:
		if eToP, err = pb.graphPartition(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown partition strategy %d", pb.Strategy)
	}

	layout := FromEToP(eToP, pb.NumPartitions)
	for p, k := range layout.K {
		if k == 0 {
			return nil, fmt.Errorf("partition %d received no elements", p)
		}
	}
	if err = layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

func (pb *Builder) blockPartition() []int {
	ne := pb.Mesh.NumElements
	eToP := make([]int, ne)
	base, extra := ne/pb.NumPartitions, ne%pb.NumPartitions
	e := 0
	for p := 0; p < pb.NumPartitions; p++ {
		n := base
		if p < extra {
			n++
		}
		for i := 0; i < n; i++ {
			eToP[e] = p
			e++
		}
	}
	return eToP
}

func (pb *Builder) graphPartition() ([]int, error) {
	ne := pb.Mesh.NumElements
	if pb.NumPartitions == 1 {
		return make([]int, ne), nil
	}
	if pb.Mesh.EToE == nil {
		pb.Mesh.BuildConnectivity()
	}
	xadj, adjncy := pb.buildMetisGraph()

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	opts[metis.OptionObjType] = metis.ObjTypeCut

	ubvec := []float32{pb.ImbalanceFactor}
	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, nil, nil,
		int32(pb.NumPartitions), nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	log.Printf("METIS split %d elements into %d partitions, edge cut %d",
		ne, pb.NumPartitions, objval)

	eToP := make([]int, ne)
	for i := range eToP {
		eToP[i] = int(part[i])
	}
	return eToP, nil
}

// buildMetisGraph converts face connectivity to METIS CSR form
func (pb *Builder) buildMetisGraph() (xadj, adjncy []int32) {
	ne := pb.Mesh.NumElements
	xadj = make([]int32, ne+1)
	for elem := 0; elem < ne; elem++ {
		for _, neighbor := range pb.Mesh.EToE[elem] {
			if neighbor >= 0 && neighbor != elem {
				adjncy = append(adjncy, int32(neighbor))
			}
		}
		xadj[elem+1] = int32(len(adjncy))
	}
	return
}
