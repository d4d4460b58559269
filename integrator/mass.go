package integrator

import (
	"github.com/notargets/PAKernel/element"
)

// MassIntegrator assembles (Q u, v) with D_e_k = W_k C_e_k Jdet_e_k
type MassIntegrator struct {
	*paKernel
}

var massPrograms = map[element.BasisKind]map[int]program{
	element.TensorBasis: {
		1: {
			assemble: "D_e_k1 = W_k1 C_e_k1 Jdet_e_k1",
			elmat:    "M_e_i1_j1 = B_k1_i1 B_k1_j1 D_e_k1",
			apply: []string{
				"T1_e_k1 = D_e_k1 B_k1_j1 X_e_j1",
				"Y_e_i1 += B_k1_i1 T1_e_k1",
			},
			temps: map[string]string{
				"D": "e q", "M": "e d d", "X": "e d", "Y": "e d",
				"T1": "e q",
			},
		},
		2: {
			assemble: "D_e_k1_k2 = W_k1_k2 C_e_k1_k2 Jdet_e_k1_k2",
			elmat:    "M_e_i1_i2_j1_j2 = B_k1_i1 B_k1_j1 B_k2_i2 B_k2_j2 D_e_k1_k2",
			apply: []string{
				"T1_e_j1_k2 = B_k2_j2 X_e_j1_j2",
				"T2_e_k1_k2 = D_e_k1_k2 B_k1_j1 T1_e_j1_k2",
				"T1_e_i1_k2 = B_k1_i1 T2_e_k1_k2",
				"Y_e_i1_i2 += B_k2_i2 T1_e_i1_k2",
			},
			temps: map[string]string{
				"D": "e q q", "M": "e d d d d", "X": "e d d", "Y": "e d d",
				"T1": "e d q", "T2": "e q q",
			},
		},
		3: {
			assemble: "D_e_k1_k2_k3 = W_k1_k2_k3 C_e_k1_k2_k3 Jdet_e_k1_k2_k3",
			elmat:    "M_e_i1_i2_i3_j1_j2_j3 = B_k1_i1 B_k1_j1 B_k2_i2 B_k2_j2 B_k3_i3 B_k3_j3 D_e_k1_k2_k3",
			apply: []string{
				"T3_e_j1_j2_k3 = B_k3_j3 X_e_j1_j2_j3",
				"T2_e_j1_k2_k3 = B_k2_j2 T3_e_j1_j2_k3",
				"T1_e_k1_k2_k3 = D_e_k1_k2_k3 B_k1_j1 T2_e_j1_k2_k3",
				"T2_e_i1_k2_k3 = B_k1_i1 T1_e_k1_k2_k3",
				"T3_e_i1_i2_k3 = B_k2_i2 T2_e_i1_k2_k3",
				"Y_e_i1_i2_i3 += B_k3_i3 T3_e_i1_i2_k3",
			},
			temps: map[string]string{
				"D": "e q q q", "M": "e d d d d d d", "X": "e d d d", "Y": "e d d d",
				"T1": "e q q q", "T2": "e d q q", "T3": "e d d q",
			},
		},
	},
	element.SimplexBasis: {
		2: simplexMass,
		3: simplexMass,
	},
}

var simplexMass = program{
	assemble: "D_e_k = W_k C_e_k Jdet_e_k",
	elmat:    "M_e_i_j = B_k_i B_k_j D_e_k",
	temps:    map[string]string{"D": "e k", "M": "e n n"},
}

// massRuleOrder: 2p on simplices, 2p+dim-1 on tensor elements
func massRuleOrder(dim, order int, basis element.BasisKind) int {
	if basis == element.SimplexBasis {
		return 2 * order
	}
	return 2*order + dim - 1
}

func NewMass(cfg Config) *MassIntegrator {
	return &MassIntegrator{&paKernel{
		name:         "mass",
		cfg:          cfg,
		table:        massPrograms,
		defaultOrder: massRuleOrder,
		elmatName:    "M",
	}}
}
