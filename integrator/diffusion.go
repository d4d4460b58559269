package integrator

import (
	"fmt"

	"github.com/notargets/PAKernel/element"
)

// DiffusionIntegrator assembles (Q grad u, grad v) with
// D_e_m_n_k = W_k C_e_k Jdet_e_k Jinv_e_k_m_j Jinv_e_k_n_j
type DiffusionIntegrator struct {
	*paKernel
}

var diffusionPrograms = map[element.BasisKind]map[int]program{
	element.TensorBasis: {
		1: {
			assemble: "D_e_m_n_k1 = W_k1 C_e_k1 Jdet_e_k1 Jinv_e_k1_m_j Jinv_e_k1_n_j",
			elmat:    "S_e_i1_j1 = Bt1_m_n_k1_i1_j1 D_e_m_n_k1",
			apply: []string{
				"U1_e_k1 = G_k1_i1 X_e_i1",
				"Z_m_e_k1 = D_e_m_n_k1 U_n_e_k1",
				"Y_e_i1 += G_k1_i1 Z1_e_k1",
			},
			temps: map[string]string{
				"D": "e D D q", "S": "e d d", "X": "e d", "Y": "e d",
				"U": "D e q", "Z": "D e q",
			},
		},
		2: {
			assemble: "D_e_m_n_k1_k2 = W_k1_k2 C_e_k1_k2 Jdet_e_k1_k2 Jinv_e_k1_k2_m_j Jinv_e_k1_k2_n_j",
			elmat:    "S_e_i1_i2_j1_j2 = Bt1_m_n_k1_i1_j1 Bt2_m_n_k2_i2_j2 D_e_m_n_k1_k2",
			apply: []string{
				"T1_e_i1_k2 = B_k2_i2 X_e_i1_i2",
				"U1_e_k1_k2 = G_k1_i1 T1_e_i1_k2",
				"T1_e_i1_k2 = G_k2_i2 X_e_i1_i2",
				"U2_e_k1_k2 = B_k1_i1 T1_e_i1_k2",
				"Z_m_e_k1_k2 = D_e_m_n_k1_k2 U_n_e_k1_k2",
				"T1_e_i1_k2 = G_k1_i1 Z1_e_k1_k2",
				"Y_e_i1_i2 += B_k2_i2 T1_e_i1_k2",
				"T1_e_i1_k2 = B_k1_i1 Z2_e_k1_k2",
				"Y_e_i1_i2 += G_k2_i2 T1_e_i1_k2",
			},
			temps: map[string]string{
				"D": "e D D q q", "S": "e d d d d", "X": "e d d", "Y": "e d d",
				"T1": "e d q", "U": "D e q q", "Z": "D e q q",
			},
		},
		3: {
			assemble: "D_e_m_n_k1_k2_k3 = W_k1_k2_k3 C_e_k1_k2_k3 Jdet_e_k1_k2_k3 " +
				"Jinv_e_k1_k2_k3_m_j Jinv_e_k1_k2_k3_n_j",
			elmat: "S_e_i1_i2_i3_j1_j2_j3 = Bt1_m_n_k1_i1_j1 Bt2_m_n_k2_i2_j2 Bt3_m_n_k3_i3_j3 " +
				"D_e_m_n_k1_k2_k3",
			apply: []string{
				"T2_e_i1_i2_k3 = B_k3_i3 X_e_i1_i2_i3",
				"T1_e_i1_k2_k3 = B_k2_i2 T2_e_i1_i2_k3",
				"U1_e_k1_k2_k3 = G_k1_i1 T1_e_i1_k2_k3",
				"T1_e_i1_k2_k3 = G_k2_i2 T2_e_i1_i2_k3",
				"U2_e_k1_k2_k3 = B_k1_i1 T1_e_i1_k2_k3",
				"T2_e_i1_i2_k3 = G_k3_i3 X_e_i1_i2_i3",
				"T1_e_i1_k2_k3 = B_k2_i2 T2_e_i1_i2_k3",
				"U3_e_k1_k2_k3 = B_k1_i1 T1_e_i1_k2_k3",
				"Z_m_e_k1_k2_k3 = D_e_m_n_k1_k2_k3 U_n_e_k1_k2_k3",
				"T1_e_i1_k2_k3 = G_k1_i1 Z1_e_k1_k2_k3",
				"T2_e_i1_i2_k3 = B_k2_i2 T1_e_i1_k2_k3",
				"Y_e_i1_i2_i3 += B_k3_i3 T2_e_i1_i2_k3",
				"T1_e_i1_k2_k3 = B_k1_i1 Z2_e_k1_k2_k3",
				"T2_e_i1_i2_k3 = G_k2_i2 T1_e_i1_k2_k3",
				"Y_e_i1_i2_i3 += B_k3_i3 T2_e_i1_i2_k3",
				"T1_e_i1_k2_k3 = B_k1_i1 Z3_e_k1_k2_k3",
				"T2_e_i1_i2_k3 = B_k2_i2 T1_e_i1_k2_k3",
				"Y_e_i1_i2_i3 += G_k3_i3 T2_e_i1_i2_k3",
			},
			temps: map[string]string{
				"D": "e D D q q q", "S": "e d d d d d d", "X": "e d d d", "Y": "e d d d",
				"T1": "e d q q", "T2": "e d d q", "U": "D e q q q", "Z": "D e q q q",
			},
		},
	},
	element.SimplexBasis: {
		2: simplexDiffusion,
		3: simplexDiffusion,
	},
}

var simplexDiffusion = program{
	assemble: "D_e_m_n_k = W_k C_e_k Jdet_e_k Jinv_e_k_m_j Jinv_e_k_n_j",
	elmat:    "S_e_i_j = G_k_i_m G_k_j_n D_e_m_n_k",
	temps:    map[string]string{"D": "e D D k", "S": "e n n"},
}

func diffusionRuleOrder(dim, order int, basis element.BasisKind) int {
	if basis == element.SimplexBasis {
		if order < 1 {
			return 0
		}
		return 2*order - 2
	}
	return 2*order + dim - 1
}

func NewDiffusion(cfg Config) *DiffusionIntegrator {
	di := &DiffusionIntegrator{&paKernel{
		name:         "diffusion",
		cfg:          cfg,
		table:        diffusionPrograms,
		needInverse:  true,
		defaultOrder: diffusionRuleOrder,
		elmatName:    "S",
	}}
	di.prepareElmat = di.buildBtilde
	return di
}

// buildBtilde fills Bt1..Bt3 the first time element matrices are needed
func (di *DiffusionIntegrator) buildBtilde() error {
	s := &di.s
	if s.basis != element.TensorBasis {
		return nil
	}
	if _, done := di.ws["Bt1"]; done {
		return nil
	}
	for d, bt := range BuildBtilde(di.ws["B"], di.ws["G"], s.dim) {
		name := fmt.Sprintf("Bt%d", d+1)
		if s.onDevice {
			if err := bt.MapToDevice(s.engine.Allocator()); err != nil {
				return err
			}
		}
		di.ws[name] = bt
	}
	return nil
}
