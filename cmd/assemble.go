package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/notargets/PAKernel/bilinearform"
	"github.com/notargets/PAKernel/element"
	"github.com/notargets/PAKernel/integrator"
	"github.com/notargets/PAKernel/mesh"
	"github.com/notargets/PAKernel/partition"
	"github.com/notargets/PAKernel/runner"
	"github.com/notargets/PAKernel/runner/builder"
	"github.com/notargets/PAKernel/tensor"
	"github.com/notargets/PAKernel/utils"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"
)

type InputParameters struct {
	Title       string    `yaml:"Title"`
	Geometry    string    `yaml:"Geometry"`
	MeshFile    string    `yaml:"MeshFile"` // .msh, .neu or .su2; replaces the box mesh
	Order       int       `yaml:"Order"`
	Divisions   []int     `yaml:"Divisions"`
	Lengths     []float64 `yaml:"Lengths"`
	Integrators []string  `yaml:"Integrators"`
	RuleOrder   int       `yaml:"RuleOrder"`
	Coefficient float64   `yaml:"Coefficient"`
	Backend     string    `yaml:"Backend"` // cpu, serial, openmp, cuda, opencl or OCCA JSON
	Partitions  int       `yaml:"Partitions"`
	Strategy    string    `yaml:"Strategy"`
	Iterations  int       `yaml:"Iterations"`
	Sparse      bool      `yaml:"Sparse"`
}

func (ip *InputParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *InputParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	if ip.MeshFile != "" {
		fmt.Printf("[%s]\t= Mesh File\n", ip.MeshFile)
	} else {
		fmt.Printf("[%s]\t\t= Geometry\n", ip.Geometry)
	}
	fmt.Printf("[%d]\t\t\t= Polynomial Order\n", ip.Order)
	fmt.Printf("%v x %v\t= Divisions x Lengths\n", ip.Divisions, ip.Lengths)
	fmt.Printf("%v\t= Integrators\n", ip.Integrators)
	fmt.Printf("[%s]\t\t= Backend\n", ip.Backend)
	fmt.Printf("[%d %s]\t= Partitions\n", ip.Partitions, ip.Strategy)
}

func (ip *InputParameters) defaults() {
	if ip.Geometry == "" {
		ip.Geometry = "hex"
	}
	if ip.Order == 0 {
		ip.Order = 2
	}
	if len(ip.Integrators) == 0 {
		ip.Integrators = []string{"mass"}
	}
	if ip.Coefficient == 0 {
		ip.Coefficient = 1
	}
	if ip.Backend == "" {
		ip.Backend = "cpu"
	}
	if ip.Partitions == 0 {
		ip.Partitions = 1
	}
	if ip.Strategy == "" {
		ip.Strategy = partition.BlockPartition.String()
	}
	if ip.Iterations == 0 {
		ip.Iterations = 10
	}
	if len(ip.Lengths) == 0 {
		ip.Lengths = make([]float64, len(ip.Divisions))
		for i := range ip.Lengths {
			ip.Lengths[i] = 1
		}
	}
}

var geometries = map[string]element.ElementGeometry{
	"line": element.Line,
	"quad": element.Rectangle,
	"hex":  element.Hex,
	"tri":  element.Tri,
	"tet":  element.Tet,
}

var AssembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Partially assemble an operator on a box mesh and time its application",
	Long: `Builds a box mesh, partially assembles the requested integrators and
applies the operator repeatedly, reporting timings and a few checks.`,
	Run: func(cmd *cobra.Command, args []string) {
		ip := &InputParameters{}
		inputFile, _ := cmd.Flags().GetString("inputConditionsFile")
		if inputFile != "" {
			data, err := ioutil.ReadFile(inputFile)
			if err != nil {
				log.Fatalf("reading %s: %v", inputFile, err)
			}
			if err = ip.Parse(data); err != nil {
				log.Fatalf("parsing %s: %v", inputFile, err)
			}
		} else {
			ip.Geometry = viper.GetString("geometry")
			ip.MeshFile = viper.GetString("mesh")
			ip.Order = viper.GetInt("order")
			ip.Divisions, _ = cmd.Flags().GetIntSlice("divisions")
			ip.Integrators = strings.Split(viper.GetString("integrators"), ",")
			ip.Backend = viper.GetString("backend")
			ip.Partitions = viper.GetInt("partitions")
			ip.Strategy = viper.GetString("strategy")
			ip.Iterations = viper.GetInt("iterations")
			ip.Sparse = viper.GetBool("sparse")
		}
		ip.defaults()
		ip.Print()

		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		report, err := RunAssemble(ip)
		if err != nil {
			log.Fatalf("assemble: %v", err)
		}
		report.Print()
	},
}

func init() {
	rootCmd.AddCommand(AssembleCmd)
	flags := AssembleCmd.Flags()
	flags.StringP("inputConditionsFile", "I", "", "YAML file of input parameters, overrides the other flags")
	flags.StringP("geometry", "g", "hex", "element geometry: line, quad, hex, tri or tet")
	flags.StringP("mesh", "m", "", "tet or hex mesh file (.msh, .neu, .su2) used instead of a box mesh")
	flags.IntP("order", "p", 2, "polynomial order")
	flags.IntSliceP("divisions", "n", []int{4, 4, 4}, "elements along each axis")
	flags.StringP("integrators", "i", "mass", "comma separated integrators: "+strings.Join(integrator.Names(), ", "))
	flags.StringP("backend", "b", "cpu", "cpu, or an OCCA backend: serial, openmp, cuda, opencl, or JSON device properties")
	flags.IntP("partitions", "k", 1, "number of element partitions")
	flags.StringP("strategy", "s", "block", "partition strategy: block, roundrobin or metis")
	flags.IntP("iterations", "r", 10, "operator applications to time")
	flags.Bool("sparse", false, "also assemble the global sparse matrix")
	flags.Bool("profile", false, "write a CPU profile to the current directory")
	for _, name := range []string{"geometry", "mesh", "order", "integrators",
		"backend", "partitions", "strategy", "iterations", "sparse"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func buildMesh(ip *InputParameters) (*mesh.Mesh, error) {
	if ip.MeshFile != "" {
		return mesh.ReadMeshFile(ip.MeshFile)
	}
	geom, ok := geometries[strings.ToLower(ip.Geometry)]
	if !ok {
		return nil, fmt.Errorf("unknown geometry %q", ip.Geometry)
	}
	dim := int(geom.Dimensions())
	if len(ip.Divisions) < dim || len(ip.Lengths) < dim {
		return nil, fmt.Errorf("%s needs %d divisions and lengths, got %v and %v",
			ip.Geometry, dim, ip.Divisions, ip.Lengths)
	}
	return mesh.NewBoxMesh(geom, ip.Divisions[:dim], ip.Lengths[:dim])
}

// Report summarizes one assembly run
type Report struct {
	Executor     string
	NumElements  int
	NumDofs      int
	SetupTime    time.Duration
	AssembleTime time.Duration
	ApplyTime    time.Duration // per application
	Iterations   int
	// OnesNorm is 1' A 1; the domain volume for mass, zero for diffusion
	OnesNorm float64
	NNZ      int
}

func (r *Report) Print() {
	fmt.Printf("executor %s, %d elements, %d global dofs\n", r.Executor, r.NumElements, r.NumDofs)
	fmt.Printf("setup %v, partial assembly %v, apply %v per iteration over %d\n",
		r.SetupTime, r.AssembleTime, r.ApplyTime, r.Iterations)
	fmt.Printf("1'A1 = %.12g\n", r.OnesNorm)
	if r.NNZ > 0 {
		fmt.Printf("sparse matrix nnz = %d\n", r.NNZ)
	}
}

// RunAssemble builds everything ip describes and exercises it
func RunAssemble(ip *InputParameters) (*Report, error) {
	m, err := buildMesh(ip)
	if err != nil {
		return nil, err
	}
	geom := m.Geom
	fs, err := mesh.NewFESpace(m, ip.Order)
	if err != nil {
		return nil, err
	}

	strategy, err := partition.ParseStrategy(ip.Strategy)
	if err != nil {
		return nil, err
	}
	layout, err := partition.NewBuilder(m, ip.Partitions, strategy).Build()
	if err != nil {
		return nil, err
	}

	var engine *tensor.Engine
	if ip.Backend == "cpu" {
		engine = tensor.NewEngine(nil)
	} else {
		device, err := utils.CreateDevice(ip.Backend)
		if err != nil {
			return nil, err
		}
		defer device.Free()
		kr := runner.NewRunner(device, builder.Config{K: layout.K})
		defer kr.Free()
		engine = tensor.NewEngine(kr)
	}

	cfg := integrator.Config{
		Space:       fs,
		Engine:      engine,
		Coefficient: integrator.ConstantCoefficient(ip.Coefficient),
		Layout:      layout,
		RuleOrder:   ip.RuleOrder,
	}
	bf := bilinearform.New(fs)
	defer bf.Free()
	start := time.Now()
	for _, name := range ip.Integrators {
		in, err := integrator.New(strings.TrimSpace(name), cfg)
		if err != nil {
			return nil, err
		}
		if err = in.Setup(); err != nil {
			return nil, err
		}
		bf.AddDomainIntegrator(in)
	}
	report := &Report{
		Executor:    engine.Executor().Name(),
		NumElements: m.NumElements,
		NumDofs:     fs.NDofs,
		SetupTime:   time.Since(start),
		Iterations:  ip.Iterations,
	}

	start = time.Now()
	if err = bf.Assemble(); err != nil {
		return nil, err
	}
	report.AssembleTime = time.Since(start)

	ones := make([]float64, fs.NDofs)
	for i := range ones {
		ones[i] = 1
	}
	y := make([]float64, fs.NDofs)
	if geom.IsTensor() {
		start = time.Now()
		for it := 0; it < ip.Iterations; it++ {
			if err = bf.Mult(ones, y); err != nil {
				return nil, err
			}
		}
		if ip.Iterations > 0 {
			report.ApplyTime = time.Since(start) / time.Duration(ip.Iterations)
		}
	}

	if ip.Sparse || !geom.IsTensor() {
		A, err := bf.SparseMatrix()
		if err != nil {
			return nil, err
		}
		report.NNZ = A.NNZ()
		if err = bilinearform.MulVec(A, ones, y); err != nil {
			return nil, err
		}
	}
	report.OnesNorm = floats.Sum(y)
	if math.IsNaN(report.OnesNorm) {
		return nil, fmt.Errorf("operator produced NaN")
	}
	return report, nil
}
