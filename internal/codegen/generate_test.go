package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nodeflowio/nodeflow/internal/graph"
)

func addChainGraph(t *testing.T) *graph.Graph {
	t.Helper()
	doc := &graph.Document{
		Nodes: []graph.NodeDecl{
			{ID: "dt1", Type: "DeviceTrigger", Outputs: []graph.PortDecl{{ID: "value", Type: "i32"}}},
			{ID: "v1", Type: "Value", Outputs: []graph.PortDecl{{ID: "out", Type: "i32"}}, Parameters: map[string]interface{}{"value": 10}},
			{ID: "add1", Type: "Add",
				Inputs:  []graph.PortDecl{{ID: "a", Type: "i32"}, {ID: "b", Type: "i32"}},
				Outputs: []graph.PortDecl{{ID: "sum", Type: "i32"}},
			},
		},
		Connections: []graph.ConnectionDecl{
			{FromNode: "dt1", FromPort: "value", ToNode: "add1", ToPort: "a"},
			{FromNode: "v1", FromPort: "out", ToNode: "add1", ToPort: "b"},
		},
	}
	g, err := graph.Load(doc)
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	return g
}

func TestGenerateProducesContractSurface(t *testing.T) {
	art, err := Generate(addChainGraph(t), "addone")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if art.PackageName != "addone" {
		t.Errorf("PackageName = %q, want addone", art.PackageName)
	}

	for _, want := range []string{
		"package addone",
		"type Inputs struct",
		"type Outputs struct",
		"type State struct",
		"func Init(s *State)",
		"func Reset(s *State)",
		"func SetInput(handle int, value float64, in *Inputs)",
		"func Tick(dtMS float64, s *State)",
		"func Step(in *Inputs, out *Outputs, s *State)",
		"func GetOutput(handle int, out *Outputs, s *State) float64",
		"var Ports = []PortDescriptor{",
		"var TopoOrder = []int{",
		"var InputFields = []InputField{",
		"Dt1",
		"out.Add1 =",
	} {
		if !strings.Contains(art.Source, want) {
			t.Errorf("generated source missing %q\n--- source ---\n%s", want, art.Source)
		}
	}
}

func TestGenerateOmitsRuntimeImportForIntegerOnlyGraph(t *testing.T) {
	art, err := Generate(addChainGraph(t), "addone")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(art.Source, "codegen/runtime") {
		t.Errorf("expected no runtime import for an all-integer graph, got:\n%s", art.Source)
	}
}

func TestGenerateImportsRuntimeForFloatOutputs(t *testing.T) {
	doc := &graph.Document{
		Nodes: []graph.NodeDecl{
			{ID: "v1", Type: "Value", Outputs: []graph.PortDecl{{ID: "out", Type: "f64"}}, Parameters: map[string]interface{}{"value": 1.5}},
		},
	}
	g, err := graph.Load(doc)
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	art, err := Generate(g, "floaty")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(art.Source, "codegen/runtime") {
		t.Errorf("expected runtime import for a float64 sink output, got:\n%s", art.Source)
	}
	if !strings.Contains(art.Source, "runtime.Float64Equal") {
		t.Errorf("expected Changed to use runtime.Float64Equal, got:\n%s", art.Source)
	}
}

// TestGenerateAddCoercesThroughDeclaredInputTypeBeforeComputeType exercises
// the same lossy chain as the interpreter's propagateOutputs: an f64
// producer feeding an Add input declared i32, with an f64 compute/output
// type. The two-step conversion must appear as nested Go conversions
// (producer -> declared input type -> compute type) rather than a single
// producer -> compute type conversion, so a value like 2.7 truncates at the
// input port exactly as it does in the interpreter.
func TestGenerateAddCoercesThroughDeclaredInputTypeBeforeComputeType(t *testing.T) {
	doc := &graph.Document{
		Nodes: []graph.NodeDecl{
			{ID: "v1", Type: "Value", Outputs: []graph.PortDecl{{ID: "out", Type: "f64"}}, Parameters: map[string]interface{}{"value": 2.7}},
			{ID: "add1", Type: "Add",
				Inputs:  []graph.PortDecl{{ID: "a", Type: "i32"}},
				Outputs: []graph.PortDecl{{ID: "sum", Type: "f64"}},
			},
		},
		Connections: []graph.ConnectionDecl{
			{FromNode: "v1", FromPort: "out", ToNode: "add1", ToPort: "a"},
		},
	}
	g, err := graph.Load(doc)
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	art, err := Generate(g, "coercechain")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := "float64(int32(nV1))"
	if !strings.Contains(art.Source, want) {
		t.Errorf("generated source missing two-step coercion %q (producer f64 -> declared input i32 -> compute f64):\n%s", want, art.Source)
	}
	if strings.Contains(art.Source, "float64(nV1)") {
		t.Errorf("generated source coerces producer directly to compute type, skipping the declared input port type:\n%s", art.Source)
	}
}

func TestGenerateHandlesTimerAsSinkWithoutDuplicateCase(t *testing.T) {
	doc := &graph.Document{
		Nodes: []graph.NodeDecl{
			{ID: "m1", Type: "Timer",
				Outputs:    []graph.PortDecl{{ID: "pulse", Type: "i32"}},
				Parameters: map[string]interface{}{"interval_ms": 1000},
			},
		},
	}
	g, err := graph.Load(doc)
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	art, err := Generate(g, "timersink")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	handle, ok := g.PortHandleOf("m1", "pulse", graph.Output)
	if !ok {
		t.Fatalf("missing handle for m1:pulse")
	}
	wantCase := fmt.Sprintf("case %d:", handle)
	if n := strings.Count(art.Source, wantCase); n != 1 {
		t.Errorf("GetOutput has %d occurrences of %q, want exactly 1 (duplicate switch case would fail to compile):\n%s", n, wantCase, art.Source)
	}
}

func TestGenerateRejectsCollidingIdentifiers(t *testing.T) {
	doc := &graph.Document{
		Nodes: []graph.NodeDecl{
			{ID: "node-1", Type: "Value", Outputs: []graph.PortDecl{{ID: "out", Type: "i32"}}},
			{ID: "node_1", Type: "Value", Outputs: []graph.PortDecl{{ID: "out", Type: "i32"}}},
		},
	}
	g, err := graph.Load(doc)
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	if _, err := Generate(g, "collide"); err == nil {
		t.Errorf("expected Generate to reject colliding identifiers node-1/node_1")
	}
}
