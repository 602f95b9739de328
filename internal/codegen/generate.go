// Package codegen implements the ahead-of-time code generator: it emits a
// standalone Go artifact (fixed-layout Inputs/Outputs/State structs, the
// init/reset/set_input/tick/step/get_output contract, and descriptor
// tables) that is observationally parity-equivalent to internal/engine's
// interpreter, per spec §4.6/§6.3.
//
// This is grounded on original_source/NodeFlowCore.cpp's
// FlowEngine::generateStepLibrary and the concrete contract demonstrated by
// original_source/aot_examples/demo2_step.{h,cpp}: a NodeFlowInputs /
// NodeFlowOutputs / NodeFlowState triple, a topologically-ordered step
// function that computes one local per node, and parallel descriptor
// tables for ports, topological order and input fields. The Go rendition
// trades the C contract's unsafe.Offsetof-style byte offsets for named
// struct fields, since generated and host code share one Go module and
// never cross an ABI boundary.
package codegen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nodeflowio/nodeflow/internal/graph"
	"github.com/nodeflowio/nodeflow/internal/nfvalue"
)

// Artifact is a generated, self-contained Go source file.
type Artifact struct {
	PackageName string
	Source      string
}

// Generate emits a standalone artifact for g under the given package name.
func Generate(g *graph.Graph, packageName string) (*Artifact, error) {
	gen := &generator{g: g, pkg: packageName}
	if err := gen.prepare(); err != nil {
		return nil, err
	}
	return &Artifact{PackageName: packageName, Source: gen.render()}, nil
}

type generator struct {
	g   *graph.Graph
	pkg string

	inputNodes   []int // DeviceTrigger node indices, in load order
	timerNodes   []int
	counterNodes []int
	sinkNodes    []int // nodes with no downstream consumer; each gets an Outputs field

	localVar map[int]string // node index -> Go identifier used in Step
}

func (gen *generator) prepare() error {
	gen.localVar = make(map[int]string, len(gen.g.Nodes))
	seenIdent := make(map[string]string, len(gen.g.Nodes))
	for i, n := range gen.g.Nodes {
		ident := exportIdent(n.ID)
		if prior, ok := seenIdent[ident]; ok && prior != n.ID {
			return fmt.Errorf("codegen: node ids %q and %q both normalize to Go identifier %q", prior, n.ID, ident)
		}
		seenIdent[ident] = n.ID

		gen.localVar[i] = "n" + ident
		switch n.Kind {
		case graph.KindDeviceTrigger:
			gen.inputNodes = append(gen.inputNodes, i)
		case graph.KindTimer:
			gen.timerNodes = append(gen.timerNodes, i)
		case graph.KindCounter:
			gen.counterNodes = append(gen.counterNodes, i)
		}
	}

	for i, n := range gen.g.Nodes {
		if len(n.OutputHandles) == 0 {
			continue
		}
		if len(gen.g.ForwardDependents[i]) == 0 {
			gen.sinkNodes = append(gen.sinkNodes, i)
		}
	}
	// generateStepLibrary's fallback: a graph with no sink nodes (every
	// output is consumed downstream) still needs something to expose, so
	// every node with an output becomes a sink.
	if len(gen.sinkNodes) == 0 {
		for i, n := range gen.g.Nodes {
			if len(n.OutputHandles) > 0 {
				gen.sinkNodes = append(gen.sinkNodes, i)
			}
		}
	}
	return nil
}

func (gen *generator) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by internal/codegen. DO NOT EDIT.\npackage %s\n\n", gen.pkg)
	if gen.needsRuntimeImport() {
		fmt.Fprintf(&b, "import %q\n\n", "github.com/nodeflowio/nodeflow/internal/codegen/runtime")
	}

	gen.renderStructs(&b)
	gen.renderDescriptors(&b)
	gen.renderInit(&b)
	gen.renderSetInput(&b)
	gen.renderGetOutput(&b)
	gen.renderTick(&b)
	gen.renderStep(&b)
	gen.renderChanged(&b)
	return b.String()
}

// needsRuntimeImport reports whether any sink output is floating point,
// which is the only case Changed needs runtime's NaN-aware comparison for.
func (gen *generator) needsRuntimeImport() bool {
	for _, i := range gen.sinkNodes {
		t := gen.g.Ports[gen.g.Nodes[i].OutputHandles[0]].Type
		if t == nfvalue.F32 || t == nfvalue.F64 {
			return true
		}
	}
	return false
}

func (gen *generator) renderStructs(b *strings.Builder) {
	b.WriteString("// Inputs holds every DeviceTrigger node's externally driven value.\ntype Inputs struct {\n")
	for _, i := range gen.inputNodes {
		n := &gen.g.Nodes[i]
		out := n.OutputHandles[0]
		fmt.Fprintf(b, "\t%s %s // %s\n", exportIdent(n.ID), goType(gen.g.Ports[out].Type), n.ID)
	}
	b.WriteString("}\n\n")

	b.WriteString("// Outputs holds every sink node's current primary output.\ntype Outputs struct {\n")
	for _, i := range gen.sinkNodes {
		n := &gen.g.Nodes[i]
		out := n.OutputHandles[0]
		fmt.Fprintf(b, "\t%s %s // %s\n", exportIdent(n.ID), goType(gen.g.Ports[out].Type), n.ID)
	}
	b.WriteString("}\n\n")

	b.WriteString("// State holds the persistent state Timer and Counter nodes carry across Step/Tick calls.\ntype State struct {\n")
	for _, i := range gen.timerNodes {
		id := exportIdent(gen.g.Nodes[i].ID)
		fmt.Fprintf(b, "\t%sAccumMS float64\n\t%sPulse   int32\n\t%sPulseArmed bool\n", id, id, id)
	}
	for _, i := range gen.counterNodes {
		id := exportIdent(gen.g.Nodes[i].ID)
		fmt.Fprintf(b, "\t%sWasHigh bool\n\t%sCount   int32\n", id, id)
	}
	b.WriteString("}\n\n")
}

func (gen *generator) renderDescriptors(b *strings.Builder) {
	b.WriteString("// PortDescriptor mirrors one interned port for host introspection.\ntype PortDescriptor struct {\n\tHandle   int\n\tNodeID   string\n\tPortID   string\n\tIsOutput bool\n\tDType    string\n}\n\n")
	b.WriteString("var Ports = []PortDescriptor{\n")
	for h, p := range gen.g.Ports {
		fmt.Fprintf(b, "\t{Handle: %d, NodeID: %q, PortID: %q, IsOutput: %v, DType: %q},\n",
			h, gen.g.Nodes[p.NodeIndex].ID, p.PortID, p.Direction == graph.Output, p.Type.String())
	}
	b.WriteString("}\n\n")

	b.WriteString("// TopoOrder lists node indices in the order Step evaluates them.\nvar TopoOrder = []int{")
	for i, idx := range gen.g.TopoOrder {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%d", idx)
	}
	b.WriteString("}\n\n")

	b.WriteString("// InputField names the Inputs struct field backing each DeviceTrigger output handle.\ntype InputField struct {\n\tHandle    int\n\tNodeID    string\n\tFieldName string\n\tDType     string\n}\n\n")
	b.WriteString("var InputFields = []InputField{\n")
	for _, i := range gen.inputNodes {
		n := &gen.g.Nodes[i]
		out := n.OutputHandles[0]
		fmt.Fprintf(b, "\t{Handle: %d, NodeID: %q, FieldName: %q, DType: %q},\n", out, n.ID, exportIdent(n.ID), gen.g.Ports[out].Type.String())
	}
	b.WriteString("}\n\n")
}

func (gen *generator) renderInit(b *strings.Builder) {
	b.WriteString("// Init zeroes state. Call once before the first Step.\nfunc Init(s *State) {\n\t*s = State{}\n}\n\n")
	b.WriteString("// Reset restores state to its post-Init value.\nfunc Reset(s *State) {\n\tInit(s)\n}\n\n")
}

func (gen *generator) renderSetInput(b *strings.Builder) {
	b.WriteString("// SetInput writes value into the Inputs field backing the given output handle.\nfunc SetInput(handle int, value float64, in *Inputs) {\n\tswitch handle {\n")
	for _, i := range gen.inputNodes {
		n := &gen.g.Nodes[i]
		out := n.OutputHandles[0]
		fmt.Fprintf(b, "\tcase %d:\n\t\tin.%s = %s\n", out, exportIdent(n.ID), fromFloat64("value", gen.g.Ports[out].Type))
	}
	b.WriteString("\t}\n}\n\n")
}

// stateBacked reports whether node i's result is read from State rather
// than Outputs — true for Timer and Counter regardless of sink status, per
// spec §4.6's get_output contract.
func (gen *generator) stateBacked(i int) bool {
	k := gen.g.Nodes[i].Kind
	return k == graph.KindTimer || k == graph.KindCounter
}

func (gen *generator) renderGetOutput(b *strings.Builder) {
	b.WriteString("// GetOutput reads the current value behind the given output handle, or 0 if the handle isn't exposed (DeviceTrigger inputs are never readable this way).\nfunc GetOutput(handle int, out *Outputs, s *State) float64 {\n\tswitch handle {\n")
	for _, i := range gen.sinkNodes {
		if gen.stateBacked(i) || gen.g.Nodes[i].Kind == graph.KindDeviceTrigger {
			continue
		}
		n := &gen.g.Nodes[i]
		h := n.OutputHandles[0]
		fmt.Fprintf(b, "\tcase %d:\n\t\treturn %s\n", h, toFloat64("out."+exportIdent(n.ID), gen.g.Ports[h].Type))
	}
	for _, i := range gen.timerNodes {
		n := &gen.g.Nodes[i]
		h := n.OutputHandles[0]
		fmt.Fprintf(b, "\tcase %d:\n\t\treturn float64(s.%sPulse)\n", h, exportIdent(n.ID))
	}
	for _, i := range gen.counterNodes {
		n := &gen.g.Nodes[i]
		h := n.OutputHandles[0]
		fmt.Fprintf(b, "\tcase %d:\n\t\treturn float64(s.%sCount)\n", h, exportIdent(n.ID))
	}
	b.WriteString("\t}\n\treturn 0\n}\n\n")
}

func (gen *generator) renderTick(b *strings.Builder) {
	b.WriteString("// Tick advances every Timer's accumulator by dtMS, independently of Step. A crossing arms the pulse; Step falls it back to zero once it has been observed by one evaluation.\nfunc Tick(dtMS float64, s *State) {\n")
	for _, i := range gen.timerNodes {
		n := &gen.g.Nodes[i]
		id := exportIdent(n.ID)
		interval := n.Parameters["interval_ms"].AsF64()
		fmt.Fprintf(b, "\ts.%sAccumMS += dtMS\n\tif s.%sAccumMS >= %g {\n\t\ts.%sAccumMS -= %g\n\t\ts.%sPulse = 1\n\t\ts.%sPulseArmed = true\n\t} else {\n\t\ts.%sPulse = 0\n\t}\n",
			id, id, interval, id, interval, id, id, id)
	}
	b.WriteString("}\n\n")
}

// renderChanged emits Changed(a, b *Outputs) bool, comparing every sink
// field with the same rule internal/nfvalue.Equal uses for primary-output
// change detection, so a host driving the generated artifact can observe
// changes the same way the interpreter's scheduler does.
func (gen *generator) renderChanged(b *strings.Builder) {
	b.WriteString("// Changed reports whether any Outputs field differs between a and b, using the interpreter's NaN/signed-zero comparison rule for floats.\nfunc Changed(a, b *Outputs) bool {\n")
	for _, i := range gen.sinkNodes {
		n := &gen.g.Nodes[i]
		id := exportIdent(n.ID)
		typ := gen.g.Ports[n.OutputHandles[0]].Type
		switch typ {
		case nfvalue.F32:
			fmt.Fprintf(b, "\tif !runtime.Float32Equal(a.%s, b.%s) {\n\t\treturn true\n\t}\n", id, id)
		case nfvalue.F64:
			fmt.Fprintf(b, "\tif !runtime.Float64Equal(a.%s, b.%s) {\n\t\treturn true\n\t}\n", id, id)
		default:
			fmt.Fprintf(b, "\tif a.%s != b.%s {\n\t\treturn true\n\t}\n", id, id)
		}
	}
	b.WriteString("\treturn false\n}\n")
}

// renderTopoPass emits one full topological recomputation of every node,
// writing sink outputs from whatever Timer/Counter state is current in s.
// Step calls this twice when a Timer pulse fell during the call, so each
// pass gets its own block scope and its locals never collide.
func (gen *generator) renderTopoPass(b *strings.Builder, indent string) {
	sinkSet := make(map[int]bool, len(gen.sinkNodes))
	for _, i := range gen.sinkNodes {
		sinkSet[i] = true
	}

	for _, idx := range gen.g.TopoOrder {
		n := &gen.g.Nodes[idx]
		local := gen.localVar[idx]
		outType := nfvalue.I32
		if len(n.OutputHandles) > 0 {
			outType = gen.g.Ports[n.OutputHandles[0]].Type
		}

		switch n.Kind {
		case graph.KindDeviceTrigger:
			fmt.Fprintf(b, "%s%s := in.%s\n", indent, local, exportIdent(n.ID))
		case graph.KindTimer:
			fmt.Fprintf(b, "%s%s := s.%sPulse\n", indent, local, exportIdent(n.ID))
		case graph.KindValue:
			param, ok := n.Parameters["value"]
			if !ok {
				param = nfvalue.Zero(outType)
			}
			fmt.Fprintf(b, "%svar %s %s = %s\n", indent, local, goType(outType), valueLiteral(nfvalue.Coerce(param, outType)))
		case graph.KindAdd:
			gen.renderAddLocal(b, n, local, outType, indent)
		case graph.KindCounter:
			gen.renderCounterLocal(b, n, local, indent)
		}

		if sinkSet[idx] && len(n.OutputHandles) > 0 {
			fmt.Fprintf(b, "%sout.%s = %s\n", indent, exportIdent(n.ID), gen.coerceLocal(idx, outType, n.OutputHandles[0]))
		}
	}
}

func (gen *generator) renderStep(b *strings.Builder) {
	b.WriteString("// Step recomputes every node in topological order and writes sink outputs; it mirrors internal/engine's per-generation evaluation, including Counter's rising-edge detection on its current input and a Timer pulse's automatic fall back to zero once one evaluation has observed it.\nfunc Step(in *Inputs, out *Outputs, s *State) {\n")
	gen.renderTopoPass(b, "\t")

	if len(gen.timerNodes) > 0 {
		b.WriteString("\tfell := false\n")
		for _, i := range gen.timerNodes {
			id := exportIdent(gen.g.Nodes[i].ID)
			fmt.Fprintf(b, "\tif s.%sPulseArmed {\n\t\ts.%sPulse = 0\n\t\ts.%sPulseArmed = false\n\t\tfell = true\n\t}\n", id, id, id)
		}
		b.WriteString("\tif fell {\n")
		gen.renderTopoPass(b, "\t\t")
		b.WriteString("\t}\n")
	}
	b.WriteString("}\n")
}

func (gen *generator) coerceLocal(nodeIdx int, localType nfvalue.Kind, destHandle graph.PortHandle) string {
	destType := gen.g.Ports[destHandle].Type
	local := gen.localVar[nodeIdx]
	if destType == localType {
		return local
	}
	return fmt.Sprintf("%s(%s)", goType(destType), local)
}

func (gen *generator) renderAddLocal(b *strings.Builder, n *graph.NodeInfo, local string, outType nfvalue.Kind, indent string) {
	fmt.Fprintf(b, "%svar %s %s\n", indent, local, goType(outType))
	for _, inHandle := range n.InputHandles {
		producer := gen.g.ProducerOf[inHandle]
		if producer < 0 {
			continue
		}
		srcNode := gen.g.Ports[producer].NodeIndex
		srcType := gen.g.Ports[producer].Type
		inType := gen.g.Ports[inHandle].Type
		// Coerce producer -> declared input type before -> compute type, the
		// same two-step nfvalue.Coerce chain propagateOutputs performs, so a
		// lossy input type (e.g. f64 producer into an i32 input) truncates
		// identically here and in the interpreter.
		srcLocal := coerceIdent(gen.localVar[srcNode], srcType, inType)
		fmt.Fprintf(b, "%s%s += %s\n", indent, local, coerceIdent(srcLocal, inType, outType))
	}
}

func (gen *generator) renderCounterLocal(b *strings.Builder, n *graph.NodeInfo, local string, indent string) {
	id := exportIdent(n.ID)
	if len(n.InputHandles) == 0 {
		fmt.Fprintf(b, "%s%s := s.%sCount\n", indent, local, id)
		return
	}
	inHandle := n.InputHandles[0]
	producer := gen.g.ProducerOf[inHandle]
	var inExpr string
	if producer >= 0 {
		srcNode := gen.g.Ports[producer].NodeIndex
		srcType := gen.g.Ports[producer].Type
		inExpr = coerceIdent(gen.localVar[srcNode], srcType, gen.g.Ports[inHandle].Type)
	} else {
		inExpr = valueLiteral(nfvalue.Zero(gen.g.Ports[inHandle].Type))
	}
	fmt.Fprintf(b, "%s%sHighNow := float64(%s) > 0.5\n%sif %sHighNow && !s.%sWasHigh {\n%s\ts.%sCount++\n%s}\n%ss.%sWasHigh = %sHighNow\n%s%s := s.%sCount\n",
		indent, id, inExpr, indent, id, id, indent, id, indent, indent, id, id, indent, local, id)
}

func coerceIdent(ident string, from, to nfvalue.Kind) string {
	if from == to {
		return ident
	}
	return fmt.Sprintf("%s(%s)", goType(to), ident)
}

func goType(k nfvalue.Kind) string {
	switch k {
	case nfvalue.I32:
		return "int32"
	case nfvalue.F32:
		return "float32"
	case nfvalue.F64:
		return "float64"
	case nfvalue.String:
		return "string"
	default:
		return "int32"
	}
}

func fromFloat64(expr string, k nfvalue.Kind) string {
	switch k {
	case nfvalue.I32:
		return fmt.Sprintf("int32(%s)", expr)
	case nfvalue.F32:
		return fmt.Sprintf("float32(%s)", expr)
	default:
		return expr
	}
}

func toFloat64(expr string, k nfvalue.Kind) string {
	switch k {
	case nfvalue.F64:
		return expr
	default:
		return fmt.Sprintf("float64(%s)", expr)
	}
}

func valueLiteral(v nfvalue.Value) string {
	switch v.Kind() {
	case nfvalue.I32:
		return fmt.Sprintf("%d", v.AsI32())
	case nfvalue.F32:
		return fmt.Sprintf("%g", v.AsF32())
	case nfvalue.F64:
		return fmt.Sprintf("%g", v.AsF64())
	case nfvalue.String:
		return fmt.Sprintf("%q", v.AsString())
	default:
		return "0"
	}
}

// exportIdent turns an arbitrary node/port id into an exported Go
// identifier, matching the first-letter-of-each-segment convention Go
// generators in the ecosystem use for foreign identifiers.
func exportIdent(s string) string {
	var out []rune
	upperNext := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upperNext {
				r = unicode.ToUpper(r)
				upperNext = false
			}
			out = append(out, r)
		default:
			upperNext = true
		}
	}
	if len(out) == 0 {
		return "X"
	}
	if unicode.IsDigit(out[0]) {
		out = append([]rune{'N'}, out...)
	}
	return string(out)
}
