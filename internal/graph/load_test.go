package graph

import "testing"

func addChainDoc() *Document {
	return &Document{
		Nodes: []NodeDecl{
			{ID: "v1", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}, Parameters: map[string]interface{}{"value": 2}},
			{ID: "v2", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}, Parameters: map[string]interface{}{"value": 3}},
			{ID: "add1", Type: "Add",
				Inputs:  []PortDecl{{ID: "a", Type: "i32"}, {ID: "b", Type: "i32"}},
				Outputs: []PortDecl{{ID: "sum", Type: "i32"}},
			},
		},
		Connections: []ConnectionDecl{
			{FromNode: "v1", FromPort: "out", ToNode: "add1", ToPort: "a"},
			{FromNode: "v2", FromPort: "out", ToNode: "add1", ToPort: "b"},
		},
	}
}

func TestLoadAssignsHandlesInputsBeforeOutputs(t *testing.T) {
	doc := &Document{Nodes: []NodeDecl{
		{ID: "n1", Type: "Add",
			Inputs:  []PortDecl{{ID: "a", Type: "i32"}, {ID: "b", Type: "i32"}},
			Outputs: []PortDecl{{ID: "sum", Type: "i32"}},
		},
	}}
	g, err := Load(doc)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.TotalPorts != 3 {
		t.Fatalf("TotalPorts = %d, want 3", g.TotalPorts)
	}
	aHandle, _ := g.PortHandleOf("n1", "a", Input)
	bHandle, _ := g.PortHandleOf("n1", "b", Input)
	sumHandle, _ := g.PortHandleOf("n1", "sum", Output)
	if !(aHandle < bHandle && bHandle < sumHandle) {
		t.Errorf("expected handles in declared order a=%d b=%d sum=%d", aHandle, bHandle, sumHandle)
	}
}

func TestLoadIsDeterministic(t *testing.T) {
	doc := addChainDoc()
	g1, err := Load(doc)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g2, err := Load(doc)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := range g1.TopoOrder {
		if g1.TopoOrder[i] != g2.TopoOrder[i] {
			t.Fatalf("TopoOrder differs across loads: %v vs %v", g1.TopoOrder, g2.TopoOrder)
		}
	}
}

func TestLoadTopoOrderRespectsEdges(t *testing.T) {
	g, err := Load(addChainDoc())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v1, _ := g.NodeIndexByID("v1")
	v2, _ := g.NodeIndexByID("v2")
	add1, _ := g.NodeIndexByID("add1")
	if g.TopoIndexOfNode[v1] >= g.TopoIndexOfNode[add1] || g.TopoIndexOfNode[v2] >= g.TopoIndexOfNode[add1] {
		t.Errorf("producers must precede consumer in topo order")
	}
}

func TestLoadDetectsDuplicateNodeID(t *testing.T) {
	doc := &Document{Nodes: []NodeDecl{
		{ID: "dup", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
		{ID: "dup", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
	}}
	_, err := Load(doc)
	assertLoadErrorKind(t, err, DuplicateNodeId)
}

func TestLoadDetectsCycle(t *testing.T) {
	doc := &Document{
		Nodes: []NodeDecl{
			{ID: "a", Type: "Add", Inputs: []PortDecl{{ID: "in", Type: "i32"}}, Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
			{ID: "b", Type: "Add", Inputs: []PortDecl{{ID: "in", Type: "i32"}}, Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
		},
		Connections: []ConnectionDecl{
			{FromNode: "a", FromPort: "out", ToNode: "b", ToPort: "in"},
			{FromNode: "b", FromPort: "out", ToNode: "a", ToPort: "in"},
		},
	}
	_, err := Load(doc)
	assertLoadErrorKind(t, err, CycleDetected)
}

func TestLoadDetectsUnknownReference(t *testing.T) {
	doc := &Document{
		Nodes: []NodeDecl{
			{ID: "a", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
		},
		Connections: []ConnectionDecl{
			{FromNode: "a", FromPort: "out", ToNode: "missing", ToPort: "in"},
		},
	}
	_, err := Load(doc)
	assertLoadErrorKind(t, err, UnknownReference)
}

func TestLoadDetectsNonNumericTypeMismatch(t *testing.T) {
	doc := &Document{
		Nodes: []NodeDecl{
			{ID: "a", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "string"}}},
			{ID: "b", Type: "Add", Inputs: []PortDecl{{ID: "in", Type: "i32"}}, Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
		},
		Connections: []ConnectionDecl{
			{FromNode: "a", FromPort: "out", ToNode: "b", ToPort: "in"},
		},
	}
	_, err := Load(doc)
	assertLoadErrorKind(t, err, TypeMismatch)
}

func TestLoadAllowsNumericCoercionAcrossEdges(t *testing.T) {
	doc := &Document{
		Nodes: []NodeDecl{
			{ID: "a", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
			{ID: "b", Type: "Add", Inputs: []PortDecl{{ID: "in", Type: "f64"}}, Outputs: []PortDecl{{ID: "out", Type: "f64"}}},
		},
		Connections: []ConnectionDecl{
			{FromNode: "a", FromPort: "out", ToNode: "b", ToPort: "in"},
		},
	}
	if _, err := Load(doc); err != nil {
		t.Fatalf("expected numeric coercion across edge to be allowed, got %v", err)
	}
}

func TestLoadDetectsDuplicateEdgeIntoOneInput(t *testing.T) {
	doc := &Document{
		Nodes: []NodeDecl{
			{ID: "a", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
			{ID: "b", Type: "Value", Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
			{ID: "c", Type: "Add", Inputs: []PortDecl{{ID: "in", Type: "i32"}}, Outputs: []PortDecl{{ID: "out", Type: "i32"}}},
		},
		Connections: []ConnectionDecl{
			{FromNode: "a", FromPort: "out", ToNode: "c", ToPort: "in"},
			{FromNode: "b", FromPort: "out", ToNode: "c", ToPort: "in"},
		},
	}
	_, err := Load(doc)
	assertLoadErrorKind(t, err, DuplicateEdge)
}

func TestLoadForwardDependentsOrderedByTopoThenID(t *testing.T) {
	g, err := Load(addChainDoc())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v1, _ := g.NodeIndexByID("v1")
	add1, _ := g.NodeIndexByID("add1")
	deps := g.ForwardDependents[v1]
	if len(deps) != 1 || deps[0] != add1 {
		t.Errorf("ForwardDependents[v1] = %v, want [%d]", deps, add1)
	}
}

func assertLoadErrorKind(t *testing.T, err error, want LoadErrorKind) {
	t.Helper()
	le, ok := err.(*LoadError)
	if !ok {
		t.Fatalf("expected *LoadError, got %T (%v)", err, err)
	}
	if le.Kind != want {
		t.Errorf("LoadError.Kind = %v, want %v", le.Kind, want)
	}
}
