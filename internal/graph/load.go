package graph

import (
	"sort"

	"github.com/nodeflowio/nodeflow/internal/nfvalue"
)

// Load translates a parsed graph document into the immutable tables
// described in spec §3/§4.1, assigning handles deterministically: for each
// node in declared order, input ports are interned before output ports,
// both in their declared order. Two loads of an identical document produce
// identical handle assignments.
func Load(doc *Document) (*Graph, error) {
	g := &Graph{
		nodeIndexByID: make(map[string]int, len(doc.Nodes)),
		portHandle:    make(map[portKey]PortHandle),
	}
	g.Nodes = make([]NodeInfo, 0, len(doc.Nodes))

	for _, nd := range doc.Nodes {
		if _, dup := g.nodeIndexByID[nd.ID]; dup {
			return nil, newLoadError(DuplicateNodeId, "duplicate node id %q", nd.ID)
		}
		kind, ok := ParseNodeKind(nd.Type)
		if !ok {
			return nil, newLoadError(UnknownReference, "node %q: unrecognized node kind %q", nd.ID, nd.Type)
		}

		nodeIdx := len(g.Nodes)
		g.nodeIndexByID[nd.ID] = nodeIdx

		info := NodeInfo{
			ID:            nd.ID,
			Kind:          kind,
			Parameters:    make(map[string]nfvalue.Value, len(nd.Parameters)),
			ParametersRaw: nd.Parameters,
		}
		for k, v := range nd.Parameters {
			info.Parameters[k] = parseParamValue(v)
		}

		for _, in := range nd.Inputs {
			typ, err := nfvalue.ParseKind(in.Type)
			if err != nil {
				return nil, newLoadError(TypeMismatch, "node %q input %q: %v", nd.ID, in.ID, err)
			}
			h := PortHandle(len(g.Ports))
			g.Ports = append(g.Ports, PortInfo{NodeIndex: nodeIdx, PortID: in.ID, Direction: Input, Type: typ})
			g.portHandle[portKey{nodeIdx, in.ID, Input}] = h
			info.InputHandles = append(info.InputHandles, h)
		}
		for _, out := range nd.Outputs {
			typ, err := nfvalue.ParseKind(out.Type)
			if err != nil {
				return nil, newLoadError(TypeMismatch, "node %q output %q: %v", nd.ID, out.ID, err)
			}
			h := PortHandle(len(g.Ports))
			g.Ports = append(g.Ports, PortInfo{NodeIndex: nodeIdx, PortID: out.ID, Direction: Output, Type: typ})
			g.portHandle[portKey{nodeIdx, out.ID, Output}] = h
			info.OutputHandles = append(info.OutputHandles, h)
		}

		g.Nodes = append(g.Nodes, info)
	}

	g.TotalPorts = len(g.Ports)
	g.ReverseAdjacency = make([][]PortHandle, g.TotalPorts)
	g.ProducerOf = make([]PortHandle, g.TotalPorts)
	for i := range g.ProducerOf {
		g.ProducerOf[i] = -1
	}

	nodeEdges := make([]map[int]bool, len(g.Nodes))
	for i := range nodeEdges {
		nodeEdges[i] = make(map[int]bool)
	}
	indegree := make([]int, len(g.Nodes))

	for _, c := range doc.Connections {
		fromIdx, ok := g.nodeIndexByID[c.FromNode]
		if !ok {
			return nil, newLoadError(UnknownReference, "connection references unknown node %q", c.FromNode)
		}
		toIdx, ok := g.nodeIndexByID[c.ToNode]
		if !ok {
			return nil, newLoadError(UnknownReference, "connection references unknown node %q", c.ToNode)
		}
		fromHandle, ok := g.portHandle[portKey{fromIdx, c.FromPort, Output}]
		if !ok {
			return nil, newLoadError(UnknownReference, "node %q has no output port %q", c.FromNode, c.FromPort)
		}
		toHandle, ok := g.portHandle[portKey{toIdx, c.ToPort, Input}]
		if !ok {
			return nil, newLoadError(UnknownReference, "node %q has no input port %q", c.ToNode, c.ToPort)
		}
		if g.ProducerOf[toHandle] != -1 {
			return nil, newLoadError(DuplicateEdge, "input %s:%s already has an incoming connection", c.ToNode, c.ToPort)
		}

		fromType := g.Ports[fromHandle].Type
		toType := g.Ports[toHandle].Type
		if err := checkTypeCompat(fromType, toType, c); err != nil {
			return nil, err
		}

		g.ProducerOf[toHandle] = fromHandle
		g.ReverseAdjacency[fromHandle] = append(g.ReverseAdjacency[fromHandle], toHandle)

		if fromIdx != toIdx && !nodeEdges[fromIdx][toIdx] {
			nodeEdges[fromIdx][toIdx] = true
			indegree[toIdx]++
		}
	}

	topo, err := kahnTopoSort(g, nodeEdges, indegree)
	if err != nil {
		return nil, err
	}
	g.TopoOrder = topo
	g.TopoIndexOfNode = make([]int, len(g.Nodes))
	for pos, nodeIdx := range topo {
		g.TopoIndexOfNode[nodeIdx] = pos
	}

	g.ForwardDependents = make([][]int, len(g.Nodes))
	for from, tos := range nodeEdges {
		deps := sortedKeys(tos)
		sort.Slice(deps, func(i, j int) bool {
			ti, tj := g.TopoIndexOfNode[deps[i]], g.TopoIndexOfNode[deps[j]]
			if ti != tj {
				return ti < tj
			}
			return g.Nodes[deps[i]].ID < g.Nodes[deps[j]].ID
		})
		g.ForwardDependents[from] = deps
	}

	return g, nil
}

// kahnTopoSort computes a deterministic topological order: nodes become
// ready in ascending load-order index, and successors are relaxed in
// ascending index order, so identical documents always yield identical
// orders (invariant: load(D).then(load(D)) agrees).
func kahnTopoSort(g *Graph, nodeEdges []map[int]bool, indegree []int) ([]int, error) {
	remaining := append([]int(nil), indegree...)
	queue := make([]int, 0, len(g.Nodes))
	for i := range g.Nodes {
		if remaining[i] == 0 {
			queue = append(queue, i)
		}
	}

	topo := make([]int, 0, len(g.Nodes))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		topo = append(topo, cur)

		for _, nxt := range sortedKeys(nodeEdges[cur]) {
			remaining[nxt]--
			if remaining[nxt] == 0 {
				queue = append(queue, nxt)
			}
		}
	}

	if len(topo) != len(g.Nodes) {
		return nil, newLoadError(CycleDetected, "cycle detected: %d of %d nodes are unreachable in topological order", len(g.Nodes)-len(topo), len(g.Nodes))
	}
	return topo, nil
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// checkTypeCompat implements the edge-type rule from §3 invariant 4:
// numeric-to-numeric connections are always allowed (coerced at write
// time); non-numeric connections must match exactly; numeric-to-non-numeric
// is rejected at load.
func checkTypeCompat(from, to nfvalue.Kind, c ConnectionDecl) error {
	fromNumeric, toNumeric := from.Numeric(), to.Numeric()
	switch {
	case fromNumeric && toNumeric:
		return nil
	case !fromNumeric && !toNumeric:
		if from != to {
			return newLoadError(TypeMismatch, "connection %s:%s -> %s:%s: non-numeric type mismatch (%v vs %v)",
				c.FromNode, c.FromPort, c.ToNode, c.ToPort, from, to)
		}
		return nil
	default:
		return newLoadError(TypeMismatch, "connection %s:%s -> %s:%s: numeric/non-numeric mismatch (%v vs %v)",
			c.FromNode, c.FromPort, c.ToNode, c.ToPort, from, to)
	}
}

// parseParamValue normalizes a document parameter (decoded from JSON/YAML
// into interface{}) into the value domain. Numbers are stored as f64
// regardless of the JSON/YAML lexical form that produced them; node-kind
// logic coerces to the port's declared type at the point of use, the same
// deferred-coercion approach the edges use.
func parseParamValue(raw interface{}) nfvalue.Value {
	switch v := raw.(type) {
	case string:
		return nfvalue.NewString(v)
	case bool:
		if v {
			return nfvalue.NewI32(1)
		}
		return nfvalue.NewI32(0)
	case int:
		return nfvalue.NewF64(float64(v))
	case int32:
		return nfvalue.NewF64(float64(v))
	case int64:
		return nfvalue.NewF64(float64(v))
	case float32:
		return nfvalue.NewF64(float64(v))
	case float64:
		return nfvalue.NewF64(v)
	default:
		return nfvalue.NewF64(0)
	}
}
