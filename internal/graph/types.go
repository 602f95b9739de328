// Package graph implements the immutable-after-load graph store: node,
// port and edge tables, deterministic handle interning, topological order
// and the reverse/forward adjacency tables the scheduler needs.
package graph

import "github.com/nodeflowio/nodeflow/internal/nfvalue"

// Direction is whether a port is a node input or a node output.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// NodeKind is the closed set of built-in node kinds the engine understands.
type NodeKind int

const (
	KindValue NodeKind = iota
	KindDeviceTrigger
	KindTimer
	KindCounter
	KindAdd
)

func (k NodeKind) String() string {
	switch k {
	case KindValue:
		return "Value"
	case KindDeviceTrigger:
		return "DeviceTrigger"
	case KindTimer:
		return "Timer"
	case KindCounter:
		return "Counter"
	case KindAdd:
		return "Add"
	default:
		return "Unknown"
	}
}

// ParseNodeKind maps a document's node "type" string to a NodeKind.
func ParseNodeKind(s string) (NodeKind, bool) {
	switch s {
	case "Value":
		return KindValue, true
	case "DeviceTrigger":
		return KindDeviceTrigger, true
	case "Timer":
		return KindTimer, true
	case "Counter":
		return KindCounter, true
	case "Add":
		return KindAdd, true
	default:
		return 0, false
	}
}

// PortHandle is the dense, globally unique integer identity assigned to
// every declared port in load order (inputs before outputs, per node).
type PortHandle int

// PortDecl is a single input or output port as declared in a graph document.
type PortDecl struct {
	ID   string
	Type string // "i32" | "f32" | "f64" | "string"
}

// NodeDecl is a single node as declared in a graph document.
type NodeDecl struct {
	ID         string
	Type       string // node kind name
	Inputs     []PortDecl
	Outputs    []PortDecl
	Parameters map[string]interface{}
}

// ConnectionDecl is a single edge as declared in a graph document.
type ConnectionDecl struct {
	FromNode string
	FromPort string
	ToNode   string
	ToPort   string
}

// Document is the already-parsed external description the engine
// consumes; ingestion (JSON/YAML decoding) lives in internal/graphdoc.
type Document struct {
	Nodes       []NodeDecl
	Connections []ConnectionDecl
}

// PortInfo describes one interned port.
type PortInfo struct {
	NodeIndex int
	PortID    string
	Direction Direction
	Type      nfvalue.Kind
}

// NodeInfo describes one interned node.
type NodeInfo struct {
	ID            string
	Kind          NodeKind
	InputHandles  []PortHandle
	OutputHandles []PortHandle
	Parameters    map[string]nfvalue.Value
	ParametersRaw map[string]interface{}
}

// Graph is the immutable-after-load set of tables described in spec §3/§4.1.
type Graph struct {
	Nodes []NodeInfo
	Ports []PortInfo

	nodeIndexByID map[string]int
	portHandle    map[portKey]PortHandle

	// TopoOrder is a sequence of node indices such that for every edge the
	// source node precedes the destination node.
	TopoOrder []int
	// TopoIndexOfNode maps a node index to its position in TopoOrder.
	TopoIndexOfNode []int

	// ReverseAdjacency maps an output port handle to the ordered list of
	// input port handles it feeds.
	ReverseAdjacency [][]PortHandle
	// ForwardDependents maps a node index to the ordered list of downstream
	// node indices that consume any of its outputs.
	ForwardDependents [][]int
	// ProducerOf maps an input port handle to the output port handle that
	// feeds it, or -1 if the input is unconnected.
	ProducerOf []PortHandle

	TotalPorts int
}

type portKey struct {
	nodeIndex int
	portID    string
	dir       Direction
}

// NodeIndexByID returns the load-order index of a node, if it exists.
func (g *Graph) NodeIndexByID(id string) (int, bool) {
	idx, ok := g.nodeIndexByID[id]
	return idx, ok
}

// PortHandleOf is a pure lookup: node id, port id, direction -> handle.
func (g *Graph) PortHandleOf(nodeID, portID string, dir Direction) (PortHandle, bool) {
	idx, ok := g.nodeIndexByID[nodeID]
	if !ok {
		return 0, false
	}
	h, ok := g.portHandle[portKey{idx, portID, dir}]
	return h, ok
}

// QualifiedName returns the "node_id:port_id" identifier used by the
// full-snapshot view (§4.5).
func (g *Graph) QualifiedName(h PortHandle) string {
	p := g.Ports[h]
	return g.Nodes[p.NodeIndex].ID + ":" + p.PortID
}
