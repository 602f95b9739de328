// Package engine implements the interpreted evaluation engine: load-time
// validation handoff to internal/graph, the generation-stamped port arena,
// the ready-queue scheduler, and the change-observation views (snapshot and
// delta) described in spec §4.4/§4.5.
package engine

import (
	"github.com/google/uuid"

	"github.com/nodeflowio/nodeflow/internal/graph"
	"github.com/nodeflowio/nodeflow/internal/nfvalue"
)

// Engine holds one loaded graph's mutable runtime state: the port value
// arena, per-node scratch state for Timer/Counter kinds, the ready queue
// and the monotonic evaluation generation counter.
type Engine struct {
	// RunID identifies this loaded instance for event/log correlation; it
	// has no bearing on evaluation semantics.
	RunID string

	g *graph.Graph

	portValues     []nfvalue.Value
	portGeneration []uint64

	// primaryBaseline[i] is node i's primary output value as of the last
	// time the scheduler drained that node, used to decide whether to
	// enqueue its dependents.
	primaryBaseline []nfvalue.Value

	timerAccumMS    []float64
	timerPulseArmed []bool
	counterWasHigh  []bool
	counterCount    []int32

	// inputConfigMin/inputConfigMax hold the legacy min_interval/max_interval
	// timing knobs SetInputConfig accepts for a DeviceTrigger node. Nothing
	// in the engine reads them, and no exported method returns them.
	inputConfigMin []int
	inputConfigMax []int

	queue *readyQueue

	// evalGeneration is the count of completed Evaluate calls. It starts
	// at 0 and is incremented at the *start* of Evaluate, so the first
	// call stamps writes with generation 1.
	evalGeneration uint64
	// activeGen is the generation new port writes are stamped with; it is
	// evalGeneration while draining inside Evaluate, and evalGeneration+1
	// for writes (SetInput, Tick) that happen between Evaluate calls, so
	// those writes are visible to a Delta call before the next Evaluate.
	activeGen uint64
	started   bool

	// snapshotGeneration is a monotonic counter orthogonal to
	// evalGeneration, advanced only by BeginSnapshotGeneration.
	snapshotGeneration uint64
}

// Load validates doc via internal/graph and constructs a ready-to-run
// Engine with every port at its kind's zero value.
func Load(doc *graph.Document) (*Engine, error) {
	g, err := graph.Load(doc)
	if err != nil {
		return nil, err
	}
	if err := validateParameters(g); err != nil {
		return nil, err
	}

	e := &Engine{
		RunID:           uuid.NewString(),
		g:               g,
		portValues:      make([]nfvalue.Value, g.TotalPorts),
		portGeneration:  make([]uint64, g.TotalPorts),
		primaryBaseline: make([]nfvalue.Value, len(g.Nodes)),
		timerAccumMS:    make([]float64, len(g.Nodes)),
		timerPulseArmed: make([]bool, len(g.Nodes)),
		counterWasHigh:  make([]bool, len(g.Nodes)),
		counterCount:    make([]int32, len(g.Nodes)),
		inputConfigMin:  make([]int, len(g.Nodes)),
		inputConfigMax:  make([]int, len(g.Nodes)),
		queue:           newReadyQueue(g),
	}
	for h, p := range g.Ports {
		e.portValues[h] = nfvalue.Zero(p.Type)
	}
	for i, n := range g.Nodes {
		if len(n.OutputHandles) > 0 {
			e.primaryBaseline[i] = e.portValues[n.OutputHandles[0]]
		}
	}
	return e, nil
}

func validateParameters(g *graph.Graph) error {
	for _, n := range g.Nodes {
		if n.Kind != graph.KindTimer {
			continue
		}
		v, ok := n.Parameters["interval_ms"]
		if !ok || v.AsF64() <= 0 {
			return newParameterError("node %q: Timer requires a positive \"interval_ms\" parameter", n.ID)
		}
	}
	return nil
}

// Graph exposes the underlying immutable graph store, e.g. for the AOT
// code generator to read port descriptors and topological order.
func (e *Engine) Graph() *graph.Graph { return e.g }

func (e *Engine) writePort(handle graph.PortHandle, v nfvalue.Value) {
	e.portValues[handle] = v
	e.portGeneration[handle] = e.activeGen
}

func (e *Engine) enqueue(nodeIdx int) { e.queue.push(nodeIdx) }

// SetInput drives an external value into a DeviceTrigger node's output
// port and schedules the node for the next Evaluate call (spec §4.3/§6.2).
func (e *Engine) SetInput(nodeID, portID string, v nfvalue.Value) error {
	idx, ok := e.g.NodeIndexByID(nodeID)
	if !ok {
		return newRuntimeMissError("set_input: unknown node %q", nodeID)
	}
	if e.g.Nodes[idx].Kind != graph.KindDeviceTrigger {
		return newRuntimeMissError("set_input: node %q is not a DeviceTrigger", nodeID)
	}
	handle, ok := e.g.PortHandleOf(nodeID, portID, graph.Output)
	if !ok {
		return newRuntimeMissError("set_input: node %q has no output port %q", nodeID, portID)
	}

	typ := e.g.Ports[handle].Type
	e.activeGen = e.evalGeneration + 1
	e.writePort(handle, nfvalue.Coerce(v, typ))
	e.enqueue(idx)
	return nil
}

// SetInputConfig stores the legacy min_interval/max_interval timing knobs
// for a random-timed DeviceTrigger (spec §6.1/§6.2). The core engine does
// not act on these values, and no exported method reads them back.
func (e *Engine) SetInputConfig(nodeID string, min, max int) error {
	idx, ok := e.g.NodeIndexByID(nodeID)
	if !ok {
		return newRuntimeMissError("set_input_config: unknown node %q", nodeID)
	}
	if e.g.Nodes[idx].Kind != graph.KindDeviceTrigger {
		return newRuntimeMissError("set_input_config: node %q is not a DeviceTrigger", nodeID)
	}
	e.inputConfigMin[idx] = min
	e.inputConfigMax[idx] = max
	return nil
}

// Tick advances every Timer node's accumulator by dtMS independently of
// Evaluate (spec §4.3). Timer pulses raised here become visible once the
// next Evaluate call drains the queue.
func (e *Engine) Tick(dtMS float64) {
	e.activeGen = e.evalGeneration + 1
	for nodeIdx := range e.g.Nodes {
		if e.g.Nodes[nodeIdx].Kind == graph.KindTimer {
			e.tickTimer(nodeIdx, dtMS)
		}
	}
}

// Evaluate drains the ready queue once: the first call after Load performs
// a full topological sweep; subsequent calls process only nodes made dirty
// by SetInput, Tick, or upstream propagation since the last call. It
// returns the generation stamp assigned to this call's writes.
func (e *Engine) Evaluate() uint64 {
	e.evalGeneration++
	e.activeGen = e.evalGeneration
	if !e.started {
		e.started = true
		e.queue.fillAllInTopoOrder()
	}
	e.drainQueue()
	if e.fallArmedTimerPulses() {
		e.drainQueue()
	}
	return e.evalGeneration
}

func (e *Engine) drainQueue() {
	for {
		nodeIdx, ok := e.queue.popFront()
		if !ok {
			return
		}
		e.execNode(nodeIdx)
		e.propagateOutputs(nodeIdx)
		e.notifyIfPrimaryChanged(nodeIdx)
	}
}

// notifyIfPrimaryChanged enqueues nodeIdx's forward dependents when its
// primary output differs from the value observed the last time this node
// was processed.
func (e *Engine) notifyIfPrimaryChanged(nodeIdx int) {
	node := &e.g.Nodes[nodeIdx]
	if len(node.OutputHandles) == 0 {
		return
	}
	primary := node.OutputHandles[0]
	cur := e.portValues[primary]
	changed := !cur.Equal(e.primaryBaseline[nodeIdx])
	e.primaryBaseline[nodeIdx] = cur
	if changed {
		for _, dep := range e.g.ForwardDependents[nodeIdx] {
			e.enqueue(dep)
		}
	}
}

// fallArmedTimerPulses clears every Timer pulse that fired during the
// ticks since the last Evaluate call, so a pulse reads as one for exactly
// the evaluation following its firing and zero afterward (spec §4.3). It
// reports whether any pulse changed and needs its dependents re-drained.
func (e *Engine) fallArmedTimerPulses() bool {
	any := false
	for nodeIdx := range e.g.Nodes {
		if e.g.Nodes[nodeIdx].Kind != graph.KindTimer || !e.timerPulseArmed[nodeIdx] {
			continue
		}
		e.timerPulseArmed[nodeIdx] = false

		node := &e.g.Nodes[nodeIdx]
		if len(node.OutputHandles) == 0 {
			continue
		}
		out := node.OutputHandles[0]
		typ := e.g.Ports[out].Type
		e.writePort(out, nfvalue.Coerce(nfvalue.NewI32(0), typ))
		e.propagateOutputs(nodeIdx)
		e.notifyIfPrimaryChanged(nodeIdx)
		any = true
	}
	return any
}

// propagateOutputs copies a node's freshly computed outputs into every
// consumer input port they feed, coerced to the consumer's declared type
// (spec §4.4 step 5, §4.2). Without this, downstream nodes only ever see
// their zero-initialized input slots.
func (e *Engine) propagateOutputs(nodeIdx int) {
	node := &e.g.Nodes[nodeIdx]
	for _, out := range node.OutputHandles {
		v := e.portValues[out]
		for _, in := range e.g.ReverseAdjacency[out] {
			typ := e.g.Ports[in].Type
			e.writePort(in, nfvalue.Coerce(v, typ))
		}
	}
}

// CurrentEvaluationGeneration returns the generation stamp of the most
// recently completed Evaluate call (0 before the first call).
func (e *Engine) CurrentEvaluationGeneration() uint64 { return e.evalGeneration }

// BeginSnapshotGeneration advances and returns the snapshot generation
// counter: a monotonic counter orthogonal to the evaluation generation,
// which an observer bumps when it begins composing a snapshot (spec
// §3/§6.2).
func (e *Engine) BeginSnapshotGeneration() uint64 {
	e.snapshotGeneration++
	return e.snapshotGeneration
}

// PortHandle resolves a node id/port id/direction to its interned handle.
func (e *Engine) PortHandle(nodeID, portID string, dir graph.Direction) (graph.PortHandle, bool) {
	return e.g.PortHandleOf(nodeID, portID, dir)
}

// Snapshot returns "node_id:port_id" -> value for every output port,
// regardless of generation (spec §4.5's full-snapshot view).
func (e *Engine) Snapshot() map[string]nfvalue.Value {
	out := make(map[string]nfvalue.Value, e.g.TotalPorts)
	for h, p := range e.g.Ports {
		if p.Direction != graph.Output {
			continue
		}
		handle := graph.PortHandle(h)
		out[e.g.QualifiedName(handle)] = e.portValues[h]
	}
	return out
}

// Delta returns every output port whose generation stamp exceeds
// watermark, at most once per port (spec §4.5's delta-since-watermark
// view).
func (e *Engine) Delta(watermark uint64) map[graph.PortHandle]nfvalue.Value {
	out := make(map[graph.PortHandle]nfvalue.Value)
	for h, p := range e.g.Ports {
		if p.Direction != graph.Output {
			continue
		}
		if e.portGeneration[h] > watermark {
			out[graph.PortHandle(h)] = e.portValues[h]
		}
	}
	return out
}
