package engine

import (
	"github.com/nodeflowio/nodeflow/internal/graph"
	"github.com/nodeflowio/nodeflow/internal/nfvalue"
)

// execNode recomputes a node's outputs from its current input port
// values. DeviceTrigger and Timer outputs are computed by SetInput and
// Tick outside of a ready-queue drain; here their current values are only
// re-written, so the port carries the active generation stamp (which is how
// the cold-start sweep stamps every output port).
func (e *Engine) execNode(nodeIdx int) {
	node := &e.g.Nodes[nodeIdx]
	switch node.Kind {
	case graph.KindValue:
		e.execValue(node)
	case graph.KindAdd:
		e.execAdd(node)
	case graph.KindCounter:
		e.execCounter(nodeIdx, node)
	case graph.KindDeviceTrigger, graph.KindTimer:
		for _, out := range node.OutputHandles {
			e.writePort(out, e.portValues[out])
		}
	}
}

func (e *Engine) execValue(node *graph.NodeInfo) {
	if len(node.OutputHandles) == 0 {
		return
	}
	out := node.OutputHandles[0]
	typ := e.g.Ports[out].Type
	param, ok := node.Parameters["value"]
	if !ok {
		param = nfvalue.Zero(typ)
	}
	e.writePort(out, nfvalue.Coerce(param, typ))
}

// execAdd sums every input coerced to the output's declared kind, which is
// the node's compute type (spec §4.2: a node's compute type is its first
// declared output's type).
func (e *Engine) execAdd(node *graph.NodeInfo) {
	if len(node.OutputHandles) == 0 {
		return
	}
	out := node.OutputHandles[0]
	typ := e.g.Ports[out].Type

	var sum nfvalue.Value
	switch typ {
	case nfvalue.I32:
		var acc int32
		for _, in := range node.InputHandles {
			acc += e.portValues[in].AsI32()
		}
		sum = nfvalue.NewI32(acc)
	case nfvalue.F32:
		var acc float32
		for _, in := range node.InputHandles {
			acc += e.portValues[in].AsF32()
		}
		sum = nfvalue.NewF32(acc)
	default:
		var acc float64
		for _, in := range node.InputHandles {
			acc += e.portValues[in].AsF64()
		}
		sum = nfvalue.NewF64(acc)
	}
	e.writePort(out, sum)
}

// execCounter advances on a rising edge of its single input: the input
// reads as "high" when strictly greater than 0.5, else "low", and the
// count output increments on every low-to-high transition observed during
// evaluate (spec §4.3 — Counter advances during evaluate, not tick).
func (e *Engine) execCounter(nodeIdx int, node *graph.NodeInfo) {
	if len(node.InputHandles) == 0 || len(node.OutputHandles) == 0 {
		return
	}
	in := node.InputHandles[0]
	out := node.OutputHandles[0]

	inVal := e.portValues[in]
	highNow := inVal.AsF64() > 0.5
	if highNow && !e.counterWasHigh[nodeIdx] {
		e.counterCount[nodeIdx]++
	}
	e.counterWasHigh[nodeIdx] = highNow

	typ := e.g.Ports[out].Type
	e.writePort(out, nfvalue.Coerce(nfvalue.NewI32(e.counterCount[nodeIdx]), typ))
}

// tickTimer advances one Timer's accumulator by dtMS. Crossing the
// interval threshold raises the pulse output to 1 and arms it for the
// automatic fall back to 0 that Evaluate performs once the firing has
// been observed (spec §4.3: the pulse is transient, not level-based, so
// two firings in a row are two distinct rising edges). The node is
// always re-enqueued so the next evaluate call observes the pulse. A dtMS
// spanning several intervals still fires at most once per call; the
// remainder stays in the accumulator, so N pulses take N Tick calls.
func (e *Engine) tickTimer(nodeIdx int, dtMS float64) {
	node := &e.g.Nodes[nodeIdx]
	if len(node.OutputHandles) == 0 {
		return
	}
	out := node.OutputHandles[0]
	typ := e.g.Ports[out].Type

	interval := e.timerIntervalMS(node)
	e.timerAccumMS[nodeIdx] += dtMS

	var pulse nfvalue.Value
	if interval > 0 && e.timerAccumMS[nodeIdx] >= interval {
		e.timerAccumMS[nodeIdx] -= interval
		pulse = nfvalue.Coerce(nfvalue.NewI32(1), typ)
		e.timerPulseArmed[nodeIdx] = true
	} else {
		pulse = nfvalue.Coerce(nfvalue.NewI32(0), typ)
	}

	e.writePort(out, pulse)
	e.enqueue(nodeIdx)
}

func (e *Engine) timerIntervalMS(node *graph.NodeInfo) float64 {
	if v, ok := node.Parameters["interval_ms"]; ok {
		return v.AsF64()
	}
	return 0
}
