package graph

import "fmt"

// LoadError is the taxonomy of structural problems a Load can reject with
// (spec §7). A failed load never installs a partial graph.
type LoadError struct {
	Kind    LoadErrorKind
	Message string
}

// LoadErrorKind distinguishes the five ways a document can be malformed.
type LoadErrorKind int

const (
	CycleDetected LoadErrorKind = iota
	DuplicateNodeId
	UnknownReference
	TypeMismatch
	// DuplicateEdge enforces §3 invariant 4: every input port is the
	// destination of at most one edge. The base taxonomy in §7 doesn't name
	// this case explicitly; it is grouped with the other structural load
	// failures rather than silently letting the second edge win.
	DuplicateEdge
)

func (k LoadErrorKind) String() string {
	switch k {
	case CycleDetected:
		return "CycleDetected"
	case DuplicateNodeId:
		return "DuplicateNodeId"
	case UnknownReference:
		return "UnknownReference"
	case TypeMismatch:
		return "TypeMismatch"
	case DuplicateEdge:
		return "DuplicateEdge"
	default:
		return "UnknownLoadError"
	}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("graph: %s: %s", e.Kind, e.Message)
}

func newLoadError(kind LoadErrorKind, format string, args ...interface{}) *LoadError {
	return &LoadError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
