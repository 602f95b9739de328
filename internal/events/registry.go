package events

import "fmt"

// allowedEvents is the closed vocabulary Emit accepts, mirroring the
// lifecycle of a loaded graph: load, evaluation, external input, system.
var allowedEvents = map[string]struct{}{
	// graph lifecycle
	"graph.loaded":      {},
	"graph.load_failed": {},

	// evaluation
	"node.evaluated":       {},
	"generation.advanced":  {},
	"timer.fired":          {},
	"counter.incremented":  {},

	// external input
	"input.set":           {},
	"input.unknown_node":  {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate reports an error if event is not a recognized event name.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
