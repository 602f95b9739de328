// Package runtime provides the small set of helpers AOT-generated code
// imports: float comparisons that match the interpreter's change-detection
// semantics (internal/nfvalue's Equal), so a generated artifact's notion of
// "did this output change" stays parity-equivalent with the interpreter.
package runtime

import "math"

var canonicalNaN32 = math.Float32bits(float32(math.NaN()))
var canonicalNaN64 = math.Float64bits(math.NaN())

// Float32Equal compares two f32 values the way the interpreter's primary
// output change check does: bitwise, with NaN canonicalized so repeated
// NaN outputs reach a fixed point instead of re-propagating forever.
func Float32Equal(a, b float32) bool {
	ab, bb := math.Float32bits(a), math.Float32bits(b)
	if math.IsNaN(float64(a)) {
		ab = canonicalNaN32
	}
	if math.IsNaN(float64(b)) {
		bb = canonicalNaN32
	}
	return ab == bb
}

// Float64Equal is Float32Equal's f64 counterpart.
func Float64Equal(a, b float64) bool {
	ab, bb := math.Float64bits(a), math.Float64bits(b)
	if math.IsNaN(a) {
		ab = canonicalNaN64
	}
	if math.IsNaN(b) {
		bb = canonicalNaN64
	}
	return ab == bb
}
