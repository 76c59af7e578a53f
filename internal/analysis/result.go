// Package analysis estimates where one song ends and the next begins inside
// a decoded audio region. Metadata events lag or lead the true acoustic
// transition, so the engine uses these detectors to sharpen the cut point
// when it can; everything here is advisory and never fatal.
package analysis

// Method identifies which detection technique produced a result.
type Method string

const (
	MethodSilence  Method = "silence"
	MethodSpectral Method = "spectral"
	MethodCombined Method = "combined"
	MethodNone     Method = "none"
)

// Result is the outcome of one boundary analysis. Position is in seconds
// from the start of the analyzed region; Confidence is in [0, 1].
type Result struct {
	Found      bool
	Position   float64
	Confidence float64
	Method     Method
	Details    string
}
