package analysis

import (
	"fmt"
	"math"
	"time"
)

// Detector combines independent boundary heuristics into one verdict.
//
// Silence detection runs first: it is cheap and usually right for stations
// that leave a gap between songs. Spectral analysis handles crossfades.
// When both fire close together, their agreement raises confidence above
// what either signal earns alone.
type Detector struct {
	SilenceThresholdDB float64       // loudness floor, default -40 dB
	MinSilence         time.Duration // shortest interval that counts, default 200ms
	FrameLength        int           // STFT window, default 2048
	HopLength          int           // STFT hop, default 512
}

// NewDetector returns a detector with default tuning.
func NewDetector() *Detector {
	return &Detector{
		SilenceThresholdDB: -40,
		MinSilence:         200 * time.Millisecond,
		FrameLength:        2048,
		HopLength:          512,
	}
}

// FindBoundary analyzes a mono region and returns the best boundary
// estimate. A not-found result with method "none" means the caller should
// keep the metadata-derived cut.
func (d *Detector) FindBoundary(samples []float64, sampleRate int) Result {
	if sampleRate <= 0 || len(samples) == 0 {
		return Result{Method: MethodNone, Details: "empty region"}
	}

	silence := d.detectSilence(samples, sampleRate)
	if silence.Found && silence.Confidence > 0.7 {
		return silence
	}

	spectral := d.detectSpectral(samples, sampleRate)
	if spectral.Found && spectral.Confidence > 0.6 {
		return spectral
	}

	if silence.Found && spectral.Found {
		if combined, ok := Combine(silence, spectral); ok {
			return combined
		}
	}

	if silence.Found {
		return silence
	}
	if spectral.Found {
		return spectral
	}
	return Result{Method: MethodNone, Details: "no song boundary detected"}
}

// Combine merges two independent results into a higher-confidence one when
// their positions agree within a second. Agreement between independent
// signals is worth more than either alone.
func Combine(a, b Result) (Result, bool) {
	if !a.Found || !b.Found {
		return Result{}, false
	}
	diff := math.Abs(a.Position - b.Position)
	if diff >= 1.0 {
		return Result{}, false
	}
	return Result{
		Found:      true,
		Position:   (a.Position + b.Position) / 2,
		Confidence: math.Min(1.0, (a.Confidence+b.Confidence)/2+0.2),
		Method:     MethodCombined,
		Details:    fmt.Sprintf("%s and %s agree (diff: %.2fs)", a.Method, b.Method, diff),
	}, true
}
