package analysis

import (
	"math"
	"testing"
)

const testRate = 8000

// tone generates a sine at the given frequency and amplitude.
func tone(freq, amp float64, seconds float64) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

// --- Silence detection ---

func TestSilenceBoundaryInGap(t *testing.T) {
	// 12s of tone, 600ms of silence, 12s of tone.
	region := tone(440, 0.5, 12)
	region = append(region, make([]float64, int(0.6*testRate))...)
	region = append(region, tone(330, 0.5, 12)...)

	d := NewDetector()
	result := d.FindBoundary(region, testRate)

	if !result.Found {
		t.Fatalf("boundary not found: %s", result.Details)
	}
	if result.Method != MethodSilence {
		t.Errorf("Method = %s, want silence", result.Method)
	}
	if result.Position < 11.7 || result.Position > 12.3 {
		t.Errorf("Position = %.2f, want within [11.7, 12.3]", result.Position)
	}
	if result.Confidence < 0.85 {
		t.Errorf("Confidence = %.2f, want >= 0.85", result.Confidence)
	}
}

func TestSilenceConfidenceScalesWithDuration(t *testing.T) {
	d := NewDetector()

	short := tone(440, 0.5, 5)
	short = append(short, make([]float64, int(0.25*testRate))...)
	short = append(short, tone(440, 0.5, 5)...)

	long := tone(440, 0.5, 5)
	long = append(long, make([]float64, int(0.8*testRate))...)
	long = append(long, tone(440, 0.5, 5)...)

	rs := d.detectSilence(short, testRate)
	rl := d.detectSilence(long, testRate)
	if !rs.Found || !rl.Found {
		t.Fatalf("silence not found: short=%v long=%v", rs.Found, rl.Found)
	}
	if rs.Confidence >= rl.Confidence {
		t.Errorf("confidence did not scale: %0.2f (250ms) vs %0.2f (800ms)", rs.Confidence, rl.Confidence)
	}
	if rl.Confidence != 0.9 {
		t.Errorf("long silence Confidence = %.2f, want capped at 0.9", rl.Confidence)
	}
}

func TestNoSilenceInContinuousTone(t *testing.T) {
	d := NewDetector()
	result := d.detectSilence(tone(440, 0.5, 10), testRate)
	if result.Found {
		t.Errorf("silence found in continuous tone at %.2fs", result.Position)
	}
}

func TestShortSilenceIgnored(t *testing.T) {
	// 100ms gap is below the 200ms minimum.
	region := tone(440, 0.5, 5)
	region = append(region, make([]float64, int(0.1*testRate))...)
	region = append(region, tone(440, 0.5, 5)...)

	d := NewDetector()
	if result := d.detectSilence(region, testRate); result.Found {
		t.Errorf("sub-minimum silence reported at %.2fs", result.Position)
	}
}

// --- Spectral detection ---

func TestSpectralBoundaryAtContentChange(t *testing.T) {
	// Quiet low tone crossfading into a loud, spectrally different mix:
	// no silence anywhere, but a clear change at 4.0s.
	region := tone(220, 0.1, 4)
	second := tone(440, 0.35, 4)
	bright := tone(1300, 0.35, 4)
	for i := range second {
		second[i] += bright[i]
	}
	region = append(region, second...)

	d := NewDetector()
	result := d.FindBoundary(region, testRate)

	if !result.Found {
		t.Fatalf("boundary not found: %s", result.Details)
	}
	if result.Method != MethodSpectral {
		t.Errorf("Method = %s, want spectral", result.Method)
	}
	if result.Position < 3.5 || result.Position > 4.5 {
		t.Errorf("Position = %.2f, want near 4.0", result.Position)
	}
	if result.Confidence <= 0.6 {
		t.Errorf("Confidence = %.2f, want > 0.6", result.Confidence)
	}
}

func TestSpectralPositionAtIncomingFrame(t *testing.T) {
	// Non-overlapping frames and a boundary aligned to a frame start make
	// the expected position exact: the reported time is where the new
	// content begins, not the last frame of the old content.
	d := NewDetector()
	d.FrameLength = 512
	d.HopLength = 512

	boundary := 62 * 512
	region := make([]float64, boundary)
	region = append(region, tone(440, 0.35, 1)...)

	result := d.detectSpectral(region, testRate)
	if !result.Found {
		t.Fatalf("boundary not found: %s", result.Details)
	}
	want := float64(boundary) / testRate
	if math.Abs(result.Position-want) > 1e-9 {
		t.Errorf("Position = %.4f, want %.4f", result.Position, want)
	}
}

func TestSpectralRegionTooShort(t *testing.T) {
	d := NewDetector()
	result := d.detectSpectral(tone(440, 0.5, 0.5), testRate)
	if result.Found {
		t.Error("boundary reported in sub-second region")
	}
}

// --- Combination ---

func TestCombineAgreement(t *testing.T) {
	a := Result{Found: true, Position: 10.0, Confidence: 0.6, Method: MethodSilence}
	b := Result{Found: true, Position: 10.4, Confidence: 0.65, Method: MethodSpectral}

	combined, ok := Combine(a, b)
	if !ok {
		t.Fatal("Combine rejected agreeing results")
	}
	if combined.Method != MethodCombined {
		t.Errorf("Method = %s, want combined", combined.Method)
	}
	if math.Abs(combined.Position-10.2) > 1e-9 {
		t.Errorf("Position = %v, want 10.2", combined.Position)
	}
	if math.Abs(combined.Confidence-0.825) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.825", combined.Confidence)
	}
}

func TestCombineConfidenceCapped(t *testing.T) {
	a := Result{Found: true, Position: 5.0, Confidence: 0.9, Method: MethodSilence}
	b := Result{Found: true, Position: 5.1, Confidence: 0.9, Method: MethodSpectral}
	combined, ok := Combine(a, b)
	if !ok {
		t.Fatal("Combine rejected agreeing results")
	}
	if combined.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want capped at 1.0", combined.Confidence)
	}
}

func TestCombineDisagreement(t *testing.T) {
	a := Result{Found: true, Position: 10.0, Confidence: 0.6, Method: MethodSilence}
	b := Result{Found: true, Position: 11.5, Confidence: 0.65, Method: MethodSpectral}
	if _, ok := Combine(a, b); ok {
		t.Error("Combine accepted results 1.5s apart")
	}
}

func TestCombineRequiresBothFound(t *testing.T) {
	a := Result{Found: true, Position: 10.0, Confidence: 0.6}
	b := Result{Found: false}
	if _, ok := Combine(a, b); ok {
		t.Error("Combine accepted a not-found result")
	}
}

// --- FindBoundary fallbacks ---

func TestFindBoundaryEmptyRegion(t *testing.T) {
	d := NewDetector()
	result := d.FindBoundary(nil, testRate)
	if result.Found || result.Method != MethodNone {
		t.Errorf("empty region: Found=%v Method=%s, want not found / none", result.Found, result.Method)
	}
}

func TestFindBoundaryNothingDetected(t *testing.T) {
	// A steady tone has no silence and no onsets.
	d := NewDetector()
	result := d.FindBoundary(tone(440, 0.5, 6), testRate)
	if result.Found {
		t.Errorf("boundary reported in steady tone: %+v", result)
	}
	if result.Method != MethodNone {
		t.Errorf("Method = %s, want none", result.Method)
	}
}
