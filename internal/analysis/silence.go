package analysis

import (
	"fmt"
	"math"
)

// silenceWindow is the RMS measurement window for loudness scanning.
const silenceWindowMS = 10

// detectSilence scans a mono region for intervals quieter than the dB
// threshold lasting at least the minimum duration. The boundary candidate
// is the midpoint of the longest such interval.
func (d *Detector) detectSilence(samples []float64, sampleRate int) Result {
	win := sampleRate * silenceWindowMS / 1000
	if win < 1 {
		win = 1
	}
	if len(samples) < win {
		return Result{Method: MethodSilence, Details: "region too short"}
	}

	minWindows := int(d.MinSilence.Seconds() * 1000 / silenceWindowMS)
	if minWindows < 1 {
		minWindows = 1
	}

	// Longest run of consecutive quiet windows.
	var bestStart, bestLen, runStart, runLen int
	windows := len(samples) / win
	for i := 0; i < windows; i++ {
		if windowDB(samples[i*win:(i+1)*win]) < d.SilenceThresholdDB {
			if runLen == 0 {
				runStart = i
			}
			runLen++
			if runLen > bestLen {
				bestStart = runStart
				bestLen = runLen
			}
		} else {
			runLen = 0
		}
	}

	if bestLen < minWindows {
		return Result{Method: MethodSilence, Details: "no silence detected"}
	}

	durMS := bestLen * silenceWindowMS
	midWindow := float64(bestStart) + float64(bestLen)/2
	position := midWindow * float64(win) / float64(sampleRate)

	// 200ms of silence is weak evidence, 500ms+ is nearly certain.
	confidence := math.Min(0.9, 0.5+float64(durMS)/1000*0.8)

	return Result{
		Found:      true,
		Position:   position,
		Confidence: confidence,
		Method:     MethodSilence,
		Details:    fmt.Sprintf("found %dms silence at %.2fs", durMS, position),
	}
}

// windowDB returns the RMS level of a window in dBFS.
func windowDB(window []float64) float64 {
	var sum float64
	for _, s := range window {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(window)))
	if rms <= 0 {
		return -120
	}
	return 20 * math.Log10(rms)
}
