package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// detectSpectral finds the boundary candidate with the largest change in
// frequency content. Crossfaded transitions rarely contain silence, but the
// incoming song still shifts the spectrum; the strongest onset backed by
// high local spectral flux marks the likely splice.
func (d *Detector) detectSpectral(samples []float64, sampleRate int) Result {
	if len(samples) < sampleRate {
		return Result{Method: MethodSpectral, Details: "region too short"}
	}

	mags := stftMagnitudes(samples, d.FrameLength, d.HopLength)
	if len(mags) < 3 {
		return Result{Method: MethodSpectral, Details: "region too short"}
	}

	// Frame-to-frame spectral flux: magnitude of change per hop, and a
	// rectified onset-strength envelope (increases only).
	flux := make([]float64, len(mags)-1)
	onsetEnv := make([]float64, len(mags)-1)
	for t := 1; t < len(mags); t++ {
		var sq, rect float64
		for f := range mags[t] {
			diff := mags[t][f] - mags[t-1][f]
			sq += diff * diff
			if diff > 0 {
				rect += diff
			}
		}
		flux[t-1] = math.Sqrt(sq)
		onsetEnv[t-1] = rect
	}

	// A steady spectrum produces only numerical ripple in the envelope;
	// require the strongest rise to be a meaningful fraction of the
	// average frame energy before calling anything an onset.
	var meanMag, maxEnv float64
	for _, m := range mags {
		for _, v := range m {
			meanMag += v
		}
	}
	meanMag /= float64(len(mags))
	for _, v := range onsetEnv {
		if v > maxEnv {
			maxEnv = v
		}
	}
	if maxEnv < meanMag*0.02 {
		return Result{Method: MethodSpectral, Details: "spectrum steady, no onsets"}
	}

	onsets := detectOnsets(onsetEnv)
	if len(onsets) == 0 {
		return Result{Method: MethodSpectral, Details: "no onsets detected"}
	}

	// Pick the onset with the highest spectral flux in a small window
	// around it.
	bestOnset := onsets[0]
	bestFlux := 0.0
	for _, frame := range onsets {
		lo := frame - 5
		if lo < 0 {
			lo = 0
		}
		hi := frame + 5
		if hi > len(flux) {
			hi = len(flux)
		}
		local := 0.0
		for _, v := range flux[lo:hi] {
			if v > local {
				local = v
			}
		}
		if local > bestFlux {
			bestFlux = local
			bestOnset = frame
		}
	}

	// onsetEnv[i] measures the change from frame i to frame i+1, so the
	// incoming content begins at frame i+1.
	position := float64(bestOnset+1) * float64(d.HopLength) / float64(sampleRate)

	var avgFlux float64
	for _, v := range flux {
		avgFlux += v
	}
	avgFlux /= float64(len(flux))

	confidence := 0.5
	if avgFlux > 0 {
		confidence = math.Min(0.9, 0.4+bestFlux/avgFlux*0.1)
	}

	return Result{
		Found:      true,
		Position:   position,
		Confidence: confidence,
		Method:     MethodSpectral,
		Details:    fmt.Sprintf("spectral change at %.2fs (flux: %.2f)", position, bestFlux),
	}
}

// stftMagnitudes computes a short-time magnitude spectrogram with a hann
// window, positive frequencies only.
func stftMagnitudes(x []float64, frameLen, hop int) [][]float64 {
	if len(x) < frameLen {
		return nil
	}
	win := hann(frameLen)
	fft := fourier.NewFFT(frameLen)

	frames := 1 + (len(x)-frameLen)/hop
	mags := make([][]float64, frames)
	buf := make([]float64, frameLen)
	for i := 0; i < frames; i++ {
		start := i * hop
		for k := 0; k < frameLen; k++ {
			buf[k] = x[start+k] * win[k]
		}
		coeffs := fft.Coefficients(nil, buf)
		m := make([]float64, frameLen/2)
		for f := range m {
			m[f] = cmplx.Abs(coeffs[f])
		}
		mags[i] = m
	}
	return mags
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// detectOnsets returns frames where the onset envelope rises to a local
// maximum above mean + one standard deviation.
func detectOnsets(env []float64) []int {
	if len(env) == 0 {
		return nil
	}
	var mean float64
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))
	var variance float64
	for _, v := range env {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(env)))
	threshold := mean + std
	if threshold <= 0 {
		return nil
	}

	var onsets []int
	for i := 1; i < len(env)-1; i++ {
		if env[i] >= threshold && env[i] >= env[i-1] && env[i] > env[i+1] {
			onsets = append(onsets, i)
		}
	}
	return onsets
}
