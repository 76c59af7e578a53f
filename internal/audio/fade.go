package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// FadeOut attenuates the last fadeSamples of the buffer down to silence
// using a smoothstep curve. Applied at split points to avoid clicks.
// Counts are in interleaved samples and should be channel-aligned.
func FadeOut(samples []int16, fadeSamples int) {
	if fadeSamples > len(samples) {
		fadeSamples = len(samples)
	}
	start := len(samples) - fadeSamples
	for i := 0; i < fadeSamples; i++ {
		gain := 1 - Smoothstep(float64(i)/float64(fadeSamples))
		samples[start+i] = int16(float64(samples[start+i]) * gain)
	}
}

// FadeIn ramps the first fadeSamples of the buffer up from silence using a
// smoothstep curve.
func FadeIn(samples []int16, fadeSamples int) {
	if fadeSamples > len(samples) {
		fadeSamples = len(samples)
	}
	for i := 0; i < fadeSamples; i++ {
		gain := Smoothstep(float64(i) / float64(fadeSamples))
		samples[i] = int16(float64(samples[i]) * gain)
	}
}
