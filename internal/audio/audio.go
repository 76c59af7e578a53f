package audio

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate     = 48000
	Channels       = 2
	BitDepth       = 16
	BytesPerSample = BitDepth / 8
	BytesPerSecond = SampleRate * Channels * BytesPerSample

	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples converts little-endian PCM bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	return samples
}

// MonoFloats downmixes interleaved stereo int16 samples to mono float64
// in [-1, 1], for analysis.
func MonoFloats(samples []int16) []float64 {
	out := make([]float64, len(samples)/Channels)
	for i := range out {
		var sum float64
		for c := 0; c < Channels; c++ {
			sum += float64(samples[i*Channels+c])
		}
		out[i] = sum / float64(Channels) / 32768.0
	}
	return out
}
