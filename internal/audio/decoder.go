package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// DecodeFile runs FFmpeg to decode an audio file to raw PCM int16 samples.
// Returns interleaved stereo samples at 48kHz.
func DecodeFile(path string) ([]int16, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	return BytesToSamples(out), nil
}

// DecodeTail decodes only the last seconds of an audio file. Used to
// analyze the end of a finished recording without decoding the whole track.
func DecodeTail(path string, seconds float64) ([]int16, error) {
	cmd := exec.Command("ffmpeg",
		"-sseof", fmt.Sprintf("-%.2f", seconds),
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode tail %s: %w", path, err)
	}
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}
	return BytesToSamples(out), nil
}

// StreamDecoder wraps an FFmpeg process that converts a compressed audio
// byte stream (MP3, AAC, OGG...) into raw 48kHz s16le stereo PCM.
// Compressed bytes go in via Write, PCM comes out via Read.
type StreamDecoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// StartStreamDecoder spawns the decode process. The process exits when the
// context is cancelled or the input side is closed.
func StartStreamDecoder(ctx context.Context) (*StreamDecoder, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("decoder start: %w", err)
	}
	return &StreamDecoder{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Write feeds compressed stream bytes to the decoder.
func (d *StreamDecoder) Write(p []byte) (int, error) {
	return d.stdin.Write(p)
}

// Read returns decoded PCM bytes.
func (d *StreamDecoder) Read(p []byte) (int, error) {
	return d.stdout.Read(p)
}

// CloseInput signals end of the compressed stream; the decoder flushes its
// remaining PCM and Read returns io.EOF afterwards.
func (d *StreamDecoder) CloseInput() error {
	return d.stdin.Close()
}

// Close tears the process down and reaps it.
func (d *StreamDecoder) Close() error {
	d.stdin.Close()
	d.stdout.Close()
	return d.cmd.Wait()
}
