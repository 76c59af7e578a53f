package record

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/cdorrell/tunetap/internal/audio"
)

// Sink consumes raw PCM and persists an encoded audio file. Implementations
// must tolerate Release after Drain, and Release without Drain (the output
// file may then be unusable).
type Sink interface {
	io.Writer
	// Drain signals end of input and waits at most timeout for the
	// encoder to flush and close the file cleanly.
	Drain(timeout time.Duration) error
	// Release tears the resource down unconditionally.
	Release() error
}

// SinkFactory creates a sink writing to the given path.
type SinkFactory func(path string) (Sink, error)

// vorbisSink encodes PCM to an Ogg Vorbis file through an FFmpeg process.
type vorbisSink struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	done     chan error
	finished bool
}

// NewVorbisSink spawns an FFmpeg encoder expecting 48kHz s16le stereo on
// stdin and writing Ogg Vorbis to path.
func NewVorbisSink(path string) (Sink, error) {
	cmd := exec.Command("ffmpeg",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-c:a", "libvorbis",
		"-loglevel", "error",
		"-y", path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder start: %w", err)
	}

	s := &vorbisSink{cmd: cmd, stdin: stdin, done: make(chan error, 1)}
	go func() { s.done <- cmd.Wait() }()
	return s, nil
}

func (s *vorbisSink) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Drain closes the encoder's input and waits for it to finish the file.
// The wait is bounded: a wedged encoder is killed and reported.
func (s *vorbisSink) Drain(timeout time.Duration) error {
	s.stdin.Close()
	select {
	case err := <-s.done:
		s.finished = true
		if err != nil {
			return fmt.Errorf("encoder exit: %w", err)
		}
		return nil
	case <-time.After(timeout):
		s.cmd.Process.Kill()
		<-s.done
		s.finished = true
		return fmt.Errorf("encoder flush timed out after %v", timeout)
	}
}

func (s *vorbisSink) Release() error {
	if s.finished {
		return nil
	}
	s.stdin.Close()
	s.cmd.Process.Kill()
	<-s.done
	s.finished = true
	return nil
}
