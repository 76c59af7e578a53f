package analysis

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/cdorrell/tunetap/internal/audio"
)

// splitFadeMS is the fade applied on each side of a cut to avoid clicks.
const splitFadeMS = 20

// SplitAt re-encodes a recording into two files: everything before the
// boundary and everything after. Used when a metadata-triggered cut turns
// out to be acoustically imprecise and a corrected split is wanted post hoc.
func SplitAt(src string, boundarySeconds float64, beforePath, afterPath string) error {
	samples, err := audio.DecodeFile(src)
	if err != nil {
		return fmt.Errorf("split decode: %w", err)
	}

	cut := int(boundarySeconds * audio.SampleRate * audio.Channels)
	cut -= cut % audio.Channels
	if cut <= 0 || cut >= len(samples) {
		return fmt.Errorf("split boundary %.2fs outside recording", boundarySeconds)
	}

	fade := splitFadeMS * audio.SampleRate / 1000 * audio.Channels
	before := samples[:cut]
	after := append([]int16(nil), samples[cut:]...)
	audio.FadeOut(before, fade)
	audio.FadeIn(after, fade)

	if err := encodeVorbis(beforePath, before); err != nil {
		return err
	}
	if err := encodeVorbis(afterPath, after); err != nil {
		os.Remove(beforePath)
		return err
	}
	return nil
}

// TrimEnd cuts the given number of seconds off the end of a recording,
// re-encoding in place. A no-op when the cut would leave nothing.
func TrimEnd(path string, secondsFromEnd float64) error {
	if secondsFromEnd <= 0 {
		return nil
	}
	samples, err := audio.DecodeFile(path)
	if err != nil {
		return fmt.Errorf("trim decode: %w", err)
	}

	cut := len(samples) - int(secondsFromEnd*audio.SampleRate*audio.Channels)
	cut -= cut % audio.Channels
	if cut <= 0 {
		return fmt.Errorf("trim of %.2fs would leave nothing", secondsFromEnd)
	}

	kept := samples[:cut]
	audio.FadeOut(kept, splitFadeMS*audio.SampleRate/1000*audio.Channels)

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".trim")
	if err := encodeVorbis(tmp, kept); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("trim replace: %w", err)
	}
	return nil
}

// encodeVorbis writes PCM samples to an Ogg Vorbis file via FFmpeg.
func encodeVorbis(path string, samples []int16) error {
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
		return fmt.Errorf("encode stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("encode start: %w", err)
	}

	_, writeErr := stdin.Write(audio.SamplesToBytes(samples))
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		os.Remove(path)
		return fmt.Errorf("ffmpeg encode %s: %w", path, err)
	}
	if writeErr != nil {
		os.Remove(path)
		return fmt.Errorf("encode write: %w", writeErr)
	}
	return nil
}
