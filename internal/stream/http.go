package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/cdorrell/tunetap/internal/audio"
)

// HTTPHandler serves the listen-along feed as a chunked MP3 stream.
// Each connection spawns an FFmpeg process encoding PCM to MP3 in
// real time, so clients get whatever is on air right now.
type HTTPHandler struct {
	broadcaster *Broadcaster
	stationName func() string
}

// NewHTTPHandler creates an HTTP stream handler. stationName is read
// per connection for the ICY-Name header.
func NewHTTPHandler(b *Broadcaster, stationName func() string) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, stationName: stationName}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	name := "tunetap"
	if h.stationName != nil {
		if s := h.stationName(); s != "" {
			name = s
		}
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", name)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Error().Err(err).Msg("listen-along: stdin pipe")
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Error().Err(err).Msg("listen-along: stdout pipe")
		return
	}
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msg("listen-along: ffmpeg start")
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.Info().Int("total", h.broadcaster.ListenerCount()).Msg("listener connected")
	defer log.Info().Msg("listener disconnected")

	// Feed PCM frames to the encoder.
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	// Relay MP3 from the encoder to the HTTP response.
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Error().Err(err).Msg("listen-along: encoder read")
			}
			break
		}
	}

	cmd.Wait()
}
