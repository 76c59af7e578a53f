package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cdorrell/tunetap/internal/audio"
	"github.com/cdorrell/tunetap/internal/record"
	"github.com/rs/zerolog/log"
)

// Source connects to an internet radio station, decodes the compressed
// stream to PCM, and tees every frame to the recording engine and the
// listen-along broadcaster. Inline ICY metadata becomes tag events for
// the engine; the audio never stops flowing while tags are processed.
type Source struct {
	url         string
	engine      *record.Engine
	broadcaster *Broadcaster
	client      *http.Client
}

// NewSource prepares a source for one station stream URL.
func NewSource(url string, engine *record.Engine, b *Broadcaster) *Source {
	return &Source{
		url:         url,
		engine:      engine,
		broadcaster: b,
		client: &http.Client{
			// No overall timeout: the body is an endless stream.
			Transport: &http.Transport{
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
}

// Run streams until the context is cancelled, the server ends the
// stream, or an unrecoverable error occurs. Lifecycle events are
// delivered to the engine in all three cases.
func (s *Source) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	req.Header.Set("Icy-MetaData", "1")
	req.Header.Set("User-Agent", "tunetap/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		s.engine.HandleLifecycle(record.LifeError, err.Error())
		return fmt.Errorf("stream connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("station returned %s", resp.Status)
		s.engine.HandleLifecycle(record.LifeError, msg)
		return errors.New(msg)
	}

	metaint := 0
	if v := resp.Header.Get("icy-metaint"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			metaint = n
		}
	}
	log.Info().Str("url", s.url).Int("metaint", metaint).
		Str("name", resp.Header.Get("icy-name")).Msg("stream connected")

	decoder, err := audio.StartStreamDecoder(ctx)
	if err != nil {
		s.engine.HandleLifecycle(record.LifeError, err.Error())
		return err
	}
	defer decoder.Close()

	var body io.Reader = resp.Body
	if metaint > 0 {
		body = newICYReader(resp.Body, metaint, func(streamTitle string) {
			title, artist := SplitStreamTitle(streamTitle)
			s.engine.HandleTags(title, artist)
		})
	}

	// Compressed bytes flow into the decoder on a side goroutine; this
	// goroutine pulls decoded PCM out frame by frame.
	copyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(decoder, body)
		decoder.CloseInput()
		copyErr <- err
	}()

	s.engine.HandleLifecycle(record.LifePlaying, "")

	frame := make([]byte, audio.FrameBytes)
	for {
		n, err := io.ReadFull(decoder, frame)
		if n > 0 {
			s.engine.FeedPCM(frame[:n])
			s.broadcaster.Publish(audio.BytesToSamples(frame[:n]))
		}
		if err != nil {
			if ctx.Err() != nil {
				// Deliberate stop, not a stream failure.
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if cerr := <-copyErr; cerr != nil && ctx.Err() == nil {
					s.engine.HandleLifecycle(record.LifeError, cerr.Error())
					return fmt.Errorf("stream read: %w", cerr)
				}
				s.engine.HandleLifecycle(record.LifeEnded, "")
				return nil
			}
			s.engine.HandleLifecycle(record.LifeError, err.Error())
			return fmt.Errorf("decode read: %w", err)
		}
	}
}

// icyReader strips the inline metadata blocks out of a shoutcast-style
// stream: metaint audio bytes, a length byte, then length*16 bytes of
// metadata text. Only the audio reaches the caller.
type icyReader struct {
	src     *bufio.Reader
	metaint int
	left    int // audio bytes remaining before the next metadata block
	onTitle func(string)
}

func newICYReader(src io.Reader, metaint int, onTitle func(string)) *icyReader {
	return &icyReader{
		src:     bufio.NewReader(src),
		metaint: metaint,
		left:    metaint,
		onTitle: onTitle,
	}
}

func (r *icyReader) Read(p []byte) (int, error) {
	if r.left == 0 {
		if err := r.readMetadata(); err != nil {
			return 0, err
		}
		r.left = r.metaint
	}
	if len(p) > r.left {
		p = p[:r.left]
	}
	n, err := r.src.Read(p)
	r.left -= n
	return n, err
}

func (r *icyReader) readMetadata() error {
	length, err := r.src.ReadByte()
	if err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	buf := make([]byte, int(length)*16)
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return err
	}
	meta := strings.TrimRight(string(buf), "\x00")
	if title, ok := parseStreamTitle(meta); ok {
		r.onTitle(title)
	}
	return nil
}

// parseStreamTitle extracts the value of StreamTitle='...' from an ICY
// metadata block.
func parseStreamTitle(meta string) (string, bool) {
	const key = "StreamTitle='"
	start := strings.Index(meta, key)
	if start < 0 {
		return "", false
	}
	rest := meta[start+len(key):]
	if end := strings.Index(rest, "';"); end >= 0 {
		return rest[:end], true
	}
	// Some stations omit the trailing semicolon on the last field.
	if end := strings.LastIndex(rest, "'"); end >= 0 {
		return rest[:end], true
	}
	return "", false
}

// SplitStreamTitle breaks a combined "Artist - Title" announcement into
// its parts. Announcements without a separator are treated as title
// only, which covers stations that send their own name between songs.
func SplitStreamTitle(streamTitle string) (title, artist string) {
	streamTitle = strings.TrimSpace(streamTitle)
	if i := strings.Index(streamTitle, " - "); i >= 0 {
		return strings.TrimSpace(streamTitle[i+3:]), strings.TrimSpace(streamTitle[:i])
	}
	return streamTitle, ""
}
