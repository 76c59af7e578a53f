package record

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SessionState tracks the sink teardown protocol: data flows while Active,
// Draining flushes in-flight data, Released means the resource is gone.
type SessionState int

const (
	SessionActive SessionState = iota
	SessionDraining
	SessionReleased
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionDraining:
		return "draining"
	default:
		return "released"
	}
}

// Session owns one in-progress capture: the destination temp file, the
// start timestamp, and the sink lifecycle. Exactly one session is active
// per stream at any time; the engine enforces that.
type Session struct {
	ID        string
	Path      string
	StartedAt time.Time

	state SessionState
	sink  Sink
}

// NewSession creates the temp file sink in dir and starts accepting data.
func NewSession(dir string, factory SinkFactory) (*Session, error) {
	id := uuid.NewString()
	name := fmt.Sprintf("recording_%s_%s.ogg", time.Now().Format("20060102_150405"), id[:8])
	path := filepath.Join(dir, name)

	sink, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkCreation, err)
	}
	return &Session{
		ID:        id,
		Path:      path,
		StartedAt: time.Now(),
		state:     SessionActive,
		sink:      sink,
	}, nil
}

// Write feeds PCM to the sink. Writes after draining start are dropped.
func (s *Session) Write(pcm []byte) error {
	if s.state != SessionActive {
		return nil
	}
	if _, err := s.sink.Write(pcm); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	return nil
}

// Elapsed returns how long this session has been capturing.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}

// State returns the teardown state.
func (s *Session) State() SessionState {
	return s.state
}

// Finalize drains the sink and releases it, waiting at most flushTimeout
// for the encoder to close the file cleanly. On failure the file on disk
// is not trustworthy and the caller must discard it.
func (s *Session) Finalize(flushTimeout time.Duration) error {
	if s.state == SessionReleased {
		return nil
	}
	s.state = SessionDraining
	err := s.sink.Drain(flushTimeout)
	s.sink.Release()
	s.state = SessionReleased
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	return nil
}

// Discard releases the sink without caring about a clean flush and deletes
// the temp file. Safe to call in any state, including after Finalize.
func (s *Session) Discard() {
	if s.state != SessionReleased {
		s.sink.Release()
		s.state = SessionReleased
	}
	if s.Path != "" {
		os.Remove(s.Path)
	}
}
