package record

import (
	"context"
	"os"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, factory *fakeSinkFactory) (*Engine, context.CancelFunc) {
	t.Helper()
	eng, err := NewEngine(Config{
		ScratchDir:       t.TempDir(),
		PreBufferSeconds: 0.5,
		MinRecording:     200 * time.Millisecond,
		MaxRecording:     time.Hour,
		Grace:            100 * time.Millisecond,
		MaxCached:        5,
		FlushTimeout:     time.Second,
		SinkFactory:      factory.New,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)
	return eng, cancel
}

// barrier blocks until the control goroutine has drained every event
// queued before it.
func barrier(e *Engine) {
	done := make(chan struct{})
	e.events <- event{kind: evPCM, done: done}
	<-done
}

func TestEngineRecordsAcrossTransition(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	var ready []*Cached
	eng.SetOnRecordingReady(func(c *Cached) { ready = append(ready, c) })

	eng.SetStation("Test FM")
	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("Test FM", "") // station name first, no artist
	barrier(eng)

	if got := eng.Status(); !got.Recording {
		t.Fatal("expected capture to start on first track")
	}

	// Correction inside the grace window updates labels without rotating.
	eng.HandleTags("Blue Moon", "Artist X")
	eng.FeedPCM(make([]byte, 9600))
	barrier(eng)

	if eng.cache.Len() != 0 {
		t.Fatalf("correction rotated: cache has %d entries", eng.cache.Len())
	}
	firstPath := eng.session.Path

	// Outlast both the grace window and the minimum length, then transition.
	time.Sleep(350 * time.Millisecond)
	eng.FeedPCM(make([]byte, 9600))
	eng.HandleTags("Red Sun", "Artist Y")
	barrier(eng)

	if len(ready) != 1 {
		t.Fatalf("got %d finished recordings, want 1", len(ready))
	}
	got := ready[0].Track
	if got.Title != "Blue Moon" || got.Artist != "Artist X" {
		t.Errorf("cached track = %q / %q, want Blue Moon / Artist X", got.Title, got.Artist)
	}
	if got.Station != "Test FM" {
		t.Errorf("station = %q, want Test FM", got.Station)
	}
	if ready[0].TempPath != firstPath {
		t.Errorf("cached path = %s, want %s", ready[0].TempPath, firstPath)
	}
	if _, err := os.Stat(ready[0].TempPath); err != nil {
		t.Errorf("cached file missing: %v", err)
	}
	if st := eng.Status(); !st.Recording || st.Track.Title != "Red Sun" {
		t.Errorf("after rotation: recording=%v track=%v", st.Recording, st.Track)
	}
}

func TestEngineDiscardsShortCapture(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("One", "A")
	barrier(eng)
	shortPath := eng.session.Path

	// Transition after grace but before the minimum recording length.
	time.Sleep(150 * time.Millisecond)
	eng.HandleTags("Two", "B")
	barrier(eng)

	if eng.cache.Len() != 0 {
		t.Errorf("short capture reached the cache")
	}
	if _, err := os.Stat(shortPath); !os.IsNotExist(err) {
		t.Error("short capture's temp file was not deleted")
	}
	if st := eng.Status(); !st.Recording {
		t.Error("expected a fresh capture for the next track")
	}
}

func TestEnginePrerollSeedsNewCapture(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	// Audio arrives before any track is known; the ring holds it.
	eng.FeedPCM([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("Opener", "A")
	barrier(eng)

	sink := factory.last()
	if sink == nil {
		t.Fatal("no sink created")
	}
	if got := sink.bytesWritten(); got != 8 {
		t.Errorf("seeded %d pre-roll bytes, want 8", got)
	}
}

func TestEngineSinkFailureLeavesIdle(t *testing.T) {
	factory := &fakeSinkFactory{failNext: true}
	eng, _ := newTestEngine(t, factory)

	var errs []string
	eng.SetOnError(func(msg string) { errs = append(errs, msg) })

	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("One", "A")
	barrier(eng)

	if st := eng.Status(); st.Recording {
		t.Error("recording despite sink creation failure")
	}
	if len(errs) != 1 {
		t.Fatalf("got %d error callbacks, want 1", len(errs))
	}

	// The next confirmed transition retries with a working factory.
	time.Sleep(150 * time.Millisecond)
	eng.HandleTags("Two", "B")
	barrier(eng)
	if st := eng.Status(); !st.Recording {
		t.Error("capture did not recover after transient sink failure")
	}
}

func TestEngineStopDiscardsActiveCapture(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("One", "A")
	barrier(eng)
	path := eng.session.Path

	time.Sleep(350 * time.Millisecond) // well past the minimum length
	eng.Stop()

	if eng.cache.Len() != 0 {
		t.Error("Stop finalized instead of discarding")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp file survived Stop")
	}
	if st := eng.Status(); st.Recording || st.State != "idle" {
		t.Errorf("status after Stop = %+v", st)
	}
}

func TestEngineStreamErrorStopsCapture(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	var errs []string
	eng.SetOnError(func(msg string) { errs = append(errs, msg) })

	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("One", "A")
	eng.HandleLifecycle(LifeError, "connection reset")
	barrier(eng)

	if st := eng.Status(); st.Recording || st.Playing {
		t.Errorf("status after stream error = %+v", st)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d error callbacks, want 1", len(errs))
	}
}

func TestEngineWriteFailureDropsSession(t *testing.T) {
	factory := &fakeSinkFactory{failWrite: true}
	eng, _ := newTestEngine(t, factory)

	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("One", "A")
	eng.FeedPCM(make([]byte, 128))
	barrier(eng)

	if st := eng.Status(); st.Recording {
		t.Error("session survived a failing sink")
	}
}

func TestEngineRecordingToggle(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("One", "A")
	barrier(eng)
	path := eng.session.Path

	// Switching off discards the capture in progress.
	eng.SetRecordingEnabled(false)
	barrier(eng)
	if st := eng.Status(); st.Recording || st.Enabled {
		t.Errorf("status after disable = %+v", st)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp file survived disable")
	}

	// A transition while disabled must not open a sink.
	time.Sleep(150 * time.Millisecond)
	eng.HandleTags("Two", "B")
	barrier(eng)
	if st := eng.Status(); st.Recording {
		t.Error("recording while disabled")
	}

	// Re-enabling mid-track resumes capture immediately.
	eng.SetRecordingEnabled(true)
	barrier(eng)
	if st := eng.Status(); !st.Recording || !st.Enabled {
		t.Errorf("status after re-enable = %+v", st)
	}
}

func TestEngineStopAfterRunExits(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, cancel := newTestEngine(t, factory)

	// Shut the control goroutine down first, the way a signal handler
	// does, then ask for a stop.
	cancel()
	<-eng.finished

	stopped := make(chan struct{})
	go func() {
		eng.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after the engine had already shut down")
	}
}

func TestEngineStationChangeStartsClean(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	eng.SetStation("Station A")
	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("Song A", "Artist A")
	eng.FeedPCM(make([]byte, 1024))
	barrier(eng)

	eng.Stop()

	// The new station has not announced a track yet; playback alone must
	// not open a capture attributed to the old one.
	eng.SetStation("Station B")
	eng.HandleLifecycle(LifePlaying, "")
	barrier(eng)

	if st := eng.Status(); st.Recording || st.Track != nil {
		t.Fatalf("status before first track announcement = %+v", st)
	}

	// The first capture on the new station must not be seeded with the
	// old station's pre-roll.
	eng.HandleTags("Song B", "Artist B")
	barrier(eng)

	sink := factory.last()
	if sink == nil {
		t.Fatal("no capture started for the new station")
	}
	if got := sink.bytesWritten(); got != 0 {
		t.Errorf("new capture seeded with %d stale bytes, want 0", got)
	}
	if st := eng.Status(); st.Track == nil || st.Track.Station != "Station B" {
		t.Errorf("track after station change = %+v", st.Track)
	}
}

func TestEngineRecordingStateCallback(t *testing.T) {
	factory := &fakeSinkFactory{}
	eng, _ := newTestEngine(t, factory)

	var states []bool
	eng.SetOnRecordingState(func(on bool) { states = append(states, on) })

	eng.HandleLifecycle(LifePlaying, "")
	eng.HandleTags("One", "A")
	eng.Stop()

	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("recording state sequence = %v, want [true false]", states)
	}
}
