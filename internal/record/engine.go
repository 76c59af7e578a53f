package record

import (
	"context"
	"sync"
	"time"

	"github.com/cdorrell/tunetap/internal/analysis"
	"github.com/cdorrell/tunetap/internal/audio"
	"github.com/cdorrell/tunetap/internal/metadata"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is the rotator's recording state.
type State int

const (
	StateIdle      State = iota // no active session
	StateRecording              // session active, audio flowing
	StateRotating               // finalize old -> evaluate -> start new
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateRotating:
		return "rotating"
	default:
		return "idle"
	}
}

// Lifecycle events delivered by the stream source.
type Lifecycle int

const (
	LifePlaying Lifecycle = iota
	LifePaused
	LifeEnded
	LifeError
)

// Config holds engine tuning. Zero values get sane defaults in NewEngine.
type Config struct {
	ScratchDir        string
	PreBufferSeconds  float64       // pre-roll retained for new recordings
	PostBufferSeconds float64       // widens the tail-analysis window
	MinRecording      time.Duration // shorter captures are discarded
	MaxRecording      time.Duration // longer captures are force-rotated
	Grace             time.Duration // metadata correction window
	MaxCached         int
	AnalysisEnabled   bool
	Disabled          bool // start with recording switched off
	FlushTimeout      time.Duration
	SinkFactory       SinkFactory
}

func (c *Config) applyDefaults() {
	if c.PreBufferSeconds <= 0 {
		c.PreBufferSeconds = 8
	}
	if c.PostBufferSeconds <= 0 {
		c.PostBufferSeconds = 3
	}
	if c.MinRecording <= 0 {
		c.MinRecording = 30 * time.Second
	}
	if c.MaxRecording <= 0 {
		c.MaxRecording = 10 * time.Minute
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Second
	}
	if c.MaxCached <= 0 {
		c.MaxCached = 20
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 500 * time.Millisecond
	}
	if c.SinkFactory == nil {
		c.SinkFactory = NewVorbisSink
	}
}

type eventKind int

const (
	evPCM eventKind = iota
	evTags
	evLifecycle
	evStation
	evEnable
	evStop
)

type event struct {
	kind    eventKind
	pcm     []byte
	title   string
	artist  string
	life    Lifecycle
	message string
	enable  bool
	done    chan struct{}
}

// Engine splits the decoded stream into a playback path and a recording
// path, rotates recordings at confirmed track boundaries, and manages the
// cache of finished recordings.
//
// All mutable state lives in the control goroutine running Run; the
// streaming goroutine only appends to the ring (which has its own lock)
// and enqueues events. Rotation is atomic with respect to every other
// control operation because the queue is drained single-threaded.
type Engine struct {
	cfg      Config
	ring     *audio.Ring
	tracker  *metadata.Tracker
	cache    *Cache
	detector *analysis.Detector

	events   chan event
	finished chan struct{} // closed when Run returns

	// control-goroutine state
	state   State
	session *Session
	track   *TrackInfo
	station string
	playing bool
	enabled bool

	// status snapshot for readers outside the control goroutine
	statusMu sync.RWMutex
	status   Status

	onMetadata       func(title, artist string)
	onRecordingReady func(*Cached)
	onRecordingState func(bool)
	onError          func(message string)
}

// Status is a read-only snapshot of the engine.
type Status struct {
	State     string     `json:"state"`
	Playing   bool       `json:"playing"`
	Recording bool       `json:"recording"`
	Enabled   bool       `json:"recording_enabled"`
	Station   string     `json:"station"`
	Track     *TrackInfo `json:"track,omitempty"`
	Cached    int        `json:"cached"`
}

// NewEngine creates the engine, its pre-roll ring and its cache. The
// scratch directory is swept of orphans from a prior run.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.applyDefaults()

	cache, err := NewCache(cfg.ScratchDir, cfg.MaxCached)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		ring:     audio.NewRing(cfg.PreBufferSeconds),
		tracker:  metadata.NewTracker(cfg.Grace),
		cache:    cache,
		detector: analysis.NewDetector(),
		events:   make(chan event, 512),
		finished: make(chan struct{}),
		enabled:  !cfg.Disabled,
	}, nil
}

// Cache exposes the recording cache for save/discard decisions.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// SplitCached runs boundary analysis over a finished recording and
// splits it at the detected boundary. Safe from any goroutine; the
// detector is read-only configuration.
func (e *Engine) SplitCached(id string) (*Cached, *Cached, error) {
	return e.cache.Split(id, e.detector)
}

// SetOnMetadata registers the metadata-changed callback. All callbacks are
// invoked from the control goroutine; set them before Run.
func (e *Engine) SetOnMetadata(fn func(title, artist string)) { e.onMetadata = fn }

// SetOnRecordingReady registers the finished-recording callback.
func (e *Engine) SetOnRecordingReady(fn func(*Cached)) { e.onRecordingReady = fn }

// SetOnRecordingState registers the recording-indicator callback.
func (e *Engine) SetOnRecordingState(fn func(bool)) { e.onRecordingState = fn }

// SetOnError registers the error callback.
func (e *Engine) SetOnError(fn func(message string)) { e.onError = fn }

// Status returns the latest engine snapshot.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// FeedPCM accepts decoded audio from the streaming goroutine. The chunk is
// copied: it goes into the pre-roll ring immediately and to the control
// goroutine for the active session's sink.
func (e *Engine) FeedPCM(p []byte) {
	buf := make([]byte, len(p))
	copy(buf, p)
	e.ring.Write(buf)
	e.events <- event{kind: evPCM, pcm: buf}
}

// HandleTags accepts a raw tag announcement from the streaming goroutine.
func (e *Engine) HandleTags(title, artist string) {
	e.events <- event{kind: evTags, title: title, artist: artist}
}

// HandleLifecycle accepts a source lifecycle event.
func (e *Engine) HandleLifecycle(life Lifecycle, message string) {
	e.events <- event{kind: evLifecycle, life: life, message: message}
}

// SetStation records which station subsequent tracks belong to.
func (e *Engine) SetStation(name string) {
	e.events <- event{kind: evStation, message: name}
}

// SetRecordingEnabled switches capture on or off at runtime. Switching
// off discards any active capture; switching on picks up mid-track using
// whatever pre-roll the ring still holds.
func (e *Engine) SetRecordingEnabled(enabled bool) {
	e.events <- event{kind: evEnable, enable: enabled}
}

// Stop forces recording to stop with a discard policy. It waits for the
// control goroutine to process the stop, so an in-flight rotation always
// completes first rather than racing it. Once Run has returned the
// engine is already stopped and Stop returns immediately.
func (e *Engine) Stop() {
	done := make(chan struct{})
	select {
	case e.events <- event{kind: evStop, done: done}:
	case <-e.finished:
		return
	}
	select {
	case <-done:
	case <-e.finished:
	}
}

// Run drains the event queue until ctx is cancelled. On exit any active
// session is discarded and the cache is drained.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.finished)
	defer e.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.handle(ev)
			if ev.done != nil {
				close(ev.done)
			}
		}
	}
}

func (e *Engine) handle(ev event) {
	switch ev.kind {
	case evPCM:
		e.handlePCM(ev.pcm)
	case evTags:
		e.handleTags(ev.title, ev.artist)
	case evLifecycle:
		e.handleLifecycle(ev.life, ev.message)
	case evStation:
		e.station = ev.message
		e.publishStatus()
	case evEnable:
		e.setEnabled(ev.enable)
	case evStop:
		e.stopRecording()
		e.playing = false
		e.resetStream()
		e.publishStatus()
	}
}

func (e *Engine) handlePCM(pcm []byte) {
	if e.session == nil {
		return
	}
	if err := e.session.Write(pcm); err != nil {
		log.Error().Err(err).Msg("sink write failed, discarding capture")
		e.session.Discard()
		e.session = nil
		e.state = StateIdle
		e.emitRecordingState(false)
		e.publishStatus()
		return
	}
	if e.session.Elapsed() > e.cfg.MaxRecording {
		log.Info().Dur("max", e.cfg.MaxRecording).Msg("max recording length reached, rotating")
		title, artist := e.tracker.Current()
		e.rotate(title, artist)
	}
}

func (e *Engine) handleTags(title, artist string) {
	change := e.tracker.Observe(title, artist)
	switch change.Kind {
	case metadata.None:
		return

	case metadata.First:
		log.Info().Str("title", title).Str("artist", artist).Msg("first track")
		e.startTrack(title, artist)
		if e.playing && e.session == nil {
			e.startSession()
		}

	case metadata.Correction:
		log.Info().Str("title", title).Str("artist", artist).Msgf("grace period: track info updated (capture only %.1fs old)", e.tracker.Age().Seconds())
		if e.track != nil {
			e.track.Title = title
			e.track.Artist = artist
		}

	case metadata.Transition:
		log.Info().Str("title", title).Str("artist", artist).Msg("track changed")
		e.rotate(title, artist)
	}

	e.emitMetadata(title, artist)
	e.publishStatus()
}

func (e *Engine) handleLifecycle(life Lifecycle, message string) {
	switch life {
	case LifePlaying:
		e.playing = true
		if e.track != nil && e.session == nil {
			e.startSession()
		}
	case LifePaused:
		e.playing = false
	case LifeEnded:
		log.Info().Msg("end of stream")
		e.stopRecording()
		e.playing = false
		e.resetStream()
	case LifeError:
		log.Error().Str("error", message).Msg("stream error")
		e.stopRecording()
		e.playing = false
		e.resetStream()
		e.emitError("Playback error: " + message)
	}
	e.publishStatus()
}

// rotate closes the current capture at a confirmed boundary and starts a
// new one for the incoming track. Capture continuity wins over splice
// precision: the new session opens immediately and the pre-roll covers
// the seam.
func (e *Engine) rotate(newTitle, newArtist string) {
	e.state = StateRotating
	e.finalizeTrackDuration()

	if e.session != nil && e.track != nil {
		log.Info().Str("track", e.track.DisplayName()).Msgf("track duration: %.1fs (min: %.0fs)", e.track.Duration, e.cfg.MinRecording.Seconds())

		if e.track.Duration >= e.cfg.MinRecording.Seconds() {
			e.finalizeSession()
		} else {
			log.Info().Msg("capture too short, discarding")
			e.session.Discard()
		}
		e.session = nil
		e.emitRecordingState(false)
	}

	e.startTrack(newTitle, newArtist)
	if e.playing {
		e.startSession()
	} else {
		e.state = StateIdle
	}
	e.publishStatus()
}

// finalizeSession drains the active sink and, if that succeeds, refines the
// tail boundary and caches the recording. A failed flush means the partial
// file is discarded and never surfaces.
func (e *Engine) finalizeSession() {
	track := *e.track
	track.Filepath = e.session.Path

	if err := e.session.Finalize(e.cfg.FlushTimeout); err != nil {
		log.Error().Err(err).Msg("finalize failed, discarding partial file")
		e.session.Discard()
		return
	}

	if e.cfg.AnalysisEnabled {
		e.refineTail(&track)
	}

	cached := &Cached{
		ID:        uuid.NewString(),
		Track:     track,
		TempPath:  track.Filepath,
		CreatedAt: time.Now(),
	}
	e.cache.Push(cached)
	log.Info().Str("path", cached.TempPath).Str("track", track.DisplayName()).Msg("recording cached")
	if e.onRecordingReady != nil {
		e.onRecordingReady(cached)
	}
}

// refineTail looks for the acoustic boundary inside the final pre+post
// buffer window of the finished file and trims the overhang that belongs
// to the next track. Every failure degrades silently to the metadata cut.
func (e *Engine) refineTail(track *TrackInfo) {
	window := e.cfg.PreBufferSeconds + e.cfg.PostBufferSeconds

	samples, err := audio.DecodeTail(track.Filepath, window)
	if err != nil {
		log.Debug().Err(err).Msg("tail analysis skipped")
		return
	}
	mono := audio.MonoFloats(samples)
	region := float64(len(mono)) / audio.SampleRate

	result := e.detector.FindBoundary(mono, audio.SampleRate)
	if !result.Found || result.Confidence < 0.6 {
		log.Debug().Str("method", string(result.Method)).Msg("no confident tail boundary")
		return
	}

	cut := region - result.Position
	if cut < 0.25 || cut >= region {
		return
	}
	if err := analysis.TrimEnd(track.Filepath, cut); err != nil {
		log.Debug().Err(err).Msg("tail trim skipped")
		return
	}
	track.Duration -= cut
	log.Info().Str("method", string(result.Method)).Msgf("tail refined: cut %.2fs (confidence %.2f)", cut, result.Confidence)
}

func (e *Engine) startTrack(title, artist string) {
	e.track = &TrackInfo{
		Title:     title,
		Artist:    artist,
		Station:   e.station,
		StartedAt: time.Now(),
	}
}

// startSession opens a new capture and seeds it with the pre-roll so song
// openings are not clipped. On failure the engine stays idle
// recording-wise; the next confirmed transition retries.
func (e *Engine) startSession() {
	if !e.enabled {
		e.state = StateIdle
		return
	}
	session, err := NewSession(e.cache.Dir(), e.cfg.SinkFactory)
	if err != nil {
		log.Error().Err(err).Msg("could not start capture")
		e.state = StateIdle
		e.emitError("Recording unavailable: " + err.Error())
		return
	}

	if preroll := e.ring.Snapshot(); len(preroll) > 0 {
		if err := session.Write(preroll); err != nil {
			log.Warn().Err(err).Msg("pre-roll write failed")
		}
	}

	e.session = session
	e.state = StateRecording
	log.Info().Str("path", session.Path).Msg("capture started")
	e.emitRecordingState(true)
}

func (e *Engine) setEnabled(enabled bool) {
	if enabled == e.enabled {
		return
	}
	e.enabled = enabled
	log.Info().Bool("enabled", enabled).Msg("recording toggled")
	if !enabled {
		e.stopRecording()
	} else if e.playing && e.track != nil && e.session == nil {
		e.startSession()
	}
	e.publishStatus()
}

// resetStream drops per-stream state when the source goes away, so the
// next station starts clean: no stale track attribution and no foreign
// audio left in the pre-roll ring.
func (e *Engine) resetStream() {
	e.tracker.Reset()
	e.track = nil
	e.ring.Clear()
}

// stopRecording forcibly ends the active capture with a discard policy.
func (e *Engine) stopRecording() {
	if e.session == nil {
		e.state = StateIdle
		return
	}
	e.session.Discard()
	e.session = nil
	e.state = StateIdle
	e.emitRecordingState(false)
}

// finalizeTrackDuration fixes the closing track's duration exactly once.
func (e *Engine) finalizeTrackDuration() {
	if e.track != nil && e.track.Duration == 0 {
		e.track.Duration = time.Since(e.track.StartedAt).Seconds()
	}
}

func (e *Engine) shutdown() {
	e.stopRecording()
	e.cache.DrainAll()
	log.Info().Msg("recording engine stopped")
}

func (e *Engine) publishStatus() {
	var track *TrackInfo
	if e.track != nil {
		t := *e.track
		track = &t
	}
	e.statusMu.Lock()
	e.status = Status{
		State:     e.state.String(),
		Playing:   e.playing,
		Recording: e.session != nil,
		Enabled:   e.enabled,
		Station:   e.station,
		Track:     track,
		Cached:    e.cache.Len(),
	}
	e.statusMu.Unlock()
}

func (e *Engine) emitMetadata(title, artist string) {
	if e.onMetadata != nil {
		e.onMetadata(title, artist)
	}
}

func (e *Engine) emitRecordingState(recording bool) {
	if e.onRecordingState != nil {
		e.onRecordingState(recording)
	}
}

func (e *Engine) emitError(message string) {
	if e.onError != nil {
		e.onError(message)
	}
}
