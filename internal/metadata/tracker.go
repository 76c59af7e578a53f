// Package metadata decides whether stream tag announcements represent real
// track changes. Stations repeat tags, garble them, or announce a station
// slogan before the actual song title, so raw tag events cannot be trusted
// as boundaries.
package metadata

import (
	"strings"
	"time"
)

// Kind classifies an observed tag event.
type Kind int

const (
	// None: empty tag or a duplicate of the current track. Ignore.
	None Kind = iota
	// First: the first non-empty tag for this stream. Establishes the
	// current track without closing a previous one.
	First
	// Correction: a different tag arriving inside the grace window.
	// The current track's identity is updated in place; no rotation.
	Correction
	// Transition: a confirmed track change.
	Transition
)

func (k Kind) String() string {
	switch k {
	case First:
		return "first"
	case Correction:
		return "correction"
	case Transition:
		return "transition"
	default:
		return "none"
	}
}

// Change is the tracker's verdict for one tag event.
type Change struct {
	Kind   Kind
	Title  string
	Artist string
}

// Tracker compares successive tag announcements against the currently
// accepted track. Not safe for concurrent use; the engine calls it from
// its control goroutine only.
type Tracker struct {
	grace time.Duration
	now   func() time.Time

	title      string
	artist     string
	norm       string
	acceptedAt time.Time
	hasTrack   bool
}

// NewTracker creates a tracker with the given grace window.
func NewTracker(grace time.Duration) *Tracker {
	return &Tracker{grace: grace, now: time.Now}
}

// Observe classifies a tag event and updates the tracker's notion of the
// current track accordingly.
func (t *Tracker) Observe(title, artist string) Change {
	if strings.TrimSpace(title) == "" {
		return Change{Kind: None}
	}

	norm := Normalize(title, artist)
	if t.hasTrack && norm == t.norm {
		return Change{Kind: None}
	}

	if !t.hasTrack {
		t.accept(title, artist, norm)
		return Change{Kind: First, Title: title, Artist: artist}
	}

	// Grace window: the station corrected the just-announced track
	// (e.g. station name first, real title moments later). Update in
	// place without moving the accepted-at timestamp.
	if t.now().Sub(t.acceptedAt) < t.grace {
		t.title = title
		t.artist = artist
		t.norm = norm
		return Change{Kind: Correction, Title: title, Artist: artist}
	}

	t.accept(title, artist, norm)
	return Change{Kind: Transition, Title: title, Artist: artist}
}

func (t *Tracker) accept(title, artist, norm string) {
	t.title = title
	t.artist = artist
	t.norm = norm
	t.acceptedAt = t.now()
	t.hasTrack = true
}

// Current returns the currently accepted title and artist.
func (t *Tracker) Current() (title, artist string) {
	return t.title, t.artist
}

// Age returns how long ago the current track was accepted.
func (t *Tracker) Age() time.Duration {
	if !t.hasTrack {
		return 0
	}
	return t.now().Sub(t.acceptedAt)
}

// Reset forgets the current track; the next tag establishes a new first
// track. Called when playback stops or a new station starts.
func (t *Tracker) Reset() {
	t.title = ""
	t.artist = ""
	t.norm = ""
	t.hasTrack = false
}

var normReplacer = strings.NewReplacer("'", "", `"`, "", "(", "", ")", "")

// Normalize folds a (title, artist) pair into a comparison key:
// lower-cased "artist - title" with collapsed whitespace and quote and
// parenthesis characters stripped.
func Normalize(title, artist string) string {
	combined := strings.ToLower(strings.TrimSpace(artist + " - " + title))
	combined = strings.Join(strings.Fields(combined), " ")
	return normReplacer.Replace(combined)
}
