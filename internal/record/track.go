package record

import (
	"regexp"
	"strings"
	"time"
)

// TrackInfo identifies one musical work as observed on the stream.
// Mutated only by the engine's control goroutine; Duration is finalized
// exactly once, at rotation or stop.
type TrackInfo struct {
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Station   string    `json:"station"`
	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration"` // seconds
	Filepath  string    `json:"-"`
	Saved     bool      `json:"saved"`
}

// DisplayName returns "Artist - Title", falling back to whatever is known.
func (t TrackInfo) DisplayName() string {
	if t.Artist != "" && t.Title != "" {
		return t.Artist + " - " + t.Title
	}
	if t.Title != "" {
		return t.Title
	}
	return "Unknown Track"
}

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*&]`)
	repeatedWhitespace   = regexp.MustCompile(`\s+`)
)

// FilenameSafe returns the display name with filesystem-hostile characters
// replaced and length capped at 100.
func (t TrackInfo) FilenameSafe() string {
	name := invalidFilenameChars.ReplaceAllString(t.DisplayName(), "_")
	name = strings.TrimSpace(repeatedWhitespace.ReplaceAllString(name, " "))
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}
