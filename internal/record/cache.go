package record

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cdorrell/tunetap/internal/analysis"
	"github.com/cdorrell/tunetap/internal/audio"
)

// Cached is a completed recording awaiting a save/discard decision. Its
// temp file exists for as long as the entry is reachable from the cache;
// once removed (saved or discarded) the file must not be referenced again.
type Cached struct {
	ID        string    `json:"id"`
	Track     TrackInfo `json:"track"`
	TempPath  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Age returns how long the recording has been waiting.
func (c *Cached) Age() time.Duration {
	return time.Since(c.CreatedAt)
}

// Cache is a bounded FIFO of finished-but-undecided recordings. It owns the
// scratch directory: orphaned temp files from a crashed run are swept on
// construction, and DrainAll empties everything at shutdown.
type Cache struct {
	mu      sync.Mutex
	dir     string
	max     int
	entries []*Cached // oldest first
}

// NewCache creates the scratch dir if needed and sweeps leftovers from a
// prior run.
func NewCache(dir string, max int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if max < 1 {
		max = 1
	}
	c := &Cache{dir: dir, max: max}
	c.sweepScratch()
	return c, nil
}

// Dir returns the scratch directory the cache owns.
func (c *Cache) Dir() string {
	return c.dir
}

// Push inserts at the newest end. Past capacity the oldest entry is evicted
// and its backing file deleted.
func (c *Cache) Push(rec *Cached) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, rec)
	for len(c.entries) > c.max {
		old := c.entries[0]
		c.entries = c.entries[1:]
		deleteBackingFile(old)
		log.Info().Str("track", old.Track.DisplayName()).Msg("cache full, evicted oldest recording")
	}
}

// Len returns the number of cached recordings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// List returns the cached recordings, oldest first.
func (c *Cache) List() []*Cached {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Cached, len(c.entries))
	copy(out, c.entries)
	return out
}

// Get looks up a cached recording by id.
func (c *Cache) Get(id string) (*Cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// SaveTo atomically moves the backing file to the permanent directory under
// a deterministic name and removes the entry from the cache. Returns the
// final path, or ErrNotFound if the id is absent or the temp file is gone.
func (c *Cache) SaveTo(id, destDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, e := range c.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := c.entries[idx]

	if _, err := os.Stat(rec.TempPath); err != nil {
		c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
		return "", fmt.Errorf("%w: temp file missing for %s", ErrNotFound, id)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.ogg", rec.Track.FilenameSafe(), rec.CreatedAt.Format("20060102_150405"))
	finalPath := filepath.Join(destDir, name)

	if err := moveFile(rec.TempPath, finalPath); err != nil {
		return "", fmt.Errorf("save recording: %w", err)
	}

	rec.Track.Saved = true
	rec.Track.Filepath = finalPath
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	log.Info().Str("path", finalPath).Msg("recording saved")
	return finalPath, nil
}

// Split runs boundary analysis over a cached recording and, when a
// confident boundary is found, replaces the entry with two: the audio
// before the cut and the audio after it. Useful on stations whose
// metadata lags so far that one capture holds two songs.
func (c *Cache) Split(id string, det *analysis.Detector) (*Cached, *Cached, error) {
	rec, ok := c.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	samples, err := audio.DecodeFile(rec.TempPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	mono := audio.MonoFloats(samples)
	result := det.FindBoundary(mono, audio.SampleRate)
	if !result.Found || result.Confidence < 0.6 {
		return nil, nil, fmt.Errorf("%w: no confident boundary", ErrAnalysisUnavailable)
	}

	beforePath := rec.TempPath + ".a.ogg"
	afterPath := rec.TempPath + ".b.ogg"
	if err := analysis.SplitAt(rec.TempPath, result.Position, beforePath, afterPath); err != nil {
		return nil, nil, err
	}

	total := rec.Track.Duration
	before := &Cached{
		ID:        uuid.NewString(),
		Track:     rec.Track,
		TempPath:  beforePath,
		CreatedAt: rec.CreatedAt,
	}
	before.Track.Duration = result.Position
	after := &Cached{
		ID:        uuid.NewString(),
		Track:     rec.Track,
		TempPath:  afterPath,
		CreatedAt: rec.CreatedAt,
	}
	after.Track.Title = rec.Track.Title + " (continued)"
	if total > result.Position {
		after.Track.Duration = total - result.Position
	}

	c.Discard(id)
	c.Push(before)
	c.Push(after)
	log.Info().Str("method", string(result.Method)).
		Msgf("recording split at %.2fs (confidence %.2f)", result.Position, result.Confidence)
	return before, after, nil
}

// Discard deletes the backing file and removes the entry. Idempotent: a
// second discard of the same id is a no-op.
func (c *Cache) Discard(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			deleteBackingFile(e)
			return
		}
	}
}

// DrainAll deletes every remaining cached file, empties the cache, and
// sweeps orphaned temp files. Called at shutdown.
func (c *Cache) DrainAll() {
	c.mu.Lock()
	for _, e := range c.entries {
		deleteBackingFile(e)
	}
	c.entries = nil
	c.mu.Unlock()
	c.sweepScratch()
}

// sweepScratch removes any files left in the scratch dir that no cache
// entry references. Callers must not hold the mutex over entry files they
// still need; DrainAll empties entries first.
func (c *Cache) sweepScratch() {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", c.dir).Msg("scratch sweep failed")
		return
	}

	c.mu.Lock()
	live := make(map[string]bool, len(c.entries))
	for _, e := range c.entries {
		live[filepath.Base(e.TempPath)] = true
	}
	c.mu.Unlock()

	for _, de := range dirEntries {
		if de.IsDir() || live[de.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil {
			log.Warn().Err(err).Str("file", de.Name()).Msg("orphan removal failed")
		}
	}
}

func deleteBackingFile(rec *Cached) {
	if err := os.Remove(rec.TempPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", rec.TempPath).Msg("failed to delete cached recording")
	}
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
