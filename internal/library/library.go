package library

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cdorrell/tunetap/internal/station"
)

// maxRecents bounds the recently-played list; the oldest entry falls
// off when a new station is played.
const maxRecents = 20

// Favorite is a station the user pinned.
type Favorite struct {
	UUID      string `gorm:"primaryKey"`
	Name      string
	StreamURL string
	Homepage  string
	Favicon   string
	Tags      string
	Country   string
	AddedAt   time.Time
}

// Recent is a recently played station, most recent first.
type Recent struct {
	UUID      string `gorm:"primaryKey"`
	Name      string
	StreamURL string
	PlayedAt  time.Time
}

// Setting is one persisted key/value preference.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// Library persists favorites, play history and settings in SQLite.
type Library struct {
	db *gorm.DB
}

// Open opens (or creates) the library database at path and migrates
// the schema.
func Open(path string) (*Library, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	if err := db.AutoMigrate(&Favorite{}, &Recent{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("migrate library db: %w", err)
	}
	return &Library{db: db}, nil
}

// AddFavorite pins a station. Re-adding an existing favorite refreshes
// its stored details.
func (l *Library) AddFavorite(s station.Station) error {
	fav := Favorite{
		UUID:      s.UUID,
		Name:      s.Name,
		StreamURL: s.StreamURL(),
		Homepage:  s.Homepage,
		Favicon:   s.Favicon,
		Tags:      s.Tags,
		Country:   s.Country,
		AddedAt:   time.Now(),
	}
	return l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "stream_url", "homepage", "favicon", "tags", "country"}),
	}).Create(&fav).Error
}

// RemoveFavorite unpins a station. Removing an absent favorite is not
// an error.
func (l *Library) RemoveFavorite(uuid string) error {
	return l.db.Delete(&Favorite{}, "uuid = ?", uuid).Error
}

// IsFavorite reports whether the station is pinned.
func (l *Library) IsFavorite(uuid string) (bool, error) {
	var fav Favorite
	err := l.db.First(&fav, "uuid = ?", uuid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Favorites lists pinned stations, newest first.
func (l *Library) Favorites() ([]Favorite, error) {
	var favs []Favorite
	err := l.db.Order("added_at DESC").Find(&favs).Error
	return favs, err
}

// TouchRecent records a station play, moving it to the front of the
// history and trimming the list to its bound.
func (l *Library) TouchRecent(uuid, name, streamURL string) error {
	rec := Recent{UUID: uuid, Name: name, StreamURL: streamURL, PlayedAt: time.Now()}
	err := l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "stream_url", "played_at"}),
	}).Create(&rec).Error
	if err != nil {
		return err
	}

	var stale []Recent
	if err := l.db.Order("played_at DESC").Offset(maxRecents).Limit(maxRecents).Find(&stale).Error; err != nil {
		return err
	}
	for _, r := range stale {
		if err := l.db.Delete(&Recent{}, "uuid = ?", r.UUID).Error; err != nil {
			return err
		}
	}
	return nil
}

// Recents lists play history, most recent first.
func (l *Library) Recents() ([]Recent, error) {
	var recs []Recent
	err := l.db.Order("played_at DESC").Find(&recs).Error
	return recs, err
}

// SetSetting stores one preference value.
func (l *Library) SetSetting(key, value string) error {
	return l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Setting{Key: key, Value: value}).Error
}

// GetSetting returns a preference value, or fallback if unset.
func (l *Library) GetSetting(key, fallback string) string {
	var s Setting
	if err := l.db.First(&s, "key = ?", key).Error; err != nil {
		return fallback
	}
	return s.Value
}
