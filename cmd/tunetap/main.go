package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cdorrell/tunetap/internal/config"
	"github.com/cdorrell/tunetap/internal/library"
	"github.com/cdorrell/tunetap/internal/record"
	"github.com/cdorrell/tunetap/internal/station"
	"github.com/cdorrell/tunetap/internal/stream"
)

// player owns the active station connection. Playing a new station
// tears down the previous source before the engine sees the new one.
type player struct {
	engine      *record.Engine
	broadcaster *stream.Broadcaster
	directory   *station.Client
	lib         *library.Library

	mu      sync.Mutex
	cancel  context.CancelFunc
	current station.Station
}

func (p *player) Play(ctx context.Context, st station.Station) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	srcCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.current = st
	p.mu.Unlock()

	p.engine.Stop()
	p.engine.SetStation(st.Name)

	if st.UUID != "" {
		go p.directory.Click(ctx, st.UUID)
		if err := p.lib.TouchRecent(st.UUID, st.Name, st.StreamURL()); err != nil {
			log.Warn().Err(err).Msg("could not record play history")
		}
	}
	p.lib.SetSetting("last_station_name", st.Name)
	p.lib.SetSetting("last_station_url", st.StreamURL())

	go func() {
		src := stream.NewSource(st.StreamURL(), p.engine, p.broadcaster)
		if err := src.Run(srcCtx); err != nil {
			log.Error().Err(err).Str("station", st.Name).Msg("stream ended with error")
		}
	}()
	log.Info().Str("station", st.Name).Str("url", st.StreamURL()).Msg("tuning in")
}

func (p *player) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.current = station.Station{}
	p.mu.Unlock()
	p.engine.Stop()
}

func (p *player) Current() station.Station {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// searchHub holds the latest completed directory search so the API can
// poll for it. Superseded lookups never land here.
type searchHub struct {
	mu       sync.Mutex
	query    string
	stations []station.Station
	err      error
}

func (h *searchHub) set(query string, stations []station.Station, err error) {
	h.mu.Lock()
	h.query = query
	h.stations = stations
	h.err = err
	h.mu.Unlock()
}

func (h *searchHub) get() (string, []station.Station, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.query, h.stations, h.err
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.SaveDir).Msg("cannot create save directory")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LibraryDB), 0o755); err != nil {
		log.Fatal().Err(err).Msg("cannot create library directory")
	}

	lib, err := library.Open(cfg.LibraryDB)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open library")
	}

	engine, err := record.NewEngine(record.Config{
		ScratchDir:        cfg.ScratchDir,
		PreBufferSeconds:  cfg.PreBufferSec,
		PostBufferSeconds: cfg.PostBufferSec,
		MinRecording:      cfg.MinRecording(),
		MaxRecording:      cfg.MaxRecording(),
		Grace:             cfg.Grace(),
		MaxCached:         cfg.MaxCached,
		AnalysisEnabled:   cfg.AnalysisEnabled,
		Disabled:          !cfg.RecordingEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cannot start recording engine")
	}
	engine.SetOnRecordingReady(func(c *record.Cached) {
		log.Info().Str("track", c.Track.DisplayName()).Str("id", c.ID).Msg("recording ready to save")
	})
	go engine.Run(ctx)

	broadcaster := stream.NewBroadcaster()
	directory := station.NewClient()

	p := &player{
		engine:      engine,
		broadcaster: broadcaster,
		directory:   directory,
		lib:         lib,
	}

	hub := &searchHub{}
	searcher := station.NewSearcher(directory, 20)
	searcher.SetOnResults(func(query string, stations []station.Station) {
		hub.set(query, stations, nil)
	})
	searcher.SetOnError(func(query string, err error) {
		hub.set(query, nil, err)
	})

	// WebRTC handler tracks its own peer count for status.
	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	mux := http.NewServeMux()

	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, func() string {
		return p.Current().Name
	}))
	mux.Handle("/offer", webrtcHandler)

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st := engine.Status()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"engine":           st,
			"station":          p.Current(),
			"http_listeners":   broadcaster.ListenerCount(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
			"last_station":     lib.GetSetting("last_station_name", ""),
		})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var st station.Station
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil || st.StreamURL() == "" {
			http.Error(w, "station url required", http.StatusBadRequest)
			return
		}
		p.Play(ctx, st)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "station": st.Name})
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		p.Stop()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/recording", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		engine.SetRecordingEnabled(req.Enabled)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "enabled": req.Enabled})
	})

	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		tag := r.URL.Query().Get("tag")
		w.Header().Set("Content-Type", "application/json")

		if tag != "" {
			stations, err := directory.SearchByTag(r.Context(), tag, 20)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(stations)
			return
		}
		if q == "" {
			http.Error(w, "q or tag required", http.StatusBadRequest)
			return
		}

		hub.set("", nil, nil) // forget any finished search before polling
		searcher.Search(ctx, q)
		deadline := time.After(10 * time.Second)
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-deadline:
				http.Error(w, "search timed out", http.StatusGatewayTimeout)
				return
			case <-tick.C:
			}
			query, stations, err := hub.get()
			if query != q {
				if query != "" {
					// A newer search superseded this one.
					http.Error(w, "superseded", http.StatusConflict)
					return
				}
				continue
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(stations)
			return
		}
	})

	mux.HandleFunc("/api/vote", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			UUID string `json:"uuid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UUID == "" {
			http.Error(w, "uuid required", http.StatusBadRequest)
			return
		}
		if err := directory.Vote(r.Context(), req.UUID); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/favorites", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			favs, err := lib.Favorites()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(favs)
		case http.MethodPost:
			var st station.Station
			if err := json.NewDecoder(r.Body).Decode(&st); err != nil || st.UUID == "" {
				http.Error(w, "station uuid required", http.StatusBadRequest)
				return
			}
			if err := lib.AddFavorite(st); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		case http.MethodDelete:
			uuid := r.URL.Query().Get("uuid")
			if uuid == "" {
				http.Error(w, "uuid required", http.StatusBadRequest)
				return
			}
			if err := lib.RemoveFavorite(uuid); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/recents", func(w http.ResponseWriter, r *http.Request) {
		recs, err := lib.Recents()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recs)
	})

	mux.HandleFunc("/api/recordings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.Cache().List())
	})

	mux.HandleFunc("/api/recordings/save", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		path, err := engine.Cache().SaveTo(req.ID, cfg.SaveDir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "path": path})
	})

	mux.HandleFunc("/api/recordings/split", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		before, after, err := engine.SplitCached(req.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "before": before, "after": after})
	})

	mux.HandleFunc("/api/recordings/discard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		engine.Cache().Discard(req.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		p.Stop()
		server.Close()
	}()

	log.Info().Str("addr", addr).Str("save_dir", cfg.SaveDir).Msg("tunetap live")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tunetap.toml"
	}
	return filepath.Join(home, ".config", "tunetap", "tunetap.toml")
}
