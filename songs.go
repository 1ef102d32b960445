/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"
	_ "modernc.org/sqlite"
)

var errNoSongsLeft = errors.New("no songs available")

// Song matches the records produced by the scraper.
type Song struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Year       int    `json:"year"`
	PreviewURL string `json:"preview_url"`
	CoverURL   string `json:"cover_url"`
	Context    string `json:"context,omitempty"`
}

type songFile struct {
	Songs    []Song            `json:"songs"`
	Contexts map[string]string `json:"contexts"`
}

// SongLibrary is the sqlite-backed song pool shared by all game modes.
// Reads vastly outnumber writes; writes only happen during import.
type SongLibrary struct {
	db *sql.DB
	mu sync.RWMutex

	songs    []Song
	byID     map[string]int
	contexts map[string]string
}

func openSongLibrary(cfg *Config) (*SongLibrary, error) {
	db, err := sql.Open("sqlite", cfg.database)
	if err != nil {
		return nil, fmt.Errorf("open song library: %w", err)
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS songs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		year INTEGER NOT NULL,
		preview_url TEXT NOT NULL DEFAULT '',
		cover_url TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS contexts (
		year TEXT PRIMARY KEY,
		description TEXT NOT NULL
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create song tables: %w", err)
	}

	l := &SongLibrary{db: db}

	if cfg.songs != "" {
		imported, err := l.importFile(cfg.songs)
		if err != nil {
			db.Close()
			return nil, err
		}
		logf(cfg, "SONGS: Imported %d songs from %s", imported, cfg.songs)
	}

	if err := l.reload(); err != nil {
		db.Close()
		return nil, err
	}

	logf(cfg, "SONGS: Library ready with %d songs", l.Count())

	return l, nil
}

func (l *SongLibrary) Close() error {
	return l.db.Close()
}

// importFile upserts songs from a scraper-format songs.json into the
// database. Existing rows with the same id are replaced.
func (l *SongLibrary) importFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read song file: %w", err)
	}

	var f songFile
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse song file: %w", err)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, s := range f.Songs {
		if s.ID == "" || s.Title == "" || s.Artist == "" {
			continue
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO songs (id, title, artist, year, preview_url, cover_url, context)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.Title, s.Artist, s.Year, s.PreviewURL, s.CoverURL, s.Context,
		)
		if err != nil {
			return 0, fmt.Errorf("import song %q: %w", s.ID, err)
		}
	}

	for year, description := range f.Contexts {
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO contexts (year, description) VALUES (?, ?)`,
			year, description,
		)
		if err != nil {
			return 0, fmt.Errorf("import context for %s: %w", year, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(f.Songs), nil
}

// reload snapshots the song table into memory. Game modes only ever
// read from the snapshot, so draws never touch the database.
func (l *SongLibrary) reload() error {
	rows, err := l.db.Query(
		`SELECT id, title, artist, year, preview_url, cover_url, context FROM songs ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var songs []Song
	byID := make(map[string]int)

	for rows.Next() {
		var s Song
		if err := rows.Scan(&s.ID, &s.Title, &s.Artist, &s.Year, &s.PreviewURL, &s.CoverURL, &s.Context); err != nil {
			return err
		}
		byID[s.ID] = len(songs)
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	contexts := make(map[string]string)

	crows, err := l.db.Query(`SELECT year, description FROM contexts`)
	if err != nil {
		return err
	}
	defer crows.Close()

	for crows.Next() {
		var year, description string
		if err := crows.Scan(&year, &description); err != nil {
			return err
		}
		contexts[year] = description
	}
	if err := crows.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.songs = songs
	l.byID = byID
	l.contexts = contexts
	l.mu.Unlock()

	return nil
}

func (l *SongLibrary) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.songs)
}

func (l *SongLibrary) All() []Song {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Song, len(l.songs))
	copy(out, l.songs)

	return out
}

func (l *SongLibrary) Contexts() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string, len(l.contexts))
	for k, v := range l.contexts {
		out[k] = v
	}

	return out
}

func (l *SongLibrary) ByID(id string) (Song, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.byID[id]
	if !ok {
		return Song{}, false
	}

	return l.songs[i], true
}

// Random returns a random song whose id is not in exclude.
func (l *SongLibrary) Random(exclude map[string]struct{}) (Song, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	available := make([]Song, 0, len(l.songs))
	for _, s := range l.songs {
		if _, used := exclude[s.ID]; used {
			continue
		}
		available = append(available, s)
	}

	if len(available) == 0 {
		return Song{}, errNoSongsLeft
	}

	return available[rand.Intn(len(available))], nil
}

// ---- Songs API ----

func writeJSON(cfg *Config, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(cfg *Config, w http.ResponseWriter, status int, message string) {
	writeJSON(cfg, w, status, map[string]string{"error": message})
}

func serveSongList(cfg *Config, library *SongLibrary) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		songs := library.All()

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"songs":    songs,
			"contexts": library.Contexts(),
			"total":    len(songs),
		})
	}
}

func serveRandomSong(cfg *Config, library *SongLibrary) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		exclude := make(map[string]struct{})
		for _, id := range strings.Split(r.URL.Query().Get("exclude"), ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				exclude[id] = struct{}{}
			}
		}

		song, err := library.Random(exclude)
		if err != nil {
			writeJSONError(cfg, w, http.StatusNotFound, "no songs left")

			return
		}

		writeJSON(cfg, w, http.StatusOK, song)
	}
}

func serveSongByID(cfg *Config, library *SongLibrary) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		song, ok := library.ByID(p.ByName("id"))
		if !ok {
			writeJSONError(cfg, w, http.StatusNotFound, "song not found")

			return
		}

		writeJSON(cfg, w, http.StatusOK, song)
	}
}

func registerSongsAPI(cfg *Config, library *SongLibrary, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/api/songs", serveSongList(cfg, library))
	mux.GET(cfg.prefix+"/api/songs/random", serveRandomSong(cfg, library))
	mux.GET(cfg.prefix+"/api/song/:id", serveSongByID(cfg, library))
}
