/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const timelineWinningLength = 10

// TimelinePlayer is one seat in a local pass-the-phone timeline game.
// The timeline holds song ids in the order the player placed them;
// score is always the timeline length.
type TimelinePlayer struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Timeline []string `json:"timeline"`
	Score    int      `json:"score"`
}

type TimelineGame struct {
	ID                 string            `json:"id"`
	Players            []*TimelinePlayer `json:"players"`
	CurrentPlayerIndex int               `json:"current_player_index"`
	UsedSongIDs        []string          `json:"used_song_ids"`
	RemainingSongIDs   []string          `json:"remaining_song_ids"`
	CurrentSongID      string            `json:"current_song_id"`
	Status             string            `json:"status"`
	Winner             string            `json:"winner"`
	CreatedAt          time.Time         `json:"created_at"`
}

// TimelineManager holds all running timeline sessions. Sessions are
// plain request/response state machines, so a single lock around the
// map and the game bodies is enough.
type TimelineManager struct {
	mu      sync.Mutex
	games   map[string]*TimelineGame
	library *SongLibrary
}

func newTimelineManager(library *SongLibrary) *TimelineManager {
	return &TimelineManager{
		games:   make(map[string]*TimelineGame),
		library: library,
	}
}

func (tm *TimelineManager) createGame(names []string) *TimelineGame {
	pool := tm.library.All()
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	game := &TimelineGame{
		ID:        uuid.NewString()[:8],
		Status:    "playing",
		CreatedAt: time.Now(),
	}

	// Each player starts with one card already on their timeline.
	for i, name := range names {
		player := &TimelinePlayer{
			ID:       i,
			Name:     name,
			Timeline: []string{},
		}
		if i < len(pool) {
			player.Timeline = append(player.Timeline, pool[i].ID)
			player.Score = 1
			game.UsedSongIDs = append(game.UsedSongIDs, pool[i].ID)
		}
		game.Players = append(game.Players, player)
	}

	for i := len(names); i < len(pool); i++ {
		game.RemainingSongIDs = append(game.RemainingSongIDs, pool[i].ID)
	}

	tm.mu.Lock()
	tm.games[game.ID] = game
	tm.mu.Unlock()

	return game
}

type timelineDraw struct {
	SongID     string `json:"song_id"`
	PreviewURL string `json:"preview_url"`
	CoverURL   string `json:"cover_url"`
}

type timelineGuessResult struct {
	Correct         bool            `json:"correct"`
	Song            Song            `json:"song"`
	Player          *TimelinePlayer `json:"player"`
	GameStatus      string          `json:"game_status"`
	Winner          string          `json:"winner"`
	NextPlayerIndex int             `json:"next_player_index"`
}

// guess resolves a chronology placement for the current player. The
// drawn song is consumed and the turn advances whether or not the
// placement was correct.
func (tm *TimelineManager) guess(game *TimelineGame, position *int) timelineGuessResult {
	song, _ := tm.library.ByID(game.CurrentSongID)
	player := game.Players[game.CurrentPlayerIndex]

	years := make([]int, 0, len(player.Timeline))
	for _, id := range player.Timeline {
		if s, ok := tm.library.ByID(id); ok {
			years = append(years, s.Year)
		}
	}

	correct := false
	if position != nil && *position >= 0 && *position <= len(years) {
		before := -9999
		if *position > 0 {
			before = years[*position-1]
		}
		after := 9999
		if *position < len(years) {
			after = years[*position]
		}
		correct = before <= song.Year && song.Year <= after
	}

	if correct {
		player.Timeline = append(player.Timeline, "")
		copy(player.Timeline[*position+1:], player.Timeline[*position:])
		player.Timeline[*position] = song.ID
		player.Score = len(player.Timeline)

		if player.Score >= timelineWinningLength {
			game.Status = "finished"
			game.Winner = player.Name
		}
	}

	for i, id := range game.RemainingSongIDs {
		if id == song.ID {
			game.RemainingSongIDs = append(game.RemainingSongIDs[:i], game.RemainingSongIDs[i+1:]...)
			break
		}
	}
	game.UsedSongIDs = append(game.UsedSongIDs, song.ID)
	game.CurrentSongID = ""
	game.CurrentPlayerIndex = (game.CurrentPlayerIndex + 1) % len(game.Players)

	return timelineGuessResult{
		Correct:         correct,
		Song:            song,
		Player:          player,
		GameStatus:      game.Status,
		Winner:          game.Winner,
		NextPlayerIndex: game.CurrentPlayerIndex,
	}
}

// ---- Timeline API ----

func serveTimelineCreate(cfg *Config, tm *TimelineManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Players []string `json:"players"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, "invalid request body")

			return
		}

		if len(body.Players) < 2 || len(body.Players) > 4 {
			writeJSONError(cfg, w, http.StatusBadRequest, "2-4 players required")

			return
		}

		game := tm.createGame(body.Players)

		logf(cfg, "GAMES: Created timeline game %s for %d players", game.ID, len(game.Players))

		tm.mu.Lock()
		defer tm.mu.Unlock()
		writeJSON(cfg, w, http.StatusOK, game)
	}
}

func serveTimelineState(cfg *Config, tm *TimelineManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		tm.mu.Lock()
		defer tm.mu.Unlock()

		game, ok := tm.games[p.ByName("id")]
		if !ok {
			writeJSONError(cfg, w, http.StatusNotFound, "game not found")

			return
		}

		writeJSON(cfg, w, http.StatusOK, game)
	}
}

func serveTimelineDraw(cfg *Config, tm *TimelineManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		tm.mu.Lock()
		defer tm.mu.Unlock()

		game, ok := tm.games[p.ByName("id")]
		if !ok {
			writeJSONError(cfg, w, http.StatusNotFound, "game not found")

			return
		}

		if game.Status != "playing" {
			writeJSONError(cfg, w, http.StatusBadRequest, "game is over")

			return
		}

		if len(game.RemainingSongIDs) == 0 {
			writeJSONError(cfg, w, http.StatusBadRequest, "no songs left")

			return
		}

		songID := game.RemainingSongIDs[rand.Intn(len(game.RemainingSongIDs))]
		game.CurrentSongID = songID

		draw := timelineDraw{SongID: songID}
		if song, ok := tm.library.ByID(songID); ok {
			draw.PreviewURL = song.PreviewURL
			draw.CoverURL = song.CoverURL
		}

		writeJSON(cfg, w, http.StatusOK, draw)
	}
}

func serveTimelineGuess(cfg *Config, tm *TimelineManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var body struct {
			Position *int `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, "invalid request body")

			return
		}

		tm.mu.Lock()
		defer tm.mu.Unlock()

		game, ok := tm.games[p.ByName("id")]
		if !ok {
			writeJSONError(cfg, w, http.StatusNotFound, "game not found")

			return
		}

		if game.Status != "playing" {
			writeJSONError(cfg, w, http.StatusBadRequest, "game is over")

			return
		}

		if game.CurrentSongID == "" {
			writeJSONError(cfg, w, http.StatusBadRequest, "no song drawn")

			return
		}

		result := tm.guess(game, body.Position)

		logf(cfg, "GAMES: Timeline guess in %s by %s: correct=%t", game.ID, result.Player.Name, result.Correct)

		writeJSON(cfg, w, http.StatusOK, result)
	}
}

func registerTimelineAPI(cfg *Config, tm *TimelineManager, mux *httprouter.Router) {
	// httprouter cannot mix a static "create" segment with the ":id"
	// wildcard below, so creation lives on the collection path.
	mux.POST(cfg.prefix+"/api/games", serveTimelineCreate(cfg, tm))
	mux.GET(cfg.prefix+"/api/game/:id", serveTimelineState(cfg, tm))
	mux.POST(cfg.prefix+"/api/game/:id/draw", serveTimelineDraw(cfg, tm))
	mux.POST(cfg.prefix+"/api/game/:id/guess", serveTimelineGuess(cfg, tm))
}
