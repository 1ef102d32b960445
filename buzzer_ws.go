/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Messages coming from clients
type clientMessage struct {
	Type          string `json:"type"`
	RoomCode      string `json:"roomCode,omitempty"`
	PlayerName    string `json:"playerName,omitempty"`
	MaxScore      int    `json:"maxScore,omitempty"`
	CorrectArtist bool   `json:"correctArtist,omitempty"`
	CorrectTitle  bool   `json:"correctTitle,omitempty"`
}

// Messages sent to clients
type typeOnlyMessage struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type simpleNameMessage struct {
	Type string `json:"type"` // "player_joined" / "player_left"
	Name string `json:"name"`
}

type roomCreatedMessage struct {
	Type     string `json:"type"` // "room_created"
	RoomCode string `json:"roomCode"`
	MaxScore int    `json:"maxScore"`
}

type joinedRoomMessage struct {
	Type        string `json:"type"` // "joined_room"
	RoomCode    string `json:"roomCode"`
	PlayerName  string `json:"playerName"`
	GameStarted bool   `json:"gameStarted"`
}

type roundStartedMessage struct {
	Type string `json:"type"` // "round_started"
	Song Song   `json:"song"`
}

type playerBuzzedMessage struct {
	Type       string `json:"type"` // "player_buzzed"
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Position   int    `json:"position"`
}

type judgeResultMessage struct {
	Type          string `json:"type"` // "judge_result"
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	CorrectArtist bool   `json:"correctArtist"`
	CorrectTitle  bool   `json:"correctTitle"`
	Points        int    `json:"points"`
	LockedOut     bool   `json:"lockedOut,omitempty"`
	RoundEnded    bool   `json:"roundEnded,omitempty"`
	AllLockedOut  bool   `json:"allLockedOut,omitempty"`
	GameEnded     bool   `json:"gameEnded,omitempty"`
	Winner        string `json:"winner,omitempty"`
	Song          *Song  `json:"song,omitempty"`
}

type roundSkippedMessage struct {
	Type string `json:"type"` // "round_skipped"
	Song Song   `json:"song"`
}

type gameEndedMessage struct {
	Type        string       `json:"type"` // "game_ended"
	Winner      string       `json:"winner"`
	FinalScores []playerView `json:"finalScores"`
}

type playerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	IsLockedOut bool   `json:"isLockedOut"`
	IsConnected bool   `json:"isConnected"`
}

type queueEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type roomStateMessage struct {
	Type          string       `json:"type"` // "room_state" / "host_rejoined"
	Seq           uint64       `json:"seq"`
	RoomCode      string       `json:"roomCode"`
	MaxScore      int          `json:"maxScore"`
	Status        roomStatus   `json:"status"`
	Players       []playerView `json:"players"`
	RoundActive   bool         `json:"roundActive"`
	CurrentBuzzer *queueEntry  `json:"currentBuzzer,omitempty"`
	BuzzQueue     []queueEntry `json:"buzzQueue,omitempty"`   // host view only
	CurrentSong   *Song        `json:"currentSong,omitempty"` // host view only
	GameStarted   bool         `json:"gameStarted"`
	GameEnded     bool         `json:"gameEnded"`
	Winner        string       `json:"winner,omitempty"`
}

var buzzerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// buzzerClient is one websocket participant. The id doubles as the
// participant id for whichever room the client ends up in. The room
// pointer is only touched by the client's own read pump.
type buzzerClient struct {
	id   string
	conn *websocket.Conn
	send chan any
	room *buzzerRoom
}

func serveBuzzerWS(cfg *Config, rm *roomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := buzzerUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ROOMS: Upgrade error from %s: %v", realIP(r), err)
			return
		}

		client := &buzzerClient{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan any, 32),
		}

		logf(cfg, "ROOMS: Client %s connected from %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(cfg, rm)
	}
}

func (c *buzzerClient) readPump(cfg *Config, rm *roomManager) {
	defer func() {
		if c.room != nil {
			c.room.disconnect(c)
		}
		_ = c.conn.Close()
		logf(cfg, "ROOMS: Client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "create_room":
			c.createRoom(rm, msg)
		case "join_room", "host_rejoin":
			c.joinRoom(rm, msg)
		default:
			if c.room != nil {
				c.room.forward(c, msg)
			}
		}
	}
}

func (c *buzzerClient) createRoom(rm *roomManager, msg clientMessage) {
	if c.room != nil {
		return
	}

	room, err := rm.createRoom(c, msg.MaxScore)
	if err != nil {
		c.trySend(errorMessage{Type: "error", Message: err.Error()})
		return
	}

	c.room = room
	c.trySend(roomCreatedMessage{
		Type:     "room_created",
		RoomCode: room.code,
		MaxScore: room.maxScore,
	})
}

func (c *buzzerClient) joinRoom(rm *roomManager, msg clientMessage) {
	if c.room != nil {
		return
	}

	room, err := rm.lookup(msg.RoomCode)
	if err != nil {
		c.trySend(errorMessage{Type: "error", Message: err.Error()})
		return
	}

	if err := room.requestJoin(c, msg); err != nil {
		c.trySend(errorMessage{Type: "error", Message: err.Error()})
		return
	}

	c.room = room
}

// trySend is for messages produced outside a room loop.
func (c *buzzerClient) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *buzzerClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// buzzerQRHandler generates a PNG QR code linking to the buzzer page
// with the room code prefilled.
func buzzerQRHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/buzzer?code=" + code

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerBuzzerGame sets up routes so that:
//   - /buzzer           → HTML client
//   - /buzzer/ws        → shared websocket endpoint
//   - /buzzer/qr/:code  → PNG QR code joining the given room
func registerBuzzerGame(cfg *Config, library *SongLibrary, mux *httprouter.Router) *roomManager {
	rm := newRoomManager(cfg, library)

	mux.GET(cfg.prefix+"/buzzer", servePage(cfg, buzzerHTML))
	mux.GET(cfg.prefix+"/buzzer/ws", serveBuzzerWS(cfg, rm))
	mux.GET(cfg.prefix+"/buzzer/qr/:code", buzzerQRHandler(cfg))

	return rm
}
