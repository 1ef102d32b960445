// Beatguessr Buzzer Mode
//
// A host creates a room and receives a short code; players join by code
// over a websocket. The host starts rounds, each backed by a song from
// the library. Players race to buzz in; the server admits buzzes into a
// queue in arrival order. The host judges the head of the queue: any
// correct field scores and ends the round, a wrong answer locks the
// player out for the rest of the round and passes to the next buzzer.
// The round ends when someone scores, everyone still connected is
// locked out, or the host skips. First player to reach the configured
// winning score wins.
//
// Every room runs its own loop, so all mutations of one room are
// serialized while separate rooms stay independent. The registry of
// live rooms is guarded by its own lock, never held while a room lock
// is taken.

package main

import (
	"crypto/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

type roomStatus string

const (
	statusLobby         roomStatus = "lobby"
	statusInRound       roomStatus = "in_round"
	statusBetweenRounds roomStatus = "between_rounds"
	statusEnded         roomStatus = "ended"
)

// buzzerPlayer is one participant's roster entry. The id is the current
// connection id; reconnection re-points it at the new connection.
type buzzerPlayer struct {
	id        string
	name      string
	score     int
	connected bool
}

// buzzerRound is the currently playable unit. The buzz queue holds
// player ids in server arrival order; the head of the queue is "on the
// clock". lockedOut players were judged incorrect this round and may
// not buzz again until the next one.
type buzzerRound struct {
	song      Song
	startedAt time.Time
	active    bool
	buzzQueue []string
	lockedOut map[string]struct{}
}

func newBuzzerRound(song Song) *buzzerRound {
	return &buzzerRound{
		song:      song,
		startedAt: time.Now(),
		active:    true,
		lockedOut: make(map[string]struct{}),
	}
}

func (rd *buzzerRound) buzzed(id string) bool {
	for _, queued := range rd.buzzQueue {
		if queued == id {
			return true
		}
	}
	return false
}

func (rd *buzzerRound) isLockedOut(id string) bool {
	_, ok := rd.lockedOut[id]
	return ok
}

type roomCommand struct {
	client *buzzerClient
	msg    clientMessage
}

type joinRequest struct {
	client *buzzerClient
	msg    clientMessage
	reply  chan error
}

type buzzerRoom struct {
	code    string
	cfg     *Config
	library *SongLibrary

	cmds   chan roomCommand
	joins  chan joinRequest
	unreg  chan *buzzerClient
	closed chan struct{}

	mu sync.RWMutex

	clients map[*buzzerClient]struct{}

	hostID         string
	hostConnected  bool
	hostGraceUntil time.Time

	maxScore    int
	status      roomStatus
	players     []*buzzerPlayer
	round       *buzzerRound
	usedSongIDs map[string]struct{}
	winner      string

	seq        uint64
	createdAt  time.Time
	lastActive time.Time
}

func newBuzzerRoom(cfg *Config, library *SongLibrary, code string, host *buzzerClient, maxScore int) *buzzerRoom {
	if maxScore < 1 {
		maxScore = cfg.maxScore
	}

	now := time.Now()

	r := &buzzerRoom{
		code:          code,
		cfg:           cfg,
		library:       library,
		cmds:          make(chan roomCommand, 64),
		joins:         make(chan joinRequest),
		unreg:         make(chan *buzzerClient, 8),
		closed:        make(chan struct{}),
		clients:       make(map[*buzzerClient]struct{}),
		hostID:        host.id,
		hostConnected: true,
		maxScore:      maxScore,
		status:        statusLobby,
		usedSongIDs:   make(map[string]struct{}),
		createdAt:     now,
		lastActive:    now,
	}

	r.clients[host] = struct{}{}

	return r
}

func (r *buzzerRoom) run() {
	for {
		select {
		case <-r.closed:
			return
		case jr := <-r.joins:
			jr.reply <- r.handleJoinRequest(jr)
		case c := <-r.unreg:
			r.handleDisconnect(c)
		case cmd := <-r.cmds:
			r.handleCommand(cmd)
		}
	}
}

// forward hands a client message to the room loop. A room that has been
// torn down swallows the message instead of blocking the reader.
func (r *buzzerRoom) forward(c *buzzerClient, msg clientMessage) {
	select {
	case r.cmds <- roomCommand{client: c, msg: msg}:
	case <-r.closed:
	}
}

func (r *buzzerRoom) disconnect(c *buzzerClient) {
	select {
	case r.unreg <- c:
	case <-r.closed:
	}
}

// requestJoin runs a join or host rejoin through the room loop and
// waits for the verdict, so the caller knows whether the client is now
// part of the room.
func (r *buzzerRoom) requestJoin(c *buzzerClient, msg clientMessage) error {
	jr := joinRequest{client: c, msg: msg, reply: make(chan error, 1)}

	select {
	case r.joins <- jr:
	case <-r.closed:
		return ErrRoomNotFound
	}

	select {
	case err := <-jr.reply:
		return err
	case <-r.closed:
		return ErrRoomNotFound
	}
}

func (r *buzzerRoom) handleJoinRequest(jr joinRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if jr.msg.Type == "host_rejoin" {
		return r.handleHostRejoin(jr.client)
	}

	return r.handleJoin(jr.client, jr.msg)
}

func (r *buzzerRoom) handleCommand(cmd roomCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	switch cmd.msg.Type {
	case "start_game":
		r.handleStartGame(cmd.client)
	case "start_round":
		r.handleStartRound(cmd.client)
	case "buzz":
		r.handleBuzz(cmd.client)
	case "judge":
		r.handleJudge(cmd.client, cmd.msg)
	case "skip_round":
		r.handleSkipRound(cmd.client)
	case "end_game":
		r.handleEndGame(cmd.client)
	case "leave_room":
		r.handleLeave(cmd.client)
	case "get_room_state":
		r.sendTo(cmd.client, r.stateMessage(cmd.client.id == r.hostID))
	}
}

func (r *buzzerRoom) playerByID(id string) *buzzerPlayer {
	for _, p := range r.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (r *buzzerRoom) requireHost(c *buzzerClient) bool {
	if c.id != r.hostID {
		r.sendError(c, ErrNotHost)
		return false
	}
	return true
}

// handleJoin appends a new player, or re-attaches a disconnected player
// whose name matches (case-insensitive), transferring score, lockout
// state and queue position to the new connection id.
func (r *buzzerRoom) handleJoin(c *buzzerClient, msg clientMessage) error {
	if r.status == statusEnded {
		return ErrRoomAlreadyEnded
	}

	name := strings.TrimSpace(msg.PlayerName)
	if name == "" {
		return ErrNameRequired
	}

	var existing *buzzerPlayer
	for _, p := range r.players {
		if strings.EqualFold(p.name, name) {
			if p.connected {
				return ErrNameTaken
			}
			existing = p
			break
		}
	}

	if existing != nil {
		oldID := existing.id
		existing.id = c.id
		existing.connected = true

		if r.round != nil {
			for i, queued := range r.round.buzzQueue {
				if queued == oldID {
					r.round.buzzQueue[i] = c.id
				}
			}
			if _, locked := r.round.lockedOut[oldID]; locked {
				delete(r.round.lockedOut, oldID)
				r.round.lockedOut[c.id] = struct{}{}
			}
		}
	} else {
		if len(r.players) >= r.cfg.maxPlayers {
			return ErrRoomFull
		}
		r.players = append(r.players, &buzzerPlayer{
			id:        c.id,
			name:      name,
			connected: true,
		})
	}

	r.clients[c] = struct{}{}

	r.sendTo(c, joinedRoomMessage{
		Type:        "joined_room",
		RoomCode:    r.code,
		PlayerName:  name,
		GameStarted: r.status != statusLobby,
	})

	r.broadcast(simpleNameMessage{Type: "player_joined", Name: name})
	r.broadcastState()

	logf(r.cfg, "ROOMS: Player %q joined room %s", name, r.code)

	return nil
}

func (r *buzzerRoom) handleHostRejoin(c *buzzerClient) error {
	if r.hostConnected {
		return ErrHostConnected
	}

	r.hostID = c.id
	r.hostConnected = true
	r.hostGraceUntil = time.Time{}
	r.clients[c] = struct{}{}

	state := r.stateMessage(true)
	state.Type = "host_rejoined"
	r.sendTo(c, state)
	r.broadcastState()

	logf(r.cfg, "ROOMS: Host rejoined room %s", r.code)

	return nil
}

func (r *buzzerRoom) handleStartGame(c *buzzerClient) {
	if !r.requireHost(c) {
		return
	}

	if r.status == statusEnded {
		r.sendError(c, ErrRoomAlreadyEnded)
		return
	}

	if len(r.players) < 1 {
		r.sendError(c, ErrNoPlayers)
		return
	}

	if r.status == statusLobby {
		r.status = statusBetweenRounds
	}

	r.broadcast(typeOnlyMessage{Type: "game_started"})
	r.broadcastState()

	logf(r.cfg, "ROOMS: Game started in room %s", r.code)
}

func (r *buzzerRoom) handleStartRound(c *buzzerClient) {
	if !r.requireHost(c) {
		return
	}

	if r.status == statusEnded {
		r.sendError(c, ErrRoomAlreadyEnded)
		return
	}

	if r.status == statusInRound {
		r.sendError(c, ErrRoundAlreadyActive)
		return
	}

	song, err := r.library.Random(r.usedSongIDs)
	if err != nil {
		// Pool exhausted: reset it and try once more.
		r.usedSongIDs = make(map[string]struct{})
		song, err = r.library.Random(r.usedSongIDs)
		if err != nil {
			r.sendError(c, err)
			return
		}
	}

	r.usedSongIDs[song.ID] = struct{}{}
	r.round = newBuzzerRound(song)
	r.status = statusInRound

	// The host sees the answer key; players only get the audio.
	r.sendToHost(roundStartedMessage{Type: "round_started", Song: song})
	r.broadcastPlayers(roundStartedMessage{
		Type: "round_started",
		Song: Song{PreviewURL: song.PreviewURL},
	})
	r.broadcastState()

	logf(r.cfg, "ROOMS: Round started in room %s: %s - %s", r.code, song.Artist, song.Title)
}

// handleBuzz admits a buzz into the queue. Late buzzes, repeat buzzes
// and buzzes from locked-out players are expected race outcomes and are
// dropped without an error.
func (r *buzzerRoom) handleBuzz(c *buzzerClient) {
	player := r.playerByID(c.id)
	if player == nil {
		return
	}

	rd := r.round
	if rd == nil || !rd.active {
		return
	}

	if rd.isLockedOut(c.id) || rd.buzzed(c.id) {
		return
	}

	rd.buzzQueue = append(rd.buzzQueue, c.id)

	r.broadcast(playerBuzzedMessage{
		Type:       "player_buzzed",
		PlayerID:   c.id,
		PlayerName: player.name,
		Position:   len(rd.buzzQueue),
	})
	r.broadcastState()

	logf(r.cfg, "ROOMS: Player %q buzzed in room %s (position %d)", player.name, r.code, len(rd.buzzQueue))
}

func (r *buzzerRoom) handleJudge(c *buzzerClient, msg clientMessage) {
	if !r.requireHost(c) {
		return
	}

	rd := r.round
	if rd == nil || !rd.active || len(rd.buzzQueue) == 0 {
		r.sendError(c, ErrNoActiveBuzzer)
		return
	}

	judged := r.playerByID(rd.buzzQueue[0])
	if judged == nil {
		rd.buzzQueue = rd.buzzQueue[1:]
		r.sendError(c, ErrNoActiveBuzzer)
		return
	}

	points := 0
	if msg.CorrectArtist {
		points++
	}
	if msg.CorrectTitle {
		points++
	}

	result := judgeResultMessage{
		Type:          "judge_result",
		PlayerID:      judged.id,
		PlayerName:    judged.name,
		CorrectArtist: msg.CorrectArtist,
		CorrectTitle:  msg.CorrectTitle,
		Points:        points,
	}

	if points > 0 {
		judged.score += points
		rd.active = false
		r.status = statusBetweenRounds

		result.RoundEnded = true
		result.Song = &rd.song

		if judged.score >= r.maxScore {
			r.status = statusEnded
			r.winner = judged.name
			result.GameEnded = true
			result.Winner = judged.name
		}

		logf(r.cfg, "ROOMS: Player %q scored %d points in room %s", judged.name, points, r.code)
	} else {
		rd.lockedOut[judged.id] = struct{}{}
		rd.buzzQueue = rd.buzzQueue[1:]
		result.LockedOut = true

		if r.allConnectedLockedOut() {
			rd.active = false
			r.status = statusBetweenRounds
			result.RoundEnded = true
			result.AllLockedOut = true
			result.Song = &rd.song
		}

		logf(r.cfg, "ROOMS: Player %q locked out in room %s", judged.name, r.code)
	}

	r.broadcast(result)
	r.broadcastState()
}

// allConnectedLockedOut reports whether no connected player is still
// eligible to buzz this round. Disconnected players neither block the
// round from ending nor end it by themselves.
func (r *buzzerRoom) allConnectedLockedOut() bool {
	for _, p := range r.players {
		if p.connected && !r.round.isLockedOut(p.id) {
			return false
		}
	}
	return true
}

func (r *buzzerRoom) handleSkipRound(c *buzzerClient) {
	if !r.requireHost(c) {
		return
	}

	rd := r.round
	if rd == nil || !rd.active {
		return
	}

	rd.active = false
	rd.buzzQueue = nil
	r.status = statusBetweenRounds

	r.broadcast(roundSkippedMessage{Type: "round_skipped", Song: rd.song})
	r.broadcastState()

	logf(r.cfg, "ROOMS: Round skipped in room %s", r.code)
}

func (r *buzzerRoom) handleEndGame(c *buzzerClient) {
	if !r.requireHost(c) {
		return
	}

	r.status = statusEnded
	if r.round != nil {
		r.round.active = false
	}

	// Highest score wins; ties break by join order.
	if r.winner == "" {
		best := -1
		for _, p := range r.players {
			if p.score > best {
				best = p.score
				r.winner = p.name
			}
		}
	}

	r.broadcast(gameEndedMessage{
		Type:        "game_ended",
		Winner:      r.winner,
		FinalScores: r.playerViews(),
	})
	r.broadcastState()

	logf(r.cfg, "ROOMS: Game ended in room %s, winner: %s", r.code, r.winner)
}

func (r *buzzerRoom) handleLeave(c *buzzerClient) {
	if c.id == r.hostID {
		r.hostLost(c)
		return
	}

	player := r.playerByID(c.id)
	if player == nil {
		return
	}

	for i, p := range r.players {
		if p == player {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}

	delete(r.clients, c)

	r.broadcast(simpleNameMessage{Type: "player_left", Name: player.name})
	r.broadcastState()

	logf(r.cfg, "ROOMS: Player %q left room %s", player.name, r.code)
}

func (r *buzzerRoom) handleDisconnect(c *buzzerClient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	r.lastActive = time.Now()

	if c.id == r.hostID {
		r.hostLost(c)
		return
	}

	delete(r.clients, c)

	// A dropped player stays on the roster and keeps their score and
	// queue position, so a rejoin with the same name can resume. If
	// they were on the clock the round waits for the host to skip.
	if player := r.playerByID(c.id); player != nil {
		player.connected = false
		r.broadcastState()
		logf(r.cfg, "ROOMS: Player %q disconnected from room %s", player.name, r.code)
	}
}

// hostLost marks the host gone and starts the teardown grace period.
// Host authority is never transferred; the reaper removes the room
// unless the same host rejoins in time.
func (r *buzzerRoom) hostLost(c *buzzerClient) {
	delete(r.clients, c)

	if !r.hostConnected {
		return
	}

	r.hostConnected = false
	r.hostGraceUntil = time.Now().Add(r.cfg.hostGrace)

	r.broadcast(typeOnlyMessage{Type: "host_disconnected"})

	logf(r.cfg, "ROOMS: Host disconnected from room %s", r.code)
}

// expired reports whether the reaper should tear this room down.
func (r *buzzerRoom) expired(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.hostConnected && now.After(r.hostGraceUntil) {
		return true
	}

	if len(r.clients) == 0 && now.Sub(r.lastActive) > r.cfg.hostGrace {
		return true
	}

	return now.Sub(r.lastActive) > r.cfg.sessionTimeout
}

// closeAll disconnects every client of this room (used by the reaper).
func (r *buzzerRoom) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(r.clients, c)
	}
}

// ---- Broadcasts ----

// sendTo delivers only to clients still registered with the room.
// Commands buffered before teardown can still be dispatched after
// closeAll has closed a client's channel, so replies to evicted
// clients are dropped. A full send buffer evicts the client.
func (r *buzzerRoom) sendTo(c *buzzerClient, msg any) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(r.clients, c)
		close(c.send)
	}
}

func (r *buzzerRoom) broadcast(msg any) {
	for c := range r.clients {
		r.sendTo(c, msg)
	}
}

func (r *buzzerRoom) broadcastPlayers(msg any) {
	for c := range r.clients {
		if c.id == r.hostID {
			continue
		}
		r.sendTo(c, msg)
	}
}

func (r *buzzerRoom) sendToHost(msg any) {
	for c := range r.clients {
		if c.id == r.hostID {
			r.sendTo(c, msg)
			return
		}
	}
}

// broadcastState sends each participant their view of the room. The
// host additionally sees the current song and the full buzz queue.
func (r *buzzerRoom) broadcastState() {
	r.seq++

	hostView := r.stateMessage(true)
	playerView := r.stateMessage(false)

	for c := range r.clients {
		if c.id == r.hostID {
			r.sendTo(c, hostView)
		} else {
			r.sendTo(c, playerView)
		}
	}
}

func (r *buzzerRoom) playerViews() []playerView {
	views := make([]playerView, 0, len(r.players))
	for _, p := range r.players {
		locked := false
		if r.round != nil {
			locked = r.round.isLockedOut(p.id)
		}
		views = append(views, playerView{
			ID:          p.id,
			Name:        p.name,
			Score:       p.score,
			IsLockedOut: locked,
			IsConnected: p.connected,
		})
	}

	// Scoreboard order: score descending, join order among ties.
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Score > views[j].Score
	})

	return views
}

func (r *buzzerRoom) stateMessage(forHost bool) roomStateMessage {
	state := roomStateMessage{
		Type:        "room_state",
		Seq:         r.seq,
		RoomCode:    r.code,
		MaxScore:    r.maxScore,
		Status:      r.status,
		Players:     r.playerViews(),
		GameStarted: r.status != statusLobby,
		GameEnded:   r.status == statusEnded,
		Winner:      r.winner,
	}

	rd := r.round
	if rd != nil && rd.active {
		state.RoundActive = true

		if len(rd.buzzQueue) > 0 {
			if p := r.playerByID(rd.buzzQueue[0]); p != nil {
				state.CurrentBuzzer = &queueEntry{ID: p.id, Name: p.name}
			}
		}

		if forHost {
			for _, id := range rd.buzzQueue {
				if p := r.playerByID(id); p != nil {
					state.BuzzQueue = append(state.BuzzQueue, queueEntry{ID: p.id, Name: p.name})
				}
			}
		}
	}

	if forHost && rd != nil {
		state.CurrentSong = &rd.song
	}

	return state
}

func (r *buzzerRoom) sendError(c *buzzerClient, err error) {
	r.sendTo(c, errorMessage{Type: "error", Message: err.Error()})
}

// ---- Room registry ----

// roomManager maps room codes to live rooms. Its lock only covers code
// allocation and map lookup/insert/remove, never room internals.
type roomManager struct {
	cfg     *Config
	library *SongLibrary

	mu    sync.Mutex
	rooms map[string]*buzzerRoom
}

func newRoomManager(cfg *Config, library *SongLibrary) *roomManager {
	rm := &roomManager{
		cfg:     cfg,
		library: library,
		rooms:   make(map[string]*buzzerRoom),
	}

	if cfg.sessionTimeout > 0 {
		go rm.reaperLoop()
	}

	return rm
}

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newRoomCodeLocked generates a 6-character code unique among live
// rooms. Codes free up for reuse once their room is torn down.
func (rm *roomManager) newRoomCodeLocked() string {
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 6)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		if _, exists := rm.rooms[code]; !exists {
			return code
		}
	}
}

func (rm *roomManager) createRoom(host *buzzerClient, maxScore int) (*buzzerRoom, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.cfg.maxRooms > 0 && len(rm.rooms) >= rm.cfg.maxRooms {
		return nil, ErrCapacityExceeded
	}

	code := rm.newRoomCodeLocked()
	room := newBuzzerRoom(rm.cfg, rm.library, code, host, maxScore)
	rm.rooms[code] = room

	go room.run()

	logf(rm.cfg, "ROOMS: Created room %s", code)

	return room, nil
}

func (rm *roomManager) lookup(code string) (*buzzerRoom, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[strings.ToUpper(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

// destroyRoom removes a room from the registry and disconnects its
// clients. Destroying an unknown code is a no-op.
func (rm *roomManager) destroyRoom(code string) {
	rm.mu.Lock()
	room, ok := rm.rooms[code]
	if ok {
		delete(rm.rooms, code)
	}
	rm.mu.Unlock()

	if !ok {
		return
	}

	close(room.closed)
	room.closeAll()

	logf(rm.cfg, "ROOMS: Destroyed room %s", code)
}

func (rm *roomManager) reaperLoop() {
	interval := rm.cfg.hostGrace
	if interval <= 0 || rm.cfg.sessionTimeout < interval {
		interval = rm.cfg.sessionTimeout
	}
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval / 2)
	for range ticker.C {
		now := time.Now()

		rm.mu.Lock()
		var doomed []string
		for code, room := range rm.rooms {
			if room.expired(now) {
				doomed = append(doomed, code)
			}
		}
		rm.mu.Unlock()

		for _, code := range doomed {
			rm.destroyRoom(code)
		}
	}
}
