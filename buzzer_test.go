package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		port:           8080,
		maxPlayers:     8,
		maxRooms:       0,
		maxScore:       10,
		hostGrace:      time.Minute,
		sessionTimeout: time.Hour,
	}
}

func testLibrary(n int) *SongLibrary {
	l := &SongLibrary{byID: make(map[string]int)}
	for i := 0; i < n; i++ {
		s := Song{
			ID:         fmt.Sprintf("song-%d", i),
			Title:      fmt.Sprintf("Title %d", i),
			Artist:     fmt.Sprintf("Artist %d", i),
			Year:       1970 + i,
			PreviewURL: fmt.Sprintf("https://example.com/%d.mp3", i),
		}
		l.byID[s.ID] = len(l.songs)
		l.songs = append(l.songs, s)
	}
	return l
}

func newTestClient() *buzzerClient {
	return &buzzerClient{
		id:   uuid.NewString(),
		send: make(chan any, 64),
	}
}

// drain empties a client's send buffer.
func drain(c *buzzerClient) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastState(t *testing.T, c *buzzerClient) roomStateMessage {
	t.Helper()

	var state *roomStateMessage
	for _, msg := range drain(c) {
		if s, ok := msg.(roomStateMessage); ok && s.Type == "room_state" {
			state = &s
		}
	}

	require.NotNil(t, state, "expected at least one room_state")

	return *state
}

func cmd(r *buzzerRoom, c *buzzerClient, msg clientMessage) {
	r.handleCommand(roomCommand{client: c, msg: msg})
}

func join(t *testing.T, r *buzzerRoom, name string) *buzzerClient {
	t.Helper()

	c := newTestClient()
	err := r.handleJoinRequest(joinRequest{client: c, msg: clientMessage{Type: "join_room", PlayerName: name}})
	require.NoError(t, err)

	return c
}

// newTestRoom returns a room with a running host plus n joined players.
// Commands are dispatched directly rather than through the room loop,
// so tests stay deterministic.
func newTestRoom(t *testing.T, cfg *Config, maxScore, players int) (*roomManager, *buzzerRoom, *buzzerClient, []*buzzerClient) {
	t.Helper()

	rm := newRoomManager(cfg, testLibrary(20))

	host := newTestClient()
	room, err := rm.createRoom(host, maxScore)
	require.NoError(t, err)

	var clients []*buzzerClient
	for i := 0; i < players; i++ {
		clients = append(clients, join(t, room, fmt.Sprintf("player-%d", i)))
	}

	return rm, room, host, clients
}

func startRound(t *testing.T, r *buzzerRoom, host *buzzerClient) {
	t.Helper()

	cmd(r, host, clientMessage{Type: "start_round"})

	r.mu.RLock()
	defer r.mu.RUnlock()
	require.NotNil(t, r.round)
	require.True(t, r.round.active)
}

func buzzIn(r *buzzerRoom, c *buzzerClient) {
	cmd(r, c, clientMessage{Type: "buzz"})
}

func judge(r *buzzerRoom, host *buzzerClient, artist, title bool) {
	cmd(r, host, clientMessage{Type: "judge", CorrectArtist: artist, CorrectTitle: title})
}

func assertNoError(t *testing.T, c *buzzerClient) {
	t.Helper()

	for _, msg := range drain(c) {
		if e, ok := msg.(errorMessage); ok {
			t.Fatalf("unexpected error message: %s", e.Message)
		}
	}
}

func assertError(t *testing.T, c *buzzerClient, want error) {
	t.Helper()

	for _, msg := range drain(c) {
		if e, ok := msg.(errorMessage); ok && e.Message == want.Error() {
			return
		}
	}

	t.Fatalf("expected error %q, got none", want)
}

func TestRoomRegistry(t *testing.T) {
	cfg := testConfig()

	t.Run("create and lookup", func(t *testing.T) {
		rm, room, _, _ := newTestRoom(t, cfg, 0, 0)

		assert.Len(t, room.code, 6)
		assert.Equal(t, cfg.maxScore, room.maxScore)
		assert.Equal(t, statusLobby, room.status)

		found, err := rm.lookup(room.code)
		require.NoError(t, err)
		assert.Same(t, room, found)

		// Lookups are case-insensitive; codes are typed by humans.
		found, err = rm.lookup(strings.ToLower(room.code))
		require.NoError(t, err)
		assert.Same(t, room, found)
	})

	t.Run("unknown code leaves registry unmodified", func(t *testing.T) {
		rm, room, _, _ := newTestRoom(t, cfg, 0, 1)

		_, err := rm.lookup("NOPE42")
		assert.ErrorIs(t, err, ErrRoomNotFound)

		rm.mu.Lock()
		assert.Len(t, rm.rooms, 1)
		rm.mu.Unlock()

		room.mu.RLock()
		assert.Len(t, room.players, 1)
		room.mu.RUnlock()
	})

	t.Run("capacity limit", func(t *testing.T) {
		capped := testConfig()
		capped.maxRooms = 1
		rm := newRoomManager(capped, testLibrary(5))

		_, err := rm.createRoom(newTestClient(), 0)
		require.NoError(t, err)

		_, err = rm.createRoom(newTestClient(), 0)
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	})

	t.Run("destroy is idempotent", func(t *testing.T) {
		rm, room, host, _ := newTestRoom(t, cfg, 0, 0)

		room.handleDisconnect(host)
		rm.destroyRoom(room.code)
		rm.destroyRoom(room.code)

		_, err := rm.lookup(room.code)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})
}

func TestDestroyedRoomDropsLateReplies(t *testing.T) {
	cfg := testConfig()
	rm, room, host, players := newTestRoom(t, cfg, 0, 1)
	a := players[0]

	// Tear the room down the way the reaper does; the manual close
	// stands in for what closeAll does to a live connection.
	room.handleDisconnect(host)
	room.handleDisconnect(a)
	rm.destroyRoom(room.code)
	close(a.send)

	// Commands buffered before teardown can still be dispatched by the
	// room loop. Replies to evicted clients must be dropped, not sent
	// on their closed channels.
	assert.NotPanics(t, func() {
		cmd(room, a, clientMessage{Type: "get_room_state"})
		cmd(room, a, clientMessage{Type: "start_round"})
	})
}

func TestJoinRoom(t *testing.T) {
	cfg := testConfig()

	t.Run("roster keeps join order", func(t *testing.T) {
		_, room, _, _ := newTestRoom(t, cfg, 0, 3)

		room.mu.RLock()
		defer room.mu.RUnlock()

		require.Len(t, room.players, 3)
		for i, p := range room.players {
			assert.Equal(t, fmt.Sprintf("player-%d", i), p.name)
			assert.True(t, p.connected)
			assert.Zero(t, p.score)
		}
	})

	t.Run("duplicate connected name is rejected", func(t *testing.T) {
		_, room, _, _ := newTestRoom(t, cfg, 0, 1)

		c := newTestClient()
		err := room.handleJoinRequest(joinRequest{client: c, msg: clientMessage{Type: "join_room", PlayerName: "PLAYER-0"}})
		assert.ErrorIs(t, err, ErrNameTaken)
	})

	t.Run("room full", func(t *testing.T) {
		small := testConfig()
		small.maxPlayers = 2
		rm := newRoomManager(small, testLibrary(5))
		room, err := rm.createRoom(newTestClient(), 0)
		require.NoError(t, err)

		join(t, room, "a")
		join(t, room, "b")

		c := newTestClient()
		err = room.handleJoinRequest(joinRequest{client: c, msg: clientMessage{Type: "join_room", PlayerName: "c"}})
		assert.ErrorIs(t, err, ErrRoomFull)
	})

	t.Run("ended room rejects joins", func(t *testing.T) {
		_, room, host, _ := newTestRoom(t, cfg, 0, 1)

		cmd(room, host, clientMessage{Type: "end_game"})

		c := newTestClient()
		err := room.handleJoinRequest(joinRequest{client: c, msg: clientMessage{Type: "join_room", PlayerName: "late"}})
		assert.ErrorIs(t, err, ErrRoomAlreadyEnded)
	})
}

func TestBuzzQueueOrdering(t *testing.T) {
	cfg := testConfig()
	_, room, host, players := newTestRoom(t, cfg, 0, 3)
	a, b, c := players[0], players[1], players[2]

	startRound(t, room, host)

	buzzIn(room, b)
	buzzIn(room, a)
	buzzIn(room, c)

	room.mu.RLock()
	assert.Equal(t, []string{b.id, a.id, c.id}, room.round.buzzQueue)
	room.mu.RUnlock()

	t.Run("repeat buzz is dropped silently", func(t *testing.T) {
		drain(a)
		buzzIn(room, a)

		room.mu.RLock()
		assert.Equal(t, []string{b.id, a.id, c.id}, room.round.buzzQueue)
		room.mu.RUnlock()

		assertNoError(t, a)
	})

	t.Run("head of queue is on the clock", func(t *testing.T) {
		state := lastState(t, host)
		require.NotNil(t, state.CurrentBuzzer)
		assert.Equal(t, b.id, state.CurrentBuzzer.ID)
	})
}

func TestBuzzRejection(t *testing.T) {
	cfg := testConfig()

	t.Run("no active round", func(t *testing.T) {
		_, room, _, players := newTestRoom(t, cfg, 0, 1)
		a := players[0]
		drain(a)

		buzzIn(room, a)

		room.mu.RLock()
		assert.Nil(t, room.round)
		room.mu.RUnlock()
		assertNoError(t, a)
	})

	t.Run("locked-out player can never rejoin the queue", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		a := players[0]

		startRound(t, room, host)
		buzzIn(room, a)
		judge(room, host, false, false)

		drain(a)
		for i := 0; i < 3; i++ {
			buzzIn(room, a)
		}

		room.mu.RLock()
		assert.Empty(t, room.round.buzzQueue)
		assert.True(t, room.round.isLockedOut(a.id))
		room.mu.RUnlock()
		assertNoError(t, a)
	})

	t.Run("non-participant buzz is ignored", func(t *testing.T) {
		_, room, host, _ := newTestRoom(t, cfg, 0, 1)
		startRound(t, room, host)

		stranger := newTestClient()
		buzzIn(room, stranger)

		room.mu.RLock()
		assert.Empty(t, room.round.buzzQueue)
		room.mu.RUnlock()
	})
}

func TestJudging(t *testing.T) {
	cfg := testConfig()

	t.Run("correct answer scores exactly and ends the round", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		a, b := players[0], players[1]

		startRound(t, room, host)
		buzzIn(room, a)
		buzzIn(room, b)
		judge(room, host, true, false)

		room.mu.RLock()
		assert.Equal(t, 1, room.playerByID(a.id).score)
		assert.Equal(t, 0, room.playerByID(b.id).score)
		assert.False(t, room.round.active)
		assert.Equal(t, statusBetweenRounds, room.status)
		room.mu.RUnlock()
	})

	t.Run("incorrect answer advances the queue in order", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 3)
		a, b, c := players[0], players[1], players[2]

		startRound(t, room, host)
		buzzIn(room, a)
		buzzIn(room, b)
		buzzIn(room, c)
		judge(room, host, false, false)

		room.mu.RLock()
		assert.Equal(t, []string{b.id, c.id}, room.round.buzzQueue)
		assert.True(t, room.round.isLockedOut(a.id))
		assert.True(t, room.round.active)
		assert.Zero(t, room.playerByID(a.id).score)
		room.mu.RUnlock()
	})

	t.Run("incorrect with empty queue returns to waiting", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		a := players[0]

		startRound(t, room, host)
		buzzIn(room, a)
		judge(room, host, false, false)

		room.mu.RLock()
		assert.Empty(t, room.round.buzzQueue)
		assert.True(t, room.round.active, "round continues while another player can still buzz")
		room.mu.RUnlock()
	})

	t.Run("judge without a buzzer fails", func(t *testing.T) {
		_, room, host, _ := newTestRoom(t, cfg, 0, 1)

		startRound(t, room, host)
		drain(host)
		judge(room, host, true, true)

		assertError(t, host, ErrNoActiveBuzzer)
	})

	t.Run("all connected locked out ends the round", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		a, b := players[0], players[1]

		startRound(t, room, host)
		buzzIn(room, a)
		buzzIn(room, b)
		judge(room, host, false, false)
		drain(host)
		judge(room, host, false, false)

		room.mu.RLock()
		assert.False(t, room.round.active)
		assert.Equal(t, statusBetweenRounds, room.status)
		room.mu.RUnlock()

		// Only the second judgment ends the round; inspect the last
		// result, not the first.
		var result *judgeResultMessage
		for _, msg := range drain(b) {
			if res, ok := msg.(judgeResultMessage); ok {
				result = &res
			}
		}
		require.NotNil(t, result)
		assert.True(t, result.AllLockedOut)
		assert.True(t, result.RoundEnded)
	})

	t.Run("disconnected players do not block lockout ending", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		a, b := players[0], players[1]

		startRound(t, room, host)
		buzzIn(room, a)
		room.handleDisconnect(b)
		judge(room, host, false, false)

		room.mu.RLock()
		assert.False(t, room.round.active)
		room.mu.RUnlock()
	})
}

func TestHostAuthority(t *testing.T) {
	cfg := testConfig()
	_, room, host, players := newTestRoom(t, cfg, 0, 2)
	a := players[0]

	for _, action := range []string{"start_game", "start_round", "skip_round", "end_game"} {
		t.Run(action, func(t *testing.T) {
			drain(a)
			cmd(room, a, clientMessage{Type: action})
			assertError(t, a, ErrNotHost)
		})
	}

	t.Run("judge", func(t *testing.T) {
		startRound(t, room, host)
		buzzIn(room, a)
		drain(a)

		cmd(room, a, clientMessage{Type: "judge", CorrectTitle: true})
		assertError(t, a, ErrNotHost)

		room.mu.RLock()
		assert.Zero(t, room.playerByID(a.id).score)
		room.mu.RUnlock()
	})
}

func TestRoundLifecycle(t *testing.T) {
	cfg := testConfig()

	t.Run("start while active fails", func(t *testing.T) {
		_, room, host, _ := newTestRoom(t, cfg, 0, 1)

		startRound(t, room, host)
		drain(host)
		cmd(room, host, clientMessage{Type: "start_round"})

		assertError(t, host, ErrRoundAlreadyActive)
	})

	t.Run("lockouts reset between rounds", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 1)
		a := players[0]

		startRound(t, room, host)
		buzzIn(room, a)
		judge(room, host, false, false)

		room.mu.RLock()
		assert.False(t, room.round.active)
		room.mu.RUnlock()

		cmd(room, host, clientMessage{Type: "start_round"})
		buzzIn(room, a)

		room.mu.RLock()
		assert.Equal(t, []string{a.id}, room.round.buzzQueue)
		assert.False(t, room.round.isLockedOut(a.id))
		room.mu.RUnlock()
	})

	t.Run("rounds draw distinct songs until the pool resets", func(t *testing.T) {
		rm := newRoomManager(cfg, testLibrary(2))
		host := newTestClient()
		room, err := rm.createRoom(host, 0)
		require.NoError(t, err)
		join(t, room, "a")

		seen := make(map[string]int)
		for i := 0; i < 4; i++ {
			cmd(room, host, clientMessage{Type: "start_round"})
			room.mu.Lock()
			seen[room.round.song.ID]++
			room.round.active = false
			room.status = statusBetweenRounds
			room.mu.Unlock()
		}

		assert.Len(t, seen, 2)
		for id, count := range seen {
			assert.Equal(t, 2, count, "song %s should be reused after pool reset", id)
		}
	})

	t.Run("skip ends round without score changes", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 1)
		a := players[0]

		startRound(t, room, host)
		buzzIn(room, a)
		drain(a)
		cmd(room, host, clientMessage{Type: "skip_round"})

		room.mu.RLock()
		assert.False(t, room.round.active)
		assert.Zero(t, room.playerByID(a.id).score)
		room.mu.RUnlock()

		var skipped bool
		for _, msg := range drain(a) {
			if _, ok := msg.(roundSkippedMessage); ok {
				skipped = true
			}
		}
		assert.True(t, skipped)
	})
}

func TestEndToEndWin(t *testing.T) {
	cfg := testConfig()
	_, room, host, players := newTestRoom(t, cfg, 2, 2)
	a, b := players[0], players[1]

	cmd(room, host, clientMessage{Type: "start_game"})
	startRound(t, room, host)

	buzzIn(room, a)
	buzzIn(room, b)
	drain(a)

	judge(room, host, true, true)

	room.mu.RLock()
	assert.Equal(t, 2, room.playerByID(a.id).score)
	assert.Equal(t, statusEnded, room.status)
	assert.Equal(t, "player-0", room.winner)
	room.mu.RUnlock()

	var result *judgeResultMessage
	for _, msg := range drain(a) {
		if res, ok := msg.(judgeResultMessage); ok {
			result = &res
		}
	}
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Points)
	assert.True(t, result.RoundEnded)
	assert.True(t, result.GameEnded)
	assert.Equal(t, "player-0", result.Winner)
}

func TestSinglePlayerLockout(t *testing.T) {
	cfg := testConfig()
	_, room, host, players := newTestRoom(t, cfg, 10, 1)
	a := players[0]

	startRound(t, room, host)
	buzzIn(room, a)
	drain(a)
	judge(room, host, false, false)

	room.mu.RLock()
	assert.False(t, room.round.active)
	assert.Zero(t, room.playerByID(a.id).score)
	assert.NotEqual(t, statusEnded, room.status)
	room.mu.RUnlock()

	var result *judgeResultMessage
	for _, msg := range drain(a) {
		if res, ok := msg.(judgeResultMessage); ok {
			result = &res
		}
	}
	require.NotNil(t, result)
	assert.True(t, result.AllLockedOut)
	assert.True(t, result.RoundEnded)
	assert.Zero(t, result.Points)
}

func TestEndGame(t *testing.T) {
	cfg := testConfig()

	t.Run("winner by highest score", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		b := players[1]

		startRound(t, room, host)
		buzzIn(room, b)
		judge(room, host, true, true)

		cmd(room, host, clientMessage{Type: "end_game"})

		room.mu.RLock()
		assert.Equal(t, "player-1", room.winner)
		assert.Equal(t, statusEnded, room.status)
		room.mu.RUnlock()
	})

	t.Run("tie breaks by join order", func(t *testing.T) {
		_, room, host, _ := newTestRoom(t, cfg, 0, 3)

		cmd(room, host, clientMessage{Type: "end_game"})

		room.mu.RLock()
		assert.Equal(t, "player-0", room.winner)
		room.mu.RUnlock()
	})

	t.Run("final scores sorted descending", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		b := players[1]

		startRound(t, room, host)
		buzzIn(room, b)
		judge(room, host, true, false)
		drain(b)

		cmd(room, host, clientMessage{Type: "end_game"})

		var ended *gameEndedMessage
		for _, msg := range drain(b) {
			if e, ok := msg.(gameEndedMessage); ok {
				ended = &e
			}
		}
		require.NotNil(t, ended)
		require.Len(t, ended.FinalScores, 2)
		assert.Equal(t, "player-1", ended.FinalScores[0].Name)
		assert.Equal(t, 1, ended.FinalScores[0].Score)
	})
}

func TestReconnection(t *testing.T) {
	cfg := testConfig()

	t.Run("rejoin by name re-attaches score and queue position", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		a, b := players[0], players[1]

		startRound(t, room, host)
		buzzIn(room, a)
		buzzIn(room, b)
		room.handleDisconnect(a)

		room.mu.RLock()
		assert.False(t, room.playerByID(a.id).connected)
		room.mu.RUnlock()

		again := newTestClient()
		err := room.handleJoinRequest(joinRequest{client: again, msg: clientMessage{Type: "join_room", PlayerName: "PLAYER-0"}})
		require.NoError(t, err)

		room.mu.RLock()
		assert.Nil(t, room.playerByID(a.id), "old connection id should be gone")
		p := room.playerByID(again.id)
		require.NotNil(t, p)
		assert.True(t, p.connected)
		assert.Equal(t, []string{again.id, b.id}, room.round.buzzQueue)
		room.mu.RUnlock()
	})

	t.Run("rejoin transfers lockout", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 2)
		a := players[0]

		startRound(t, room, host)
		buzzIn(room, a)
		judge(room, host, false, false)
		room.handleDisconnect(a)

		again := newTestClient()
		err := room.handleJoinRequest(joinRequest{client: again, msg: clientMessage{Type: "join_room", PlayerName: "player-0"}})
		require.NoError(t, err)

		buzzIn(room, again)

		room.mu.RLock()
		assert.True(t, room.round.isLockedOut(again.id))
		assert.Empty(t, room.round.buzzQueue)
		room.mu.RUnlock()
	})
}

func TestHostDisconnect(t *testing.T) {
	cfg := testConfig()

	t.Run("players are notified and room expires after grace", func(t *testing.T) {
		_, room, host, players := newTestRoom(t, cfg, 0, 1)
		a := players[0]
		drain(a)

		room.handleDisconnect(host)

		var notified bool
		for _, msg := range drain(a) {
			if m, ok := msg.(typeOnlyMessage); ok && m.Type == "host_disconnected" {
				notified = true
			}
		}
		assert.True(t, notified)

		assert.False(t, room.expired(time.Now()))
		assert.True(t, room.expired(time.Now().Add(2*cfg.hostGrace)))
	})

	t.Run("host can rejoin within grace", func(t *testing.T) {
		_, room, host, _ := newTestRoom(t, cfg, 0, 1)

		room.handleDisconnect(host)

		again := newTestClient()
		err := room.handleJoinRequest(joinRequest{client: again, msg: clientMessage{Type: "host_rejoin"}})
		require.NoError(t, err)

		room.mu.RLock()
		assert.Equal(t, again.id, room.hostID)
		assert.True(t, room.hostConnected)
		room.mu.RUnlock()

		assert.False(t, room.expired(time.Now().Add(2*cfg.hostGrace)))

		// Host commands work from the new connection.
		cmd(room, again, clientMessage{Type: "start_round"})
		room.mu.RLock()
		assert.NotNil(t, room.round)
		room.mu.RUnlock()
	})

	t.Run("rejoin while host connected is rejected", func(t *testing.T) {
		_, room, _, _ := newTestRoom(t, cfg, 0, 0)

		imposter := newTestClient()
		err := room.handleJoinRequest(joinRequest{client: imposter, msg: clientMessage{Type: "host_rejoin"}})
		assert.ErrorIs(t, err, ErrHostConnected)
	})
}

func TestRoomIndependence(t *testing.T) {
	cfg := testConfig()
	rm := newRoomManager(cfg, testLibrary(20))

	host1, host2 := newTestClient(), newTestClient()
	room1, err := rm.createRoom(host1, 0)
	require.NoError(t, err)
	room2, err := rm.createRoom(host2, 0)
	require.NoError(t, err)
	require.NotEqual(t, room1.code, room2.code)

	a := join(t, room1, "a")
	b := join(t, room2, "b")
	c := join(t, room2, "c")

	startRound(t, room1, host1)
	startRound(t, room2, host2)

	// Interleave buzzes across rooms.
	buzzIn(room2, c)
	buzzIn(room1, a)
	buzzIn(room2, b)

	room1.mu.RLock()
	assert.Equal(t, []string{a.id}, room1.round.buzzQueue)
	room1.mu.RUnlock()

	room2.mu.RLock()
	assert.Equal(t, []string{c.id, b.id}, room2.round.buzzQueue)
	room2.mu.RUnlock()
}

func TestBroadcastViews(t *testing.T) {
	cfg := testConfig()
	_, room, host, players := newTestRoom(t, cfg, 0, 2)
	a, b := players[0], players[1]

	startRound(t, room, host)
	buzzIn(room, a)
	buzzIn(room, b)

	hostState := lastState(t, host)
	playerState := lastState(t, a)

	t.Run("host sees the answer key and the full queue", func(t *testing.T) {
		require.NotNil(t, hostState.CurrentSong)
		assert.NotEmpty(t, hostState.CurrentSong.Title)
		require.Len(t, hostState.BuzzQueue, 2)
		assert.Equal(t, a.id, hostState.BuzzQueue[0].ID)
	})

	t.Run("players see neither", func(t *testing.T) {
		assert.Nil(t, playerState.CurrentSong)
		assert.Empty(t, playerState.BuzzQueue)
		require.NotNil(t, playerState.CurrentBuzzer)
		assert.Equal(t, a.id, playerState.CurrentBuzzer.ID)
		assert.True(t, playerState.RoundActive)
	})

	t.Run("scoreboard is visible to everyone", func(t *testing.T) {
		require.Len(t, playerState.Players, 2)
		for _, p := range playerState.Players {
			assert.True(t, p.IsConnected)
			assert.False(t, p.IsLockedOut)
		}
	})

	t.Run("sequence is monotonic per room", func(t *testing.T) {
		first := hostState
		judge(room, host, false, false)
		second := lastState(t, host)

		assert.Greater(t, second.Seq, first.Seq)
	})
}

func TestRoundStartedViews(t *testing.T) {
	cfg := testConfig()
	_, room, host, players := newTestRoom(t, cfg, 0, 1)
	a := players[0]

	drain(host)
	drain(a)
	cmd(room, host, clientMessage{Type: "start_round"})

	var hostSong, playerSong *Song
	for _, msg := range drain(host) {
		if m, ok := msg.(roundStartedMessage); ok {
			hostSong = &m.Song
		}
	}
	for _, msg := range drain(a) {
		if m, ok := msg.(roundStartedMessage); ok {
			playerSong = &m.Song
		}
	}

	require.NotNil(t, hostSong)
	require.NotNil(t, playerSong)

	assert.NotEmpty(t, hostSong.Title)
	assert.NotEmpty(t, hostSong.Artist)

	// Players only receive the audio reference.
	assert.Empty(t, playerSong.Title)
	assert.Empty(t, playerSong.Artist)
	assert.Equal(t, hostSong.PreviewURL, playerSong.PreviewURL)
}
