package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchparty/server/internal/protocol"
)

type fakePlayer struct {
	paused  bool
	current float64
}

func (p *fakePlayer) Paused() bool {
	return p.paused
}

func (p *fakePlayer) CurrentTime() float64 {
	return p.current
}

func newTestReconciler(t *testing.T, player *fakePlayer) *Reconciler {
	t.Helper()
	return New(Config{
		ServerURL: "ws://localhost",
		RoomID:    "test-room",
	}, player, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func drainCommands(r *Reconciler) []Command {
	var commands []Command
	for {
		select {
		case cmd := <-r.Commands():
			commands = append(commands, cmd)
		default:
			return commands
		}
	}
}

func TestVideoSyncDropsSelfEcho(t *testing.T) {
	player := &fakePlayer{paused: true, current: 0}
	r := newTestReconciler(t, player)
	r.localID = "me"

	r.handleVideoSync(protocol.SyncPayload{
		State:     protocol.StatePlaying,
		Timestamp: 120,
		SenderID:  "me",
	})

	assert.Empty(t, drainCommands(r))
}

func TestVideoSyncDriftWithinThreshold(t *testing.T) {
	player := &fakePlayer{paused: false, current: 100}
	r := newTestReconciler(t, player)
	r.localID = "me"

	r.handleVideoSync(protocol.SyncPayload{
		State:     protocol.StatePlaying,
		Timestamp: 101.2,
		SenderID:  "other",
	})

	assert.Empty(t, drainCommands(r), "drift under threshold must not seek")
}

func TestVideoSyncDriftBeyondThreshold(t *testing.T) {
	player := &fakePlayer{paused: false, current: 100}
	r := newTestReconciler(t, player)
	r.localID = "me"

	r.handleVideoSync(protocol.SyncPayload{
		State:     protocol.StatePlaying,
		Timestamp: 104,
		SenderID:  "other",
	})

	commands := drainCommands(r)
	require.Len(t, commands, 1)
	assert.Equal(t, SeekTo{Timestamp: 104}, commands[0])
}

func TestVideoSyncStateTransitions(t *testing.T) {
	tests := []struct {
		name        string
		paused      bool
		state       protocol.PlaybackState
		wantCommand Command
	}{
		{
			name:        "play while paused",
			paused:      true,
			state:       protocol.StatePlaying,
			wantCommand: SetPlaybackState{State: protocol.StatePlaying},
		},
		{
			name:        "pause while playing",
			paused:      false,
			state:       protocol.StatePaused,
			wantCommand: SetPlaybackState{State: protocol.StatePaused},
		},
		{
			name:   "play while playing",
			paused: false,
			state:  protocol.StatePlaying,
		},
		{
			name:   "pause while paused",
			paused: true,
			state:  protocol.StatePaused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := &fakePlayer{paused: tt.paused, current: 50}
			r := newTestReconciler(t, player)
			r.localID = "me"

			r.handleVideoSync(protocol.SyncPayload{
				State:     tt.state,
				Timestamp: 50,
				SenderID:  "other",
			})

			commands := drainCommands(r)
			if tt.wantCommand == nil {
				assert.Empty(t, commands)
				return
			}
			require.Len(t, commands, 1)
			assert.Equal(t, tt.wantCommand, commands[0])
		})
	}
}

func TestRosterReplacesWholesale(t *testing.T) {
	r := newTestReconciler(t, &fakePlayer{})

	first, err := json.Marshal(protocol.RosterPayload{Participants: []protocol.Participant{
		{ID: "1", Username: "alice"},
		{ID: "2", Username: "bob"},
	}})
	require.NoError(t, err)
	second, err := json.Marshal(protocol.RosterPayload{Participants: []protocol.Participant{
		{ID: "2", Username: "bob"},
	}})
	require.NoError(t, err)

	r.handleMessage(protocol.Message{Type: protocol.KindRoster, Payload: first})
	r.handleMessage(protocol.Message{Type: protocol.KindRoster, Payload: second})

	commands := drainCommands(r)
	require.Len(t, commands, 2)
	assert.Equal(t, SetRoster{Participants: []protocol.Participant{
		{ID: "2", Username: "bob"},
	}}, commands[1])
}

func TestUnknownMessageKindIgnored(t *testing.T) {
	r := newTestReconciler(t, &fakePlayer{})

	r.handleMessage(protocol.Message{Type: "telemetry", Payload: json.RawMessage(`{}`)})

	assert.Empty(t, drainCommands(r))
}

func TestApplySnapshotAdoptsServerState(t *testing.T) {
	player := &fakePlayer{paused: true, current: 0}
	r := newTestReconciler(t, player)

	r.applySnapshot(protocol.JoinedPayload{
		Participant: protocol.Participant{ID: "me", Username: "alice"},
		Player: protocol.PlayerSnapshot{
			State:     protocol.StatePlaying,
			Timestamp: 73.5,
		},
		Participants: []protocol.Participant{
			{ID: "other", Username: "bob"},
			{ID: "me", Username: "alice"},
		},
	})

	assert.Equal(t, "me", r.LocalID())
	assert.Equal(t, Connected, r.ConnState())

	commands := drainCommands(r)
	require.Len(t, commands, 4)
	assert.Equal(t, SetConnState{State: Connected}, commands[0])
	assert.Equal(t, SetPlaybackState{State: protocol.StatePlaying}, commands[1])
	assert.Equal(t, SeekTo{Timestamp: 73.5}, commands[2])
	assert.IsType(t, SetRoster{}, commands[3])
}

func TestSendRequiresConnection(t *testing.T) {
	r := newTestReconciler(t, &fakePlayer{})

	assert.ErrorIs(t, r.SendPlay(10), ErrNotConnected)
	assert.ErrorIs(t, r.SendChat("hello"), ErrNotConnected)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeJoined(t *testing.T, conn *websocket.Conn, memberID string) {
	t.Helper()

	payload, err := json.Marshal(protocol.JoinedPayload{
		Participant: protocol.Participant{ID: memberID, Username: "alice"},
		Player: protocol.PlayerSnapshot{
			State:     protocol.StatePaused,
			Timestamp: 30,
		},
		Participants: []protocol.Participant{{ID: memberID, Username: "alice"}},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:    protocol.KindJoined,
		Payload: payload,
	}))
}

func TestRunAppliesJoinSnapshot(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		require.NoError(t, err)
		defer conn.Close()

		writeJoined(t, conn, "member-1")
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	r := New(Config{
		ServerURL: wsURL(server),
		RoomID:    "test-room",
	}, &fakePlayer{paused: true}, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- r.Run(ctx)
	}()

	var got []Command
	deadline := time.After(5 * time.Second)
	for len(got) < 5 {
		select {
		case cmd := <-r.Commands():
			got = append(got, cmd)
		case <-deadline:
			t.Fatalf("timed out waiting for commands, got %v", got)
		}
	}

	assert.Equal(t, SetConnState{State: Connecting}, got[0])
	assert.Equal(t, SetConnState{State: Connected}, got[1])
	assert.Equal(t, SetPlaybackState{State: protocol.StatePaused}, got[2])
	assert.Equal(t, SeekTo{Timestamp: 30}, got[3])
	assert.Equal(t, "member-1", r.LocalID())

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
}

func TestRunAbortsOnTerminalStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "room is inactive", http.StatusGone)
	}))
	defer server.Close()

	r := New(Config{
		ServerURL: wsURL(server),
		RoomID:    "test-room",
	}, &fakePlayer{}, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRoomClosed)
	assert.Equal(t, Disconnected, r.ConnState())
}

func TestRunReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		require.NoError(t, err)

		connCount++
		writeJoined(t, conn, "member-1")
		if connCount == 1 {
			// Drop the first session to force a reconnect.
			conn.Close()
			return
		}

		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	r := New(Config{
		ServerURL:      wsURL(server),
		RoomID:         "test-room",
		InitialBackoff: 10 * time.Millisecond,
	}, &fakePlayer{paused: true}, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- r.Run(ctx)
	}()

	connectedCount := 0
	deadline := time.After(5 * time.Second)
	for connectedCount < 2 {
		select {
		case cmd := <-r.Commands():
			if cmd == (SetConnState{State: Connected}) {
				connectedCount++
			}
		case <-deadline:
			t.Fatal("timed out waiting for reconnect")
		}
	}

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
}
