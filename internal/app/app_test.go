package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchparty/server/internal/controller"
	"github.com/couchparty/server/internal/protocol"
	"github.com/couchparty/server/internal/repository/connection/inmemory"
	roomRedis "github.com/couchparty/server/internal/repository/room/redis"
	"github.com/couchparty/server/internal/service/room"
)

func TestAppConfigValidate(t *testing.T) {
	cfg := AppConfig{DefaultCapacity: 10, RoomTTL: time.Hour}
	require.NoError(t, cfg.Validate())

	cfg.DefaultCapacity = 0
	assert.Error(t, cfg.Validate())

	cfg.DefaultCapacity = 10
	cfg.RoomTTL = time.Second
	assert.Error(t, cfg.Validate())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.Default()

	roomRepo := roomRedis.NewRepo(rc, time.Hour, logger)
	connRepo := inmemory.NewRepo()
	roomService := room.NewService(roomRepo, connRepo, &room.Config{DefaultCapacity: 10}, logger)
	ctrl := controller.NewController(roomService, connRepo, logger)

	server := httptest.NewServer(ctrl.GetMux())
	t.Cleanup(server.Close)

	return server
}

func createRoom(t *testing.T, server *httptest.Server, hostID, hostName string) string {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"media_url":      "https://example.com/movie.mp4",
		"media_title":    "Movie Night",
		"media_duration": 7200,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/rooms", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Wp-User-Id", hostID)
	req.Header.Set("Wp-Username", hostName)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var envelope struct {
		Data room.Room `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotEmpty(t, envelope.Data.ID)

	return envelope.Data.ID
}

func dialRoom(t *testing.T, server *httptest.Server, roomID, username string) (*websocket.Conn, protocol.JoinedPayload) {
	t.Helper()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rooms/" + roomID + "?username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, protocol.KindJoined, msg.Type)

	var joined protocol.JoinedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &joined))

	return conn, joined
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg protocol.Message
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.Message{Type: kind, Payload: data}))
}

func TestWatchPartySession(t *testing.T) {
	server := newTestServer(t)
	roomID := createRoom(t, server, "host-1", "alice")

	aliceConn, aliceJoined := dialRoom(t, server, roomID, "alice")
	require.Equal(t, "alice", aliceJoined.Participant.Username)
	require.Equal(t, protocol.StatePaused, aliceJoined.Player.State)
	require.Zero(t, aliceJoined.Player.Timestamp)
	require.Len(t, aliceJoined.Participants, 1)

	bobConn, bobJoined := dialRoom(t, server, roomID, "bob")
	require.Len(t, bobJoined.Participants, 2)

	// Alice sees the join as a roster replacement plus a system chat line.
	msg := readMessage(t, aliceConn)
	require.Equal(t, protocol.KindRoster, msg.Type)
	var roster protocol.RosterPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &roster))
	require.Len(t, roster.Participants, 2)
	assert.Equal(t, "alice", roster.Participants[0].Username)
	assert.Equal(t, "bob", roster.Participants[1].Username)

	msg = readMessage(t, aliceConn)
	require.Equal(t, protocol.KindChat, msg.Type)
	var chat protocol.ChatPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &chat))
	assert.Equal(t, "bob joined the party.", chat.Message)
	assert.True(t, chat.IsSystem)

	// Bob starts playback; alice gets the sync, bob gets no echo.
	writeMessage(t, bobConn, protocol.KindSync, map[string]any{
		"state":     "playing",
		"timestamp": 100.5,
	})

	msg = readMessage(t, aliceConn)
	require.Equal(t, protocol.KindSync, msg.Type)
	var sync protocol.SyncPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &sync))
	assert.Equal(t, protocol.StatePlaying, sync.State)
	assert.Equal(t, 100.5, sync.Timestamp)
	assert.Equal(t, bobJoined.Participant.ID, sync.SenderID)

	// Alice replies in chat; the first frame bob receives is the chat,
	// proving his own sync was never echoed back.
	writeMessage(t, aliceConn, protocol.KindChat, map[string]any{
		"message": "finally!",
	})

	msg = readMessage(t, bobConn)
	require.Equal(t, protocol.KindChat, msg.Type)
	var userChat protocol.ChatPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &userChat))
	assert.Equal(t, "finally!", userChat.Message)
	assert.Equal(t, "alice", userChat.Username)
	assert.Equal(t, aliceJoined.Participant.ID, userChat.SenderID)
	assert.False(t, userChat.IsSystem)

	// Bob leaves; alice sees the shrunken roster and a departure line.
	require.NoError(t, bobConn.Close())

	msg = readMessage(t, aliceConn)
	require.Equal(t, protocol.KindRoster, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload, &roster))
	require.Len(t, roster.Participants, 1)
	assert.Equal(t, "alice", roster.Participants[0].Username)

	msg = readMessage(t, aliceConn)
	require.Equal(t, protocol.KindChat, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload, &chat))
	assert.Equal(t, "bob left the party.", chat.Message)
}

func TestCloseRoomEndsSessions(t *testing.T) {
	server := newTestServer(t)
	roomID := createRoom(t, server, "host-1", "alice")

	aliceConn, _ := dialRoom(t, server, roomID, "alice")

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/rooms/"+roomID, nil)
	require.NoError(t, err)
	req.Header.Set("Wp-User-Id", "host-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, aliceConn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = aliceConn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4410, closeErr.Code)

	// A late joiner is told the party is over before any upgrade happens.
	httpResp, err := http.Get(server.URL + "/ws/rooms/" + roomID)
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusGone, httpResp.StatusCode)
}

func TestUnknownRoomRejectedBeforeUpgrade(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws/rooms/no-such-room")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
