package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchparty/server/internal/protocol"
)

// DefaultDriftThreshold is the largest position divergence, in seconds,
// the reconciler tolerates before forcing a seek.
const DefaultDriftThreshold = 1.5

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomClosed   = errors.New("room closed")
	ErrRoomFull     = errors.New("room full")
	ErrNotConnected = errors.New("not connected")
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Player is the local playback surface the reconciler reads to decide
// whether an inbound sync actually requires a correction.
type Player interface {
	Paused() bool
	CurrentTime() float64
}

type Config struct {
	// ServerURL is the ws scheme base, e.g. ws://localhost:8080.
	ServerURL string
	RoomID    string
	Username  string

	DriftThreshold   float64
	HandshakeTimeout time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

type Reconciler struct {
	config  Config
	player  Player
	logger  *slog.Logger
	command chan Command

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   ConnState
	localID string
}

func New(config Config, player Player, logger *slog.Logger) *Reconciler {
	if config.DriftThreshold <= 0 {
		config.DriftThreshold = DefaultDriftThreshold
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	return &Reconciler{
		config:  config,
		player:  player,
		logger:  logger,
		command: make(chan Command, 64),
	}
}

// Commands returns the queue the presentation layer drains.
func (r *Reconciler) Commands() <-chan Command {
	return r.command
}

func (r *Reconciler) ConnState() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LocalID returns the participant id the server assigned on the most
// recent join. Empty until the first joined snapshot arrives.
func (r *Reconciler) LocalID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localID
}

// Run dials the room and serves the connection until ctx is cancelled or
// the join fails terminally. Transient failures retry with capped
// exponential backoff, and every successful reconnect is a full re-join:
// the fresh snapshot is applied exactly like the initial one.
func (r *Reconciler) Run(ctx context.Context) error {
	backoff := r.config.InitialBackoff

	for {
		r.setConnState(Connecting)

		conn, err := r.dial(ctx)
		if err != nil {
			r.setConnState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isTerminal(err) {
				return err
			}

			r.logger.Debug("dial failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, r.config.MaxBackoff)
			continue
		}
		backoff = r.config.InitialBackoff

		err = r.serve(ctx, conn)
		r.setConnState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isTerminal(err) {
			return err
		}
		r.logger.Debug("connection lost, reconnecting", "error", err)
	}
}

func (r *Reconciler) dial(ctx context.Context) (*websocket.Conn, error) {
	u := fmt.Sprintf("%s/ws/rooms/%s",
		strings.TrimSuffix(r.config.ServerURL, "/"), r.config.RoomID)
	if r.config.Username != "" {
		u += "?username=" + url.QueryEscape(r.config.Username)
	}

	dialer := websocket.Dialer{HandshakeTimeout: r.config.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotFound:
				return nil, ErrRoomNotFound
			case http.StatusGone:
				return nil, ErrRoomClosed
			}
		}
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return conn, nil
}

func (r *Reconciler) serve(ctx context.Context, conn *websocket.Conn) error {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return mapCloseError(err)
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug("dropped malformed frame", "error", err)
			continue
		}

		r.handleMessage(msg)
	}
}

func (r *Reconciler) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.KindJoined:
		var payload protocol.JoinedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.logger.Debug("dropped malformed joined payload", "error", err)
			return
		}
		r.applySnapshot(payload)
	case protocol.KindSync:
		var payload protocol.SyncPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.logger.Debug("dropped malformed sync payload", "error", err)
			return
		}
		r.handleVideoSync(payload)
	case protocol.KindChat:
		var payload protocol.ChatPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		r.emit(AppendChat{Chat: payload})
	case protocol.KindEmote:
		var payload protocol.EmotePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		r.emit(SpawnEmote{Emote: payload.Emote})
	case protocol.KindTyping:
		var payload protocol.TypingPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		r.emit(SetTyping{Username: payload.Username, IsTyping: payload.IsTyping})
	case protocol.KindRoster:
		var payload protocol.RosterPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		r.emit(SetRoster{Participants: payload.Participants})
	default:
		// Unknown kinds are dropped so old clients survive new servers.
		r.logger.Debug("dropped message of unknown type", "type", msg.Type)
	}
}

// applySnapshot adopts the server's authoritative state unconditionally.
// Join and re-join skip the drift check: the snapshot is the truth.
func (r *Reconciler) applySnapshot(payload protocol.JoinedPayload) {
	r.mu.Lock()
	r.localID = payload.Participant.ID
	r.state = Connected
	r.mu.Unlock()

	r.emit(SetConnState{State: Connected})
	r.emit(SetPlaybackState{State: payload.Player.State})
	r.emit(SeekTo{Timestamp: payload.Player.Timestamp})
	r.emit(SetRoster{Participants: payload.Participants})
}

func (r *Reconciler) handleVideoSync(payload protocol.SyncPayload) {
	if payload.SenderID != "" && payload.SenderID == r.LocalID() {
		// Self-echo. The server already excludes the sender, this guard
		// covers frames that raced a reconnect.
		return
	}

	paused := r.player.Paused()
	switch {
	case payload.State == protocol.StatePlaying && paused:
		r.emit(SetPlaybackState{State: protocol.StatePlaying})
	case payload.State == protocol.StatePaused && !paused:
		r.emit(SetPlaybackState{State: protocol.StatePaused})
	}

	drift := math.Abs(r.player.CurrentTime() - payload.Timestamp)
	if drift > r.config.DriftThreshold {
		r.emit(SeekTo{Timestamp: payload.Timestamp})
	}
}

func (r *Reconciler) emit(cmd Command) {
	select {
	case r.command <- cmd:
	default:
		r.logger.Warn("dropped command, queue is full", "command", fmt.Sprintf("%T", cmd))
	}
}

func (r *Reconciler) setConnState(state ConnState) {
	r.mu.Lock()
	changed := r.state != state
	r.state = state
	r.mu.Unlock()

	if changed {
		r.emit(SetConnState{State: state})
	}
}

func (r *Reconciler) SendPlay(timestamp float64) error {
	return r.sendSync(protocol.StatePlaying, timestamp)
}

func (r *Reconciler) SendPause(timestamp float64) error {
	return r.sendSync(protocol.StatePaused, timestamp)
}

func (r *Reconciler) SendSeek(timestamp float64) error {
	state := protocol.StatePlaying
	if r.player.Paused() {
		state = protocol.StatePaused
	}
	return r.sendSync(state, timestamp)
}

func (r *Reconciler) sendSync(state protocol.PlaybackState, timestamp float64) error {
	return r.send(protocol.KindSync, protocol.SyncPayload{
		State:     state,
		Timestamp: timestamp,
	})
}

func (r *Reconciler) SendChat(message string) error {
	return r.send(protocol.KindChat, protocol.ChatPayload{Message: message})
}

func (r *Reconciler) SendEmote(emote string) error {
	return r.send(protocol.KindEmote, protocol.EmotePayload{Emote: emote})
}

func (r *Reconciler) SendTyping(isTyping bool) error {
	return r.send(protocol.KindTyping, protocol.TypingPayload{IsTyping: isTyping})
}

func (r *Reconciler) send(kind string, payload any) error {
	r.mu.Lock()
	conn, state := r.conn, r.state
	r.mu.Unlock()
	if conn == nil || state != Connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.WriteJSON(protocol.Message{Type: kind, Payload: data}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func isTerminal(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrRoomClosed) ||
		errors.Is(err, ErrRoomFull)
}

func mapCloseError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case 4409:
			return ErrRoomFull
		case 4410:
			return ErrRoomClosed
		}
	}
	return err
}
