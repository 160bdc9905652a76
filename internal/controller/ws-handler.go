package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/couchparty/server/internal/protocol"
	"github.com/couchparty/server/internal/service/room"
	"github.com/couchparty/server/pkg/ctxlogger"
	"github.com/couchparty/server/pkg/rest"
)

// Application close codes, readable by clients that need to distinguish a
// terminal rejection from a transient drop.
const (
	closeCodeRoomClosed = 4410
	closeCodeRoomFull   = 4409
	closeCodeInternal   = 4500
)

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "room-id")
	username := r.URL.Query().Get("username")

	// Cheap checks happen before the upgrade so a rejected client sees a
	// distinguishable HTTP status instead of a dropped socket.
	rm, err := c.roomService.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
			return
		}

		c.logger.ErrorContext(ctx, "serveWS", "get room err", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}
	if !rm.IsActive {
		rest.WriteJSON(w, http.StatusGone, rest.Envelope{"error": "room closed"})
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(ctx, "serveWS", "upgrade err", err)
		return
	}

	joinRoomResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		Conn:     conn,
		RoomID:   roomID,
		Username: username,
	})
	if err != nil {
		// The room can fill up or close between the pre-upgrade check and
		// the join; the close code carries the verdict.
		switch {
		case errors.Is(err, room.ErrRoomFull):
			c.closeConn(ctx, conn, closeCodeRoomFull, "room full")
		case errors.Is(err, room.ErrRoomInactive), errors.Is(err, room.ErrRoomNotFound):
			c.closeConn(ctx, conn, closeCodeRoomClosed, "party ended")
		default:
			c.logger.ErrorContext(ctx, "serveWS", "join room err", err)
			c.closeConn(ctx, conn, closeCodeInternal, "")
		}
		return
	}

	memberID := joinRoomResp.JoinedParticipant.ID

	if err := c.writeToConn(ctx, conn, &Output{
		Type: protocol.KindJoined,
		Payload: protocol.JoinedPayload{
			Participant:  joinRoomResp.JoinedParticipant,
			Player:       joinRoomResp.Player,
			Participants: joinRoomResp.Participants,
		},
	}); err != nil {
		c.logger.InfoContext(ctx, "serveWS", "write snapshot err", err)
		c.disconnect(ctx, conn)
		return
	}

	c.broadcast(ctx, joinRoomResp.OtherConns, &Output{
		Type:    protocol.KindRoster,
		Payload: protocol.RosterPayload{Participants: joinRoomResp.Participants},
	})
	c.broadcast(ctx, joinRoomResp.OtherConns, &Output{
		Type:    protocol.KindChat,
		Payload: joinRoomResp.SystemChat,
	})

	ctx = c.setRoomIDToCtx(ctx, roomID)
	ctx = c.setMemberIDToCtx(ctx, memberID)
	ctx = ctxlogger.AppendCtx(ctx,
		slog.String("room_id", roomID),
		slog.String("member_id", memberID),
	)

	if err := c.wsRouter.ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "serveWS", "connection closed", err)
	}

	c.disconnect(ctx, conn)
}

func (c controller) disconnect(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	disconnectResp, err := c.roomService.DisconnectMember(ctx, &room.DisconnectMemberParams{Conn: conn})
	if err != nil {
		c.logger.ErrorContext(ctx, "disconnect", "disconnect member err", err)
		return
	}
	if !disconnectResp.WasConnected {
		return
	}

	c.broadcast(ctx, disconnectResp.Conns, &Output{
		Type:    protocol.KindRoster,
		Payload: protocol.RosterPayload{Participants: disconnectResp.Participants},
	})
	c.broadcast(ctx, disconnectResp.Conns, &Output{
		Type:    protocol.KindChat,
		Payload: disconnectResp.SystemChat,
	})
}

func (c controller) closeConn(ctx context.Context, conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		c.logger.DebugContext(ctx, "closeConn", "write control err", err)
	}
	conn.Close()
}

type syncInput struct {
	State     protocol.PlaybackState `json:"state"`
	Timestamp float64                `json:"timestamp"`
}

func (c controller) handleSync(ctx context.Context, conn *websocket.Conn, input syncInput) error {
	updateResp, err := c.roomService.UpdatePlayerState(ctx, &room.UpdatePlayerStateParams{
		State:    input.State,
		Position: input.Timestamp,
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		if errors.Is(err, room.ErrInvalidPlaybackState) {
			c.logger.DebugContext(ctx, "handleSync", "dropped invalid state", input.State)
			return nil
		}

		return fmt.Errorf("failed to update player state: %w", err)
	}

	c.broadcast(ctx, updateResp.Conns, &Output{
		Type:    protocol.KindSync,
		Payload: updateResp.Sync,
	})

	return nil
}

type chatInput struct {
	Message string `json:"message"`
}

func (c controller) handleChat(ctx context.Context, conn *websocket.Conn, input chatInput) error {
	if input.Message == "" {
		return nil
	}

	chatResp, err := c.roomService.SendChat(ctx, &room.SendChatParams{
		Message:  input.Message,
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to send chat: %w", err)
	}

	c.broadcast(ctx, chatResp.Conns, &Output{
		Type:    protocol.KindChat,
		Payload: chatResp.Chat,
	})

	return nil
}

type emoteInput struct {
	Emote string `json:"emote"`
}

func (c controller) handleEmote(ctx context.Context, conn *websocket.Conn, input emoteInput) error {
	if input.Emote == "" {
		return nil
	}

	emoteResp, err := c.roomService.SendEmote(ctx, &room.SendEmoteParams{
		Emote:    input.Emote,
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to send emote: %w", err)
	}

	c.broadcast(ctx, emoteResp.Conns, &Output{
		Type:    protocol.KindEmote,
		Payload: emoteResp.Emote,
	})

	return nil
}

type typingInput struct {
	IsTyping bool `json:"is_typing"`
}

func (c controller) handleTyping(ctx context.Context, conn *websocket.Conn, input typingInput) error {
	typingResp, err := c.roomService.SetTyping(ctx, &room.SetTypingParams{
		IsTyping: input.IsTyping,
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}

	c.broadcast(ctx, typingResp.Conns, &Output{
		Type:    protocol.KindTyping,
		Payload: typingResp.Typing,
	})

	return nil
}
