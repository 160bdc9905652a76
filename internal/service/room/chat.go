package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchparty/server/internal/protocol"
	repository "github.com/couchparty/server/internal/repository/room"
)

type SendChatParams struct {
	Message  string
	SenderID string
	RoomID   string
}

type SendChatResponse struct {
	Chat protocol.ChatPayload
	// Conns excludes the sender, which renders its own chat optimistically.
	Conns []*websocket.Conn
}

func (s service) SendChat(ctx context.Context, params *SendChatParams) (SendChatResponse, error) {
	member, err := s.getSender(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return SendChatResponse{}, err
	}

	return SendChatResponse{
		Chat: protocol.ChatPayload{
			Message:  params.Message,
			Username: member.Username,
			SenderID: params.SenderID,
			SentAt:   time.Now().UnixMilli(),
		},
		Conns: s.getConnsByRoomID(ctx, params.RoomID, params.SenderID),
	}, nil
}

type SendEmoteParams struct {
	Emote    string
	SenderID string
	RoomID   string
}

type SendEmoteResponse struct {
	Emote protocol.EmotePayload
	Conns []*websocket.Conn
}

func (s service) SendEmote(ctx context.Context, params *SendEmoteParams) (SendEmoteResponse, error) {
	if _, err := s.getSender(ctx, params.RoomID, params.SenderID); err != nil {
		return SendEmoteResponse{}, err
	}

	return SendEmoteResponse{
		Emote: protocol.EmotePayload{
			Emote:    params.Emote,
			SenderID: params.SenderID,
		},
		Conns: s.getConnsByRoomID(ctx, params.RoomID, params.SenderID),
	}, nil
}

type SetTypingParams struct {
	IsTyping bool
	SenderID string
	RoomID   string
}

type SetTypingResponse struct {
	Typing protocol.TypingPayload
	Conns  []*websocket.Conn
}

func (s service) SetTyping(ctx context.Context, params *SetTypingParams) (SetTypingResponse, error) {
	member, err := s.getSender(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return SetTypingResponse{}, err
	}

	return SetTypingResponse{
		Typing: protocol.TypingPayload{
			Username: member.Username,
			IsTyping: params.IsTyping,
			SenderID: params.SenderID,
		},
		Conns: s.getConnsByRoomID(ctx, params.RoomID, params.SenderID),
	}, nil
}

func (s service) getSender(ctx context.Context, roomID, senderID string) (repository.Member, error) {
	member, err := s.roomRepo.GetMember(ctx, &repository.GetMemberParams{
		MemberID: senderID,
		RoomID:   roomID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return repository.Member{}, ErrMemberNotFound
		}

		return repository.Member{}, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}
