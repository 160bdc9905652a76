package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/couchparty/server/internal/protocol"
	repository "github.com/couchparty/server/internal/repository/room"
)

type JoinRoomParams struct {
	Conn     *websocket.Conn
	RoomID   string
	Username string
}

type JoinRoomResponse struct {
	JoinedParticipant protocol.Participant
	Participants      []protocol.Participant
	Player            protocol.PlayerSnapshot
	SystemChat        protocol.ChatPayload
	// OtherConns are the connections that were already in the room; the
	// joiner gets the snapshot, the others get the roster update.
	OtherConns []*websocket.Conn
}

// JoinRoom registers the connection under the room. Participants are
// keyed by connection, not identity: the same user joining twice holds
// two distinct participant ids.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	rm, err := s.roomRepo.GetRoom(ctx, params.RoomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return JoinRoomResponse{}, ErrRoomNotFound
		}

		return JoinRoomResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if !rm.IsActive {
		return JoinRoomResponse{}, ErrRoomInactive
	}

	count, err := s.roomRepo.GetMemberCount(ctx, params.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get member count: %w", err)
	}

	// Check-then-act: two joins racing for the last seat can both pass.
	// Capacity is a courtesy limit for small groups, not a hard quota.
	if rm.Capacity > 0 && count >= rm.Capacity {
		return JoinRoomResponse{}, ErrRoomFull
	}

	participantID := uuid.NewString()
	username := params.Username
	isGuest := username == ""
	if isGuest {
		username = s.generateGuestName()
	}

	if err := s.connRepo.Add(params.Conn, params.RoomID, participantID); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to register connection: %w", err)
	}

	if err := s.roomRepo.SetMember(ctx, &repository.SetMemberParams{
		MemberID: participantID,
		Username: username,
		IsGuest:  isGuest,
		RoomID:   params.RoomID,
	}); err != nil {
		s.connRepo.RemoveByConn(params.Conn)
		return JoinRoomResponse{}, fmt.Errorf("failed to set member: %w", err)
	}

	if err := s.roomRepo.UpdateRoomPeakParticipants(ctx, params.RoomID, count+1); err != nil {
		s.logger.WarnContext(ctx, "failed to update peak participants", "room_id", params.RoomID, "error", err)
	}

	player, err := s.getPlayerSnapshot(ctx, params.RoomID, rm.MediaDuration)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	participants, err := s.getParticipants(ctx, params.RoomID)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	return JoinRoomResponse{
		JoinedParticipant: protocol.Participant{ID: participantID, Username: username},
		Participants:      participants,
		Player:            player,
		SystemChat:        s.systemChat(fmt.Sprintf("%s joined the party.", username)),
		OtherConns:        s.getConnsByRoomID(ctx, params.RoomID, participantID),
	}, nil
}

type DisconnectMemberParams struct {
	Conn *websocket.Conn
}

type DisconnectMemberResponse struct {
	WasConnected bool
	RoomID       string
	Left         protocol.Participant
	Participants []protocol.Participant
	SystemChat   protocol.ChatPayload
	Conns        []*websocket.Conn
}

// DisconnectMember is idempotent: a connection that was never registered,
// or was already removed, yields WasConnected=false and no error.
func (s service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) (DisconnectMemberResponse, error) {
	roomID, memberID, err := s.connRepo.RemoveByConn(params.Conn)
	if err != nil {
		return DisconnectMemberResponse{WasConnected: false}, nil
	}

	member, err := s.roomRepo.GetMember(ctx, &repository.GetMemberParams{
		MemberID: memberID,
		RoomID:   roomID,
	})
	if err != nil && !errors.Is(err, repository.ErrMemberNotFound) {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	if err := s.roomRepo.RemoveMember(ctx, &repository.RemoveMemberParams{
		MemberID: memberID,
		RoomID:   roomID,
	}); err != nil && !errors.Is(err, repository.ErrMemberNotFound) {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to remove member: %w", err)
	}

	participants, err := s.getParticipants(ctx, roomID)
	if err != nil {
		return DisconnectMemberResponse{}, err
	}

	return DisconnectMemberResponse{
		WasConnected: true,
		RoomID:       roomID,
		Left:         protocol.Participant{ID: memberID, Username: member.Username},
		Participants: participants,
		SystemChat:   s.systemChat(fmt.Sprintf("%s left the party.", member.Username)),
		Conns:        s.getConnsByRoomID(ctx, roomID, ""),
	}, nil
}

func (s service) getParticipants(ctx context.Context, roomID string) ([]protocol.Participant, error) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	participants := make([]protocol.Participant, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		member, err := s.roomRepo.GetMember(ctx, &repository.GetMemberParams{
			MemberID: memberID,
			RoomID:   roomID,
		})
		if err != nil {
			continue
		}

		participants = append(participants, protocol.Participant{
			ID:       memberID,
			Username: member.Username,
		})
	}

	return participants, nil
}

// getConnsByRoomID resolves the live connections for a room's roster,
// skipping excludeMemberID (empty string excludes nobody).
func (s service) getConnsByRoomID(ctx context.Context, roomID, excludeMemberID string) []*websocket.Conn {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to get member ids", "room_id", roomID, "error", err)
		return nil
	}

	conns := make([]*websocket.Conn, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == excludeMemberID {
			continue
		}

		if conn, err := s.connRepo.GetConn(memberID); err == nil {
			conns = append(conns, conn)
		}
	}

	return conns
}

func (s service) systemChat(message string) protocol.ChatPayload {
	return protocol.ChatPayload{
		Message:  message,
		Username: "System",
		IsSystem: true,
		SentAt:   time.Now().UnixMilli(),
	}
}
