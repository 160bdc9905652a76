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

type CreateRoomParams struct {
	MediaURL      string
	MediaTitle    string
	MediaDuration float64
	Capacity      int
	HostID        string
	HostName      string
}

type CreateRoomResponse struct {
	Room Room
}

func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	roomID := uuid.NewString()
	now := time.Now().UnixMilli()

	capacity := params.Capacity
	if capacity <= 0 {
		capacity = s.config.DefaultCapacity
	}

	hostID := params.HostID
	if hostID == "" {
		hostID = uuid.NewString()
	}
	hostName := params.HostName
	if hostName == "" {
		hostName = s.generateGuestName()
	}

	if err := s.roomRepo.SetRoom(ctx, &repository.SetRoomParams{
		RoomID:        roomID,
		MediaURL:      params.MediaURL,
		MediaTitle:    params.MediaTitle,
		MediaDuration: params.MediaDuration,
		HostID:        hostID,
		HostName:      hostName,
		Capacity:      capacity,
		CreatedAt:     now,
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set room: %w", err)
	}

	// Every room starts paused at position zero.
	if err := s.roomRepo.SetPlayer(ctx, &repository.SetPlayerParams{
		RoomID:    roomID,
		State:     string(protocol.StatePaused),
		Position:  0,
		UpdatedAt: now,
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set player: %w", err)
	}

	return CreateRoomResponse{
		Room: Room{
			ID:            roomID,
			MediaURL:      params.MediaURL,
			MediaTitle:    params.MediaTitle,
			MediaDuration: params.MediaDuration,
			HostID:        hostID,
			HostName:      hostName,
			Capacity:      capacity,
			CreatedAt:     now,
			IsActive:      true,
		},
	}, nil
}

func (s service) GetRoom(ctx context.Context, roomID string) (Room, error) {
	rm, err := s.roomRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return Room{}, ErrRoomNotFound
		}

		return Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	return Room{
		ID:               roomID,
		MediaURL:         rm.MediaURL,
		MediaTitle:       rm.MediaTitle,
		MediaDuration:    rm.MediaDuration,
		HostID:           rm.HostID,
		HostName:         rm.HostName,
		Capacity:         rm.Capacity,
		CreatedAt:        rm.CreatedAt,
		IsActive:         rm.IsActive,
		PeakParticipants: rm.PeakParticipants,
	}, nil
}

type CloseRoomParams struct {
	RoomID   string
	SenderID string
}

type CloseRoomResponse struct {
	Conns []*websocket.Conn
}

// CloseRoom marks the room inactive, drops its session state and returns
// every live connection so the caller can close them. Host only.
func (s service) CloseRoom(ctx context.Context, params *CloseRoomParams) (CloseRoomResponse, error) {
	rm, err := s.roomRepo.GetRoom(ctx, params.RoomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return CloseRoomResponse{}, ErrRoomNotFound
		}

		return CloseRoomResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if rm.HostID != params.SenderID {
		return CloseRoomResponse{}, ErrPermissionDenied
	}

	if err := s.roomRepo.UpdateRoomIsActive(ctx, params.RoomID, false); err != nil {
		return CloseRoomResponse{}, fmt.Errorf("failed to deactivate room: %w", err)
	}

	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, params.RoomID)
	if err != nil {
		return CloseRoomResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}

	conns := make([]*websocket.Conn, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if conn, err := s.connRepo.GetConn(memberID); err == nil {
			conns = append(conns, conn)
		}

		if err := s.roomRepo.RemoveMember(ctx, &repository.RemoveMemberParams{
			MemberID: memberID,
			RoomID:   params.RoomID,
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to remove member on close", "member_id", memberID, "error", err)
		}
	}

	if err := s.roomRepo.RemoveRoomState(ctx, params.RoomID); err != nil {
		return CloseRoomResponse{}, fmt.Errorf("failed to remove room state: %w", err)
	}

	return CloseRoomResponse{Conns: conns}, nil
}
