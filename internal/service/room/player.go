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

type UpdatePlayerStateParams struct {
	State    protocol.PlaybackState
	Position float64
	SenderID string
	RoomID   string
}

type UpdatePlayerStateResponse struct {
	Sync protocol.SyncPayload
	// Conns excludes the sender's connection: a sync is never echoed back
	// to its originator.
	Conns []*websocket.Conn
}

// UpdatePlayerState applies a participant's playback change with
// last-writer-wins semantics. The submitted position is clamped to the
// media bounds but otherwise trusted; no plausibility check against
// wall-clock progress is made.
func (s service) UpdatePlayerState(ctx context.Context, params *UpdatePlayerStateParams) (UpdatePlayerStateResponse, error) {
	if !params.State.Valid() {
		return UpdatePlayerStateResponse{}, ErrInvalidPlaybackState
	}

	rm, err := s.roomRepo.GetRoom(ctx, params.RoomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return UpdatePlayerStateResponse{}, ErrRoomNotFound
		}

		return UpdatePlayerStateResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	position := clampPosition(params.Position, rm.MediaDuration)

	if err := s.roomRepo.UpdatePlayerState(ctx, &repository.UpdatePlayerStateParams{
		RoomID:    params.RoomID,
		State:     string(params.State),
		Position:  position,
		UpdatedAt: time.Now().UnixMilli(),
	}); err != nil {
		return UpdatePlayerStateResponse{}, fmt.Errorf("failed to update player state: %w", err)
	}

	return UpdatePlayerStateResponse{
		Sync: protocol.SyncPayload{
			State:     params.State,
			Timestamp: position,
			SenderID:  params.SenderID,
		},
		Conns: s.getConnsByRoomID(ctx, params.RoomID, params.SenderID),
	}, nil
}

// getPlayerSnapshot reads the authoritative state, extrapolating the
// position by the wall-clock time elapsed since the last update while
// playing.
func (s service) getPlayerSnapshot(ctx context.Context, roomID string, mediaDuration float64) (protocol.PlayerSnapshot, error) {
	player, err := s.roomRepo.GetPlayer(ctx, roomID)
	if err != nil {
		return protocol.PlayerSnapshot{}, fmt.Errorf("failed to get player: %w", err)
	}

	position := player.Position
	if player.State == string(protocol.StatePlaying) {
		elapsed := float64(time.Now().UnixMilli()-player.UpdatedAt) / 1000
		position = clampPosition(position+elapsed, mediaDuration)
	}

	return protocol.PlayerSnapshot{
		State:     protocol.PlaybackState(player.State),
		Timestamp: position,
		UpdatedAt: player.UpdatedAt,
	}, nil
}

func clampPosition(position, duration float64) float64 {
	if position < 0 {
		return 0
	}
	if duration > 0 && position > duration {
		return duration
	}

	return position
}
