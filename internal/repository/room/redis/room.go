package redis

import (
	"context"
	"fmt"

	"github.com/couchparty/server/internal/repository/room"
)

func (r repo) getRoomKey(roomID string) string {
	return "room:" + roomID
}

func (r repo) SetRoom(ctx context.Context, params *room.SetRoomParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	rm := room.Room{
		MediaURL:         params.MediaURL,
		MediaTitle:       params.MediaTitle,
		MediaDuration:    params.MediaDuration,
		HostID:           params.HostID,
		HostName:         params.HostName,
		Capacity:         params.Capacity,
		CreatedAt:        params.CreatedAt,
		IsActive:         true,
		PeakParticipants: 0,
	}

	roomKey := r.getRoomKey(params.RoomID)
	r.HSetStruct(ctx, pipe, roomKey, rm)
	pipe.Expire(ctx, roomKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	return nil
}

func (r repo) GetRoom(ctx context.Context, roomID string) (room.Room, error) {
	roomKey := r.getRoomKey(roomID)

	var rm room.Room
	if err := r.rc.HGetAll(ctx, roomKey).Scan(&rm); err != nil {
		return room.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	if rm.HostID == "" {
		return room.Room{}, room.ErrRoomNotFound
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return rm, nil
}

func (r repo) UpdateRoomIsActive(ctx context.Context, roomID string, isActive bool) error {
	roomKey := r.getRoomKey(roomID)
	cmd := r.rc.Exists(ctx, roomKey)
	if err := cmd.Err(); err != nil {
		return err
	}

	if cmd.Val() == 0 {
		return room.ErrRoomNotFound
	}

	if err := r.rc.HSet(ctx, roomKey, "is_active", isActive).Err(); err != nil {
		return err
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return nil
}

// UpdateRoomPeakParticipants raises the stored high-water mark if count
// exceeds it; lower counts leave it untouched.
func (r repo) UpdateRoomPeakParticipants(ctx context.Context, roomID string, count int) error {
	roomKey := r.getRoomKey(roomID)
	if err := r.rc.EvalSha(ctx, r.peakScript, []string{roomKey}, "peak_participants", count).Err(); err != nil {
		return fmt.Errorf("failed to update peak participants: %w", err)
	}

	return nil
}

// RemoveRoomState drops the live session state (player, roster). The room
// record itself survives as an inactive registry entry until its TTL.
func (r repo) RemoveRoomState(ctx context.Context, roomID string) error {
	pipe := r.rc.TxPipeline()

	pipe.Del(ctx, r.getPlayerKey(roomID))
	pipe.Del(ctx, r.getMemberListKey(roomID))

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove room state: %w", err)
	}

	return nil
}
