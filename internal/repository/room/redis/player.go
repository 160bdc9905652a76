package redis

import (
	"context"
	"fmt"

	"github.com/couchparty/server/internal/repository/room"
)

func (r repo) getPlayerKey(roomID string) string {
	return "room:" + roomID + ":player"
}

func (r repo) SetPlayer(ctx context.Context, params *room.SetPlayerParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	player := room.Player{
		State:     params.State,
		Position:  params.Position,
		UpdatedAt: params.UpdatedAt,
	}

	playerKey := r.getPlayerKey(params.RoomID)
	r.HSetStruct(ctx, pipe, playerKey, player)
	pipe.Expire(ctx, playerKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set player: %w", err)
	}

	return nil
}

func (r repo) GetPlayer(ctx context.Context, roomID string) (room.Player, error) {
	playerKey := r.getPlayerKey(roomID)

	var player room.Player
	if err := r.rc.HGetAll(ctx, playerKey).Scan(&player); err != nil {
		return room.Player{}, fmt.Errorf("failed to get player: %w", err)
	}

	if player.State == "" {
		return room.Player{}, room.ErrPlayerNotFound
	}

	r.rc.Expire(ctx, playerKey, r.expireDuration)

	return player, nil
}

// UpdatePlayerState is last-writer-wins: the submitted payload fully
// replaces the stored state with no merge.
func (r repo) UpdatePlayerState(ctx context.Context, params *room.UpdatePlayerStateParams) error {
	playerKey := r.getPlayerKey(params.RoomID)
	cmd := r.rc.Exists(ctx, playerKey)
	if err := cmd.Err(); err != nil {
		return err
	}

	if cmd.Val() == 0 {
		return room.ErrPlayerNotFound
	}

	if err := r.rc.HSet(ctx, playerKey,
		"state", params.State,
		"position", params.Position,
		"updated_at", params.UpdatedAt,
	).Err(); err != nil {
		return err
	}

	r.rc.Expire(ctx, playerKey, r.expireDuration)

	return nil
}

func (r repo) RemovePlayer(ctx context.Context, roomID string) error {
	res, err := r.rc.Del(ctx, r.getPlayerKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove player: %w", err)
	}

	if res == 0 {
		return room.ErrPlayerNotFound
	}

	return nil
}
