package redis

import (
	"context"
	"fmt"

	"github.com/couchparty/server/internal/repository/room"
)

func (r repo) getMemberKey(memberID string) string {
	return "member:" + memberID
}

func (r repo) getMemberListKey(roomID string) string {
	return "room:" + roomID + ":memberlist"
}

func (r repo) SetMember(ctx context.Context, params *room.SetMemberParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	member := room.Member{
		Username: params.Username,
		IsGuest:  params.IsGuest,
	}

	memberKey := r.getMemberKey(params.MemberID)
	r.HSetStruct(ctx, pipe, memberKey, member)
	pipe.Expire(ctx, memberKey, r.expireDuration)

	memberListKey := r.getMemberListKey(params.RoomID)
	r.addWithIncrement(ctx, pipe, memberListKey, params.MemberID)
	pipe.Expire(ctx, memberListKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set member: %w", err)
	}

	return nil
}

func (r repo) RemoveMember(ctx context.Context, params *room.RemoveMemberParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	if err := r.rc.ZRem(ctx, r.getMemberListKey(params.RoomID), params.MemberID).Err(); err != nil {
		return err
	}

	res, err := r.rc.Del(ctx, r.getMemberKey(params.MemberID)).Result()
	if err != nil {
		return err
	}

	if res == 0 {
		return room.ErrMemberNotFound
	}

	return nil
}

func (r repo) GetMember(ctx context.Context, params *room.GetMemberParams) (room.Member, error) {
	var member room.Member
	if err := r.rc.HGetAll(ctx, r.getMemberKey(params.MemberID)).Scan(&member); err != nil {
		return room.Member{}, err
	}

	if member.Username == "" {
		return room.Member{}, room.ErrMemberNotFound
	}

	return member, nil
}

// GetMemberIDs returns the roster in join order.
func (r repo) GetMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	memberIDs, err := r.rc.ZRange(ctx, r.getMemberListKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	return memberIDs, nil
}

func (r repo) GetMemberCount(ctx context.Context, roomID string) (int, error) {
	count, err := r.rc.ZCard(ctx, r.getMemberListKey(roomID)).Result()
	if err != nil {
		return 0, err
	}

	return int(count), nil
}
