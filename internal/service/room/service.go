package room

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"

	repository "github.com/couchparty/server/internal/repository/room"
	"github.com/couchparty/server/pkg/randstr"
)

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomInactive         = errors.New("room inactive")
	ErrRoomFull             = errors.New("room full")
	ErrMemberNotFound       = errors.New("member not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidPlaybackState = errors.New("invalid playback state")
)

type iRoomRepo interface {
	// room
	SetRoom(context.Context, *repository.SetRoomParams) error
	GetRoom(context.Context, string) (repository.Room, error)
	UpdateRoomIsActive(ctx context.Context, roomID string, isActive bool) error
	UpdateRoomPeakParticipants(ctx context.Context, roomID string, count int) error
	RemoveRoomState(context.Context, string) error
	// player
	SetPlayer(context.Context, *repository.SetPlayerParams) error
	GetPlayer(context.Context, string) (repository.Player, error)
	UpdatePlayerState(context.Context, *repository.UpdatePlayerStateParams) error
	RemovePlayer(context.Context, string) error
	// member
	SetMember(context.Context, *repository.SetMemberParams) error
	RemoveMember(context.Context, *repository.RemoveMemberParams) error
	GetMember(context.Context, *repository.GetMemberParams) (repository.Member, error)
	GetMemberIDs(context.Context, string) ([]string, error)
	GetMemberCount(context.Context, string) (int, error)
}

type iConnRepo interface {
	Add(conn *websocket.Conn, roomID, memberID string) error
	RemoveByConn(conn *websocket.Conn) (roomID, memberID string, err error)
	GetConn(memberID string) (*websocket.Conn, error)
	GetMemberID(conn *websocket.Conn) (string, error)
	Stats() (rooms, clients int)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	// DefaultCapacity applies when a create-room request does not name one.
	DefaultCapacity int
}

type service struct {
	roomRepo  iRoomRepo
	connRepo  iConnRepo
	generator iGenerator
	config    *Config
	logger    *slog.Logger
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, config *Config, logger *slog.Logger) *service {
	s := service{
		roomRepo: roomRepo,
		connRepo: connRepo,
		config:   config,
		logger:   logger,
	}

	letterBytes := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	s.generator = randstr.New(letterBytes)

	return &s
}

func (s service) Stats() (rooms, clients int) {
	return s.connRepo.Stats()
}

func (s service) generateGuestName() string {
	return "guest-" + s.generator.GenerateRandomString(6)
}
