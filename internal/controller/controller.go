package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchparty/server/internal/service/room"
	"github.com/couchparty/server/pkg/validator"
	"github.com/couchparty/server/pkg/wsrouter"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	GetRoom(context.Context, string) (room.Room, error)
	CloseRoom(context.Context, *room.CloseRoomParams) (room.CloseRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	DisconnectMember(context.Context, *room.DisconnectMemberParams) (room.DisconnectMemberResponse, error)
	UpdatePlayerState(context.Context, *room.UpdatePlayerStateParams) (room.UpdatePlayerStateResponse, error)
	SendChat(context.Context, *room.SendChatParams) (room.SendChatResponse, error)
	SendEmote(context.Context, *room.SendEmoteParams) (room.SendEmoteResponse, error)
	SetTyping(context.Context, *room.SetTypingParams) (room.SetTypingResponse, error)
	Stats() (rooms, clients int)
}

// iConnWriter serializes writes per connection; broadcasts reach a
// connection from many goroutines at once.
type iConnWriter interface {
	WriteJSON(conn *websocket.Conn, v any) error
}

type controller struct {
	roomService iRoomService
	connWriter  iConnWriter
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsRouter    *wsrouter.WSRouter
	logger      *slog.Logger
}

func NewController(roomService iRoomService, connWriter iConnWriter, logger *slog.Logger) *controller {
	c := controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		connWriter:  connWriter,
		validate:    validator.NewValidator(),
		logger:      logger,
	}

	c.wsRouter = c.getWSRouter()

	return &c
}

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (c controller) writeToConn(ctx context.Context, conn *websocket.Conn, output *Output) error {
	return c.connWriter.WriteJSON(conn, output)
}

// broadcast writes to each connection, logging failures instead of
// propagating them: one dead peer must not fail the sender's operation.
func (c controller) broadcast(ctx context.Context, conns []*websocket.Conn, output *Output) {
	for _, conn := range conns {
		if err := c.writeToConn(ctx, conn, output); err != nil {
			c.logger.WarnContext(ctx, "failed to write to conn", "type", output.Type, "error", err)
		}
	}
}

func (c controller) generateTimeBasedID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}
