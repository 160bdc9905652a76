package wsrouter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

type WSRouter struct {
	routes map[string]HandlerFunc
	logger *slog.Logger
}

func New(logger *slog.Logger) *WSRouter {
	return &WSRouter{
		routes: make(map[string]HandlerFunc),
		logger: logger,
	}
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// ServeConn reads messages from the connection until it closes. Malformed
// frames and unknown message types are dropped without closing the
// connection; handler errors are logged and the read loop keeps going.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.DebugContext(ctx, "dropped malformed frame", "error", err)
			continue
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			r.logger.DebugContext(ctx, "dropped unknown message type", "type", msg.Type)
			continue
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(msgCtx, conn, msg.Payload); err != nil {
			r.logger.ErrorContext(msgCtx, "handler error", "type", msg.Type, "error", err)
		}
	}
}
