package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/couchparty/server/internal/protocol"
	"github.com/couchparty/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New(c.logger)

	mux.Handle(protocol.KindSync, typedHandler(c.handleSync))
	mux.Handle(protocol.KindChat, typedHandler(c.handleChat))
	mux.Handle(protocol.KindEmote, typedHandler(c.handleEmote))
	mux.Handle(protocol.KindTyping, typedHandler(c.handleTyping))

	return mux
}

func typedHandler[T any](handler func(ctx context.Context, conn *websocket.Conn, input T) error) wsrouter.HandlerFunc {
	return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
		var input T
		if err := json.Unmarshal(payload, &input); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}

		return handler(ctx, conn, input)
	}
}
