package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couchparty/server/internal/service/room"
	"github.com/couchparty/server/pkg/rest"
)

const (
	headerPrefix = "Wp-"

	userIDHeader   = headerPrefix + "User-Id"
	usernameHeader = headerPrefix + "Username"
)

type createRoomRequest struct {
	MediaURL      string  `json:"media_url" validate:"required,url"`
	MediaTitle    string  `json:"media_title" validate:"required,max=128"`
	MediaDuration float64 `json:"media_duration" validate:"gte=0"`
	Capacity      int     `json:"capacity" validate:"gte=0,lte=100"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRoomRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.InfoContext(ctx, "createRoom", "read json err", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.InfoContext(ctx, "createRoom", "validate err", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	createRoomResp, err := c.roomService.CreateRoom(ctx, &room.CreateRoomParams{
		MediaURL:      req.MediaURL,
		MediaTitle:    req.MediaTitle,
		MediaDuration: req.MediaDuration,
		Capacity:      req.Capacity,
		HostID:        r.Header.Get(userIDHeader),
		HostName:      r.Header.Get(usernameHeader),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "createRoom", "create room err", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": createRoomResp.Room})
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "room-id")

	rm, err := c.roomService.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
			return
		}

		c.logger.ErrorContext(ctx, "getRoom", "get room err", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": rm})
}

func (c controller) closeRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "room-id")

	senderID := r.Header.Get(userIDHeader)
	if senderID == "" {
		rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "identity required"})
		return
	}

	closeRoomResp, err := c.roomService.CloseRoom(ctx, &room.CloseRoomParams{
		RoomID:   roomID,
		SenderID: senderID,
	})
	if err != nil {
		switch {
		case errors.Is(err, room.ErrRoomNotFound):
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
		case errors.Is(err, room.ErrPermissionDenied):
			rest.WriteJSON(w, http.StatusForbidden, rest.Envelope{"error": "only the host can close the room"})
		default:
			c.logger.ErrorContext(ctx, "closeRoom", "close room err", err)
			rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		}
		return
	}

	for _, conn := range closeRoomResp.Conns {
		c.closeConn(ctx, conn, closeCodeRoomClosed, "party ended")
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": "room closed"})
}

func (c controller) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (c controller) stats(w http.ResponseWriter, r *http.Request) {
	rooms, clients := c.roomService.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "clients": clients})
}
