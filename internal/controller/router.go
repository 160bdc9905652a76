package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(c.requestIDMw)
	r.Use(c.requestLoggingMw)

	r.Get("/healthz", c.healthz)
	r.Get("/stats", c.stats)

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", c.createRoom)
		r.Get("/{room-id}", c.getRoom)
		r.Delete("/{room-id}", c.closeRoom)
	})

	r.HandleFunc("/ws/rooms/{room-id}", c.serveWS)

	return r
}
