package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

// WSHandler streams leaderboard snapshots for one contest over a
// websocket. A snapshot is pushed on connect and after every submission.
type WSHandler struct {
	service  *app.ContestService
	identity IdentityResolver
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ContestService, identity IdentityResolver) *WSHandler {
	return &WSHandler{
		service:  service,
		identity: identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and streams leaderboard updates until the
// client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	contestID := r.URL.Query().Get("contestId")
	if contestID == "" {
		http.Error(w, "missing contestId", http.StatusBadRequest)
		return
	}

	user, err := h.identity.Resolve(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context(), contestID, user)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for update := range updates {
			if err := conn.WriteJSON(outboundMessage[domain.Leaderboard]{Type: "leaderboard", Payload: update}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Drain the connection so pings are answered and closure is noticed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
}
