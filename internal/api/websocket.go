package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trade-ledger/internal/eventbus"
	"trade-ledger/internal/ledger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const leaderboardPushInterval = 15 * time.Second

// handleLeaderboardWebSocket pushes the default-window leaderboard to the
// client every interval, plus an early push whenever the registry changes.
func (s *Server) handleLeaderboardWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("leaderboard websocket upgrade error:", err)
		return
	}
	defer conn.Close()

	refresh := make(chan eventbus.Event, 8)
	s.bus.Subscribe(eventbus.TypeUserRegistered, refresh)
	s.bus.Subscribe(eventbus.TypeUserUnregistered, refresh)
	defer s.bus.Unsubscribe(eventbus.TypeUserRegistered, refresh)
	defer s.bus.Unsubscribe(eventbus.TypeUserUnregistered, refresh)

	ticker := time.NewTicker(leaderboardPushInterval)
	defer ticker.Stop()

	for {
		result, err := s.leaderboard.GetLeaderboard(r.Context(), ledger.LeaderboardParams{
			Metric: "pnl",
			ToMs:   time.Now().UnixMilli(),
		})
		var payload []byte
		if err != nil {
			payload = []byte(`{"error":"leaderboard_unavailable"}`)
		} else {
			payload, _ = json.Marshal(result)
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-refresh:
		case <-ticker.C:
		}
	}
}
