package api

import (
	"time"

	"github.com/gorilla/mux"

	"trade-ledger/internal/metrics"
)

func registerBaseRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/ws/leaderboard", s.handleLeaderboardWebSocket).Methods("GET")
}

func registerV1Routes(r *mux.Router, s *Server) {
	r.HandleFunc("/v1/trades", s.handleGetTrades).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/positions/history", s.handleGetPositionHistory).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/pnl", s.handleGetPnl).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/leaderboard", cachedHandler(10*time.Second, s.handleGetLeaderboard)).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/users", s.handleListUsers).Methods("GET", "OPTIONS")
	r.HandleFunc("/v1/users", s.handleRegisterUser).Methods("POST")
	r.HandleFunc("/v1/users/{user}", s.handleUnregisterUser).Methods("DELETE", "OPTIONS")
}
