package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"trade-ledger/internal/eventbus"
	"trade-ledger/internal/models"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": s.registry.List(),
	})
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation_error", "malformed JSON body")
		return
	}
	addr := models.NormalizeAddress(body.User)
	if addr == "" {
		writeAPIError(w, http.StatusBadRequest, "validation_error", "invalid address")
		return
	}

	if !s.registry.Register(addr) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"user":    addr,
			"message": "User already registered",
		})
		return
	}

	s.bus.Publish(eventbus.Event{
		Type:      eventbus.TypeUserRegistered,
		User:      addr,
		Timestamp: time.Now(),
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"user":    addr,
	})
}

func (s *Server) handleUnregisterUser(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["user"]
	addr := models.NormalizeAddress(raw)
	if addr == "" {
		writeAPIError(w, http.StatusBadRequest, "validation_error", "invalid address")
		return
	}

	if !s.registry.Unregister(addr) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"user":    addr,
			"message": "User not found",
		})
		return
	}

	s.bus.Publish(eventbus.Event{
		Type:      eventbus.TypeUserUnregistered,
		User:      addr,
		Timestamp: time.Now(),
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    addr,
	})
}
