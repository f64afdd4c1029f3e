package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"i4.energy/across/assistnow/lte"
)

// Machine is the part of the state machine the server exposes
type Machine interface {
	Status() lte.Status
	SetTopics(topics []string)
	SetClientID(id string)
}

// Server handles incoming HTTP requests for inspecting and steering the
// LTE state machine
type Server struct {
	Logger  *slog.Logger
	Machine Machine
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("PUT /topics", s.handleTopics)
	mux.HandleFunc("PUT /client", s.handleClient)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("Failed to encode response", "error", err)
	}
}

// handleStatus returns a snapshot of the state machine
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Machine.Status())
}

// handleTopics replaces the desired topic set
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	type TopicsRequest struct {
		Topics []string `json:"topics"`
	}

	var req TopicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Topics == nil {
		s.sendError(w, "'topics' field is required", http.StatusBadRequest)
		return
	}
	if slices.Contains(req.Topics, "") {
		s.sendError(w, "topic names must not be empty", http.StatusBadRequest)
		return
	}

	s.Machine.SetTopics(req.Topics)
	s.Logger.Info("Desired topics updated", "topics", req.Topics)
	s.sendJSON(w, s.Machine.Status())
}

// handleClient changes the MQTT client id; an empty id ends the session
func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	type ClientRequest struct {
		ClientID *string `json:"clientId"`
	}

	var req ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientID == nil {
		s.sendError(w, "'clientId' field is required", http.StatusBadRequest)
		return
	}

	s.Machine.SetClientID(*req.ClientID)
	s.Logger.Info("MQTT client id updated", "enabled", *req.ClientID != "")
	w.WriteHeader(http.StatusNoContent)
}
