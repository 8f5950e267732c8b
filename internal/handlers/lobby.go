// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/blanksgame/blanks/internal/game"
)

// createLobbyRequest is the body of POST /lobby. The caller supplies its own
// player id; the optional secret guards reconnects under that id.
type createLobbyRequest struct {
	Name   string    `json:"name"`
	ID     uuid.UUID `json:"id"`
	Secret string    `json:"secret,omitempty"`
}

type createLobbyResponse struct {
	ID uuid.UUID `json:"id"`
}

// CreateLobbyHandler creates a lobby with the caller seated as host and
// returns the lobby id. The caller still has to open the websocket and join
// to receive events.
func (s *Server) CreateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, game.JSONError("malformed lobby request"))
		return
	}

	lobby, err := s.Registry.Create(req.Name, req.ID, req.Secret)
	if err != nil {
		s.log.WithError(err).Error("lobby create failed")
		writeError(w, game.AsError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(createLobbyResponse{ID: lobby.ID}); err != nil {
		s.log.WithError(err).Warn("lobby create response write failed")
	}
}

// writeError sends a protocol error as its HTTP status with a JSON body.
func writeError(w http.ResponseWriter, e game.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(e)
}
