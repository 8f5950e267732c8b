// internal/handlers/server.go
package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/blanksgame/blanks/internal/game"
	"github.com/blanksgame/blanks/internal/middleware"
)

// Server is the HTTP surface over the lobby registry: one REST endpoint to
// create lobbies and one websocket endpoint per lobby.
type Server struct {
	Registry *game.Registry

	// FrontendOrigin is the origin CORS and the websocket origin check
	// accept; "*" accepts any.
	FrontendOrigin string

	log logrus.FieldLogger
}

// NewServer wires the registry into a handler set.
func NewServer(registry *game.Registry, frontendOrigin string, logger logrus.FieldLogger) *Server {
	if frontendOrigin == "" {
		frontendOrigin = "*"
	}
	return &Server{
		Registry:       registry,
		FrontendOrigin: frontendOrigin,
		log:            logger,
	}
}

// Routes builds the service mux. The websocket route skips CORS: the origin
// check happens during the upgrade instead.
func (s *Server) Routes() http.Handler {
	logged := middleware.LogMiddleware(s.log)
	cors := middleware.CORS(s.FrontendOrigin)

	mux := http.NewServeMux()
	mux.Handle("/lobby", cors(logged(http.HandlerFunc(s.CreateLobbyHandler))))
	mux.Handle("/ws/", logged(http.HandlerFunc(s.LobbyWSHandler)))
	return mux
}
