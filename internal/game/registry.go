// internal/game/registry.go
package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blanksgame/blanks/internal/deck"
)

// Registry holds every live lobby, keyed by id. It owns lobby creation and
// the janitor that prunes abandoned rooms.
type Registry struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby

	decks *deck.Store
	log   logrus.FieldLogger
}

// NewRegistry returns an empty registry whose lobbies draw cards from decks.
func NewRegistry(decks *deck.Store, logger logrus.FieldLogger) *Registry {
	return &Registry{
		lobbies: make(map[uuid.UUID]*Lobby),
		decks:   decks,
		log:     logger,
	}
}

// Create makes a new lobby with a fresh id, seats the host, and registers it.
func (r *Registry) Create(hostName string, hostID uuid.UUID, hostSecret string) (*Lobby, error) {
	id := uuid.New()
	l, err := NewLobby(id, hostName, hostID, hostSecret, r.decks, r.log)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.lobbies[id] = l
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"lobby_id": id, "host_id": hostID}).Info("lobby created")
	return l, nil
}

// Get looks up a lobby by id.
func (r *Registry) Get(id uuid.UUID) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[id]
	return l, ok
}

// Remove drops and tears down the lobby with the given id.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	l, ok := r.lobbies[id]
	delete(r.lobbies, id)
	r.mu.Unlock()
	if ok {
		l.Close()
	}
}

// Len reports how many lobbies are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}

// CleanIdle closes and drops every lobby whose last activity is older than
// maxIdle, returning how many were pruned.
func (r *Registry) CleanIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	var stale []*Lobby
	for id, l := range r.lobbies {
		if time.Since(l.LastActivity()) > maxIdle {
			stale = append(stale, l)
			delete(r.lobbies, id)
		}
	}
	r.mu.Unlock()

	// Teardown can block on a running game task, so it happens outside the
	// registry lock.
	for _, l := range stale {
		l.Close()
	}
	return len(stale)
}

// RunJanitor prunes idle lobbies every interval until ctx is cancelled.
func (r *Registry) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.CleanIdle(maxIdle); n > 0 {
				r.log.WithField("count", n).Info("pruned stale lobbies")
			}
		}
	}
}
