// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blanksgame/blanks/internal/game"
	"github.com/blanksgame/blanks/internal/middleware"
)

const (
	// writeTimeout bounds a single outbound frame.
	writeTimeout = 5 * time.Second
	// pingInterval keeps NATs from reaping quiet connections.
	pingInterval = 30 * time.Second
)

var errExpectedJoin = errors.New("expected JoinLobby as the first message")

// LobbyWSHandler upgrades GET /ws/{lobby_id} and runs the session. The
// client must open with a JoinLobby within the lobby's grace window; after
// that the socket carries client commands in and lobby events out until
// either side drops. Command failures ride back as private Error events and
// never end the stream.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/ws/")
	lobbyID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, game.ErrLobbyNotFound)
		return
	}
	lobby, ok := s.Registry.Get(lobbyID)
	if !ok {
		writeError(w, game.ErrLobbyNotFound)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler exited")
	middleware.LogWebSocketConnect(s.log, r.RemoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	join, err := readJoin(ctx, c, lobby.GracePeriod)
	if err != nil {
		_ = writeJSON(ctx, c, game.ErrorEvent(game.ErrLobbyLogin))
		c.Close(JoinTimeoutError, "join not received")
		return
	}

	// Subscribe before joining so the joiner's own PlayerJoin is queued
	// ahead of the snapshot that follows it.
	sub := lobby.Bus.Subscribe()
	if err := lobby.Join(join.Name, join.ID, join.Secret); err != nil {
		sub.Close()
		_ = writeJSON(ctx, c, game.ErrorEvent(game.AsError(err)))
		c.Close(JoinRejectedError, "join rejected")
		return
	}
	playerID := join.ID
	priv := lobby.Bus.SubscribePrivate(playerID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writePump(ctx, c, lobby, playerID, sub, priv)
	}()

	lobby.SendSnapshot(playerID)

	err = s.readLoop(ctx, c, lobby, playerID)
	cancel()
	<-writerDone
	sub.Close()

	// A replaced session's old socket must not start a grace timer: the new
	// session owns the player's liveness now.
	if lobby.Bus.IsCurrent(playerID, priv) {
		lobby.PlayerDisconnected(playerID)
	}
	middleware.LogWebSocketDisconnect(s.log, r.RemoteAddr, r.URL.Path, err)
}

// originPatterns translates the configured frontend origin into the host
// patterns the websocket origin check compares against.
func (s *Server) originPatterns() []string {
	if s.FrontendOrigin == "*" {
		return []string{"*"}
	}
	if u, err := url.Parse(s.FrontendOrigin); err == nil && u.Host != "" {
		return []string{u.Host}
	}
	return []string{s.FrontendOrigin}
}

// readJoin waits up to grace for the opening JoinLobby message.
func readJoin(ctx context.Context, c *websocket.Conn, grace time.Duration) (game.JoinLobbyData, error) {
	joinCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	var ev game.ClientEvent
	if err := wsjson.Read(joinCtx, c, &ev); err != nil {
		return game.JoinLobbyData{}, err
	}
	if ev.Type != game.ClientJoinLobby {
		return game.JoinLobbyData{}, errExpectedJoin
	}
	var join game.JoinLobbyData
	if err := json.Unmarshal(ev.Data, &join); err != nil {
		return game.JoinLobbyData{}, err
	}
	return join, nil
}

// writePump is the session's only writer. It multiplexes the broadcast
// subscription and the private queue onto the socket, draining broadcasts
// first. A lagged subscription is healed with a fresh snapshot.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, lobby *game.Lobby, playerID uuid.UUID, sub *game.Subscription, priv *game.PrivateQueue) {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				c.Close(LobbyClosedError, "lobby closed")
				return
			}
			if writeJSON(ctx, c, ev) != nil {
				return
			}
			continue
		default:
		}

		if ev, ok := priv.TryNext(); ok {
			if writeJSON(ctx, c, ev) != nil {
				return
			}
			continue
		}
		if priv.Done() {
			c.Close(websocket.StatusNormalClosure, "session ended")
			return
		}
		if n := sub.Lagged(); n > 0 {
			s.log.WithFields(logrus.Fields{"player_id": playerID, "dropped": n}).Warn("subscriber lagged, resyncing")
			lobby.SendSnapshot(playerID)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				c.Close(LobbyClosedError, "lobby closed")
				return
			}
			if writeJSON(ctx, c, ev) != nil {
				return
			}
		case <-priv.Wake():
		}
	}
}

// readLoop decodes client messages until the socket dies or goes silent for
// longer than the idle cutoff. Malformed frames and rejected commands are
// answered with private Error events.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, lobby *game.Lobby, playerID uuid.UUID) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, game.TimeoutInterval)
		typ, data, err := c.Read(readCtx)
		cancel()
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var ev game.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			lobby.Bus.EmitPrivate(playerID, game.ErrorEvent(game.JSONError(err.Error())))
			continue
		}
		if err := s.dispatch(ctx, lobby, playerID, ev); err != nil {
			lobby.Bus.EmitPrivate(playerID, game.ErrorEvent(game.AsError(err)))
		}
	}
}

// dispatch routes one decoded client event to the lobby.
func (s *Server) dispatch(ctx context.Context, lobby *game.Lobby, playerID uuid.UUID, ev game.ClientEvent) error {
	switch ev.Type {
	case game.ClientJoinLobby:
		// Already joined on this stream.
		return nil

	case game.ClientUpdateSettings:
		var req game.UpdateSettingsRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return game.JSONError(err.Error())
		}
		return lobby.UpdateSettings(playerID, req.Settings)

	case game.ClientAddDeck:
		var req game.AddDeckRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return game.JSONError(err.Error())
		}
		return lobby.AddDeck(ctx, playerID, req.Deckcode)

	case game.ClientFetchDecks:
		return lobby.RefreshDecks(ctx, playerID)

	case game.ClientKick:
		var req game.KickRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return game.JSONError(err.Error())
		}
		return lobby.Kick(playerID, req.Kicked)

	case game.ClientStartRound:
		return lobby.StartGame(playerID)

	case game.ClientRestartRound:
		return lobby.ResetGame(playerID)

	case game.ClientEndGame:
		return lobby.EndGame(playerID)

	case game.ClientSubmitOwnCards:
		var req game.SubmitOwnCardsRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return game.JSONError(err.Error())
		}
		return lobby.SubmitCards(playerID, req.Indexes)

	case game.ClientCzarPick:
		var req game.CzarPickRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return game.JSONError(err.Error())
		}
		return lobby.SubmitCzarChoice(playerID, req.Index)

	case game.ClientLeaveLobby:
		lobby.Leave(playerID)
		return nil

	default:
		return game.JSONError("unknown event type: " + string(ev.Type))
	}
}

// writeJSON writes one frame under the write timeout.
func writeJSON(ctx context.Context, c *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c, v)
}
