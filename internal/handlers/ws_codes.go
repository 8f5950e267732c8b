// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the lobby socket. These give clients
// a more specific close reason than the standard codes.
const (
	JoinTimeoutError  websocket.StatusCode = 3000 // client never sent JoinLobby within the grace window
	JoinRejectedError websocket.StatusCode = 3001 // the lobby refused the join (closed, full, or bad secret)
	LobbyClosedError  websocket.StatusCode = 3002 // the lobby was torn down while the socket was open
)
