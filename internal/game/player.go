// internal/game/player.go
package game

import "github.com/blanksgame/blanks/internal/deck"

// PlayerInfo is the public view of a player, safe to broadcast.
type PlayerInfo struct {
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
	IsCzar bool   `json:"is_czar"`
	Points int    `json:"points"`
}

// Player is the server-side player record: public info, the private hand,
// and the argon2id hash of the rejoin secret (empty when the player never
// supplied one). The hand and hash never leave the server except through the
// player's own private channel.
type Player struct {
	Info  PlayerInfo
	Cards []deck.WhiteCard

	secretHash string
}
