// internal/game/events.go
package game

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/blanksgame/blanks/internal/deck"
)

// Every tagged union on the wire uses the {"type": variant, "data": payload}
// envelope, with "data" omitted for unit variants. The one exception is
// Error, which keeps its own {"kind","value"} shape (see errors.go) and rides
// inside a private event's data field.

// ServerEventType enumerates the broadcast events.
type ServerEventType string

const (
	EventPlayerJoin     ServerEventType = "PlayerJoin"
	EventPlayerRemove   ServerEventType = "PlayerRemove"
	EventAssignHost     ServerEventType = "AssignHost"
	EventStartRound     ServerEventType = "StartRound"
	EventCardsSubmitted ServerEventType = "CardsSubmitted"
	EventUpdateDecks    ServerEventType = "UpdateDecks"
	EventUpdateSettings ServerEventType = "UpdateSettings"
	EventRevealCards    ServerEventType = "RevealCards"
	EventRoundSkip      ServerEventType = "RoundSkip"
	EventRoundResult    ServerEventType = "RoundResult"
	EventGameOver       ServerEventType = "GameOver"
	EventLobbyReset     ServerEventType = "LobbyReset"
)

// ServerEvent is broadcast to every subscriber of a lobby.
type ServerEvent struct {
	Type ServerEventType `json:"type"`
	Data any             `json:"data,omitempty"`
}

// PlayerJoinData announces a new player with their public info.
type PlayerJoinData struct {
	PlayerID   uuid.UUID  `json:"player_id"`
	PlayerInfo PlayerInfo `json:"player_info"`
}

// PlayerRemoveData names a player removed by leave, kick, or timeout.
type PlayerRemoveData struct {
	PlayerID uuid.UUID `json:"player_id"`
}

// AssignHostData names the player promoted to host.
type AssignHostData struct {
	PlayerID uuid.UUID `json:"player_id"`
}

// StartRoundData opens a round with its czar and prompt.
type StartRoundData struct {
	CzarID    uuid.UUID      `json:"czar_id"`
	BlackCard deck.BlackCard `json:"black_card"`
}

// CardsSubmittedData reports that a player has submitted this round.
type CardsSubmittedData struct {
	PlayerID uuid.UUID `json:"player_id"`
}

// UpdateDecksData carries the recomputed deck list.
type UpdateDecksData struct {
	Decks []deck.Info `json:"decks"`
}

// UpdateSettingsData carries the new lobby settings.
type UpdateSettingsData struct {
	Settings Settings `json:"settings"`
}

// RevealCardsData exposes the shuffled submissions for judging.
type RevealCardsData struct {
	SelectedCards [][]deck.WhiteCard `json:"selected_cards"`
}

// RoundResultData names the round winner and the reveal index the czar chose.
type RoundResultData struct {
	PlayerID         uuid.UUID `json:"player_id"`
	WinningCardIndex int       `json:"winning_card_index"`
}

func playerJoinEvent(id uuid.UUID, info PlayerInfo) ServerEvent {
	return ServerEvent{Type: EventPlayerJoin, Data: PlayerJoinData{PlayerID: id, PlayerInfo: info}}
}

func playerRemoveEvent(id uuid.UUID) ServerEvent {
	return ServerEvent{Type: EventPlayerRemove, Data: PlayerRemoveData{PlayerID: id}}
}

func assignHostEvent(id uuid.UUID) ServerEvent {
	return ServerEvent{Type: EventAssignHost, Data: AssignHostData{PlayerID: id}}
}

func startRoundEvent(czarID uuid.UUID, black deck.BlackCard) ServerEvent {
	return ServerEvent{Type: EventStartRound, Data: StartRoundData{CzarID: czarID, BlackCard: black}}
}

func cardsSubmittedEvent(id uuid.UUID) ServerEvent {
	return ServerEvent{Type: EventCardsSubmitted, Data: CardsSubmittedData{PlayerID: id}}
}

func updateDecksEvent(decks []deck.Info) ServerEvent {
	return ServerEvent{Type: EventUpdateDecks, Data: UpdateDecksData{Decks: decks}}
}

func updateSettingsEvent(s Settings) ServerEvent {
	return ServerEvent{Type: EventUpdateSettings, Data: UpdateSettingsData{Settings: s}}
}

func revealCardsEvent(reveal [][]deck.WhiteCard) ServerEvent {
	return ServerEvent{Type: EventRevealCards, Data: RevealCardsData{SelectedCards: reveal}}
}

func roundSkipEvent() ServerEvent { return ServerEvent{Type: EventRoundSkip} }

func roundResultEvent(winner uuid.UUID, index int) ServerEvent {
	return ServerEvent{Type: EventRoundResult, Data: RoundResultData{PlayerID: winner, WinningCardIndex: index}}
}

func gameOverEvent() ServerEvent { return ServerEvent{Type: EventGameOver} }

func lobbyResetEvent() ServerEvent { return ServerEvent{Type: EventLobbyReset} }

// PrivateEventType enumerates the per-player events.
type PrivateEventType string

const (
	EventClientLobby PrivateEventType = "ClientLobby"
	EventUpdateHand  PrivateEventType = "UpdateHand"
	EventTimeout     PrivateEventType = "Timeout"
	EventKick        PrivateEventType = "Kick"
	EventError       PrivateEventType = "Error"
)

// PrivateServerEvent is delivered to exactly one player.
type PrivateServerEvent struct {
	Type PrivateEventType `json:"type"`
	Data any              `json:"data,omitempty"`
}

// UpdateHandData replaces the recipient's hand.
type UpdateHandData struct {
	Cards []deck.WhiteCard `json:"cards"`
}

func clientLobbyEvent(snapshot ClientLobby) PrivateServerEvent {
	return PrivateServerEvent{Type: EventClientLobby, Data: snapshot}
}

func updateHandEvent(cards []deck.WhiteCard) PrivateServerEvent {
	return PrivateServerEvent{Type: EventUpdateHand, Data: UpdateHandData{Cards: cards}}
}

func timeoutEvent() PrivateServerEvent { return PrivateServerEvent{Type: EventTimeout} }

func kickEvent() PrivateServerEvent { return PrivateServerEvent{Type: EventKick} }

// ErrorEvent wraps a protocol error for private delivery.
func ErrorEvent(e Error) PrivateServerEvent {
	return PrivateServerEvent{Type: EventError, Data: e}
}

// ClientEventType enumerates the messages clients may send.
type ClientEventType string

const (
	ClientJoinLobby      ClientEventType = "JoinLobby"
	ClientUpdateSettings ClientEventType = "UpdateSettings"
	ClientAddDeck        ClientEventType = "AddDeck"
	ClientFetchDecks     ClientEventType = "FetchDecks"
	ClientKick           ClientEventType = "Kick"
	ClientEndGame        ClientEventType = "EndGame"
	ClientStartRound     ClientEventType = "StartRound"
	ClientRestartRound   ClientEventType = "RestartRound"
	ClientSubmitOwnCards ClientEventType = "SubmitOwnCards"
	ClientCzarPick       ClientEventType = "CzarPick"
	ClientLeaveLobby     ClientEventType = "LeaveLobby"
)

// ClientEvent is the envelope for client messages. Data stays raw until the
// dispatcher knows which payload type the variant carries.
type ClientEvent struct {
	Type ClientEventType `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinLobbyData identifies the joining player. Secret is the optional opaque
// rejoin credential; when present on first join, later joins under the same
// id must repeat it.
type JoinLobbyData struct {
	Name   string    `json:"name"`
	ID     uuid.UUID `json:"id"`
	Secret string    `json:"secret,omitempty"`
}

// UpdateSettingsRequest carries replacement settings.
type UpdateSettingsRequest struct {
	Settings Settings `json:"settings"`
}

// AddDeckRequest names a deck code to fetch and cache.
type AddDeckRequest struct {
	Deckcode string `json:"deckcode"`
}

// KickRequest names the player the host wants removed.
type KickRequest struct {
	Kicked uuid.UUID `json:"kicked"`
}

// SubmitOwnCardsRequest lists hand indices the player plays this round.
type SubmitOwnCardsRequest struct {
	Indexes []int `json:"indexes"`
}

// CzarPickRequest is the czar's chosen reveal index.
type CzarPickRequest struct {
	Index int `json:"index"`
}
