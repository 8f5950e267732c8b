// internal/game/errors.go
package game

import (
	"errors"
	"net/http"

	"github.com/blanksgame/blanks/internal/deck"
)

// ErrorKind identifies one failure class of the game protocol. Kinds are
// wire-visible: they appear verbatim in the "kind" field of Error payloads.
type ErrorKind string

const (
	KindLobbyLogin     ErrorKind = "LobbyLogin"
	KindLobbyClosed    ErrorKind = "LobbyClosed"
	KindLobbyFull      ErrorKind = "LobbyFull"
	KindLobbyStart     ErrorKind = "LobbyStart"
	KindLobbyNotFound  ErrorKind = "LobbyNotFound"
	KindCardSubmission ErrorKind = "CardSubmission"
	KindCzarChoice     ErrorKind = "CzarChoice"
	KindUnauthorized   ErrorKind = "Unauthorized"
	KindDeck           ErrorKind = "Deck"
	KindUpstream       ErrorKind = "Upstream"
	KindFileSystem     ErrorKind = "FileSystem"
	KindJSON           ErrorKind = "Json"
)

// Error is the protocol error. Unlike every other tagged union on the wire it
// serializes as {"kind": ..., "value": ...}.
type Error struct {
	Kind  ErrorKind `json:"kind"`
	Value string    `json:"value,omitempty"`
}

// Errors for the unit kinds. The parameterized kinds (Deck, Upstream,
// FileSystem, Json) are built with their constructors below.
var (
	ErrLobbyLogin     = Error{Kind: KindLobbyLogin}
	ErrLobbyClosed    = Error{Kind: KindLobbyClosed}
	ErrLobbyFull      = Error{Kind: KindLobbyFull}
	ErrLobbyStart     = Error{Kind: KindLobbyStart}
	ErrLobbyNotFound  = Error{Kind: KindLobbyNotFound}
	ErrCardSubmission = Error{Kind: KindCardSubmission}
	ErrCzarChoice     = Error{Kind: KindCzarChoice}
	ErrUnauthorized   = Error{Kind: KindUnauthorized}
)

func (e Error) Error() string {
	if e.Value == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Value
}

// Status maps the error kind onto an HTTP status code for REST responses.
func (e Error) Status() int {
	switch e.Kind {
	case KindLobbyClosed, KindLobbyLogin, KindLobbyFull, KindJSON, KindDeck:
		return http.StatusBadRequest
	case KindLobbyNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusServiceUnavailable
	default: // CardSubmission, LobbyStart, CzarChoice, FileSystem
		return http.StatusInternalServerError
	}
}

// DeckError wraps a deck sampling problem (empty pools, bad contents).
func DeckError(msg string) Error { return Error{Kind: KindDeck, Value: msg} }

// UpstreamError wraps a failure talking to the deck API.
func UpstreamError(msg string) Error { return Error{Kind: KindUpstream, Value: msg} }

// FileSystemError wraps a deck cache I/O failure.
func FileSystemError(msg string) Error { return Error{Kind: KindFileSystem, Value: msg} }

// JSONError wraps a JSON encode/decode failure.
func JSONError(msg string) Error { return Error{Kind: KindJSON, Value: msg} }

// AsError coerces any error into a protocol Error. Typed deck errors keep
// their specific kinds; everything else that isn't already an Error falls
// back to the Deck kind, which is where unclassified failures in this domain
// originate.
func AsError(err error) Error {
	var e Error
	if errors.As(err, &e) {
		return e
	}

	var upstream *deck.UpstreamError
	if errors.As(err, &upstream) {
		return UpstreamError(upstream.Error())
	}
	var cache *deck.CacheError
	if errors.As(err, &cache) {
		return FileSystemError(cache.Error())
	}
	var decode *deck.DecodeError
	if errors.As(err, &decode) {
		return JSONError(decode.Error())
	}
	return DeckError(err.Error())
}
