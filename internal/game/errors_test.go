// internal/game/errors_test.go
package game

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blanksgame/blanks/internal/deck"
)

func TestAsErrorCoercion(t *testing.T) {
	assert.Equal(t, ErrLobbyFull, AsError(ErrLobbyFull))
	assert.Equal(t, ErrCzarChoice, AsError(fmt.Errorf("dispatch: %w", ErrCzarChoice)))

	up := &deck.UpstreamError{Deckcode: "CODE", StatusCode: 500, Err: errors.New("boom")}
	assert.Equal(t, KindUpstream, AsError(up).Kind)

	cache := &deck.CacheError{Op: "read", Path: "cache/CODE.json", Err: errors.New("io")}
	assert.Equal(t, KindFileSystem, AsError(cache).Kind)

	decode := &deck.DecodeError{Source: "CODE", Err: errors.New("bad json")}
	assert.Equal(t, KindJSON, AsError(decode).Kind)

	assert.Equal(t, KindDeck, AsError(deck.ErrNoBlackCards).Kind)
	assert.Equal(t, KindDeck, AsError(errors.New("anything else")).Kind)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ErrLobbyNotFound.Status())
	assert.Equal(t, http.StatusUnauthorized, ErrUnauthorized.Status())
	assert.Equal(t, http.StatusBadRequest, ErrLobbyFull.Status())
	assert.Equal(t, http.StatusBadRequest, JSONError("x").Status())
	assert.Equal(t, http.StatusServiceUnavailable, UpstreamError("x").Status())
	assert.Equal(t, http.StatusInternalServerError, ErrLobbyStart.Status())
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "LobbyFull", ErrLobbyFull.Error())
	assert.Equal(t, "Json: bad payload", JSONError("bad payload").Error())
}
