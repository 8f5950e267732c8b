// internal/game/state.go
package game

import (
	"github.com/google/uuid"

	"github.com/blanksgame/blanks/internal/deck"
)

// Phase is the lobby lifecycle state. It serializes as the bare variant name.
type Phase string

const (
	// PhaseLobbyOpen accepts new joins; no game is running.
	PhaseLobbyOpen Phase = "LobbyOpen"
	// PhaseSubmitting waits for non-czar players to play white cards.
	PhaseSubmitting Phase = "Submitting"
	// PhaseJudging waits for the czar to pick a winning submission.
	PhaseJudging Phase = "Judging"
	// PhaseRoundFinished is the short pause after a round result.
	PhaseRoundFinished Phase = "RoundFinished"
	// PhaseGameOver is reached when the end condition fires or the game is
	// aborted; only a lobby reset leaves it.
	PhaseGameOver Phase = "GameOver"
)

// inGame reports whether a game task owns this phase.
func (p Phase) inGame() bool {
	return p != PhaseLobbyOpen && p != PhaseGameOver
}

// LobbyData is the mutable state of one lobby. All fields are guarded by the
// owning Lobby's mutex; methods assume the caller holds it.
type LobbyData struct {
	Settings    Settings
	Players     map[uuid.UUID]*Player
	CzarOrder   []uuid.UUID
	Round       int
	BlackCard   *deck.BlackCard
	Submissions Submissions
	CzarPick    *int
	Phase       Phase
}

func newLobbyData(settings Settings) LobbyData {
	return LobbyData{
		Settings: settings,
		Players:  make(map[uuid.UUID]*Player),
		Submissions: Submissions{
			SubmittedByPlayer: make(map[uuid.UUID][]int),
		},
		Phase: PhaseLobbyOpen,
	}
}

// ClientLobby is the personalized snapshot sent to one player, typically
// right after their socket (re)connects.
type ClientLobby struct {
	Players          map[uuid.UUID]PlayerInfo `json:"players"`
	Settings         Settings                 `json:"settings"`
	Phase            Phase                    `json:"phase"`
	Round            int                      `json:"round"`
	Hand             []deck.WhiteCard         `json:"hand"`
	BlackCard        *deck.BlackCard          `json:"black_card,omitempty"`
	RevealedCards    [][]deck.WhiteCard       `json:"revealed_cards"`
	SubmittedPlayers []uuid.UUID              `json:"submitted_players"`
	SelectedCards    []int                    `json:"selected_cards"`
	CzarPick         *int                     `json:"czar_pick,omitempty"`
	Winner           *uuid.UUID               `json:"winner,omitempty"`
}

// snapshotFor builds the view of the lobby playerID is allowed to see. Cards
// other players are still holding or hiding never leave the server:
//
//   - revealed_cards appear only once judging starts, after the shuffle,
//   - submitted_players (who already played) is visible only while submitting,
//   - selected_cards echoes only the caller's own hand indexes,
//   - hand and black_card are withheld while the lobby is open.
func (d *LobbyData) snapshotFor(playerID uuid.UUID) ClientLobby {
	snap := ClientLobby{
		Players:          make(map[uuid.UUID]PlayerInfo, len(d.Players)),
		Settings:         d.Settings,
		Phase:            d.Phase,
		Round:            d.Round,
		Hand:             []deck.WhiteCard{},
		RevealedCards:    [][]deck.WhiteCard{},
		SubmittedPlayers: []uuid.UUID{},
		SelectedCards:    []int{},
	}
	for id, p := range d.Players {
		snap.Players[id] = p.Info
	}

	if d.Phase != PhaseLobbyOpen {
		if p, ok := d.Players[playerID]; ok {
			snap.Hand = append(snap.Hand, p.Cards...)
		}
		snap.BlackCard = d.BlackCard
	}

	switch d.Phase {
	case PhaseJudging, PhaseRoundFinished, PhaseGameOver:
		for _, cards := range d.Submissions.Reveal {
			snap.RevealedCards = append(snap.RevealedCards, append([]deck.WhiteCard{}, cards...))
		}
	case PhaseSubmitting:
		snap.SubmittedPlayers = append(snap.SubmittedPlayers, d.Submissions.ByIndex...)
	}

	switch d.Phase {
	case PhaseSubmitting, PhaseJudging, PhaseRoundFinished:
		if indexes, ok := d.Submissions.SubmittedByPlayer[playerID]; ok {
			snap.SelectedCards = append(snap.SelectedCards, indexes...)
		}
	}

	if d.CzarPick != nil {
		pick := *d.CzarPick
		snap.CzarPick = &pick
		if pick >= 0 && pick < len(d.Submissions.ByIndex) {
			winner := d.Submissions.ByIndex[pick]
			snap.Winner = &winner
		}
	}

	return snap
}
