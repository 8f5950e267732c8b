// internal/game/submissions.go
package game

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/blanksgame/blanks/internal/deck"
)

// Submissions is the per-round ledger of played white cards. Reveal and
// ByIndex are parallel slices: Reveal[i] holds the cards of the submission at
// reveal position i, ByIndex[i] the player who made it. SubmittedByPlayer
// remembers which hand indexes each player spent so the dealer can discard
// them when the round resets.
type Submissions struct {
	Reveal            [][]deck.WhiteCard
	ByIndex           []uuid.UUID
	SubmittedByPlayer map[uuid.UUID][]int
}

// Push records a submission for player id. cards are the white cards in play
// order; indexes are the hand positions they came from.
func (s *Submissions) Push(id uuid.UUID, cards []deck.WhiteCard, indexes []int) {
	if s.SubmittedByPlayer == nil {
		s.SubmittedByPlayer = make(map[uuid.UUID][]int)
	}
	s.Reveal = append(s.Reveal, cards)
	s.ByIndex = append(s.ByIndex, id)
	s.SubmittedByPlayer[id] = indexes
}

// Clear drops all recorded submissions.
func (s *Submissions) Clear() {
	s.Reveal = nil
	s.ByIndex = nil
	s.SubmittedByPlayer = make(map[uuid.UUID][]int)
}

// Len returns the number of submissions recorded this round.
func (s *Submissions) Len() int {
	return len(s.Reveal)
}

// IsEmpty reports whether nobody has submitted this round.
func (s *Submissions) IsEmpty() bool {
	return len(s.Reveal) == 0
}

// HasSubmitted reports whether player id already played this round.
func (s *Submissions) HasSubmitted(id uuid.UUID) bool {
	_, ok := s.SubmittedByPlayer[id]
	return ok
}

// ShuffleTogether permutes Reveal and ByIndex with a single shared
// permutation, so a reveal position can still be traced back to its player
// while the on-screen order gives the czar no clue who played what.
func (s *Submissions) ShuffleTogether(r *rand.Rand) {
	r.Shuffle(len(s.Reveal), func(i, j int) {
		s.Reveal[i], s.Reveal[j] = s.Reveal[j], s.Reveal[i]
		s.ByIndex[i], s.ByIndex[j] = s.ByIndex[j], s.ByIndex[i]
	})
}
