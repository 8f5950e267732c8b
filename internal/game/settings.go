// internal/game/settings.go
package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blanksgame/blanks/internal/deck"
)

// Default hand size dealt to every player each round.
const HandSize = 10

// SubmitTimeLimit is the submitting-phase time cap. It serializes as a
// single-key object, {"Constant": n} or {"Player": n}; Player scales the cap
// by the current player count. A bare number is accepted on decode as
// Constant for older clients.
type SubmitTimeLimit struct {
	PerPlayer bool
	Secs      int
}

// Constant builds a fixed n-second limit.
func Constant(secs int) *SubmitTimeLimit {
	return &SubmitTimeLimit{Secs: secs}
}

// PerPlayer builds an n-seconds-per-player limit.
func PerPlayer(secs int) *SubmitTimeLimit {
	return &SubmitTimeLimit{PerPlayer: true, Secs: secs}
}

// Duration returns the effective cap for the given player count.
func (l *SubmitTimeLimit) Duration(players int) time.Duration {
	secs := l.Secs
	if l.PerPlayer {
		secs *= players
	}
	return time.Duration(secs) * time.Second
}

func (l SubmitTimeLimit) MarshalJSON() ([]byte, error) {
	if l.PerPlayer {
		return json.Marshal(map[string]int{"Player": l.Secs})
	}
	return json.Marshal(map[string]int{"Constant": l.Secs})
}

func (l *SubmitTimeLimit) UnmarshalJSON(data []byte) error {
	var secs int
	if err := json.Unmarshal(data, &secs); err == nil {
		*l = SubmitTimeLimit{Secs: secs}
		return nil
	}

	var tagged map[string]int
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if secs, ok := tagged["Constant"]; ok {
		*l = SubmitTimeLimit{Secs: secs}
		return nil
	}
	if secs, ok := tagged["Player"]; ok {
		*l = SubmitTimeLimit{PerPlayer: true, Secs: secs}
		return nil
	}
	return fmt.Errorf("submit time limit: expected Constant or Player, got %s", data)
}

// Settings are the host-tunable lobby parameters. Nil pointer fields mean
// "no limit" for the caps and "no pause" for the wait.
type Settings struct {
	MaxRounds             *int             `json:"max_rounds"`
	MaxPoints             *int             `json:"max_points"`
	MaxSubmittingTimeSecs *SubmitTimeLimit `json:"max_submitting_time_secs"`
	MaxJudgingTimeSecs    *int             `json:"max_judging_time_secs"`
	WaitTimeSecs          *int             `json:"wait_time_secs"`
	MaxPlayers            int              `json:"max_players"`
	Decks                 []deck.Info      `json:"decks"`
}

// DefaultSettings returns the values a fresh lobby starts with.
func DefaultSettings() Settings {
	maxRounds := 10
	judging := 30
	wait := 5
	return Settings{
		MaxRounds:             &maxRounds,
		MaxSubmittingTimeSecs: Constant(90),
		MaxJudgingTimeSecs:    &judging,
		WaitTimeSecs:          &wait,
		MaxPlayers:            20,
		Decks:                 []deck.Info{},
	}
}

// EndConditionReached reports whether the game should stop: the round cap is
// hit, or some player has reached the points cap. The two caps are checked
// independently; either being unset disables that check.
func (s *Settings) EndConditionReached(round int, players map[uuid.UUID]*Player) bool {
	if s.MaxRounds != nil && round >= *s.MaxRounds {
		return true
	}
	if s.MaxPoints != nil {
		for _, p := range players {
			if p.Info.Points >= *s.MaxPoints {
				return true
			}
		}
	}
	return false
}

// SubmitTimeout returns the effective submitting cap for the given player
// count; ok is false when submissions may take unlimited time.
func (s *Settings) SubmitTimeout(playerCount int) (time.Duration, bool) {
	if s.MaxSubmittingTimeSecs == nil {
		return 0, false
	}
	return s.MaxSubmittingTimeSecs.Duration(playerCount), true
}

// JudgingTimeout returns the judging-phase cap; ok is false when the czar may
// take unlimited time.
func (s *Settings) JudgingTimeout() (time.Duration, bool) {
	if s.MaxJudgingTimeSecs == nil {
		return 0, false
	}
	return time.Duration(*s.MaxJudgingTimeSecs) * time.Second, true
}

// WaitTime returns the inter-round pause, zero when unset.
func (s *Settings) WaitTime() time.Duration {
	if s.WaitTimeSecs == nil {
		return 0
	}
	return time.Duration(*s.WaitTimeSecs) * time.Second
}
