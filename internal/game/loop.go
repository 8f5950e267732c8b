// internal/game/loop.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blanksgame/blanks/internal/deck"
)

// runGame drives the round loop until the end condition fires or dealing
// fails. Cancellation means another goroutine owns the GameOver transition;
// every other exit performs it here, so the event fires exactly once.
func (l *Lobby) runGame(ctx context.Context) {
	if err := l.playRounds(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		l.log.WithError(err).Error("game loop aborted")
	}
	l.setPhaseAndEmit(PhaseGameOver, gameOverEvent())
	l.log.Info("game over")
}

func (l *Lobby) playRounds(ctx context.Context) error {
	if err := l.resetRound(); err != nil {
		return err
	}
	for {
		l.incrementRound()
		if err := l.assignCzar(); err != nil {
			return err
		}
		if err := l.collectSubmissions(ctx); err != nil {
			return err
		}

		l.Mu.RLock()
		empty := l.Data.Submissions.IsEmpty()
		l.Mu.RUnlock()
		if empty {
			// Nobody played; the round still counts.
			l.Bus.Broadcast(roundSkipEvent())
		} else if err := l.judge(ctx); err != nil {
			return err
		}

		if err := l.pause(ctx); err != nil {
			return err
		}
		if l.endReached() {
			return nil
		}
		if err := l.resetRound(); err != nil {
			return err
		}
	}
}

func (l *Lobby) incrementRound() {
	l.Mu.Lock()
	l.Data.Round++
	round := l.Data.Round
	l.Mu.Unlock()
	l.touch()
	l.log.WithField("round", round).Info("round started")
}

// assignCzar rotates the czar: the player at the back of the queue takes the
// seat and requeues at the front, a fresh black card is drawn, and the lobby
// enters Submitting before StartRound announces the round. An empty queue
// skips the rotation.
func (l *Lobby) assignCzar() error {
	l.Mu.RLock()
	infos := append([]deck.Info(nil), l.Data.Settings.Decks...)
	l.Mu.RUnlock()

	black, err := deck.RandomBlack(l.decks.LoadEnabled(infos))
	if err != nil {
		return err
	}

	l.Mu.Lock()
	if len(l.Data.CzarOrder) == 0 {
		l.Mu.Unlock()
		return nil
	}
	next := l.Data.CzarOrder[len(l.Data.CzarOrder)-1]
	l.Data.CzarOrder = l.Data.CzarOrder[:len(l.Data.CzarOrder)-1]
	for _, p := range l.Data.Players {
		p.Info.IsCzar = false
	}
	if p, ok := l.Data.Players[next]; ok {
		p.Info.IsCzar = true
	}
	l.Data.CzarOrder = append([]uuid.UUID{next}, l.Data.CzarOrder...)
	l.Data.BlackCard = &black
	l.Data.Phase = PhaseSubmitting
	l.Mu.Unlock()

	l.touch()
	l.Bus.Broadcast(startRoundEvent(next, black))
	return nil
}

// collectSubmissions waits until every non-czar player has played or the
// submit timeout expires, then shuffles the ledger so the reveal order gives
// the czar nothing to go on.
func (l *Lobby) collectSubmissions(ctx context.Context) error {
	l.Mu.RLock()
	timeout, hasTimeout := l.Data.Settings.SubmitTimeout(len(l.Data.Players))
	l.Mu.RUnlock()

	var timeoutC <-chan time.Time
	if hasTimeout {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

wait:
	for !l.allSubmitted() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeoutC:
			break wait
		case <-l.submissionNotify:
		}
	}

	l.Mu.Lock()
	l.Data.Submissions.ShuffleTogether(l.rng)
	l.Mu.Unlock()
	return nil
}

// judge reveals the shuffled submissions and waits for the czar's pick. A
// pick awards the winner a point and finishes the round; a judging timeout
// skips it.
func (l *Lobby) judge(ctx context.Context) error {
	l.Mu.RLock()
	reveal := make([][]deck.WhiteCard, 0, len(l.Data.Submissions.Reveal))
	for _, cards := range l.Data.Submissions.Reveal {
		reveal = append(reveal, append([]deck.WhiteCard{}, cards...))
	}
	timeout, hasTimeout := l.Data.Settings.JudgingTimeout()
	l.Mu.RUnlock()

	l.setPhaseAndEmit(PhaseJudging, revealCardsEvent(reveal))

	var timeoutC <-chan time.Time
	if hasTimeout {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

wait:
	for !l.czarPicked() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeoutC:
			break wait
		case <-l.czarNotify:
		}
	}

	l.Mu.Lock()
	var winner *uuid.UUID
	var pick int
	if l.Data.CzarPick != nil {
		pick = *l.Data.CzarPick
		if pick >= 0 && pick < len(l.Data.Submissions.ByIndex) {
			w := l.Data.Submissions.ByIndex[pick]
			if p, ok := l.Data.Players[w]; ok {
				p.Info.Points++
				winner = &w
			}
		}
	}
	l.Mu.Unlock()

	if winner == nil {
		l.Bus.Broadcast(roundSkipEvent())
		return nil
	}
	l.touch()
	l.log.WithFields(logrus.Fields{"winner": *winner, "pick": pick}).Info("round won")
	l.setPhaseAndEmit(PhaseRoundFinished, roundResultEvent(*winner, pick))
	return nil
}

// resetRound discards the white cards spent last round, clears the ledger
// and the board, and refills every hand.
func (l *Lobby) resetRound() error {
	l.Mu.Lock()
	for id, indexes := range l.Data.Submissions.SubmittedByPlayer {
		if p, ok := l.Data.Players[id]; ok {
			p.Cards = withoutIndexes(p.Cards, indexes)
		}
	}
	l.Data.Submissions.Clear()
	l.Data.CzarPick = nil
	l.Data.BlackCard = nil
	l.Mu.Unlock()
	l.touch()
	return l.dealWhiteCards()
}

// dealWhiteCards tops every short hand back up to HandSize from the enabled
// decks and tells each affected player their new hand.
func (l *Lobby) dealWhiteCards() error {
	l.Mu.RLock()
	infos := append([]deck.Info(nil), l.Data.Settings.Decks...)
	needs := make(map[uuid.UUID]int, len(l.Data.Players))
	for id, p := range l.Data.Players {
		if n := HandSize - len(p.Cards); n > 0 {
			needs[id] = n
		}
	}
	l.Mu.RUnlock()
	if len(needs) == 0 {
		return nil
	}

	enabled := l.decks.LoadEnabled(infos)
	drawn := make(map[uuid.UUID][]deck.WhiteCard, len(needs))
	for id, n := range needs {
		cards, err := deck.RandomWhites(enabled, n)
		if err != nil {
			return err
		}
		drawn[id] = cards
	}

	hands := make(map[uuid.UUID][]deck.WhiteCard, len(drawn))
	l.Mu.Lock()
	for id, cards := range drawn {
		p, ok := l.Data.Players[id]
		if !ok {
			continue
		}
		p.Cards = append(p.Cards, cards...)
		hands[id] = append([]deck.WhiteCard(nil), p.Cards...)
	}
	l.Mu.Unlock()
	l.touch()

	for id, hand := range hands {
		l.Bus.EmitPrivate(id, updateHandEvent(hand))
	}
	return nil
}

func (l *Lobby) pause(ctx context.Context) error {
	l.Mu.RLock()
	wait := l.Data.Settings.WaitTime()
	l.Mu.RUnlock()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Lobby) allSubmitted() bool {
	l.Mu.RLock()
	defer l.Mu.RUnlock()
	want := len(l.Data.Players) - 1
	if want < 0 {
		want = 0
	}
	return l.Data.Submissions.Len() >= want
}

func (l *Lobby) czarPicked() bool {
	l.Mu.RLock()
	defer l.Mu.RUnlock()
	return l.Data.CzarPick != nil
}

func (l *Lobby) endReached() bool {
	l.Mu.RLock()
	defer l.Mu.RUnlock()
	return l.Data.Settings.EndConditionReached(l.Data.Round, l.Data.Players)
}
