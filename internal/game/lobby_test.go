// internal/game/lobby_test.go
package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blanksgame/blanks/internal/deck"
)

const eventWait = 3 * time.Second

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestStore(t *testing.T) *deck.Store {
	t.Helper()
	store, err := deck.NewStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	return store
}

// seedTestDeck caches a deck with one black card of the given field count and
// enough whites to refill several hands, and returns its info with the
// enabled flag already set.
func seedTestDeck(t *testing.T, store *deck.Store, fields int) deck.Info {
	t.Helper()
	d := &deck.Deck{Name: "test deck", Deckcode: "TESTD"}
	d.Blacks = []deck.BlackCard{{Text: "prompt", Fields: fields}}
	for i := 0; i < 40; i++ {
		d.Whites = append(d.Whites, deck.WhiteCard{Text: fmt.Sprintf("white %02d", i)})
	}
	require.NoError(t, store.Save(d))
	info := d.Info()
	info.Enabled = true
	return info
}

// newTestLobby seats the named players in order (the first is the host),
// enables a seeded deck, and strips every timer so tests drive each phase
// themselves.
func newTestLobby(t *testing.T, fields int, names ...string) (*Lobby, []uuid.UUID) {
	t.Helper()
	store := newTestStore(t)
	info := seedTestDeck(t, store, fields)

	ids := make([]uuid.UUID, len(names))
	for i := range names {
		ids[i] = uuid.New()
	}
	lob, err := NewLobby(uuid.New(), names[0], ids[0], "", store, testLogger())
	require.NoError(t, err)
	t.Cleanup(lob.Close)

	lob.GracePeriod = 50 * time.Millisecond
	lob.Data.Settings.Decks = []deck.Info{info}
	lob.Data.Settings.MaxSubmittingTimeSecs = nil
	lob.Data.Settings.MaxJudgingTimeSecs = nil
	lob.Data.Settings.WaitTimeSecs = nil

	for i, name := range names[1:] {
		require.NoError(t, lob.Join(name, ids[i+1], ""))
	}
	return lob, ids
}

// awaitEvent reads broadcasts until one of the wanted type arrives.
func awaitEvent(t *testing.T, sub *Subscription, want ServerEventType) ServerEvent {
	t.Helper()
	deadline := time.After(eventWait)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// nextPrivate blocks for the next private event queued for the consumer.
func nextPrivate(t *testing.T, q *PrivateQueue) PrivateServerEvent {
	t.Helper()
	deadline := time.After(eventWait)
	for {
		if ev, ok := q.TryNext(); ok {
			return ev
		}
		if q.Done() {
			t.Fatal("private queue closed while waiting for an event")
		}
		select {
		case <-q.Wake():
		case <-deadline:
			t.Fatal("timed out waiting for a private event")
		}
	}
}

func awaitPrivate(t *testing.T, q *PrivateQueue, want PrivateEventType) PrivateServerEvent {
	t.Helper()
	for {
		if ev := nextPrivate(t, q); ev.Type == want {
			return ev
		}
	}
}

func awaitQueueDone(t *testing.T, q *PrivateQueue) {
	t.Helper()
	require.Eventually(t, q.Done, eventWait, 5*time.Millisecond, "private queue never closed")
}

func awaitPhase(t *testing.T, lob *Lobby, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		lob.Mu.RLock()
		defer lob.Mu.RUnlock()
		return lob.Data.Phase == want
	}, eventWait, 5*time.Millisecond, "lobby never reached phase %s", want)
}

func seated(lob *Lobby, id uuid.UUID) bool {
	lob.Mu.RLock()
	defer lob.Mu.RUnlock()
	_, ok := lob.Data.Players[id]
	return ok
}

func TestNewLobbySeatsHost(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host")
	host := ids[0]

	lob.Mu.RLock()
	defer lob.Mu.RUnlock()
	require.Contains(t, lob.Data.Players, host)
	assert.True(t, lob.Data.Players[host].Info.IsHost)
	assert.Equal(t, []uuid.UUID{host}, lob.Data.CzarOrder)
	assert.Equal(t, PhaseLobbyOpen, lob.Data.Phase)
}

func TestJoinBroadcastsAndQueuesNewestFirst(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host")
	sub := lob.Bus.Subscribe()

	guest := uuid.New()
	require.NoError(t, lob.Join("guest", guest, ""))

	ev := awaitEvent(t, sub, EventPlayerJoin)
	data, ok := ev.Data.(PlayerJoinData)
	require.True(t, ok)
	assert.Equal(t, guest, data.PlayerID)
	assert.Equal(t, "guest", data.PlayerInfo.Name)
	assert.False(t, data.PlayerInfo.IsHost)

	lob.Mu.RLock()
	defer lob.Mu.RUnlock()
	assert.Equal(t, []uuid.UUID{guest, ids[0]}, lob.Data.CzarOrder)
}

func TestJoinRefusedWhenFullOrClosed(t *testing.T) {
	lob, _ := newTestLobby(t, 1, "host", "guest")
	lob.Data.Settings.MaxPlayers = 2
	assert.ErrorIs(t, lob.Join("third", uuid.New(), ""), ErrLobbyFull)

	lob.Data.Settings.MaxPlayers = 20
	lob.Data.Phase = PhaseSubmitting
	assert.ErrorIs(t, lob.Join("third", uuid.New(), ""), ErrLobbyClosed)
}

func TestRejoinChecksSecret(t *testing.T) {
	store := newTestStore(t)
	host := uuid.New()
	lob, err := NewLobby(uuid.New(), "host", host, "hunter2", store, testLogger())
	require.NoError(t, err)
	t.Cleanup(lob.Close)

	assert.ErrorIs(t, lob.Join("host", host, "wrong"), ErrUnauthorized)
	assert.ErrorIs(t, lob.Join("host", host, ""), ErrUnauthorized)
	require.NoError(t, lob.Join("host", host, "hunter2"))

	// A seat claimed without a secret can be reclaimed with anything.
	guest := uuid.New()
	require.NoError(t, lob.Join("guest", guest, ""))
	require.NoError(t, lob.Join("guest", guest, "whatever"))
}

func TestRejoinDuringGameKeepsSeat(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	lob.Data.Phase = PhaseSubmitting

	require.NoError(t, lob.Join("guest", ids[1], ""))
	assert.True(t, seated(lob, ids[1]))
}

func TestDisconnectThenReconnectKeepsSeat(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	guest := ids[1]
	lob.GracePeriod = time.Second

	lob.PlayerDisconnected(guest)

	lob.timersMu.Lock()
	_, pending := lob.disconnectTimers[guest]
	lob.timersMu.Unlock()
	require.True(t, pending)

	require.NoError(t, lob.Join("guest", guest, ""))

	lob.timersMu.Lock()
	_, pending = lob.disconnectTimers[guest]
	lob.timersMu.Unlock()
	assert.False(t, pending, "reconnect should cancel the grace timer")
	assert.True(t, seated(lob, guest))
}

func TestDisconnectGraceExpiryRemovesPlayer(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	guest := ids[1]
	lob.GracePeriod = 30 * time.Millisecond

	sub := lob.Bus.Subscribe()
	priv := lob.Bus.SubscribePrivate(guest)

	lob.PlayerDisconnected(guest)

	ev := awaitEvent(t, sub, EventPlayerRemove)
	assert.Equal(t, guest, ev.Data.(PlayerRemoveData).PlayerID)
	farewell := awaitPrivate(t, priv, EventTimeout)
	assert.Equal(t, EventTimeout, farewell.Type)
	awaitQueueDone(t, priv)
	assert.False(t, seated(lob, guest))
}

func TestDisconnectSecondTimerIgnored(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	lob.GracePeriod = time.Second

	lob.PlayerDisconnected(ids[1])
	lob.PlayerDisconnected(ids[1])
	lob.PlayerDisconnected(uuid.New())

	lob.timersMu.Lock()
	defer lob.timersMu.Unlock()
	assert.Len(t, lob.disconnectTimers, 1)
}

func TestHostGraceExpiryPromotesEarliestJoiner(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "g1", "g2")
	host, g1 := ids[0], ids[1]
	lob.GracePeriod = 30 * time.Millisecond
	sub := lob.Bus.Subscribe()

	lob.PlayerDisconnected(host)

	ev := awaitEvent(t, sub, EventPlayerRemove)
	assert.Equal(t, host, ev.Data.(PlayerRemoveData).PlayerID)
	promo := awaitEvent(t, sub, EventAssignHost)
	assert.Equal(t, g1, promo.Data.(AssignHostData).PlayerID)

	lob.Mu.RLock()
	defer lob.Mu.RUnlock()
	assert.True(t, lob.Data.Players[g1].Info.IsHost)
}

func TestLeavePromotesEarliestJoiner(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "g1", "g2")
	sub := lob.Bus.Subscribe()

	lob.Leave(ids[0])

	assert.Equal(t, ids[0], awaitEvent(t, sub, EventPlayerRemove).Data.(PlayerRemoveData).PlayerID)
	assert.Equal(t, ids[1], awaitEvent(t, sub, EventAssignHost).Data.(AssignHostData).PlayerID)
	assert.False(t, seated(lob, ids[0]))
}

func TestKick(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	host, guest := ids[0], ids[1]
	sub := lob.Bus.Subscribe()
	priv := lob.Bus.SubscribePrivate(guest)

	assert.ErrorIs(t, lob.Kick(guest, host), ErrUnauthorized)
	assert.ErrorIs(t, lob.Kick(host, host), ErrUnauthorized)

	require.NoError(t, lob.Kick(host, guest))
	assert.Equal(t, guest, awaitEvent(t, sub, EventPlayerRemove).Data.(PlayerRemoveData).PlayerID)
	assert.Equal(t, EventKick, awaitPrivate(t, priv, EventKick).Type)
	awaitQueueDone(t, priv)
	assert.False(t, seated(lob, guest))
}

func TestUpdateSettingsRequiresOpenLobbyHost(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	s := lob.Data.Settings
	assert.ErrorIs(t, lob.UpdateSettings(ids[1], s), ErrUnauthorized)

	lob.Data.Phase = PhaseSubmitting
	assert.ErrorIs(t, lob.UpdateSettings(ids[0], s), ErrUnauthorized)
}

func TestUpdateSettingsEvictsLongestSeatedFirst(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "g1", "g2", "g3")
	host, g1, g2, g3 := ids[0], ids[1], ids[2], ids[3]
	sub := lob.Bus.Subscribe()

	s := lob.Data.Settings
	s.MaxPlayers = 2
	require.NoError(t, lob.UpdateSettings(host, s))

	// The oldest non-host seats go first; the update lands after the kicks.
	assert.Equal(t, g1, awaitEvent(t, sub, EventPlayerRemove).Data.(PlayerRemoveData).PlayerID)
	assert.Equal(t, g2, awaitEvent(t, sub, EventPlayerRemove).Data.(PlayerRemoveData).PlayerID)
	updated := awaitEvent(t, sub, EventUpdateSettings)
	assert.Equal(t, 2, updated.Data.(UpdateSettingsData).Settings.MaxPlayers)

	assert.True(t, seated(lob, host))
	assert.True(t, seated(lob, g3))
	assert.False(t, seated(lob, g1))
	assert.False(t, seated(lob, g2))
}

func TestStartGameGuards(t *testing.T) {
	t.Run("host only", func(t *testing.T) {
		lob, ids := newTestLobby(t, 1, "host", "guest")
		assert.ErrorIs(t, lob.StartGame(ids[1]), ErrUnauthorized)
	})

	t.Run("needs two players", func(t *testing.T) {
		lob, ids := newTestLobby(t, 1, "host")
		assert.ErrorIs(t, lob.StartGame(ids[0]), ErrLobbyStart)
	})

	t.Run("needs playable decks", func(t *testing.T) {
		lob, ids := newTestLobby(t, 1, "host", "guest")
		lob.Data.Settings.Decks = nil
		assert.ErrorIs(t, lob.StartGame(ids[0]), ErrLobbyStart)
	})

	t.Run("refuses a second start", func(t *testing.T) {
		lob, ids := newTestLobby(t, 1, "host", "guest")
		require.NoError(t, lob.StartGame(ids[0]))
		assert.ErrorIs(t, lob.StartGame(ids[0]), ErrLobbyStart)
		awaitPhase(t, lob, PhaseSubmitting)
	})
}

func TestEndGame(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	host, guest := ids[0], ids[1]
	sub := lob.Bus.Subscribe()

	assert.ErrorIs(t, lob.EndGame(host), ErrLobbyStart, "no game to end yet")

	require.NoError(t, lob.StartGame(host))
	awaitEvent(t, sub, EventStartRound)

	assert.ErrorIs(t, lob.EndGame(guest), ErrUnauthorized)
	require.NoError(t, lob.EndGame(host))
	awaitEvent(t, sub, EventGameOver)
	awaitPhase(t, lob, PhaseGameOver)

	assert.ErrorIs(t, lob.EndGame(host), ErrLobbyStart, "task already reaped")
}

func TestLeaveMidGameAbortsGameOnce(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	sub := lob.Bus.Subscribe()

	require.NoError(t, lob.StartGame(ids[0]))
	awaitEvent(t, sub, EventStartRound)

	lob.Leave(ids[1])

	assert.Equal(t, ids[1], awaitEvent(t, sub, EventPlayerRemove).Data.(PlayerRemoveData).PlayerID)
	awaitEvent(t, sub, EventGameOver)
	awaitPhase(t, lob, PhaseGameOver)

	time.Sleep(50 * time.Millisecond)
	for _, ev := range drainBroadcast(sub) {
		assert.NotEqual(t, EventGameOver, ev.Type, "game over announced twice")
	}
}

func TestResetGameReturnsLobbyToOpen(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	host, guest := ids[0], ids[1]
	sub := lob.Bus.Subscribe()

	assert.ErrorIs(t, lob.ResetGame(host), ErrUnauthorized, "nothing to reset while open")

	require.NoError(t, lob.StartGame(host))
	awaitEvent(t, sub, EventStartRound)
	require.NoError(t, lob.EndGame(host))
	awaitEvent(t, sub, EventGameOver)

	assert.ErrorIs(t, lob.ResetGame(guest), ErrUnauthorized)
	require.NoError(t, lob.ResetGame(host))
	awaitEvent(t, sub, EventLobbyReset)

	lob.Mu.RLock()
	assert.Equal(t, PhaseLobbyOpen, lob.Data.Phase)
	assert.Zero(t, lob.Data.Round)
	assert.Nil(t, lob.Data.BlackCard)
	assert.Nil(t, lob.Data.CzarPick)
	assert.True(t, lob.Data.Submissions.IsEmpty())
	for _, p := range lob.Data.Players {
		assert.Zero(t, p.Info.Points)
		assert.False(t, p.Info.IsCzar)
		assert.Empty(t, p.Cards)
	}
	lob.Mu.RUnlock()

	// The lobby is immediately startable again.
	require.NoError(t, lob.StartGame(host))
	awaitPhase(t, lob, PhaseSubmitting)
}

func TestSubmitCardsValidation(t *testing.T) {
	lob, ids := newTestLobby(t, 2, "host", "guest")
	host, guest := ids[0], ids[1]

	lob.Data.Phase = PhaseSubmitting
	lob.Data.BlackCard = &deck.BlackCard{Text: "_ and _", Fields: 2}
	lob.Data.Players[host].Info.IsCzar = true
	lob.Data.Players[guest].Cards = []deck.WhiteCard{
		{Text: "w0"}, {Text: "w1"}, {Text: "w2"}, {Text: "w3"}, {Text: "w4"},
	}
	sub := lob.Bus.Subscribe()

	assert.ErrorIs(t, lob.SubmitCards(host, []int{0, 1}), ErrCardSubmission, "czar cannot submit")
	assert.ErrorIs(t, lob.SubmitCards(guest, []int{0}), ErrCardSubmission, "field count mismatch")
	assert.ErrorIs(t, lob.SubmitCards(guest, []int{1, 1}), ErrCardSubmission, "duplicate indexes")
	assert.ErrorIs(t, lob.SubmitCards(guest, []int{0, 9}), ErrCardSubmission, "index out of range")
	assert.ErrorIs(t, lob.SubmitCards(guest, []int{-1, 0}), ErrCardSubmission)
	assert.ErrorIs(t, lob.SubmitCards(uuid.New(), []int{0, 1}), ErrCardSubmission, "unknown player")

	require.NoError(t, lob.SubmitCards(guest, []int{3, 0}))
	ev := awaitEvent(t, sub, EventCardsSubmitted)
	assert.Equal(t, guest, ev.Data.(CardsSubmittedData).PlayerID)

	lob.Mu.RLock()
	require.True(t, lob.Data.Submissions.HasSubmitted(guest))
	assert.Equal(t, []deck.WhiteCard{{Text: "w3"}, {Text: "w0"}}, lob.Data.Submissions.Reveal[0])
	assert.Equal(t, []int{3, 0}, lob.Data.Submissions.SubmittedByPlayer[guest])
	lob.Mu.RUnlock()

	assert.ErrorIs(t, lob.SubmitCards(guest, []int{1, 2}), ErrCardSubmission, "one submission per round")

	lob.Data.Phase = PhaseJudging
	assert.ErrorIs(t, lob.SubmitCards(guest, []int{1, 2}), ErrCardSubmission, "submitting is over")
}

func TestSubmitCzarChoiceValidation(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "g1", "g2")
	host, g1, g2 := ids[0], ids[1], ids[2]

	lob.Data.Phase = PhaseJudging
	lob.Data.Players[host].Info.IsCzar = true
	lob.Data.Submissions.Push(g1, []deck.WhiteCard{{Text: "a"}}, []int{0})
	lob.Data.Submissions.Push(g2, []deck.WhiteCard{{Text: "b"}}, []int{0})

	assert.ErrorIs(t, lob.SubmitCzarChoice(g1, 0), ErrCzarChoice, "only the czar picks")
	assert.ErrorIs(t, lob.SubmitCzarChoice(host, 2), ErrCzarChoice, "index out of range")
	assert.ErrorIs(t, lob.SubmitCzarChoice(host, -1), ErrCzarChoice)
	assert.ErrorIs(t, lob.SubmitCzarChoice(uuid.New(), 0), ErrCzarChoice)

	require.NoError(t, lob.SubmitCzarChoice(host, 1))
	lob.Mu.RLock()
	require.NotNil(t, lob.Data.CzarPick)
	assert.Equal(t, 1, *lob.Data.CzarPick)
	lob.Mu.RUnlock()

	assert.ErrorIs(t, lob.SubmitCzarChoice(host, 0), ErrCzarChoice, "pick is final")

	lob.Data.CzarPick = nil
	lob.Data.Phase = PhaseSubmitting
	assert.ErrorIs(t, lob.SubmitCzarChoice(host, 0), ErrCzarChoice, "judging only")
}

func TestSnapshotForRespectsPhase(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	snap := lob.SnapshotFor(ids[1])
	assert.Equal(t, PhaseLobbyOpen, snap.Phase)
	assert.Len(t, snap.Players, 2)
	assert.Empty(t, snap.Hand)
}

func TestSendSnapshotQueuesClientLobby(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	priv := lob.Bus.SubscribePrivate(ids[1])

	lob.SendSnapshot(ids[1])

	ev := awaitPrivate(t, priv, EventClientLobby)
	snap, ok := ev.Data.(ClientLobby)
	require.True(t, ok)
	assert.Len(t, snap.Players, 2)
}

func TestCloseUnblocksConsumers(t *testing.T) {
	lob, ids := newTestLobby(t, 1, "host", "guest")
	sub := lob.Bus.Subscribe()
	priv := lob.Bus.SubscribePrivate(ids[1])

	lob.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
	awaitQueueDone(t, priv)

	// Closing twice must not blow up.
	lob.Close()
}
