// internal/game/lobby.go
package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blanksgame/blanks/internal/auth"
	"github.com/blanksgame/blanks/internal/deck"
)

const (
	// DefaultGracePeriod is how long a disconnected player keeps their seat
	// before the lobby removes them. It also bounds how long a fresh socket
	// may take to send its join message.
	DefaultGracePeriod = 60 * time.Second

	// TimeoutInterval is the idle cutoff: sockets that stay silent this long
	// are dropped, and lobbies with no activity for this long are pruned.
	TimeoutInterval = 30 * time.Minute

	// minPlayerCount is the fewest seated players a game can start with.
	minPlayerCount = 2
)

// Lobby is one game room: the players in it, the lifecycle state machine and
// the running game task, if any. All mutations go through its methods, which
// take the state lock, apply the change, release it, and only then emit
// events, so no lock is ever held across a channel send.
type Lobby struct {
	ID  uuid.UUID
	Bus *Bus

	// GracePeriod is the per-lobby reconnect window. Defaults to
	// DefaultGracePeriod; tests shorten it.
	GracePeriod time.Duration

	// Mu guards Data.
	Mu   sync.RWMutex
	Data LobbyData

	decks *deck.Store
	log   logrus.FieldLogger
	rng   *rand.Rand

	activityMu   sync.Mutex
	lastActivity time.Time

	// taskMu guards the handle of the running game goroutine. taskStop
	// cancels it; taskDone closes once it has fully unwound.
	taskMu   sync.Mutex
	taskStop context.CancelFunc
	taskDone chan struct{}

	timersMu         sync.Mutex
	disconnectTimers map[uuid.UUID]*time.Timer

	// Capacity-1 wake channels. A send means "state you may be waiting on
	// changed"; receivers always re-check the state itself.
	submissionNotify chan struct{}
	czarNotify       chan struct{}
}

// NewLobby creates a lobby seeded with its host. The deck list starts as
// every deck already in the cache, all disabled.
func NewLobby(id uuid.UUID, hostName string, hostID uuid.UUID, hostSecret string, decks *deck.Store, logger logrus.FieldLogger) (*Lobby, error) {
	settings := DefaultSettings()
	infos, err := decks.ListInfo(nil)
	if err != nil {
		return nil, err
	}
	settings.Decks = infos

	var hash string
	if hostSecret != "" {
		hash, err = auth.HashSecret(hostSecret)
		if err != nil {
			return nil, err
		}
	}

	data := newLobbyData(settings)
	data.Players[hostID] = &Player{
		Info:       PlayerInfo{Name: hostName, IsHost: true},
		secretHash: hash,
	}
	data.CzarOrder = []uuid.UUID{hostID}

	return &Lobby{
		ID:               id,
		Bus:              NewBus(),
		GracePeriod:      DefaultGracePeriod,
		Data:             data,
		decks:            decks,
		log:              logger.WithField("lobby_id", id),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		lastActivity:     time.Now(),
		disconnectTimers: make(map[uuid.UUID]*time.Timer),
		submissionNotify: make(chan struct{}, 1),
		czarNotify:       make(chan struct{}, 1),
	}, nil
}

// touch bumps the lobby's idle clock.
func (l *Lobby) touch() {
	l.activityMu.Lock()
	l.lastActivity = time.Now()
	l.activityMu.Unlock()
}

// LastActivity returns when the lobby state last changed.
func (l *Lobby) LastActivity() time.Time {
	l.activityMu.Lock()
	defer l.activityMu.Unlock()
	return l.lastActivity
}

// Join seats a new player, or reclaims an existing seat when id is already
// known. Reclaiming requires the secret the seat was created with and cancels
// any pending disconnect timer; it emits nothing, because the other players
// never saw the seat go away.
func (l *Lobby) Join(name string, id uuid.UUID, secret string) error {
	l.Mu.Lock()
	if p, ok := l.Data.Players[id]; ok {
		if p.secretHash != "" {
			match, err := auth.VerifySecret(secret, p.secretHash)
			if err != nil || !match {
				l.Mu.Unlock()
				return ErrUnauthorized
			}
		}
		if !l.hasHostUnsafe() {
			p.Info.IsHost = true
		}
		rejoined := p.Info.Name
		l.Mu.Unlock()
		l.stopDisconnectTimer(id)
		l.touch()
		l.log.WithFields(logrus.Fields{"player_id": id, "name": rejoined}).Info("player reconnected")
		return nil
	}

	if l.Data.Phase != PhaseLobbyOpen {
		l.Mu.Unlock()
		return ErrLobbyClosed
	}
	if len(l.Data.Players) >= l.Data.Settings.MaxPlayers {
		l.Mu.Unlock()
		return ErrLobbyFull
	}

	var hash string
	if secret != "" {
		h, err := auth.HashSecret(secret)
		if err != nil {
			l.Mu.Unlock()
			return err
		}
		hash = h
	}
	p := &Player{
		Info:       PlayerInfo{Name: name, IsHost: len(l.Data.Players) == 0},
		secretHash: hash,
	}
	l.Data.Players[id] = p
	l.Data.CzarOrder = append([]uuid.UUID{id}, l.Data.CzarOrder...)
	info := p.Info
	l.Mu.Unlock()

	l.touch()
	l.log.WithFields(logrus.Fields{"player_id": id, "name": name}).Info("player joined")
	l.Bus.Broadcast(playerJoinEvent(id, info))
	return nil
}

// Leave removes the player immediately, skipping the reconnect grace.
func (l *Lobby) Leave(id uuid.UUID) {
	l.removePlayer(id, nil)
}

// Kick removes target from the lobby. Only the host may kick, and not
// themselves.
func (l *Lobby) Kick(by, target uuid.UUID) error {
	l.Mu.RLock()
	allowed := l.isHostUnsafe(by) && by != target
	l.Mu.RUnlock()
	if !allowed {
		return ErrUnauthorized
	}
	ev := kickEvent()
	l.removePlayer(target, &ev)
	return nil
}

// UpdateSettings replaces the lobby settings. If the new player cap is below
// the current headcount, the longest-seated players are evicted first; the
// caller is never evicted.
func (l *Lobby) UpdateSettings(by uuid.UUID, s Settings) error {
	l.Mu.Lock()
	if !l.isHostUnsafe(by) || l.Data.Phase != PhaseLobbyOpen {
		l.Mu.Unlock()
		return ErrUnauthorized
	}
	var evict []uuid.UUID
	if over := len(l.Data.Players) - s.MaxPlayers; over > 0 {
		for i := len(l.Data.CzarOrder) - 1; i >= 0 && len(evict) < over; i-- {
			if pid := l.Data.CzarOrder[i]; pid != by {
				evict = append(evict, pid)
			}
		}
	}
	l.Data.Settings = s
	l.Mu.Unlock()

	for _, pid := range evict {
		ev := kickEvent()
		l.removePlayer(pid, &ev)
	}
	l.touch()
	l.Bus.Broadcast(updateSettingsEvent(s))
	return nil
}

// AddDeck fetches a deck by code from the upstream API, caches it, and
// republishes the deck list.
func (l *Lobby) AddDeck(ctx context.Context, by uuid.UUID, code string) error {
	if err := l.requireHostOpen(by); err != nil {
		return err
	}
	d, err := l.decks.Fetch(ctx, code)
	if err != nil {
		return err
	}
	if err := l.decks.Save(d); err != nil {
		return err
	}
	l.log.WithField("deckcode", code).Info("deck added")
	return l.republishDecks(func(prior []deck.Info) ([]deck.Info, error) {
		return l.decks.ListInfo(prior)
	})
}

// RefreshDecks re-fetches every cached deck from upstream and republishes
// the deck list.
func (l *Lobby) RefreshDecks(ctx context.Context, by uuid.UUID) error {
	if err := l.requireHostOpen(by); err != nil {
		return err
	}
	return l.republishDecks(func(prior []deck.Info) ([]deck.Info, error) {
		return l.decks.RefreshAll(ctx, prior)
	})
}

func (l *Lobby) requireHostOpen(by uuid.UUID) error {
	l.Mu.RLock()
	defer l.Mu.RUnlock()
	if !l.isHostUnsafe(by) || l.Data.Phase != PhaseLobbyOpen {
		return ErrUnauthorized
	}
	return nil
}

// republishDecks rebuilds settings.Decks through rebuild, carrying over the
// enabled flags of the prior list, and broadcasts the result.
func (l *Lobby) republishDecks(rebuild func([]deck.Info) ([]deck.Info, error)) error {
	l.Mu.RLock()
	prior := append([]deck.Info(nil), l.Data.Settings.Decks...)
	l.Mu.RUnlock()

	infos, err := rebuild(prior)
	if err != nil {
		return err
	}

	l.Mu.Lock()
	l.Data.Settings.Decks = infos
	l.Mu.Unlock()
	l.touch()
	l.Bus.Broadcast(updateDecksEvent(infos))
	return nil
}

// StartGame spawns the game task. It requires the host, an open lobby, at
// least two players, and enabled decks holding at least one black and one
// white card between them.
func (l *Lobby) StartGame(by uuid.UUID) error {
	l.Mu.RLock()
	isHost := l.isHostUnsafe(by)
	open := l.Data.Phase == PhaseLobbyOpen
	enough := len(l.Data.Players) >= minPlayerCount
	infos := append([]deck.Info(nil), l.Data.Settings.Decks...)
	l.Mu.RUnlock()

	if !isHost {
		return ErrUnauthorized
	}
	if !open || !enough || !l.playableDecks(infos) {
		return ErrLobbyStart
	}

	l.taskMu.Lock()
	defer l.taskMu.Unlock()
	if l.taskStop != nil {
		return ErrLobbyStart
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.taskStop, l.taskDone = cancel, done
	go func() {
		defer func() {
			l.taskMu.Lock()
			if l.taskDone == done {
				l.taskStop, l.taskDone = nil, nil
			}
			l.taskMu.Unlock()
			cancel()
			close(done)
		}()
		l.runGame(ctx)
	}()
	l.touch()
	l.log.WithField("player_id", by).Info("game started")
	return nil
}

// playableDecks reports whether the enabled decks can seed a game.
func (l *Lobby) playableDecks(infos []deck.Info) bool {
	var black, white bool
	for _, d := range l.decks.LoadEnabled(infos) {
		if len(d.Blacks) > 0 {
			black = true
		}
		if len(d.Whites) > 0 {
			white = true
		}
	}
	return black && white
}

// EndGame aborts the running game task and moves the lobby to GameOver.
func (l *Lobby) EndGame(by uuid.UUID) error {
	if !l.isHost(by) {
		return ErrUnauthorized
	}
	l.taskMu.Lock()
	running := l.taskStop != nil
	l.taskMu.Unlock()
	if !running {
		return ErrLobbyStart
	}
	l.log.WithField("player_id", by).Info("game ended by host")
	l.forceGameOver()
	return nil
}

// ResetGame returns a finished lobby to LobbyOpen: round zero, empty hands,
// no points, no czar. Only the host may reset, and only after GameOver.
func (l *Lobby) ResetGame(by uuid.UUID) error {
	l.Mu.RLock()
	allowed := l.isHostUnsafe(by) && l.Data.Phase == PhaseGameOver
	l.Mu.RUnlock()
	if !allowed {
		return ErrUnauthorized
	}

	// Reap the finished task so the next start gets a clean slate.
	l.cancelTask()

	l.Mu.Lock()
	l.Data.Round = 0
	l.Data.Phase = PhaseLobbyOpen
	l.Data.BlackCard = nil
	l.Data.CzarPick = nil
	l.Data.Submissions.Clear()
	for _, p := range l.Data.Players {
		p.Info.IsCzar = false
		p.Info.Points = 0
		p.Cards = nil
	}
	l.Mu.Unlock()

	l.touch()
	l.Bus.Broadcast(lobbyResetEvent())
	return nil
}

// SubmitCards plays the white cards at the given hand indexes for this
// round. The count must match the black card's fields, the indexes must be
// distinct and in range, and czars and repeat submitters are refused.
func (l *Lobby) SubmitCards(id uuid.UUID, indexes []int) error {
	l.Mu.Lock()
	if l.Data.Phase != PhaseSubmitting {
		l.Mu.Unlock()
		return ErrCardSubmission
	}
	p, ok := l.Data.Players[id]
	if !ok || p.Info.IsCzar || l.Data.Submissions.HasSubmitted(id) {
		l.Mu.Unlock()
		return ErrCardSubmission
	}
	black := l.Data.BlackCard
	if black == nil || len(indexes) != black.Fields || !allUnique(indexes) {
		l.Mu.Unlock()
		return ErrCardSubmission
	}
	cards := make([]deck.WhiteCard, 0, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= len(p.Cards) {
			l.Mu.Unlock()
			return ErrCardSubmission
		}
		cards = append(cards, p.Cards[idx])
	}
	l.Data.Submissions.Push(id, cards, append([]int(nil), indexes...))
	l.Mu.Unlock()

	l.touch()
	l.notify(l.submissionNotify)
	l.Bus.Broadcast(cardsSubmittedEvent(id))
	return nil
}

// SubmitCzarChoice records the czar's pick of a reveal position. Valid only
// during judging, only from the czar, and only once per round.
func (l *Lobby) SubmitCzarChoice(id uuid.UUID, index int) error {
	l.Mu.Lock()
	p, ok := l.Data.Players[id]
	if !ok || !p.Info.IsCzar || l.Data.Phase != PhaseJudging || l.Data.CzarPick != nil ||
		index < 0 || index >= l.Data.Submissions.Len() {
		l.Mu.Unlock()
		return ErrCzarChoice
	}
	pick := index
	l.Data.CzarPick = &pick
	l.Mu.Unlock()

	l.touch()
	l.notify(l.czarNotify)
	return nil
}

// PlayerDisconnected starts the reconnect grace timer for a seated player.
// The player keeps their seat; if the timer fires before they rejoin, they
// are removed with a private Timeout. A second disconnect while a timer is
// already pending is ignored.
func (l *Lobby) PlayerDisconnected(id uuid.UUID) {
	l.Mu.RLock()
	_, seated := l.Data.Players[id]
	l.Mu.RUnlock()
	if !seated {
		return
	}

	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	if _, pending := l.disconnectTimers[id]; pending {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(l.GracePeriod, func() {
		l.timersMu.Lock()
		current := l.disconnectTimers[id] == timer
		if current {
			delete(l.disconnectTimers, id)
		}
		l.timersMu.Unlock()
		if !current {
			return
		}
		l.log.WithField("player_id", id).Info("grace period expired, removing player")
		ev := timeoutEvent()
		l.removePlayer(id, &ev)
	})
	l.disconnectTimers[id] = timer
	l.log.WithField("player_id", id).Info("player disconnected, grace timer started")
}

func (l *Lobby) stopDisconnectTimer(id uuid.UUID) {
	l.timersMu.Lock()
	if t, ok := l.disconnectTimers[id]; ok {
		t.Stop()
		delete(l.disconnectTimers, id)
	}
	l.timersMu.Unlock()
}

// removePlayer unseats id and emits the removal events in order: PlayerRemove
// to all, AssignHost if the host seat moved, then the private farewell, then
// the private queue close. Removal mid-game aborts the game.
func (l *Lobby) removePlayer(id uuid.UUID, private *PrivateServerEvent) {
	l.stopDisconnectTimer(id)

	l.Mu.Lock()
	p, ok := l.Data.Players[id]
	if !ok {
		l.Mu.Unlock()
		return
	}
	wasHost := p.Info.IsHost
	delete(l.Data.Players, id)
	order := l.Data.CzarOrder[:0]
	for _, pid := range l.Data.CzarOrder {
		if pid != id {
			order = append(order, pid)
		}
	}
	l.Data.CzarOrder = order
	var promoted *uuid.UUID
	if wasHost && len(l.Data.CzarOrder) > 0 {
		next := l.Data.CzarOrder[len(l.Data.CzarOrder)-1]
		if np, seated := l.Data.Players[next]; seated {
			np.Info.IsHost = true
			promoted = &next
		}
	}
	abort := l.Data.Phase.inGame()
	l.Mu.Unlock()

	l.touch()
	l.log.WithField("player_id", id).Info("player removed")
	l.Bus.Broadcast(playerRemoveEvent(id))
	if promoted != nil {
		l.Bus.Broadcast(assignHostEvent(*promoted))
	}
	if private != nil {
		l.Bus.EmitPrivate(id, *private)
	}
	l.Bus.RemovePrivate(id)

	if abort {
		l.forceGameOver()
	}
}

// forceGameOver cancels the game task, waits for it to unwind, and performs
// the GameOver transition unless the task already did.
func (l *Lobby) forceGameOver() {
	l.cancelTask()

	l.Mu.Lock()
	already := l.Data.Phase == PhaseGameOver
	if !already {
		l.Data.Phase = PhaseGameOver
	}
	l.Mu.Unlock()
	if !already {
		l.touch()
		l.Bus.Broadcast(gameOverEvent())
	}
}

// cancelTask stops the game goroutine and blocks until it has exited. A
// no-op when no task is running.
func (l *Lobby) cancelTask() {
	l.taskMu.Lock()
	stop, done := l.taskStop, l.taskDone
	l.taskStop, l.taskDone = nil, nil
	l.taskMu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
}

// SnapshotFor builds the personalized lobby view for playerID.
func (l *Lobby) SnapshotFor(playerID uuid.UUID) ClientLobby {
	l.Mu.RLock()
	defer l.Mu.RUnlock()
	return l.Data.snapshotFor(playerID)
}

// SendSnapshot queues a fresh ClientLobby snapshot on playerID's private
// channel.
func (l *Lobby) SendSnapshot(playerID uuid.UUID) {
	snap := l.SnapshotFor(playerID)
	l.touch()
	l.Bus.EmitPrivate(playerID, clientLobbyEvent(snap))
}

// Close tears the lobby down: the game task is cancelled, grace timers are
// stopped, and both bus surfaces shut so connected sockets unwind.
func (l *Lobby) Close() {
	l.cancelTask()

	l.timersMu.Lock()
	for id, t := range l.disconnectTimers {
		t.Stop()
		delete(l.disconnectTimers, id)
	}
	l.timersMu.Unlock()

	l.Bus.Close()
}

func (l *Lobby) setPhase(p Phase) {
	l.Mu.Lock()
	l.Data.Phase = p
	l.Mu.Unlock()
	l.touch()
}

// setPhaseAndEmit writes the phase, then broadcasts the event announcing it.
func (l *Lobby) setPhaseAndEmit(p Phase, ev ServerEvent) {
	l.setPhase(p)
	l.Bus.Broadcast(ev)
}

// notify pokes a capacity-1 wake channel without blocking.
func (l *Lobby) notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (l *Lobby) isHost(id uuid.UUID) bool {
	l.Mu.RLock()
	defer l.Mu.RUnlock()
	return l.isHostUnsafe(id)
}

// isHostUnsafe requires l.Mu to be held.
func (l *Lobby) isHostUnsafe(id uuid.UUID) bool {
	p, ok := l.Data.Players[id]
	return ok && p.Info.IsHost
}

// hasHostUnsafe requires l.Mu to be held.
func (l *Lobby) hasHostUnsafe() bool {
	for _, p := range l.Data.Players {
		if p.Info.IsHost {
			return true
		}
	}
	return false
}
