// internal/session/session.go
//
// GameSession orchestrates one game for one client.
// Responsibilities:
//   - Own the local GameState and the phase (waiting → resolving → waiting | game over).
//   - Accept roll requests only from the turn holder, one at a time.
//   - Resolve the move (dice → clamp → snake/ladder → win) via the game package.
//   - Write the mover's record and the next turn through to the GameStore.
//   - Apply store-delivered players/turn as commands on the same lock (last write wins).
//   - Skip echoes of its own writes: records of players this session rolls
//     for, and turn values those players handed over, are already applied
//     locally and may arrive late, after a newer local commit.
//   - Emit events for the presentation layer.
//
// Notes:
//   - Writes are fire-and-forget and ordered; failures are reported as
//     EventStoreError and never roll back local state.
//   - Turn writes are conditional when the store implements store.TurnSwapper.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/snakesladders/internal/board"
	"github.com/robalobadob/snakesladders/internal/dice"
	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/store"
)

// DefaultWriteTimeout bounds each store write.
const DefaultWriteTimeout = 5 * time.Second

// Config wires a Session. Store and GameID are required.
type Config struct {
	GameID       string
	Store        store.GameStore
	Board        *board.Board // nil: board.Classic()
	Dice         dice.Roller  // nil: crypto-seeded dice
	Rules        game.Rules
	Logger       zerolog.Logger
	WriteTimeout time.Duration
}

// Session is the single mutator of one game's local state.
type Session struct {
	id    string
	board *board.Board
	dice  dice.Roller
	rules game.Rules
	st    store.GameStore
	log   zerolog.Logger
	w     *writer

	timeout time.Duration

	mu     sync.Mutex // serialization point for local and remote commands
	state  game.State
	phase  Phase
	winner string
	driven map[string]bool // players this session has rolled for

	// emitMu keeps event delivery in commit order. Listeners run while it
	// is held, so they must not call RequestRoll synchronously.
	emitMu    sync.Mutex
	lmu       sync.RWMutex
	listeners []func(Event)

	subMu     sync.Mutex
	subs      []store.Subscription
	closeOnce sync.Once
}

// New validates initial and builds a Session. It does not touch the store;
// see Host, Join and Start.
func New(cfg Config, initial game.State) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.GameID == "" {
		return nil, errors.New("session: game id is required")
	}
	if cfg.Board == nil {
		cfg.Board = board.Classic()
	}
	if cfg.Dice == nil {
		d, err := dice.NewRandom()
		if err != nil {
			return nil, err
		}
		cfg.Dice = d
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if err := initial.Validate(cfg.Board.Size()); err != nil {
		return nil, err
	}

	s := &Session{
		id:    cfg.GameID,
		board: cfg.Board,
		dice:  cfg.Dice,
		rules: cfg.Rules,
		st:    cfg.Store,
		log:   cfg.Logger.With().Str("gameId", cfg.GameID).Logger(),
		state: initial.Clone(),
		phase: PhaseWaitingForRoll,

		driven:  make(map[string]bool),
		timeout: cfg.WriteTimeout,
	}
	if w, ok := game.Winner(s.board, s.state.Players); ok {
		s.phase, s.winner = PhaseGameOver, w.ID
	}
	s.w = newWriter(s.id, s.st, cfg.WriteTimeout, s.log, s.reportStoreError)
	return s, nil
}

// Host initializes the game in the store (overwriting it) and starts syncing.
func Host(ctx context.Context, cfg Config, players []game.Player, firstTurn string) (*Session, error) {
	s, err := New(cfg, game.State{Players: players, CurrentTurn: firstTurn})
	if err != nil {
		return nil, err
	}
	if err := s.st.Initialize(ctx, s.id, game.ClonePlayers(players), firstTurn); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: initialize: %w", store.ErrWriteFailed, err)
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.log.Info().Int("players", len(players)).Str("turn", firstTurn).Msg("game hosted")
	return s, nil
}

// Join loads an existing game from the store and starts syncing.
func Join(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	snap, err := cfg.Store.Load(ctx, cfg.GameID)
	if err != nil {
		return nil, err
	}
	s, err := New(cfg, game.State{Players: snap.Players, CurrentTurn: snap.Turn})
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.log.Info().Int("players", len(snap.Players)).Msg("game joined")
	return s, nil
}

// Start subscribes to remote players and turn. It returns once the store
// has delivered its current value on both, so a roll issued afterwards is
// never overwritten by the initial snapshot.
func (s *Session) Start(ctx context.Context) error {
	playersReady, turnReady := make(chan struct{}), make(chan struct{})
	ps, err := s.st.SubscribePlayers(ctx, s.id, signalFirst(playersReady, s.applyRemotePlayers))
	if err != nil {
		return fmt.Errorf("%w: players: %w", store.ErrListenFailed, err)
	}
	ts, err := s.st.SubscribeTurn(ctx, s.id, signalFirst(turnReady, s.applyRemoteTurn))
	if err != nil {
		ps.Cancel()
		return fmt.Errorf("%w: turn: %w", store.ErrListenFailed, err)
	}
	s.subMu.Lock()
	s.subs = append(s.subs, ps, ts)
	s.subMu.Unlock()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	for _, ready := range []chan struct{}{playersReady, turnReady} {
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.log.Warn().Msg("store sent no initial snapshot")
			return nil
		}
	}
	return nil
}

// signalFirst closes ready after fn has handled the first delivery.
func signalFirst[T any](ready chan struct{}, fn func(T, error)) func(T, error) {
	var once sync.Once
	return func(v T, err error) {
		fn(v, err)
		once.Do(func() { close(ready) })
	}
}

// Close cancels subscriptions and waits for queued writes to finish.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.subMu.Lock()
		for _, sub := range s.subs {
			sub.Cancel()
		}
		s.subs = nil
		s.subMu.Unlock()
		s.w.close()
	})
}

// OnEvent registers a listener for every subsequent event.
func (s *Session) OnEvent(fn func(Event)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// GameID returns the store key of this game.
func (s *Session) GameID() string { return s.id }

// Board returns the topology the session plays on.
func (s *Session) Board() *board.Board { return s.board }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{GameID: s.id, State: s.state.Clone(), Phase: s.phase, Winner: s.winner}
}

// RequestRoll rolls and moves playerID.
//
// Rejections (nothing mutated, nothing written):
//   - game.ErrGameOver once a winner exists.
//   - game.ErrRollInProgress while another roll is resolving.
//   - game.ErrUnknownPlayer for an id not in the game.
//   - game.ErrInvalidTurn when playerID is not the turn holder.
func (s *Session) RequestRoll(playerID string) (game.MoveResult, error) {
	s.mu.Lock()
	p, err := s.beginRollLocked(playerID)
	s.mu.Unlock()
	if err != nil {
		s.log.Debug().Err(err).Str("player", playerID).Msg("roll rejected")
		return game.MoveResult{}, err
	}

	res := game.Move(s.board, p, s.dice.Roll(), s.rules)

	s.mu.Lock()
	events, ops, err := s.commitLocked(res)
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	if err != nil {
		return game.MoveResult{}, err
	}

	s.log.Info().
		Str("player", playerID).
		Str("roll", res.Roll.String()).
		Int("from", res.From).
		Int("to", res.Final).
		Str("effect", string(res.Effect)).
		Bool("won", res.Won).
		Msg("move")

	s.w.submit(ops...)
	s.emit(events...)
	return res, nil
}

func (s *Session) beginRollLocked(playerID string) (game.Player, error) {
	switch s.phase {
	case PhaseGameOver:
		return game.Player{}, fmt.Errorf("%w: winner %s", game.ErrGameOver, s.winner)
	case PhaseResolving:
		return game.Player{}, game.ErrRollInProgress
	}
	i := s.state.Index(playerID)
	if i < 0 {
		return game.Player{}, fmt.Errorf("%w: %s", game.ErrUnknownPlayer, playerID)
	}
	if s.state.CurrentTurn != playerID {
		return game.Player{}, fmt.Errorf("%w: %s rolled, %s holds the turn", game.ErrInvalidTurn, playerID, s.state.CurrentTurn)
	}
	s.phase = PhaseResolving
	return s.state.Players[i], nil
}

// commitLocked applies a resolved move. A winner delivered by the store
// while the roll was resolving voids the move.
func (s *Session) commitLocked(res game.MoveResult) ([]Event, []writeOp, error) {
	id := res.Player.ID
	if s.phase == PhaseGameOver {
		return nil, nil, fmt.Errorf("%w: winner %s", game.ErrGameOver, s.winner)
	}

	s.state.Players[s.state.Index(id)] = res.Player
	s.driven[id] = true
	ops := []writeOp{{kind: writePlayer, player: res.Player}}
	move := res
	events := []Event{{
		Kind:     EventMoved,
		Players:  game.ClonePlayers(s.state.Players),
		PlayerID: id,
		Roll:     res.Roll,
		Move:     &move,
	}}

	if res.Won {
		s.phase, s.winner = PhaseGameOver, id
		events = append(events, Event{Kind: EventGameOver, PlayerID: id, Players: game.ClonePlayers(s.state.Players)})
		return events, ops, nil
	}

	next, err := game.NextPlayer(s.state.Players, id)
	if err != nil {
		s.phase = PhaseWaitingForRoll
		return nil, nil, err
	}
	s.state.CurrentTurn = next.ID
	s.phase = PhaseWaitingForRoll
	ops = append(ops, writeOp{kind: writeTurn, next: next.ID, expected: id})
	events = append(events, Event{Kind: EventTurnChanged, PlayerID: next.ID})
	return events, ops, nil
}

// applyRemotePlayers merges a store-delivered player list by id, keeping
// the local turn order. Records outside the board are ignored, and so are
// records of players this session drives: the local copy is never older.
func (s *Session) applyRemotePlayers(players []game.Player, err error) {
	if err != nil {
		s.reportListenError("players", err)
		return
	}

	s.mu.Lock()
	for _, rp := range players {
		if rp.ID == "" || rp.Position < 1 || rp.Position > s.board.Size() {
			s.log.Warn().Str("player", rp.ID).Int("position", rp.Position).Msg("ignoring invalid remote player")
			continue
		}
		if i := s.state.Index(rp.ID); i >= 0 {
			if s.driven[rp.ID] {
				continue
			}
			s.state.Players[i] = rp
		} else {
			s.state.Players = append(s.state.Players, rp)
		}
	}
	events := []Event{{Kind: EventPlayersSynced, Players: game.ClonePlayers(s.state.Players)}}
	if s.phase != PhaseGameOver {
		if w, ok := game.Winner(s.board, s.state.Players); ok {
			s.phase, s.winner = PhaseGameOver, w.ID
			events = append(events, Event{Kind: EventGameOver, PlayerID: w.ID, Players: game.ClonePlayers(s.state.Players)})
			s.log.Info().Str("winner", w.ID).Msg("game over (remote)")
		}
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	s.emit(events...)
}

// applyRemoteTurn adopts a store-delivered turn holder. A turn is handed
// over by the previous holder, so a value whose previous holder this
// session drives is an echo of a local write and is skipped.
func (s *Session) applyRemoteTurn(playerID string, err error) {
	if err != nil {
		s.reportListenError("turn", err)
		return
	}

	s.mu.Lock()
	if s.phase == PhaseGameOver || playerID == s.state.CurrentTurn {
		s.mu.Unlock()
		return
	}
	i := s.state.Index(playerID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn().Str("player", playerID).Msg("ignoring remote turn for unknown player")
		return
	}
	n := len(s.state.Players)
	if prev := s.state.Players[(i+n-1)%n].ID; s.driven[prev] {
		s.mu.Unlock()
		s.log.Debug().Str("player", playerID).Str("from", prev).Msg("skipping echo of local turn write")
		return
	}
	s.state.CurrentTurn = playerID
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	s.emit(Event{Kind: EventTurnChanged, PlayerID: playerID})
}

func (s *Session) reportListenError(what string, err error) {
	if !errors.Is(err, store.ErrListenFailed) {
		err = fmt.Errorf("%w: %s: %w", store.ErrListenFailed, what, err)
	}
	s.log.Warn().Err(err).Msg("store listener error")
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.emit(Event{Kind: EventStoreError, Err: err})
}

// reportStoreError runs on the writer goroutine.
func (s *Session) reportStoreError(err error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.emit(Event{Kind: EventStoreError, Err: err})
}

func (s *Session) emit(events ...Event) {
	s.lmu.RLock()
	ls := make([]func(Event), len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.RUnlock()
	for _, ev := range events {
		for _, fn := range ls {
			fn(ev)
		}
	}
}
