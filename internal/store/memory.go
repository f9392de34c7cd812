// internal/store/memory.go
//
// In-memory implementation of GameStore.
// A lightweight store for single-process play, development and tests.
//
// Characteristics:
//   - Games keyed by id; players kept in insertion order (turn order).
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Subscribers are notified while the write lock is held, so every
//     subscriber observes writes in commit order.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/robalobadob/snakesladders/internal/game"
)

// record is one game's stored state.
type record struct {
	players []game.Player
	turn    string
}

func (r *record) snapshot(gameID string) Snapshot {
	return Snapshot{GameID: gameID, Players: game.ClonePlayers(r.players), Turn: r.turn}
}

// Memory is a map-based GameStore.
type Memory struct {
	mu    sync.RWMutex       // guards games
	games map[string]*record // keyed by game id
	hub   *hub
}

var (
	_ GameStore   = (*Memory)(nil)
	_ TurnSwapper = (*Memory)(nil)
)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *Memory {
	return &Memory{games: make(map[string]*record), hub: newHub()}
}

// Initialize replaces any existing game under gameID.
func (m *Memory) Initialize(ctx context.Context, gameID string, players []game.Player, firstTurn string) error {
	if gameID == "" {
		return fmt.Errorf("%w: empty game id", ErrNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := &record{players: game.ClonePlayers(players), turn: firstTurn}
	m.games[gameID] = rec
	m.hub.publish(rec.snapshot(gameID))
	return nil
}

// Load returns a copy of the stored game.
func (m *Memory) Load(ctx context.Context, gameID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.games[gameID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	return rec.snapshot(gameID), nil
}

// WritePlayer replaces the record with p.ID or appends it.
func (m *Memory) WritePlayer(ctx context.Context, gameID string, p game.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	if i := game.IndexOf(rec.players, p.ID); i >= 0 {
		rec.players[i] = p
	} else {
		rec.players = append(rec.players, p)
	}
	m.hub.publish(rec.snapshot(gameID))
	return nil
}

// WriteTurn sets the turn holder.
func (m *Memory) WriteTurn(ctx context.Context, gameID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	rec.turn = playerID
	m.hub.publish(rec.snapshot(gameID))
	return nil
}

// SwapTurn sets the turn to next only if it is still expected.
func (m *Memory) SwapTurn(ctx context.Context, gameID, expected, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	if rec.turn != expected {
		return fmt.Errorf("%w: expected %q, stored %q", ErrTurnConflict, expected, rec.turn)
	}
	rec.turn = next
	m.hub.publish(rec.snapshot(gameID))
	return nil
}

// SubscribePlayers registers fn. A game that does not exist yet is
// delivered once it is initialized.
func (m *Memory) SubscribePlayers(ctx context.Context, gameID string, fn PlayersFunc) (Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.games[gameID]
	var current []game.Player
	if ok {
		current = game.ClonePlayers(rec.players)
	}
	return m.hub.subscribePlayers(gameID, fn, current, ok), nil
}

// SubscribeTurn registers fn.
func (m *Memory) SubscribeTurn(ctx context.Context, gameID string, fn TurnFunc) (Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.games[gameID]
	var current string
	if ok {
		current = rec.turn
	}
	return m.hub.subscribeTurn(gameID, fn, current, ok), nil
}

// Close stops every subscription.
func (m *Memory) Close() error {
	m.hub.closeAll()
	return nil
}
