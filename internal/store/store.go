// internal/store/store.go
//
// GameStore is the remote key-value store shared by every client of a game.
// Logical schema:
//
//	games/{gameId}/players/{playerId} -> {position, consecutiveSixes}
//	games/{gameId}/turn               -> playerId
//
// Implementations in this package: memory (single process) and SQLite
// (durable, shared between processes via the database file). The remote
// package implements the same contract over HTTP + websocket.

package store

import (
	"context"
	"errors"

	"github.com/robalobadob/snakesladders/internal/game"
)

var (
	// ErrNotFound is returned for a game id that was never initialized.
	ErrNotFound = errors.New("game not found")
	// ErrTurnConflict is returned by SwapTurn when the stored turn no
	// longer matches the expected holder.
	ErrTurnConflict = errors.New("turn changed concurrently")
	// ErrWriteFailed wraps any failed write reported asynchronously.
	ErrWriteFailed = errors.New("store write failed")
	// ErrListenFailed wraps errors delivered to subscription callbacks.
	ErrListenFailed = errors.New("store listen failed")
)

// Snapshot is the full state of one game.
type Snapshot struct {
	GameID  string        `json:"gameId"`
	Players []game.Player `json:"players"`
	Turn    string        `json:"turn"`
}

// PlayersFunc receives the full current player list on every change,
// or a non-nil err (wrapping ErrListenFailed) when delivery broke.
type PlayersFunc func(players []game.Player, err error)

// TurnFunc receives the turn holder id on every change, or an error.
type TurnFunc func(playerID string, err error)

// Subscription is a registered listener. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// GameStore is the contract the game session consumes.
//
// Callbacks run on a goroutine owned by the store, never on the
// caller's goroutine, and are coalesced to the latest value.
// ctx bounds the registration only; a subscription lives until Cancel.
type GameStore interface {
	// Initialize creates the game, overwriting any existing data.
	Initialize(ctx context.Context, gameID string, players []game.Player, firstTurn string) error

	// Load returns the current snapshot, or ErrNotFound.
	Load(ctx context.Context, gameID string) (Snapshot, error)

	// WritePlayer upserts one player's full record.
	WritePlayer(ctx context.Context, gameID string, p game.Player) error

	// WriteTurn sets the current turn unconditionally.
	WriteTurn(ctx context.Context, gameID, playerID string) error

	SubscribePlayers(ctx context.Context, gameID string, fn PlayersFunc) (Subscription, error)
	SubscribeTurn(ctx context.Context, gameID string, fn TurnFunc) (Subscription, error)
}

// TurnSwapper is implemented by stores that can write the turn only if
// it still equals expected. It returns ErrTurnConflict otherwise.
type TurnSwapper interface {
	SwapTurn(ctx context.Context, gameID, expected, next string) error
}
