package session

import (
	"github.com/robalobadob/snakesladders/internal/dice"
	"github.com/robalobadob/snakesladders/internal/game"
)

// Phase is the session state machine position.
type Phase int

const (
	// PhaseWaitingForRoll: the turn holder may roll.
	PhaseWaitingForRoll Phase = iota
	// PhaseResolving: a roll is being resolved; other rolls are rejected.
	PhaseResolving
	// PhaseGameOver: a winner exists; terminal.
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingForRoll:
		return "waiting_for_roll"
	case PhaseResolving:
		return "resolving"
	case PhaseGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// EventKind tags an Event.
type EventKind string

const (
	// EventMoved: a local roll was resolved. Players, Roll and Move are set.
	EventMoved EventKind = "moved"
	// EventTurnChanged: PlayerID now holds the turn.
	EventTurnChanged EventKind = "turn_changed"
	// EventGameOver: PlayerID won.
	EventGameOver EventKind = "game_over"
	// EventPlayersSynced: the store delivered a player list; Players is the merged state.
	EventPlayersSynced EventKind = "players_synced"
	// EventStoreError: a write or subscription failed; Err is set.
	EventStoreError EventKind = "store_error"
)

// Event is what the presentation layer renders.
type Event struct {
	Kind     EventKind
	Players  []game.Player
	PlayerID string
	Roll     dice.Roll
	Move     *game.MoveResult
	Err      error
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	GameID string
	State  game.State
	Phase  Phase
	Winner string
}
