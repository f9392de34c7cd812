// internal/game/types.go
//
// Core type definitions for the Snakes and Ladders engine.
// Defines:
//   - Player: a participant's id, cell and six-roll streak.
//   - State: the ordered players plus the id of the turn holder.
//   - Rules: optional house rules.

package game

import "fmt"

// StartPosition is the cell every player starts on.
const StartPosition = 1

// Player is one participant. Field tags match the store schema
// games/{gameId}/players/{playerId} -> {position, consecutiveSixes}.
type Player struct {
	ID               string `json:"id"`
	Position         int    `json:"position"`
	ConsecutiveSixes int    `json:"consecutiveSixes"`
}

// NewPlayer returns a player on StartPosition.
func NewPlayer(id string) Player {
	return Player{ID: id, Position: StartPosition}
}

// State is the shared game state. Turn order is Players order.
type State struct {
	Players     []Player `json:"players"`
	CurrentTurn string   `json:"turn"`
}

// Rules toggles optional house rules. The zero value plays the plain game.
type Rules struct {
	// TripleSixForfeit: the third consecutive roll showing a six forfeits
	// the move and resets the streak.
	TripleSixForfeit bool
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{Players: ClonePlayers(s.Players), CurrentTurn: s.CurrentTurn}
}

// ClonePlayers copies a player slice.
func ClonePlayers(ps []Player) []Player {
	if ps == nil {
		return nil
	}
	return append([]Player(nil), ps...)
}

// Index returns the position of id in Players, or -1.
func (s State) Index(id string) int {
	return IndexOf(s.Players, id)
}

// IndexOf returns the position of id in players, or -1.
func IndexOf(players []Player, id string) int {
	for i, p := range players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Validate checks the state against a board of the given size:
// at least one player, unique non-empty ids, positions in [1, size],
// and a current turn held by one of the players.
func (s State) Validate(size int) error {
	if len(s.Players) == 0 {
		return ErrNoPlayers
	}
	seen := make(map[string]struct{}, len(s.Players))
	for _, p := range s.Players {
		if p.ID == "" {
			return fmt.Errorf("%w: empty id", ErrUnknownPlayer)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePlayer, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Position < 1 || p.Position > size {
			return fmt.Errorf("%w: %s at %d", ErrInvalidPosition, p.ID, p.Position)
		}
		if p.ConsecutiveSixes < 0 {
			return fmt.Errorf("%w: %s at %d", ErrInvalidStreak, p.ID, p.ConsecutiveSixes)
		}
	}
	if _, ok := seen[s.CurrentTurn]; !ok {
		return fmt.Errorf("%w: turn holder %q", ErrUnknownPlayer, s.CurrentTurn)
	}
	return nil
}
