package game

import "errors"

var (
	// ErrInvalidTurn: a roll was requested by someone other than the turn holder.
	ErrInvalidTurn = errors.New("not this player's turn")
	// ErrGameOver: a roll was requested after a winner exists.
	ErrGameOver = errors.New("game already over")
	// ErrUnknownPlayer: the id is not part of the game.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrRollInProgress: a roll arrived while another one is being resolved.
	ErrRollInProgress = errors.New("roll already in progress")

	ErrNoPlayers       = errors.New("game has no players")
	ErrDuplicatePlayer = errors.New("duplicate player id")
	ErrInvalidPosition = errors.New("player position out of range")
	ErrInvalidStreak   = errors.New("negative six streak")
)
