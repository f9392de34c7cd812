// internal/game/engine.go
//
// Pure move resolution for Snakes and Ladders.
// Responsibilities:
//   - Advance a player by a dice roll.
//   - Clamp overshoot to the last cell.
//   - Apply at most one snake or ladder.
//   - Track the six-roll streak and the optional triple-six forfeit.
//   - Rotate turns and detect the winner.
//
// Overshoot policy: a roll that would pass the last cell stops on it.
// The player wins when the final cell (after any snake/ladder) is the
// last cell.
package game

import (
	"fmt"

	"github.com/robalobadob/snakesladders/internal/board"
	"github.com/robalobadob/snakesladders/internal/dice"
)

// forfeitStreak is the six-roll streak that triggers TripleSixForfeit.
const forfeitStreak = 3

// Effect extends board effects with the house-rule forfeit.
type Effect string

const (
	EffectNone           = Effect(board.EffectNone)
	EffectSnake          = Effect(board.EffectSnake)
	EffectLadder         = Effect(board.EffectLadder)
	EffectForfeit Effect = "forfeit"
)

// MoveResult describes one resolved roll.
//
// Raw is From plus the roll and may exceed the board; Landed is Raw
// clamped to the board; Final is Landed after any snake or ladder.
type MoveResult struct {
	Player Player    `json:"player"`
	Roll   dice.Roll `json:"roll"`
	From   int       `json:"from"`
	Raw    int       `json:"raw"`
	Landed int       `json:"landed"`
	Final  int       `json:"final"`
	Effect Effect    `json:"effect"`
	Won    bool      `json:"won"`
}

// Move resolves roll for p on b. p is not modified; the updated record
// is MoveResult.Player.
func Move(b *board.Board, p Player, roll dice.Roll, rules Rules) MoveResult {
	res := MoveResult{Roll: roll, From: p.Position, Raw: p.Position + roll.Sum()}

	if roll.HasSix() {
		p.ConsecutiveSixes++
	} else {
		p.ConsecutiveSixes = 0
	}

	if rules.TripleSixForfeit && p.ConsecutiveSixes >= forfeitStreak {
		p.ConsecutiveSixes = 0
		res.Landed, res.Final = p.Position, p.Position
		res.Effect = EffectForfeit
		res.Player = p
		return res
	}

	res.Landed = clamp(res.Raw, b.Size())
	res.Final = b.Resolve(res.Landed)
	res.Effect = Effect(b.Effect(res.Landed))
	p.Position = res.Final
	res.Player = p
	res.Won = IsWin(b, p.Position)
	return res
}

// IsWin reports whether position is the last cell of b.
func IsWin(b *board.Board, position int) bool {
	return position == b.Size()
}

// NextPlayer returns the player after currentID in cyclic order.
func NextPlayer(players []Player, currentID string) (Player, error) {
	if len(players) == 0 {
		return Player{}, ErrNoPlayers
	}
	i := IndexOf(players, currentID)
	if i < 0 {
		return Player{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, currentID)
	}
	return players[(i+1)%len(players)], nil
}

// Winner returns the first player standing on the last cell.
func Winner(b *board.Board, players []Player) (Player, bool) {
	for _, p := range players {
		if IsWin(b, p.Position) {
			return p, true
		}
	}
	return Player{}, false
}

func clamp(cell, size int) int {
	if cell > size {
		return size
	}
	return cell
}
