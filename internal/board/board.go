// internal/board/board.go
//
// Static board topology for Snakes and Ladders.
// Responsibilities:
//   - Hold the board size and the snake (head → tail) / ladder (base → top) maps.
//   - Validate topology on construction so lookups can stay pure.
//   - Resolve a landing cell to its final cell.
//
// A Board is immutable once built and safe to share between goroutines.
package board

import (
	"errors"
	"fmt"
	"sort"
)

// Effect names the special behaviour of a cell.
type Effect string

const (
	EffectNone   Effect = "none"
	EffectSnake  Effect = "snake"
	EffectLadder Effect = "ladder"
)

var (
	ErrBoardTooSmall = errors.New("board size must be at least 2")
	ErrInvalidSnake  = errors.New("invalid snake")
	ErrInvalidLadder = errors.New("invalid ladder")
	ErrCellConflict  = errors.New("cell is both a snake head and a ladder base")
	ErrChainedEffect = errors.New("effect lands on another effect")
)

// Board is the topology of a game: cells 1..Size with snakes and ladders.
type Board struct {
	size    int
	snakes  map[int]int // head -> tail
	ladders map[int]int // base -> top
}

// New validates and builds a Board. The maps are copied.
//
// Validation rules:
//   - size ≥ 2.
//   - Every endpoint lies in [1, size].
//   - Snakes go down (tail < head), ladders go up (top > base).
//   - No cell is both a snake head and a ladder base.
//   - No destination is itself a snake head or ladder base.
func New(size int, snakes, ladders map[int]int) (*Board, error) {
	if size < 2 {
		return nil, ErrBoardTooSmall
	}
	b := &Board{
		size:    size,
		snakes:  make(map[int]int, len(snakes)),
		ladders: make(map[int]int, len(ladders)),
	}
	for head, tail := range snakes {
		if !b.inRange(head) || !b.inRange(tail) || tail >= head {
			return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidSnake, head, tail)
		}
		b.snakes[head] = tail
	}
	for base, top := range ladders {
		if !b.inRange(base) || !b.inRange(top) || top <= base {
			return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidLadder, base, top)
		}
		if _, ok := b.snakes[base]; ok {
			return nil, fmt.Errorf("%w: %d", ErrCellConflict, base)
		}
		b.ladders[base] = top
	}
	for head, tail := range b.snakes {
		if b.special(tail) {
			return nil, fmt.Errorf("%w: snake %d -> %d", ErrChainedEffect, head, tail)
		}
	}
	for base, top := range b.ladders {
		if b.special(top) {
			return nil, fmt.Errorf("%w: ladder %d -> %d", ErrChainedEffect, base, top)
		}
	}
	return b, nil
}

// MustNew is New for package-level literals; it panics on invalid input.
func MustNew(size int, snakes, ladders map[int]int) *Board {
	b, err := New(size, snakes, ladders)
	if err != nil {
		panic(err)
	}
	return b
}

// Size returns the number of cells; the last cell is the winning cell.
func (b *Board) Size() int { return b.size }

// HasSnake reports whether cell is a snake head.
func (b *Board) HasSnake(cell int) bool {
	_, ok := b.snakes[cell]
	return ok
}

// HasLadder reports whether cell is a ladder base.
func (b *Board) HasLadder(cell int) bool {
	_, ok := b.ladders[cell]
	return ok
}

// Resolve returns the snake tail for a snake head, the ladder top for a
// ladder base, otherwise cell. Snakes are checked first.
func (b *Board) Resolve(cell int) int {
	if tail, ok := b.snakes[cell]; ok {
		return tail
	}
	if top, ok := b.ladders[cell]; ok {
		return top
	}
	return cell
}

// Effect reports which effect Resolve applies at cell.
func (b *Board) Effect(cell int) Effect {
	switch {
	case b.HasSnake(cell):
		return EffectSnake
	case b.HasLadder(cell):
		return EffectLadder
	default:
		return EffectNone
	}
}

// Snakes returns a copy of the head → tail map.
func (b *Board) Snakes() map[int]int { return copyMap(b.snakes) }

// Ladders returns a copy of the base → top map.
func (b *Board) Ladders() map[int]int { return copyMap(b.ladders) }

// Cells lists every special cell in ascending order.
func (b *Board) Cells() []int {
	out := make([]int, 0, len(b.snakes)+len(b.ladders))
	for c := range b.snakes {
		out = append(out, c)
	}
	for c := range b.ladders {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

func (b *Board) inRange(cell int) bool { return cell >= 1 && cell <= b.size }

func (b *Board) special(cell int) bool { return b.HasSnake(cell) || b.HasLadder(cell) }

func copyMap(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
