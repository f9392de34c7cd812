package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/robalobadob/snakesladders/internal/board"
	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/session"
)

// printer writes session events as plain text lines.
type printer struct {
	w    io.Writer
	me   string // empty in hot seat
	last string
}

func newPrinter(w io.Writer, me string) *printer { return &printer{w: w, me: me} }

// board prints one line per snake and ladder.
func (p *printer) board(b *board.Board) {
	fmt.Fprintf(p.w, "board: %d cells\n", b.Size())
	for _, c := range b.Cells() {
		fmt.Fprintf(p.w, "  %3d %-6s -> %d\n", c, b.Effect(c), b.Resolve(c))
	}
}

func (p *printer) status(snap session.Snapshot) {
	p.positions(snap.State.Players)
	if snap.Phase == session.PhaseGameOver {
		fmt.Fprintf(p.w, "%s has already won\n", snap.Winner)
		return
	}
	p.turn(snap.State.CurrentTurn)
}

func (p *printer) event(ev session.Event) {
	switch ev.Kind {
	case session.EventMoved:
		fmt.Fprintln(p.w, describeMove(*ev.Move))
		p.positions(ev.Players)
	case session.EventTurnChanged:
		p.turn(ev.PlayerID)
	case session.EventPlayersSynced:
		p.positions(ev.Players)
	case session.EventGameOver:
		p.positions(ev.Players)
		fmt.Fprintf(p.w, "%s wins!\n", ev.PlayerID)
	case session.EventStoreError:
		fmt.Fprintf(p.w, "store error: %v\n", ev.Err)
	}
}

func (p *printer) turn(id string) {
	switch {
	case p.me == "":
		fmt.Fprintf(p.w, "%s to roll (Enter)\n", id)
	case id == p.me:
		fmt.Fprintln(p.w, "your turn (Enter)")
	default:
		fmt.Fprintf(p.w, "waiting for %s\n", id)
	}
}

// positions prints the board line unless it is unchanged.
func (p *printer) positions(players []game.Player) {
	parts := make([]string, len(players))
	for i, pl := range players {
		parts[i] = fmt.Sprintf("%s=%d", pl.ID, pl.Position)
	}
	line := strings.Join(parts, " ")
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintf(p.w, "  [%s]\n", line)
}

func describeMove(m game.MoveResult) string {
	head := fmt.Sprintf("%s rolled %s", m.Player.ID, m.Roll)
	switch m.Effect {
	case game.EffectForfeit:
		return head + ": third six in a row, move forfeited"
	case game.EffectSnake:
		return fmt.Sprintf("%s: %d -> %d, snake down to %d", head, m.From, m.Landed, m.Final)
	case game.EffectLadder:
		return fmt.Sprintf("%s: %d -> %d, ladder up to %d", head, m.From, m.Landed, m.Final)
	default:
		return fmt.Sprintf("%s: %d -> %d", head, m.From, m.Final)
	}
}
