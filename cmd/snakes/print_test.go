package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robalobadob/snakesladders/internal/board"
	"github.com/robalobadob/snakesladders/internal/dice"
	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/session"
)

func TestDescribeMove(t *testing.T) {
	r := dice.Roll{First: 1, Second: 2}
	p := game.Player{ID: "p1"}
	assert.Equal(t, "p1 rolled 1+2: 1 -> 4, ladder up to 14",
		describeMove(game.MoveResult{Player: p, Roll: r, From: 1, Landed: 4, Final: 14, Effect: game.EffectLadder}))
	assert.Equal(t, "p1 rolled 1+2: 33 -> 36, snake down to 6",
		describeMove(game.MoveResult{Player: p, Roll: r, From: 33, Landed: 36, Final: 6, Effect: game.EffectSnake}))
	assert.Equal(t, "p1 rolled 1+2: 40 -> 43",
		describeMove(game.MoveResult{Player: p, Roll: r, From: 40, Landed: 43, Final: 43, Effect: game.EffectNone}))
	assert.Contains(t, describeMove(game.MoveResult{Player: p, Roll: r, Effect: game.EffectForfeit}), "forfeited")
}

func TestPrinterSkipsUnchangedPositions(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "p2")
	players := []game.Player{{ID: "p1", Position: 14}, {ID: "p2", Position: 1}}

	p.event(session.Event{Kind: session.EventPlayersSynced, Players: players})
	p.event(session.Event{Kind: session.EventPlayersSynced, Players: players})
	p.event(session.Event{Kind: session.EventTurnChanged, PlayerID: "p2"})

	assert.Equal(t, "  [p1=14 p2=1]\nyour turn (Enter)\n", buf.String())
}

func TestPrinterListsBoard(t *testing.T) {
	var buf bytes.Buffer
	newPrinter(&buf, "").board(board.MustNew(10, map[int]int{7: 2}, map[int]int{3: 8}))
	assert.Equal(t, "board: 10 cells\n    3 ladder -> 8\n    7 snake  -> 2\n", buf.String())
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitIDs(" a, ,b,"))
	assert.Nil(t, splitIDs(""))
}
