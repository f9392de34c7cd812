package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/store"
)

type writeKind int

const (
	writePlayer writeKind = iota
	writeTurn
)

type writeOp struct {
	kind     writeKind
	player   game.Player
	next     string
	expected string // previous turn holder; empty for a blind write
}

func (op writeOp) String() string {
	if op.kind == writePlayer {
		return "write player " + op.player.ID
	}
	return "write turn " + op.next
}

// writer applies store writes in submission order on one goroutine.
// The queue is unbounded: submit never waits for the store, so a slow or
// failing store cannot stall a roll. Failures go to onErr.
type writer struct {
	gameID  string
	st      store.GameStore
	timeout time.Duration
	log     zerolog.Logger
	onErr   func(error)

	mu     sync.Mutex
	closed bool
	queue  []writeOp
	wake   chan struct{}
	done   chan struct{}
}

func newWriter(gameID string, st store.GameStore, timeout time.Duration, log zerolog.Logger, onErr func(error)) *writer {
	w := &writer{
		gameID:  gameID,
		st:      st,
		timeout: timeout,
		log:     log,
		onErr:   onErr,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) submit(ops ...writeOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.log.Warn().Int("ops", len(ops)).Msg("writer closed, dropping writes")
		return
	}
	w.queue = append(w.queue, ops...)
	w.mu.Unlock()
	w.signal()
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// close stops accepting writes and waits for queued ones to finish.
func (w *writer) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
	<-w.done
}

// next pops the oldest queued op. ok is false once the writer is closed
// and drained.
func (w *writer) next() (op writeOp, ok bool) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			op = w.queue[0]
			w.queue[0] = writeOp{}
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return op, true
		}
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return writeOp{}, false
		}
		<-w.wake
	}
}

func (w *writer) run() {
	defer close(w.done)
	for {
		op, ok := w.next()
		if !ok {
			return
		}
		if err := w.apply(op); err != nil {
			w.log.Warn().Err(err).Str("op", op.String()).Msg("store write failed")
			w.onErr(err)
		}
	}
}

func (w *writer) apply(op writeOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	switch op.kind {
	case writePlayer:
		err = w.st.WritePlayer(ctx, w.gameID, op.player)
	case writeTurn:
		if sw, ok := w.st.(store.TurnSwapper); ok && op.expected != "" {
			err = sw.SwapTurn(ctx, w.gameID, op.expected, op.next)
		} else {
			err = w.st.WriteTurn(ctx, w.gameID, op.next)
		}
	}
	if err == nil {
		return nil
	}
	// Both sentinels stay matchable, e.g. ErrWriteFailed and ErrTurnConflict.
	return fmt.Errorf("%w: %s: %w", store.ErrWriteFailed, op, err)
}
