package store

import (
	"slices"
	"sync"

	"github.com/robalobadob/snakesladders/internal/game"
)

// mailbox delivers the latest value to one callback on its own goroutine.
// Values published while the callback is busy are coalesced: only the
// newest is delivered next.
type mailbox[T any] struct {
	mu      sync.Mutex
	val     T
	err     error
	pending bool

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

func newMailbox[T any](fn func(T, error)) *mailbox[T] {
	m := &mailbox[T]{wake: make(chan struct{}, 1), quit: make(chan struct{})}
	go m.run(fn)
	return m
}

func (m *mailbox[T]) put(v T, err error) {
	m.mu.Lock()
	m.val, m.err, m.pending = v, err, true
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) run(fn func(T, error)) {
	for {
		select {
		case <-m.quit:
			return
		case <-m.wake:
		}
		m.mu.Lock()
		v, err, ok := m.val, m.err, m.pending
		m.pending = false
		m.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case <-m.quit:
			return
		default:
		}
		fn(v, err)
	}
}

func (m *mailbox[T]) stop() { m.once.Do(func() { close(m.quit) }) }

// hub fans out game snapshots to subscribers and suppresses repeats,
// so listeners only fire on change.
type hub struct {
	mu      sync.Mutex
	nextID  int
	players map[string]map[int]*mailbox[[]game.Player]
	turns   map[string]map[int]*mailbox[string]

	lastPlayers map[string][]game.Player
	lastTurn    map[string]string
}

func newHub() *hub {
	return &hub{
		players:     make(map[string]map[int]*mailbox[[]game.Player]),
		turns:       make(map[string]map[int]*mailbox[string]),
		lastPlayers: make(map[string][]game.Player),
		lastTurn:    make(map[string]string),
	}
}

type cancelFunc func()

func (c cancelFunc) Cancel() { c() }

// subscribePlayers registers fn; when known, current is delivered first.
func (h *hub) subscribePlayers(gameID string, fn PlayersFunc, current []game.Player, known bool) Subscription {
	mb := newMailbox(func(ps []game.Player, err error) { fn(ps, err) })

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.players[gameID] == nil {
		h.players[gameID] = make(map[int]*mailbox[[]game.Player])
	}
	h.players[gameID][id] = mb
	if known {
		if _, seen := h.lastPlayers[gameID]; !seen {
			h.lastPlayers[gameID] = game.ClonePlayers(current)
		}
		mb.put(game.ClonePlayers(current), nil)
	}
	h.mu.Unlock()

	return cancelFunc(func() {
		h.mu.Lock()
		delete(h.players[gameID], id)
		if len(h.players[gameID]) == 0 {
			delete(h.players, gameID)
		}
		h.mu.Unlock()
		mb.stop()
	})
}

func (h *hub) subscribeTurn(gameID string, fn TurnFunc, current string, known bool) Subscription {
	mb := newMailbox(func(turn string, err error) { fn(turn, err) })

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.turns[gameID] == nil {
		h.turns[gameID] = make(map[int]*mailbox[string])
	}
	h.turns[gameID][id] = mb
	if known {
		if _, seen := h.lastTurn[gameID]; !seen {
			h.lastTurn[gameID] = current
		}
		mb.put(current, nil)
	}
	h.mu.Unlock()

	return cancelFunc(func() {
		h.mu.Lock()
		delete(h.turns[gameID], id)
		if len(h.turns[gameID]) == 0 {
			delete(h.turns, gameID)
		}
		h.mu.Unlock()
		mb.stop()
	})
}

// publish delivers snap to every subscriber of its game, skipping parts
// that did not change since the last publish.
func (h *hub) publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.lastPlayers[snap.GameID]; !ok || !slices.Equal(prev, snap.Players) {
		h.lastPlayers[snap.GameID] = game.ClonePlayers(snap.Players)
		for _, mb := range h.players[snap.GameID] {
			mb.put(game.ClonePlayers(snap.Players), nil)
		}
	}
	if prev, ok := h.lastTurn[snap.GameID]; !ok || prev != snap.Turn {
		h.lastTurn[snap.GameID] = snap.Turn
		for _, mb := range h.turns[snap.GameID] {
			mb.put(snap.Turn, nil)
		}
	}
}

// fail reports err to every subscriber of gameID.
func (h *hub) fail(gameID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, mb := range h.players[gameID] {
		mb.put(nil, err)
	}
	for _, mb := range h.turns[gameID] {
		mb.put("", err)
	}
}

// watched lists game ids that currently have subscribers.
func (h *hub) watched() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	for id := range h.players {
		seen[id] = struct{}{}
	}
	for id := range h.turns {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// closeAll stops every mailbox.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.players {
		for _, mb := range subs {
			mb.stop()
		}
	}
	for _, subs := range h.turns {
		for _, mb := range subs {
			mb.stop()
		}
	}
	h.players = make(map[string]map[int]*mailbox[[]game.Player])
	h.turns = make(map[string]map[int]*mailbox[string])
}
