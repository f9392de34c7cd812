package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/snakesladders/internal/game"
)

const waitFor = 2 * time.Second

// recorder collects subscription deliveries.
type recorder struct {
	mu      sync.Mutex
	players [][]game.Player
	turns   []string
	errs    []error
}

func (r *recorder) onPlayers(ps []game.Player, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.players = append(r.players, ps)
}

func (r *recorder) onTurn(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.turns = append(r.turns, id)
}

func (r *recorder) lastPlayers() []game.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.players) == 0 {
		return nil
	}
	return r.players[len(r.players)-1]
}

func (r *recorder) lastTurn() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.turns) == 0 {
		return ""
	}
	return r.turns[len(r.turns)-1]
}

func twoPlayers() []game.Player {
	return []game.Player{game.NewPlayer("p1"), game.NewPlayer("p2")}
}

// storeFactories runs contract tests against every implementation.
func storeFactories(t *testing.T) map[string]func(t *testing.T) GameStore {
	return map[string]func(t *testing.T) GameStore{
		"memory": func(t *testing.T) GameStore {
			m := NewMemoryStore()
			t.Cleanup(func() { _ = m.Close() })
			return m
		},
		"sqlite": func(t *testing.T) GameStore {
			db := openTestDB(t, filepath.Join(t.TempDir(), "games.db"))
			s := NewSQLStore(db, 20*time.Millisecond, zerolog.Nop())
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestStoreContract(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("load missing", func(t *testing.T) {
				_, err := open(t).Load(context.Background(), "nope")
				require.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("write to missing game", func(t *testing.T) {
				st := open(t)
				require.ErrorIs(t, st.WritePlayer(context.Background(), "nope", game.NewPlayer("p1")), ErrNotFound)
				require.ErrorIs(t, st.WriteTurn(context.Background(), "nope", "p1"), ErrNotFound)
			})

			t.Run("initialize and load", func(t *testing.T) {
				st := open(t)
				ctx := context.Background()
				require.NoError(t, st.Initialize(ctx, "g1", twoPlayers(), "p1"))

				snap, err := st.Load(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, "g1", snap.GameID)
				assert.Equal(t, twoPlayers(), snap.Players)
				assert.Equal(t, "p1", snap.Turn)
			})

			t.Run("initialize overwrites", func(t *testing.T) {
				st := open(t)
				ctx := context.Background()
				require.NoError(t, st.Initialize(ctx, "g1", twoPlayers(), "p1"))
				require.NoError(t, st.Initialize(ctx, "g1", []game.Player{game.NewPlayer("x")}, "x"))

				snap, err := st.Load(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, []game.Player{game.NewPlayer("x")}, snap.Players)
				assert.Equal(t, "x", snap.Turn)
			})

			t.Run("write player keeps order", func(t *testing.T) {
				st := open(t)
				ctx := context.Background()
				require.NoError(t, st.Initialize(ctx, "g1", twoPlayers(), "p1"))
				require.NoError(t, st.WritePlayer(ctx, "g1", game.Player{ID: "p1", Position: 14, ConsecutiveSixes: 1}))
				require.NoError(t, st.WritePlayer(ctx, "g1", game.Player{ID: "p3", Position: 1}))

				snap, err := st.Load(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, []game.Player{
					{ID: "p1", Position: 14, ConsecutiveSixes: 1},
					{ID: "p2", Position: 1},
					{ID: "p3", Position: 1},
				}, snap.Players)
			})

			t.Run("swap turn", func(t *testing.T) {
				st := open(t)
				ctx := context.Background()
				require.NoError(t, st.Initialize(ctx, "g1", twoPlayers(), "p1"))
				sw, ok := st.(TurnSwapper)
				require.True(t, ok)

				require.NoError(t, sw.SwapTurn(ctx, "g1", "p1", "p2"))
				require.ErrorIs(t, sw.SwapTurn(ctx, "g1", "p1", "p2"), ErrTurnConflict)
				require.ErrorIs(t, sw.SwapTurn(ctx, "nope", "p1", "p2"), ErrNotFound)

				snap, err := st.Load(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, "p2", snap.Turn)
			})

			t.Run("subscriptions converge", func(t *testing.T) {
				st := open(t)
				ctx := context.Background()
				require.NoError(t, st.Initialize(ctx, "g1", twoPlayers(), "p1"))

				rec := &recorder{}
				ps, err := st.SubscribePlayers(ctx, "g1", rec.onPlayers)
				require.NoError(t, err)
				defer ps.Cancel()
				ts, err := st.SubscribeTurn(ctx, "g1", rec.onTurn)
				require.NoError(t, err)
				defer ts.Cancel()

				require.Eventually(t, func() bool { return len(rec.lastPlayers()) == 2 }, waitFor, 5*time.Millisecond)
				require.Eventually(t, func() bool { return rec.lastTurn() == "p1" }, waitFor, 5*time.Millisecond)

				want := game.Player{ID: "p2", Position: 31}
				require.NoError(t, st.WritePlayer(ctx, "g1", want))
				require.NoError(t, st.WriteTurn(ctx, "g1", "p1"))
				require.NoError(t, st.WriteTurn(ctx, "g1", "p2"))

				require.Eventually(t, func() bool {
					ps := rec.lastPlayers()
					return len(ps) == 2 && ps[1] == want
				}, waitFor, 5*time.Millisecond)
				require.Eventually(t, func() bool { return rec.lastTurn() == "p2" }, waitFor, 5*time.Millisecond)
			})

			t.Run("subscribe before initialize", func(t *testing.T) {
				st := open(t)
				ctx := context.Background()
				rec := &recorder{}
				sub, err := st.SubscribeTurn(ctx, "later", rec.onTurn)
				require.NoError(t, err)
				defer sub.Cancel()

				require.NoError(t, st.Initialize(ctx, "later", twoPlayers(), "p2"))
				require.Eventually(t, func() bool { return rec.lastTurn() == "p2" }, waitFor, 5*time.Millisecond)
			})

			t.Run("cancel stops delivery", func(t *testing.T) {
				st := open(t)
				ctx := context.Background()
				require.NoError(t, st.Initialize(ctx, "g1", twoPlayers(), "p1"))
				rec := &recorder{}
				sub, err := st.SubscribeTurn(ctx, "g1", rec.onTurn)
				require.NoError(t, err)
				require.Eventually(t, func() bool { return rec.lastTurn() == "p1" }, waitFor, 5*time.Millisecond)

				sub.Cancel()
				sub.Cancel()
				require.NoError(t, st.WriteTurn(ctx, "g1", "p2"))
				time.Sleep(50 * time.Millisecond)
				assert.Equal(t, "p1", rec.lastTurn())
			})
		})
	}
}

func TestSQLStoreSeesOtherProcessWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	reader := NewSQLStore(openTestDB(t, path), 20*time.Millisecond, zerolog.Nop())
	defer reader.Close()
	writer := NewSQLStore(openTestDB(t, path), time.Hour, zerolog.Nop())
	defer writer.Close()

	require.NoError(t, writer.Initialize(ctx, "g1", twoPlayers(), "p1"))

	rec := &recorder{}
	sub, err := reader.SubscribePlayers(ctx, "g1", rec.onPlayers)
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, writer.WritePlayer(ctx, "g1", game.Player{ID: "p1", Position: 44}))
	require.Eventually(t, func() bool {
		ps := rec.lastPlayers()
		return len(ps) == 2 && ps[0].Position == 44
	}, waitFor, 5*time.Millisecond)
}

func TestHubSuppressesRepeats(t *testing.T) {
	h := newHub()
	defer h.closeAll()

	var mu sync.Mutex
	calls := 0
	sub := h.subscribeTurn("g", func(string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, "", false)
	defer sub.Cancel()

	h.publish(Snapshot{GameID: "g", Turn: "a"})
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls == 1 }, waitFor, time.Millisecond)

	h.publish(Snapshot{GameID: "g", Turn: "a"})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestHubFailReachesListeners(t *testing.T) {
	h := newHub()
	defer h.closeAll()

	rec := &recorder{}
	sub := h.subscribePlayers("g", rec.onPlayers, nil, false)
	defer sub.Cancel()

	h.fail("g", ErrListenFailed)
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.errs) == 1
	}, waitFor, time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.ErrorIs(t, rec.errs[0], ErrListenFailed)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, Migrate(db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM _migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}
