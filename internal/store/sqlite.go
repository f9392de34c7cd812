// internal/store/sqlite.go
//
// SQLite-backed GameStore.
// Responsibilities:
//   - Persist games (turn + version) and players (ordered by seq).
//   - Bump games.version on every write so watchers can detect change.
//   - Serve subscriptions from local writes immediately and from a poller
//     that picks up writes made by other processes on the same file.
//
// Schema lives in assets/migrations and is applied by Migrate.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/snakesladders/internal/game"
)

// DefaultPollInterval is how often watched games are checked for
// writes from other processes.
const DefaultPollInterval = 500 * time.Millisecond

// SQL is a GameStore over a *sql.DB opened with the sqlite3 driver.
type SQL struct {
	db  *sql.DB
	log zerolog.Logger
	hub *hub

	// wmu serializes writes and their publish so subscribers see commit order.
	wmu sync.Mutex

	vmu      sync.Mutex
	versions map[string]int64 // last version published per watched game

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

var (
	_ GameStore   = (*SQL)(nil)
	_ TurnSwapper = (*SQL)(nil)
)

// NewSQLStore wraps db and starts the change poller. interval ≤ 0 uses
// DefaultPollInterval. Call Close to stop the poller.
func NewSQLStore(db *sql.DB, interval time.Duration, log zerolog.Logger) *SQL {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &SQL{
		db:       db,
		log:      log.With().Str("component", "sqlstore").Logger(),
		hub:      newHub(),
		versions: make(map[string]int64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.poll(interval)
	return s
}

// Initialize deletes any existing game under gameID and inserts a fresh one.
func (s *SQL) Initialize(ctx context.Context, gameID string, players []game.Player, firstTurn string) error {
	if gameID == "" {
		return fmt.Errorf("%w: empty game id", ErrNotFound)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM games WHERE id=?`, gameID).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read game: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE game_id=?`, gameID); err != nil {
		return fmt.Errorf("clear players: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id=?`, gameID); err != nil {
		return fmt.Errorf("clear game: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO games (id, turn, version, created_at, updated_at) VALUES (?,?,?,?,?)`,
		gameID, firstTurn, version+1, now, now,
	); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for i, p := range players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO players (game_id, id, seq, position, consecutive_sixes) VALUES (?,?,?,?,?)`,
			gameID, p.ID, i, p.Position, p.ConsecutiveSixes,
		); err != nil {
			return fmt.Errorf("insert player %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.publishLocked(ctx, gameID)
	return nil
}

// Load reads the game and its players in turn order.
func (s *SQL) Load(ctx context.Context, gameID string) (Snapshot, error) {
	snap, _, err := s.load(ctx, gameID)
	return snap, err
}

func (s *SQL) load(ctx context.Context, gameID string) (Snapshot, int64, error) {
	snap := Snapshot{GameID: gameID}
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT turn, version FROM games WHERE id=?`, gameID).Scan(&snap.Turn, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, 0, fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	if err != nil {
		return Snapshot{}, 0, fmt.Errorf("read game: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position, consecutive_sixes FROM players WHERE game_id=? ORDER BY seq ASC`, gameID)
	if err != nil {
		return Snapshot{}, 0, fmt.Errorf("read players: %w", err)
	}
	defer rows.Close()
	snap.Players = []game.Player{}
	for rows.Next() {
		var p game.Player
		if err := rows.Scan(&p.ID, &p.Position, &p.ConsecutiveSixes); err != nil {
			return Snapshot{}, 0, err
		}
		snap.Players = append(snap.Players, p)
	}
	return snap, version, rows.Err()
}

// WritePlayer upserts p, keeping its turn-order slot if it already exists.
func (s *SQL) WritePlayer(ctx context.Context, gameID string, p game.Player) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := bumpVersion(ctx, tx, gameID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE players SET position=?, consecutive_sixes=? WHERE game_id=? AND id=?`,
		p.Position, p.ConsecutiveSixes, gameID, p.ID)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO players (game_id, id, seq, position, consecutive_sixes)
            VALUES (?, ?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM players WHERE game_id=?), ?, ?)`,
			gameID, p.ID, gameID, p.Position, p.ConsecutiveSixes,
		); err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.publishLocked(ctx, gameID)
	return nil
}

// WriteTurn sets the turn holder.
func (s *SQL) WriteTurn(ctx context.Context, gameID, playerID string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET turn=?, version=version+1, updated_at=? WHERE id=?`,
		playerID, time.Now().UTC().Format(time.RFC3339Nano), gameID)
	if err != nil {
		return fmt.Errorf("update turn: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	s.publishLocked(ctx, gameID)
	return nil
}

// SwapTurn is a conditional UPDATE on the stored turn.
func (s *SQL) SwapTurn(ctx context.Context, gameID, expected, next string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET turn=?, version=version+1, updated_at=? WHERE id=? AND turn=?`,
		next, time.Now().UTC().Format(time.RFC3339Nano), gameID, expected)
	if err != nil {
		return fmt.Errorf("swap turn: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var turn string
		err := s.db.QueryRowContext(ctx, `SELECT turn FROM games WHERE id=?`, gameID).Scan(&turn)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, gameID)
		}
		if err != nil {
			return fmt.Errorf("read turn: %w", err)
		}
		return fmt.Errorf("%w: expected %q, stored %q", ErrTurnConflict, expected, turn)
	}
	s.publishLocked(ctx, gameID)
	return nil
}

// SubscribePlayers registers fn and delivers the current list if the game exists.
func (s *SQL) SubscribePlayers(ctx context.Context, gameID string, fn PlayersFunc) (Subscription, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	snap, version, err := s.load(ctx, gameID)
	known := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	s.rememberVersion(gameID, version)
	return s.hub.subscribePlayers(gameID, fn, snap.Players, known), nil
}

// SubscribeTurn registers fn and delivers the current turn if the game exists.
func (s *SQL) SubscribeTurn(ctx context.Context, gameID string, fn TurnFunc) (Subscription, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	snap, version, err := s.load(ctx, gameID)
	known := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	s.rememberVersion(gameID, version)
	return s.hub.subscribeTurn(gameID, fn, snap.Turn, known), nil
}

// Close stops the poller and all subscriptions. The *sql.DB is not closed.
func (s *SQL) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		s.hub.closeAll()
	})
	return nil
}

// publishLocked reloads gameID and fans it out. Caller holds wmu.
func (s *SQL) publishLocked(ctx context.Context, gameID string) {
	snap, version, err := s.load(ctx, gameID)
	if err != nil {
		s.log.Warn().Err(err).Str("gameId", gameID).Msg("reload after write")
		return
	}
	s.vmu.Lock()
	s.versions[gameID] = version
	s.vmu.Unlock()
	s.hub.publish(snap)
}

func (s *SQL) rememberVersion(gameID string, version int64) {
	s.vmu.Lock()
	defer s.vmu.Unlock()
	if _, ok := s.versions[gameID]; !ok {
		s.versions[gameID] = version
	}
}

// poll checks every watched game for a version bump made elsewhere.
func (s *SQL) poll(interval time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
		}
		for _, gameID := range s.hub.watched() {
			s.pollGame(gameID, interval)
		}
	}
}

func (s *SQL) pollGame(gameID string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM games WHERE id=?`, gameID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("gameId", gameID).Msg("poll version")
		s.hub.fail(gameID, fmt.Errorf("%w: %v", ErrListenFailed, err))
		return
	}
	s.vmu.Lock()
	seen, ok := s.versions[gameID]
	s.vmu.Unlock()
	if ok && seen == version {
		return
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.publishLocked(ctx, gameID)
}

// bumpVersion increments games.version inside tx, or reports ErrNotFound.
func bumpVersion(ctx context.Context, tx *sql.Tx, gameID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE games SET version=version+1, updated_at=? WHERE id=?`,
		time.Now().UTC().Format(time.RFC3339Nano), gameID)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	return nil
}
