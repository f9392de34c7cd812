// internal/httpserver/server.go
//
// HTTP server for the shared game store.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game endpoints: initialize, load, write player, write turn.
//   - Realtime endpoint: GET /games/{id}/ws streams players and turn.
//
// Notes:
//   - The websocket route sits outside the timeout group; everything else
//     is bounded to 10s.
//   - Writes are authorized per player when JWT_SECRET is set (see auth.go).

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snakesladders/internal/config"
	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/store"
	"github.com/robalobadob/snakesladders/internal/wire"
)

// maxBody bounds JSON request bodies.
const maxBody = 1 << 16

// Server bundles router, game store, and open websocket watchers.
type Server struct {
	r        *chi.Mux
	st       store.GameStore
	cfg      config.Server
	upgrader websocket.Upgrader
	http     *http.Server

	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.GameStore, cfg config.Server) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		st:       st,
		cfg:      cfg,
		watchers: make(map[*watcher]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)        // add X-Request-ID
	s.r.Use(chimw.RealIP)           // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)        // recover from panics
	s.r.Use(cors(cfg.ClientOrigin)) // credentials-friendly CORS
	s.r.Use(s.withCaller)           // decode player token if present

	// Realtime (long-lived, no timeout)
	s.r.Get("/games/{id}/ws", s.handleWatch)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"snakes-store","endpoints":["/health","POST /games","PUT /games/{id}","GET /games/{id}","PUT /games/{id}/players/{playerId}","PUT /games/{id}/turn","GET /games/{id}/ws"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})

		r.Post("/games", s.handleCreate)
		r.Put("/games/{id}", s.handleInitialize)
		r.Get("/games/{id}", s.handleLoad)
		r.Put("/games/{id}/players/{playerId}", s.handleWritePlayer)
		r.Put("/games/{id}/turn", s.handleWriteTurn)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s
}

// Start begins serving HTTP on addr. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	s.http = &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 5 * time.Second}
	srv := s.http
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests and closes open websockets.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	for c := range s.watchers {
		c.stop()
	}
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkOrigin admits non-browser clients (no Origin) and the configured origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	o := r.Header.Get("Origin")
	return o == "" || o == s.cfg.ClientOrigin || o == "http://"+r.Host || o == "https://"+r.Host
}

// ------------------------------- GAMES -------------------------------------

// handleCreate initializes a game under a fresh id.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.initialize(w, r, uuid.NewString(), http.StatusCreated)
}

// handleInitialize creates or overwrites the game at {id}. Overwriting an
// existing game needs a token for it.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.st.Load(r.Context(), id); err == nil {
		if err := s.authorize(r, id, ""); err != nil {
			writeAuthError(w, err)
			return
		}
	}
	s.initialize(w, r, id, http.StatusOK)
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req wire.InitializeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	ids, err := validateInit(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.st.Initialize(r.Context(), id, req.Players, req.Turn); err != nil {
		log.Error().Err(err).Str("gameId", id).Msg("initialize game")
		writeStoreError(w, err)
		return
	}
	tokens, err := s.issueTokens(id, ids)
	if err != nil {
		log.Error().Err(err).Str("gameId", id).Msg("sign tokens")
		writeError(w, http.StatusInternalServerError, "sign_failed")
		return
	}
	log.Info().Str("gameId", id).Int("players", len(ids)).Str("turn", req.Turn).Msg("game initialized")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(wire.InitializeResponse{GameID: id, Tokens: tokens})
}

// handleLoad returns the stored players and turn.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.authorize(r, id, ""); err != nil {
		writeAuthError(w, err)
		return
	}
	snap, err := s.st.Load(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(wire.SnapshotResponse{GameID: snap.GameID, Players: snap.Players, Turn: snap.Turn})
}

// handleWritePlayer upserts one player record.
func (s *Server) handleWritePlayer(w http.ResponseWriter, r *http.Request) {
	id, pid := chi.URLParam(r, "id"), chi.URLParam(r, "playerId")
	if err := s.authorize(r, id, pid); err != nil {
		writeAuthError(w, err)
		return
	}
	var p game.Player
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if p.ID == "" {
		p.ID = pid
	}
	if p.ID != pid {
		writeError(w, http.StatusBadRequest, "player_id_mismatch")
		return
	}
	if err := validatePlayer(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.st.WritePlayer(r.Context(), id, p); err != nil {
		writeStoreError(w, err)
		return
	}
	log.Debug().Str("gameId", id).Str("player", pid).Int("position", p.Position).Msg("player written")
	w.WriteHeader(http.StatusNoContent)
}

// handleWriteTurn sets the turn holder, conditionally when Expected is set.
func (s *Server) handleWriteTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req wire.TurnWrite
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if err := s.authorize(r, id, req.Expected); err != nil {
		writeAuthError(w, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "player_id_required")
		return
	}
	snap, err := s.st.Load(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if game.IndexOf(snap.Players, req.PlayerID) < 0 {
		writeError(w, http.StatusBadRequest, "unknown_player")
		return
	}

	switch sw, ok := s.st.(store.TurnSwapper); {
	case req.Expected == "":
		err = s.st.WriteTurn(r.Context(), id, req.PlayerID)
	case ok:
		err = sw.SwapTurn(r.Context(), id, req.Expected, req.PlayerID)
	case snap.Turn != req.Expected:
		err = store.ErrTurnConflict
	default:
		err = s.st.WriteTurn(r.Context(), id, req.PlayerID)
	}
	if err != nil {
		if errors.Is(err, store.ErrTurnConflict) {
			log.Info().Str("gameId", id).Str("expected", req.Expected).Str("next", req.PlayerID).Msg("turn conflict")
		}
		writeStoreError(w, err)
		return
	}
	log.Debug().Str("gameId", id).Str("turn", req.PlayerID).Msg("turn written")
	w.WriteHeader(http.StatusNoContent)
}

// ------------------------------ validation ---------------------------------

// validateInit checks ids are present and unique, positions and streaks are
// non-negative, and the turn belongs to a player. It returns the ids in order.
func validateInit(req wire.InitializeRequest) ([]string, error) {
	if len(req.Players) == 0 {
		return nil, errors.New("players_required")
	}
	ids := make([]string, 0, len(req.Players))
	for _, p := range req.Players {
		if err := validatePlayer(p); err != nil {
			return nil, err
		}
		if game.IndexOf(req.Players[:len(ids)], p.ID) >= 0 {
			return nil, errors.New("duplicate_player")
		}
		ids = append(ids, p.ID)
	}
	if game.IndexOf(req.Players, req.Turn) < 0 {
		return nil, errors.New("unknown_turn_player")
	}
	return ids, nil
}

// validatePlayer is board-agnostic; the board's upper bound is enforced by
// the sessions reading the record.
func validatePlayer(p game.Player) error {
	switch {
	case p.ID == "":
		return errors.New("player_id_required")
	case p.Position < game.StartPosition:
		return errors.New("invalid_position")
	case p.ConsecutiveSixes < 0:
		return errors.New("invalid_streak")
	}
	return nil
}

// ------------------------------- small util --------------------------------

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(wire.ErrorResponse{Error: code})
}

// writeStoreError maps store sentinels to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, store.ErrTurnConflict):
		writeError(w, http.StatusConflict, "turn_conflict")
	default:
		writeError(w, http.StatusInternalServerError, "store_error")
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoToken), errors.Is(err, errBadToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusForbidden, err.Error())
	}
}
