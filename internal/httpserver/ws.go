// internal/httpserver/ws.go
//
// GET /games/{id}/ws: a server-to-client stream of PlayersBroadcast and
// TurnBroadcast frames. The current value of each is sent on connect,
// then every change. A store listener failure is sent as ErrorBroadcast
// and the socket is closed. Anything the client sends is discarded.

package httpserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/store"
	"github.com/robalobadob/snakesladders/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// watcher is one websocket connection with a single writer goroutine.
type watcher struct {
	conn   *websocket.Conn
	gameID string
	send   chan wire.Message
	done   chan struct{}
	once   sync.Once
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.authorize(r, id, ""); err != nil {
		writeAuthError(w, err)
		return
	}
	if _, err := s.st.Load(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("gameId", id).Msg("websocket upgrade")
		return
	}
	c := &watcher{
		conn:   conn,
		gameID: id,
		send:   make(chan wire.Message, sendBuffer),
		done:   make(chan struct{}),
	}
	s.track(c, true)
	defer s.track(c, false)
	go c.writeLoop()

	ps, err := s.st.SubscribePlayers(r.Context(), id, func(players []game.Player, err error) {
		if err != nil {
			c.fail(err)
			return
		}
		c.push(wire.PlayersBroadcast{GameID: id, Players: players})
	})
	if err != nil {
		c.fail(err)
		c.readLoop()
		return
	}
	defer ps.Cancel()
	ts, err := s.st.SubscribeTurn(r.Context(), id, func(turn string, err error) {
		if err != nil {
			c.fail(err)
			return
		}
		c.push(wire.TurnBroadcast{GameID: id, Turn: turn})
	})
	if err != nil {
		c.fail(err)
		c.readLoop()
		return
	}
	defer ts.Cancel()

	log.Debug().Str("gameId", id).Str("remote", r.RemoteAddr).Msg("watcher connected")
	c.readLoop()
	log.Debug().Str("gameId", id).Str("remote", r.RemoteAddr).Msg("watcher disconnected")
}

func (s *Server) track(c *watcher, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.watchers[c] = struct{}{}
	} else {
		delete(s.watchers, c)
	}
}

// push queues v; it blocks while the socket is slow, which lets the store
// coalesce further updates behind it.
func (c *watcher) push(v any) {
	msg, err := wire.ToMessage(v)
	if err != nil {
		log.Error().Err(err).Msg("encode broadcast")
		return
	}
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *watcher) fail(err error) {
	log.Warn().Err(err).Str("gameId", c.gameID).Msg("store listener failed")
	c.push(wire.ErrorBroadcast{Reason: store.ErrListenFailed.Error()})
}

func (c *watcher) stop() { c.once.Do(func() { close(c.done) }) }

func (c *watcher) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.stop()
				return
			}
			if msg.Type == "ErrorBroadcast" {
				c.closeWith(websocket.CloseInternalServerErr)
				c.stop()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			c.closeWith(websocket.CloseNormalClosure)
			return
		}
	}
}

func (c *watcher) closeWith(code int) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(writeWait))
}

// readLoop drains client frames until the connection drops.
func (c *watcher) readLoop() {
	defer c.stop()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
