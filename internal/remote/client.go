// Package remote is a store.GameStore backed by the game store server.
//
// Writes are HTTP requests; each subscription is its own websocket on
// /games/{id}/ws. A dropped socket is reported once as
// store.ErrListenFailed and not redialed.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/store"
	"github.com/robalobadob/snakesladders/internal/wire"
)

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu       sync.RWMutex
	playerID string
	token    string
	tokens   map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithPlayer names the local player; a token issued for it by Initialize
// is adopted automatically.
func WithPlayer(id string) Option { return func(c *Client) { c.playerID = id } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// New parses baseURL (http or https) and builds a Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	_ store.GameStore   = (*Client)(nil)
	_ store.TurnSwapper = (*Client)(nil)
)

// Tokens returns the player tokens issued by the last Initialize.
func (c *Client) Tokens() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.tokens))
	for k, v := range c.tokens {
		out[k] = v
	}
	return out
}

// Create initializes a game under a server-assigned id.
func (c *Client) Create(ctx context.Context, players []game.Player, firstTurn string) (string, error) {
	var res wire.InitializeResponse
	body := wire.InitializeRequest{Players: players, Turn: firstTurn}
	if err := c.do(ctx, http.MethodPost, "/games", body, &res); err != nil {
		return "", err
	}
	c.adoptTokens(res.Tokens)
	return res.GameID, nil
}

func (c *Client) Initialize(ctx context.Context, gameID string, players []game.Player, firstTurn string) error {
	var res wire.InitializeResponse
	body := wire.InitializeRequest{Players: players, Turn: firstTurn}
	if err := c.do(ctx, http.MethodPut, gamePath(gameID), body, &res); err != nil {
		return err
	}
	c.adoptTokens(res.Tokens)
	return nil
}

func (c *Client) adoptTokens(tokens map[string]string) {
	if len(tokens) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
	if tok, ok := tokens[c.playerID]; ok && c.playerID != "" {
		c.token = tok
	}
}

func (c *Client) Load(ctx context.Context, gameID string) (store.Snapshot, error) {
	var res wire.SnapshotResponse
	if err := c.do(ctx, http.MethodGet, gamePath(gameID), nil, &res); err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{GameID: res.GameID, Players: res.Players, Turn: res.Turn}, nil
}

func (c *Client) WritePlayer(ctx context.Context, gameID string, p game.Player) error {
	return c.do(ctx, http.MethodPut, gamePath(gameID)+"/players/"+url.PathEscape(p.ID), p, nil)
}

func (c *Client) WriteTurn(ctx context.Context, gameID, playerID string) error {
	return c.do(ctx, http.MethodPut, gamePath(gameID)+"/turn", wire.TurnWrite{PlayerID: playerID}, nil)
}

// SwapTurn is answered with store.ErrTurnConflict when the server's turn
// holder is not expected.
func (c *Client) SwapTurn(ctx context.Context, gameID, expected, next string) error {
	return c.do(ctx, http.MethodPut, gamePath(gameID)+"/turn", wire.TurnWrite{PlayerID: next, Expected: expected}, nil)
}

func (c *Client) SubscribePlayers(ctx context.Context, gameID string, fn store.PlayersFunc) (store.Subscription, error) {
	return c.subscribe(ctx, gameID, func(msg wire.Message) {
		if msg.Type != "PlayersBroadcast" {
			return
		}
		var b wire.PlayersBroadcast
		if err := wire.Decode(msg, &b); err != nil {
			c.log.Warn().Err(err).Msg("bad players frame")
			return
		}
		fn(b.Players, nil)
	}, func(err error) { fn(nil, err) })
}

func (c *Client) SubscribeTurn(ctx context.Context, gameID string, fn store.TurnFunc) (store.Subscription, error) {
	return c.subscribe(ctx, gameID, func(msg wire.Message) {
		if msg.Type != "TurnBroadcast" {
			return
		}
		var b wire.TurnBroadcast
		if err := wire.Decode(msg, &b); err != nil {
			c.log.Warn().Err(err).Msg("bad turn frame")
			return
		}
		fn(b.Turn, nil)
	}, func(err error) { fn("", err) })
}

// ------------------------------- HTTP --------------------------------------

func gamePath(gameID string) string { return "/games/" + url.PathEscape(gameID) }

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	c.mu.RLock()
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()
	return h
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return err
	}
	req.Header = c.authHeader()
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if out == nil || res.StatusCode == http.StatusNoContent {
			return nil
		}
		return json.NewDecoder(res.Body).Decode(out)
	}
	return statusError(method, path, res)
}

func statusError(method, path string, res *http.Response) error {
	var e wire.ErrorResponse
	_ = json.NewDecoder(res.Body).Decode(&e)
	switch res.StatusCode {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusConflict:
		return store.ErrTurnConflict
	}
	return fmt.Errorf("remote: %s %s: %d %s", method, path, res.StatusCode, e.Error)
}

// ----------------------------- websocket -----------------------------------

// subscription holds mu while a callback runs, so Cancel returns only
// after any in-flight delivery. Callbacks must not call Cancel.
type subscription struct {
	conn     *websocket.Conn
	once     sync.Once
	mu       sync.Mutex
	canceled bool
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.canceled = true
		s.mu.Unlock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

// deliver runs fn unless the subscription was canceled.
func (s *subscription) deliver(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return false
	}
	fn()
	return true
}

func (c *Client) wsURL(gameID string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + gamePath(gameID) + "/ws"
}

// subscribe dials the game's stream and hands frames to onMsg on a reader
// goroutine. onErr runs at most once, when the stream breaks uncanceled.
func (c *Client) subscribe(ctx context.Context, gameID string, onMsg func(wire.Message), onErr func(error)) (store.Subscription, error) {
	conn, res, err := c.dialer.DialContext(ctx, c.wsURL(gameID), c.authHeader())
	if err != nil {
		if res != nil {
			defer res.Body.Close()
			if res.StatusCode != http.StatusSwitchingProtocols {
				return nil, fmt.Errorf("%w: %w", store.ErrListenFailed, statusError(http.MethodGet, gamePath(gameID)+"/ws", res))
			}
		}
		return nil, fmt.Errorf("%w: dial: %w", store.ErrListenFailed, err)
	}

	sub := &subscription{conn: conn}
	go func() {
		defer conn.Close()
		for {
			var msg wire.Message
			if err := conn.ReadJSON(&msg); err != nil {
				sub.deliver(func() {
					c.log.Warn().Err(err).Str("gameId", gameID).Msg("game stream closed")
					onErr(fmt.Errorf("%w: %w", store.ErrListenFailed, err))
				})
				return
			}
			if msg.Type == "ErrorBroadcast" {
				var b wire.ErrorBroadcast
				_ = wire.Decode(msg, &b)
				sub.deliver(func() { onErr(fmt.Errorf("%w: server: %s", store.ErrListenFailed, b.Reason)) })
				return
			}
			if !sub.deliver(func() { onMsg(msg) }) {
				return
			}
		}
	}()
	return sub, nil
}
