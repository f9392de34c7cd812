package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/snakesladders/internal/config"
	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/store"
	"github.com/robalobadob/snakesladders/internal/wire"
)

func testServer(t *testing.T, secret string) (*httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemoryStore()
	srv := New(st, config.Server{ClientOrigin: "http://localhost:5173", JWTSecret: secret, TokenTTLHours: 1})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = st.Close()
	})
	return ts, st
}

func do(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

var initBody = wire.InitializeRequest{
	Players: []game.Player{game.NewPlayer("p1"), game.NewPlayer("p2")},
	Turn:    "p1",
}

func TestHealthAndNotFound(t *testing.T) {
	ts, _ := testServer(t, "")

	res := do(t, http.MethodGet, ts.URL+"/health", nil, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "application/json")

	res = do(t, http.MethodGet, ts.URL+"/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decode[wire.ErrorResponse](t, res).Error)
}

func TestInitializeAndLoad(t *testing.T) {
	ts, _ := testServer(t, "")

	res := do(t, http.MethodPut, ts.URL+"/games/g1", initBody, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	got := decode[wire.InitializeResponse](t, res)
	assert.Equal(t, "g1", got.GameID)
	assert.Empty(t, got.Tokens)

	res = do(t, http.MethodGet, ts.URL+"/games/g1", nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	snap := decode[wire.SnapshotResponse](t, res)
	assert.Equal(t, initBody.Players, snap.Players)
	assert.Equal(t, "p1", snap.Turn)

	res = do(t, http.MethodGet, ts.URL+"/games/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateAssignsID(t *testing.T) {
	ts, _ := testServer(t, "")

	res := do(t, http.MethodPost, ts.URL+"/games", initBody, "")
	require.Equal(t, http.StatusCreated, res.StatusCode)
	got := decode[wire.InitializeResponse](t, res)
	assert.Len(t, got.GameID, 36)

	res = do(t, http.MethodGet, ts.URL+"/games/"+got.GameID, nil, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestInitializeValidation(t *testing.T) {
	ts, _ := testServer(t, "")
	cases := map[string]wire.InitializeRequest{
		"no players":      {Turn: "p1"},
		"unknown turn":    {Players: initBody.Players, Turn: "p9"},
		"duplicate":       {Players: []game.Player{game.NewPlayer("a"), game.NewPlayer("a")}, Turn: "a"},
		"bad position":    {Players: []game.Player{{ID: "a", Position: 0}}, Turn: "a"},
		"empty player id": {Players: []game.Player{{Position: 1}}, Turn: ""},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := do(t, http.MethodPut, ts.URL+"/games/g1", body, "")
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		})
	}

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/games/g1", strings.NewReader("{"))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestWritePlayerAndTurn(t *testing.T) {
	ts, st := testServer(t, "")
	require.Equal(t, http.StatusOK, do(t, http.MethodPut, ts.URL+"/games/g1", initBody, "").StatusCode)

	res := do(t, http.MethodPut, ts.URL+"/games/g1/players/p1", game.Player{Position: 14}, "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/players/p1", game.Player{ID: "p2", Position: 14}, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/turn", wire.TurnWrite{PlayerID: "p2", Expected: "p1"}, "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/turn", wire.TurnWrite{PlayerID: "p2", Expected: "p1"}, "")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "turn_conflict", decode[wire.ErrorResponse](t, res).Error)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/turn", wire.TurnWrite{PlayerID: "ghost"}, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/nope/players/p1", game.Player{Position: 3}, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	snap, err := st.Load(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 14, snap.Players[0].Position)
	assert.Equal(t, "p2", snap.Turn)
}

func TestTokensGateWrites(t *testing.T) {
	ts, _ := testServer(t, "s3cret")

	res := do(t, http.MethodPut, ts.URL+"/games/g1", initBody, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	tokens := decode[wire.InitializeResponse](t, res).Tokens
	require.Len(t, tokens, 2)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/players/p1", game.Player{Position: 5}, "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/players/p1", game.Player{Position: 5}, "garbage")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/players/p1", game.Player{Position: 5}, tokens["p2"])
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/players/p1", game.Player{Position: 5}, tokens["p1"])
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, http.MethodPut, ts.URL+"/games/g1/turn", wire.TurnWrite{PlayerID: "p2", Expected: "p1"}, tokens["p2"])
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res = do(t, http.MethodPut, ts.URL+"/games/g1/turn", wire.TurnWrite{PlayerID: "p2", Expected: "p1"}, tokens["p1"])
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	// Overwriting an existing game needs a token for it.
	res = do(t, http.MethodPut, ts.URL+"/games/g1", initBody, "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	res = do(t, http.MethodPut, ts.URL+"/games/g1", initBody, tokens["p2"])
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func readFrame(t *testing.T, conn *websocket.Conn) wire.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wire.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWatchStreamsChanges(t *testing.T) {
	ts, _ := testServer(t, "")
	require.Equal(t, http.StatusOK, do(t, http.MethodPut, ts.URL+"/games/g1", initBody, "").StatusCode)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/g1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	seen := map[string]wire.Message{}
	for len(seen) < 2 {
		msg := readFrame(t, conn)
		seen[msg.Type] = msg
	}
	var players wire.PlayersBroadcast
	require.NoError(t, wire.Decode(seen["PlayersBroadcast"], &players))
	assert.Equal(t, initBody.Players, players.Players)
	var turn wire.TurnBroadcast
	require.NoError(t, wire.Decode(seen["TurnBroadcast"], &turn))
	assert.Equal(t, "p1", turn.Turn)

	require.Equal(t, http.StatusNoContent,
		do(t, http.MethodPut, ts.URL+"/games/g1/turn", wire.TurnWrite{PlayerID: "p2"}, "").StatusCode)

	msg := readFrame(t, conn)
	require.Equal(t, "TurnBroadcast", msg.Type)
	require.NoError(t, wire.Decode(msg, &turn))
	assert.Equal(t, "p2", turn.Turn)
}

func TestWatchMissingGame(t *testing.T) {
	ts, _ := testServer(t, "")
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/nope/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
