// Package wire defines the JSON shapes exchanged between the game store
// server and its clients.
//
// HTTP bodies are the payload structs themselves. Websocket frames wrap a
// payload in a Message envelope {"type": ..., "contents": {...}} where type
// is the payload's Go type name.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/robalobadob/snakesladders/internal/game"
)

// Message is one websocket frame.
type Message struct {
	Type     string         `json:"type"`
	Contents map[string]any `json:"contents"`
}

// ToMessage wraps contents in a Message named after its type.
func ToMessage(contents any) (Message, error) {
	raw, err := json.Marshal(contents)
	if err != nil {
		return Message{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("wire: %T is not an object: %w", contents, err)
	}
	t := reflect.TypeOf(contents)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Message{Type: t.Name(), Contents: m}, nil
}

// Decode copies msg.Contents into out, which must be a pointer to the
// payload type named by msg.Type.
func Decode(msg Message, out any) error {
	t := reflect.TypeOf(out)
	if t == nil || t.Kind() != reflect.Pointer {
		return errors.New("wire: Decode needs a pointer")
	}
	if name := t.Elem().Name(); name != msg.Type {
		return fmt.Errorf("wire: message is %s, not %s", msg.Type, name)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(msg.Contents)
}

// ---------------------------- broadcasts -----------------------------------

// PlayersBroadcast carries every player record of a game, in turn order.
type PlayersBroadcast struct {
	GameID  string        `json:"gameId"`
	Players []game.Player `json:"players"`
}

// TurnBroadcast carries the current turn holder.
type TurnBroadcast struct {
	GameID string `json:"gameId"`
	Turn   string `json:"turn"`
}

// ErrorBroadcast reports a server-side subscription failure. The server
// closes the connection after sending it.
type ErrorBroadcast struct {
	Reason string `json:"reason"`
}

// ------------------------------ HTTP ---------------------------------------

// InitializeRequest is the body of PUT /games/{id} and POST /games.
type InitializeRequest struct {
	Players []game.Player `json:"players"`
	Turn    string        `json:"turn"`
}

// InitializeResponse returns the game id and, when the server signs
// tokens, one bearer token per player id.
type InitializeResponse struct {
	GameID string            `json:"gameId"`
	Tokens map[string]string `json:"tokens,omitempty"`
}

// TurnWrite is the body of PUT /games/{id}/turn. A non-empty Expected
// makes the write conditional on the stored holder.
type TurnWrite struct {
	PlayerID string `json:"playerId"`
	Expected string `json:"expected,omitempty"`
}

// SnapshotResponse is the body of GET /games/{id}.
type SnapshotResponse struct {
	GameID  string        `json:"gameId"`
	Players []game.Player `json:"players"`
	Turn    string        `json:"turn"`
}

// ErrorResponse is every non-2xx JSON body.
type ErrorResponse struct {
	Error string `json:"error"`
}
