// internal/httpserver/auth.go
//
// Player tokens.
// Responsibilities:
//   - Sign one HS256 JWT per player when a game is initialized.
//   - Resolve the caller (game id + player id) from a bearer header or ?token=.
//   - Gate writes: a player record is written by that player; a conditional
//     turn write comes from the expected holder.
//
// Notes:
//   - With no JWT_SECRET configured every request is anonymous and allowed.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoToken     = errors.New("missing token")
	errBadToken    = errors.New("invalid token")
	errWrongGame   = errors.New("token is for another game")
	errWrongPlayer = errors.New("token is for another player")
)

// caller is placed into request context by withCaller.
type caller struct {
	GameID   string
	PlayerID string
}

type ctxCallerKey struct{}

func (s *Server) authEnabled() bool { return s.cfg.JWTSecret != "" }

// signToken creates a player token scoped to one game.
func (s *Server) signToken(gameID, playerID string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  playerID,
		"game": gameID,
		"exp":  now.Add(s.cfg.TokenTTL()).Unix(),
		"iat":  now.Unix(),
	})
	return t.SignedString([]byte(s.cfg.JWTSecret))
}

// issueTokens signs a token for each player id.
func (s *Server) issueTokens(gameID string, playerIDs []string) (map[string]string, error) {
	if !s.authEnabled() {
		return nil, nil
	}
	out := make(map[string]string, len(playerIDs))
	for _, id := range playerIDs {
		tok, err := s.signToken(gameID, id)
		if err != nil {
			return nil, err
		}
		out[id] = tok
	}
	return out, nil
}

func (s *Server) parseToken(tokenStr string) (*caller, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errBadToken
	}
	sub, _ := claims["sub"].(string)
	game, _ := claims["game"].(string)
	if sub == "" || game == "" {
		return nil, errBadToken
	}
	return &caller{GameID: game, PlayerID: sub}, nil
}

// withCaller decorates requests with the token's caller if one is present.
// It never rejects; handlers decide via authorize.
func (s *Server) withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		if tok := bearerOrQuery(r); tok != "" {
			if c, err := s.parseToken(tok); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), ctxCallerKey{}, c))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authorize checks the caller against gameID and, if playerID is non-empty,
// against that player.
func (s *Server) authorize(r *http.Request, gameID, playerID string) error {
	if !s.authEnabled() {
		return nil
	}
	c, _ := r.Context().Value(ctxCallerKey{}).(*caller)
	if c == nil {
		if bearerOrQuery(r) != "" {
			return errBadToken
		}
		return errNoToken
	}
	if c.GameID != gameID {
		return errWrongGame
	}
	if playerID != "" && c.PlayerID != playerID {
		return errWrongPlayer
	}
	return nil
}

// bearerOrQuery extracts a token from the Authorization header or the
// token query parameter (browsers cannot set headers on websockets).
func bearerOrQuery(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return r.URL.Query().Get("token")
}
